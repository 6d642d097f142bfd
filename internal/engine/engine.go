package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kashuab/openpark/internal/slotstore"
	"github.com/Kashuab/openpark/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultGraceWindow is how long a booking waits for check-in when no
// window is configured.
const DefaultGraceWindow = slotstore.DefaultGraceWindow

// Engine runs the reservation lifecycle: available -> booked -> occupied,
// and back to available by deletion. It keeps no state of its own; every
// decision that must hold across processes is made by the slot store.
type Engine struct {
	Store  slotstore.SlotStore
	Grace  time.Duration
	Logger zerolog.Logger
}

// NormalizeSlotID trims and upper-cases a slot ID the way callers are
// expected to before handing it to the engine.
func NormalizeSlotID(slotID string) string {
	return strings.ToUpper(strings.TrimSpace(slotID))
}

// GraceWindow returns the configured check-in window.
func (e *Engine) GraceWindow() time.Duration {
	if e.Grace <= 0 {
		return DefaultGraceWindow
	}
	return e.Grace
}

// Book reserves slotID for occupant. The store's insert decides races: of
// several concurrent bookings for one slot exactly one succeeds.
func (e *Engine) Book(ctx context.Context, slotID, occupant string, now time.Time) (*slotstore.Reservation, error) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return nil, e.done("book", fmt.Errorf("%w: slot is required", ErrValidation))
	}
	if strings.TrimSpace(occupant) == "" {
		return nil, e.done("book", fmt.Errorf("%w: occupant is required", ErrValidation))
	}

	// Fast-path rejection only; InsertIfAbsent is the real gate.
	existing, err := e.Store.FindLive(ctx, slotID)
	if err != nil {
		return nil, e.done("book", storageErr("book", err))
	}
	if existing != nil {
		return nil, e.done("book", ErrSlotUnavailable)
	}

	r := slotstore.Reservation{
		ID:        uuid.New().String(),
		SlotID:    slotID,
		Occupant:  occupant,
		BookedAt:  now.UTC(),
		CheckedIn: false,
		Status:    slotstore.StatusBooked,
	}

	if err := e.Store.InsertIfAbsent(ctx, r); err != nil {
		if errors.Is(err, slotstore.ErrConflict) {
			return nil, e.done("book", ErrSlotUnavailable)
		}
		return nil, e.done("book", storageErr("book", err))
	}

	e.Logger.Info().
		Str("slot", r.SlotID).
		Str("occupant", r.Occupant).
		Str("reservation_id", r.ID).
		Msg("slot booked")
	return &r, e.done("book", nil)
}

// CheckIn marks the booking on slotID as occupied, provided the grace window
// measured from BookedAt has not elapsed. The window is checked inside the
// store's update so a sweep that deletes the record first turns this into
// ErrSlotNotFound. Checking in again within the window succeeds again.
func (e *Engine) CheckIn(ctx context.Context, slotID string, now time.Time) (*slotstore.Reservation, error) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return nil, e.done("checkin", fmt.Errorf("%w: slot is required", ErrValidation))
	}

	grace := e.GraceWindow()
	r, err := e.Store.UpdateIfLive(ctx, slotID, func(r *slotstore.Reservation) error {
		if now.Sub(r.BookedAt) > grace {
			return ErrCheckInExpired
		}
		r.CheckedIn = true
		r.Status = slotstore.StatusOccupied
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, slotstore.ErrNotFound):
			return nil, e.done("checkin", ErrSlotNotFound)
		case errors.Is(err, ErrCheckInExpired):
			return nil, e.done("checkin", ErrCheckInExpired)
		}
		return nil, e.done("checkin", storageErr("checkin", err))
	}

	e.Logger.Info().Str("slot", r.SlotID).Str("occupant", r.Occupant).Msg("checked in")
	return r, e.done("checkin", nil)
}

// Release cancels the reservation on slotID, freeing it for a new booking.
func (e *Engine) Release(ctx context.Context, slotID string) error {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return e.done("release", fmt.Errorf("%w: slot is required", ErrValidation))
	}

	if err := e.Store.DeleteLive(ctx, slotID); err != nil {
		if errors.Is(err, slotstore.ErrNotFound) {
			return e.done("release", ErrSlotNotFound)
		}
		return e.done("release", storageErr("release", err))
	}

	e.Logger.Info().Str("slot", slotID).Msg("slot released")
	return e.done("release", nil)
}

// Get returns the live reservation on slotID.
func (e *Engine) Get(ctx context.Context, slotID string) (*slotstore.Reservation, error) {
	r, err := e.Store.FindLive(ctx, slotID)
	if err != nil {
		return nil, storageErr("get", err)
	}
	if r == nil {
		return nil, ErrSlotNotFound
	}
	return r, nil
}

// ListSlots returns a snapshot of every live reservation.
func (e *Engine) ListSlots(ctx context.Context) ([]slotstore.Reservation, error) {
	rs, err := e.Store.List(ctx)
	if err != nil {
		return nil, storageErr("list", err)
	}
	return rs, nil
}

// ListOccupied returns the live reservations that have been checked in.
func (e *Engine) ListOccupied(ctx context.Context) ([]slotstore.Reservation, error) {
	rs, err := e.ListSlots(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]slotstore.Reservation, 0, len(rs))
	for _, r := range rs {
		if r.Status == slotstore.StatusOccupied {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close releases the store.
func (e *Engine) Close() error {
	return e.Store.Close()
}

// done records the outcome of op and returns err unchanged.
func (e *Engine) done(op string, err error) error {
	telemetry.ReservationOpsTotal.WithLabelValues(op, result(err)).Inc()
	if err != nil {
		e.Logger.Debug().Err(err).Str("op", op).Msg("reservation operation rejected")
	}
	return err
}

func result(err error) string {
	var se *StorageError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se):
		return "storage_error"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrSlotUnavailable):
		return "unavailable"
	case errors.Is(err, ErrSlotNotFound):
		return "not_found"
	case errors.Is(err, ErrCheckInExpired):
		return "expired"
	default:
		return "error"
	}
}
