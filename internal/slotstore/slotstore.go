package slotstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict = errors.New("openpark: slot already has a live reservation")
	ErrNotFound = errors.New("openpark: no live reservation for slot")
)

// DefaultGraceWindow is how long a booking waits for check-in when no
// window is configured. The engine and the sweeper both fall back to it.
const DefaultGraceWindow = 5 * time.Second

// Status is the lifecycle state of a slot. StatusAvailable is never stored:
// a slot without a record is available.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusOccupied  Status = "occupied"
)

// Reservation is the live record for one parking slot.
type Reservation struct {
	ID        string    `json:"id"`
	SlotID    string    `json:"slot"`
	Occupant  string    `json:"user"`
	BookedAt  time.Time `json:"booked_at"`
	CheckedIn bool      `json:"checked_in"`
	Status    Status    `json:"status"`
}

// Stale reports whether the reservation is still waiting for check-in after
// its grace window has elapsed.
func (r *Reservation) Stale(now time.Time, grace time.Duration) bool {
	return r.Status == StatusBooked && !r.CheckedIn && now.Sub(r.BookedAt) > grace
}

// Remaining returns how much of the grace window is left for check-in.
func (r *Reservation) Remaining(now time.Time, grace time.Duration) time.Duration {
	if r.CheckedIn {
		return 0
	}
	left := grace - now.Sub(r.BookedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Mutation edits a live reservation in place. Returning an error aborts the
// update and the error is passed back to the caller unchanged.
type Mutation func(r *Reservation) error

// Predicate selects reservations for bulk deletion.
type Predicate struct {
	Status       Status
	CheckedIn    bool
	BookedBefore time.Time
}

// Expired selects booked, unchecked reservations whose grace window ended
// before now.
func Expired(now time.Time, grace time.Duration) Predicate {
	return Predicate{
		Status:       StatusBooked,
		CheckedIn:    false,
		BookedBefore: now.Add(-grace),
	}
}

func (p Predicate) Matches(r Reservation) bool {
	return r.Status == p.Status && r.CheckedIn == p.CheckedIn && r.BookedAt.Before(p.BookedBefore)
}

// SlotStore is durable keyed storage of reservations. Implementations enforce
// at most one live record per slot ID; callers rely on that for race-free
// booking across processes.
type SlotStore interface {
	// FindLive returns the live reservation for slotID, or nil if the slot is available.
	FindLive(ctx context.Context, slotID string) (*Reservation, error)

	// InsertIfAbsent stores r. Returns ErrConflict if slotID already has a record.
	InsertIfAbsent(ctx context.Context, r Reservation) error

	// UpdateIfLive applies m to the live record atomically and stores the result.
	// Returns ErrNotFound if no record exists.
	UpdateIfLive(ctx context.Context, slotID string, m Mutation) (*Reservation, error)

	// DeleteLive removes the record for slotID. Returns ErrNotFound if none exists.
	DeleteLive(ctx context.Context, slotID string) error

	// QueryExpired returns the records matching Expired(now, grace).
	QueryExpired(ctx context.Context, now time.Time, grace time.Duration) ([]Reservation, error)

	// DeleteMany removes every record matching p and returns how many were removed.
	DeleteMany(ctx context.Context, p Predicate) (int64, error)

	// List returns all live records in no particular order.
	List(ctx context.Context) ([]Reservation, error)

	// Close releases any resources held by the store.
	Close() error
}
