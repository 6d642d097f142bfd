package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Kashuab/openpark/internal/engine"
	"github.com/Kashuab/openpark/internal/slotstore"
	slotmem "github.com/Kashuab/openpark/internal/slotstore/memory"
	"github.com/rs/zerolog"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

func testEngine() (*engine.Engine, *slotmem.Store) {
	store := slotmem.New()
	e := &engine.Engine{
		Store:  store,
		Grace:  5 * time.Second,
		Logger: zerolog.Nop(),
	}
	return e, store
}

func TestBook(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	r, err := e.Book(ctx, "A1", "John", at(0))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if r.SlotID != "A1" {
		t.Errorf("expected slot 'A1', got %q", r.SlotID)
	}
	if r.Occupant != "John" {
		t.Errorf("expected occupant 'John', got %q", r.Occupant)
	}
	if r.Status != slotstore.StatusBooked {
		t.Errorf("expected status booked, got %q", r.Status)
	}
	if r.CheckedIn {
		t.Error("expected checked_in to be false")
	}
	if !r.BookedAt.Equal(at(0)) {
		t.Errorf("expected booked_at %v, got %v", at(0), r.BookedAt)
	}
	if r.ID == "" {
		t.Error("expected non-empty reservation ID")
	}
}

func TestBookUnavailable(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	if _, err := e.Book(ctx, "A1", "John", at(0)); err != nil {
		t.Fatalf("first Book failed: %v", err)
	}

	_, err := e.Book(ctx, "A1", "Alice", at(1))
	if !errors.Is(err, engine.ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBookValidation(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	tests := []struct {
		name     string
		slot     string
		occupant string
	}{
		{"missing slot", "", "John"},
		{"missing occupant", "A1", ""},
		{"blank occupant", "A1", "   "},
		{"blank slot", "   ", "John"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Book(ctx, tt.slot, tt.occupant, at(0))
			if !errors.Is(err, engine.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBlankSlotRejected(t *testing.T) {
	e, store := testEngine()
	ctx := context.Background()

	if _, err := e.CheckIn(ctx, " \t", at(0)); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("CheckIn: expected ErrValidation, got %v", err)
	}
	if err := e.Release(ctx, "  "); !errors.Is(err, engine.ErrValidation) {
		t.Errorf("Release: expected ErrValidation, got %v", err)
	}

	rs, _ := store.List(ctx)
	if len(rs) != 0 {
		t.Errorf("expected no stored records, got %d", len(rs))
	}
}

func TestBookTrimsSlotID(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	r, err := e.Book(ctx, " A1 ", "John", at(0))
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if r.SlotID != "A1" {
		t.Errorf("expected slot 'A1', got %q", r.SlotID)
	}
	if _, err := e.CheckIn(ctx, "A1 ", at(1)); err != nil {
		t.Errorf("CheckIn with padded slot failed: %v", err)
	}
}

func TestConcurrentBookSingleWinner(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	const callers = 32
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins        int
		unavailable int
	)

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.Book(ctx, "A1", "driver", at(0))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, engine.ErrSlotUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 successful booking, got %d", wins)
	}
	if unavailable != callers-1 {
		t.Errorf("expected %d ErrSlotUnavailable, got %d", callers-1, unavailable)
	}
}

// conflictStore lets the fast-path read miss so the insert has to reject the booking.
type conflictStore struct {
	*slotmem.Store
}

func (s conflictStore) FindLive(context.Context, string) (*slotstore.Reservation, error) {
	return nil, nil
}

func TestBookInsertIsTheUniquenessGate(t *testing.T) {
	store := slotmem.New()
	e := &engine.Engine{Store: conflictStore{store}, Grace: 5 * time.Second, Logger: zerolog.Nop()}
	ctx := context.Background()

	if _, err := e.Book(ctx, "A1", "John", at(0)); err != nil {
		t.Fatalf("first Book failed: %v", err)
	}
	_, err := e.Book(ctx, "A1", "Alice", at(0))
	if !errors.Is(err, engine.ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable from insert conflict, got %v", err)
	}
}

func TestCheckIn(t *testing.T) {
	tests := []struct {
		name    string
		checkAt int
		wantErr error
	}{
		{"immediately", 0, nil},
		{"inside window", 3, nil},
		{"exactly at window edge", 5, nil},
		{"after window", 6, engine.ErrCheckInExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := testEngine()
			ctx := context.Background()

			if _, err := e.Book(ctx, "C3", "X", at(0)); err != nil {
				t.Fatalf("Book failed: %v", err)
			}

			r, err := e.CheckIn(ctx, "C3", at(tt.checkAt))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CheckIn failed: %v", err)
			}
			if !r.CheckedIn || r.Status != slotstore.StatusOccupied {
				t.Errorf("expected occupied and checked in, got %s/%v", r.Status, r.CheckedIn)
			}
		})
	}
}

func TestCheckInExpiredLeavesRecordBooked(t *testing.T) {
	e, store := testEngine()
	ctx := context.Background()

	if _, err := e.Book(ctx, "C3", "X", at(0)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := e.CheckIn(ctx, "C3", at(6)); !errors.Is(err, engine.ErrCheckInExpired) {
		t.Fatalf("expected ErrCheckInExpired, got %v", err)
	}

	r, _ := store.FindLive(ctx, "C3")
	if r == nil || r.CheckedIn || r.Status != slotstore.StatusBooked {
		t.Errorf("expected record to stay booked, got %+v", r)
	}
}

func TestCheckInNotFound(t *testing.T) {
	e, _ := testEngine()

	_, err := e.CheckIn(context.Background(), "Z9", at(0))
	if !errors.Is(err, engine.ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestCheckInRepeatedWithinWindow(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	if _, err := e.Book(ctx, "A1", "John", at(0)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if _, err := e.CheckIn(ctx, "A1", at(1)); err != nil {
		t.Fatalf("first CheckIn failed: %v", err)
	}

	// A repeat inside the window succeeds again
	if _, err := e.CheckIn(ctx, "A1", at(2)); err != nil {
		t.Errorf("repeat CheckIn within window failed: %v", err)
	}

	// A repeat after the window is rejected like any late check-in
	if _, err := e.CheckIn(ctx, "A1", at(30)); !errors.Is(err, engine.ErrCheckInExpired) {
		t.Errorf("expected ErrCheckInExpired for late repeat, got %v", err)
	}
}

func TestRelease(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	if _, err := e.Book(ctx, "A1", "John", at(0)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if err := e.Release(ctx, "A1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Should be able to book again
	r, err := e.Book(ctx, "A1", "Alice", at(1))
	if err != nil {
		t.Fatalf("re-Book failed: %v", err)
	}
	if r.Occupant != "Alice" {
		t.Errorf("expected occupant 'Alice', got %q", r.Occupant)
	}
}

func TestReleaseNotFound(t *testing.T) {
	e, _ := testEngine()

	err := e.Release(context.Background(), "Z9")
	if !errors.Is(err, engine.ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestListSlotsRoundTrip(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	slots, err := e.ListSlots(ctx)
	if err != nil {
		t.Fatalf("ListSlots failed: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}

	if _, err := e.Book(ctx, "B2", "Alice", at(0)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	slots, err = e.ListSlots(ctx)
	if err != nil {
		t.Fatalf("ListSlots after book failed: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].SlotID != "B2" || slots[0].Status != slotstore.StatusBooked || slots[0].CheckedIn {
		t.Errorf("expected booked B2 not checked in, got %+v", slots[0])
	}
}

func TestListOccupied(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	for _, slot := range []string{"A1", "A2"} {
		if _, err := e.Book(ctx, slot, "John", at(0)); err != nil {
			t.Fatalf("Book %s failed: %v", slot, err)
		}
	}
	if _, err := e.CheckIn(ctx, "A2", at(1)); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}

	occupied, err := e.ListOccupied(ctx)
	if err != nil {
		t.Fatalf("ListOccupied failed: %v", err)
	}
	if len(occupied) != 1 || occupied[0].SlotID != "A2" {
		t.Errorf("expected only A2 occupied, got %+v", occupied)
	}
}

func TestGet(t *testing.T) {
	e, _ := testEngine()
	ctx := context.Background()

	if _, err := e.Get(ctx, "A1"); !errors.Is(err, engine.ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
	if _, err := e.Book(ctx, "A1", "John", at(0)); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	r, err := e.Get(ctx, "A1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r.Occupant != "John" {
		t.Errorf("expected occupant 'John', got %q", r.Occupant)
	}
}

// brokenStore fails every call.
type brokenStore struct {
	slotstore.SlotStore
}

var errDown = errors.New("connection refused")

func (brokenStore) FindLive(context.Context, string) (*slotstore.Reservation, error) {
	return nil, errDown
}

func (brokenStore) UpdateIfLive(context.Context, string, slotstore.Mutation) (*slotstore.Reservation, error) {
	return nil, errDown
}

func (brokenStore) DeleteLive(context.Context, string) error {
	return errDown
}

func (brokenStore) List(context.Context) ([]slotstore.Reservation, error) {
	return nil, errDown
}

func TestStorageErrors(t *testing.T) {
	e := &engine.Engine{Store: brokenStore{}, Grace: 5 * time.Second, Logger: zerolog.Nop()}
	ctx := context.Background()

	_, bookErr := e.Book(ctx, "A1", "John", at(0))
	_, checkInErr := e.CheckIn(ctx, "A1", at(0))
	releaseErr := e.Release(ctx, "A1")
	_, listErr := e.ListSlots(ctx)

	for name, err := range map[string]error{
		"book":    bookErr,
		"checkin": checkInErr,
		"release": releaseErr,
		"list":    listErr,
	} {
		var se *engine.StorageError
		if !errors.As(err, &se) {
			t.Errorf("%s: expected *StorageError, got %v", name, err)
			continue
		}
		if !errors.Is(err, errDown) {
			t.Errorf("%s: expected wrapped cause, got %v", name, err)
		}
		if se.Op != name {
			t.Errorf("%s: expected op %q, got %q", name, name, se.Op)
		}
	}
}

func TestGraceWindowDefault(t *testing.T) {
	e := &engine.Engine{Store: slotmem.New(), Logger: zerolog.Nop()}
	if e.GraceWindow() != engine.DefaultGraceWindow {
		t.Errorf("expected default grace %v, got %v", engine.DefaultGraceWindow, e.GraceWindow())
	}
}

func TestNormalizeSlotID(t *testing.T) {
	tests := map[string]string{
		" a1 ": "A1",
		"b2":   "B2",
		"C3":   "C3",
		"":     "",
	}
	for in, want := range tests {
		if got := engine.NormalizeSlotID(in); got != want {
			t.Errorf("NormalizeSlotID(%q) = %q, want %q", in, got, want)
		}
	}
}
