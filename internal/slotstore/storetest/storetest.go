// Package storetest holds the behaviour every slotstore.SlotStore backend must
// share. Backend tests call Run with a constructor for a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/Kashuab/openpark/internal/slotstore"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func booked(slotID, occupant string, at time.Time) slotstore.Reservation {
	return slotstore.Reservation{
		ID:       "res-" + slotID,
		SlotID:   slotID,
		Occupant: occupant,
		BookedAt: at,
		Status:   slotstore.StatusBooked,
	}
}

// Run exercises newStore against the SlotStore contract.
func Run(t *testing.T, newStore func(t *testing.T) slotstore.SlotStore) {
	t.Run("FindLiveMissing", func(t *testing.T) {
		s := newStore(t)
		r, err := s.FindLive(context.Background(), "A1")
		if err != nil {
			t.Fatalf("FindLive failed: %v", err)
		}
		if r != nil {
			t.Errorf("expected nil reservation, got %+v", r)
		}
	})

	t.Run("InsertThenFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.InsertIfAbsent(ctx, booked("A1", "John", base)); err != nil {
			t.Fatalf("InsertIfAbsent failed: %v", err)
		}

		r, err := s.FindLive(ctx, "A1")
		if err != nil {
			t.Fatalf("FindLive failed: %v", err)
		}
		if r == nil {
			t.Fatal("expected a live reservation")
		}
		if r.Occupant != "John" {
			t.Errorf("expected occupant 'John', got %q", r.Occupant)
		}
		if r.Status != slotstore.StatusBooked || r.CheckedIn {
			t.Errorf("expected booked and not checked in, got %s/%v", r.Status, r.CheckedIn)
		}
		if !r.BookedAt.Equal(base) {
			t.Errorf("expected booked_at %v, got %v", base, r.BookedAt)
		}
	})

	t.Run("InsertConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.InsertIfAbsent(ctx, booked("A1", "John", base)); err != nil {
			t.Fatalf("first insert failed: %v", err)
		}
		err := s.InsertIfAbsent(ctx, booked("A1", "Alice", base.Add(time.Second)))
		if !errors.Is(err, slotstore.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}

		r, _ := s.FindLive(ctx, "A1")
		if r == nil || r.Occupant != "John" {
			t.Errorf("expected original occupant to survive, got %+v", r)
		}
	})

	t.Run("UpdateIfLive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.InsertIfAbsent(ctx, booked("A1", "John", base)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}

		r, err := s.UpdateIfLive(ctx, "A1", func(r *slotstore.Reservation) error {
			r.CheckedIn = true
			r.Status = slotstore.StatusOccupied
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateIfLive failed: %v", err)
		}
		if !r.CheckedIn || r.Status != slotstore.StatusOccupied {
			t.Errorf("expected occupied, got %s/%v", r.Status, r.CheckedIn)
		}

		stored, _ := s.FindLive(ctx, "A1")
		if stored == nil || stored.Status != slotstore.StatusOccupied {
			t.Errorf("expected stored record to be occupied, got %+v", stored)
		}
	})

	t.Run("UpdateIfLiveRepeatSameValues", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.InsertIfAbsent(ctx, booked("A1", "John", base)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}

		occupy := func(r *slotstore.Reservation) error {
			r.CheckedIn = true
			r.Status = slotstore.StatusOccupied
			return nil
		}
		for i := 0; i < 2; i++ {
			r, err := s.UpdateIfLive(ctx, "A1", occupy)
			if err != nil {
				t.Fatalf("update %d failed: %v", i+1, err)
			}
			if r.Status != slotstore.StatusOccupied {
				t.Errorf("update %d: expected occupied, got %s", i+1, r.Status)
			}
		}
	})

	t.Run("UpdateIfLiveMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpdateIfLive(context.Background(), "Z9", func(r *slotstore.Reservation) error {
			return nil
		})
		if !errors.Is(err, slotstore.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateIfLiveAbort", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		abort := errors.New("abort")

		if err := s.InsertIfAbsent(ctx, booked("A1", "John", base)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		_, err := s.UpdateIfLive(ctx, "A1", func(r *slotstore.Reservation) error {
			r.CheckedIn = true
			return abort
		})
		if !errors.Is(err, abort) {
			t.Errorf("expected mutation error, got %v", err)
		}

		stored, _ := s.FindLive(ctx, "A1")
		if stored == nil || stored.CheckedIn {
			t.Errorf("expected aborted mutation to leave record untouched, got %+v", stored)
		}
	})

	t.Run("DeleteLive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.InsertIfAbsent(ctx, booked("A1", "John", base)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		if err := s.DeleteLive(ctx, "A1"); err != nil {
			t.Fatalf("DeleteLive failed: %v", err)
		}
		if err := s.DeleteLive(ctx, "A1"); !errors.Is(err, slotstore.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}

		// The slot is free again
		if err := s.InsertIfAbsent(ctx, booked("A1", "Alice", base)); err != nil {
			t.Errorf("re-insert after delete failed: %v", err)
		}
	})

	t.Run("QueryAndDeleteExpired", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		grace := 5 * time.Second

		seed := []slotstore.Reservation{
			booked("OLD", "a", base),
			booked("EDGE", "b", base.Add(5*time.Second)),
			booked("NEW", "c", base.Add(8*time.Second)),
		}
		for _, r := range seed {
			if err := s.InsertIfAbsent(ctx, r); err != nil {
				t.Fatalf("insert %s failed: %v", r.SlotID, err)
			}
		}
		occupied := booked("IN", "d", base)
		occupied.CheckedIn = true
		occupied.Status = slotstore.StatusOccupied
		if err := s.InsertIfAbsent(ctx, occupied); err != nil {
			t.Fatalf("insert IN failed: %v", err)
		}

		now := base.Add(10 * time.Second)

		expired, err := s.QueryExpired(ctx, now, grace)
		if err != nil {
			t.Fatalf("QueryExpired failed: %v", err)
		}
		if len(expired) != 1 || expired[0].SlotID != "OLD" {
			t.Errorf("expected only OLD to be expired, got %v", slotIDs(expired))
		}

		n, err := s.DeleteMany(ctx, slotstore.Expired(now, grace))
		if err != nil {
			t.Fatalf("DeleteMany failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 deletion, got %d", n)
		}

		n, err = s.DeleteMany(ctx, slotstore.Expired(now, grace))
		if err != nil {
			t.Fatalf("second DeleteMany failed: %v", err)
		}
		if n != 0 {
			t.Errorf("expected second DeleteMany to be a no-op, got %d", n)
		}

		all, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		got := slotIDs(all)
		want := []string{"EDGE", "IN", "NEW"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("expected %v, got %v", want, got)
				break
			}
		}
	})
}

func slotIDs(rs []slotstore.Reservation) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.SlotID
	}
	sort.Strings(ids)
	return ids
}
