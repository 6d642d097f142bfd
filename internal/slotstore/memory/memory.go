package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Kashuab/openpark/internal/slotstore"
)

// Store is a thread-safe in-memory slot store for testing and local development.
// The mutex plays the role of a database's unique key and row atomicity.
type Store struct {
	mu    sync.Mutex
	slots map[string]slotstore.Reservation // key: slot ID
}

func New() *Store {
	return &Store{
		slots: make(map[string]slotstore.Reservation),
	}
}

func (s *Store) FindLive(_ context.Context, slotID string) (*slotstore.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.slots[slotID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) InsertIfAbsent(_ context.Context, r slotstore.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[r.SlotID]; ok {
		return slotstore.ErrConflict
	}
	s.slots[r.SlotID] = r
	return nil
}

func (s *Store) UpdateIfLive(_ context.Context, slotID string, m slotstore.Mutation) (*slotstore.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.slots[slotID]
	if !ok {
		return nil, slotstore.ErrNotFound
	}
	if err := m(&r); err != nil {
		return nil, err
	}
	s.slots[slotID] = r
	return &r, nil
}

func (s *Store) DeleteLive(_ context.Context, slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[slotID]; !ok {
		return slotstore.ErrNotFound
	}
	delete(s.slots, slotID)
	return nil
}

func (s *Store) QueryExpired(_ context.Context, now time.Time, grace time.Duration) ([]slotstore.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := slotstore.Expired(now, grace)
	var out []slotstore.Reservation
	for _, r := range s.slots {
		if p.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) DeleteMany(_ context.Context, p slotstore.Predicate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.slots {
		if p.Matches(r) {
			delete(s.slots, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) List(_ context.Context) ([]slotstore.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]slotstore.Reservation, 0, len(s.slots))
	for _, r := range s.slots {
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
