package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Kashuab/openpark/internal/slotstore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Store implements slotstore.SlotStore using Google Cloud Firestore.
// Each live reservation is one document whose ID is the slot ID, so
// DocumentRef.Create is the uniqueness gate.
type Store struct {
	client     *firestore.Client
	collection string
}

// reservationDoc is the Firestore document schema for a reservation.
type reservationDoc struct {
	ReservationID string    `firestore:"reservation_id"`
	SlotID        string    `firestore:"slot_id"`
	Occupant      string    `firestore:"occupant"`
	BookedAt      time.Time `firestore:"booked_at"`
	CheckedIn     bool      `firestore:"checked_in"`
	Status        string    `firestore:"status"`
}

func toDoc(r slotstore.Reservation) reservationDoc {
	return reservationDoc{
		ReservationID: r.ID,
		SlotID:        r.SlotID,
		Occupant:      r.Occupant,
		BookedAt:      r.BookedAt.UTC(),
		CheckedIn:     r.CheckedIn,
		Status:        string(r.Status),
	}
}

func (d reservationDoc) reservation() slotstore.Reservation {
	return slotstore.Reservation{
		ID:        d.ReservationID,
		SlotID:    d.SlotID,
		Occupant:  d.Occupant,
		BookedAt:  d.BookedAt.UTC(),
		CheckedIn: d.CheckedIn,
		Status:    slotstore.Status(d.Status),
	}
}

func New(ctx context.Context, project, collection string) (*Store, error) {
	client, err := firestore.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Store{client: client, collection: collection}, nil
}

func (s *Store) docRef(slotID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(slotID)
}

func parse(doc *firestore.DocumentSnapshot) (slotstore.Reservation, error) {
	var d reservationDoc
	if err := doc.DataTo(&d); err != nil {
		return slotstore.Reservation{}, fmt.Errorf("failed to parse slot %s: %w", doc.Ref.ID, err)
	}
	return d.reservation(), nil
}

func (s *Store) FindLive(ctx context.Context, slotID string) (*slotstore.Reservation, error) {
	doc, err := s.docRef(slotID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read slot %q: %w", slotID, err)
	}

	r, err := parse(doc)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, r slotstore.Reservation) error {
	if _, err := s.docRef(r.SlotID).Create(ctx, toDoc(r)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return slotstore.ErrConflict
		}
		return fmt.Errorf("failed to create slot %q: %w", r.SlotID, err)
	}
	return nil
}

func (s *Store) UpdateIfLive(ctx context.Context, slotID string, m slotstore.Mutation) (*slotstore.Reservation, error) {
	var result *slotstore.Reservation

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.docRef(slotID)
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return slotstore.ErrNotFound
			}
			return fmt.Errorf("failed to read slot %q: %w", slotID, err)
		}

		r, err := parse(doc)
		if err != nil {
			return err
		}
		if err := m(&r); err != nil {
			return err
		}

		if err := tx.Set(ref, toDoc(r)); err != nil {
			return fmt.Errorf("failed to write slot %q: %w", slotID, err)
		}
		result = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteLive(ctx context.Context, slotID string) error {
	if _, err := s.docRef(slotID).Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return slotstore.ErrNotFound
		}
		return fmt.Errorf("failed to delete slot %q: %w", slotID, err)
	}
	return nil
}

func (s *Store) query(p slotstore.Predicate) firestore.Query {
	return s.client.Collection(s.collection).
		Where("status", "==", string(p.Status)).
		Where("checked_in", "==", p.CheckedIn).
		Where("booked_at", "<", p.BookedBefore.UTC())
}

func (s *Store) QueryExpired(ctx context.Context, now time.Time, grace time.Duration) ([]slotstore.Reservation, error) {
	docs, err := s.query(slotstore.Expired(now, grace)).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query expired reservations: %w", err)
	}

	out := make([]slotstore.Reservation, 0, len(docs))
	for _, doc := range docs {
		r, err := parse(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteMany deletes each matching document with a LastUpdateTime precondition.
// A reservation checked in after the query was read fails its precondition and
// is left in place.
func (s *Store) DeleteMany(ctx context.Context, p slotstore.Predicate) (int64, error) {
	iter := s.query(p).Documents(ctx)
	defer iter.Stop()

	var n int64
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("failed to query reservations: %w", err)
		}

		_, err = doc.Ref.Delete(ctx, firestore.LastUpdateTime(doc.UpdateTime))
		if err != nil {
			switch status.Code(err) {
			case codes.FailedPrecondition, codes.NotFound:
				continue
			}
			return n, fmt.Errorf("failed to delete slot %s: %w", doc.Ref.ID, err)
		}
		n++
	}
	return n, nil
}

func (s *Store) List(ctx context.Context) ([]slotstore.Reservation, error) {
	docs, err := s.client.Collection(s.collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}

	out := make([]slotstore.Reservation, 0, len(docs))
	for _, doc := range docs {
		r, err := parse(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
