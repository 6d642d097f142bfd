package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kashuab/openpark/internal/slotstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements slotstore.SlotStore on a MongoDB collection with a unique
// index on slotId.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type reservationDoc struct {
	ReservationID string    `bson:"reservationId"`
	SlotID        string    `bson:"slotId"`
	Occupant      string    `bson:"user"`
	BookedAt      time.Time `bson:"bookedAt"`
	CheckedIn     bool      `bson:"checkedIn"`
	Status        string    `bson:"status"`
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

// New connects to uri and ensures the unique slotId index on database.collection.
func New(ctx context.Context, uri, database, collection string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "slotId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("slotId_unique"),
	}
	if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create slotId index: %w", err)
	}

	return &Store{client: client, collection: coll}, nil
}

func filter(p slotstore.Predicate) bson.M {
	return bson.M{
		"status":    string(p.Status),
		"checkedIn": p.CheckedIn,
		"bookedAt":  bson.M{"$lt": p.BookedBefore.UTC()},
	}
}

func (s *Store) FindLive(ctx context.Context, slotID string) (*slotstore.Reservation, error) {
	var d reservationDoc
	err := s.collection.FindOne(ctx, bson.M{"slotId": slotID}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read slot %q: %w", slotID, err)
	}
	r := d.reservation()
	return &r, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, r slotstore.Reservation) error {
	if _, err := s.collection.InsertOne(ctx, toDoc(r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return slotstore.ErrConflict
		}
		return fmt.Errorf("failed to insert slot %q: %w", r.SlotID, err)
	}
	return nil
}

// UpdateIfLive is optimistic: the write is filtered on the fields read, so a
// record deleted or changed in between reports ErrNotFound.
func (s *Store) UpdateIfLive(ctx context.Context, slotID string, m slotstore.Mutation) (*slotstore.Reservation, error) {
	current, err := s.FindLive(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, slotstore.ErrNotFound
	}

	r := *current
	if err := m(&r); err != nil {
		return nil, err
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{
			"slotId":        slotID,
			"reservationId": current.ID,
			"checkedIn":     current.CheckedIn,
			"status":        string(current.Status),
		},
		bson.M{"$set": bson.M{
			"user":      r.Occupant,
			"checkedIn": r.CheckedIn,
			"status":    string(r.Status),
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update slot %q: %w", slotID, err)
	}
	if res.MatchedCount == 0 {
		return nil, slotstore.ErrNotFound
	}
	return &r, nil
}

func (s *Store) DeleteLive(ctx context.Context, slotID string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"slotId": slotID})
	if err != nil {
		return fmt.Errorf("failed to delete slot %q: %w", slotID, err)
	}
	if res.DeletedCount == 0 {
		return slotstore.ErrNotFound
	}
	return nil
}

func (s *Store) find(ctx context.Context, f bson.M) ([]slotstore.Reservation, error) {
	cur, err := s.collection.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []slotstore.Reservation
	for cur.Next(ctx) {
		var d reservationDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.reservation())
	}
	return out, cur.Err()
}

func (s *Store) QueryExpired(ctx context.Context, now time.Time, grace time.Duration) ([]slotstore.Reservation, error) {
	out, err := s.find(ctx, filter(slotstore.Expired(now, grace)))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired reservations: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteMany(ctx context.Context, p slotstore.Predicate) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, filter(p))
	if err != nil {
		return 0, fmt.Errorf("failed to delete reservations: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) List(ctx context.Context) ([]slotstore.Reservation, error) {
	out, err := s.find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
