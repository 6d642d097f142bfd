package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kashuab/openpark/internal/slotstore"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store implements slotstore.SlotStore on a relational database through gorm.
// The slot_id primary key is the uniqueness gate for bookings.
type Store struct {
	db *gorm.DB
}

// reservationRow is the table schema for a live reservation.
type reservationRow struct {
	SlotID    string    `gorm:"column:slot_id;primaryKey;size:64"`
	ID        string    `gorm:"column:reservation_id;size:36;not null"`
	Occupant  string    `gorm:"column:occupant;not null"`
	BookedAt  time.Time `gorm:"column:booked_at;not null;index:idx_reservations_sweep,priority:3"`
	CheckedIn bool      `gorm:"column:checked_in;not null;default:false;index:idx_reservations_sweep,priority:2"`
	Status    string    `gorm:"column:status;size:16;not null;index:idx_reservations_sweep,priority:1"`
}

func (reservationRow) TableName() string { return "reservations" }

func toRow(r slotstore.Reservation) reservationRow {
	return reservationRow{
		SlotID:    r.SlotID,
		ID:        r.ID,
		Occupant:  r.Occupant,
		BookedAt:  r.BookedAt.UTC(),
		CheckedIn: r.CheckedIn,
		Status:    string(r.Status),
	}
}

func (row reservationRow) reservation() slotstore.Reservation {
	return slotstore.Reservation{
		ID:        row.ID,
		SlotID:    row.SlotID,
		Occupant:  row.Occupant,
		BookedAt:  row.BookedAt.UTC(),
		CheckedIn: row.CheckedIn,
		Status:    slotstore.Status(row.Status),
	}
}

// Dialector picks the gorm driver for a configured database backend.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown sql driver: %q", driver)
	}
}

// Open connects to the database and migrates the reservations table.
func Open(driver, dsn string) (*Store, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return New(db)
}

// New wraps an existing gorm handle. The handle should be opened with
// TranslateError so duplicate keys surface as gorm.ErrDuplicatedKey.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&reservationRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate reservations table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) FindLive(ctx context.Context, slotID string) (*slotstore.Reservation, error) {
	var row reservationRow
	err := s.db.WithContext(ctx).Where("slot_id = ?", slotID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read slot %q: %w", slotID, err)
	}
	r := row.reservation()
	return &r, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, r slotstore.Reservation) error {
	row := toRow(r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return slotstore.ErrConflict
		}
		return fmt.Errorf("failed to insert slot %q: %w", r.SlotID, err)
	}
	return nil
}

func (s *Store) UpdateIfLive(ctx context.Context, slotID string, m slotstore.Mutation) (*slotstore.Reservation, error) {
	var result *slotstore.Reservation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row reservationRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("slot_id = ?", slotID).Take(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return slotstore.ErrNotFound
			}
			return fmt.Errorf("failed to read slot %q: %w", slotID, err)
		}

		r := row.reservation()
		if err := m(&r); err != nil {
			return err
		}

		// MySQL reports zero affected rows for an UPDATE that changes nothing,
		// which would read as a lost record below.
		if r.Occupant == row.Occupant && r.CheckedIn == row.CheckedIn && string(r.Status) == row.Status {
			result = &r
			return nil
		}

		// Conditional on the state we read, so a concurrent writer that slipped
		// past a backend without row locks shows up as zero rows affected.
		res := tx.Model(&reservationRow{}).
			Where("slot_id = ? AND checked_in = ? AND status = ?", slotID, row.CheckedIn, row.Status).
			Updates(map[string]any{
				"occupant":   r.Occupant,
				"checked_in": r.CheckedIn,
				"status":     string(r.Status),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update slot %q: %w", slotID, res.Error)
		}
		if res.RowsAffected == 0 {
			return slotstore.ErrNotFound
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
	res := s.db.WithContext(ctx).Where("slot_id = ?", slotID).Delete(&reservationRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete slot %q: %w", slotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return slotstore.ErrNotFound
	}
	return nil
}

func (s *Store) where(db *gorm.DB, p slotstore.Predicate) *gorm.DB {
	return db.Where("status = ? AND checked_in = ? AND booked_at < ?", string(p.Status), p.CheckedIn, p.BookedBefore.UTC())
}

func (s *Store) QueryExpired(ctx context.Context, now time.Time, grace time.Duration) ([]slotstore.Reservation, error) {
	var rows []reservationRow
	if err := s.where(s.db.WithContext(ctx), slotstore.Expired(now, grace)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query expired reservations: %w", err)
	}
	return reservations(rows), nil
}

func (s *Store) DeleteMany(ctx context.Context, p slotstore.Predicate) (int64, error) {
	res := s.where(s.db.WithContext(ctx), p).Delete(&reservationRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete reservations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) List(ctx context.Context) ([]slotstore.Reservation, error) {
	var rows []reservationRow
	if err := s.db.WithContext(ctx).Order("slot_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations(rows), nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func reservations(rows []reservationRow) []slotstore.Reservation {
	out := make([]slotstore.Reservation, len(rows))
	for i, row := range rows {
		out[i] = row.reservation()
	}
	return out
}
