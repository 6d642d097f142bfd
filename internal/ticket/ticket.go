package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// DefaultPath is where the CLI remembers the reservation it last booked.
const DefaultPath = ".openpark"

var ErrNoTicket = errors.New("openpark: no reservation ticket")

// Ticket is the local record of a booking, so checkin and release can be run
// without repeating the slot ID.
type Ticket struct {
	SlotID        string    `json:"slot"`
	ReservationID string    `json:"reservation_id"`
	Occupant      string    `json:"user"`
	BookedAt      time.Time `json:"booked_at"`
	CheckInBy     time.Time `json:"check_in_by"`
}

func Load(path string) (*Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w (file not found: %s)", ErrNoTicket, path)
		}
		return nil, fmt.Errorf("failed to read ticket file: %w", err)
	}

	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse ticket file: %w", err)
	}
	if t.SlotID == "" {
		return nil, fmt.Errorf("%w (empty slot in %s)", ErrNoTicket, path)
	}

	return &t, nil
}

func Save(path string, t *Ticket) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write ticket file: %w", err)
	}

	return nil
}

func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete ticket file: %w", err)
	}
	return nil
}
