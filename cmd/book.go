package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kashuab/openpark/internal/engine"
	"github.com/Kashuab/openpark/internal/identity"
	"github.com/Kashuab/openpark/internal/ticket"
)

var bookAs string

var bookCmd = &cobra.Command{
	Use:   "book <slot>",
	Short: "Book a free parking slot",
	Long: `Book a free parking slot. The booking must be checked in within the grace
window or the sweeper frees the slot again. The ticket is saved locally so
checkin and release can be run without arguments.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Refuse if there's already an active ticket
		if existing, err := ticket.Load(ticketFile); err == nil {
			return fmt.Errorf("already holding slot %q (reservation: %s). Release it first with: openpark release",
				existing.SlotID, existing.ReservationID)
		}

		occupant := bookAs
		if occupant == "" {
			occupant = identity.Resolve()
		}

		r, err := eng.Book(cmd.Context(), engine.NormalizeSlotID(args[0]), occupant, time.Now())
		if err != nil {
			return err
		}

		t := &ticket.Ticket{
			SlotID:        r.SlotID,
			ReservationID: r.ID,
			Occupant:      r.Occupant,
			BookedAt:      r.BookedAt,
			CheckInBy:     r.BookedAt.Add(eng.GraceWindow()),
		}
		if err := ticket.Save(ticketFile, t); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Booked slot %q for %s (check in by %s)\n",
			r.SlotID, r.Occupant, t.CheckInBy.Local().Format("15:04:05"))
		return nil
	},
}

func init() {
	bookCmd.Flags().StringVar(&bookAs, "as", "", "occupant name (default: OPENPARK_OCCUPANT, $USER or hostname)")
	rootCmd.AddCommand(bookCmd)
}
