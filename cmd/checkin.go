package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kashuab/openpark/internal/engine"
	"github.com/Kashuab/openpark/internal/ticket"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin [slot]",
	Short: "Check in to a booked slot",
	Long: `Check in to a booked slot before its grace window ends. With no arguments,
checks in to the slot from the local ticket file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := slotArg(args)
		if err != nil {
			return err
		}

		r, err := eng.CheckIn(cmd.Context(), slot, time.Now())
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Checked in to slot %q (%s)\n", r.SlotID, r.Occupant)
		return nil
	},
}

// slotArg returns the slot named on the command line, or the one held in the
// ticket file when none is given.
func slotArg(args []string) (string, error) {
	if len(args) == 1 {
		return engine.NormalizeSlotID(args[0]), nil
	}

	t, err := ticket.Load(ticketFile)
	if err != nil {
		return "", err
	}
	return t.SlotID, nil
}

func init() {
	rootCmd.AddCommand(checkinCmd)
}
