package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Kashuab/openpark/internal/engine"
	"github.com/Kashuab/openpark/internal/ticket"
)

var releaseCmd = &cobra.Command{
	Use:   "release [slot]",
	Short: "Release a booked or occupied slot",
	Long: `Release a booked or occupied slot. With no arguments, releases the slot
from the local ticket file and removes the ticket.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := slotArg(args)
		if err != nil {
			return err
		}

		err = eng.Release(cmd.Context(), slot)
		if err != nil && !errors.Is(err, engine.ErrSlotNotFound) {
			return err
		}

		// A ticket for a slot the sweeper already reclaimed is stale either way.
		if t, loadErr := ticket.Load(ticketFile); loadErr == nil && t.SlotID == slot {
			if delErr := ticket.Delete(ticketFile); delErr != nil {
				return delErr
			}
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Released slot %q\n", slot)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(releaseCmd)
}
