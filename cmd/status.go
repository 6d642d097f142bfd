package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kashuab/openpark/internal/slotstore"
)

var (
	statusJSON     bool
	statusOccupied bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every booked and occupied slot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			rs  []slotstore.Reservation
			err error
		)
		if statusOccupied {
			rs, err = eng.ListOccupied(cmd.Context())
		} else {
			rs, err = eng.ListSlots(cmd.Context())
		}
		if err != nil {
			return err
		}

		sort.Slice(rs, func(i, j int) bool { return rs[i].SlotID < rs[j].SlotID })

		if statusJSON {
			return printStatusJSON(cmd.OutOrStdout(), rs)
		}
		return printStatusTable(cmd.OutOrStdout(), rs, time.Now(), eng.GraceWindow())
	},
}

func printStatusJSON(out io.Writer, rs []slotstore.Reservation) error {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func printStatusTable(out io.Writer, rs []slotstore.Reservation, now time.Time, grace time.Duration) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tSTATUS\tUSER\tBOOKED\tCHECK-IN LEFT")

	for _, r := range rs {
		left := "-"
		if !r.CheckedIn {
			if rem := r.Remaining(now, grace); rem > 0 {
				left = rem.Round(time.Second).String()
			} else {
				left = "expired"
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.SlotID, r.Status, r.Occupant, r.BookedAt.In(now.Location()).Format("2006-01-02 15:04:05"), left)
	}

	return w.Flush()
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	statusCmd.Flags().BoolVar(&statusOccupied, "occupied", false, "only show checked-in slots")
	rootCmd.AddCommand(statusCmd)
}
