package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kashuab/openpark/internal/sweeper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Free every booking whose check-in window has ended",
	Long: `Run one expiry sweep and exit. Useful from cron when no openpark serve
process is running against the store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSweeper(nil)

		ctx := cmd.Context()
		if cfg.Reservation.SweepTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Reservation.SweepTimeout)
			defer cancel()
		}

		n, err := s.Sweep(ctx, time.Now())
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Reclaimed %d expired booking(s)\n", n)
		return nil
	},
}

func newSweeper(leader sweeper.Leader) *sweeper.Sweeper {
	return &sweeper.Sweeper{
		Store:    eng.Store,
		Grace:    eng.GraceWindow(),
		Interval: cfg.Reservation.SweepInterval,
		Timeout:  cfg.Reservation.SweepTimeout,
		Leader:   leader,
		Logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
