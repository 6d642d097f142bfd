package cmd

import (
	"fmt"
	"os"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/Kashuab/openpark/internal/api"
	"github.com/Kashuab/openpark/internal/engine"
)

var qrOut string

var qrCmd = &cobra.Command{
	Use:   "qr <slot>",
	Short: "Write a check-in QR code for a booked slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot := engine.NormalizeSlotID(args[0])
		if _, err := eng.Get(cmd.Context(), slot); err != nil {
			return err
		}

		out := qrOut
		if out == "" {
			out = fmt.Sprintf("checkin-%s.png", slot)
		}

		url := api.CheckInURL(cfg.Server.PublicURL, slot)
		if err := qrcode.WriteFile(url, qrcode.Medium, 256, out); err != nil {
			return fmt.Errorf("failed to write qr code: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Wrote %s (%s)\n", out, url)
		return nil
	},
}

func init() {
	qrCmd.Flags().StringVar(&qrOut, "out", "", "output PNG path (default: checkin-<slot>.png)")
	rootCmd.AddCommand(qrCmd)
}
