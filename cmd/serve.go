package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kashuab/openpark/internal/api"
	"github.com/Kashuab/openpark/internal/identity"
	"github.com/Kashuab/openpark/internal/leadership"
	"github.com/Kashuab/openpark/internal/sweeper"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the expiry sweeper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var leader sweeper.Leader
		if cfg.LeaderElection.Enabled {
			le := cfg.LeaderElection
			election, err := leadership.New(ctx, leadership.Config{
				RedisAddr:     le.RedisAddr,
				RedisPassword: le.RedisPassword,
				RedisDB:       le.RedisDB,
				Key:           le.Key,
				Lease:         le.Lease,
				InstanceID:    identity.InstanceID(),
			}, logger)
			if err != nil {
				return err
			}
			election.Start(ctx)
			defer election.Stop()
			leader = election
		}

		sw := newSweeper(leader)
		sw.Start(ctx)
		defer sw.Stop()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		handler := api.New(eng, logger, api.Options{
			PublicURL:      cfg.Server.PublicURL,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}).Handler()

		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      35 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	rootCmd.AddCommand(serveCmd)
}
