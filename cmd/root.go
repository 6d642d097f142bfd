package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Kashuab/openpark/internal/config"
	"github.com/Kashuab/openpark/internal/engine"
	"github.com/Kashuab/openpark/internal/logging"
	"github.com/Kashuab/openpark/internal/secretstore"
	secretmem "github.com/Kashuab/openpark/internal/secretstore/memory"
	"github.com/Kashuab/openpark/internal/ticket"
)

var (
	cfgFile    string
	ticketFile string

	cfg    *config.Config
	logger zerolog.Logger
	eng    *engine.Engine
)

var rootCmd = &cobra.Command{
	Use:   "openpark",
	Short: "Book, check in to and release parking slots",
	Long: `openpark runs the parking slot reservation lifecycle.
A booking holds a slot for a short grace window; checking in within the window
turns it into an occupied slot, otherwise the sweeper frees it again.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip engine init for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		v := viper.New()
		config.SetDefaults(v)
		config.BindEnv(v)

		explicit := true
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		} else if envCfg := os.Getenv("OPENPARK_CONFIG"); envCfg != "" {
			v.SetConfigFile(envCfg)
		} else {
			explicit = false
			v.SetConfigName("openpark")
			v.SetConfigType("yaml")
			v.AddConfigPath(".")
			home, _ := os.UserHomeDir()
			if home != "" {
				v.AddConfigPath(home + "/.config/openpark")
			}
		}

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if explicit || !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config: %w", err)
			}
		}

		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}

		logger = logging.Setup(cfg.Environment)

		if err := checkStoreScope(cmd.Name(), cfg.Backend.Store.Type); err != nil {
			return err
		}

		ss, err := newSecretStore(cmd.Context(), cfg.Backend.Secrets)
		if err != nil {
			return fmt.Errorf("failed to create secret store: %w", err)
		}
		defer ss.Close()

		store, err := newSlotStore(cmd.Context(), cfg.Backend.Store, ss)
		if err != nil {
			return fmt.Errorf("failed to create slot store: %w", err)
		}

		if ticketFile == "" {
			if envTF := os.Getenv("OPENPARK_TICKET_FILE"); envTF != "" {
				ticketFile = envTF
			} else {
				ticketFile = ticket.DefaultPath
			}
		}

		eng = &engine.Engine{
			Store:  store,
			Grace:  cfg.Reservation.GraceWindow,
			Logger: logger.With().Str("component", "engine").Logger(),
		}

		logger.Debug().
			Str("store", cfg.Backend.Store.Type).
			Dur("grace_window", eng.GraceWindow()).
			Msg("engine ready")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if eng != nil {
			return eng.Close()
		}
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: ./openpark.yaml)")
	rootCmd.PersistentFlags().StringVar(&ticketFile, "ticket-file", "", "ticket file path (default: .openpark)")
}

// checkStoreScope refuses the in-process memory store for one-shot verbs:
// their bookings would vanish when the process exits.
func checkStoreScope(verb, storeType string) error {
	if storeType != "memory" || verb == "serve" {
		return nil
	}
	return fmt.Errorf("%q needs a shared store, but backend.store.type is memory; "+
		"configure firestore, sql or mongo, or use the HTTP API of openpark serve", verb)
}

func newSecretStore(ctx context.Context, cfg config.SecretBackendConfig) (secretstore.SecretStore, error) {
	switch cfg.Type {
	case "", "memory":
		return secretmem.New(), nil
	case "gcp-secret-manager":
		return newGCPSecretStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown secret backend type: %q", cfg.Type)
	}
}
