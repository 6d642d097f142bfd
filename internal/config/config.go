package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Environment    string               `yaml:"environment"     mapstructure:"environment"`
	Backend        BackendConfig        `yaml:"backend"         mapstructure:"backend"`
	Reservation    ReservationConfig    `yaml:"reservation"     mapstructure:"reservation"`
	Server         ServerConfig         `yaml:"server"          mapstructure:"server"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election" mapstructure:"leader_election"`
}

type BackendConfig struct {
	Store   StoreBackendConfig  `yaml:"store"   mapstructure:"store"`
	Secrets SecretBackendConfig `yaml:"secrets" mapstructure:"secrets"`
}

// StoreBackendConfig selects where reservations live. Only the fields of the
// chosen type are read.
type StoreBackendConfig struct {
	Type string `yaml:"type" mapstructure:"type"`

	// firestore
	Project    string `yaml:"project"    mapstructure:"project"`
	Collection string `yaml:"collection" mapstructure:"collection"`

	// sql
	Driver    string `yaml:"driver"     mapstructure:"driver"`
	DSN       string `yaml:"dsn"        mapstructure:"dsn"`
	DSNSecret string `yaml:"dsn_secret" mapstructure:"dsn_secret"`

	// mongo
	URI      string `yaml:"uri"      mapstructure:"uri"`
	Database string `yaml:"database" mapstructure:"database"`
}

type SecretBackendConfig struct {
	Type    string `yaml:"type"    mapstructure:"type"`
	Project string `yaml:"project" mapstructure:"project"`
}

type ReservationConfig struct {
	GraceWindow   time.Duration `yaml:"grace_window"   mapstructure:"grace_window"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	SweepTimeout  time.Duration `yaml:"sweep_timeout"  mapstructure:"sweep_timeout"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"            mapstructure:"addr"`
	PublicURL      string   `yaml:"public_url"      mapstructure:"public_url"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type LeaderElectionConfig struct {
	Enabled       bool          `yaml:"enabled"        mapstructure:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"     mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db"       mapstructure:"redis_db"`
	Key           string        `yaml:"key"            mapstructure:"key"`
	Lease         time.Duration `yaml:"lease"          mapstructure:"lease"`
}

// SetDefaults registers the values used when the config file and
// environment leave a key unset. Every key needs a default, even an empty
// one, or Unmarshal will not see its OPENPARK_* override.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("backend.store.type", "memory")
	v.SetDefault("backend.store.project", "")
	v.SetDefault("backend.store.driver", "")
	v.SetDefault("backend.store.dsn", "")
	v.SetDefault("backend.store.dsn_secret", "")
	v.SetDefault("backend.store.uri", "")
	v.SetDefault("backend.store.collection", "reservations")
	v.SetDefault("backend.store.database", "openpark")
	v.SetDefault("backend.secrets.type", "memory")
	v.SetDefault("backend.secrets.project", "")
	v.SetDefault("reservation.grace_window", "5s")
	v.SetDefault("reservation.sweep_interval", "1s")
	v.SetDefault("reservation.sweep_timeout", "5s")
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.public_url", "http://localhost:5000")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("leader_election.enabled", false)
	v.SetDefault("leader_election.redis_addr", "localhost:6379")
	v.SetDefault("leader_election.redis_password", "")
	v.SetDefault("leader_election.redis_db", 0)
	v.SetDefault("leader_election.key", "openpark:leader:sweeper")
	v.SetDefault("leader_election.lease", "15s")
}

// BindEnv lets OPENPARK_* environment variables override config keys,
// e.g. OPENPARK_SERVER_ADDR for server.addr.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("openpark")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	store := cfg.Backend.Store
	switch store.Type {
	case "":
		return fmt.Errorf("backend.store.type is required")
	case "memory":
	case "firestore":
		if store.Project == "" {
			return fmt.Errorf("backend.store.project is required for firestore")
		}
		if store.Collection == "" {
			return fmt.Errorf("backend.store.collection is required for firestore")
		}
	case "sql":
		if store.Driver == "" {
			return fmt.Errorf("backend.store.driver is required for sql")
		}
		if store.DSN == "" && store.DSNSecret == "" {
			return fmt.Errorf("backend.store.dsn or backend.store.dsn_secret is required for sql")
		}
	case "mongo":
		if store.URI == "" {
			return fmt.Errorf("backend.store.uri is required for mongo")
		}
	default:
		return fmt.Errorf("unknown store backend type: %q", store.Type)
	}

	if store.DSNSecret != "" && cfg.Backend.Secrets.Type == "" {
		return fmt.Errorf("backend.secrets.type is required when backend.store.dsn_secret is set")
	}

	if cfg.Reservation.GraceWindow <= 0 {
		return fmt.Errorf("reservation.grace_window must be > 0")
	}
	if cfg.Reservation.SweepInterval <= 0 {
		return fmt.Errorf("reservation.sweep_interval must be > 0")
	}

	if cfg.LeaderElection.Enabled {
		if cfg.LeaderElection.RedisAddr == "" {
			return fmt.Errorf("leader_election.redis_addr is required when leader election is enabled")
		}
		if cfg.LeaderElection.Lease <= 0 {
			return fmt.Errorf("leader_election.lease must be > 0")
		}
	}
	return nil
}
