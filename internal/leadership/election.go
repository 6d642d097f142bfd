package leadership

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Kashuab/openpark/internal/telemetry"
)

const (
	defaultElectionKey     = "openpark:leader:sweeper"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
)

// releaseScript deletes the key only if this instance still owns it.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Config configures leader election. Zero values fall back to defaults.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Key is the Redis key holding the current leader's instance ID.
	Key string

	// Lease is how long leadership survives without renewal.
	Lease time.Duration

	// RenewalInterval is how often the leader renews and followers campaign.
	// Defaults to a third of Lease.
	RenewalInterval time.Duration

	InstanceID string
}

func (c Config) withDefaults() Config {
	if c.Key == "" {
		c.Key = defaultElectionKey
	}
	if c.Lease <= 0 {
		c.Lease = defaultLeaseDuration
	}
	if c.RenewalInterval <= 0 {
		c.RenewalInterval = c.Lease / 3
		if c.RenewalInterval <= 0 {
			c.RenewalInterval = defaultRenewalInterval
		}
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.New().String()
	}
	return c
}

// Election keeps at most one instance sweeping when several share a store.
// It satisfies sweeper.Leader.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	leader   atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New connects to Redis and returns an election that has not started
// campaigning yet.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Election, error) {
	cfg = cfg.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger = logger.With().
		Str("component", "leader_election").
		Str("instance_id", cfg.InstanceID).
		Logger()
	logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("connected to redis for leader election")

	return &Election{
		client: client,
		logger: logger,
		config: cfg,
	}, nil
}

func (e *Election) InstanceID() string {
	return e.config.InstanceID
}

func (e *Election) IsLeader() bool {
	return e.leader.Load()
}

// Start campaigns once immediately, then on every renewal interval until
// ctx is cancelled or Stop is called.
func (e *Election) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.logger.Info().Dur("lease", e.config.Lease).Msg("starting leader election")

	go func() {
		defer close(e.done)
		e.campaign(ctx)

		ticker := time.NewTicker(e.config.RenewalInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.campaign(ctx)
			}
		}
	}()
}

// Stop ends the campaign, gives up the lease if held and closes the client.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.done
		}

		if e.leader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if relErr := e.client.Eval(ctx, releaseScript, []string{e.config.Key}, e.config.InstanceID).Err(); relErr != nil {
				e.logger.Error().Err(relErr).Msg("failed to release leadership")
			} else {
				e.logger.Info().Msg("released leadership")
			}
			e.setLeader(false)
		}

		err = e.client.Close()
	})
	return err
}

// Leader returns the instance ID currently holding the lease, or "" if none.
func (e *Election) Leader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.config.Key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context) {
	acquired, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("failed to acquire leadership")
		}
		e.setLeader(false)
		return
	}
	e.setLeader(acquired)
}

func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.Key, e.config.InstanceID, e.config.Lease).Result()
	if err != nil {
		return false, fmt.Errorf("set lock: %w", err)
	}
	if ok {
		return true, nil
	}

	current, err := e.client.Get(ctx, e.config.Key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get current leader: %w", err)
	}
	if current != e.config.InstanceID {
		return false, nil
	}

	if err := e.client.Expire(ctx, e.config.Key, e.config.Lease).Err(); err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	return true, nil
}

func (e *Election) setLeader(leader bool) {
	if e.leader.Swap(leader) == leader {
		return
	}

	id := e.config.InstanceID
	if leader {
		e.logger.Info().Msg("acquired leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(id).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(id, "acquired").Inc()
	} else {
		e.logger.Warn().Msg("lost leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(id).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(id, "lost").Inc()
	}
}
