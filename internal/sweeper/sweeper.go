package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kashuab/openpark/internal/slotstore"
	"github.com/Kashuab/openpark/internal/telemetry"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval = time.Second
	DefaultTimeout  = 5 * time.Second
)

// Leader reports whether this process should do singleton work. Sweeping on
// several instances at once is safe; a leader only avoids duplicate queries.
type Leader interface {
	IsLeader() bool
}

// Sweeper periodically deletes bookings whose check-in window ended without
// a check-in. A reservation can stay visible for up to one Interval past
// its nominal expiry.
type Sweeper struct {
	Store    slotstore.SlotStore
	Grace    time.Duration
	Interval time.Duration
	Timeout  time.Duration
	Leader   Leader
	Logger   zerolog.Logger
	Now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Sweep deletes every booked, unchecked reservation with BookedAt before
// now minus the grace window and returns how many were reclaimed. Both the query and the
// delete apply the same predicate, so a check-in that lands in between keeps
// its record.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	expired, err := s.Store.QueryExpired(ctx, now, s.grace())
	if err != nil {
		telemetry.SweeperErrorsTotal.WithLabelValues("query").Inc()
		return 0, fmt.Errorf("query expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if e := s.Logger.Debug(); e.Enabled() {
		ids := make([]string, len(expired))
		for i, r := range expired {
			ids[i] = r.SlotID
		}
		e.Strs("slots", ids).Msg("reclaiming expired reservations")
	}

	n, err := s.Store.DeleteMany(ctx, slotstore.Expired(now, s.grace()))
	if err != nil {
		telemetry.SweeperErrorsTotal.WithLabelValues("delete").Inc()
		return 0, fmt.Errorf("delete expired reservations: %w", err)
	}

	telemetry.SweeperReclaimedTotal.Add(float64(n))
	return n, nil
}

// Run sweeps on every tick until ctx is cancelled. Storage failures are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	s.Logger.Info().
		Dur("interval", interval).
		Dur("grace_window", s.grace()).
		Msg("sweeper loop started")

	// kick immediately
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info().Msg("sweeper loop stopped")
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	telemetry.SweeperTicksTotal.Inc()

	if s.Leader != nil && !s.Leader.IsLeader() {
		return
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	n, err := s.Sweep(tickCtx, s.now())
	telemetry.SweeperDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.Logger.Error().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		s.Logger.Info().Int64("reclaimed", n).Msg("deleted expired bookings")
	}
}

// grace matches Engine.GraceWindow so both agree on an unset window.
func (s *Sweeper) grace() time.Duration {
	if s.Grace <= 0 {
		return slotstore.DefaultGraceWindow
	}
	return s.Grace
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start runs the sweep loop in the background. Calling Start on a running
// sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
}

// Stop cancels the loop started by Start and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
