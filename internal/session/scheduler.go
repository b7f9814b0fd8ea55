package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/logger"
)

// DefaultRefreshInterval matches the shortest token lifetime seen on Aruba
// products.
const DefaultRefreshInterval = 7200 * time.Second

// ErrNotRenewable is returned by ScheduleRefresh for providers whose login
// must not be repeated on a timer.
var ErrNotRenewable = errors.New("provider does not support scheduled renewal")

// RenewFunc renews a session.
type RenewFunc func(ctx context.Context) error

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithOnError registers a hook that receives every renewal failure.
func WithOnError(fn func(error)) SchedulerOption {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// WithOnRenew registers a hook that runs after every successful renewal.
func WithOnRenew(fn func()) SchedulerOption {
	return func(s *Scheduler) {
		s.onRenew = fn
	}
}

// WithSchedulerLogger replaces the component logger.
func WithSchedulerLogger(l zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.log = l
	}
}

// Scheduler calls a RenewFunc once per elapsed interval until cancelled.
// Failures are logged and the loop carries on.
type Scheduler struct {
	renew    RenewFunc
	interval time.Duration
	log      zerolog.Logger
	onError  func(error)
	onRenew  func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. A non-positive interval selects
// DefaultRefreshInterval.
func NewScheduler(renew RenewFunc, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	s := &Scheduler{
		renew:    renew,
		interval: interval,
		log:      logger.For("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleRefresh returns a scheduler that refreshes sess, or ErrNotRenewable
// when its provider cannot be renewed on a timer.
func ScheduleRefresh(sess *Session, interval time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if !sess.Capabilities().Renew {
		return nil, ErrNotRenewable
	}
	opts = append([]SchedulerOption{WithSchedulerLogger(sess.log.With().Str("component", "scheduler").Logger())}, opts...)
	return NewScheduler(sess.Refresh, interval, opts...), nil
}

// Interval returns the renewal interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("refresh_interval", s.interval).Msg("Starting periodic session refresh")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("Periodic session refresh stopped")
			return
		case <-ticker.C:
			// both cases may be ready at once
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.log.Debug().Msg("Running periodic session refresh...")
	if err := s.renew(ctx); err != nil {
		s.log.Error().Err(err).Msg("Error during periodic session refresh")
		if s.onError != nil {
			s.onError(err)
		}
		return
	}
	if s.onRenew != nil {
		s.onRenew()
	}
}

// Start runs the scheduler in a goroutine. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
}

// Stop cancels a started scheduler and waits for it to return. No renewal
// starts after Stop returns. A stopped scheduler can be started again.
func (s *Scheduler) Stop() {
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
