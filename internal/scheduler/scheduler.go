package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"clearpoint-monitor/internal/monitoring"
)

const (
	// DefaultRefreshInterval is how often the monitoring interval is re-read
	DefaultRefreshInterval = 5 * time.Minute

	// DefaultCycleTimeout bounds a single scheduled cycle
	DefaultCycleTimeout = 5 * time.Minute

	// DefaultCleanupInterval is the time between retention purges
	DefaultCleanupInterval = 24 * time.Hour
)

// Runner executes monitoring cycles and exposes the current settings
type Runner interface {
	RunCycle(ctx context.Context) (monitoring.CycleResult, error)
	Settings(ctx context.Context) monitoring.Settings
}

// Purger removes resolved alerts older than a cutoff
type Purger interface {
	PurgeResolvedAlerts(ctx context.Context, before time.Time) (int64, error)
}

// Status describes the scheduler state
type Status struct {
	Running    bool                    `json:"running"`
	Interval   time.Duration           `json:"interval"`
	NextRun    time.Time               `json:"nextRun,omitempty"`
	LastRun    time.Time               `json:"lastRun,omitempty"`
	LastError  string                  `json:"lastError,omitempty"`
	CyclesRun  int                     `json:"cyclesRun"`
	LastResult *monitoring.CycleResult `json:"lastResult,omitempty"`
}

// Scheduler triggers monitoring cycles on the interval taken from settings
type Scheduler struct {
	runner Runner
	purger Purger
	logger *logrus.Logger

	refreshInterval time.Duration
	cycleTimeout    time.Duration
	cleanupInterval time.Duration
	intervalFor     func(monitoring.Settings) time.Duration
	clock           func() time.Time

	mu     sync.RWMutex
	status Status
}

// Option is a functional option for configuring the Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger for the scheduler
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithRefreshInterval sets how often the interval setting is re-read
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithCycleTimeout bounds each scheduled cycle
func WithCycleTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.cycleTimeout = d
		}
	}
}

// WithRetention enables periodic purging of old resolved alerts
func WithRetention(purger Purger, every time.Duration) Option {
	return func(s *Scheduler) {
		s.purger = purger
		if every > 0 {
			s.cleanupInterval = every
		}
	}
}

// WithIntervalFunc overrides how the cycle interval is derived from settings
func WithIntervalFunc(fn func(monitoring.Settings) time.Duration) Option {
	return func(s *Scheduler) {
		s.intervalFor = fn
	}
}

// New creates a scheduler for the runner
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:          runner,
		logger:          logrus.New(),
		refreshInterval: DefaultRefreshInterval,
		cycleTimeout:    DefaultCycleTimeout,
		cleanupInterval: DefaultCleanupInterval,
		intervalFor:     monitoring.Settings.MonitoringInterval,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns a snapshot of the scheduler state
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.LastResult != nil {
		r := *st.LastResult
		st.LastResult = &r
	}
	return st
}

// Start runs a cycle immediately and then on every interval until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	logger := s.logger.WithField("component", "scheduler")

	interval := s.currentInterval(ctx)
	logger.WithField("interval", interval.String()).Info("Starting monitoring scheduler")

	s.mu.Lock()
	s.status.Running = true
	s.status.Interval = interval
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.status.Running = false
		s.status.NextRun = time.Time{}
		s.mu.Unlock()
	}()

	s.runCycle(ctx, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.setNextRun(interval)

	refresh := time.NewTicker(s.refreshInterval)
	defer refresh.Stop()

	var cleanup <-chan time.Time
	if s.purger != nil {
		s.purge(ctx, logger)
		t := time.NewTicker(s.cleanupInterval)
		defer t.Stop()
		cleanup = t.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping monitoring scheduler")
			return ctx.Err()

		case <-ticker.C:
			s.runCycle(ctx, logger)
			s.setNextRun(interval)

		case <-refresh.C:
			next := s.currentInterval(ctx)
			if next == interval {
				continue
			}
			logger.WithFields(logrus.Fields{
				"old_interval": interval.String(),
				"new_interval": next.String(),
			}).Info("Monitoring interval changed")
			interval = next
			ticker.Reset(interval)
			s.mu.Lock()
			s.status.Interval = interval
			s.mu.Unlock()
			s.setNextRun(interval)

		case <-cleanup:
			s.purge(ctx, logger)
		}
	}
}

func (s *Scheduler) currentInterval(ctx context.Context) time.Duration {
	interval := s.intervalFor(s.runner.Settings(ctx))
	if interval <= 0 {
		interval = monitoring.DefaultSettings().MonitoringInterval()
	}
	return interval
}

func (s *Scheduler) setNextRun(interval time.Duration) {
	s.mu.Lock()
	s.status.NextRun = s.clock().Add(interval)
	s.mu.Unlock()
}

func (s *Scheduler) runCycle(ctx context.Context, logger *logrus.Entry) {
	cycleCtx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()

	result, err := s.runner.RunCycle(cycleCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastRun = s.clock()

	switch {
	case errors.Is(err, monitoring.ErrCycleInProgress):
		logger.Debug("Skipping scheduled cycle, another cycle is running")
	case err != nil:
		s.status.LastError = err.Error()
		logger.WithError(err).Error("Scheduled monitoring cycle failed")
	default:
		s.status.LastError = ""
		s.status.CyclesRun++
		s.status.LastResult = &result
	}
}

func (s *Scheduler) purge(ctx context.Context, logger *logrus.Entry) {
	retention := s.runner.Settings(ctx).AlertRetention()
	n, err := PurgeExpired(ctx, s.purger, retention, s.clock())
	if err != nil {
		logger.WithError(err).Error("Failed to purge resolved alerts")
		return
	}
	if n > 0 {
		logger.WithField("deleted", n).Info("Purged resolved alerts")
	}
}

// PurgeExpired deletes resolved alerts older than the retention window
func PurgeExpired(ctx context.Context, purger Purger, retention time.Duration, now time.Time) (int64, error) {
	return purger.PurgeResolvedAlerts(ctx, now.Add(-retention))
}
