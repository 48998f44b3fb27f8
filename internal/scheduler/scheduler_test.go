package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearpoint-monitor/internal/monitoring"
)

type fakeRunner struct {
	calls       int32
	err         error
	sawDeadline int32
	settings    monitoring.Settings
}

func (r *fakeRunner) RunCycle(ctx context.Context) (monitoring.CycleResult, error) {
	atomic.AddInt32(&r.calls, 1)
	if _, ok := ctx.Deadline(); ok {
		atomic.StoreInt32(&r.sawDeadline, 1)
	}
	if r.err != nil {
		return monitoring.CycleResult{}, r.err
	}
	return monitoring.CycleResult{DevicesChecked: 3}, nil
}

func (r *fakeRunner) Settings(ctx context.Context) monitoring.Settings {
	return r.settings
}

func (r *fakeRunner) count() int {
	return int(atomic.LoadInt32(&r.calls))
}

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *fakePurger) PurgeResolvedAlerts(ctx context.Context, before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, before)
	return 2, nil
}

func (p *fakePurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedInterval(d time.Duration) Option {
	return WithIntervalFunc(func(monitoring.Settings) time.Duration { return d })
}

func startScheduler(t *testing.T, s *Scheduler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestSchedulerRunsImmediatelyAndPeriodically(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, WithLogger(quietLogger()), fixedInterval(20*time.Millisecond))

	cancel, done := startScheduler(t, s)

	require.Eventually(t, func() bool { return runner.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	st := s.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 20*time.Millisecond, st.Interval)
	assert.False(t, st.NextRun.IsZero())
	require.NotNil(t, st.LastResult)
	assert.Equal(t, 3, st.LastResult.DevicesChecked)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.sawDeadline))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, s.Status().Running)
}

func TestSchedulerFirstRunIsImmediate(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, WithLogger(quietLogger()), fixedInterval(time.Hour))

	startScheduler(t, s)

	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, time.Hour, s.Status().Interval)
}

func TestSchedulerUsesSettingsInterval(t *testing.T) {
	runner := &fakeRunner{settings: monitoring.Settings{MonitoringIntervalMinutes: 7}}
	s := New(runner, WithLogger(quietLogger()))

	startScheduler(t, s)

	require.Eventually(t, func() bool { return s.Status().Running }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 7*time.Minute, s.Status().Interval)
}

func TestSchedulerRearmsOnIntervalChange(t *testing.T) {
	runner := &fakeRunner{}
	var current atomic.Int64
	current.Store(int64(time.Hour))

	s := New(runner,
		WithLogger(quietLogger()),
		WithRefreshInterval(10*time.Millisecond),
		WithIntervalFunc(func(monitoring.Settings) time.Duration { return time.Duration(current.Load()) }),
	)

	startScheduler(t, s)
	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, 5*time.Millisecond)

	current.Store(int64(15 * time.Millisecond))

	require.Eventually(t, func() bool { return runner.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 15*time.Millisecond, s.Status().Interval)
}

func TestSchedulerRecordsFailures(t *testing.T) {
	runner := &fakeRunner{err: errors.New("registry down")}
	s := New(runner, WithLogger(quietLogger()), fixedInterval(time.Hour))

	startScheduler(t, s)

	require.Eventually(t, func() bool { return s.Status().LastError != "" }, time.Second, 5*time.Millisecond)
	st := s.Status()
	assert.Equal(t, "registry down", st.LastError)
	assert.Equal(t, 0, st.CyclesRun)
	assert.Nil(t, st.LastResult)
}

func TestSchedulerSkipsOverlappingCycle(t *testing.T) {
	runner := &fakeRunner{err: monitoring.ErrCycleInProgress}
	s := New(runner, WithLogger(quietLogger()), fixedInterval(time.Hour))

	startScheduler(t, s)

	require.Eventually(t, func() bool { return !s.Status().LastRun.IsZero() }, time.Second, 5*time.Millisecond)
	st := s.Status()
	assert.Empty(t, st.LastError)
	assert.Equal(t, 0, st.CyclesRun)
}

func TestSchedulerRetentionPurge(t *testing.T) {
	runner := &fakeRunner{settings: monitoring.Settings{AlertRetentionDays: 3}}
	purger := &fakePurger{}
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	s := New(runner,
		WithLogger(quietLogger()),
		fixedInterval(time.Hour),
		WithRetention(purger, 20*time.Millisecond),
	)
	s.clock = func() time.Time { return now }

	startScheduler(t, s)

	require.Eventually(t, func() bool { return purger.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	purger.mu.Lock()
	defer purger.mu.Unlock()
	assert.Equal(t, now.Add(-3*24*time.Hour), purger.cutoffs[0])
}

func TestPurgeExpired(t *testing.T) {
	purger := &fakePurger{}
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	n, err := PurgeExpired(context.Background(), purger, 14*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC), purger.cutoffs[0])
}
