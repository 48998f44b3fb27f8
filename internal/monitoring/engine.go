package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"clearpoint-monitor/internal/health"
	"clearpoint-monitor/internal/types"
)

const defaultFetchConcurrency = 8

// Engine runs monitoring cycles. Only one cycle runs at a time; no state
// survives between cycles other than what lives in the alert store.
type Engine struct {
	settings  SettingsSource
	registry  DeviceRegistry
	snapshots SnapshotProvider
	store     AlertStore
	notifier  Notifier
	recorder  NotificationRecorder

	logger      *logrus.Logger
	clock       func() time.Time
	fallback    Settings
	concurrency int

	running sync.Mutex
	mu      sync.RWMutex
	last    *CycleResult
}

// EngineOption is a functional option for configuring the Engine
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine
func WithLogger(logger *logrus.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithFallbackSettings sets the settings used when the settings source fails
func WithFallbackSettings(s Settings) EngineOption {
	return func(e *Engine) {
		e.fallback = s
	}
}

// WithFetchConcurrency limits concurrent snapshot fetches
func WithFetchConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithNotificationRecorder enables the notification log
func WithNotificationRecorder(r NotificationRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine creates a monitoring engine over its collaborators
func NewEngine(
	settings SettingsSource,
	registry DeviceRegistry,
	snapshots SnapshotProvider,
	store AlertStore,
	notifier Notifier,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		settings:    settings,
		registry:    registry,
		snapshots:   snapshots,
		store:       store,
		notifier:    notifier,
		logger:      logrus.New(),
		clock:       time.Now,
		fallback:    DefaultSettings(),
		concurrency: defaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LastResult returns the result of the most recent completed cycle
func (e *Engine) LastResult() (CycleResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return CycleResult{}, false
	}
	return *e.last, true
}

// Settings returns the current settings, falling back the same way a cycle does
func (e *Engine) Settings(ctx context.Context) Settings {
	return e.loadSettings(ctx)
}

// RunCycle performs one full monitoring pass. It fails only when the device
// registry is unreachable, when the context ends, or when another cycle is
// already running. Per-device failures are logged and counted around.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	if !e.running.TryLock() {
		return CycleResult{}, ErrCycleInProgress
	}
	defer e.running.Unlock()

	start := e.clock()
	result := CycleResult{Timestamp: start}
	logger := e.logger.WithField("component", "monitoring-engine")

	settings := e.loadSettings(ctx)
	thresholds := ThresholdsFromSettings(settings)

	inventory, err := e.registry.ListDevices(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load device registry")
		return result, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	state, err := LoadStateTable(ctx, e.store)
	if err != nil {
		logger.WithError(err).Warn("Falling back to per-device open alert lookups")
	}

	snaps, err := e.fetchSnapshots(ctx, inventory)
	if err != nil {
		return result, err
	}

	lifecycle := NewLifecycle(e.store, state, logger, start)

	classified := make([]ClassifiedDevice, 0, len(inventory.Gateways))
	for _, gw := range inventory.Gateways {
		c := health.ClassifyGateway(gw, snaps.gateways[gw.ID], start, thresholds)
		classified = append(classified, ClassifiedDevice{Device: gw, Classification: c})
		lifecycle.Evaluate(ctx, gw, c.Findings)
		result.DevicesChecked++
	}

	// Every gateway must be classified before any camera is evaluated.
	suppressed := ResolveSuppression(classified)
	if len(suppressed) > 0 {
		logger.WithField("customers", suppressed.Customers()).Info("Suppressing camera offline alerts for customers with offline gateways")
	}

	for _, cam := range inventory.Cameras {
		if err := ctx.Err(); err != nil {
			break
		}
		snap := snaps.cameras[cam.ID]
		c := health.ClassifyCamera(cam, snap, start, thresholds)
		findings := c.Findings
		if suppressed.Contains(cam.CustomerID) {
			var removed bool
			findings, removed = withoutOfflineFindings(findings)
			if removed {
				result.Suppressed++
			}
		}
		lifecycle.Evaluate(ctx, cam, findings)
		lifecycle.EvaluateRecovery(ctx, cam, c, snap)
		result.DevicesChecked++
	}

	stored := lifecycle.Flush(ctx)
	result.AlertsCreated = len(stored)
	result.AlertsResolved = lifecycle.Resolved()

	candidates := make([]Candidate, 0, len(stored)+len(lifecycle.Recoveries()))
	for _, a := range stored {
		candidates = append(candidates, Candidate{Notification: NotificationForAlert(a)})
	}
	candidates = append(candidates, lifecycle.Recoveries()...)

	dispatcher := NewDispatcher(e.store, e.notifier, e.recorder, logger)
	dispatched := dispatcher.Dispatch(ctx, settings, candidates, start)
	result.NotificationsSent = dispatched.Sent
	result.NotificationsSkipped = dispatched.Skipped
	result.NotificationsFailed = dispatched.Failed
	result.Duration = e.clock().Sub(start)

	e.mu.Lock()
	e.last = &result
	e.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"alerts_created":        result.AlertsCreated,
		"alerts_resolved":       result.AlertsResolved,
		"notifications_sent":    result.NotificationsSent,
		"notifications_skipped": result.NotificationsSkipped,
		"devices_checked":       result.DevicesChecked,
		"suppressed":            result.Suppressed,
		"duration":              result.Duration.String(),
	}).Info("Monitoring cycle completed")

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("monitoring cycle interrupted: %w", err)
	}
	return result, nil
}

func (e *Engine) loadSettings(ctx context.Context) Settings {
	if e.settings == nil {
		return e.fallback.WithDefaults()
	}
	s, err := e.settings.GetSettings(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Failed to load settings, using defaults")
		return e.fallback.WithDefaults()
	}
	return s.WithDefaults()
}

type snapshotSet struct {
	cameras  map[string]*types.CameraHealth
	gateways map[string]*types.GatewayHealth
}

// fetchSnapshots loads every device's snapshot concurrently. A failed fetch is
// logged and treated as no data.
func (e *Engine) fetchSnapshots(ctx context.Context, inv types.Inventory) (*snapshotSet, error) {
	set := &snapshotSet{
		cameras:  make(map[string]*types.CameraHealth, len(inv.Cameras)),
		gateways: make(map[string]*types.GatewayHealth, len(inv.Gateways)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, gw := range inv.Gateways {
		gw := gw
		g.Go(func() error {
			snap, err := e.snapshots.GetGatewayHealth(gctx, gw.ID)
			if err != nil {
				e.logger.WithError(err).WithField("device_id", gw.ID).Warn("Failed to fetch gateway health, treating as no data")
				snap = nil
			}
			mu.Lock()
			set.gateways[gw.ID] = snap
			mu.Unlock()
			return nil
		})
	}
	for _, cam := range inv.Cameras {
		cam := cam
		g.Go(func() error {
			snap, err := e.snapshots.GetCameraHealth(gctx, cam.ID)
			if err != nil {
				e.logger.WithError(err).WithField("device_id", cam.ID).Warn("Failed to fetch camera health, treating as no data")
				snap = nil
			}
			mu.Lock()
			set.cameras[cam.ID] = snap
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot fetch interrupted: %w", err)
	}
	return set, nil
}
