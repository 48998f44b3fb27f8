package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clearpoint-monitor/internal/health"
	"clearpoint-monitor/internal/types"
)

// Candidate is a notification waiting for the dispatcher
type Candidate struct {
	Notification Notification
	// SkipCooldown is set for recovery notifications, which happen at most
	// once per resolved alert.
	SkipCooldown bool
}

// Lifecycle opens, deduplicates and auto-resolves alerts for one cycle.
// New alerts are buffered and persisted together by Flush.
type Lifecycle struct {
	store   AlertStore
	state   *StateTable
	logger  *logrus.Entry
	now     time.Time
	newID   func() string
	pending []types.Alert

	recoveries []Candidate
	resolved   int
}

// NewLifecycle creates a lifecycle manager bound to one cycle's state table
func NewLifecycle(store AlertStore, state *StateTable, logger *logrus.Entry, now time.Time) *Lifecycle {
	return &Lifecycle{
		store:  store,
		state:  state,
		logger: logger,
		now:    now,
		newID:  uuid.NewString,
	}
}

// Evaluate opens an alert for every finding that has no open alert yet
func (l *Lifecycle) Evaluate(ctx context.Context, device types.Device, findings []health.Finding) {
	for _, f := range findings {
		existing, err := l.state.Lookup(ctx, device.ID, f.Fault)
		if err != nil {
			l.logger.WithError(err).WithFields(logrus.Fields{
				"device_id":  device.ID,
				"fault_type": string(f.Fault),
			}).Warn("Skipping alert evaluation, open alert lookup failed")
			continue
		}
		if existing != nil {
			continue
		}

		alert := types.Alert{
			ID:           l.newID(),
			Type:         f.Fault,
			DeviceID:     device.ID,
			DeviceKind:   device.Kind,
			DeviceName:   device.Name,
			CustomerID:   device.CustomerID,
			CustomerName: device.CustomerName,
			Message:      f.Message,
			Severity:     f.Severity,
			CreatedAt:    l.now,
		}
		l.state.MarkOpen(alert)
		l.pending = append(l.pending, alert)

		l.logger.WithFields(logrus.Fields{
			"alert_id":   alert.ID,
			"device_id":  device.ID,
			"fault_type": string(f.Fault),
			"severity":   string(f.Severity),
		}).Info("Alert opened")
	}
}

// EvaluateRecovery resolves an open camera_offline alert once a fresh healthy
// snapshot confirms the camera is back. No other fault type auto-resolves.
func (l *Lifecycle) EvaluateRecovery(ctx context.Context, camera types.Device, c health.Classification, snap *types.CameraHealth) {
	if c.Offline() || !health.IsFreshRecovery(snap, l.now) {
		return
	}

	open, err := l.state.Lookup(ctx, camera.ID, types.FaultCameraOffline)
	if err != nil {
		l.logger.WithError(err).WithField("device_id", camera.ID).Warn("Skipping recovery check, open alert lookup failed")
		return
	}
	if open == nil {
		return
	}

	if err := l.store.ResolveAlert(ctx, open.ID, l.now); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"alert_id":  open.ID,
			"device_id": camera.ID,
		}).Error("Failed to resolve alert")
		return
	}
	l.state.MarkResolved(camera.ID, types.FaultCameraOffline)
	l.resolved++

	downtime := open.Downtime(l.now)
	l.recoveries = append(l.recoveries, Candidate{
		SkipCooldown: true,
		Notification: Notification{
			AlertID:      open.ID,
			Kind:         types.NotificationCameraOnline,
			DeviceID:     camera.ID,
			DeviceKind:   camera.Kind,
			DeviceName:   camera.Name,
			CustomerID:   camera.CustomerID,
			CustomerName: camera.CustomerName,
			Severity:     types.SeverityLow,
			Message:      fmt.Sprintf("Camera %s is back online after %s", camera.Name, downtime.Round(time.Second)),
			Timestamp:    l.now,
			Downtime:     downtime,
		},
	})

	l.logger.WithFields(logrus.Fields{
		"alert_id":  open.ID,
		"device_id": camera.ID,
		"downtime":  downtime.String(),
	}).Info("Camera recovered, alert resolved")
}

// Pending returns the alerts opened but not yet persisted
func (l *Lifecycle) Pending() []types.Alert {
	return l.pending
}

// Resolved returns the number of alerts auto-resolved so far
func (l *Lifecycle) Resolved() int {
	return l.resolved
}

// Recoveries returns the recovery notifications queued so far
func (l *Lifecycle) Recoveries() []Candidate {
	return l.recoveries
}

// Flush persists pending alerts as one batch. If the batch insert fails each
// alert is retried on its own. Only alerts that were stored are returned.
func (l *Lifecycle) Flush(ctx context.Context) []types.Alert {
	pending := l.pending
	l.pending = nil
	if len(pending) == 0 {
		return nil
	}

	err := l.store.InsertAlerts(ctx, pending)
	if err == nil {
		return pending
	}
	l.logger.WithError(err).WithField("count", len(pending)).Warn("Batch alert insert failed, inserting individually")

	stored := make([]types.Alert, 0, len(pending))
	for _, a := range pending {
		if err := l.store.InsertAlert(ctx, a); err != nil {
			l.logger.WithError(err).WithFields(logrus.Fields{
				"alert_id":   a.ID,
				"device_id":  a.DeviceID,
				"fault_type": string(a.Type),
			}).Error("Failed to insert alert")
			l.state.MarkResolved(a.DeviceID, a.Type)
			continue
		}
		stored = append(stored, a)
	}
	return stored
}

// NotificationForAlert builds the notification announcing a new alert
func NotificationForAlert(a types.Alert) Notification {
	return Notification{
		AlertID:      a.ID,
		Kind:         a.Type,
		DeviceID:     a.DeviceID,
		DeviceKind:   a.DeviceKind,
		DeviceName:   a.DeviceName,
		CustomerID:   a.CustomerID,
		CustomerName: a.CustomerName,
		Severity:     a.Severity,
		Message:      a.Message,
		Timestamp:    a.CreatedAt,
	}
}
