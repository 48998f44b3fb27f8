package monitoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCooldown is the minimum time between two notifications for the same
// (device, fault type) pair.
const DefaultCooldown = 60 * time.Minute

// DispatchResult holds the dispatch counters for one cycle
type DispatchResult struct {
	Sent    int
	Skipped int
	Failed  int
}

// Dispatcher rate limits candidates and hands them to the notifier
type Dispatcher struct {
	store    AlertStore
	notifier Notifier
	recorder NotificationRecorder
	cooldown time.Duration
	logger   *logrus.Entry
}

// NewDispatcher creates a dispatcher. recorder may be nil.
func NewDispatcher(store AlertStore, notifier Notifier, recorder NotificationRecorder, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		recorder: recorder,
		cooldown: DefaultCooldown,
		logger:   logger,
	}
}

// Dispatch sends each candidate at most once. A failed send is logged and
// never blocks the remaining candidates.
func (d *Dispatcher) Dispatch(ctx context.Context, settings Settings, candidates []Candidate, now time.Time) DispatchResult {
	var result DispatchResult
	if len(candidates) == 0 {
		return result
	}
	if !settings.NotificationsEnabled || d.notifier == nil {
		result.Skipped = len(candidates)
		d.logger.WithField("count", len(candidates)).Info("Notifications disabled, skipping dispatch")
		return result
	}

	for _, c := range candidates {
		n := c.Notification
		n.Recipient = settings.AdminRecipient
		fields := logrus.Fields{
			"alert_id":   n.AlertID,
			"device_id":  n.DeviceID,
			"fault_type": string(n.Kind),
		}

		if !c.SkipCooldown && d.inCooldown(ctx, n, now) {
			result.Skipped++
			d.logger.WithFields(fields).Info("Notification rate limited")
			d.record(ctx, n, NotificationRateLimited, nil, now)
			continue
		}

		if err := d.notifier.Send(ctx, n); err != nil {
			result.Failed++
			d.logger.WithError(err).WithFields(fields).Error("Failed to send notification")
			d.record(ctx, n, NotificationFailed, err, now)
			continue
		}

		result.Sent++
		d.logger.WithFields(fields).Debug("Notification sent")
		d.record(ctx, n, NotificationSent, nil, now)
	}

	return result
}

// inCooldown checks alert history for an earlier alert of the same pair inside
// the window. A failed lookup does not block the send.
func (d *Dispatcher) inCooldown(ctx context.Context, n Notification, now time.Time) bool {
	recent, err := d.store.FindRecentAlert(ctx, n.DeviceID, n.Kind, now.Add(-d.cooldown), n.AlertID)
	if err != nil {
		d.logger.WithError(err).WithField("device_id", n.DeviceID).Warn("Cooldown lookup failed, sending anyway")
		return false
	}
	return recent != nil
}

func (d *Dispatcher) record(ctx context.Context, n Notification, status NotificationStatus, sendErr error, now time.Time) {
	if d.recorder == nil {
		return
	}
	rec := NotificationRecord{Notification: n, Status: status, CreatedAt: now}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if err := d.recorder.RecordNotification(ctx, rec); err != nil {
		d.logger.WithError(err).WithField("alert_id", n.AlertID).Warn("Failed to record notification")
	}
}
