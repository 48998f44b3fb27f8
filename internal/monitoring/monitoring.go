package monitoring

import (
	"context"
	"errors"
	"time"

	"clearpoint-monitor/internal/health"
	"clearpoint-monitor/internal/types"
)

var (
	// ErrRegistryUnavailable is returned when the device list cannot be loaded.
	// It is the only failure that aborts a cycle before any device is processed.
	ErrRegistryUnavailable = errors.New("device registry unavailable")

	// ErrCycleInProgress is returned when a cycle is requested while another is running
	ErrCycleInProgress = errors.New("monitoring cycle already in progress")
)

// Settings holds the tunables read once at the start of every cycle
type Settings struct {
	HealthCheckTimeoutSeconds     int    `json:"healthCheckTimeoutSeconds" mapstructure:"health_check_timeout_seconds"`
	StreamCheckTimeoutSeconds     int    `json:"streamCheckTimeoutSeconds" mapstructure:"stream_check_timeout_seconds"`
	CriticalAlertThresholdMinutes int    `json:"criticalAlertThresholdMinutes" mapstructure:"critical_alert_threshold_minutes"`
	NotificationsEnabled          bool   `json:"notificationsEnabled" mapstructure:"notifications_enabled"`
	AdminRecipient                string `json:"adminRecipient" mapstructure:"admin_recipient"`
	MonitoringIntervalMinutes     int    `json:"monitoringIntervalMinutes" mapstructure:"monitoring_interval_minutes"`
	AlertRetentionDays            int    `json:"alertRetentionDays" mapstructure:"alert_retention_days"`
}

// DefaultSettings returns the hardcoded settings used when nothing else is available
func DefaultSettings() Settings {
	return Settings{
		HealthCheckTimeoutSeconds:     180,
		StreamCheckTimeoutSeconds:     60,
		CriticalAlertThresholdMinutes: 60,
		NotificationsEnabled:          true,
		MonitoringIntervalMinutes:     10,
		AlertRetentionDays:            14,
	}
}

// WithDefaults fills any unset numeric field from DefaultSettings
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.HealthCheckTimeoutSeconds <= 0 {
		s.HealthCheckTimeoutSeconds = d.HealthCheckTimeoutSeconds
	}
	if s.StreamCheckTimeoutSeconds <= 0 {
		s.StreamCheckTimeoutSeconds = d.StreamCheckTimeoutSeconds
	}
	if s.CriticalAlertThresholdMinutes <= 0 {
		s.CriticalAlertThresholdMinutes = d.CriticalAlertThresholdMinutes
	}
	if s.MonitoringIntervalMinutes <= 0 {
		s.MonitoringIntervalMinutes = d.MonitoringIntervalMinutes
	}
	if s.AlertRetentionDays <= 0 {
		s.AlertRetentionDays = d.AlertRetentionDays
	}
	return s
}

// MonitoringInterval returns the configured time between scheduled cycles
func (s Settings) MonitoringInterval() time.Duration {
	return time.Duration(s.WithDefaults().MonitoringIntervalMinutes) * time.Minute
}

// AlertRetention returns how long resolved alerts are kept
func (s Settings) AlertRetention() time.Duration {
	return time.Duration(s.WithDefaults().AlertRetentionDays) * 24 * time.Hour
}

// ThresholdsFromSettings derives classifier thresholds from settings.
// StreamCheckTimeoutSeconds is carried for the ingest side and not used here.
func ThresholdsFromSettings(s Settings) health.Thresholds {
	s = s.WithDefaults()
	return health.Thresholds{
		HealthCheckTimeout:     time.Duration(s.HealthCheckTimeoutSeconds) * time.Second,
		CriticalAlertThreshold: time.Duration(s.CriticalAlertThresholdMinutes) * time.Minute,
		GatewayStaleWindow:     health.GatewayStaleWindow,
	}
}

// SettingsSource supplies the tunable thresholds
type SettingsSource interface {
	GetSettings(ctx context.Context) (Settings, error)
}

// DeviceRegistry enumerates every camera and gateway with its owning customer
type DeviceRegistry interface {
	ListDevices(ctx context.Context) (types.Inventory, error)
}

// SnapshotProvider returns the latest self-reported health of a device.
// A nil snapshot with a nil error means no data exists.
type SnapshotProvider interface {
	GetCameraHealth(ctx context.Context, cameraID string) (*types.CameraHealth, error)
	GetGatewayHealth(ctx context.Context, gatewayID string) (*types.GatewayHealth, error)
}

// AlertStore persists alerts. Finders return nil, nil when nothing matches.
type AlertStore interface {
	FindOpenAlert(ctx context.Context, deviceID string, fault types.FaultType) (*types.Alert, error)
	FindRecentAlert(ctx context.Context, deviceID string, fault types.FaultType, since time.Time, excludeID string) (*types.Alert, error)
	InsertAlert(ctx context.Context, alert types.Alert) error
	InsertAlerts(ctx context.Context, alerts []types.Alert) error
	ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error
	ListOpenAlerts(ctx context.Context) ([]types.Alert, error)
}

// Notification is the payload handed to a Notifier
type Notification struct {
	AlertID      string           `json:"alertId,omitempty"`
	Kind         types.FaultType  `json:"kind"`
	DeviceID     string           `json:"deviceId"`
	DeviceKind   types.DeviceKind `json:"deviceKind"`
	DeviceName   string           `json:"deviceName"`
	CustomerID   string           `json:"customerId"`
	CustomerName string           `json:"customerName,omitempty"`
	Severity     types.Severity   `json:"severity"`
	Message      string           `json:"message"`
	Timestamp    time.Time        `json:"timestamp"`
	Downtime     time.Duration    `json:"downtime,omitempty"`
	Recipient    string           `json:"recipient,omitempty"`
}

// Notifier delivers a notification. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Observer is implemented by notifiers that only mirror notifications, such as
// the log and the live feed. A composite never counts them as a delivery.
type Observer interface {
	ObserveOnly() bool
}

// NotificationStatus is the outcome recorded for a notification candidate
type NotificationStatus string

const (
	NotificationSent        NotificationStatus = "sent"
	NotificationFailed      NotificationStatus = "failed"
	NotificationRateLimited NotificationStatus = "rate_limited"
)

// NotificationRecord is one entry in the notification log
type NotificationRecord struct {
	Notification Notification
	Status       NotificationStatus
	Error        string
	CreatedAt    time.Time
}

// NotificationRecorder optionally keeps a log of dispatch outcomes
type NotificationRecorder interface {
	RecordNotification(ctx context.Context, record NotificationRecord) error
}

// CycleResult holds the counters reported by one monitoring cycle
type CycleResult struct {
	AlertsCreated        int           `json:"alertsCreated"`
	AlertsResolved       int           `json:"alertsResolved"`
	NotificationsSent    int           `json:"notificationsSent"`
	NotificationsSkipped int           `json:"notificationsSkipped"`
	NotificationsFailed  int           `json:"notificationsFailed"`
	DevicesChecked       int           `json:"devicesChecked"`
	Suppressed           int           `json:"suppressed"`
	Timestamp            time.Time     `json:"timestamp"`
	Duration             time.Duration `json:"duration"`
}
