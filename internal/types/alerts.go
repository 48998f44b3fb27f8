package types

import (
	"time"
)

// FaultType names a category of problem. Together with the subject device
// it forms the alert deduplication key.
type FaultType string

const (
	FaultCameraOffline      FaultType = "camera_offline"
	FaultStreamError        FaultType = "stream_error"
	FaultDiskFull           FaultType = "disk_full"
	FaultDeviceStale        FaultType = "device_stale"
	FaultGatewayOffline     FaultType = "minipc_offline"
	FaultGatewayOverheating FaultType = "minipc_overheating"
	FaultGatewayDiskFull    FaultType = "minipc_disk_full"
	FaultGatewayMemoryFull  FaultType = "minipc_memory_full"
	FaultGatewayNoInternet  FaultType = "minipc_no_internet"
)

// NotificationCameraOnline is the notification kind sent when a camera recovers.
// It is never stored as an alert.
const NotificationCameraOnline FaultType = "camera_online"

// IsValidFaultType checks if the provided fault type is a known alert type
func IsValidFaultType(f FaultType) bool {
	switch f {
	case FaultCameraOffline, FaultStreamError, FaultDiskFull, FaultDeviceStale,
		FaultGatewayOffline, FaultGatewayOverheating, FaultGatewayDiskFull,
		FaultGatewayMemoryFull, FaultGatewayNoInternet:
		return true
	default:
		return false
	}
}

// Severity is the urgency of an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a persisted fault record for one (device, fault type) pair
type Alert struct {
	ID           string     `json:"id"`
	Type         FaultType  `json:"type"`
	DeviceID     string     `json:"deviceId"`
	DeviceKind   DeviceKind `json:"deviceKind"`
	DeviceName   string     `json:"deviceName"`
	CustomerID   string     `json:"customerId"`
	CustomerName string     `json:"customerName,omitempty"`
	Message      string     `json:"message"`
	Severity     Severity   `json:"severity"`
	Resolved     bool       `json:"resolved"`
	CreatedAt    time.Time  `json:"createdAt"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

// Downtime returns how long the alert has been (or was) open
func (a Alert) Downtime(now time.Time) time.Duration {
	end := now
	if a.ResolvedAt != nil {
		end = *a.ResolvedAt
	}
	d := end.Sub(a.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}
