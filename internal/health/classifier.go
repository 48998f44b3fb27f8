package health

import (
	"fmt"
	"time"

	"clearpoint-monitor/internal/types"
)

// Status represents the derived state of a single device
type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
	StatusUnknown  Status = "unknown"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

const (
	// GatewayStaleWindow is fixed and independent of the camera timeout setting
	GatewayStaleWindow = 15 * time.Minute

	// DeviceStaleWindow is how old camera health data may get before a
	// separate device_stale fault is raised next to camera_offline
	DeviceStaleWindow = 15 * time.Minute

	// RecoveryFreshness bounds how old a snapshot may be to count as proof of recovery
	RecoveryFreshness = 2 * time.Minute

	CameraDiskFullPercent    = 90.0
	GatewayCPUTempCelsius    = 100.0
	GatewayDiskFullPercent   = 90.0
	GatewayMemoryFullPercent = 90.0
)

// Reasons reported for offline classifications
const (
	ReasonNoHealthData  = "no health data"
	ReasonNeverReported = "never reported"
)

// Thresholds holds the tunables the classifier needs. It is an immutable
// value passed into every call so classification never reads global state.
type Thresholds struct {
	HealthCheckTimeout     time.Duration
	CriticalAlertThreshold time.Duration
	GatewayStaleWindow     time.Duration
}

// DefaultThresholds returns the thresholds used when no settings are available
func DefaultThresholds() Thresholds {
	return Thresholds{
		HealthCheckTimeout:     180 * time.Second,
		CriticalAlertThreshold: 60 * time.Minute,
		GatewayStaleWindow:     GatewayStaleWindow,
	}
}

// Finding is one fault detected on a device. Every finding maps to its own alert.
type Finding struct {
	Fault    types.FaultType `json:"fault"`
	Severity types.Severity  `json:"severity"`
	Message  string          `json:"message"`
}

// Classification is the result of classifying a single snapshot
type Classification struct {
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Age      time.Duration `json:"age"`
	Findings []Finding     `json:"findings,omitempty"`
}

// Offline reports whether the device is classified offline
func (c Classification) Offline() bool {
	return c.Status == StatusOffline
}

// Has reports whether a finding of the given fault type was produced
func (c Classification) Has(fault types.FaultType) bool {
	for _, f := range c.Findings {
		if f.Fault == fault {
			return true
		}
	}
	return false
}

// ClassifyCamera maps a camera snapshot (nil when no data exists) to a status
// and the set of faults it raises.
func ClassifyCamera(device types.Device, snap *types.CameraHealth, now time.Time, th Thresholds) Classification {
	if snap == nil {
		c := Classification{
			Status: StatusOffline,
			Reason: ReasonNoHealthData,
			Findings: []Finding{{
				Fault:    types.FaultCameraOffline,
				Severity: types.SeverityCritical,
				Message:  fmt.Sprintf("Camera %s has no health data", device.Name),
			}},
		}
		return checkStreamFlag(device, c)
	}

	var c Classification
	if snap.LastCheckedAt == nil {
		c = Classification{
			Status: StatusOffline,
			Reason: ReasonNeverReported,
			Findings: []Finding{{
				Fault:    types.FaultCameraOffline,
				Severity: types.SeverityHigh,
				Message:  fmt.Sprintf("Camera %s has never reported health", device.Name),
			}},
		}
	} else {
		c.Age = nonNegative(now.Sub(*snap.LastCheckedAt))
		if c.Age > th.HealthCheckTimeout {
			minutes := int(c.Age.Minutes())
			severity := types.SeverityHigh
			if c.Age > th.CriticalAlertThreshold {
				severity = types.SeverityCritical
			}
			c.Status = StatusOffline
			c.Reason = fmt.Sprintf("stale for %d minutes", minutes)
			c.Findings = append(c.Findings, Finding{
				Fault:    types.FaultCameraOffline,
				Severity: severity,
				Message:  fmt.Sprintf("Camera %s offline: no report for %d minutes", device.Name, minutes),
			})
			if c.Age > DeviceStaleWindow {
				c.Findings = append(c.Findings, Finding{
					Fault:    types.FaultDeviceStale,
					Severity: types.SeverityMedium,
					Message:  fmt.Sprintf("Camera %s health data is stale (%d minutes old)", device.Name, minutes),
				})
			}
		} else {
			c.Status = StatusOnline
			switch snap.StreamStatus {
			case types.StreamStatusStale:
				c.Status = StatusDegraded
				c.Reason = "stream stale"
				c.Findings = append(c.Findings, Finding{
					Fault:    types.FaultStreamError,
					Severity: types.SeverityHigh,
					Message:  fmt.Sprintf("Camera %s stream is stale", device.Name),
				})
			case types.StreamStatusError, types.StreamStatusMissing:
				c.Status = StatusDegraded
				c.Reason = "stream " + string(snap.StreamStatus)
				c.Findings = append(c.Findings, Finding{
					Fault:    types.FaultStreamError,
					Severity: types.SeverityCritical,
					Message:  fmt.Sprintf("Camera %s stream status: %s", device.Name, snap.StreamStatus),
				})
			}
		}
	}

	if snap.DiskPercent != nil && *snap.DiskPercent > CameraDiskFullPercent {
		if c.Status == StatusOnline {
			c.Status = StatusDegraded
			c.Reason = "disk_full"
		}
		c.Findings = append(c.Findings, Finding{
			Fault:    types.FaultDiskFull,
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("Camera %s disk usage at %.1f%%", device.Name, *snap.DiskPercent),
		})
	}

	return checkStreamFlag(device, c)
}

// checkStreamFlag raises stream_error for cameras whose stream is switched off
// in the registry, unless the snapshot already produced one.
func checkStreamFlag(device types.Device, c Classification) Classification {
	if !device.StreamInactive || c.Has(types.FaultStreamError) {
		return c
	}
	if c.Status == StatusOnline {
		c.Status = StatusDegraded
		c.Reason = "stream inactive"
	}
	c.Findings = append(c.Findings, Finding{
		Fault:    types.FaultStreamError,
		Severity: types.SeverityHigh,
		Message:  fmt.Sprintf("Camera %s stream is not active", device.Name),
	})
	return c
}

// ClassifyGateway maps a gateway snapshot (nil when no data exists) to a status.
// Resource checks are independent of connectivity, so a gateway can be offline
// and overheating at once.
func ClassifyGateway(device types.Device, snap *types.GatewayHealth, now time.Time, th Thresholds) Classification {
	window := th.GatewayStaleWindow
	if window <= 0 {
		window = GatewayStaleWindow
	}

	if snap == nil {
		return Classification{
			Status: StatusOffline,
			Reason: ReasonNoHealthData,
			Findings: []Finding{{
				Fault:    types.FaultGatewayOffline,
				Severity: types.SeverityCritical,
				Message:  fmt.Sprintf("Mini-PC %s has no health data", device.Name),
			}},
		}
	}

	c := Classification{Status: StatusOnline}
	switch {
	case snap.LastCheckedAt == nil:
		c.Status = StatusOffline
		c.Reason = ReasonNeverReported
		c.Findings = append(c.Findings, Finding{
			Fault:    types.FaultGatewayOffline,
			Severity: types.SeverityHigh,
			Message:  fmt.Sprintf("Mini-PC %s has never reported health", device.Name),
		})
	default:
		c.Age = nonNegative(now.Sub(*snap.LastCheckedAt))
		if c.Age > window {
			minutes := int(c.Age.Minutes())
			c.Status = StatusOffline
			c.Reason = fmt.Sprintf("stale for %d minutes", minutes)
			c.Findings = append(c.Findings, Finding{
				Fault:    types.FaultGatewayOffline,
				Severity: types.SeverityHigh,
				Message:  fmt.Sprintf("Mini-PC %s offline: no report for %d minutes", device.Name, minutes),
			})
		}
	}

	degrade := func(reason string, f Finding) {
		if c.Status == StatusOnline {
			c.Status = StatusDegraded
			c.Reason = reason
		}
		c.Findings = append(c.Findings, f)
	}

	if v := snap.CPUTempCelsius; v != nil && *v > GatewayCPUTempCelsius {
		degrade("overheating", Finding{
			Fault:    types.FaultGatewayOverheating,
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("Mini-PC %s CPU temperature at %.1f°C", device.Name, *v),
		})
	}
	if v := snap.DiskPercent; v != nil && *v > GatewayDiskFullPercent {
		degrade("disk_full", Finding{
			Fault:    types.FaultGatewayDiskFull,
			Severity: types.SeverityCritical,
			Message:  fmt.Sprintf("Mini-PC %s disk usage at %.1f%%", device.Name, *v),
		})
	}
	if v := snap.RAMPercent; v != nil && *v > GatewayMemoryFullPercent {
		degrade("memory_full", Finding{
			Fault:    types.FaultGatewayMemoryFull,
			Severity: types.SeverityHigh,
			Message:  fmt.Sprintf("Mini-PC %s memory usage at %.1f%%", device.Name, *v),
		})
	}
	if v := snap.InternetConnected; v != nil && !*v {
		degrade("no_internet", Finding{
			Fault:    types.FaultGatewayNoInternet,
			Severity: types.SeverityHigh,
			Message:  fmt.Sprintf("Mini-PC %s has no internet connection", device.Name),
		})
	}

	return c
}

// IsFreshRecovery reports whether a snapshot is recent and healthy enough to
// confirm that an offline camera is back.
func IsFreshRecovery(snap *types.CameraHealth, now time.Time) bool {
	if snap == nil || snap.LastCheckedAt == nil {
		return false
	}
	if now.Sub(*snap.LastCheckedAt) > RecoveryFreshness {
		return false
	}
	return !snap.StreamStatus.IsFaulty()
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
