package types

import (
	"strings"
	"time"
)

// DeviceKind distinguishes cameras from edge gateways (mini-PCs)
type DeviceKind string

const (
	DeviceKindCamera  DeviceKind = "camera"
	DeviceKindGateway DeviceKind = "gateway"
)

// Device is a camera or gateway as provisioned for a customer.
// GatewayID is a back-reference for cameras and is empty for gateways.
// StreamInactive mirrors the registry's stream flag and only applies to cameras.
type Device struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Kind           DeviceKind `json:"kind"`
	CustomerID     string     `json:"customerId"`
	CustomerName   string     `json:"customerName,omitempty"`
	GatewayID      string     `json:"gatewayId,omitempty"`
	StreamInactive bool       `json:"streamInactive,omitempty"`
}

// Inventory is the full device registry for one monitoring cycle
type Inventory struct {
	Cameras  []Device `json:"cameras"`
	Gateways []Device `json:"gateways"`
}

// StreamStatus is the self-reported state of a camera stream
type StreamStatus string

const (
	StreamStatusOK         StreamStatus = "ok"
	StreamStatusStale      StreamStatus = "stale"
	StreamStatusMissing    StreamStatus = "missing"
	StreamStatusError      StreamStatus = "error"
	StreamStatusConnecting StreamStatus = "connecting"
	StreamStatusUnknown    StreamStatus = "unknown"
)

// ParseStreamStatus normalizes a reported stream status. Anything outside
// the known set maps to StreamStatusUnknown.
func ParseStreamStatus(raw string) StreamStatus {
	switch s := StreamStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StreamStatusOK, StreamStatusStale, StreamStatusMissing,
		StreamStatusError, StreamStatusConnecting:
		return s
	default:
		return StreamStatusUnknown
	}
}

// IsFaulty reports whether the stream status indicates a broken stream
func (s StreamStatus) IsFaulty() bool {
	return s == StreamStatusStale || s == StreamStatusMissing || s == StreamStatusError
}

// CameraHealth is the latest health record reported for a camera
type CameraHealth struct {
	CameraID      string       `json:"cameraId"`
	GatewayID     string       `json:"gatewayId,omitempty"`
	StreamStatus  StreamStatus `json:"streamStatus"`
	LastCheckedAt *time.Time   `json:"lastCheckedAt,omitempty"`
	DiskPercent   *float64     `json:"diskPercent,omitempty"`
	LogMessage    string       `json:"logMessage,omitempty"`
}

// GatewayHealth is the latest health record reported by a gateway
type GatewayHealth struct {
	GatewayID         string     `json:"gatewayId"`
	CPUTempCelsius    *float64   `json:"cpuTempCelsius,omitempty"`
	CPUUsagePercent   *float64   `json:"cpuUsagePercent,omitempty"`
	RAMPercent        *float64   `json:"ramPercent,omitempty"`
	DiskPercent       *float64   `json:"diskPercent,omitempty"`
	InternetConnected *bool      `json:"internetConnected,omitempty"`
	LastCheckedAt     *time.Time `json:"lastCheckedAt,omitempty"`
	OverallStatus     string     `json:"overallStatus,omitempty"`
	LogMessage        string     `json:"logMessage,omitempty"`
}
