package api

import (
	"net/http"
	"time"

	"clearpoint-monitor/internal/monitoring"
	"clearpoint-monitor/internal/scheduler"
	"clearpoint-monitor/internal/types"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
	Path      string    `json:"path,omitempty"`
	Method    string    `json:"method,omitempty"`
	Status    int       `json:"status"`
}

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	ErrorCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrorCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrorCodeInvalidJSON        ErrorCode = "INVALID_JSON"
	ErrorCodeMissingField       ErrorCode = "MISSING_FIELD"
	ErrorCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrorCodeConflict           ErrorCode = "CONFLICT"
	ErrorCodeCycleInProgress    ErrorCode = "CYCLE_IN_PROGRESS"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
)

var httpStatusMapping = map[ErrorCode]int{
	ErrorCodeInvalidJSON:        http.StatusBadRequest,
	ErrorCodeMissingField:       http.StatusBadRequest,
	ErrorCodeValidationFailed:   http.StatusBadRequest,
	ErrorCodeUnauthorized:       http.StatusUnauthorized,
	ErrorCodeInvalidToken:       http.StatusForbidden,
	ErrorCodeForbidden:          http.StatusForbidden,
	ErrorCodeNotFound:           http.StatusNotFound,
	ErrorCodeConflict:           http.StatusConflict,
	ErrorCodeCycleInProgress:    http.StatusConflict,
	ErrorCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrorCodeDatabaseError:      http.StatusInternalServerError,
	ErrorCodeInternalError:      http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status code for an error code
func (c ErrorCode) HTTPStatus() int {
	if status, ok := httpStatusMapping[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewErrorResponse creates a standardized error response
func NewErrorResponse(code ErrorCode, message string, r *http.Request, requestID string) *ErrorResponse {
	response := &ErrorResponse{
		Error:     "true",
		Code:      string(code),
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Status:    code.HTTPStatus(),
	}
	if r != nil {
		response.Path = r.URL.Path
		response.Method = r.Method
	}
	return response
}

// HealthCheckResponse is returned by the public health endpoint
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// CameraHealthRequest is the payload a mini-PC posts for one camera
type CameraHealthRequest struct {
	CameraID     string     `json:"camera_id"`
	StreamStatus string     `json:"stream_status"`
	LastChecked  *time.Time `json:"last_checked,omitempty"`
	DiskPercent  *float64   `json:"disk_percent,omitempty"`
	LogMessage   string     `json:"log_message,omitempty"`
}

// GatewayHealthRequest is the payload a mini-PC posts about itself
type GatewayHealthRequest struct {
	CPUTempCelsius    *float64   `json:"cpu_temp_celsius,omitempty"`
	CPUUsagePercent   *float64   `json:"cpu_usage_pct,omitempty"`
	RAMPercent        *float64   `json:"ram_usage_pct,omitempty"`
	DiskPercent       *float64   `json:"disk_root_pct,omitempty"`
	InternetConnected *bool      `json:"internet_connected,omitempty"`
	OverallStatus     string     `json:"overall_status,omitempty"`
	LastChecked       *time.Time `json:"last_checked,omitempty"`
	LogMessage        string     `json:"log_message,omitempty"`
}

// IngestResponse acknowledges a health report
type IngestResponse struct {
	Success   bool      `json:"success"`
	DeviceID  string    `json:"deviceId"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertsResponse lists alerts
type AlertsResponse struct {
	Alerts     []types.Alert `json:"alerts"`
	TotalCount int           `json:"totalCount"`
}

// AlertResponse wraps a single alert
type AlertResponse struct {
	Alert types.Alert `json:"alert"`
}

// DeleteResponse reports how many rows were removed
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// MonitorStatusResponse describes the monitoring engine and scheduler
type MonitorStatusResponse struct {
	LastResult *monitoring.CycleResult `json:"lastResult,omitempty"`
	Scheduler  *scheduler.Status       `json:"scheduler,omitempty"`
	Settings   monitoring.Settings     `json:"settings"`
	Clients    int                     `json:"liveClients"`
	Timestamp  time.Time               `json:"timestamp"`
}
