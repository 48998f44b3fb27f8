package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"clearpoint-monitor/internal/database"
	"clearpoint-monitor/internal/monitoring"
	"clearpoint-monitor/internal/types"
)

const maxBodyBytes = 64 << 10

// HealthCheck reports service and database health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthCheckResponse{
		Status:    "healthy",
		Database:  "ok",
		Timestamp: s.clock().UTC(),
		Version:   s.version,
	}

	status := http.StatusOK
	if err := s.store.Health(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Database health check failed")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, resp, status)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, ErrorCodeInvalidJSON, "Invalid JSON in request body")
		return false
	}
	return true
}

// IngestCameraHealth stores a camera health report from a mini-PC
func (s *Server) IngestCameraHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gatewayID := gatewayIDFrom(r)

	var req CameraHealthRequest
	if !s.decode(w, r, &req) {
		return
	}

	req.CameraID = strings.TrimSpace(req.CameraID)
	if req.CameraID == "" || strings.TrimSpace(req.StreamStatus) == "" {
		s.writeError(w, r, ErrorCodeMissingField, "camera_id and stream_status are required")
		return
	}

	owned, err := s.store.CameraBelongsToGateway(ctx, req.CameraID, gatewayID)
	if err != nil {
		s.logger.WithError(err).WithField("camera_id", req.CameraID).Error("Failed to check camera ownership")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to verify camera")
		return
	}
	if !owned {
		s.logSecurityEvent("camera_not_owned", r)
		s.writeError(w, r, ErrorCodeForbidden, "Camera does not belong to this mini-PC")
		return
	}

	checked := s.clock().UTC()
	if req.LastChecked != nil {
		checked = req.LastChecked.UTC()
	}

	record := types.CameraHealth{
		CameraID:      req.CameraID,
		GatewayID:     gatewayID,
		StreamStatus:  types.ParseStreamStatus(req.StreamStatus),
		LastCheckedAt: &checked,
		DiskPercent:   req.DiskPercent,
		LogMessage:    req.LogMessage,
	}
	if err := s.store.UpsertCameraHealth(ctx, record); err != nil {
		s.logger.WithError(err).WithField("camera_id", req.CameraID).Error("Failed to store camera health")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to store camera health")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"camera_id":     req.CameraID,
		"mini_pc_id":    gatewayID,
		"stream_status": record.StreamStatus,
	}).Debug("Camera health ingested")

	s.writeJSON(w, IngestResponse{Success: true, DeviceID: req.CameraID, Timestamp: checked}, http.StatusOK)
}

// IngestGatewayHealth stores a mini-PC health report
func (s *Server) IngestGatewayHealth(w http.ResponseWriter, r *http.Request) {
	gatewayID := gatewayIDFrom(r)

	var req GatewayHealthRequest
	if !s.decode(w, r, &req) {
		return
	}

	checked := s.clock().UTC()
	if req.LastChecked != nil {
		checked = req.LastChecked.UTC()
	}

	record := types.GatewayHealth{
		GatewayID:         gatewayID,
		CPUTempCelsius:    req.CPUTempCelsius,
		CPUUsagePercent:   req.CPUUsagePercent,
		RAMPercent:        req.RAMPercent,
		DiskPercent:       req.DiskPercent,
		InternetConnected: req.InternetConnected,
		OverallStatus:     req.OverallStatus,
		LastCheckedAt:     &checked,
		LogMessage:        req.LogMessage,
	}
	if err := s.store.UpsertGatewayHealth(r.Context(), record); err != nil {
		s.logger.WithError(err).WithField("mini_pc_id", gatewayID).Error("Failed to store mini-PC health")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to store mini-PC health")
		return
	}

	s.writeJSON(w, IngestResponse{Success: true, DeviceID: gatewayID, Timestamp: checked}, http.StatusOK)
}

// RunMonitor triggers a monitoring cycle and returns its counters
func (s *Server) RunMonitor(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.RunCycle(r.Context())
	switch {
	case errors.Is(err, monitoring.ErrCycleInProgress):
		s.writeError(w, r, ErrorCodeCycleInProgress, "A monitoring cycle is already running")
		return
	case errors.Is(err, monitoring.ErrRegistryUnavailable):
		s.logger.WithError(err).Error("Manual monitoring cycle failed")
		s.writeError(w, r, ErrorCodeServiceUnavailable, "Device registry unavailable")
		return
	case err != nil:
		s.logger.WithError(err).Error("Manual monitoring cycle failed")
		s.writeError(w, r, ErrorCodeInternalError, "Monitoring cycle failed")
		return
	}

	if err := s.hub.Publish(MessageTypeCycleCompleted, result); err != nil {
		s.logger.WithError(err).Debug("Failed to publish cycle result")
	}
	s.writeJSON(w, result, http.StatusOK)
}

// MonitorStatus reports the last cycle, scheduler state and active settings
func (s *Server) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	resp := MonitorStatusResponse{
		Settings:  s.monitor.Settings(r.Context()),
		Clients:   s.hub.ClientCount(),
		Timestamp: s.clock().UTC(),
	}
	if last, ok := s.monitor.LastResult(); ok {
		resp.LastResult = &last
	}
	if s.scheduler != nil {
		st := s.scheduler.Status()
		resp.Scheduler = &st
	}
	s.writeJSON(w, resp, http.StatusOK)
}

// ListAlerts lists alerts, optionally filtered by resolved, deviceId and customerId
func (s *Server) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.AlertFilter{
		DeviceID:   q.Get("deviceId"),
		CustomerID: q.Get("customerId"),
	}

	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, ErrorCodeValidationFailed, "resolved must be true or false")
			return
		}
		filter.Resolved = &resolved
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.writeError(w, r, ErrorCodeValidationFailed, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	alerts, err := s.store.ListAlerts(r.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list alerts")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}

	s.writeJSON(w, AlertsResponse{Alerts: alerts, TotalCount: len(alerts)}, http.StatusOK)
}

// ToggleAlert flips the resolved flag of an alert
func (s *Server) ToggleAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	alert, err := s.store.GetAlert(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, r, ErrorCodeNotFound, "Alert not found")
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("alert_id", id).Error("Failed to load alert")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to load alert")
		return
	}

	resolve := !alert.Resolved
	if !resolve {
		open, err := s.store.FindOpenAlert(ctx, alert.DeviceID, alert.Type)
		if err != nil {
			s.logger.WithError(err).WithField("alert_id", id).Error("Failed to check open alerts")
			s.writeError(w, r, ErrorCodeDatabaseError, "Failed to reopen alert")
			return
		}
		if open != nil && open.ID != alert.ID {
			s.writeError(w, r, ErrorCodeConflict, "Another open alert exists for this device and type")
			return
		}
	}

	if err := s.store.SetAlertResolved(ctx, id, resolve, s.clock()); err != nil {
		s.logger.WithError(err).WithField("alert_id", id).Error("Failed to update alert")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to update alert")
		return
	}

	updated, err := s.store.GetAlert(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("alert_id", id).Error("Failed to reload alert")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to reload alert")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"alert_id": id,
		"resolved": updated.Resolved,
	}).Info("Alert toggled by admin")

	if err := s.hub.Publish(MessageTypeAlertUpdated, updated); err != nil {
		s.logger.WithError(err).Debug("Failed to publish alert update")
	}
	s.writeJSON(w, AlertResponse{Alert: *updated}, http.StatusOK)
}

// DeleteResolvedAlerts removes every resolved alert
func (s *Server) DeleteResolvedAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.DeleteResolvedAlerts(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to delete resolved alerts")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to delete resolved alerts")
		return
	}
	s.logger.WithField("deleted", n).Info("Resolved alerts deleted by admin")
	s.writeJSON(w, DeleteResponse{Deleted: n}, http.StatusOK)
}

// GetSettings returns the active monitoring settings
func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.monitor.Settings(r.Context()), http.StatusOK)
}

// UpdateSettings replaces the stored monitoring settings
func (s *Server) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	current := s.monitor.Settings(r.Context())
	if !s.decode(w, r, &current) {
		return
	}

	if msg := validateSettings(current); msg != "" {
		s.writeError(w, r, ErrorCodeValidationFailed, msg)
		return
	}

	if err := s.store.UpdateSettings(r.Context(), current); err != nil {
		s.logger.WithError(err).Error("Failed to update settings")
		s.writeError(w, r, ErrorCodeDatabaseError, "Failed to update settings")
		return
	}

	s.logger.WithField("settings", current).Info("Monitoring settings updated")
	s.writeJSON(w, current, http.StatusOK)
}

func validateSettings(st monitoring.Settings) string {
	checks := []struct {
		name  string
		value int
	}{
		{"healthCheckTimeoutSeconds", st.HealthCheckTimeoutSeconds},
		{"streamCheckTimeoutSeconds", st.StreamCheckTimeoutSeconds},
		{"criticalAlertThresholdMinutes", st.CriticalAlertThresholdMinutes},
		{"monitoringIntervalMinutes", st.MonitoringIntervalMinutes},
		{"alertRetentionDays", st.AlertRetentionDays},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return c.name + " must be positive"
		}
	}
	return ""
}
