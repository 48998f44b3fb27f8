package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clearpoint-monitor/internal/database"
	"clearpoint-monitor/internal/monitoring"
	"clearpoint-monitor/internal/scheduler"
	"clearpoint-monitor/internal/types"
)

const testSecret = "test-secret"

// MockMonitor is a mock implementation of Monitor
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) RunCycle(ctx context.Context) (monitoring.CycleResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(monitoring.CycleResult), args.Error(1)
}

func (m *MockMonitor) LastResult() (monitoring.CycleResult, bool) {
	args := m.Called()
	return args.Get(0).(monitoring.CycleResult), args.Bool(1)
}

func (m *MockMonitor) Settings(ctx context.Context) monitoring.Settings {
	args := m.Called(ctx)
	return args.Get(0).(monitoring.Settings)
}

type fakeScheduler struct {
	status scheduler.Status
}

func (f fakeScheduler) Status() scheduler.Status { return f.status }

type testEnv struct {
	server  *Server
	db      *database.DB
	monitor *MockMonitor
	token   string
	admin   string
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestServer(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.CreateCustomer(ctx, "cust-1", "Acme Retail"))
	require.NoError(t, db.CreateGateway(ctx, types.Device{ID: "gw-1", Name: "Front desk", CustomerID: "cust-1"}))
	require.NoError(t, db.CreateGateway(ctx, types.Device{ID: "gw-2", Name: "Back office", CustomerID: "cust-1"}))
	require.NoError(t, db.CreateCamera(ctx, types.Device{ID: "cam-1", Name: "Entrance", CustomerID: "cust-1", GatewayID: "gw-1"}))
	require.NoError(t, db.CreateCamera(ctx, types.Device{ID: "cam-2", Name: "Lot", CustomerID: "cust-1", GatewayID: "gw-2"}))

	token, err := db.IssueDeviceToken(ctx, "gw-1")
	require.NoError(t, err)

	admin, err := IssueAdminToken(testSecret, "ops", time.Hour)
	require.NoError(t, err)

	monitor := &MockMonitor{}
	cfg := DefaultConfig()
	cfg.JWTSecret = testSecret

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	server := NewServer(cfg, db, monitor, opts...)

	return &testEnv{server: server, db: db, monitor: monitor, token: token, admin: admin}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + e.admin}
}

func (e *testEnv) deviceHeaders() map[string]string {
	return map[string]string{DefaultDeviceTokenHeader: e.token}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	env := setupTestServer(t, WithVersion("1.2.3"))

	w := env.do(t, http.MethodGet, "/api/v1/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp HealthCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHealthCheckDatabaseDown(t *testing.T) {
	env := setupTestServer(t)
	env.db.Close()

	w := env.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestIngestCameraHealth(t *testing.T) {
	env := setupTestServer(t)
	checked := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	w := env.do(t, http.MethodPost, "/api/v1/ingest/camera-health", map[string]interface{}{
		"camera_id":     "cam-1",
		"stream_status": "OK",
		"last_checked":  checked,
		"disk_percent":  55.5,
	}, env.deviceHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap, err := env.db.GetCameraHealth(context.Background(), "cam-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, types.StreamStatusOK, snap.StreamStatus)
	assert.Equal(t, "gw-1", snap.GatewayID)
	assert.True(t, checked.Equal(*snap.LastCheckedAt))
	assert.InDelta(t, 55.5, *snap.DiskPercent, 0.001)
}

func TestIngestCameraHealthDefaultsLastChecked(t *testing.T) {
	env := setupTestServer(t)
	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	env.server.clock = func() time.Time { return now }

	w := env.do(t, http.MethodPost, "/api/v1/ingest/camera-health", map[string]interface{}{
		"camera_id":     "cam-1",
		"stream_status": "bogus",
	}, env.deviceHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap, err := env.db.GetCameraHealth(context.Background(), "cam-1")
	require.NoError(t, err)
	assert.Equal(t, types.StreamStatusUnknown, snap.StreamStatus)
	assert.True(t, now.Equal(*snap.LastCheckedAt))
}

func TestIngestCameraHealthRejections(t *testing.T) {
	env := setupTestServer(t)

	revoked, err := env.db.IssueDeviceToken(context.Background(), "gw-2")
	require.NoError(t, err)
	require.NoError(t, env.db.RevokeDeviceToken(context.Background(), "gw-2"))

	valid := map[string]interface{}{"camera_id": "cam-1", "stream_status": "ok"}

	tests := []struct {
		name    string
		body    interface{}
		headers map[string]string
		status  int
		code    ErrorCode
	}{
		{"missing token", valid, nil, http.StatusUnauthorized, ErrorCodeUnauthorized},
		{"unknown token", valid, map[string]string{DefaultDeviceTokenHeader: "nope"}, http.StatusForbidden, ErrorCodeInvalidToken},
		{"revoked token", valid, map[string]string{DefaultDeviceTokenHeader: revoked}, http.StatusForbidden, ErrorCodeInvalidToken},
		{"bad json", "{not json", env.deviceHeaders(), http.StatusBadRequest, ErrorCodeInvalidJSON},
		{"missing camera", map[string]interface{}{"stream_status": "ok"}, env.deviceHeaders(), http.StatusBadRequest, ErrorCodeMissingField},
		{"missing status", map[string]interface{}{"camera_id": "cam-1"}, env.deviceHeaders(), http.StatusBadRequest, ErrorCodeMissingField},
		{"foreign camera", map[string]interface{}{"camera_id": "cam-2", "stream_status": "ok"}, env.deviceHeaders(), http.StatusForbidden, ErrorCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/ingest/camera-health", tt.body, tt.headers)
			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, string(tt.code), resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}

	snap, err := env.db.GetCameraHealth(context.Background(), "cam-2")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestIngestGatewayHealth(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/ingest/mini-pc-health", map[string]interface{}{
		"cpu_temp_celsius":   82.0,
		"ram_usage_pct":      40.0,
		"internet_connected": false,
		"overall_status":     "warning",
	}, env.deviceHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap, err := env.db.GetGatewayHealth(context.Background(), "gw-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.InDelta(t, 82.0, *snap.CPUTempCelsius, 0.001)
	require.NotNil(t, snap.InternetConnected)
	assert.False(t, *snap.InternetConnected)
	assert.Nil(t, snap.DiskPercent)
	assert.NotNil(t, snap.LastCheckedAt)
}

func TestAdminRoutesRequireJWT(t *testing.T) {
	env := setupTestServer(t)

	wrongKey, err := IssueAdminToken("other-secret", "ops", time.Hour)
	require.NoError(t, err)
	expired, err := IssueAdminToken(testSecret, "ops", -time.Minute)
	require.NoError(t, err)

	for _, header := range []string{"", "Bearer garbage", "Bearer " + wrongKey, "Bearer " + expired} {
		headers := map[string]string{}
		if header != "" {
			headers["Authorization"] = header
		}
		w := env.do(t, http.MethodGet, "/api/v1/alerts", nil, headers)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRunMonitor(t *testing.T) {
	env := setupTestServer(t)
	result := monitoring.CycleResult{AlertsCreated: 2, DevicesChecked: 5}
	env.monitor.On("RunCycle", mock.Anything).Return(result, nil).Once()

	w := env.do(t, http.MethodPost, "/api/v1/monitor/run", nil, env.adminHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got monitoring.CycleResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.AlertsCreated)
	assert.Equal(t, 5, got.DevicesChecked)
	env.monitor.AssertExpectations(t)
}

func TestRunMonitorErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"in progress", monitoring.ErrCycleInProgress, http.StatusConflict},
		{"registry down", monitoring.ErrRegistryUnavailable, http.StatusServiceUnavailable},
		{"cancelled", context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)
			env.monitor.On("RunCycle", mock.Anything).Return(monitoring.CycleResult{}, tt.err)

			w := env.do(t, http.MethodPost, "/api/v1/monitor/run", nil, env.adminHeaders())
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMonitorStatus(t *testing.T) {
	st := scheduler.Status{Running: true, Interval: 10 * time.Minute, CyclesRun: 4}
	env := setupTestServer(t, WithScheduler(fakeScheduler{status: st}))

	env.monitor.On("Settings", mock.Anything).Return(monitoring.DefaultSettings())
	env.monitor.On("LastResult").Return(monitoring.CycleResult{AlertsResolved: 1}, true)

	w := env.do(t, http.MethodGet, "/api/v1/monitor/status", nil, env.adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var resp MonitorStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.LastResult)
	assert.Equal(t, 1, resp.LastResult.AlertsResolved)
	require.NotNil(t, resp.Scheduler)
	assert.Equal(t, 4, resp.Scheduler.CyclesRun)
	assert.Equal(t, 10, resp.Settings.MonitoringIntervalMinutes)
}

func seedAlerts(t *testing.T, db *database.DB) {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	resolvedAt := now.Add(-time.Hour)

	require.NoError(t, db.InsertAlerts(context.Background(), []types.Alert{
		{ID: "a-open", Type: types.FaultCameraOffline, DeviceID: "cam-1", DeviceKind: types.DeviceKindCamera,
			Message: "offline", Severity: types.SeverityCritical, CreatedAt: now},
		{ID: "a-old", Type: types.FaultCameraOffline, DeviceID: "cam-1", DeviceKind: types.DeviceKindCamera,
			Message: "offline", Severity: types.SeverityCritical, CreatedAt: now.Add(-2 * time.Hour),
			Resolved: true, ResolvedAt: &resolvedAt},
		{ID: "a-gw", Type: types.FaultGatewayOverheating, DeviceID: "gw-1", DeviceKind: types.DeviceKindGateway,
			Message: "hot", Severity: types.SeverityCritical, CreatedAt: now},
	}))
}

func TestListAlerts(t *testing.T) {
	env := setupTestServer(t)
	seedAlerts(t, env.db)

	tests := []struct {
		query string
		count int
	}{
		{"", 3},
		{"?resolved=false", 2},
		{"?resolved=true", 1},
		{"?deviceId=gw-1", 1},
		{"?limit=1", 1},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, "/api/v1/alerts"+tt.query, nil, env.adminHeaders())
		require.Equal(t, http.StatusOK, w.Code, tt.query)

		var resp AlertsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tt.count, resp.TotalCount, tt.query)
	}

	w := env.do(t, http.MethodGet, "/api/v1/alerts?resolved=maybe", nil, env.adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToggleAlert(t *testing.T) {
	env := setupTestServer(t)
	seedAlerts(t, env.db)

	// Resolve the open gateway alert
	w := env.do(t, http.MethodPost, "/api/v1/alerts/a-gw/toggle", nil, env.adminHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Alert.Resolved)
	assert.NotNil(t, resp.Alert.ResolvedAt)

	// And reopen it
	w = env.do(t, http.MethodPost, "/api/v1/alerts/a-gw/toggle", nil, env.adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var reopened AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reopened))
	assert.False(t, reopened.Alert.Resolved)
	assert.Nil(t, reopened.Alert.ResolvedAt)

	stored, err := env.db.GetAlert(context.Background(), "a-gw")
	require.NoError(t, err)
	assert.False(t, stored.Resolved)
	assert.Nil(t, stored.ResolvedAt)

	// a-old cannot be reopened while a-open is open for the same pair
	w = env.do(t, http.MethodPost, "/api/v1/alerts/a-old/toggle", nil, env.adminHeaders())
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/alerts/missing/toggle", nil, env.adminHeaders())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteResolvedAlerts(t *testing.T) {
	env := setupTestServer(t)
	seedAlerts(t, env.db)

	w := env.do(t, http.MethodDelete, "/api/v1/alerts/resolved", nil, env.adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Deleted)
}

func TestSettingsEndpoints(t *testing.T) {
	env := setupTestServer(t)
	env.monitor.On("Settings", mock.Anything).Return(monitoring.DefaultSettings())

	w := env.do(t, http.MethodGet, "/api/v1/settings", nil, env.adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	var got monitoring.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, monitoring.DefaultSettings(), got)

	w = env.do(t, http.MethodPut, "/api/v1/settings", map[string]interface{}{
		"monitoringIntervalMinutes": 5,
		"adminRecipient":            "ops@example.com",
	}, env.adminHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.db.LoadSettings(context.Background(), monitoring.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 5, stored.MonitoringIntervalMinutes)
	assert.Equal(t, "ops@example.com", stored.AdminRecipient)
	assert.Equal(t, 180, stored.HealthCheckTimeoutSeconds)

	w = env.do(t, http.MethodPut, "/api/v1/settings", map[string]interface{}{
		"healthCheckTimeoutSeconds": 0,
	}, env.adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(ErrorCodeValidationFailed), decodeError(t, w).Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	env := setupTestServer(t)
	env.server.router.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := env.do(t, http.MethodGet, "/panic", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(ErrorCodeInternalError), decodeError(t, w).Code)
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, err := IssueAdminToken(testSecret, "ops", time.Hour)
	require.NoError(t, err)

	claims, err := ParseAdminToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)

	_, err = IssueAdminToken("", "ops", time.Hour)
	assert.Error(t, err)
}
