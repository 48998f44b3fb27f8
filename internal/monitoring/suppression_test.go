package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearpoint-monitor/internal/health"
	"clearpoint-monitor/internal/types"
)

func TestResolveSuppression(t *testing.T) {
	gateways := []ClassifiedDevice{
		{Device: gateway("gw-1", "c1"), Classification: health.Classification{Status: health.StatusOffline}},
		{Device: gateway("gw-2", "c2"), Classification: health.Classification{Status: health.StatusDegraded}},
		{Device: gateway("gw-3", "c3"), Classification: health.Classification{Status: health.StatusOnline}},
		{Device: gateway("gw-4", "c0"), Classification: health.Classification{Status: health.StatusOffline}},
	}

	set := ResolveSuppression(gateways)

	assert.True(t, set.Contains("c1"))
	assert.True(t, set.Contains("c0"))
	assert.False(t, set.Contains("c2"))
	assert.False(t, set.Contains("c3"))
	assert.Equal(t, []string{"c0", "c1"}, set.Customers())
}

func TestWithoutOfflineFindings(t *testing.T) {
	findings := []health.Finding{
		{Fault: types.FaultCameraOffline},
		{Fault: types.FaultDeviceStale},
		{Fault: types.FaultDiskFull},
	}

	kept, removed := withoutOfflineFindings(findings)
	assert.True(t, removed)
	require.Len(t, kept, 1)
	assert.Equal(t, types.FaultDiskFull, kept[0].Fault)

	kept, removed = withoutOfflineFindings([]health.Finding{{Fault: types.FaultStreamError}})
	assert.False(t, removed)
	assert.Len(t, kept, 1)
}

func TestStateTable_Preloaded(t *testing.T) {
	table := NewStateTable([]types.Alert{
		{ID: "a1", DeviceID: "cam-1", Type: types.FaultCameraOffline},
		{ID: "a2", DeviceID: "cam-2", Type: types.FaultCameraOffline, Resolved: true},
	})
	ctx := context.Background()

	got, err := table.Lookup(ctx, "cam-1", types.FaultCameraOffline)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a1", got.ID)

	got, err = table.Lookup(ctx, "cam-2", types.FaultCameraOffline)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, table.Len())

	table.MarkOpen(types.Alert{ID: "a3", DeviceID: "cam-2", Type: types.FaultDiskFull})
	got, _ = table.Lookup(ctx, "cam-2", types.FaultDiskFull)
	require.NotNil(t, got)

	table.MarkResolved("cam-1", types.FaultCameraOffline)
	got, _ = table.Lookup(ctx, "cam-1", types.FaultCameraOffline)
	assert.Nil(t, got)
}

func TestLoadStateTable_FallbackLookups(t *testing.T) {
	store := newMemStore(types.Alert{ID: "a1", DeviceID: "cam-1", Type: types.FaultCameraOffline, CreatedAt: time.Now()})
	store.listErr = errBoom

	table, err := LoadStateTable(context.Background(), store)
	require.Error(t, err)
	require.NotNil(t, table)

	got, err := table.Lookup(context.Background(), "cam-1", types.FaultCameraOffline)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a1", got.ID)

	store.findErr = errBoom
	_, err = table.Lookup(context.Background(), "cam-9", types.FaultCameraOffline)
	assert.ErrorIs(t, err, errBoom)
}

func TestSettings_WithDefaults(t *testing.T) {
	s := Settings{HealthCheckTimeoutSeconds: 300, AdminRecipient: "ops@example.com"}.WithDefaults()

	assert.Equal(t, 300, s.HealthCheckTimeoutSeconds)
	assert.Equal(t, 60, s.CriticalAlertThresholdMinutes)
	assert.Equal(t, 10*time.Minute, s.MonitoringInterval())
	assert.Equal(t, 14*24*time.Hour, s.AlertRetention())
	assert.Equal(t, "ops@example.com", s.AdminRecipient)

	th := ThresholdsFromSettings(s)
	assert.Equal(t, 300*time.Second, th.HealthCheckTimeout)
	assert.Equal(t, time.Hour, th.CriticalAlertThreshold)
	assert.Equal(t, health.GatewayStaleWindow, th.GatewayStaleWindow)
}
