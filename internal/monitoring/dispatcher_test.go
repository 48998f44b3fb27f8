package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clearpoint-monitor/internal/types"
)

func newTestDispatcher(store AlertStore, notifier Notifier, recorder NotificationRecorder) *Dispatcher {
	return NewDispatcher(store, notifier, recorder, testLogger().WithField("component", "test"))
}

func TestDispatcher_ExcludesCandidateOwnAlert(t *testing.T) {
	now := baseTime
	store := newMemStore(types.Alert{ID: "new", DeviceID: "cam-1", Type: types.FaultCameraOffline, CreatedAt: now})
	notifier := &MockNotifier{}
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	result := newTestDispatcher(store, notifier, nil).Dispatch(context.Background(), DefaultSettings(), []Candidate{{
		Notification: Notification{AlertID: "new", DeviceID: "cam-1", Kind: types.FaultCameraOffline},
	}}, now)

	assert.Equal(t, DispatchResult{Sent: 1}, result)
}

func TestDispatcher_SetsRecipient(t *testing.T) {
	notifier := &MockNotifier{}
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)
	settings := DefaultSettings()
	settings.AdminRecipient = "ops@example.com"

	newTestDispatcher(newMemStore(), notifier, nil).Dispatch(context.Background(), settings, []Candidate{{
		Notification: Notification{AlertID: "a1", DeviceID: "cam-1", Kind: types.FaultDiskFull},
	}}, baseTime)

	sent := notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ops@example.com", sent[0].Recipient)
}

func TestDispatcher_RecoveryBypassesCooldown(t *testing.T) {
	now := baseTime
	store := newMemStore(types.Alert{ID: "old", DeviceID: "cam-1", Type: types.NotificationCameraOnline, CreatedAt: now.Add(-time.Minute)})
	notifier := &MockNotifier{}
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	result := newTestDispatcher(store, notifier, nil).Dispatch(context.Background(), DefaultSettings(), []Candidate{{
		SkipCooldown: true,
		Notification: Notification{AlertID: "old", DeviceID: "cam-1", Kind: types.NotificationCameraOnline},
	}}, now)

	assert.Equal(t, 1, result.Sent)
}

func TestDispatcher_RecordsOutcomes(t *testing.T) {
	now := baseTime
	store := newMemStore(types.Alert{ID: "prior", DeviceID: "cam-2", Type: types.FaultDiskFull, CreatedAt: now.Add(-10 * time.Minute)})
	notifier := &MockNotifier{}
	notifier.On("Send", mock.Anything, mock.MatchedBy(func(n Notification) bool { return n.DeviceID == "cam-1" })).Return(nil)
	notifier.On("Send", mock.Anything, mock.MatchedBy(func(n Notification) bool { return n.DeviceID == "cam-3" })).Return(errBoom)
	recorder := &memRecorder{}

	result := newTestDispatcher(store, notifier, recorder).Dispatch(context.Background(), DefaultSettings(), []Candidate{
		{Notification: Notification{AlertID: "a1", DeviceID: "cam-1", Kind: types.FaultDiskFull}},
		{Notification: Notification{AlertID: "a2", DeviceID: "cam-2", Kind: types.FaultDiskFull}},
		{Notification: Notification{AlertID: "a3", DeviceID: "cam-3", Kind: types.FaultDiskFull}},
	}, now)

	assert.Equal(t, DispatchResult{Sent: 1, Skipped: 1, Failed: 1}, result)
	require.Len(t, recorder.records, 3)
	assert.Equal(t, NotificationSent, recorder.records[0].Status)
	assert.Equal(t, NotificationRateLimited, recorder.records[1].Status)
	assert.Equal(t, NotificationFailed, recorder.records[2].Status)
	assert.Equal(t, "boom", recorder.records[2].Error)
}

func TestDispatcher_NoCandidates(t *testing.T) {
	notifier := &MockNotifier{}
	result := newTestDispatcher(newMemStore(), notifier, nil).Dispatch(context.Background(), DefaultSettings(), nil, baseTime)

	assert.Equal(t, DispatchResult{}, result)
	notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
