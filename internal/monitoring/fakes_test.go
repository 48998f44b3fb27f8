package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"clearpoint-monitor/internal/types"
)

var errBoom = errors.New("boom")

// memStore is an in-memory AlertStore
type memStore struct {
	mu        sync.Mutex
	alerts    []types.Alert
	batchErr  error
	insertErr map[string]error
	listErr   error
	findErr   error
	batches   int
}

func newMemStore(alerts ...types.Alert) *memStore {
	return &memStore{alerts: alerts, insertErr: map[string]error{}}
}

func (s *memStore) FindOpenAlert(ctx context.Context, deviceID string, fault types.FaultType) (*types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, a := range s.alerts {
		if a.DeviceID == deviceID && a.Type == fault && !a.Resolved {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindRecentAlert(ctx context.Context, deviceID string, fault types.FaultType, since time.Time, excludeID string) (*types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.DeviceID == deviceID && a.Type == fault && a.ID != excludeID && !a.CreatedAt.Before(since) {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (s *memStore) InsertAlert(ctx context.Context, alert types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[alert.DeviceID]; err != nil {
		return err
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *memStore) InsertAlerts(ctx context.Context, alerts []types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	s.batches++
	s.alerts = append(s.alerts, alerts...)
	return nil
}

func (s *memStore) ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == alertID {
			s.alerts[i].Resolved = true
			at := resolvedAt
			s.alerts[i].ResolvedAt = &at
			return nil
		}
	}
	return errors.New("alert not found")
}

func (s *memStore) ListOpenAlerts(ctx context.Context) ([]types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []types.Alert
	for _, a := range s.alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) open(deviceID string, fault types.FaultType) []types.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Alert
	for _, a := range s.alerts {
		if a.DeviceID == deviceID && a.Type == fault && !a.Resolved {
			out = append(out, a)
		}
	}
	return out
}

func (s *memStore) resolveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		s.alerts[i].Resolved = true
	}
}

type fakeRegistry struct {
	inventory types.Inventory
	err       error
}

func (r *fakeRegistry) ListDevices(ctx context.Context) (types.Inventory, error) {
	return r.inventory, r.err
}

type fakeSettings struct {
	settings Settings
	err      error
}

func (s *fakeSettings) GetSettings(ctx context.Context) (Settings, error) {
	return s.settings, s.err
}

type fakeSnapshots struct {
	mu         sync.Mutex
	cameras    map[string]*types.CameraHealth
	gateways   map[string]*types.GatewayHealth
	cameraErrs map[string]error
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		cameras:    map[string]*types.CameraHealth{},
		gateways:   map[string]*types.GatewayHealth{},
		cameraErrs: map[string]error{},
	}
}

func (f *fakeSnapshots) GetCameraHealth(ctx context.Context, cameraID string) (*types.CameraHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.cameraErrs[cameraID]; err != nil {
		return nil, err
	}
	return f.cameras[cameraID], nil
}

func (f *fakeSnapshots) GetGatewayHealth(ctx context.Context, gatewayID string) (*types.GatewayHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gateways[gatewayID], nil
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, n Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotifier) sent() []Notification {
	var out []Notification
	for _, c := range m.Calls {
		if c.Method == "Send" {
			out = append(out, c.Arguments.Get(1).(Notification))
		}
	}
	return out
}

type memRecorder struct {
	records []NotificationRecord
}

func (r *memRecorder) RecordNotification(ctx context.Context, record NotificationRecord) error {
	r.records = append(r.records, record)
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func at(t time.Time) *time.Time {
	return &t
}

func fptr(v float64) *float64 { return &v }
