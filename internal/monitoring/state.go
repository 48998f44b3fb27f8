package monitoring

import (
	"context"
	"fmt"

	"clearpoint-monitor/internal/types"
)

type stateKey struct {
	deviceID string
	fault    types.FaultType
}

// StateTable maps (device, fault type) to the open alert for that pair. It is
// built fresh for every cycle and never shared between cycles.
type StateTable struct {
	store     AlertStore
	open      map[stateKey]types.Alert
	preloaded bool
}

// NewStateTable builds a table from a complete list of open alerts
func NewStateTable(open []types.Alert) *StateTable {
	t := &StateTable{
		open:      make(map[stateKey]types.Alert, len(open)),
		preloaded: true,
	}
	for _, a := range open {
		if !a.Resolved {
			t.open[stateKey{a.DeviceID, a.Type}] = a
		}
	}
	return t
}

// LoadStateTable preloads every open alert from the store. When the preload
// fails the returned table falls back to per-key FindOpenAlert lookups.
func LoadStateTable(ctx context.Context, store AlertStore) (*StateTable, error) {
	open, err := store.ListOpenAlerts(ctx)
	if err != nil {
		return &StateTable{store: store, open: make(map[stateKey]types.Alert)},
			fmt.Errorf("failed to preload open alerts: %w", err)
	}
	t := NewStateTable(open)
	t.store = store
	return t, nil
}

// Lookup returns the open alert for the pair, or nil if there is none
func (t *StateTable) Lookup(ctx context.Context, deviceID string, fault types.FaultType) (*types.Alert, error) {
	key := stateKey{deviceID, fault}
	if a, ok := t.open[key]; ok {
		return &a, nil
	}
	if t.preloaded || t.store == nil {
		return nil, nil
	}

	a, err := t.store.FindOpenAlert(ctx, deviceID, fault)
	if err != nil {
		return nil, fmt.Errorf("failed to find open alert: %w", err)
	}
	if a != nil {
		t.open[key] = *a
	}
	return a, nil
}

// MarkOpen records a newly opened alert
func (t *StateTable) MarkOpen(a types.Alert) {
	t.open[stateKey{a.DeviceID, a.Type}] = a
}

// MarkResolved forgets the open alert for the pair
func (t *StateTable) MarkResolved(deviceID string, fault types.FaultType) {
	delete(t.open, stateKey{deviceID, fault})
}

// Len returns the number of open alerts currently tracked
func (t *StateTable) Len() int {
	return len(t.open)
}
