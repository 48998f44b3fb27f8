package monitoring

import (
	"sort"

	"clearpoint-monitor/internal/health"
	"clearpoint-monitor/internal/types"
)

// ClassifiedDevice pairs a device with its classification for this cycle
type ClassifiedDevice struct {
	Device         types.Device
	Classification health.Classification
}

// SuppressionSet holds the customers whose gateway is offline. Camera
// offline-type alerts for these customers are withheld.
type SuppressionSet map[string]struct{}

// ResolveSuppression builds the suppression set from classified gateways
func ResolveSuppression(gateways []ClassifiedDevice) SuppressionSet {
	set := make(SuppressionSet)
	for _, gw := range gateways {
		if gw.Classification.Offline() && gw.Device.CustomerID != "" {
			set[gw.Device.CustomerID] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the customer is suppressed
func (s SuppressionSet) Contains(customerID string) bool {
	_, ok := s[customerID]
	return ok
}

// Customers returns the suppressed customer identifiers in sorted order
func (s SuppressionSet) Customers() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// isOfflineFault reports whether a camera fault is explained by a gateway outage
func isOfflineFault(f types.FaultType) bool {
	return f == types.FaultCameraOffline || f == types.FaultDeviceStale
}

// withoutOfflineFindings drops offline-type findings. The second return value
// reports whether anything was removed.
func withoutOfflineFindings(findings []health.Finding) ([]health.Finding, bool) {
	kept := make([]health.Finding, 0, len(findings))
	for _, f := range findings {
		if !isOfflineFault(f.Fault) {
			kept = append(kept, f)
		}
	}
	return kept, len(kept) != len(findings)
}
