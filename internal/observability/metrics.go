package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates per-provider request metrics.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	providerMetrics map[string]*ProviderMetrics
}

// ProviderMetrics holds counters for a single provider.
type ProviderMetrics struct {
	requestCount  atomic.Int64
	errorCount    atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		providerMetrics: make(map[string]*ProviderMetrics),
	}
}

// RecordRequest records one request routed to the named provider.
func (m *Metrics) RecordRequest(provider string) {
	m.requestTotal.Add(1)
	m.forProvider(provider).requestCount.Add(1)
}

// RecordFailure records one failed request for the named provider.
func (m *Metrics) RecordFailure(provider string) {
	m.requestFailed.Add(1)
	m.forProvider(provider).errorCount.Add(1)
}

// RecordDuration records the duration of one request for the named provider.
func (m *Metrics) RecordDuration(provider string, d time.Duration) {
	m.forProvider(provider).totalDuration.Add(d.Milliseconds())
}

// Snapshot returns a point-in-time view of all counters.
func (m *Metrics) Snapshot() map[string]ProviderSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ProviderSnapshot, len(m.providerMetrics))
	for name, pm := range m.providerMetrics {
		count := pm.requestCount.Load()
		snap := ProviderSnapshot{
			Requests: count,
			Errors:   pm.errorCount.Load(),
		}
		if count > 0 {
			snap.AvgDurationMs = pm.totalDuration.Load() / count
		}
		out[name] = snap
	}
	return out
}

// ProviderSnapshot is a point-in-time view of one provider's counters.
type ProviderSnapshot struct {
	Requests      int64 `json:"requests"`
	Errors        int64 `json:"errors"`
	AvgDurationMs int64 `json:"avg_duration_ms"`
}

// TotalRequests returns the total number of requests recorded.
func (m *Metrics) TotalRequests() int64 {
	return m.requestTotal.Load()
}

// TotalFailures returns the total number of failed requests recorded.
func (m *Metrics) TotalFailures() int64 {
	return m.requestFailed.Load()
}

func (m *Metrics) forProvider(name string) *ProviderMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	pm, ok := m.providerMetrics[name]
	if !ok {
		pm = &ProviderMetrics{}
		m.providerMetrics[name] = pm
	}
	return pm
}
