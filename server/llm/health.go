package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sellwise/sellwise/internal/coreerrors"
	"github.com/sellwise/sellwise/internal/retry"
)

// HealthMonitorConfig configures the periodic provider health checks.
type HealthMonitorConfig struct {
	CheckInterval time.Duration
	Timeout       time.Duration
	RetryAttempts int
	// MaxConcurrentProbes bounds in-flight probes per cycle. Defaults to 8.
	MaxConcurrentProbes int64
	// BackoffBase is the base of the 2^attempt probe retry backoff.
	// Defaults to one second; tests shrink it.
	BackoffBase time.Duration
}

// HealthCheckResult is the outcome of a single provider probe.
type HealthCheckResult struct {
	ProviderName string
	IsHealthy    bool
	ResponseTime time.Duration
	Err          error
	Timestamp    time.Time
}

// AggregateStatus summarizes the last-known health of all providers.
type AggregateStatus struct {
	Status    string         `json:"status"` // healthy, degraded, unhealthy
	Healthy   int            `json:"healthy"`
	Total     int            `json:"total"`
	Providers []ProviderInfo `json:"providers"`
}

// HealthMonitor periodically probes every registered provider and writes the
// results back into the registry.
type HealthMonitor struct {
	registry *Registry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	config  HealthMonitorConfig
	sem     *semaphore.Weighted
}

// NewHealthMonitor creates a stopped health monitor over the registry.
func NewHealthMonitor(registry *Registry) *HealthMonitor {
	return &HealthMonitor{registry: registry}
}

// StartMonitoring validates the configuration, performs one check cycle
// immediately and starts the repeating probe loop. It fails with a
// configuration error before any timer starts if the parameters are invalid.
func (m *HealthMonitor) StartMonitoring(config HealthMonitorConfig) error {
	if config.CheckInterval <= 0 {
		return coreerrors.Configuration("check interval must be positive")
	}
	if config.Timeout <= 0 {
		return coreerrors.Configuration("probe timeout must be positive")
	}
	if config.RetryAttempts < 1 {
		return coreerrors.Configuration("retry attempts must be at least 1")
	}
	if config.Timeout >= config.CheckInterval {
		return coreerrors.Configuration(fmt.Sprintf(
			"probe timeout %s must be less than check interval %s",
			config.Timeout, config.CheckInterval))
	}
	if config.MaxConcurrentProbes <= 0 {
		config.MaxConcurrentProbes = 8
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return coreerrors.Configuration("health monitor is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.config = config
	m.sem = semaphore.NewWeighted(config.MaxConcurrentProbes)
	m.running = true

	m.wg.Add(1)
	go m.monitorLoop(ctx)

	slog.Info("health monitoring started",
		"interval", config.CheckInterval,
		"timeout", config.Timeout,
		"retry_attempts", config.RetryAttempts)
	return nil
}

// StopMonitoring cancels the probe loop. Safe to call redundantly.
func (m *HealthMonitor) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	slog.Info("health monitoring stopped")
}

func (m *HealthMonitor) monitorLoop(ctx context.Context) {
	defer m.wg.Done()

	// First cycle runs immediately rather than one interval in.
	m.checkCycle(ctx)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkCycle(ctx)
		}
	}
}

// checkCycle probes every registered provider. Probes run concurrently,
// bounded by the semaphore, and the cycle does not wait for stragglers
// beyond their own timeouts.
func (m *HealthMonitor) checkCycle(ctx context.Context) {
	for _, info := range m.registry.List() {
		name := info.Config.Name
		handle, ok := m.registry.Get(name)
		if !ok {
			continue
		}

		if err := m.sem.Acquire(ctx, 1); err != nil {
			return
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer m.sem.Release(1)
			result := m.CheckProviderHealth(ctx, name, handle)
			m.applyResult(result)
		}()
	}
}

// CheckProviderHealth issues a minimal probe with a bounded timeout, retrying
// with exponential backoff on failure. A provider is healthy for the cycle
// iff any attempt returns non-empty content before attempts are exhausted.
func (m *HealthMonitor) CheckProviderHealth(ctx context.Context, name string, handle Provider) HealthCheckResult {
	probe := &GenerateRequest{
		Messages:  []Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}

	result := HealthCheckResult{ProviderName: name, Timestamp: time.Now()}
	began := time.Now()

	for attempt := 0; attempt < m.config.RetryAttempts; attempt++ {
		resp, err := m.probeOnce(ctx, handle, probe)
		if err == nil && resp != nil && resp.Content != "" {
			result.IsHealthy = true
			result.Err = nil
			break
		}
		if err == nil {
			err = coreerrors.Validation("probe returned empty content")
		}
		result.Err = err

		if attempt < m.config.RetryAttempts-1 {
			backoff := retry.Backoff(m.config.BackoffBase, attempt, 0)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				result.Err = ctx.Err()
				result.ResponseTime = time.Since(began)
				return result
			}
		}
	}

	result.ResponseTime = time.Since(began)
	return result
}

// probeOnce races the provider call against the configured timeout. The
// probe always resolves even if the underlying call never returns.
func (m *HealthMonitor) probeOnce(ctx context.Context, handle Provider, req *GenerateRequest) (*GenerateResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	type outcome struct {
		resp *GenerateResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := handle.GenerateText(callCtx, req)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-callCtx.Done():
		return nil, coreerrors.Timeout("health probe timed out", callCtx.Err())
	}
}

// applyResult writes one probe outcome back into the registry regardless of
// success or failure.
func (m *HealthMonitor) applyResult(result HealthCheckResult) {
	healthy := result.IsHealthy
	update := UpdateProviderStats{IsHealthy: &healthy}
	if result.IsHealthy {
		update.AverageResponseTime = &result.ResponseTime
	}
	m.registry.UpdateStats(result.ProviderName, update)

	if !result.IsHealthy {
		slog.Warn("provider unhealthy",
			"provider", result.ProviderName,
			"response_time", result.ResponseTime,
			"error", result.Err)
	}
}

// GetHealthStatus aggregates last-known provider stats: healthy when at
// least 80% of providers are healthy, degraded between 50% and 80%,
// unhealthy below 50% or when no providers are registered.
func (m *HealthMonitor) GetHealthStatus() AggregateStatus {
	infos := m.registry.List()
	status := AggregateStatus{Total: len(infos), Providers: infos}

	for _, info := range infos {
		if info.Stats.IsHealthy {
			status.Healthy++
		}
	}

	switch {
	case status.Total == 0:
		status.Status = "unhealthy"
	case float64(status.Healthy)/float64(status.Total) >= 0.8:
		status.Status = "healthy"
	case float64(status.Healthy)/float64(status.Total) >= 0.5:
		status.Status = "degraded"
	default:
		status.Status = "unhealthy"
	}
	return status
}
