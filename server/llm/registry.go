package llm

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Registry holds provider handles and their live statistics. All stats
// mutations go through the registry so concurrent health checks and load
// balancer reads never observe a half-written record.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*registeredProvider
}

type registeredProvider struct {
	config ProviderConfig
	handle Provider
	stats  ProviderStats
}

// ProviderInfo is a read-only snapshot of one registered provider.
type ProviderInfo struct {
	Config ProviderConfig
	Stats  ProviderStats
}

// UpdateProviderStats is a partial stats update. Nil fields are unchanged.
type UpdateProviderStats struct {
	IsHealthy           *bool
	AverageResponseTime *time.Duration
	TotalRequests       *int64
	LastUsed            *time.Time
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*registeredProvider),
	}
}

// Register adds a provider under config.Name. New providers start healthy
// until the first probe says otherwise.
func (r *Registry) Register(config ProviderConfig, handle Provider) error {
	if config.Name == "" {
		return errors.New("provider name is required")
	}
	if handle == nil {
		return errors.New("provider handle is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[config.Name]; ok {
		return errors.Errorf("provider %q is already registered", config.Name)
	}
	if config.CostWeight <= 0 {
		config.CostWeight = 1.0
	}

	r.providers[config.Name] = &registeredProvider{
		config: config,
		handle: handle,
		stats:  ProviderStats{IsHealthy: true},
	}

	slog.Info("registered provider",
		"name", config.Name,
		"priority", config.Priority,
		"enabled", config.Enabled)
	return nil
}

// Unregister removes a provider. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// List returns snapshots of all registered providers, ordered by priority
// ascending with name as the tie-break.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		infos = append(infos, ProviderInfo{Config: p.config, Stats: p.stats})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Config.Priority != infos[j].Config.Priority {
			return infos[i].Config.Priority < infos[j].Config.Priority
		}
		return infos[i].Config.Name < infos[j].Config.Name
	})
	return infos
}

// Get returns the provider handle for name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, false
	}
	return p.handle, true
}

// GetStats returns the current stats snapshot for name.
func (r *Registry) GetStats(name string) (ProviderStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return ProviderStats{}, false
	}
	return p.stats, true
}

// UpdateStats merges the supplied fields into the provider's stats. Updating
// an unknown name logs a warning and does nothing: probes may race a
// provider's removal.
func (r *Registry) UpdateStats(name string, update UpdateProviderStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		slog.Warn("stats update for unknown provider", "name", name)
		return
	}

	if update.IsHealthy != nil {
		p.stats.IsHealthy = *update.IsHealthy
	}
	if update.AverageResponseTime != nil {
		p.stats.AverageResponseTime = *update.AverageResponseTime
	}
	if update.TotalRequests != nil {
		p.stats.TotalRequests = *update.TotalRequests
	}
	if update.LastUsed != nil {
		p.stats.LastUsed = *update.LastUsed
	}
}

// RecordRequest folds one request attempt into the provider's stats under a
// single lock acquisition: bumps TotalRequests, stamps LastUsed and updates
// the rolling average response time.
func (r *Registry) RecordRequest(name string, responseTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		slog.Warn("request record for unknown provider", "name", name)
		return
	}

	total := p.stats.TotalRequests
	p.stats.AverageResponseTime = time.Duration(
		(int64(p.stats.AverageResponseTime)*total + int64(responseTime)) / (total + 1))
	p.stats.TotalRequests = total + 1
	p.stats.LastUsed = time.Now()
}

// SetEnabled flips the administrative on/off switch for a provider.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		slog.Warn("enable toggle for unknown provider", "name", name)
		return
	}
	p.config.Enabled = enabled
}

// Size returns the number of registered providers.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
