// Package finops tracks per-provider spend so routing decisions and operators
// can see what the assistant actually costs.
package finops

import (
	"sort"
	"sync"
	"time"
)

// CostRate prices one provider's tokens, in dollars per thousand tokens.
type CostRate struct {
	PromptPer1K float64
	OutputPer1K float64
}

// UsageRecord is one priced generation call.
type UsageRecord struct {
	Provider     string
	PromptTokens int
	OutputTokens int
	Latency      time.Duration
	Timestamp    time.Time
}

// ProviderSpend accumulates spend and usage for one provider.
type ProviderSpend struct {
	Provider     string        `json:"provider"`
	Calls        int64         `json:"calls"`
	PromptTokens int64         `json:"promptTokens"`
	OutputTokens int64         `json:"outputTokens"`
	TotalCost    float64       `json:"totalCost"`
	AvgLatency   time.Duration `json:"avgLatency"`
}

// CostReport is a point-in-time view of spend across providers, most
// expensive first.
type CostReport struct {
	TotalCost float64         `json:"totalCost"`
	Providers []ProviderSpend `json:"providers"`
	Since     time.Time       `json:"since"`
}

// CostMonitor aggregates generation spend in memory. Rates for unknown
// providers default to zero, so untracked providers show usage but no cost.
type CostMonitor struct {
	mu    sync.Mutex
	rates map[string]CostRate
	spend map[string]*ProviderSpend
	since time.Time

	totalLatency map[string]time.Duration
}

// NewCostMonitor creates a cost monitor with the given per-provider rates.
func NewCostMonitor(rates map[string]CostRate) *CostMonitor {
	if rates == nil {
		rates = make(map[string]CostRate)
	}
	return &CostMonitor{
		rates:        rates,
		spend:        make(map[string]*ProviderSpend),
		since:        time.Now(),
		totalLatency: make(map[string]time.Duration),
	}
}

// SetRate sets or replaces the rate for one provider.
func (m *CostMonitor) SetRate(provider string, rate CostRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[provider] = rate
}

// Record prices and accumulates one generation call.
func (m *CostMonitor) Record(rec UsageRecord) {
	if rec.Provider == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.spend[rec.Provider]
	if !ok {
		s = &ProviderSpend{Provider: rec.Provider}
		m.spend[rec.Provider] = s
	}

	rate := m.rates[rec.Provider]
	cost := float64(rec.PromptTokens)/1000*rate.PromptPer1K +
		float64(rec.OutputTokens)/1000*rate.OutputPer1K

	s.Calls++
	s.PromptTokens += int64(rec.PromptTokens)
	s.OutputTokens += int64(rec.OutputTokens)
	s.TotalCost += cost
	m.totalLatency[rec.Provider] += rec.Latency
	s.AvgLatency = m.totalLatency[rec.Provider] / time.Duration(s.Calls)
}

// Report returns accumulated spend across all providers, most expensive first.
func (m *CostMonitor) Report() CostReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := CostReport{Since: m.since}
	for _, s := range m.spend {
		report.TotalCost += s.TotalCost
		report.Providers = append(report.Providers, *s)
	}
	sort.Slice(report.Providers, func(i, j int) bool {
		if report.Providers[i].TotalCost != report.Providers[j].TotalCost {
			return report.Providers[i].TotalCost > report.Providers[j].TotalCost
		}
		return report.Providers[i].Provider < report.Providers[j].Provider
	})
	return report
}

// Reset clears accumulated spend and restarts the reporting window.
func (m *CostMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spend = make(map[string]*ProviderSpend)
	m.totalLatency = make(map[string]time.Duration)
	m.since = time.Now()
}
