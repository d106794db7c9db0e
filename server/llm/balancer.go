package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sellwise/sellwise/internal/coreerrors"
	"github.com/sellwise/sellwise/internal/observability"
)

// Strategy names a provider selection policy.
type Strategy string

const (
	// StrategyRoundRobin cycles a shared index over candidates in priority order.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyLeastLoaded picks the candidate with the lowest average response time.
	StrategyLeastLoaded Strategy = "least_loaded"
	// StrategyCostOptimized picks by configured cost weight combined with health.
	StrategyCostOptimized Strategy = "cost_optimized"
)

// BalancerConfig configures the load balancer.
type BalancerConfig struct {
	Strategy Strategy
	// MaxRetries bounds the number of candidates tried per request.
	MaxRetries int
	// RetryDelay is the wait between failover attempts.
	RetryDelay time.Duration
	// ExponentialBackoff doubles RetryDelay after each failed attempt.
	ExponentialBackoff bool
	// UnhealthyPenalty multiplies the cost score of unhealthy candidates.
	// Only used by cost_optimized. Defaults to 10.
	UnhealthyPenalty float64
}

// LoadBalancer selects a provider per request and performs failover across
// candidates on invocation failure.
type LoadBalancer struct {
	registry *Registry
	config   BalancerConfig
	metrics  *observability.Metrics

	mu      sync.Mutex
	rrIndex int
}

// NewLoadBalancer creates a load balancer over the given registry.
func NewLoadBalancer(registry *Registry, config BalancerConfig, metrics *observability.Metrics) (*LoadBalancer, error) {
	switch config.Strategy {
	case StrategyRoundRobin, StrategyLeastLoaded, StrategyCostOptimized:
	case "":
		config.Strategy = StrategyRoundRobin
	default:
		return nil, coreerrors.Configuration(fmt.Sprintf("unknown load balancer strategy %q", config.Strategy))
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.UnhealthyPenalty <= 0 {
		config.UnhealthyPenalty = 10
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &LoadBalancer{
		registry: registry,
		config:   config,
		metrics:  metrics,
	}, nil
}

// candidates returns eligible providers in selection order for the configured
// strategy. Providers must be enabled; healthy ones are preferred, but if none
// are healthy every enabled provider remains eligible rather than failing the
// request outright.
func (lb *LoadBalancer) candidates() []ProviderInfo {
	all := lb.registry.List() // already priority-ordered

	var enabled, healthy []ProviderInfo
	for _, info := range all {
		if !info.Config.Enabled {
			continue
		}
		enabled = append(enabled, info)
		if info.Stats.IsHealthy {
			healthy = append(healthy, info)
		}
	}

	pool := healthy
	if len(pool) == 0 {
		pool = enabled
	}

	switch lb.config.Strategy {
	case StrategyLeastLoaded:
		sort.SliceStable(pool, func(i, j int) bool {
			if pool[i].Stats.AverageResponseTime != pool[j].Stats.AverageResponseTime {
				return pool[i].Stats.AverageResponseTime < pool[j].Stats.AverageResponseTime
			}
			return pool[i].Config.Priority < pool[j].Config.Priority
		})
	case StrategyCostOptimized:
		sort.SliceStable(pool, func(i, j int) bool {
			si, sj := lb.costScore(pool[i]), lb.costScore(pool[j])
			if si != sj {
				return si < sj
			}
			return pool[i].Config.Priority < pool[j].Config.Priority
		})
	}
	return pool
}

// costScore combines the configured per-provider cost weight with observed
// latency and health. Lower is better.
func (lb *LoadBalancer) costScore(info ProviderInfo) float64 {
	score := info.Config.CostWeight * (1 + info.Stats.AverageResponseTime.Seconds())
	if !info.Stats.IsHealthy {
		score *= lb.config.UnhealthyPenalty
	}
	return score
}

// Select returns the provider the strategy picks for the next request,
// without invoking it.
func (lb *LoadBalancer) Select() (ProviderInfo, Provider, error) {
	pool := lb.candidates()
	if len(pool) == 0 {
		return ProviderInfo{}, nil, coreerrors.ProviderExhausted("no enabled providers registered", nil)
	}

	info := pool[0]
	if lb.config.Strategy == StrategyRoundRobin {
		lb.mu.Lock()
		info = pool[lb.rrIndex%len(pool)]
		lb.rrIndex++
		lb.mu.Unlock()
	}

	handle, ok := lb.registry.Get(info.Config.Name)
	if !ok {
		return ProviderInfo{}, nil, coreerrors.ProviderExhausted(
			fmt.Sprintf("provider %q vanished between selection and use", info.Config.Name), nil)
	}
	return info, handle, nil
}

// Execute invokes generation against the selected provider, failing over to
// the next-best candidate on error. Every attempt, successful or not, updates
// the provider's stats through the registry. If all candidates are exhausted
// it returns a ProviderExhausted error listing each attempted provider and
// its failure reason.
func (lb *LoadBalancer) Execute(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	pool := lb.candidates()
	if len(pool) == 0 {
		return nil, coreerrors.ProviderExhausted("no enabled providers registered", nil)
	}

	// The round-robin cursor picks the starting point; failover then walks
	// the pool cyclically from there.
	start := 0
	if lb.config.Strategy == StrategyRoundRobin {
		lb.mu.Lock()
		start = lb.rrIndex % len(pool)
		lb.rrIndex++
		lb.mu.Unlock()
	}

	attempts := lb.config.MaxRetries
	if attempts > len(pool) {
		attempts = len(pool)
	}

	failures := make(map[string]string)
	delay := lb.config.RetryDelay

	for i := 0; i < attempts; i++ {
		info := pool[(start+i)%len(pool)]
		name := info.Config.Name

		handle, ok := lb.registry.Get(name)
		if !ok {
			failures[name] = "provider no longer registered"
			continue
		}

		began := time.Now()
		lb.metrics.RecordRequest(name)
		resp, err := lb.invoke(ctx, handle, req)
		elapsed := time.Since(began)

		lb.registry.RecordRequest(name, elapsed)
		lb.metrics.RecordDuration(name, elapsed)

		if err == nil {
			return resp, nil
		}

		lb.metrics.RecordFailure(name)
		failures[name] = err.Error()
		slog.Warn("provider invocation failed, failing over",
			"provider", name,
			"attempt", i+1,
			"elapsed", elapsed,
			"error", err)

		if ctx.Err() != nil {
			break
		}
		if i < attempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if lb.config.ExponentialBackoff {
				delay *= 2
			}
		}
	}

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return nil, coreerrors.ProviderExhausted(
		fmt.Sprintf("all providers failed: %s", strings.Join(names, ", ")), failures)
}

// invoke routes to the tool-aware call when the request carries tools.
func (lb *LoadBalancer) invoke(ctx context.Context, handle Provider, req *GenerateRequest) (*GenerateResponse, error) {
	if len(req.Tools) > 0 {
		return handle.GenerateWithTools(ctx, req)
	}
	return handle.GenerateText(ctx, req)
}

// Metrics exposes the balancer's metrics collector.
func (lb *LoadBalancer) Metrics() *observability.Metrics {
	return lb.metrics
}
