package llm

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellwise/sellwise/internal/coreerrors"
)

func newBalancer(t *testing.T, r *Registry, cfg BalancerConfig) *LoadBalancer {
	t.Helper()
	cfg.RetryDelay = time.Millisecond
	lb, err := NewLoadBalancer(r, cfg, nil)
	require.NoError(t, err)
	return lb
}

func TestNewLoadBalancer_UnknownStrategy(t *testing.T) {
	_, err := NewLoadBalancer(NewRegistry(), BalancerConfig{Strategy: "fastest"}, nil)
	require.Error(t, err)
	assert.True(t, coreerrors.HasCode(err, coreerrors.ErrCodeConfiguration))
}

func TestLoadBalancer_RoundRobinVisitsEachOnce(t *testing.T) {
	r := NewRegistry()
	registerFake(t, r, "bravo", 2, true)
	registerFake(t, r, "alpha", 1, true)
	registerFake(t, r, "charlie", 3, true)

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyRoundRobin})

	var picked []string
	for i := 0; i < 6; i++ {
		info, _, err := lb.Select()
		require.NoError(t, err)
		picked = append(picked, info.Config.Name)
	}
	// Two full cycles in priority order.
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "alpha", "bravo", "charlie"}, picked)
}

func TestLoadBalancer_FallsBackToEnabledWhenNoneHealthy(t *testing.T) {
	r := NewRegistry()
	registerFake(t, r, "alpha", 1, true)
	registerFake(t, r, "bravo", 2, false)

	unhealthy := false
	r.UpdateStats("alpha", UpdateProviderStats{IsHealthy: &unhealthy})

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyRoundRobin})
	info, _, err := lb.Select()
	require.NoError(t, err)
	assert.Equal(t, "alpha", info.Config.Name)
}

func TestLoadBalancer_NoEnabledProviders(t *testing.T) {
	r := NewRegistry()
	registerFake(t, r, "alpha", 1, false)

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyRoundRobin})
	_, _, err := lb.Select()
	require.Error(t, err)
	assert.True(t, coreerrors.HasCode(err, coreerrors.ErrCodeProviderExhausted))
}

func TestLoadBalancer_LeastLoaded(t *testing.T) {
	r := NewRegistry()
	registerFake(t, r, "slow", 1, true)
	registerFake(t, r, "fast", 2, true)

	slowRT := 500 * time.Millisecond
	fastRT := 50 * time.Millisecond
	r.UpdateStats("slow", UpdateProviderStats{AverageResponseTime: &slowRT})
	r.UpdateStats("fast", UpdateProviderStats{AverageResponseTime: &fastRT})

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyLeastLoaded})
	info, _, err := lb.Select()
	require.NoError(t, err)
	assert.Equal(t, "fast", info.Config.Name)
}

func TestLoadBalancer_LeastLoadedTieBrokenByPriority(t *testing.T) {
	r := NewRegistry()
	registerFake(t, r, "second", 2, true)
	registerFake(t, r, "first", 1, true)

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyLeastLoaded})
	info, _, err := lb.Select()
	require.NoError(t, err)
	assert.Equal(t, "first", info.Config.Name)
}

func TestLoadBalancer_CostOptimized(t *testing.T) {
	r := NewRegistry()
	cheap := newFakeProvider("pong")
	pricey := newFakeProvider("pong")
	require.NoError(t, r.Register(ProviderConfig{Name: "cheap", Priority: 2, Enabled: true, CostWeight: 0.5}, cheap))
	require.NoError(t, r.Register(ProviderConfig{Name: "pricey", Priority: 1, Enabled: true, CostWeight: 5.0}, pricey))

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyCostOptimized})
	info, _, err := lb.Select()
	require.NoError(t, err)
	assert.Equal(t, "cheap", info.Config.Name)
}

func TestLoadBalancer_CostOptimizedPenalizesUnhealthy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ProviderConfig{Name: "cheap", Priority: 1, Enabled: true, CostWeight: 0.5}, newFakeProvider("pong")))
	require.NoError(t, r.Register(ProviderConfig{Name: "pricey", Priority: 2, Enabled: true, CostWeight: 2.0}, newFakeProvider("pong")))

	unhealthy := false
	r.UpdateStats("cheap", UpdateProviderStats{IsHealthy: &unhealthy})

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyCostOptimized, UnhealthyPenalty: 100})
	info, _, err := lb.Select()
	require.NoError(t, err)
	assert.Equal(t, "pricey", info.Config.Name)
}

func TestLoadBalancer_ExecuteFailsOver(t *testing.T) {
	r := NewRegistry()
	broken := registerFake(t, r, "broken", 1, true)
	broken.fail(errors.New("upstream 500"))
	working := registerFake(t, r, "working", 2, true)

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyRoundRobin, MaxRetries: 3})
	resp, err := lb.Execute(context.Background(), &GenerateRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, 1, broken.callCount())
	assert.Equal(t, 1, working.callCount())

	// Both attempts left a trace in the registry.
	stats, _ := r.GetStats("broken")
	assert.Equal(t, int64(1), stats.TotalRequests)
	stats, _ = r.GetStats("working")
	assert.Equal(t, int64(1), stats.TotalRequests)
}

func TestLoadBalancer_ExecuteExhaustsAllCandidates(t *testing.T) {
	r := NewRegistry()
	registerFake(t, r, "one", 1, true).fail(errors.New("boom one"))
	registerFake(t, r, "two", 2, true).fail(errors.New("boom two"))

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyRoundRobin, MaxRetries: 5})
	_, err := lb.Execute(context.Background(), &GenerateRequest{})
	require.Error(t, err)
	assert.True(t, coreerrors.HasCode(err, coreerrors.ErrCodeProviderExhausted))

	var ce *coreerrors.CoreError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Context["one"], "boom one")
	assert.Contains(t, ce.Context["two"], "boom two")
}

func TestLoadBalancer_ExecuteRespectsMaxRetries(t *testing.T) {
	r := NewRegistry()
	one := registerFake(t, r, "one", 1, true)
	one.fail(errors.New("down"))
	two := registerFake(t, r, "two", 2, true)
	two.fail(errors.New("down"))
	three := registerFake(t, r, "three", 3, true)

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyLeastLoaded, MaxRetries: 2})
	_, err := lb.Execute(context.Background(), &GenerateRequest{})
	require.Error(t, err)
	assert.Zero(t, three.callCount())
}
