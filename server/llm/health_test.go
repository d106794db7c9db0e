package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellwise/sellwise/internal/coreerrors"
)

func testMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval: 200 * time.Millisecond,
		Timeout:       50 * time.Millisecond,
		RetryAttempts: 1,
		BackoffBase:   time.Millisecond,
	}
}

func TestHealthMonitor_ConfigValidation(t *testing.T) {
	m := NewHealthMonitor(NewRegistry())

	cases := []struct {
		name   string
		mutate func(*HealthMonitorConfig)
	}{
		{"TimeoutNotLessThanInterval", func(c *HealthMonitorConfig) { c.Timeout = c.CheckInterval }},
		{"ZeroInterval", func(c *HealthMonitorConfig) { c.CheckInterval = 0 }},
		{"ZeroTimeout", func(c *HealthMonitorConfig) { c.Timeout = 0 }},
		{"ZeroRetryAttempts", func(c *HealthMonitorConfig) { c.RetryAttempts = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testMonitorConfig()
			tc.mutate(&cfg)
			err := m.StartMonitoring(cfg)
			require.Error(t, err)
			assert.True(t, coreerrors.HasCode(err, coreerrors.ErrCodeConfiguration))
		})
	}

	// No timer was started by any failed attempt.
	m.StopMonitoring()
}

func TestHealthMonitor_StopIsIdempotent(t *testing.T) {
	m := NewHealthMonitor(NewRegistry())
	require.NoError(t, m.StartMonitoring(testMonitorConfig()))
	m.StopMonitoring()
	m.StopMonitoring()
	m.StopMonitoring()
}

func TestHealthMonitor_MarksFailingProviderUnhealthy(t *testing.T) {
	r := NewRegistry()
	registerFake(t, r, "good", 1, true)
	registerFake(t, r, "bad", 2, true).fail(errors.New("connection refused"))

	m := NewHealthMonitor(r)
	require.NoError(t, m.StartMonitoring(testMonitorConfig()))
	defer m.StopMonitoring()

	require.Eventually(t, func() bool {
		stats, ok := r.GetStats("bad")
		return ok && !stats.IsHealthy
	}, time.Second, 10*time.Millisecond)

	stats, ok := r.GetStats("good")
	require.True(t, ok)
	assert.True(t, stats.IsHealthy)
}

func TestHealthMonitor_EmptyContentIsUnhealthy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ProviderConfig{Name: "mute", Priority: 1, Enabled: true}, newFakeProvider("")))

	m := NewHealthMonitor(r)
	require.NoError(t, m.StartMonitoring(testMonitorConfig()))
	defer m.StopMonitoring()

	require.Eventually(t, func() bool {
		stats, ok := r.GetStats("mute")
		return ok && !stats.IsHealthy
	}, time.Second, 10*time.Millisecond)
}

func TestHealthMonitor_ProbeTimeoutResolves(t *testing.T) {
	r := NewRegistry()
	slow := registerFake(t, r, "slow", 1, true)
	slow.delay = 500 * time.Millisecond // well past the 50ms probe timeout

	m := NewHealthMonitor(r)
	m.config = testMonitorConfig()

	began := time.Now()
	result := m.CheckProviderHealth(context.Background(), "slow", slow)
	assert.False(t, result.IsHealthy)
	assert.True(t, coreerrors.HasCode(result.Err, coreerrors.ErrCodeTimeout))
	assert.Less(t, time.Since(began), 400*time.Millisecond)
}

func TestHealthMonitor_AggregateStatus(t *testing.T) {
	cases := []struct {
		healthy int
		total   int
		want    string
	}{
		{4, 5, "healthy"},
		{3, 5, "degraded"},
		{1, 5, "unhealthy"},
		{0, 0, "unhealthy"},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_of_%d", tc.healthy, tc.total), func(t *testing.T) {
			r := NewRegistry()
			for i := 0; i < tc.total; i++ {
				name := fmt.Sprintf("p%d", i)
				registerFake(t, r, name, i, true)
				healthy := i < tc.healthy
				r.UpdateStats(name, UpdateProviderStats{IsHealthy: &healthy})
			}

			m := NewHealthMonitor(r)
			status := m.GetHealthStatus()
			assert.Equal(t, tc.want, status.Status)
			assert.Equal(t, tc.healthy, status.Healthy)
			assert.Equal(t, tc.total, status.Total)
		})
	}
}

// A provider whose probes keep failing must drop out of selection in favor of
// the next enabled-healthy candidate.
func TestHealthMonitor_FailingProviderSkippedBySelection(t *testing.T) {
	r := NewRegistry()
	p1 := registerFake(t, r, "p1", 1, true)
	registerFake(t, r, "p2", 2, true)

	lb := newBalancer(t, r, BalancerConfig{Strategy: StrategyRoundRobin})
	info, _, err := lb.Select()
	require.NoError(t, err)
	assert.Equal(t, "p1", info.Config.Name)

	p1.fail(errors.New("upstream gone"))
	m := NewHealthMonitor(r)
	require.NoError(t, m.StartMonitoring(testMonitorConfig()))
	defer m.StopMonitoring()

	require.Eventually(t, func() bool {
		stats, ok := r.GetStats("p1")
		return ok && !stats.IsHealthy
	}, time.Second, 10*time.Millisecond)

	for i := 0; i < 4; i++ {
		info, _, err := lb.Select()
		require.NoError(t, err)
		assert.Equal(t, "p2", info.Config.Name)
	}
}
