package assistant

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeSources implements both source interfaces with scriptable failures.
type fakeSources struct {
	mu           sync.Mutex
	businessErrs int
	recErrs      int
	businessCall int
	recCalls     int
}

func (f *fakeSources) FetchBusinessData(_ context.Context, userID string) (*BusinessData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.businessCall++
	if f.businessErrs > 0 {
		f.businessErrs--
		return nil, errors.New("marketplace api unavailable")
	}
	return &BusinessData{TotalRevenue: 1234.56, TotalOrders: 42, LastUpdated: time.Now()}, nil
}

func (f *fakeSources) FetchRecommendations(_ context.Context, userID string) (map[string][]Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recCalls++
	if f.recErrs > 0 {
		f.recErrs--
		return nil, errors.New("recommendation engine unavailable")
	}
	return map[string][]Recommendation{
		"pricing": {{ID: "r1", Title: "lower shipping cost", Priority: 3, CreatedAt: time.Now()}},
	}, nil
}

func testRefresherConfig() RefresherConfig {
	return RefresherConfig{
		MaxRetries:         3,
		BaseDelay:          time.Millisecond,
		MaxRetryDelay:      5 * time.Millisecond,
		RescheduleBase:     10 * time.Millisecond,
		MaxRescheduleDelay: 50 * time.Millisecond,
		MaxConcurrent:      4,
		RefreshRate:        rate.Inf,
		RefreshBurst:       1,
	}
}

func newTestRefresher(t *testing.T, src *fakeSources) *Refresher {
	t.Helper()
	r := NewRefresher(src, src, testRefresherConfig())
	t.Cleanup(r.Stop)
	return r
}

func TestRefreshBusinessData(t *testing.T) {
	src := &fakeSources{}
	r := newTestRefresher(t, src)

	data, err := r.RefreshBusinessData(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 42, data.TotalOrders)
	require.False(t, data.LastUpdated.IsZero())

	src.businessErrs = 1
	_, err = r.RefreshBusinessData(context.Background(), "u1")
	require.Error(t, err, "source failures propagate")
}

func TestRefreshWithRetry(t *testing.T) {
	t.Run("recovers from transient failures", func(t *testing.T) {
		src := &fakeSources{businessErrs: 1, recErrs: 1}
		r := newTestRefresher(t, src)

		data, recs, err := r.RefreshWithRetry(context.Background(), "u1", 3)
		require.NoError(t, err)
		require.Equal(t, 42, data.TotalOrders)
		require.Len(t, recs["pricing"], 1)
		require.GreaterOrEqual(t, src.businessCall, 2, "the pair is retried as a unit")
	})

	t.Run("fails after exhausting retries", func(t *testing.T) {
		src := &fakeSources{businessErrs: 10}
		r := newTestRefresher(t, src)

		_, _, err := r.RefreshWithRetry(context.Background(), "u1", 2)
		require.Error(t, err)
		require.Equal(t, 2, src.businessCall)
	})
}

func TestScheduleRefresh(t *testing.T) {
	src := &fakeSources{}
	r := newTestRefresher(t, src)

	var ran atomic.Int32
	r.ScheduleRefresh("u1", "s1", 10*time.Millisecond, func(context.Context) error {
		ran.Add(1)
		return nil
	})
	require.True(t, r.HasPending("u1", "s1"))

	require.Eventually(t, func() bool {
		return ran.Load() == 1
	}, time.Second, 5*time.Millisecond)
	require.False(t, r.HasPending("u1", "s1"))
}

func TestScheduleRefreshReplacesPending(t *testing.T) {
	src := &fakeSources{}
	r := newTestRefresher(t, src)

	var first, second atomic.Int32
	r.ScheduleRefresh("u1", "s1", 100*time.Millisecond, func(context.Context) error {
		first.Add(1)
		return nil
	})
	r.ScheduleRefresh("u1", "s1", 10*time.Millisecond, func(context.Context) error {
		second.Add(1)
		return nil
	})

	require.Eventually(t, func() bool {
		return second.Load() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, int32(0), first.Load(), "only the latest schedule for a session runs")
}

func TestScheduleRefreshRetriesOnFailure(t *testing.T) {
	src := &fakeSources{}
	r := newTestRefresher(t, src)

	var attempts atomic.Int32
	r.ScheduleRefresh("u1", "s1", time.Millisecond, func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.Eventually(t, func() bool {
		return attempts.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond, "failed scheduled refresh is rescheduled with backoff")

	require.Eventually(t, func() bool {
		return !r.HasPending("u1", "s1")
	}, time.Second, 5*time.Millisecond)
}

func TestCancelRefresh(t *testing.T) {
	src := &fakeSources{}
	r := newTestRefresher(t, src)

	var ran atomic.Int32
	r.ScheduleRefresh("u1", "s1", 20*time.Millisecond, func(context.Context) error {
		ran.Add(1)
		return nil
	})
	r.CancelRefresh("u1", "s1")
	r.CancelRefresh("u1", "s1") // idempotent

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), ran.Load())
}

func TestCancelUserRefreshes(t *testing.T) {
	src := &fakeSources{}
	r := newTestRefresher(t, src)

	noop := func(context.Context) error { return nil }
	r.ScheduleRefresh("u1", "s1", time.Minute, noop)
	r.ScheduleRefresh("u1", "s2", time.Minute, noop)
	r.ScheduleRefresh("u2", "s1", time.Minute, noop)

	require.Equal(t, 2, r.CancelUserRefreshes("u1"))
	require.False(t, r.HasPending("u1", "s1"))
	require.False(t, r.HasPending("u1", "s2"))
	require.True(t, r.HasPending("u2", "s1"))
}
