package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sellwise/sellwise/internal/retry"
)

// BusinessDataSource supplies fresh business snapshots. Implemented by the
// marketplace connectors, which are outside the core.
type BusinessDataSource interface {
	FetchBusinessData(ctx context.Context, userID string) (*BusinessData, error)
}

// RecommendationSource supplies fresh recommendations, bucketed by category.
type RecommendationSource interface {
	FetchRecommendations(ctx context.Context, userID string) (map[string][]Recommendation, error)
}

// RefresherConfig configures retry, scheduling backoff and concurrency
// bounds of the refresher.
type RefresherConfig struct {
	// MaxRetries bounds RefreshWithRetry attempts.
	MaxRetries int
	// BaseDelay seeds the retry backoff; doubled per attempt, capped at
	// MaxRetryDelay.
	BaseDelay     time.Duration
	MaxRetryDelay time.Duration
	// RescheduleBase is the backoff unit applied per historical failure
	// when a scheduled refresh fails, capped at MaxRescheduleDelay.
	RescheduleBase     time.Duration
	MaxRescheduleDelay time.Duration
	// MaxConcurrent bounds in-flight scheduled refreshes.
	MaxConcurrent int64
	// RefreshRate limits how often scheduled refreshes may execute.
	RefreshRate rate.Limit
	// RefreshBurst is the rate limiter burst.
	RefreshBurst int
}

// DefaultRefresherConfig returns the refresher defaults.
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		MaxRetries:         3,
		BaseDelay:          time.Second,
		MaxRetryDelay:      10 * time.Second,
		RescheduleBase:     30 * time.Second,
		MaxRescheduleDelay: 5 * time.Minute,
		MaxConcurrent:      4,
		RefreshRate:        rate.Limit(10),
		RefreshBurst:       10,
	}
}

// Refresher pulls fresh business and recommendation data into contexts, with
// retry/backoff and per-session scheduling. Source failures propagate to the
// caller; the context manager treats them as non-fatal.
type Refresher struct {
	business        BusinessDataSource
	recommendations RecommendationSource
	scheduler       *Scheduler
	config          RefresherConfig

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu            sync.Mutex
	failureCounts map[string]int
}

// NewRefresher creates a refresher over the given collaborators.
func NewRefresher(business BusinessDataSource, recommendations RecommendationSource, config RefresherConfig) *Refresher {
	defaults := DefaultRefresherConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if config.RescheduleBase <= 0 {
		config.RescheduleBase = defaults.RescheduleBase
	}
	if config.MaxRescheduleDelay <= 0 {
		config.MaxRescheduleDelay = defaults.MaxRescheduleDelay
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.RefreshRate <= 0 {
		config.RefreshRate = defaults.RefreshRate
	}
	if config.RefreshBurst <= 0 {
		config.RefreshBurst = defaults.RefreshBurst
	}

	return &Refresher{
		business:        business,
		recommendations: recommendations,
		scheduler:       NewScheduler(),
		config:          config,
		sem:             semaphore.NewWeighted(config.MaxConcurrent),
		limiter:         rate.NewLimiter(config.RefreshRate, config.RefreshBurst),
		failureCounts:   make(map[string]int),
	}
}

// RefreshBusinessData fetches a fresh business snapshot for the user.
func (r *Refresher) RefreshBusinessData(ctx context.Context, userID string) (*BusinessData, error) {
	data, err := r.business.FetchBusinessData(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data.LastUpdated.IsZero() {
		data.LastUpdated = time.Now()
	}
	return data, nil
}

// RefreshRecommendations fetches fresh recommendations for the user.
func (r *Refresher) RefreshRecommendations(ctx context.Context, userID string) (map[string][]Recommendation, error) {
	return r.recommendations.FetchRecommendations(ctx, userID)
}

// RefreshWithRetry attempts the pair of refreshes as a unit, retrying the
// whole pair with exponential backoff on any failure and raising after
// exhaustion.
func (r *Refresher) RefreshWithRetry(ctx context.Context, userID string, maxRetries int) (*BusinessData, map[string][]Recommendation, error) {
	if maxRetries <= 0 {
		maxRetries = r.config.MaxRetries
	}

	var data *BusinessData
	var recs map[string][]Recommendation

	err := retry.Do(ctx, retry.Options{
		MaxAttempts: maxRetries,
		BaseDelay:   r.config.BaseDelay,
		MaxDelay:    r.config.MaxRetryDelay,
	}, func() error {
		d, err := r.RefreshBusinessData(ctx, userID)
		if err != nil {
			return err
		}
		rs, err := r.RefreshRecommendations(ctx, userID)
		if err != nil {
			return err
		}
		data, recs = d, rs
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return data, recs, nil
}

// ScheduleRefresh registers task to run after delay for the session,
// replacing any pending refresh for the same key. A failed scheduled refresh
// is rescheduled with backoff proportional to the session's historical
// failure count rather than given up on; a successful one resets the count.
func (r *Refresher) ScheduleRefresh(userID, sessionID string, delay time.Duration, task func(ctx context.Context) error) {
	key := ContextKey(userID, sessionID)
	r.scheduler.Schedule(key, delay, func() {
		r.runScheduled(key, userID, sessionID, task)
	})
}

func (r *Refresher) runScheduled(key, userID, sessionID string, task func(ctx context.Context) error) {
	ctx := context.Background()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer r.sem.Release(1)

	if err := r.limiter.Wait(ctx); err != nil {
		return
	}

	if err := task(ctx); err != nil {
		failures := r.bumpFailureCount(key)
		backoff := time.Duration(failures) * r.config.RescheduleBase
		if backoff > r.config.MaxRescheduleDelay {
			backoff = r.config.MaxRescheduleDelay
		}
		slog.Warn("scheduled refresh failed, backing off",
			"user_id", userID,
			"session_id", sessionID,
			"failures", failures,
			"retry_in", backoff,
			"error", err)
		r.scheduler.Schedule(key, backoff, func() {
			r.runScheduled(key, userID, sessionID, task)
		})
		return
	}

	r.resetFailureCount(key)
}

// CancelRefresh drops the pending refresh for one session. Idempotent.
func (r *Refresher) CancelRefresh(userID, sessionID string) {
	key := ContextKey(userID, sessionID)
	r.scheduler.Cancel(key)
	r.resetFailureCount(key)
}

// CancelUserRefreshes drops every pending refresh belonging to the user.
func (r *Refresher) CancelUserRefreshes(userID string) int {
	r.mu.Lock()
	for key := range r.failureCounts {
		if len(key) > len(userID) && key[:len(userID)+1] == userID+":" {
			delete(r.failureCounts, key)
		}
	}
	r.mu.Unlock()
	return r.scheduler.CancelPrefix(userID + ":")
}

// PendingKeys returns the session keys with a scheduled refresh.
func (r *Refresher) PendingKeys() []string {
	return r.scheduler.Keys()
}

// HasPending reports whether the session has a scheduled refresh.
func (r *Refresher) HasPending(userID, sessionID string) bool {
	return r.scheduler.Has(ContextKey(userID, sessionID))
}

// Cancel drops a pending refresh by raw scheduler key.
func (r *Refresher) Cancel(key string) {
	r.scheduler.Cancel(key)
}

// Stop cancels all pending refreshes.
func (r *Refresher) Stop() {
	r.scheduler.Stop()
}

func (r *Refresher) bumpFailureCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failureCounts[key]++
	return r.failureCounts[key]
}

func (r *Refresher) resetFailureCount(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failureCounts, key)
}
