package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sellwise/sellwise/internal/coreerrors"
	"github.com/sellwise/sellwise/store"
)

// ManagerConfig configures the context manager.
type ManagerConfig struct {
	// BusinessDataTTL is how long a business snapshot stays fresh.
	BusinessDataTTL time.Duration
	// RecommendationsTTL is how long recommendations stay fresh.
	RecommendationsTTL time.Duration
	// ConversationHistoryLimit triggers compression when exceeded.
	ConversationHistoryLimit int
	// MaxContextBytes triggers compression when the JSON size exceeds it.
	MaxContextBytes int
	// MaxRecommendations triggers compression when the aggregate count
	// exceeds it.
	MaxRecommendations int
	// AutoRefreshEnabled schedules a background refresh after every write.
	AutoRefreshEnabled bool
	// CompressionEnabled turns the write-path compressor on.
	CompressionEnabled bool
	// RefreshInterval is the delay before an auto-scheduled refresh runs.
	RefreshInterval time.Duration
	// CacheSize and CacheTTL configure the context cache.
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultManagerConfig returns the manager defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BusinessDataTTL:          15 * time.Minute,
		RecommendationsTTL:       time.Hour,
		ConversationHistoryLimit: 50,
		MaxContextBytes:          256 * 1024,
		MaxRecommendations:       50,
		AutoRefreshEnabled:       true,
		CompressionEnabled:       true,
		RefreshInterval:          10 * time.Minute,
		CacheSize:                1000,
		CacheTTL:                 5 * time.Minute,
	}
}

// Manager is the single entry point for conversation context access. It
// layers the cache over persistent storage, validates and repairs on load,
// compresses over-large contexts on write and keeps business data fresh
// through the refresher.
type Manager struct {
	store      *store.Store
	cache      *ContextCache
	validator  *Validator
	compressor *Compressor
	refresher  *Refresher
	config     ManagerConfig
}

// NewManager creates a context manager. refresher may be nil when no data
// sources are wired; refresh then degrades to a timestamp bump.
func NewManager(st *store.Store, refresher *Refresher, config ManagerConfig) *Manager {
	defaults := DefaultManagerConfig()
	if config.BusinessDataTTL <= 0 {
		config.BusinessDataTTL = defaults.BusinessDataTTL
	}
	if config.RecommendationsTTL <= 0 {
		config.RecommendationsTTL = defaults.RecommendationsTTL
	}
	if config.ConversationHistoryLimit <= 0 {
		config.ConversationHistoryLimit = defaults.ConversationHistoryLimit
	}
	if config.MaxContextBytes <= 0 {
		config.MaxContextBytes = defaults.MaxContextBytes
	}
	if config.MaxRecommendations <= 0 {
		config.MaxRecommendations = defaults.MaxRecommendations
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	if config.CacheSize <= 0 {
		config.CacheSize = defaults.CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}

	return &Manager{
		store: st,
		cache: NewContextCache(CacheConfig{
			Capacity:   config.CacheSize,
			DefaultTTL: config.CacheTTL,
		}),
		validator:  NewValidator(),
		compressor: NewCompressor(CompressorConfig{MaxMessages: config.ConversationHistoryLimit}),
		refresher:  refresher,
		config:     config,
	}
}

// Cache exposes the underlying cache for stats reporting.
func (m *Manager) Cache() *ContextCache {
	return m.cache
}

// Close stops background work. Pending refreshes are dropped, not flushed.
func (m *Manager) Close() {
	if m.refresher != nil {
		m.refresher.Stop()
	}
	m.cache.Close()
}

// GetContext returns the context for a session, creating a default one on
// first sight. Cache hits with stale business data go through a synchronous
// refresh before being returned; storage loads are validated and repaired.
func (m *Manager) GetContext(ctx context.Context, userID, sessionID string) (*ConversationContext, error) {
	if userID == "" || sessionID == "" {
		return nil, coreerrors.Identity("userId and sessionId are required")
	}

	key := ContextKey(userID, sessionID)
	if cached, ok := m.cache.Get(key); ok {
		if m.isStale(cached) {
			return m.RefreshContext(ctx, cached)
		}
		return cached, nil
	}

	record, err := m.store.GetContextRecord(ctx, &store.FindContextRecord{
		UserID:    &userID,
		SessionID: &sessionID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "load context")
	}
	if record != nil {
		loaded, err := m.decodeRecord(record)
		if err != nil {
			slog.Warn("stored context is undecodable, recreating",
				"user_id", userID, "session_id", sessionID, "error", err)
		} else {
			m.cache.Set(key, loaded, 0)
			return loaded, nil
		}
	}

	created := NewConversationContext(userID, sessionID)
	if err := m.persist(ctx, created); err != nil {
		return nil, errors.Wrap(err, "persist new context")
	}
	m.cache.Set(key, created, 0)
	return created.Clone(), nil
}

// UpdateContext validates and persists a modified context, compressing it
// first when it exceeds the configured bounds. Invalid contexts are rejected;
// they never reach the cache or storage.
func (m *Manager) UpdateContext(ctx context.Context, c *ConversationContext) (*ConversationContext, error) {
	if c == nil {
		return nil, coreerrors.Validation("context is nil")
	}

	result := m.validator.Validate(c)
	if !result.Valid {
		return nil, coreerrors.Validation("context failed validation").
			WithContext("errors", strings.Join(result.Errors, "; "))
	}

	updated := c.Clone()
	updated.LastUpdated = time.Now()

	if m.config.CompressionEnabled && m.shouldCompress(updated) {
		before := updated.EstimatedSize()
		updated = m.compressor.Compress(updated)
		slog.Debug("compressed context on write",
			"user_id", updated.UserID,
			"session_id", updated.SessionID,
			"bytes_before", before,
			"bytes_after", updated.EstimatedSize())
	}

	if err := m.persist(ctx, updated); err != nil {
		return nil, errors.Wrap(err, "persist context")
	}
	m.cache.Set(ContextKey(updated.UserID, updated.SessionID), updated, 0)

	if m.config.AutoRefreshEnabled && m.refresher != nil {
		userID, sessionID := updated.UserID, updated.SessionID
		m.refresher.ScheduleRefresh(userID, sessionID, m.config.RefreshInterval, func(rctx context.Context) error {
			return m.refreshStored(rctx, userID, sessionID)
		})
	}

	return updated.Clone(), nil
}

// ClearContext removes one session, or every session of the user when
// sessionID is empty. Pending refreshes for the cleared sessions are
// canceled. Clearing what does not exist is not an error.
func (m *Manager) ClearContext(ctx context.Context, userID, sessionID string) error {
	if userID == "" {
		return coreerrors.Identity("userId is required")
	}

	del := &store.DeleteContextRecord{UserID: userID}
	if sessionID == "" {
		m.cache.DeletePrefix(userID + ":")
		if m.refresher != nil {
			m.refresher.CancelUserRefreshes(userID)
		}
	} else {
		del.SessionID = &sessionID
		m.cache.Delete(ContextKey(userID, sessionID))
		if m.refresher != nil {
			m.refresher.CancelRefresh(userID, sessionID)
		}
	}

	if err := m.store.DeleteContextRecord(ctx, del); err != nil {
		return errors.Wrap(err, "delete context")
	}
	return nil
}

// RefreshContext pulls fresh business data and recommendations into the
// context. Refresh failures are non-fatal: the context is returned with its
// existing data and only the timestamp advanced, so a flaky data source never
// breaks reads.
func (m *Manager) RefreshContext(ctx context.Context, c *ConversationContext) (*ConversationContext, error) {
	if c == nil || c.UserID == "" || c.SessionID == "" {
		return nil, coreerrors.Identity("cannot refresh context without userId and sessionId")
	}

	refreshed := c.Clone()
	if m.refresher != nil {
		data, recs, err := m.refresher.RefreshWithRetry(ctx, c.UserID, 0)
		if err != nil {
			slog.Warn("context refresh failed, serving existing data",
				"user_id", c.UserID, "session_id", c.SessionID, "error", err)
		} else {
			refreshed.BusinessData = *data
			refreshed.Recommendations = recs
		}
	}
	refreshed.LastUpdated = time.Now()

	repaired, err := m.validator.Repair(refreshed)
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, repaired); err != nil {
		return nil, errors.Wrap(err, "persist refreshed context")
	}
	m.cache.Set(ContextKey(repaired.UserID, repaired.SessionID), repaired, 0)
	return repaired.Clone(), nil
}

// ForceCleanup deletes stored contexts that have not been touched for longer
// than twice the business data TTL, with a 24 hour floor, and cancels any
// refresh timers left pointing at deleted sessions. Returns the number of
// records removed.
func (m *Manager) ForceCleanup(ctx context.Context) (int, error) {
	maxAge := 2 * m.config.BusinessDataTTL
	if maxAge < 24*time.Hour {
		maxAge = 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge).Unix()

	removed, err := m.store.DeleteContextRecordsBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "cleanup stale contexts")
	}

	if m.refresher != nil {
		for _, key := range m.refresher.PendingKeys() {
			userID, sessionID, ok := splitContextKey(key)
			if !ok {
				continue
			}
			record, err := m.store.GetContextRecord(ctx, &store.FindContextRecord{
				UserID:    &userID,
				SessionID: &sessionID,
			})
			if err == nil && record == nil {
				m.refresher.Cancel(key)
				m.cache.Delete(key)
			}
		}
	}

	if removed > 0 {
		slog.Info("cleaned up stale contexts", "removed", removed)
	}
	return removed, nil
}

// isStale reports whether the business snapshot has outlived its TTL or any
// recommendation has outlived the recommendations TTL.
func (m *Manager) isStale(c *ConversationContext) bool {
	if time.Since(c.BusinessData.LastUpdated) > m.config.BusinessDataTTL {
		return true
	}
	cutoff := time.Now().Add(-m.config.RecommendationsTTL)
	for _, recs := range c.Recommendations {
		for _, rec := range recs {
			if rec.CreatedAt.Before(cutoff) {
				return true
			}
		}
	}
	return false
}

// shouldCompress reports whether any bound is exceeded: history length, JSON
// size or aggregate recommendation count.
func (m *Manager) shouldCompress(c *ConversationContext) bool {
	if len(c.ConversationHistory) > m.config.ConversationHistoryLimit {
		return true
	}
	if c.EstimatedSize() > m.config.MaxContextBytes {
		return true
	}
	return c.RecommendationCount() > m.config.MaxRecommendations
}

// refreshStored is the task body of a scheduled refresh: load from storage,
// refresh, persist. A session cleared since scheduling is a silent no-op.
func (m *Manager) refreshStored(ctx context.Context, userID, sessionID string) error {
	record, err := m.store.GetContextRecord(ctx, &store.FindContextRecord{
		UserID:    &userID,
		SessionID: &sessionID,
	})
	if err != nil {
		return errors.Wrap(err, "load context for refresh")
	}
	if record == nil {
		return nil
	}
	loaded, err := m.decodeRecord(record)
	if err != nil {
		return errors.Wrap(err, "decode context for refresh")
	}

	if m.refresher == nil {
		return nil
	}
	data, recs, err := m.refresher.RefreshWithRetry(ctx, userID, 0)
	if err != nil {
		return err
	}
	loaded.BusinessData = *data
	loaded.Recommendations = recs
	loaded.LastUpdated = time.Now()

	if err := m.persist(ctx, loaded); err != nil {
		return errors.Wrap(err, "persist refreshed context")
	}
	m.cache.Set(ContextKey(userID, sessionID), loaded, 0)
	return nil
}

// decodeRecord unmarshals a stored record and runs it through validation and
// repair so corruption in storage never propagates to callers.
func (m *Manager) decodeRecord(record *store.ContextRecord) (*ConversationContext, error) {
	var c ConversationContext
	if err := json.Unmarshal(record.Payload, &c); err != nil {
		return nil, errors.Wrap(err, "unmarshal context payload")
	}

	if result := m.validator.Validate(&c); !result.Valid {
		repaired, err := m.validator.Repair(&c)
		if err != nil {
			return nil, err
		}
		slog.Debug("repaired stored context",
			"user_id", repaired.UserID,
			"session_id", repaired.SessionID,
			"errors", strings.Join(result.Errors, "; "))
		return repaired, nil
	}
	return &c, nil
}

func (m *Manager) persist(ctx context.Context, c *ConversationContext) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal context payload")
	}
	_, err = m.store.UpsertContextRecord(ctx, &store.ContextRecord{
		UserID:    c.UserID,
		SessionID: c.SessionID,
		Payload:   payload,
		UpdatedTs: c.LastUpdated.Unix(),
	})
	return err
}

func splitContextKey(key string) (userID, sessionID string, ok bool) {
	i := strings.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
