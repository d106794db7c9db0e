package assistant

import (
	"strings"
	"sync"
	"time"
)

// Scheduler runs single-shot tasks keyed by session. At most one timer is
// pending per key: scheduling cancels and replaces any existing timer for
// that key.
type Scheduler struct {
	mu     sync.Mutex
	gen    uint64
	timers map[string]*pendingTimer
}

// pendingTimer tags each timer with the generation it was registered under.
// A fired callback only runs and unregisters itself while its generation is
// still the one in the map; a timer that fires concurrently with its
// replacement is a no-op.
type pendingTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*pendingTimer)}
}

// Schedule registers task to run after delay, replacing any pending timer
// for the same key.
func (s *Scheduler) Schedule(key string, delay time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
	}

	s.gen++
	gen := s.gen
	entry := &pendingTimer{gen: gen}
	entry.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		current, ok := s.timers[key]
		if !ok || current.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		task()
	})
	s.timers[key] = entry
}

// Cancel stops the pending timer for key. Safe to call redundantly.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[key]; ok {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}

// CancelPrefix stops every pending timer whose key starts with prefix and
// returns the number canceled.
func (s *Scheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key, entry := range s.timers {
		if strings.HasPrefix(key, prefix) {
			entry.timer.Stop()
			delete(s.timers, key)
			count++
		}
	}
	return count
}

// Has reports whether a timer is pending for key.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}

// Keys returns the keys with pending timers.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.timers))
	for key := range s.timers {
		keys = append(keys, key)
	}
	return keys
}

// Pending returns the number of pending timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, key)
	}
}
