// Package memory implements a volatile, in-process storage driver.
package memory

import (
	"context"
	"sync"

	"github.com/sellwise/sellwise/store"
)

// DB is a map-backed driver. Best-effort only: contents are lost on restart.
type DB struct {
	mu      sync.RWMutex
	records map[string]*store.ContextRecord
}

// NewDB creates an empty in-memory driver.
func NewDB() *DB {
	return &DB{records: make(map[string]*store.ContextRecord)}
}

func key(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// Close implements store.Driver.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = make(map[string]*store.ContextRecord)
	return nil
}

// UpsertContextRecord implements store.Driver.
func (d *DB) UpsertContextRecord(_ context.Context, upsert *store.ContextRecord) (*store.ContextRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := cloneRecord(upsert)
	d.records[key(upsert.UserID, upsert.SessionID)] = stored
	return cloneRecord(stored), nil
}

// GetContextRecord implements store.Driver.
func (d *DB) GetContextRecord(_ context.Context, find *store.FindContextRecord) (*store.ContextRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if find.UserID != nil && find.SessionID != nil {
		if rec, ok := d.records[key(*find.UserID, *find.SessionID)]; ok {
			return cloneRecord(rec), nil
		}
		return nil, nil
	}

	for _, rec := range d.records {
		if matches(rec, find) {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

// ListContextRecords implements store.Driver.
func (d *DB) ListContextRecords(_ context.Context, find *store.FindContextRecord) ([]*store.ContextRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*store.ContextRecord
	for _, rec := range d.records {
		if matches(rec, find) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// DeleteContextRecord implements store.Driver.
func (d *DB) DeleteContextRecord(_ context.Context, delete *store.DeleteContextRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if delete.SessionID != nil {
		removeKey(d.records, key(delete.UserID, *delete.SessionID))
		return nil
	}

	for k, rec := range d.records {
		if rec.UserID == delete.UserID {
			removeKey(d.records, k)
		}
	}
	return nil
}

// DeleteContextRecordsBefore implements store.Driver.
func (d *DB) DeleteContextRecordsBefore(_ context.Context, cutoffTs int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for k, rec := range d.records {
		if rec.UpdatedTs < cutoffTs {
			removeKey(d.records, k)
			removed++
		}
	}
	return removed, nil
}

func matches(rec *store.ContextRecord, find *store.FindContextRecord) bool {
	if find == nil {
		return true
	}
	if find.UserID != nil && rec.UserID != *find.UserID {
		return false
	}
	if find.SessionID != nil && rec.SessionID != *find.SessionID {
		return false
	}
	return true
}

func cloneRecord(rec *store.ContextRecord) *store.ContextRecord {
	out := *rec
	out.Payload = append([]byte(nil), rec.Payload...)
	return &out
}

func removeKey(m map[string]*store.ContextRecord, k string) {
	delete(m, k)
}

var _ store.Driver = (*DB)(nil)
