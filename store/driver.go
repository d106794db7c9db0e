package store

import (
	"context"
)

// Driver is the interface a context storage backend implements.
type Driver interface {
	Close() error

	// UpsertContextRecord inserts or replaces the record for its key.
	UpsertContextRecord(ctx context.Context, upsert *ContextRecord) (*ContextRecord, error)

	// GetContextRecord returns the record matching find, or nil if absent.
	GetContextRecord(ctx context.Context, find *FindContextRecord) (*ContextRecord, error)

	// ListContextRecords returns all records matching find.
	ListContextRecords(ctx context.Context, find *FindContextRecord) ([]*ContextRecord, error)

	// DeleteContextRecord removes one session or all of a user's sessions.
	DeleteContextRecord(ctx context.Context, delete *DeleteContextRecord) error

	// DeleteContextRecordsBefore removes records last updated before the
	// cutoff (unix seconds) and reports how many were removed.
	DeleteContextRecordsBefore(ctx context.Context, cutoffTs int64) (int, error)
}
