// Package store provides keyed persistence for conversation contexts over
// interchangeable storage drivers.
package store

import (
	"context"
)

// Store provides access to conversation context records.
type Store struct {
	driver Driver
}

// New creates a store over the given driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// GetDriver exposes the underlying driver.
func (s *Store) GetDriver() Driver {
	return s.driver
}

// Close releases the driver's resources.
func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertContextRecord(ctx context.Context, upsert *ContextRecord) (*ContextRecord, error) {
	return s.driver.UpsertContextRecord(ctx, upsert)
}

func (s *Store) GetContextRecord(ctx context.Context, find *FindContextRecord) (*ContextRecord, error) {
	return s.driver.GetContextRecord(ctx, find)
}

func (s *Store) ListContextRecords(ctx context.Context, find *FindContextRecord) ([]*ContextRecord, error) {
	return s.driver.ListContextRecords(ctx, find)
}

func (s *Store) DeleteContextRecord(ctx context.Context, delete *DeleteContextRecord) error {
	return s.driver.DeleteContextRecord(ctx, delete)
}

func (s *Store) DeleteContextRecordsBefore(ctx context.Context, cutoffTs int64) (int, error) {
	return s.driver.DeleteContextRecordsBefore(ctx, cutoffTs)
}
