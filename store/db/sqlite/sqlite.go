// Package sqlite implements the storage driver on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/sellwise/sellwise/store"

	// Import the pure-Go sqlite driver.
	_ "modernc.org/sqlite"
)

// DB is the sqlite-backed storage driver.
type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation_context (
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	payload BLOB NOT NULL,
	updated_ts BIGINT NOT NULL,
	PRIMARY KEY (user_id, session_id)
);
CREATE INDEX IF NOT EXISTS idx_conversation_context_updated_ts
	ON conversation_context (updated_ts);
`

// NewDB opens (and if necessary initializes) the sqlite database at dsn.
func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}

	sqlDB, err := sql.Open("sqlite", dsn+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return &DB{db: sqlDB}, nil
}

// Close implements store.Driver.
func (d *DB) Close() error {
	return d.db.Close()
}

// UpsertContextRecord implements store.Driver.
func (d *DB) UpsertContextRecord(ctx context.Context, upsert *store.ContextRecord) (*store.ContextRecord, error) {
	stmt := `
		INSERT INTO conversation_context (user_id, session_id, payload, updated_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, session_id)
		DO UPDATE SET payload = excluded.payload, updated_ts = excluded.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.UserID, upsert.SessionID, upsert.Payload, upsert.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert context record")
	}
	return upsert, nil
}

// GetContextRecord implements store.Driver.
func (d *DB) GetContextRecord(ctx context.Context, find *store.FindContextRecord) (*store.ContextRecord, error) {
	records, err := d.ListContextRecords(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// ListContextRecords implements store.Driver.
func (d *DB) ListContextRecords(ctx context.Context, find *store.FindContextRecord) ([]*store.ContextRecord, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find != nil && find.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *find.UserID)
	}
	if find != nil && find.SessionID != nil {
		where = append(where, "session_id = ?")
		args = append(args, *find.SessionID)
	}

	query := "SELECT user_id, session_id, payload, updated_ts FROM conversation_context WHERE " +
		strings.Join(where, " AND ") + " ORDER BY updated_ts DESC"
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list context records")
	}
	defer rows.Close()

	var out []*store.ContextRecord
	for rows.Next() {
		rec := &store.ContextRecord{}
		if err := rows.Scan(&rec.UserID, &rec.SessionID, &rec.Payload, &rec.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan context record")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteContextRecord implements store.Driver.
func (d *DB) DeleteContextRecord(ctx context.Context, delete *store.DeleteContextRecord) error {
	var err error
	if delete.SessionID != nil {
		_, err = d.db.ExecContext(ctx,
			"DELETE FROM conversation_context WHERE user_id = ? AND session_id = ?",
			delete.UserID, *delete.SessionID)
	} else {
		_, err = d.db.ExecContext(ctx,
			"DELETE FROM conversation_context WHERE user_id = ?", delete.UserID)
	}
	return errors.Wrap(err, "failed to delete context record")
}

// DeleteContextRecordsBefore implements store.Driver.
func (d *DB) DeleteContextRecordsBefore(ctx context.Context, cutoffTs int64) (int, error) {
	result, err := d.db.ExecContext(ctx,
		"DELETE FROM conversation_context WHERE updated_ts < ?", cutoffTs)
	if err != nil {
		return 0, errors.Wrap(err, "failed to sweep old context records")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count swept context records")
	}
	return int(n), nil
}

var _ store.Driver = (*DB)(nil)
