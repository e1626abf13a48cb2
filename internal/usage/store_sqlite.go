package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite binds at most 999 parameters per statement by default.
const (
	maxSQLiteParams    = 999
	maxEntriesPerBatch = maxSQLiteParams / 14
)

// SQLiteStore implements UsageStore for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the usage table if needed and, when retentionDays
// is positive, starts the cleanup loop.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			provider_id TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			outcome TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			fragments INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage table: %w", err)
	}

	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_usage_request_id ON usage(request_id)",
		"CREATE INDEX IF NOT EXISTS idx_usage_outcome ON usage(outcome)",
	} {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}
	if retentionDays > 0 {
		go RunCleanupLoop(store.stopCleanup, CleanupInterval, store.cleanup)
	}
	return store, nil
}

// WriteBatch inserts entries in chunks that fit SQLite's parameter limit.
// Entries whose ID already exists are skipped.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(usageColumns)), ", ") + ")"

	for start := 0; start < len(entries); start += maxEntriesPerBatch {
		chunk := entries[start:min(start+maxEntriesPerBatch, len(entries))]

		rows := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(usageColumns))
		for i, e := range chunk {
			rows[i] = placeholder
			args = append(args, e.values(sqliteTimestamp(e.Timestamp))...)
		}

		query := "INSERT OR IGNORE INTO usage (" + insertColumnList + ") VALUES " + strings.Join(rows, ",")
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert usage batch %d: %w", start/maxEntriesPerBatch, err)
		}
	}
	return nil
}

// Flush is a no-op; writes are synchronous.
func (s *SQLiteStore) Flush(context.Context) error {
	return nil
}

// Close stops the cleanup loop. The database belongs to the storage layer.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *SQLiteStore) cleanup() {
	s.deleteBefore(retentionCutoff(time.Now(), s.retentionDays))
}

func (s *SQLiteStore) deleteBefore(cutoff time.Time) int64 {
	result, err := s.db.Exec("DELETE FROM usage WHERE timestamp < ?", sqliteTimestamp(cutoff))
	if err != nil {
		slog.Error("failed to cleanup old usage entries", "error", err)
		return 0
	}
	n, err := result.RowsAffected()
	if err == nil && n > 0 {
		slog.Info("cleaned up old usage entries", "deleted", n)
	}
	return n
}
