package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		namespace TEXT NOT NULL,
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, kind, id)
	);

	CREATE TABLE IF NOT EXISTS queue_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL,
		priority INTEGER NOT NULL,
		task_id TEXT NOT NULL,
		data TEXT NOT NULL,
		enqueued_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_queue_entries_order
		ON queue_entries(namespace, priority DESC, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
