package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/coordinator/internal/types"
)

const (
	kindTask     = "task"
	kindInstance = "instance"
)

// SQLiteStore implements Store using SQLite. Records and queue entries are
// scoped by namespace so several coordinators can share one file.
type SQLiteStore struct {
	db *sql.DB
	ns string
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath, namespace string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return openSQLite(ctx, connStr, namespace)
}

// NewMemoryStore creates an in-memory SQLite store.
// Each call gets its own database; connections of one store share it.
func NewMemoryStore(ctx context.Context, namespace string) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	return openSQLite(ctx, connStr, namespace)
}

func openSQLite(ctx context.Context, connStr, namespace string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pops are single statements, so one writer connection is enough and
	// keeps the in-memory database alive for the store's lifetime.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, ns: namespace}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Push appends the task to its priority segment.
func (s *SQLiteStore) Push(ctx context.Context, task *types.Task) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue_entries (namespace, priority, task_id, data)
		VALUES (?, ?, ?, ?)
	`, s.ns, int(task.Priority), task.ID, string(data))
	if err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}
	return nil
}

// PopHighestPriority removes and returns the oldest entry of the highest
// non-empty segment. It returns nil, nil when the queue is empty.
func (s *SQLiteStore) PopHighestPriority(ctx context.Context) (*types.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var data string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM queue_entries
		WHERE seq = (
			SELECT seq FROM queue_entries
			WHERE namespace = ?
			ORDER BY priority DESC, seq ASC
			LIMIT 1
		)
		RETURNING data
	`, s.ns).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}
	return decodeTask([]byte(data))
}

// QueueDepthByPriority reports the length of every segment.
func (s *SQLiteStore) QueueDepthByPriority(ctx context.Context) (map[types.Priority]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	depth := make(map[types.Priority]int64, len(types.DrainOrder))
	for _, p := range types.DrainOrder {
		depth[p] = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT priority, COUNT(*)
		FROM queue_entries
		WHERE namespace = ?
		GROUP BY priority
	`, s.ns)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depth: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p int
		var n int64
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue depth: %w", err)
		}
		depth[types.Priority(p)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue depth: %w", err)
	}
	return depth, nil
}

// Clear empties one segment, or all of them when p is nil.
func (s *SQLiteStore) Clear(ctx context.Context, p *types.Priority) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var err error
	if p != nil {
		_, err = s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE namespace = ? AND priority = ?`, s.ns, int(*p))
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE namespace = ?`, s.ns)
	}
	if err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// PutInstanceSnapshot stores or replaces the instance record.
func (s *SQLiteStore) PutInstanceSnapshot(ctx context.Context, inst *types.Instance) error {
	data, err := encodeInstance(inst)
	if err != nil {
		return err
	}
	if err := s.putSnapshot(ctx, kindInstance, inst.ID, data); err != nil {
		return fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
	}
	return nil
}

// DeleteInstanceSnapshot removes the instance record.
func (s *SQLiteStore) DeleteInstanceSnapshot(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE namespace = ? AND kind = ? AND id = ?
	`, s.ns, kindInstance, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}
	return nil
}

// PutTaskSnapshot stores or replaces the task record.
func (s *SQLiteStore) PutTaskSnapshot(ctx context.Context, task *types.Task) error {
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := s.putSnapshot(ctx, kindTask, task.ID, data); err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *SQLiteStore) putSnapshot(ctx context.Context, kind, id string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (namespace, kind, id, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, kind, id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, s.ns, kind, id, string(data))
	return err
}

// ListInstanceSnapshots returns every stored instance.
func (s *SQLiteStore) ListInstanceSnapshots(ctx context.Context) ([]*types.Instance, error) {
	records, err := s.listSnapshots(ctx, kindInstance)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*types.Instance, 0, len(records))
	for _, data := range records {
		inst, err := decodeInstance(data)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// ListTaskSnapshots returns every stored task.
func (s *SQLiteStore) ListTaskSnapshots(ctx context.Context) ([]*types.Task, error) {
	records, err := s.listSnapshots(ctx, kindTask)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*types.Task, 0, len(records))
	for _, data := range records {
		task, err := decodeTask(data)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *SQLiteStore) listSnapshots(ctx context.Context, kind string) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM snapshots
		WHERE namespace = ? AND kind = ?
		ORDER BY id
	`, s.ns, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		records = append(records, []byte(data))
	}
	return records, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
