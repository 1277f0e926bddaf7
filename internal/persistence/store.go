package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/coordinator/internal/types"
)

// DefaultNamespace prefixes every key written by the coordinator.
const DefaultNamespace = "coordinator"

// Store is the durable mirror of the coordinator's state plus the
// priority-segmented task queue. The in-memory registry stays authoritative;
// a Store only has to survive restarts.
type Store interface {
	// Queue operations
	Push(ctx context.Context, task *types.Task) error
	PopHighestPriority(ctx context.Context) (*types.Task, error)
	QueueDepthByPriority(ctx context.Context) (map[types.Priority]int64, error)
	// Clear empties one priority segment, or every segment when p is nil.
	Clear(ctx context.Context, p *types.Priority) error

	// Snapshot operations
	PutInstanceSnapshot(ctx context.Context, inst *types.Instance) error
	DeleteInstanceSnapshot(ctx context.Context, id string) error
	PutTaskSnapshot(ctx context.Context, task *types.Task) error
	ListInstanceSnapshots(ctx context.Context) ([]*types.Instance, error)
	ListTaskSnapshots(ctx context.Context) ([]*types.Task, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store named by url and selects the backend by scheme:
//
//	redis://host:6379/0, rediss://...   Redis
//	sqlite:///path/to/db, sqlite://rel  SQLite file
//	sqlite::memory:                     in-memory SQLite
func Open(ctx context.Context, url, namespace string) (Store, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	switch {
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return NewRedisStore(ctx, url, namespace)
	case url == "sqlite::memory:":
		return NewMemoryStore(ctx, namespace)
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite url %q has no path", url)
		}
		return NewSQLiteStore(ctx, path, namespace)
	default:
		return nil, fmt.Errorf("unsupported store url %q", url)
	}
}
