package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aristath/coordinator/internal/types"
)

const opTimeout = 5 * time.Second

// RedisStore implements Store on Redis.
//
// Layout, with ns the namespace:
//
//	ns:tasks:{id}         task record
//	ns:instances:{id}     instance record
//	ns:tasks              set of task ids
//	ns:instances          set of instance ids
//	ns:tasks:{priority}   queue segment, LPUSH on enqueue and RPOP on dequeue
type RedisStore struct {
	client *redis.Client
	ns     string
}

// NewRedisStore connects to the Redis server at url and verifies the connection.
func NewRedisStore(ctx context.Context, url, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	s := &RedisStore{client: redis.NewClient(opts), ns: namespace}
	if err := s.Ping(ctx); err != nil {
		s.client.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) taskKey(id string) string     { return s.ns + ":tasks:" + id }
func (s *RedisStore) instanceKey(id string) string { return s.ns + ":instances:" + id }
func (s *RedisStore) taskSet() string              { return s.ns + ":tasks" }
func (s *RedisStore) instanceSet() string          { return s.ns + ":instances" }

func (s *RedisStore) queueKey(p types.Priority) string {
	return s.ns + ":tasks:" + p.String()
}

// Push appends the task to its priority segment.
func (s *RedisStore) Push(ctx context.Context, task *types.Task) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	if err := s.client.LPush(ctx, s.queueKey(task.Priority), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}
	return nil
}

// PopHighestPriority removes and returns the oldest entry of the highest
// non-empty segment. It returns nil, nil when every segment is empty.
func (s *RedisStore) PopHighestPriority(ctx context.Context) (*types.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	for _, p := range types.DrainOrder {
		data, err := s.client.RPop(ctx, s.queueKey(p)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to dequeue from %s: %w", p, err)
		}
		return decodeTask(data)
	}
	return nil, nil
}

// QueueDepthByPriority reports the length of every segment.
func (s *RedisStore) QueueDepthByPriority(ctx context.Context) (map[types.Priority]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cmds := make(map[types.Priority]*redis.IntCmd, len(types.DrainOrder))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range types.DrainOrder {
			cmds[p] = pipe.LLen(ctx, s.queueKey(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depth: %w", err)
	}

	depth := make(map[types.Priority]int64, len(cmds))
	for p, cmd := range cmds {
		depth[p] = cmd.Val()
	}
	return depth, nil
}

// Clear empties one segment, or all of them when p is nil.
func (s *RedisStore) Clear(ctx context.Context, p *types.Priority) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var keys []string
	if p != nil {
		keys = []string{s.queueKey(*p)}
	} else {
		for _, pr := range types.DrainOrder {
			keys = append(keys, s.queueKey(pr))
		}
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

// PutInstanceSnapshot stores the instance and records its id.
func (s *RedisStore) PutInstanceSnapshot(ctx context.Context, inst *types.Instance) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := encodeInstance(inst)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.instanceKey(inst.ID), data, 0)
		pipe.SAdd(ctx, s.instanceSet(), inst.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
	}
	return nil
}

// DeleteInstanceSnapshot removes the instance record and its id.
func (s *RedisStore) DeleteInstanceSnapshot(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.instanceKey(id))
		pipe.SRem(ctx, s.instanceSet(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}
	return nil
}

// PutTaskSnapshot stores the task and records its id.
func (s *RedisStore) PutTaskSnapshot(ctx context.Context, task *types.Task) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.taskKey(task.ID), data, 0)
		pipe.SAdd(ctx, s.taskSet(), task.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

// ListInstanceSnapshots returns every stored instance.
func (s *RedisStore) ListInstanceSnapshots(ctx context.Context) ([]*types.Instance, error) {
	records, err := s.loadAll(ctx, s.instanceSet(), s.instanceKey)
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
func (s *RedisStore) ListTaskSnapshots(ctx context.Context) ([]*types.Task, error) {
	records, err := s.loadAll(ctx, s.taskSet(), s.taskKey)
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

// loadAll reads every record whose id is a member of set. Ids whose record
// has disappeared are skipped.
func (s *RedisStore) loadAll(ctx context.Context, set string, key func(string) string) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ids, err := s.client.SMembers(ctx, set).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([][]byte, 0, len(vals))
	for _, v := range vals {
		if str, ok := v.(string); ok {
			records = append(records, []byte(str))
		}
	}
	return records, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
