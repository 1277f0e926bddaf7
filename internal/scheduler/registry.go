package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/coordinator/internal/logging"
	"github.com/aristath/coordinator/internal/types"
)

// Mirror receives a copy of every registry write.
type Mirror interface {
	PutInstanceSnapshot(ctx context.Context, inst *types.Instance) error
	DeleteInstanceSnapshot(ctx context.Context, id string) error
	PutTaskSnapshot(ctx context.Context, task *types.Task) error
}

// SnapshotSource provides previously mirrored records for Restore.
type SnapshotSource interface {
	ListInstanceSnapshots(ctx context.Context) ([]*types.Instance, error)
	ListTaskSnapshots(ctx context.Context) ([]*types.Task, error)
}

// interruptedMessage is recorded on tasks found in progress at restore time.
const interruptedMessage = "Task interrupted: coordinator restarted while the task was running"

// Registry is the authoritative in-memory view of instances and tasks.
//
// One RWMutex guards both maps so that an assignment or completion changes
// the task and its instance in a single critical section. Reads return deep
// copies. The lock is never held across mirror writes.
//
// Every mutation takes a version under mu. Mirror writes are ordered by
// mirrorMu and a write older than the last one for the same record is
// skipped, so the mirror never goes back to a stale snapshot.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*types.Instance
	tasks     map[string]*types.Task
	version   uint64

	mirrorMu sync.Mutex
	mirrored map[string]uint64 // record key -> last version written

	mirror Mirror
	log    *logging.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry. mirror may be nil.
func NewRegistry(mirror Mirror, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		instances: make(map[string]*types.Instance),
		tasks:     make(map[string]*types.Task),
		mirrored:  make(map[string]uint64),
		mirror:    mirror,
		log:       log,
		now:       time.Now,
	}
}

// UpsertInstance inserts or replaces an instance.
func (r *Registry) UpsertInstance(ctx context.Context, inst *types.Instance) {
	cp := inst.Clone()

	r.mu.Lock()
	r.instances[cp.ID] = cp
	snap, v := cp.Clone(), r.nextVersion()
	r.mu.Unlock()

	r.mirrorInstance(ctx, snap, v)
}

// GetInstance returns a copy of the instance.
func (r *Registry) GetInstance(id string) (*types.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst.Clone(), nil
}

// ListInstances returns copies of all instances ordered by creation time, then id.
func (r *Registry) ListInstances() []*types.Instance {
	r.mu.RLock()
	list := make([]*types.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		list = append(list, inst.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// RemoveInstance deletes an instance and returns its last state.
// A task it was running keeps going; its completion only updates the task.
func (r *Registry) RemoveInstance(ctx context.Context, id string) (*types.Instance, error) {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	delete(r.instances, id)
	v := r.nextVersion()
	r.mu.Unlock()

	r.mirrorWrite(instanceKey(id), v, func() {
		if err := r.mirror.DeleteInstanceSnapshot(ctx, id); err != nil {
			r.log.Warn("failed to delete mirrored instance", "instance_id", id, "error", err)
		}
	})
	return inst, nil
}

// UpdateInstance applies fn to the stored instance under the write lock.
// fn must not block. If fn returns an error nothing is committed.
func (r *Registry) UpdateInstance(ctx context.Context, id string, fn func(*types.Instance) error) (*types.Instance, error) {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	cp := inst.Clone()
	if err := fn(cp); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	cp.ID = id
	cp.Role = inst.Role
	r.instances[id] = cp
	snap, v := cp.Clone(), r.nextVersion()
	r.mu.Unlock()

	r.mirrorInstance(ctx, snap, v)
	return snap.Clone(), nil
}

// UpsertTask inserts or replaces a task.
func (r *Registry) UpsertTask(ctx context.Context, task *types.Task) {
	cp := task.Clone()

	r.mu.Lock()
	r.tasks[cp.ID] = cp
	snap, v := cp.Clone(), r.nextVersion()
	r.mu.Unlock()

	r.mirrorTask(ctx, snap, v)
}

// GetTask returns a copy of the task.
func (r *Registry) GetTask(id string) (*types.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// ListTasks returns copies of all tasks ordered by creation time, then id.
func (r *Registry) ListTasks() []*types.Task {
	r.mu.RLock()
	list := make([]*types.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		list = append(list, task.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Claim commits the assignment of task to an instance: the task becomes
// in progress and the instance working, in one critical section.
//
// Nothing is modified when the instance is missing (ErrInstanceNotFound),
// cannot accept work (ErrInstanceBusy), or the registered task already left
// the pending state (ErrTaskNotPending). An unregistered task is registered
// as part of the claim.
func (r *Registry) Claim(ctx context.Context, task *types.Task, instanceID string) (*types.Task, *types.Instance, error) {
	r.mu.Lock()

	inst, ok := r.instances[instanceID]
	if !ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}

	current, registered := r.tasks[task.ID]
	if !registered {
		current = task.Clone()
	}
	if current.Status != types.TaskPending {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrTaskNotPending, task.ID, current.Status)
	}
	if !inst.CanAccept() {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s is %s with %d/%d tasks", ErrInstanceBusy,
			instanceID, inst.Status, inst.ActiveTasks, inst.Config.MaxConcurrentTasks)
	}

	now := r.now()

	t := current.Clone()
	t.AssignedTo = types.StringPtr(instanceID)
	t.Status = types.TaskInProgress
	t.UpdatedAt = now
	r.tasks[t.ID] = t

	inst.Status = types.InstanceWorking
	inst.CurrentTask = t.Clone()
	inst.ActiveTasks++
	inst.LastActivity = now

	taskSnap, instSnap := t.Clone(), inst.Clone()
	v := r.nextVersion()
	r.mu.Unlock()

	r.mirrorTask(ctx, taskSnap, v)
	r.mirrorInstance(ctx, instSnap, v)
	return taskSnap.Clone(), instSnap.Clone(), nil
}

// Release commits the end of an execution: the task takes its final status
// and result, and the instance that ran it returns to idle.
//
// If the instance was removed meanwhile only the task is updated and the
// returned instance is nil.
func (r *Registry) Release(ctx context.Context, taskID, instanceID string, status types.TaskStatus, result *types.TaskResult) (*types.Task, *types.Instance, error) {
	r.mu.Lock()

	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	now := r.now()
	task.Status = status
	task.Result = result.Clone()
	task.UpdatedAt = now

	var instSnap *types.Instance
	if inst, ok := r.instances[instanceID]; ok {
		if inst.CurrentTask != nil && inst.CurrentTask.ID == taskID {
			inst.CurrentTask = nil
		}
		if inst.ActiveTasks > 0 {
			inst.ActiveTasks--
		}
		if inst.ActiveTasks == 0 && inst.Status == types.InstanceWorking {
			inst.Status = types.InstanceIdle
		}
		inst.LastActivity = now
		instSnap = inst.Clone()
	}
	taskSnap := task.Clone()
	v := r.nextVersion()
	r.mu.Unlock()

	r.mirrorTask(ctx, taskSnap, v)
	if instSnap != nil {
		r.mirrorInstance(ctx, instSnap, v)
		return taskSnap.Clone(), instSnap.Clone(), nil
	}
	return taskSnap.Clone(), nil, nil
}

// Cancel moves a pending task to cancelled. Running tasks cannot be
// cancelled; they end by finishing, failing or timing out.
func (r *Registry) Cancel(ctx context.Context, taskID string) (*types.Task, error) {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != types.TaskPending {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskNotPending, taskID, task.Status)
	}
	task.Status = types.TaskCancelled
	task.UpdatedAt = r.now()
	snap, v := task.Clone(), r.nextVersion()
	r.mu.Unlock()

	r.mirrorTask(ctx, snap, v)
	return snap.Clone(), nil
}

// Restore loads mirrored records into an empty registry. Executions do not
// survive a restart: tasks that were in progress are marked failed and their
// instances return to idle.
func (r *Registry) Restore(ctx context.Context, src SnapshotSource) (instances, tasks int, err error) {
	insts, err := src.ListInstanceSnapshots(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load instances: %w", err)
	}
	ts, err := src.ListTaskSnapshots(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load tasks: %w", err)
	}

	now := r.now()
	var fixedTasks []*types.Task
	var fixedInstances []*types.Instance

	r.mu.Lock()
	for _, t := range ts {
		if t.Status == types.TaskInProgress {
			t.Status = types.TaskFailed
			t.Result = types.FailedResult(interruptedMessage)
			t.UpdatedAt = now
			fixedTasks = append(fixedTasks, t.Clone())
		}
		r.tasks[t.ID] = t
	}
	for _, inst := range insts {
		if inst.Status == types.InstanceWorking || inst.CurrentTask != nil || inst.ActiveTasks != 0 {
			inst.Status = types.InstanceIdle
			inst.CurrentTask = nil
			inst.ActiveTasks = 0
			inst.LastActivity = now
			fixedInstances = append(fixedInstances, inst.Clone())
		}
		r.instances[inst.ID] = inst
	}
	v := r.nextVersion()
	r.mu.Unlock()

	for _, t := range fixedTasks {
		r.mirrorTask(ctx, t, v)
	}
	for _, inst := range fixedInstances {
		r.mirrorInstance(ctx, inst, v)
	}

	return len(insts), len(ts), nil
}

// Summary counts instances and tasks by status.
type Summary struct {
	Instances map[types.InstanceStatus]int
	Tasks     map[types.TaskStatus]int
}

// Summarize returns the current Summary.
func (r *Registry) Summarize() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		Instances: make(map[types.InstanceStatus]int),
		Tasks:     make(map[types.TaskStatus]int),
	}
	for _, inst := range r.instances {
		s.Instances[inst.Status]++
	}
	for _, t := range r.tasks {
		s.Tasks[t.Status]++
	}
	return s
}

// nextVersion must be called with mu held.
func (r *Registry) nextVersion() uint64 {
	r.version++
	return r.version
}

func instanceKey(id string) string { return "instance:" + id }
func taskKey(id string) string     { return "task:" + id }

// mirrorWrite runs write unless a newer version of key was already written.
func (r *Registry) mirrorWrite(key string, version uint64, write func()) {
	if r.mirror == nil {
		return
	}
	r.mirrorMu.Lock()
	defer r.mirrorMu.Unlock()
	if version < r.mirrored[key] {
		return
	}
	r.mirrored[key] = version
	write()
}

func (r *Registry) mirrorInstance(ctx context.Context, inst *types.Instance, version uint64) {
	r.mirrorWrite(instanceKey(inst.ID), version, func() {
		if err := r.mirror.PutInstanceSnapshot(ctx, inst); err != nil {
			r.log.Warn("failed to mirror instance", "instance_id", inst.ID, "error", err)
		}
	})
}

func (r *Registry) mirrorTask(ctx context.Context, task *types.Task, version uint64) {
	r.mirrorWrite(taskKey(task.ID), version, func() {
		if err := r.mirror.PutTaskSnapshot(ctx, task); err != nil {
			r.log.Warn("failed to mirror task", "task_id", task.ID, "error", err)
		}
	})
}
