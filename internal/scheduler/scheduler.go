package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/coordinator/internal/events"
	"github.com/aristath/coordinator/internal/logging"
	"github.com/aristath/coordinator/internal/types"
)

// Queue is the durable, priority-ordered task queue.
type Queue interface {
	Push(ctx context.Context, task *types.Task) error
}

// Runner starts executing an assigned task.
type Runner interface {
	Run(task *types.Task, inst *types.Instance)
}

// TaskParams describes a task to create.
type TaskParams struct {
	TaskType     types.TaskType
	Description  string
	Priority     types.Priority
	Dependencies []string
	// Target pins the task to one instance. Empty means any instance.
	Target string
}

// Scheduler matches tasks to instances and drives the task lifecycle.
type Scheduler struct {
	reg   *Registry
	queue Queue
	exec  Runner
	bus   Publisher
	log   *logging.Logger
}

// New creates a Scheduler.
func New(reg *Registry, queue Queue, exec Runner, bus Publisher, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	return &Scheduler{reg: reg, queue: queue, exec: exec, bus: bus, log: log}
}

// SelectInstanceFor picks an instance for task: the first instance that can
// accept work and whose role the task type prefers, otherwise the first that
// can accept work at all. Instances are considered in registry order.
func (s *Scheduler) SelectInstanceFor(task *types.Task) (*types.Instance, bool) {
	var candidates []*types.Instance
	for _, inst := range s.reg.ListInstances() {
		if inst.CanAccept() {
			candidates = append(candidates, inst)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	preferred := task.TaskType.PreferredRoles()
	for _, inst := range candidates {
		if slices.Contains(preferred, inst.Role) {
			return inst, true
		}
	}
	return candidates[0], true
}

// Assign hands task to the instance and starts execution.
//
// The task is left untouched when the instance does not exist
// (ErrInstanceNotFound), cannot take work (ErrInstanceBusy), or the task is
// no longer pending (ErrTaskNotPending).
func (s *Scheduler) Assign(ctx context.Context, task *types.Task, instanceID string) error {
	t, inst, err := s.reg.Claim(ctx, task, instanceID)
	if err != nil {
		return err
	}

	s.log.Info("task assigned", "task_id", t.ID, "instance_id", inst.ID, "role", inst.Role, "task_type", t.TaskType)

	if s.bus != nil {
		s.bus.Publish(events.TopicTask, events.TaskAssignedEvent{
			Task:      t.Clone(),
			Instance:  inst.ID,
			Timestamp: time.Now(),
		})
	}

	s.exec.Run(t, inst)
	return nil
}

// Validate checks task parameters before anything is created.
func (p TaskParams) Validate() error {
	if _, err := types.ParseTaskType(string(p.TaskType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("%w: description is empty", ErrInvalidTask)
	}
	if p.Priority < types.PriorityLow || p.Priority > types.PriorityCritical {
		return fmt.Errorf("%w: priority %d out of range", ErrInvalidTask, int(p.Priority))
	}
	return nil
}

// NewTask builds a pending task from validated parameters. A target is
// recorded as the task's assignee so that routing honours it.
func NewTask(p TaskParams) (*types.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	task := &types.Task{
		ID:           uuid.NewString(),
		TaskType:     p.TaskType,
		Description:  p.Description,
		Status:       types.TaskPending,
		Priority:     p.Priority,
		Dependencies: append([]string{}, p.Dependencies...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.Target != "" {
		task.AssignedTo = types.StringPtr(p.Target)
	}
	return task, nil
}

// CreateAndRoute creates a pending task and routes it.
//
// With a target the task is assigned to that instance; a busy target leaves
// the task queued for it. Without a target the task is enqueued first, then
// an immediate assignment is attempted. Failing to enqueue is returned, since
// the queue is the only durable record of unassigned work.
func (s *Scheduler) CreateAndRoute(ctx context.Context, p TaskParams) (*types.Task, error) {
	task, err := NewTask(p)
	if err != nil {
		return nil, err
	}
	if p.Target != "" {
		if _, err := s.reg.GetInstance(p.Target); err != nil {
			return nil, err
		}
	}

	s.reg.UpsertTask(ctx, task)
	s.checkDependencies(task)

	log := s.log.WithTask(task.ID)
	log.Info("task created", "task_type", task.TaskType, "priority", task.Priority, "target", p.Target)

	if p.Target != "" {
		err = s.Assign(ctx, task, p.Target)
		switch {
		case err == nil:
		case errors.Is(err, ErrInstanceBusy):
			log.Info("target instance busy, task queued", "instance_id", p.Target)
			if err := s.queue.Push(ctx, task); err != nil {
				return nil, fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
			}
		default:
			return nil, err
		}
		return s.reg.GetTask(task.ID)
	}

	if err := s.queue.Push(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}

	// The queued copy turns stale if this succeeds; RouteQueued skips it.
	if inst, ok := s.SelectInstanceFor(task); ok {
		if err := s.Assign(ctx, task, inst.ID); err != nil {
			log.Debug("immediate assignment lost, task stays queued", "instance_id", inst.ID, "error", err)
		}
	} else {
		log.Info("no instance available, task queued")
	}

	return s.reg.GetTask(task.ID)
}

// Routing is what RouteQueued did with a queue entry.
type Routing int

const (
	// Routed means the task was assigned and is executing.
	Routed Routing = iota
	// Requeued means no instance could take the task; it is back in the queue.
	Requeued
	// Dropped means the entry was stale: the task is no longer pending.
	Dropped
	// Held means the task's target instance is busy. The task was not pushed
	// back; the caller requeues it with Requeue once it stops draining.
	Held
)

func (r Routing) String() string {
	switch r {
	case Routed:
		return "routed"
	case Requeued:
		return "requeued"
	case Dropped:
		return "dropped"
	case Held:
		return "held"
	default:
		return fmt.Sprintf("routing(%d)", int(r))
	}
}

// RouteQueued routes a task taken off the queue. Entries for tasks that are
// no longer pending are dropped; tasks that no instance could take are pushed
// back. A task whose target instance is busy is Held and left to the caller,
// since other instances may still be free. A failed push is returned with
// Requeued.
func (s *Scheduler) RouteQueued(ctx context.Context, queued *types.Task) (Routing, error) {
	task, err := s.reg.GetTask(queued.ID)
	if errors.Is(err, ErrTaskNotFound) {
		// Queued by another process, or before a restart without a mirror.
		s.reg.UpsertTask(ctx, queued)
		task = queued.Clone()
	} else if err != nil {
		return Dropped, err
	}

	if task.Status != types.TaskPending {
		s.log.Debug("dropping stale queue entry", "task_id", task.ID, "status", task.Status)
		return Dropped, nil
	}

	if target := task.AssignedID(); target != "" {
		err := s.Assign(ctx, task, target)
		switch {
		case err == nil:
			return Routed, nil
		case errors.Is(err, ErrInstanceBusy):
			return Held, nil
		case errors.Is(err, ErrTaskNotPending):
			return Dropped, nil
		case errors.Is(err, ErrInstanceNotFound):
			// The target is gone; let any instance take it.
			s.log.Warn("target instance no longer exists, rerouting", "task_id", task.ID, "instance_id", target)
			task.AssignedTo = nil
			task.UpdatedAt = time.Now()
			s.reg.UpsertTask(ctx, task)
		default:
			return Requeued, errors.Join(err, s.Requeue(ctx, task))
		}
	}

	inst, ok := s.SelectInstanceFor(task)
	if !ok {
		return Requeued, s.Requeue(ctx, task)
	}

	err = s.Assign(ctx, task, inst.ID)
	switch {
	case err == nil:
		return Routed, nil
	case errors.Is(err, ErrTaskNotPending):
		return Dropped, nil
	case errors.Is(err, ErrInstanceBusy), errors.Is(err, ErrInstanceNotFound):
		return Requeued, s.Requeue(ctx, task)
	default:
		return Requeued, errors.Join(err, s.Requeue(ctx, task))
	}
}

// Requeue pushes task back onto the queue.
func (s *Scheduler) Requeue(ctx context.Context, task *types.Task) error {
	if err := s.queue.Push(ctx, task); err != nil {
		return fmt.Errorf("failed to requeue task %s: %w", task.ID, err)
	}
	return nil
}

// Cancel marks a pending task cancelled. Queue entries for it become stale.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) (*types.Task, error) {
	task, err := s.reg.Cancel(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.log.Info("task cancelled", "task_id", taskID)
	return task, nil
}

// checkDependencies logs when task references unknown tasks or closes a cycle.
func (s *Scheduler) checkDependencies(task *types.Task) {
	if len(task.Dependencies) == 0 {
		return
	}
	for _, dep := range task.Dependencies {
		if _, err := s.reg.GetTask(dep); err != nil {
			s.log.Warn("task depends on unknown task", "task_id", task.ID, "dependency", dep)
		}
	}
	if _, err := DependencyOrder(s.reg.ListTasks()); err != nil {
		s.log.Warn("task dependencies form a cycle", "task_id", task.ID, "error", err)
	}
}
