// Package coordinator wires the registry, scheduler and executor to a durable
// store and runs the background loops that feed queued work to instances.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/coordinator/internal/backend"
	"github.com/aristath/coordinator/internal/config"
	"github.com/aristath/coordinator/internal/events"
	"github.com/aristath/coordinator/internal/logging"
	"github.com/aristath/coordinator/internal/persistence"
	"github.com/aristath/coordinator/internal/scheduler"
	"github.com/aristath/coordinator/internal/types"
)

// Options configures a Coordinator.
type Options struct {
	Config *config.Config    // nil uses config.DefaultConfig()
	Store  persistence.Store // required
	Agent  backend.Agent     // required
	Bus    *events.EventBus  // nil creates a private bus
	Logger *logging.Logger   // nil discards logs
}

// Coordinator owns the instance pool and the task lifecycle.
type Coordinator struct {
	cfg   *config.Config
	store *breakerStore
	reg   *scheduler.Registry
	exec  *scheduler.Executor
	sched *scheduler.Scheduler
	bus   *events.EventBus
	log   *logging.Logger
}

// New creates a Coordinator. Call Initialize before submitting work.
func New(opts Options) *Coordinator {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewEventBus()
	}

	store := newBreakerStore(opts.Store, BreakerConfig{
		Failures: cfg.Store.BreakerFailures,
		Timeout:  cfg.Store.BreakerTimeout.Std(),
	}, log)

	reg := scheduler.NewRegistry(store, log)
	exec := scheduler.NewExecutor(reg, opts.Agent, bus, log)
	sched := scheduler.New(reg, store, exec, bus, log)

	return &Coordinator{
		cfg:   cfg,
		store: store,
		reg:   reg,
		exec:  exec,
		sched: sched,
		bus:   bus,
		log:   log,
	}
}

// Bus returns the event bus lifecycle events are published on.
func (c *Coordinator) Bus() *events.EventBus {
	return c.bus
}

// Initialize checks the store, restores mirrored state and, when the
// restored pool is empty, creates the configured default team.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.log.Info("initializing coordinator", "namespace", c.cfg.Store.Namespace)

	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}

	instances, tasks, err := c.reg.Restore(ctx, c.store)
	if err != nil {
		c.log.Warn("failed to restore state, starting empty", "error", err)
	} else if instances > 0 || tasks > 0 {
		c.log.Info("restored state", "instances", instances, "tasks", tasks)
	}

	if !c.cfg.Team.Enabled || instances > 0 {
		return nil
	}

	c.log.Info("creating default team", "members", len(c.cfg.Team.Members))
	for _, m := range c.cfg.Team.Members {
		role, ic, err := c.cfg.MemberConfig(m)
		if err != nil {
			return fmt.Errorf("team member %q: %w", m.Name, err)
		}
		c.addInstance(ctx, role, role.Capabilities(), ic)
	}
	return nil
}

// CreateInstance adds an idle instance of role. nil capabilities use the
// role's own.
func (c *Coordinator) CreateInstance(ctx context.Context, role types.Role, capabilities []string) (*types.Instance, error) {
	if _, err := types.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if capabilities == nil {
		capabilities = role.Capabilities()
	}
	return c.addInstance(ctx, role, capabilities, c.cfg.InstanceConfig(role)), nil
}

func (c *Coordinator) addInstance(ctx context.Context, role types.Role, capabilities []string, ic types.InstanceConfig) *types.Instance {
	now := time.Now()
	inst := &types.Instance{
		ID:           uuid.NewString(),
		Role:         role,
		Status:       types.InstanceIdle,
		Capabilities: append([]string{}, capabilities...),
		Config:       ic,
		CreatedAt:    now,
		LastActivity: now,
	}
	c.reg.UpsertInstance(ctx, inst)

	c.log.Info("instance created", "instance_id", inst.ID, "role", role, "name", ic.Name)
	c.bus.Publish(events.TopicInstance, events.InstanceCreatedEvent{
		Instance:  inst.Clone(),
		Timestamp: now,
	})
	return inst
}

// TerminateInstance removes an instance from the pool. A task it is running
// finishes in the background and only the task record is updated.
func (c *Coordinator) TerminateInstance(ctx context.Context, id string) error {
	inst, err := c.reg.RemoveInstance(ctx, id)
	if err != nil {
		return err
	}

	c.log.Info("instance terminated", "instance_id", id, "status", inst.Status)
	c.bus.Publish(events.TopicInstance, events.InstanceTerminatedEvent{
		Instance:  inst,
		Timestamp: time.Now(),
	})
	return nil
}

// UpdateInstanceConfig replaces an instance's configuration. Invalid
// settings are rejected and the instance is left unchanged.
// A running task keeps the configuration it started with.
func (c *Coordinator) UpdateInstanceConfig(ctx context.Context, id string, ic types.InstanceConfig) (*types.Instance, error) {
	inst, err := c.reg.UpdateInstance(ctx, id, func(i *types.Instance) error {
		if err := ic.Validate(); err != nil {
			return err
		}
		i.Config = ic.Clone()
		i.LastActivity = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("instance config updated", "instance_id", id)
	return inst, nil
}

// GetInstanceConfig returns an instance's configuration.
func (c *Coordinator) GetInstanceConfig(id string) (types.InstanceConfig, error) {
	inst, err := c.reg.GetInstance(id)
	if err != nil {
		return types.InstanceConfig{}, err
	}
	return inst.Config, nil
}

// InstanceStatus returns a snapshot of one instance.
func (c *Coordinator) InstanceStatus(id string) (*types.Instance, error) {
	return c.reg.GetInstance(id)
}

// Instances returns snapshots of every instance in creation order.
func (c *Coordinator) Instances() []*types.Instance {
	return c.reg.ListInstances()
}

// Task returns a snapshot of one task.
func (c *Coordinator) Task(id string) (*types.Task, error) {
	return c.reg.GetTask(id)
}

// Tasks returns snapshots of every task in creation order.
func (c *Coordinator) Tasks() []*types.Task {
	return c.reg.ListTasks()
}

// Summary counts instances and tasks by status.
func (c *Coordinator) Summary() scheduler.Summary {
	return c.reg.Summarize()
}

// SubmitTask creates a task and routes it.
func (c *Coordinator) SubmitTask(ctx context.Context, p scheduler.TaskParams) (*types.Task, error) {
	return c.sched.CreateAndRoute(ctx, p)
}

// CancelTask cancels a pending task.
func (c *Coordinator) CancelTask(ctx context.Context, id string) (*types.Task, error) {
	return c.sched.Cancel(ctx, id)
}

// QueueStats returns the number of queued entries per priority.
func (c *Coordinator) QueueStats(ctx context.Context) (map[types.Priority]int64, error) {
	return c.store.QueueDepthByPriority(ctx)
}

// ClearQueue drops queued entries for one priority, or all when p is nil.
// The tasks stay registered and pending.
func (c *Coordinator) ClearQueue(ctx context.Context, p *types.Priority) error {
	if err := c.store.Clear(ctx, p); err != nil {
		return err
	}
	if p == nil {
		c.log.Info("cleared all task queues")
	} else {
		c.log.Info("cleared task queue", "priority", p.String())
	}
	return nil
}

// Wait blocks until every running execution has been committed.
func (c *Coordinator) Wait() {
	c.exec.Wait()
}

// Enqueue records a pending task in store and queues it for whichever
// coordinator drains that store. Nothing is executed by the caller.
func Enqueue(ctx context.Context, store persistence.Store, p scheduler.TaskParams) (*types.Task, error) {
	task, err := scheduler.NewTask(p)
	if err != nil {
		return nil, err
	}
	if err := store.PutTaskSnapshot(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to record task %s: %w", task.ID, err)
	}
	if err := store.Push(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
	}
	return task, nil
}
