package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/coordinator/internal/backend"
	"github.com/aristath/coordinator/internal/events"
	"github.com/aristath/coordinator/internal/types"
)

// mockAgent implements backend.Agent for testing.
type mockAgent struct {
	mu      sync.Mutex
	invoked []backend.Invocation

	output  backend.Output
	err     error
	release chan struct{} // when set, Invoke blocks until closed
	ignore  bool          // block without honouring ctx
}

func (m *mockAgent) Invoke(ctx context.Context, inv backend.Invocation) (backend.Output, error) {
	m.mu.Lock()
	m.invoked = append(m.invoked, inv)
	m.mu.Unlock()

	if m.ignore {
		select {}
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return backend.Output{}, &backend.Error{Kind: backend.KindTimeout, Timeout: inv.Timeout, Err: ctx.Err()}
		}
	}
	return m.output, m.err
}

func (m *mockAgent) invocations() []backend.Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]backend.Invocation(nil), m.invoked...)
}

// memQueue records pushed tasks.
type memQueue struct {
	mu     sync.Mutex
	pushed []*types.Task
	err    error
}

func (q *memQueue) Push(_ context.Context, task *types.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.pushed = append(q.pushed, task.Clone())
	return nil
}

func (q *memQueue) ids() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, len(q.pushed))
	for i, t := range q.pushed {
		ids[i] = t.ID
	}
	return ids
}

// failingMirror rejects every write.
type failingMirror struct{}

var errMirrorDown = errors.New("mirror down")

func (failingMirror) PutInstanceSnapshot(context.Context, *types.Instance) error { return errMirrorDown }
func (failingMirror) DeleteInstanceSnapshot(context.Context, string) error       { return errMirrorDown }
func (failingMirror) PutTaskSnapshot(context.Context, *types.Task) error         { return errMirrorDown }

type harness struct {
	reg   *Registry
	queue *memQueue
	agent *mockAgent
	bus   *events.EventBus
	sub   *events.Subscription
	exec  *Executor
	sched *Scheduler
}

func newHarness(t *testing.T, agent *mockAgent) *harness {
	t.Helper()
	if agent == nil {
		agent = &mockAgent{output: backend.Output{Success: true, Stdout: "done"}}
	}
	h := &harness{
		reg:   NewRegistry(nil, nil),
		queue: &memQueue{},
		agent: agent,
		bus:   events.NewEventBus(),
	}
	h.sub = h.bus.Subscribe()
	h.exec = NewExecutor(h.reg, agent, h.bus, nil)
	h.sched = New(h.reg, h.queue, h.exec, h.bus, nil)
	t.Cleanup(func() {
		if agent.release != nil {
			select {
			case <-agent.release:
			default:
				close(agent.release)
			}
		}
		h.bus.Close()
	})
	return h
}

var clock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// addInstance registers an idle instance of role. Instances added later sort later.
func (h *harness) addInstance(t *testing.T, id string, role types.Role) *types.Instance {
	t.Helper()
	clock = clock.Add(time.Second)
	cfg := role.ConfigTemplate()
	cfg.MaxConcurrentTasks = 1
	inst := &types.Instance{
		ID:           id,
		Role:         role,
		Status:       types.InstanceIdle,
		Capabilities: role.Capabilities(),
		Config:       cfg,
		CreatedAt:    clock,
		LastActivity: clock,
	}
	h.reg.UpsertInstance(context.Background(), inst)
	return inst
}

func pendingTask(id string, tt types.TaskType) *types.Task {
	now := time.Now()
	return &types.Task{
		ID:           id,
		TaskType:     tt,
		Description:  "do " + id,
		Status:       types.TaskPending,
		Priority:     types.PriorityMedium,
		Dependencies: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// waitForCompletion returns the next TaskCompleted event.
func (h *harness) waitForCompletion(t *testing.T, timeout time.Duration) events.TaskCompletedEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-h.sub.C():
			if c, ok := e.(events.TaskCompletedEvent); ok {
				return c
			}
		case <-deadline:
			t.Fatal("timeout waiting for task completion")
		}
	}
}
