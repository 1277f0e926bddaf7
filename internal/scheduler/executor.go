package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/coordinator/internal/backend"
	"github.com/aristath/coordinator/internal/events"
	"github.com/aristath/coordinator/internal/logging"
	"github.com/aristath/coordinator/internal/types"
)

// Publisher delivers lifecycle events to listeners. It must not block.
type Publisher interface {
	Publish(topic string, event events.Event)
}

// Executor runs assigned tasks through the agent, one goroutine per task,
// and commits the outcome back into the Registry.
type Executor struct {
	reg   *Registry
	agent backend.Agent
	bus   Publisher
	log   *logging.Logger

	inflight sync.WaitGroup
}

// NewExecutor creates a new Executor.
func NewExecutor(reg *Registry, agent backend.Agent, bus Publisher, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.Nop()
	}
	return &Executor{reg: reg, agent: agent, bus: bus, log: log}
}

// Run starts executing task on inst in the background and returns immediately.
// task and inst are the snapshots committed by the assignment.
func (e *Executor) Run(task *types.Task, inst *types.Instance) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.execute(task, inst)
	}()
}

// Wait blocks until every execution started so far has been committed.
func (e *Executor) Wait() {
	e.inflight.Wait()
}

type invokeResult struct {
	out backend.Output
	err error
}

func (e *Executor) execute(task *types.Task, inst *types.Instance) {
	log := e.log.WithTask(task.ID).WithInstance(inst.ID)
	start := time.Now()

	timeout := inst.Config.Timeout()
	ctx := context.Background()
	var cancel context.CancelFunc = func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	inv := backend.Invocation{
		Path:    inst.Config.ClaudeCodePath,
		Prompt:  BuildPrompt(inst, task),
		Env:     inst.Config.EnvironmentVars,
		WorkDir: inst.Config.WorkspaceDir,
		Timeout: timeout,
	}

	log.Info("executing task", "role", inst.Role, "name", inst.Config.Name, "timeout", timeout)

	// The agent may ignore cancellation, so the wait itself is bounded too.
	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: fmt.Errorf("agent panicked: %v", r)}
			}
		}()
		out, err := e.agent.Invoke(ctx, inv)
		done <- invokeResult{out: out, err: err}
	}()

	var res invokeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = invokeResult{err: &backend.Error{Kind: backend.KindTimeout, Timeout: timeout, Err: ctx.Err()}}
	}

	status, result := outcome(res)
	switch {
	case status == types.TaskCompleted && result.Success:
		log.Info("task completed", "duration", time.Since(start))
	case status == types.TaskCompleted:
		log.Warn("task completed with non-zero exit", "duration", time.Since(start), "stderr", deref(result.Error))
	default:
		log.Warn("task failed", "duration", time.Since(start), "error", deref(result.Error))
	}

	finalTask, finalInst, err := e.reg.Release(context.Background(), task.ID, inst.ID, status, result)
	if err != nil {
		log.Error("failed to commit task outcome", "error", err)
		return
	}
	if finalInst == nil {
		// Terminated while running.
		finalInst = inst.Clone()
		finalInst.Status = types.InstanceOffline
		finalInst.CurrentTask = nil
		finalInst.ActiveTasks = 0
	}

	if e.bus == nil {
		return
	}

	// Spawn failures are also reported against the instance.
	var agentErr *backend.Error
	if errors.As(res.err, &agentErr) && agentErr.Kind == backend.KindSpawn {
		e.bus.Publish(events.TopicInstance, events.InstanceErrorEvent{
			Instance:  finalInst.Clone(),
			Err:       res.err.Error(),
			Timestamp: time.Now(),
		})
	}

	e.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		Task:      finalTask,
		Instance:  finalInst,
		Result:    result.Clone(),
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
}

// outcome maps an agent result onto the task's final status and result.
// Only spawn, I/O and timeout errors fail the task. A process that ran to
// the end completes it, with Success reporting the exit status.
func outcome(res invokeResult) (types.TaskStatus, *types.TaskResult) {
	if res.err != nil {
		return types.TaskFailed, types.FailedResult("Claude Code execution failed: " + res.err.Error())
	}

	result := &types.TaskResult{
		Success:       res.out.Success,
		FilesModified: []string{},
		TestsRun:      []types.TestResult{},
	}
	if res.out.Stdout != "" {
		result.Output = types.StringPtr(res.out.Stdout)
	}
	if res.out.Stderr != "" {
		result.Error = types.StringPtr(res.out.Stderr)
	}
	return types.TaskCompleted, result
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
