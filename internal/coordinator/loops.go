package coordinator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/coordinator/internal/scheduler"
	"github.com/aristath/coordinator/internal/types"
)

// Run drives the heartbeat and queue drain loops until ctx is cancelled,
// then waits for running executions to commit.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("coordinator running",
		"poll_interval", c.cfg.Scheduler.PollInterval.Std(),
		"heartbeat_interval", c.cfg.Scheduler.HeartbeatInterval.Std())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.heartbeatLoop(gctx)
	})
	g.Go(func() error {
		return c.drainLoop(gctx)
	})

	err := g.Wait()
	c.exec.Wait()
	c.log.Info("coordinator stopped")
	return err
}

func (c *Coordinator) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Scheduler.HeartbeatInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.heartbeat(ctx)
		}
	}
}

func (c *Coordinator) heartbeat(ctx context.Context) {
	s := c.reg.Summarize()
	args := []any{
		"idle", s.Instances[types.InstanceIdle],
		"working", s.Instances[types.InstanceWorking],
		"pending", s.Tasks[types.TaskPending],
		"in_progress", s.Tasks[types.TaskInProgress],
		"breaker", c.store.State().String(),
	}

	depth, err := c.store.QueueDepthByPriority(ctx)
	if err != nil {
		c.log.Debug("heartbeat", append(args, "queue_error", err)...)
		return
	}
	var queued int64
	for _, n := range depth {
		queued += n
	}
	c.log.Debug("heartbeat", append(args, "queued", queued)...)
}

func (c *Coordinator) drainLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Scheduler.PollInterval.Std())
	defer ticker.Stop()

	bo := newErrorBackOff(RetryConfig{
		InitialInterval: c.cfg.Scheduler.ErrorBackoff.Std(),
		MaxInterval:     c.cfg.Scheduler.MaxErrorBackoff.Std(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := c.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			c.log.Warn("error draining task queue", "error", err, "retry_in", wait)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}
		bo.Reset()
	}
}

// Drain pops queued tasks in priority order and routes them until the queue
// is empty or a task has to go back because no instance could take it.
// Tasks waiting for a busy target instance are set aside so the work behind
// them is still served, and pushed back when the pass ends.
// It returns the number of tasks assigned.
func (c *Coordinator) Drain(ctx context.Context) (routed int, err error) {
	var held []*types.Task
	defer func() {
		// Pushed back even when ctx is done; the entries would be lost otherwise.
		pushCtx := context.WithoutCancel(ctx)
		for _, task := range held {
			if perr := c.sched.Requeue(pushCtx, task); perr != nil {
				err = errors.Join(err, perr)
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return routed, err
		}

		task, err := c.store.PopHighestPriority(ctx)
		if err != nil {
			return routed, err
		}
		if task == nil {
			return routed, nil
		}

		c.log.Debug("processing queued task", "task_id", task.ID, "priority", task.Priority)
		outcome, err := c.sched.RouteQueued(ctx, task)
		if err != nil {
			return routed, err
		}
		switch outcome {
		case scheduler.Routed:
			routed++
		case scheduler.Held:
			c.log.Debug("target instance busy, holding task", "task_id", task.ID, "instance_id", task.AssignedID())
			held = append(held, task)
		case scheduler.Requeued:
			return routed, nil
		}
	}
}
