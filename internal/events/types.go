package events

import (
	"time"

	"github.com/aristath/coordinator/internal/types"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
	InstanceID() string
}

// Topic constants
const (
	TopicInstance = "instance"
	TopicTask     = "task"
)

// Event type constants
const (
	EventTypeInstanceCreated    = "instance.created"
	EventTypeInstanceTerminated = "instance.terminated"
	EventTypeInstanceError      = "instance.error"
	EventTypeTaskAssigned       = "task.assigned"
	EventTypeTaskCompleted      = "task.completed"
)

// InstanceCreatedEvent is published when an instance joins the pool.
type InstanceCreatedEvent struct {
	Instance  *types.Instance
	Timestamp time.Time
}

func (e InstanceCreatedEvent) EventType() string  { return EventTypeInstanceCreated }
func (e InstanceCreatedEvent) TaskID() string     { return "" }
func (e InstanceCreatedEvent) InstanceID() string { return e.Instance.ID }

// InstanceTerminatedEvent is published when an instance leaves the pool.
type InstanceTerminatedEvent struct {
	Instance  *types.Instance // Last snapshot before removal
	Timestamp time.Time
}

func (e InstanceTerminatedEvent) EventType() string  { return EventTypeInstanceTerminated }
func (e InstanceTerminatedEvent) TaskID() string     { return "" }
func (e InstanceTerminatedEvent) InstanceID() string { return e.Instance.ID }

// InstanceErrorEvent reports a failure attributed to an instance.
type InstanceErrorEvent struct {
	Instance  *types.Instance
	Err       string
	Timestamp time.Time
}

func (e InstanceErrorEvent) EventType() string  { return EventTypeInstanceError }
func (e InstanceErrorEvent) TaskID() string     { return "" }
func (e InstanceErrorEvent) InstanceID() string { return e.Instance.ID }

// TaskAssignedEvent is published when a task is handed to an instance.
type TaskAssignedEvent struct {
	Task      *types.Task
	Instance  string
	Timestamp time.Time
}

func (e TaskAssignedEvent) EventType() string  { return EventTypeTaskAssigned }
func (e TaskAssignedEvent) TaskID() string     { return e.Task.ID }
func (e TaskAssignedEvent) InstanceID() string { return e.Instance }

// TaskCompletedEvent is published when execution finishes, successfully or not.
type TaskCompletedEvent struct {
	Task      *types.Task
	Instance  *types.Instance
	Result    *types.TaskResult
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string  { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string     { return e.Task.ID }
func (e TaskCompletedEvent) InstanceID() string { return e.Instance.ID }
