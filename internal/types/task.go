package types

import (
	"fmt"
	"time"
)

// TaskType categorises the work a task asks for and drives role affinity.
type TaskType string

const (
	TaskProjectPlanning       TaskType = "project_planning"
	TaskCodeReview            TaskType = "code_review"
	TaskFeatureImplementation TaskType = "feature_implementation"
	TaskBugFix                TaskType = "bug_fix"
	TaskTestCreation          TaskType = "test_creation"
	TaskResearch              TaskType = "research"
	TaskDocumentation         TaskType = "documentation"
)

// AllTaskTypes lists every task type in declaration order.
var AllTaskTypes = []TaskType{
	TaskProjectPlanning,
	TaskCodeReview,
	TaskFeatureImplementation,
	TaskBugFix,
	TaskTestCreation,
	TaskResearch,
	TaskDocumentation,
}

// ParseTaskType converts a wire name into a TaskType.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range AllTaskTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// PreferredRoles returns the roles best suited for this task type, best first.
func (t TaskType) PreferredRoles() []Role {
	roles, ok := preferredRoles[t]
	if !ok {
		return nil
	}
	return append([]Role(nil), roles...)
}

// TaskStatus is a task's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// ParseTaskStatus converts a wire name into a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch st := TaskStatus(s); st {
	case TaskPending, TaskInProgress, TaskCompleted, TaskFailed, TaskCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// IsTerminal reports whether no further transition is expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Priority orders tasks in the durable queue. Higher values are served first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// DrainOrder is the order in which priority segments are checked.
var DrainOrder = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

var priorityNames = [...]string{"low", "medium", "high", "critical"}

func (p Priority) String() string {
	if p < PriorityLow || p > PriorityCritical {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority converts a wire name into a Priority.
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if name == s {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// MarshalText encodes the priority by name so stored records stay readable.
func (p Priority) MarshalText() ([]byte, error) {
	if p < PriorityLow || p > PriorityCritical {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(priorityNames[p]), nil
}

// UnmarshalText decodes a priority name.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// TestResult is a single test outcome reported by an agent.
type TestResult struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Error  *string `json:"error"`
}

// TaskResult is the raw outcome of executing a task.
// FilesModified and TestsRun are carried for compatibility and are left empty
// by the coordinator, which does not interpret agent output.
type TaskResult struct {
	Success       bool         `json:"success"`
	Output        *string      `json:"output"`
	Error         *string      `json:"error"`
	FilesModified []string     `json:"files_modified"`
	TestsRun      []TestResult `json:"tests_run"`
}

// FailedResult builds an unsuccessful result carrying only an error message.
func FailedResult(msg string) *TaskResult {
	return &TaskResult{
		Success:       false,
		Error:         &msg,
		FilesModified: []string{},
		TestsRun:      []TestResult{},
	}
}

// Task is a unit of requested work.
type Task struct {
	ID           string      `json:"id"`
	TaskType     TaskType    `json:"task_type"`
	Description  string      `json:"description"`
	AssignedTo   *string     `json:"assigned_to"`
	Status       TaskStatus  `json:"status"`
	Priority     Priority    `json:"priority"`
	Dependencies []string    `json:"dependencies"`
	Result       *TaskResult `json:"result"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		cp.AssignedTo = &id
	}
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	cp.Result = t.Result.Clone()
	return &cp
}

// Clone returns a deep copy of the result.
func (r *TaskResult) Clone() *TaskResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Output = cloneString(r.Output)
	cp.Error = cloneString(r.Error)
	if r.FilesModified != nil {
		cp.FilesModified = append([]string(nil), r.FilesModified...)
	}
	if r.TestsRun != nil {
		cp.TestsRun = make([]TestResult, len(r.TestsRun))
		for i, tr := range r.TestsRun {
			tr.Error = cloneString(tr.Error)
			cp.TestsRun[i] = tr
		}
	}
	return &cp
}

// AssignedID returns the assigned instance id or "" if unassigned.
func (t *Task) AssignedID() string {
	if t == nil || t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
