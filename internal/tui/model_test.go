package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/coordinator/internal/events"
	"github.com/aristath/coordinator/internal/scheduler"
	"github.com/aristath/coordinator/internal/types"
)

type fakeCoordinator struct {
	mu        sync.Mutex
	instances []*types.Instance
	tasks     []*types.Task
	submitted []scheduler.TaskParams
	err       error
}

func (f *fakeCoordinator) Instances() []*types.Instance { return f.instances }
func (f *fakeCoordinator) Tasks() []*types.Task         { return f.tasks }

func (f *fakeCoordinator) SubmitTask(_ context.Context, p scheduler.TaskParams) (*types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, p)
	return &types.Task{
		ID:          "task-new-0001",
		TaskType:    p.TaskType,
		Description: p.Description,
		Status:      types.TaskPending,
		Priority:    p.Priority,
	}, nil
}

func testInstance(id, name string, role types.Role) *types.Instance {
	cfg := role.ConfigTemplate()
	cfg.Name = name
	return &types.Instance{ID: id, Role: role, Status: types.InstanceIdle, Config: cfg}
}

func key(s string) tea.KeyMsg {
	switch s {
	case KeyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case KeyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return nm
}

func TestModel_SeedsFromSnapshot(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	coord := &fakeCoordinator{
		instances: []*types.Instance{testInstance("inst-1", "Backend Developer", types.RoleDeveloper)},
		tasks:     []*types.Task{{ID: "task-1", Status: types.TaskCompleted, Priority: types.PriorityHigh, Description: "add endpoint"}},
	}
	m := New(coord, bus)
	m = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})

	view := m.View()
	for _, want := range []string{"Instances", "Backend Developer", "Tasks", "add endpoint"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if got := m.taskPane.Counts()[types.TaskCompleted]; got != 1 {
		t.Errorf("expected 1 completed task, got %d", got)
	}
}

func TestInstancePane_TracksLifecycle(t *testing.T) {
	pane := NewInstancePaneModel()
	pane.SetSize(100, 30)
	now := time.Now()

	inst := testInstance("inst-1", "QA Tester", types.RoleTester)
	pane, _ = pane.Update(events.InstanceCreatedEvent{Instance: inst, Timestamp: now})

	task := &types.Task{ID: "task-abcdef123", TaskType: types.TaskTestCreation, Description: "cover parser", Status: types.TaskInProgress}
	pane, _ = pane.Update(events.TaskAssignedEvent{Task: task, Instance: "inst-1", Timestamp: now})

	st := pane.instances["inst-1"]
	if st.inst.Status != types.InstanceWorking || st.inst.CurrentTask == nil {
		t.Fatalf("expected working instance with a task, got %s", st.inst.Status)
	}

	done := task.Clone()
	done.Status = types.TaskCompleted
	idle := inst.Clone()
	result := &types.TaskResult{Success: true, Output: types.StringPtr("all tests pass\n")}
	pane, _ = pane.Update(events.TaskCompletedEvent{Task: done, Instance: idle, Result: result, Duration: time.Second, Timestamp: now})

	st = pane.instances["inst-1"]
	if st.inst.Status != types.InstanceIdle || st.inst.CurrentTask != nil {
		t.Errorf("expected idle instance, got %s", st.inst.Status)
	}
	log := strings.Join(st.activity, "\n")
	for _, want := range []string{"created as QA Tester", "assigned test_creation task task-abc", "all tests pass", "[Completed task-abc in 1s]"} {
		if !strings.Contains(log, want) {
			t.Errorf("activity missing %q:\n%s", want, log)
		}
	}

	pane, _ = pane.Update(events.InstanceTerminatedEvent{Instance: idle, Timestamp: now})
	if got := pane.instances["inst-1"].inst.Status; got != types.InstanceOffline {
		t.Errorf("expected offline after termination, got %s", got)
	}
	if len(pane.Options()) != 0 {
		t.Error("terminated instance should not be offered as a target")
	}
}

func TestInstancePane_FailedResult(t *testing.T) {
	pane := NewInstancePaneModel()
	inst := testInstance("inst-1", "Developer", types.RoleDeveloper)
	pane.Seed([]*types.Instance{inst})

	task := &types.Task{ID: "task-1", Status: types.TaskFailed}
	pane, _ = pane.Update(events.TaskCompletedEvent{
		Task:      task,
		Instance:  inst,
		Result:    types.FailedResult("Claude Code execution failed: Claude Code process timed out after 5 seconds"),
		Timestamp: time.Now(),
	})

	log := strings.Join(pane.instances["inst-1"].activity, "\n")
	if !strings.Contains(log, "[Failed task-1: Claude Code execution failed: Claude Code process timed out after 5 seconds]") {
		t.Errorf("unexpected activity:\n%s", log)
	}
}

func TestInstancePane_NonZeroExit(t *testing.T) {
	pane := NewInstancePaneModel()
	inst := testInstance("inst-1", "Developer", types.RoleDeveloper)
	pane.Seed([]*types.Instance{inst})

	task := &types.Task{ID: "task-1", Status: types.TaskCompleted}
	pane, _ = pane.Update(events.TaskCompletedEvent{
		Task:      task,
		Instance:  inst,
		Result:    &types.TaskResult{Success: false, Output: types.StringPtr("half done")},
		Duration:  time.Second,
		Timestamp: time.Now(),
	})

	log := strings.Join(pane.instances["inst-1"].activity, "\n")
	if !strings.Contains(log, "[Completed task-1 with non-zero exit in 1s]") {
		t.Errorf("unexpected activity:\n%s", log)
	}
	if !strings.Contains(log, "half done") {
		t.Errorf("output missing:\n%s", log)
	}
}

func TestTaskPane_TracksEvents(t *testing.T) {
	pane := NewTaskPaneModel()
	now := time.Now()

	task := &types.Task{ID: "t1", Status: types.TaskInProgress}
	pane, _ = pane.Update(events.TaskAssignedEvent{Task: task, Instance: "inst-1", Timestamp: now})
	if got := pane.Counts()[types.TaskInProgress]; got != 1 {
		t.Fatalf("expected 1 in progress, got %d", got)
	}

	done := task.Clone()
	done.Status = types.TaskFailed
	pane, _ = pane.Update(events.TaskCompletedEvent{Task: done, Instance: &types.Instance{ID: "inst-1"}, Timestamp: now})

	c := pane.Counts()
	if c[types.TaskInProgress] != 0 || c[types.TaskFailed] != 1 {
		t.Errorf("unexpected counts: %v", c)
	}
	if len(pane.order) != 1 {
		t.Errorf("expected one tracked task, got %d", len(pane.order))
	}
}

func TestTaskForm_Params(t *testing.T) {
	form := NewTaskFormModel()
	form.fields.taskType = string(types.TaskBugFix)
	form.fields.priority = "critical"
	form.fields.description = "  fix crash on empty input \n"
	form.fields.dependencies = "t1, ,t2 "
	form.fields.target = "inst-7"

	p, err := form.params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.TaskType != types.TaskBugFix || p.Priority != types.PriorityCritical {
		t.Errorf("unexpected type/priority: %s/%s", p.TaskType, p.Priority)
	}
	if p.Description != "fix crash on empty input" {
		t.Errorf("description not trimmed: %q", p.Description)
	}
	if len(p.Dependencies) != 2 || p.Dependencies[0] != "t1" || p.Dependencies[1] != "t2" {
		t.Errorf("unexpected dependencies: %v", p.Dependencies)
	}
	if p.Target != "inst-7" {
		t.Errorf("unexpected target: %q", p.Target)
	}
}

func TestTaskForm_Defaults(t *testing.T) {
	form := NewTaskFormModel()
	p, err := form.params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.TaskType != types.TaskFeatureImplementation || p.Priority != types.PriorityMedium {
		t.Errorf("unexpected defaults: %s/%s", p.TaskType, p.Priority)
	}
	if p.Dependencies != nil || p.Target != "" {
		t.Errorf("expected no dependencies or target, got %v %q", p.Dependencies, p.Target)
	}
}

func TestModel_FormOpensAndCancels(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(&fakeCoordinator{}, bus)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m = update(t, m, key(KeyNewTask))
	if !m.taskForm.IsVisible() {
		t.Fatal("expected form to open")
	}
	if !strings.Contains(m.View(), "New Task") {
		t.Error("form view not rendered")
	}

	m = update(t, m, key(KeyEsc))
	if m.taskForm.IsVisible() {
		t.Error("expected form to close on esc")
	}
}

func TestModel_SubmitTask(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	coord := &fakeCoordinator{}
	m := New(coord, bus)

	p := scheduler.TaskParams{TaskType: types.TaskResearch, Description: "survey caches", Priority: types.PriorityLow}
	msg := submitTask(coord, p)()

	if len(coord.submitted) != 1 || coord.submitted[0].Description != "survey caches" {
		t.Fatalf("unexpected submissions: %+v", coord.submitted)
	}

	m = update(t, m, msg)
	if !strings.Contains(m.status, "task-new pending") {
		t.Errorf("unexpected status: %q", m.status)
	}
	if _, ok := m.taskPane.tasks["task-new-0001"]; !ok {
		t.Error("submitted task not tracked")
	}
}

func TestModel_SubmitFailure(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	coord := &fakeCoordinator{err: errors.New("store unavailable")}
	m := New(coord, bus)

	m = update(t, m, submitTask(coord, scheduler.TaskParams{})())
	if !strings.Contains(m.status, "Submit failed: store unavailable") {
		t.Errorf("unexpected status: %q", m.status)
	}
	if len(m.taskPane.order) != 0 {
		t.Error("failed submission should not be tracked")
	}
}

func TestModel_ReceivesBusEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(&fakeCoordinator{}, bus)
	cmd := m.Init()

	inst := testInstance("inst-9", "Researcher", types.RoleResearcher)
	bus.Publish(events.TopicInstance, events.InstanceCreatedEvent{Instance: inst, Timestamp: time.Now()})

	msg := cmd()
	if _, ok := msg.(events.InstanceCreatedEvent); !ok {
		t.Fatalf("expected InstanceCreatedEvent, got %T", msg)
	}

	m = update(t, m, msg)
	if _, ok := m.instancePane.instances["inst-9"]; !ok {
		t.Error("instance not tracked after event")
	}
}

func TestModel_FocusAndQuit(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()

	m := New(&fakeCoordinator{}, bus)
	m = update(t, m, key(KeyTab))
	if m.focusedPane != PaneTasks || !m.taskPane.focused || m.instancePane.focused {
		t.Errorf("expected task pane focus, got %d", m.focusedPane)
	}
	m = update(t, m, key(KeyPane1))
	if m.focusedPane != PaneInstances {
		t.Errorf("expected instance pane focus, got %d", m.focusedPane)
	}

	next, cmd := m.Update(key(KeyQuit))
	if cmd == nil || !next.(Model).quitting {
		t.Fatal("expected quit")
	}
	if _, ok := <-m.sub.C(); ok {
		t.Error("subscription should be closed after quit")
	}
}
