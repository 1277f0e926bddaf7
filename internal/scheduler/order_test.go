package scheduler

import (
	"slices"
	"strings"
	"testing"

	"github.com/aristath/coordinator/internal/types"
)

func taskWithDeps(id string, deps ...string) *types.Task {
	t := pendingTask(id, types.TaskBugFix)
	t.Dependencies = deps
	return t
}

func TestDependencyOrder(t *testing.T) {
	tasks := []*types.Task{
		taskWithDeps("c", "b"),
		taskWithDeps("b", "a"),
		taskWithDeps("a"),
		taskWithDeps("d", "missing"),
	}

	order, err := DependencyOrder(tasks)
	if err != nil {
		t.Fatalf("DependencyOrder: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 ids, got %v", order)
	}

	pos := func(id string) int { return slices.Index(order, id) }
	if !(pos("a") < pos("b") && pos("b") < pos("c")) {
		t.Errorf("dependencies out of order: %v", order)
	}
	if pos("d") < 0 {
		t.Errorf("task with unknown dependency dropped: %v", order)
	}
}

func TestDependencyOrder_Cycle(t *testing.T) {
	tasks := []*types.Task{
		taskWithDeps("a", "b"),
		taskWithDeps("b", "a"),
	}

	_, err := DependencyOrder(tasks)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestDependencyOrder_Empty(t *testing.T) {
	order, err := DependencyOrder(nil)
	if err != nil {
		t.Fatalf("DependencyOrder: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected no ids, got %v", order)
	}
}

func TestBuildPrompt(t *testing.T) {
	task := pendingTask("t1", types.TaskBugFix)
	task.Description = "Fix the login redirect"

	t.Run("role context", func(t *testing.T) {
		inst := idleInstance("dev", types.RoleDeveloper)
		inst.Config.Name = "Backend Developer"
		inst.Config.PreferredLanguages = []string{"rust", "go"}

		want := "You are a Backend Developer specializing in rust, go. Focus on implementing features, fixing bugs, and writing clean, maintainable code." +
			"\n\nTask: Fix the login redirect" +
			"\n\nPlease complete this task and provide a detailed summary of what you accomplished."
		if got := BuildPrompt(inst, task); got != want {
			t.Errorf("got %q\nwant %q", got, want)
		}
	})

	t.Run("override", func(t *testing.T) {
		inst := idleInstance("rev", types.RoleReviewer)
		inst.Config.CustomPrompts[RoleContextKey] = "You review Go code only."

		got := BuildPrompt(inst, task)
		if !strings.HasPrefix(got, "You review Go code only.\n\nTask: ") {
			t.Errorf("override not applied: %q", got)
		}
	})
}

func TestTaskParamsValidate(t *testing.T) {
	valid := TaskParams{TaskType: types.TaskDocumentation, Description: "write docs", Priority: types.PriorityCritical}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}

	low := TaskParams{TaskType: types.TaskDocumentation, Description: "write docs"}
	if err := low.Validate(); err != nil {
		t.Errorf("zero priority should be low: %v", err)
	}

	negative := TaskParams{TaskType: types.TaskDocumentation, Description: "x", Priority: -1}
	if err := negative.Validate(); err == nil {
		t.Error("negative priority accepted")
	}
}
