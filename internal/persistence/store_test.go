package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/coordinator/internal/scheduler"
	"github.com/aristath/coordinator/internal/types"
)

// testStores returns one store per backend and registers cleanup.
func testStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rs, err := NewRedisStore(ctx, "redis://"+mr.Addr(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })

	ms, err := NewMemoryStore(ctx, "test")
	require.NoError(t, err)
	t.Cleanup(func() { ms.Close() })

	return map[string]Store{"redis": rs, "sqlite": ms}
}

func sampleTask(id string, p types.Priority) *types.Task {
	now := time.Now().UTC()
	return &types.Task{
		ID:           id,
		TaskType:     types.TaskFeatureImplementation,
		Description:  "task " + id,
		Status:       types.TaskPending,
		Priority:     p,
		Dependencies: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPriorityDequeueOrder(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			pushed := []*types.Task{
				sampleTask("low", types.PriorityLow),
				sampleTask("crit-1", types.PriorityCritical),
				sampleTask("medium", types.PriorityMedium),
				sampleTask("high", types.PriorityHigh),
				sampleTask("crit-2", types.PriorityCritical),
			}
			for _, task := range pushed {
				require.NoError(t, store.Push(ctx, task))
			}

			var order []string
			for range pushed {
				task, err := store.PopHighestPriority(ctx)
				require.NoError(t, err)
				require.NotNil(t, task)
				order = append(order, task.ID)
			}
			assert.Equal(t, []string{"crit-1", "crit-2", "high", "medium", "low"}, order)

			task, err := store.PopHighestPriority(ctx)
			require.NoError(t, err)
			assert.Nil(t, task, "queue should be empty")
		})
	}
}

func TestQueueDepthAndClear(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Push(ctx, sampleTask("a", types.PriorityHigh)))
			require.NoError(t, store.Push(ctx, sampleTask("b", types.PriorityHigh)))
			require.NoError(t, store.Push(ctx, sampleTask("c", types.PriorityLow)))

			depth, err := store.QueueDepthByPriority(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[types.Priority]int64{
				types.PriorityCritical: 0,
				types.PriorityHigh:     2,
				types.PriorityMedium:   0,
				types.PriorityLow:      1,
			}, depth)

			high := types.PriorityHigh
			require.NoError(t, store.Clear(ctx, &high))

			depth, err = store.QueueDepthByPriority(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), depth[types.PriorityHigh])
			assert.Equal(t, int64(1), depth[types.PriorityLow])

			require.NoError(t, store.Clear(ctx, nil))
			task, err := store.PopHighestPriority(ctx)
			require.NoError(t, err)
			assert.Nil(t, task)
		})
	}
}

func TestTaskRoundTrip(t *testing.T) {
	out := "did the thing"
	stderr := "warning: something"
	failing := "assertion failed"

	tasks := []*types.Task{
		// Every optional empty.
		sampleTask("bare", types.PriorityMedium),
		{
			ID:           "full",
			TaskType:     types.TaskCodeReview,
			Description:  "review the patch",
			AssignedTo:   types.StringPtr("inst-1"),
			Status:       types.TaskCompleted,
			Priority:     types.PriorityCritical,
			Dependencies: []string{"bare"},
			Result: &types.TaskResult{
				Success:       true,
				Output:        &out,
				Error:         &stderr,
				FilesModified: []string{"main.go"},
				TestsRun: []types.TestResult{
					{Name: "TestOK", Passed: true},
					{Name: "TestBad", Passed: false, Error: &failing},
				},
			},
			CreatedAt: time.Now().UTC().Add(-time.Minute),
			UpdatedAt: time.Now().UTC(),
		},
		{
			ID:           "empty-result",
			TaskType:     types.TaskResearch,
			Status:       types.TaskFailed,
			Priority:     types.PriorityLow,
			Dependencies: []string{},
			Result:       types.FailedResult("Claude Code process timed out after 1 seconds"),
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		},
	}

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, task := range tasks {
				require.NoError(t, store.PutTaskSnapshot(ctx, task))
			}

			loaded, err := store.ListTaskSnapshots(ctx)
			require.NoError(t, err)
			require.Len(t, loaded, len(tasks))

			byID := make(map[string]*types.Task)
			for _, task := range loaded {
				byID[task.ID] = task
			}
			for _, want := range tasks {
				assert.Equal(t, want, byID[want.ID], "task %s", want.ID)
			}
		})
	}
}

func TestInstanceRoundTrip(t *testing.T) {
	now := time.Now().UTC()
	cfg := types.RoleDeveloper.ConfigTemplate()
	cfg.Name = "Backend Developer"

	working := &types.Instance{
		ID:           "inst-working",
		Role:         types.RoleDeveloper,
		Status:       types.InstanceWorking,
		CurrentTask:  sampleTask("t1", types.PriorityHigh),
		Capabilities: types.RoleDeveloper.Capabilities(),
		Config:       cfg,
		ActiveTasks:  1,
		CreatedAt:    now,
		LastActivity: now,
	}
	idle := &types.Instance{
		ID:           "inst-idle",
		Role:         types.RoleResearcher,
		Status:       types.InstanceIdle,
		Capabilities: []string{},
		Config: types.InstanceConfig{
			PreferredLanguages: []string{},
			CustomPrompts:      map[string]string{},
			EnvironmentVars:    map[string]string{},
		},
		CreatedAt:    now,
		LastActivity: now,
	}

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.PutInstanceSnapshot(ctx, working))
			require.NoError(t, store.PutInstanceSnapshot(ctx, idle))

			loaded, err := store.ListInstanceSnapshots(ctx)
			require.NoError(t, err)
			require.Len(t, loaded, 2)

			byID := map[string]*types.Instance{}
			for _, inst := range loaded {
				byID[inst.ID] = inst
			}
			assert.Equal(t, working, byID[working.ID])
			assert.Equal(t, idle, byID[idle.ID])

			require.NoError(t, store.DeleteInstanceSnapshot(ctx, idle.ID))
			loaded, err = store.ListInstanceSnapshots(ctx)
			require.NoError(t, err)
			require.Len(t, loaded, 1)
			assert.Equal(t, working.ID, loaded[0].ID)
		})
	}
}

// Records built by the scheduler carry local time with a monotonic reading.
// Only the instant survives storage.
func TestRoundTrip_LocalClock(t *testing.T) {
	task, err := scheduler.NewTask(scheduler.TaskParams{
		TaskType:     types.TaskBugFix,
		Description:  "fix the flaky test",
		Priority:     types.PriorityHigh,
		Dependencies: []string{"earlier"},
		Target:       "inst-local",
	})
	require.NoError(t, err)

	now := time.Now()
	inst := &types.Instance{
		ID:           "inst-local",
		Role:         types.RoleTester,
		Status:       types.InstanceWorking,
		CurrentTask:  task.Clone(),
		Capabilities: types.RoleTester.Capabilities(),
		Config:       types.RoleTester.ConfigTemplate(),
		ActiveTasks:  1,
		CreatedAt:    now,
		LastActivity: now,
	}

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.PutTaskSnapshot(ctx, task))
			require.NoError(t, store.PutInstanceSnapshot(ctx, inst))

			tasks, err := store.ListTaskSnapshots(ctx)
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			got := tasks[0]
			assert.True(t, task.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, task.CreatedAt)
			assert.True(t, task.UpdatedAt.Equal(got.UpdatedAt), "updated_at %v != %v", got.UpdatedAt, task.UpdatedAt)
			assert.Equal(t, withTaskTimes(task, got), got)

			insts, err := store.ListInstanceSnapshots(ctx)
			require.NoError(t, err)
			require.Len(t, insts, 1)
			gotInst := insts[0]
			assert.True(t, inst.CreatedAt.Equal(gotInst.CreatedAt))
			assert.True(t, inst.LastActivity.Equal(gotInst.LastActivity))
			require.NotNil(t, gotInst.CurrentTask)
			assert.True(t, task.CreatedAt.Equal(gotInst.CurrentTask.CreatedAt))

			want := inst.Clone()
			want.CreatedAt, want.LastActivity = gotInst.CreatedAt, gotInst.LastActivity
			want.CurrentTask = withTaskTimes(want.CurrentTask, gotInst.CurrentTask)
			assert.Equal(t, want, gotInst)
		})
	}
}

// withTaskTimes returns a copy of want carrying got's timestamps.
func withTaskTimes(want, got *types.Task) *types.Task {
	cp := want.Clone()
	cp.CreatedAt, cp.UpdatedAt = got.CreatedAt, got.UpdatedAt
	return cp
}

func TestNilListsNormalized(t *testing.T) {
	task := sampleTask("t", types.PriorityLow)
	task.Dependencies = nil
	task.Result = &types.TaskResult{Success: true}

	data, err := encodeTask(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dependencies":[]`)
	assert.Contains(t, string(data), `"files_modified":[]`)
	assert.Contains(t, string(data), `"tests_run":[]`)
	assert.Contains(t, string(data), `"priority":"low"`)

	// The caller's record is left alone.
	assert.Nil(t, task.Dependencies)
}

func TestRedisKeyLayout(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(ctx, "redis://"+mr.Addr(), "borg")
	require.NoError(t, err)
	defer store.Close()

	task := sampleTask("t1", types.PriorityHigh)
	require.NoError(t, store.PutTaskSnapshot(ctx, task))
	require.NoError(t, store.Push(ctx, task))
	require.NoError(t, store.PutInstanceSnapshot(ctx, &types.Instance{ID: "i1", Role: types.RoleTester}))

	assert.True(t, mr.Exists("borg:tasks:t1"))
	assert.True(t, mr.Exists("borg:instances:i1"))

	members, err := mr.Members("borg:tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, members)

	members, err = mr.Members("borg:instances")
	require.NoError(t, err)
	assert.Equal(t, []string{"i1"}, members)

	queued, err := mr.List("borg:tasks:high")
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(ctx, "redis://"+mr.Addr(), "test")
	require.NoError(t, err)
	defer store.Close()

	mr.Close()

	assert.Error(t, store.Push(ctx, sampleTask("t", types.PriorityLow)))
	_, err = store.PopHighestPriority(ctx)
	assert.Error(t, err)
	assert.Error(t, store.Ping(ctx))
}

func TestSQLiteNamespaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "queue.db")

	a, err := NewSQLiteStore(ctx, path, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteStore(ctx, path, "b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Push(ctx, sampleTask("only-a", types.PriorityHigh)))

	task, err := b.PopHighestPriority(ctx)
	require.NoError(t, err)
	assert.Nil(t, task, "namespace b must not see a's queue")

	task, err = a.PopHighestPriority(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "only-a", task.ID)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"redis", "redis://" + mr.Addr(), false},
		{"sqlite memory", "sqlite::memory:", false},
		{"sqlite file", "sqlite://" + filepath.Join(t.TempDir(), "c.db"), false},
		{"sqlite no path", "sqlite://", true},
		{"unknown scheme", "postgres://localhost/db", true},
		{"bad redis url", "redis://:badport:xx", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, tt.url, "")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.NoError(t, store.Ping(ctx))
		})
	}
}
