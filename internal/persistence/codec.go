package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/aristath/coordinator/internal/types"
)

// Records are stored as JSON with the field names of the data model. Nil
// lists and maps are written as empty so that a decoded record always carries
// the same shape as a freshly created one.

func encodeTask(task *types.Task) ([]byte, error) {
	cp := normalizeTask(task.Clone())
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	return data, nil
}

func decodeTask(data []byte) (*types.Task, error) {
	var task types.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return normalizeTask(&task), nil
}

func encodeInstance(inst *types.Instance) ([]byte, error) {
	cp := normalizeInstance(inst.Clone())
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode instance %s: %w", inst.ID, err)
	}
	return data, nil
}

func decodeInstance(data []byte) (*types.Instance, error) {
	var inst types.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("failed to decode instance: %w", err)
	}
	return normalizeInstance(&inst), nil
}

func normalizeTask(task *types.Task) *types.Task {
	if task == nil {
		return nil
	}
	if task.Dependencies == nil {
		task.Dependencies = []string{}
	}
	if r := task.Result; r != nil {
		if r.FilesModified == nil {
			r.FilesModified = []string{}
		}
		if r.TestsRun == nil {
			r.TestsRun = []types.TestResult{}
		}
	}
	return task
}

func normalizeInstance(inst *types.Instance) *types.Instance {
	if inst.Capabilities == nil {
		inst.Capabilities = []string{}
	}
	if inst.Config.PreferredLanguages == nil {
		inst.Config.PreferredLanguages = []string{}
	}
	if inst.Config.CustomPrompts == nil {
		inst.Config.CustomPrompts = map[string]string{}
	}
	if inst.Config.EnvironmentVars == nil {
		inst.Config.EnvironmentVars = map[string]string{}
	}
	inst.CurrentTask = normalizeTask(inst.CurrentTask)
	return inst
}
