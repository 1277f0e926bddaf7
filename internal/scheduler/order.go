package scheduler

import (
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/aristath/coordinator/internal/types"
)

// DependencyOrder returns task ids in an order where every task follows the
// tasks it depends on. Dependencies are advisory: they never gate
// assignment, and ids that are not registered are ignored.
// A cycle is reported as an error.
func DependencyOrder(tasks []*types.Task) ([]string, error) {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	var edges []toposort.Edge
	for _, t := range tasks {
		linked := false
		for _, dep := range t.Dependencies {
			if !known[dep] {
				continue
			}
			edges = append(edges, toposort.Edge{dep, t.ID})
			linked = true
		}
		if !linked {
			// Edge from nil keeps isolated tasks in the result.
			edges = append(edges, toposort.Edge{nil, t.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("task dependencies contain a cycle: %w", err)
	}

	order := make([]string, 0, len(tasks))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}
