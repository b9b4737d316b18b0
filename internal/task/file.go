package task

import (
	"encoding/json"
	"fmt"
	"os"
)

// checklistFile is the on-disk JSON shape produced by the checklist
// generator.
type checklistFile struct {
	Tasks []checklistTask `json:"tasks"`
}

type checklistTask struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Completed   bool   `json:"completed"`
}

// LoadFile reads a checklist JSON file and returns its tasks. Tasks with a
// missing ID or description are rejected; an unknown priority defaults to
// medium rather than failing the whole load.
func LoadFile(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("task: read %q: %w", path, err)
	}

	var cf checklistFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("task: parse %q: %w", path, err)
	}

	tasks := make([]Task, 0, len(cf.Tasks))
	seen := make(map[string]struct{}, len(cf.Tasks))
	for i, ct := range cf.Tasks {
		if ct.ID == "" {
			return nil, fmt.Errorf("task: %q tasks[%d]: id is required", path, i)
		}
		if ct.Description == "" {
			return nil, fmt.Errorf("task: %q tasks[%d] (%s): description is required", path, i, ct.ID)
		}
		if _, dup := seen[ct.ID]; dup {
			return nil, fmt.Errorf("task: %q tasks[%d]: duplicate id %q", path, i, ct.ID)
		}
		seen[ct.ID] = struct{}{}

		prio := Priority(ct.Priority)
		if !prio.IsValid() {
			prio = PriorityMedium
		}
		tasks = append(tasks, Task{
			ID:          ct.ID,
			Description: ct.Description,
			Priority:    prio,
			Completed:   ct.Completed,
		})
	}
	return tasks, nil
}
