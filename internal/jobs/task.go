package jobs

import (
	"encoding/json"
	"fmt"
)

const (
	TaskRemove = "remove"
	TaskSweep  = "sweep"
)

// Task is one cleanup instruction carried on the stream.
type Task struct {
	Type  string
	Paths []string
}

// Values encodes the task as stream fields. Paths travel as a JSON array.
func (t Task) Values() (map[string]any, error) {
	values := map[string]any{"type": t.Type}
	if len(t.Paths) > 0 {
		raw, err := json.Marshal(t.Paths)
		if err != nil {
			return nil, err
		}
		values["paths"] = string(raw)
	}
	return values, nil
}

func Decode(values map[string]any) (Task, error) {
	typ, _ := values["type"].(string)
	if typ == "" {
		return Task{}, fmt.Errorf("task type missing")
	}
	task := Task{Type: typ}
	if raw, ok := values["paths"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &task.Paths); err != nil {
			return Task{}, fmt.Errorf("decode paths: %w", err)
		}
	}
	return task, nil
}
