package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ParamSource tells the binder where a workflow parameter is applied.
type ParamSource string

const (
	ParamSourceEnvironment ParamSource = "Environment"
	ParamSourceStatic      ParamSource = "Static"
	ParamSourceInput       ParamSource = "Input"
	ParamSourceOutput      ParamSource = "Output"
	ParamSourceParam       ParamSource = "Param"
	ParamSourceContent     ParamSource = "Content"
	ParamSourceOptions     ParamSource = "Options"
)

// Valid reports whether s is one of the known sources.
func (s ParamSource) Valid() bool {
	switch s {
	case ParamSourceEnvironment, ParamSourceStatic, ParamSourceInput, ParamSourceOutput,
		ParamSourceParam, ParamSourceContent, ParamSourceOptions:
		return true
	}
	return false
}

// WorkflowDefinition is an executable task graph plus the parameters bound
// before it runs.
type WorkflowDefinition struct {
	ID     string           `json:"id" yaml:"id"`
	Name   string           `json:"name" yaml:"name"`
	Tasks  []TaskDefinition `json:"tasks" yaml:"tasks"`
	Params []WorkflowParam  `json:"params,omitempty" yaml:"params,omitempty"`
}

// SortedTasks returns the tasks ordered by their order hint, then name.
func (w *WorkflowDefinition) SortedTasks() []TaskDefinition {
	tasks := make([]TaskDefinition, len(w.Tasks))
	copy(tasks, w.Tasks)
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].Name < tasks[j].Name
	})
	return tasks
}

// Task returns the task with the given name.
func (w *WorkflowDefinition) Task(name string) (TaskDefinition, bool) {
	for _, t := range w.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskDefinition{}, false
}

// TaskDefinition declares one unit of work in the graph.
type TaskDefinition struct {
	Name     string      `json:"name" yaml:"name"`
	Order    int         `json:"order" yaml:"order"`
	Requires []string    `json:"requires,omitempty" yaml:"requires,omitempty"`
	Provides []string    `json:"provides,omitempty" yaml:"provides,omitempty"`
	Resolver ResolverRef `json:"resolver" yaml:"resolver"`
}

// ResolverRef names the resolver behind a task, its parameter bindings and
// how its outputs map onto pool keys.
type ResolverRef struct {
	Name    string                  `json:"name" yaml:"name"`
	Params  map[string]ParamBinding `json:"params,omitempty" yaml:"params,omitempty"`
	Results map[string]string       `json:"results,omitempty" yaml:"results,omitempty"`
}

// ParamBinding is either a static value or a reference to a pool key.
//
// In JSON a bare string is a pool reference, {"value": x} is a static value
// and {"from": "key"} is an explicit pool reference.
type ParamBinding struct {
	Value interface{} `json:"value,omitempty"`
	From  string      `json:"from,omitempty"`
}

// Static returns a binding holding v.
func Static(v interface{}) ParamBinding { return ParamBinding{Value: v} }

// FromPool returns a binding that reads key from the data pool.
func FromPool(key string) ParamBinding { return ParamBinding{From: key} }

// IsReference reports whether the binding reads from the pool.
func (b ParamBinding) IsReference() bool { return b.From != "" }

// MarshalJSON always emits the value of static bindings, including zero
// values such as false or "".
func (b ParamBinding) MarshalJSON() ([]byte, error) {
	if b.IsReference() {
		return json.Marshal(struct {
			From string `json:"from"`
		}{b.From})
	}
	return json.Marshal(struct {
		Value interface{} `json:"value"`
	}{b.Value})
}

// UnmarshalJSON accepts the bare-string shorthand for pool references.
func (b *ParamBinding) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		if key == "" {
			return fmt.Errorf("empty pool reference")
		}
		*b = ParamBinding{From: key}
		return nil
	}

	var raw struct {
		Value interface{} `json:"value"`
		From  string      `json:"from"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid param binding: %w", err)
	}
	*b = ParamBinding{Value: raw.Value, From: raw.From}
	return nil
}

// WorkflowParam is consumed once at run start by the parameter binder.
type WorkflowParam struct {
	Source ParamSource            `json:"source" yaml:"source"`
	Name   string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Value  map[string]interface{} `json:"value" yaml:"value"`
}
