package orchestrator

import (
	"fmt"
	"sort"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/pkg/domain"
)

// Validator validates workflow definitions before they run
type Validator struct {
	registry *engine.Registry
}

// NewValidator creates a new workflow validator. When registry is nil
// resolver names are not checked.
func NewValidator(registry *engine.Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate validates a workflow definition
func (v *Validator) Validate(def *domain.WorkflowDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: workflow is nil", domain.ErrInvalidGraph)
	}

	if def.ID == "" {
		return fmt.Errorf("%w: workflow ID is required", domain.ErrInvalidGraph)
	}

	if len(def.Tasks) == 0 {
		return fmt.Errorf("%w: workflow %s must have at least one task", domain.ErrInvalidGraph, def.ID)
	}

	// Validate tasks
	names := make(map[string]bool, len(def.Tasks))
	for _, task := range def.Tasks {
		if err := v.validateTask(task); err != nil {
			return fmt.Errorf("invalid task %s: %w", task.Name, err)
		}

		if names[task.Name] {
			return fmt.Errorf("%w: duplicate task name: %s", domain.ErrInvalidGraph, task.Name)
		}
		names[task.Name] = true
	}

	for i, param := range def.Params {
		if !param.Source.Valid() {
			return fmt.Errorf("%w: param[%d] %s has unknown source %q", domain.ErrConfiguration, i, param.Name, param.Source)
		}
	}

	if cycle := findCycle(def.Tasks); cycle != nil {
		return fmt.Errorf("%w: dependency cycle: %v", domain.ErrInvalidGraph, cycle)
	}

	return nil
}

// validateTask validates a single task
func (v *Validator) validateTask(task domain.TaskDefinition) error {
	if task.Name == "" {
		return fmt.Errorf("%w: task name is required", domain.ErrInvalidGraph)
	}

	if task.Resolver.Name == "" {
		return fmt.Errorf("%w: resolver name is required", domain.ErrInvalidGraph)
	}

	if v.registry != nil && !v.registry.Has(task.Resolver.Name) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownResolver, task.Resolver.Name)
	}

	provides := make(map[string]bool, len(task.Provides))
	for _, key := range task.Provides {
		provides[key] = true
	}
	for output, key := range task.Resolver.Results {
		if !provides[key] {
			return fmt.Errorf("%w: result %s maps to %s which is not in provides", domain.ErrInvalidGraph, output, key)
		}
	}

	return nil
}

// findCycle returns the task names of one dependency cycle, or nil. A task
// depends on every task that provides one of its required keys.
func findCycle(tasks []domain.TaskDefinition) []string {
	providers := make(map[string][]string)
	for _, task := range tasks {
		for _, key := range task.Provides {
			providers[key] = append(providers[key], task.Name)
		}
	}

	deps := make(map[string][]string, len(tasks))
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name)
		seen := make(map[string]bool)
		for _, key := range task.Requires {
			for _, p := range providers[key] {
				if !seen[p] {
					seen[p] = true
					deps[task.Name] = append(deps[task.Name], p)
				}
			}
		}
		sort.Strings(deps[task.Name])
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(tasks))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range deps[name] {
			switch state[dep] {
			case visiting:
				for i, n := range stack {
					if n == dep {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = visited
		return nil
	}

	for _, name := range names {
		if state[name] == unvisited {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
