package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aescanero/markflow/pkg/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Hooks receive task lifecycle notifications. Any of them may be nil. They
// are called from the goroutine running the task.
type Hooks struct {
	TaskStarted   func(task domain.TaskDefinition)
	TaskCompleted func(task domain.TaskDefinition, duration time.Duration)
	TaskFailed    func(task domain.TaskDefinition, err error, duration time.Duration)
}

// Options tune a single run.
type Options struct {
	// MaxConcurrency caps the tasks running at once within a layer. Zero
	// means no cap.
	MaxConcurrency int
	// AutomapParams passes every required pool key to the resolver under the
	// same name unless the task binds that param explicitly.
	AutomapParams bool
}

// OptionsFromMap reads options bound from workflow params.
func OptionsFromMap(m map[string]interface{}) Options {
	var opts Options
	if n, ok := toFloat(m["maxConcurrency"]); ok && n > 0 {
		opts.MaxConcurrency = int(n)
	}
	if b, ok := m["resolverAutomapParams"].(bool); ok {
		opts.AutomapParams = b
	}
	return opts
}

// Executor runs task graphs.
type Executor struct {
	logger *zap.Logger
	hooks  Hooks
}

// NewExecutor creates a new executor
func NewExecutor(logger *zap.Logger, hooks Hooks) *Executor {
	return &Executor{logger: logger, hooks: hooks}
}

// Run executes graph until every desired output is in the data pool.
//
// Tasks run in layers: the ready set is every task that has not run, is not
// in skip and whose requires are all available. A layer runs concurrently and
// its outputs are merged, in task-name order, once every task of the layer
// finished. A resolver error cancels the layer and fails the run without a
// partial result. When no task is ready and outputs are still missing the run
// fails with domain.ErrUnsatisfiableGraph.
//
// With no desired outputs the run continues until nothing is ready and
// returns every value produced by the tasks.
func (e *Executor) Run(
	ctx context.Context,
	graph *domain.WorkflowDefinition,
	input map[string]interface{},
	desired []string,
	registry *Registry,
	execCtx *ExecutionContext,
	opts Options,
	skip []string,
) (map[string]interface{}, error) {
	if graph == nil {
		return nil, fmt.Errorf("%w: graph is nil", domain.ErrInvalidGraph)
	}
	if execCtx == nil {
		execCtx = NewExecutionContext(nil)
	}

	skipped := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipped[name] = true
	}

	tasks := graph.SortedTasks()
	resolvers := make(map[string]Resolver, len(tasks))
	for _, task := range tasks {
		if skipped[task.Name] {
			continue
		}
		resolver, err := registry.Get(task.Resolver.Name)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", task.Name, err)
		}
		resolvers[task.Name] = resolver
	}

	pool := NewDataPool(input)
	if err := checkProducible(desired, pool, tasks, skipped); err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(tasks))
	produced := make(map[string]interface{})

	for layer := 1; ; layer++ {
		if len(desired) > 0 && pool.HasAll(desired) {
			e.logger.Debug("desired outputs available",
				zap.String("workflow_id", graph.ID),
				zap.Strings("outputs", desired))
			return pool.Pick(desired), nil
		}

		ready := readyTasks(tasks, pool, done, skipped)
		if len(ready) == 0 {
			if len(desired) == 0 {
				return produced, nil
			}
			return nil, fmt.Errorf("%w: missing %s; blocked tasks: %s",
				domain.ErrUnsatisfiableGraph,
				strings.Join(pool.Missing(desired), ", "),
				strings.Join(blockedTasks(tasks, pool, done, skipped), "; "))
		}

		e.logger.Debug("executing layer",
			zap.String("workflow_id", graph.ID),
			zap.Int("layer", layer),
			zap.Int("tasks", len(ready)))

		results := make([]Outputs, len(ready))
		g, gctx := errgroup.WithContext(ctx)
		if opts.MaxConcurrency > 0 {
			g.SetLimit(opts.MaxConcurrency)
		}
		for i, task := range ready {
			i, task := i, task
			params := bindTaskParams(task, pool, opts)
			resolver := resolvers[task.Name]
			g.Go(func() error {
				out, err := e.execTask(gctx, task, resolver, params, execCtx)
				if err != nil {
					return err
				}
				results[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, task := range ready {
			done[task.Name] = true
			mapped := mapResults(task, results[i])
			pool.Merge(mapped)
			for k, v := range mapped {
				produced[k] = v
			}
		}
	}
}

// execTask runs one resolver and reports its lifecycle to the hooks
func (e *Executor) execTask(ctx context.Context, task domain.TaskDefinition, resolver Resolver, params Params, execCtx *ExecutionContext) (Outputs, error) {
	if e.hooks.TaskStarted != nil {
		e.hooks.TaskStarted(task)
	}
	start := time.Now()

	out, err := resolver.Exec(ctx, params, execCtx)
	duration := time.Since(start)
	if err != nil {
		e.logger.Error("task failed",
			zap.String("task", task.Name),
			zap.String("resolver", task.Resolver.Name),
			zap.Duration("duration", duration),
			zap.Error(err))
		if e.hooks.TaskFailed != nil {
			e.hooks.TaskFailed(task, err, duration)
		}
		return nil, fmt.Errorf("task %s (%s): %w", task.Name, task.Resolver.Name, err)
	}

	e.logger.Debug("task completed",
		zap.String("task", task.Name),
		zap.String("resolver", task.Resolver.Name),
		zap.Duration("duration", duration))
	if e.hooks.TaskCompleted != nil {
		e.hooks.TaskCompleted(task, duration)
	}
	return out, nil
}

// readyTasks returns runnable tasks sorted by name
func readyTasks(tasks []domain.TaskDefinition, pool *DataPool, done, skipped map[string]bool) []domain.TaskDefinition {
	var ready []domain.TaskDefinition
	for _, task := range tasks {
		if done[task.Name] || skipped[task.Name] {
			continue
		}
		if pool.HasAll(task.Requires) {
			ready = append(ready, task)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Name < ready[j].Name })
	return ready
}

// blockedTasks describes pending tasks and the keys they wait for
func blockedTasks(tasks []domain.TaskDefinition, pool *DataPool, done, skipped map[string]bool) []string {
	var blocked []string
	for _, task := range tasks {
		if done[task.Name] || skipped[task.Name] {
			continue
		}
		blocked = append(blocked, fmt.Sprintf("%s waits for [%s]", task.Name, strings.Join(pool.Missing(task.Requires), ", ")))
	}
	sort.Strings(blocked)
	return blocked
}

// checkProducible fails fast when a desired output can never appear
func checkProducible(desired []string, pool *DataPool, tasks []domain.TaskDefinition, skipped map[string]bool) error {
	providers := make(map[string]bool)
	for _, task := range tasks {
		if skipped[task.Name] {
			continue
		}
		for _, key := range task.Provides {
			providers[key] = true
		}
	}

	var missing []string
	for _, key := range desired {
		if !pool.Has(key) && !providers[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: no input or task provides %s", domain.ErrUnsatisfiableGraph, strings.Join(missing, ", "))
	}
	return nil
}

// bindTaskParams builds the params of one invocation from static values and
// pool references
func bindTaskParams(task domain.TaskDefinition, pool *DataPool, opts Options) Params {
	params := make(Params, len(task.Resolver.Params))
	if opts.AutomapParams {
		for _, key := range task.Requires {
			if v, ok := pool.Get(key); ok {
				params[key] = deepCopy(v)
			}
		}
	}
	for name, binding := range task.Resolver.Params {
		if binding.IsReference() {
			if v, ok := pool.Get(binding.From); ok {
				params[name] = deepCopy(v)
			} else {
				delete(params, name)
			}
			continue
		}
		params[name] = deepCopy(binding.Value)
	}
	return params
}

// mapResults renames resolver outputs to pool keys
func mapResults(task domain.TaskDefinition, out Outputs) map[string]interface{} {
	mapped := make(map[string]interface{})
	if len(task.Resolver.Results) == 0 {
		for _, key := range task.Provides {
			if v, ok := out[key]; ok {
				mapped[key] = v
			}
		}
		return mapped
	}
	for outputKey, poolKey := range task.Resolver.Results {
		if v, ok := out[outputKey]; ok {
			mapped[poolKey] = v
		}
	}
	return mapped
}
