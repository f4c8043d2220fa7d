// Package orchestrator implements the run lifecycle around the engine.
//
// The orchestrator manager coordinates workflow runs by:
//   - Validating workflow definitions against the resolver registry
//   - Running workflows synchronously or queuing them for the worker pool
//   - Publishing run and task events to the event bus
//   - Tracking run state via state storage, including cancellation
//
// The validator rejects duplicate task names, unknown resolvers, result
// mappings outside provides and dependency cycles.
package orchestrator
