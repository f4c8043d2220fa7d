// Package engine implements the task-graph runner.
//
// A run is driven by the Executor:
//   - the Binder applies workflow params to input, context and options
//   - the ready set is every task whose requires are in the data pool
//   - each ready layer runs concurrently and commits only when it completes
//   - an empty ready set with outputs still missing is reported as
//     ErrUnsatisfiableGraph instead of waiting forever
//
// Resolvers are looked up by name in a Registry that is built once and passed
// to the executor. Nothing in this package holds process-wide state.
package engine
