// Package workers implements the worker pool for asynchronous runs.
//
// The worker pool manages a fixed number of goroutines that:
//   - Take submitted run IDs from a bounded queue
//   - Execute each run through the orchestrator
//   - Track their own status for health reporting
//
// The health monitor tracks worker status and records metrics.
package workers
