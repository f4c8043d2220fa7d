// Package workflows provides workflow store implementations.
//
// Implementations:
//   - redis: JSON values indexed by a set
//   - memory: In-memory for testing and single-node deployments
//   - yamldir: loads definitions from disk and seeds another store
package workflows
