// Package files provides file store implementations used by the asset
// resolver to look up stored uploads.
//
// Implementations:
//   - redis: one hash per file
//   - memory: In-memory for testing
package files
