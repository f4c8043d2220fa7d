// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, either with a consumer group (one delivery per
//     group) or broadcast (every subscriber reads the stream)
//   - memory: In-memory, handlers called synchronously
package events
