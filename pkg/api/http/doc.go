// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Workflow listing and execution, synchronous or queued
//   - Run status queries and cancellation
//   - Health checks
//   - Prometheus metrics
//
// Configuration errors map to 422, missing workflows or runs to 404 and
// everything else to 500.
package http
