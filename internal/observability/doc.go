// Package observability provides structured logging and metrics for the card
// control service.
//
// This package implements:
//   - zap logger construction from configuration
//   - request-scoped loggers carrying the chi request ID
//   - Prometheus collectors for authorization outcomes, control evaluation
//     latency, and cache effectiveness, exposed on a private registry
package observability
