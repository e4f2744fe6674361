// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Engine status queries
//   - Run reports
//   - Health checks
//   - Prometheus metrics
package http
