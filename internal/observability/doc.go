// Package observability builds the process logger and the Prometheus
// collectors used by the gateway.
//
// Services depend on the Metrics interface; NopMetrics is used in tests and
// when metrics are disabled.
package observability
