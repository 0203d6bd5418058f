// Package observe provides observability primitives for guarded calls.
//
// It wires OpenTelemetry tracer and meter providers, a zap-backed
// structured Logger, call Metrics, and a Middleware that records a span, a
// duration histogram, and a log entry for every call. Exporters are
// selected by name in the exporters subpackage.
package observe
