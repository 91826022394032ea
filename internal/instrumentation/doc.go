// Package instrumentation wires OpenTelemetry metrics and tracing for
// the credential lifecycle, plus audit logging for tool invocations.
//
// The Provider owns the meter and tracer providers and their exporters
// (prometheus, otlp, stdout). Metrics records lifecycle outcomes:
// validations, refreshes, code exchanges, consent URLs, and tool
// invocations. The AuditLogger emits per-invocation records with PII
// controls; full account addresses appear only when explicitly enabled.
//
// Everything here degrades to a no-op when instrumentation is disabled,
// so callers never need nil checks.
package instrumentation
