package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrResult  = "result"
	attrStatus  = "status"
	attrTool    = "tool"
	attrAccount = "account"
)

// Metrics records credential lifecycle and tool metrics. The zero value
// is a no-op recorder, so a disabled provider hands out &Metrics{} and
// callers never branch on enablement.
type Metrics struct {
	validationsTotal     metric.Int64Counter
	tokenRefreshTotal    metric.Int64Counter
	codeExchangesTotal   metric.Int64Counter
	consentURLsTotal     metric.Int64Counter
	registrationsTotal   metric.Int64Counter
	accountsRegistered   metric.Int64UpDownCounter
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether the account label is attached to
	// per-tool metrics.
	detailedLabels bool
}

// NewMetrics creates a Metrics instance with all instruments registered
// on the meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.validationsTotal, err = meter.Int64Counter(
		"credential_validations_total",
		metric.WithDescription("Total number of credential validations by outcome"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential_validations_total counter: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.codeExchangesTotal, err = meter.Int64Counter(
		"oauth_code_exchanges_total",
		metric.WithDescription("Total number of authorization code exchanges by outcome"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_code_exchanges_total counter: %w", err)
	}

	m.consentURLsTotal, err = meter.Int64Counter(
		"consent_urls_issued_total",
		metric.WithDescription("Total number of consent URLs issued"),
		metric.WithUnit("{url}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consent_urls_issued_total counter: %w", err)
	}

	m.registrationsTotal, err = meter.Int64Counter(
		"account_registrations_total",
		metric.WithDescription("Total number of account registration calls"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account_registrations_total counter: %w", err)
	}

	m.accountsRegistered, err = meter.Int64UpDownCounter(
		"accounts_registered",
		metric.WithDescription("Number of currently registered accounts"),
		metric.WithUnit("{account}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create accounts_registered gauge: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordValidation records one credential validation outcome. Result is
// a small closed set: valid, no_credential, insufficient_scope,
// reauth_required, error.
func (m *Metrics) RecordValidation(ctx context.Context, result string) {
	if m.validationsTotal == nil {
		return // Instrumentation not initialized
	}

	m.validationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordTokenRefresh records one refresh attempt outcome: success,
// rejected, transient_error.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m.tokenRefreshTotal == nil {
		return
	}

	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordCodeExchange records one authorization code exchange outcome:
// success, error, identity_mismatch.
func (m *Metrics) RecordCodeExchange(ctx context.Context, result string) {
	if m.codeExchangesTotal == nil {
		return
	}

	m.codeExchangesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordConsentURL records one issued consent URL.
func (m *Metrics) RecordConsentURL(ctx context.Context) {
	if m.consentURLsTotal == nil {
		return
	}

	m.consentURLsTotal.Add(ctx, 1)
}

// RecordRegistration records one registration call.
func (m *Metrics) RecordRegistration(ctx context.Context) {
	if m.registrationsTotal == nil {
		return
	}

	m.registrationsTotal.Add(ctx, 1)
}

// AddRegisteredAccounts moves the registered-accounts gauge by delta.
// Positive on registration of a new account, negative on revocation.
func (m *Metrics) AddRegisteredAccounts(ctx context.Context, delta int64) {
	if m.accountsRegistered == nil {
		return
	}

	m.accountsRegistered.Add(ctx, delta)
}

// RecordToolInvocation records an MCP tool invocation with its status
// and duration. The account label is attached only when detailed labels
// are enabled; account IDs are unbounded cardinality.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// LifecycleRecorder adapts Metrics to the keeper's metrics interface,
// which reports outcomes without a context.
type LifecycleRecorder struct {
	metrics *Metrics
}

// NewLifecycleRecorder wraps m for use by the credential manager.
func NewLifecycleRecorder(m *Metrics) *LifecycleRecorder {
	return &LifecycleRecorder{metrics: m}
}

func (r *LifecycleRecorder) RecordValidation(result string) {
	r.metrics.RecordValidation(context.Background(), result)
}

func (r *LifecycleRecorder) RecordRefresh(result string) {
	r.metrics.RecordTokenRefresh(context.Background(), result)
}

func (r *LifecycleRecorder) RecordExchange(result string) {
	r.metrics.RecordCodeExchange(context.Background(), result)
}

func (r *LifecycleRecorder) RecordConsentURL() {
	r.metrics.RecordConsentURL(context.Background())
}
