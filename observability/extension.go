// Package observability provides a metrics extension for Trueque that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/trueque/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnMemberCreated       = (*MetricsExtension)(nil)
	_ plugin.OnLimitExceeded       = (*MetricsExtension)(nil)
	_ plugin.OnExchangeCreated     = (*MetricsExtension)(nil)
	_ plugin.OnExchangeConfirmed   = (*MetricsExtension)(nil)
	_ plugin.OnExchangeCancelled   = (*MetricsExtension)(nil)
	_ plugin.OnSettlementCompleted = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed    = (*MetricsExtension)(nil)
	_ plugin.OnConversationLinked  = (*MetricsExtension)(nil)
	_ plugin.OnMatchesComputed     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Trueque plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Member metrics
	MemberCreated Counter
	LimitExceeded Counter

	// Exchange metrics
	ExchangeCreated   Counter
	ExchangeConfirmed Counter
	ExchangeCancelled Counter

	// Settlement metrics
	SettlementCompleted Counter
	SettlementFailed    Counter
	SettlementLatency   Histogram
	ConversationLinked  Counter

	// Matching metrics
	MatchesComputed Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Member metrics
		MemberCreated: factory.Counter("trueque.member.created"),
		LimitExceeded: factory.Counter("trueque.member.limit_exceeded"),

		// Exchange metrics
		ExchangeCreated:   factory.Counter("trueque.exchange.created"),
		ExchangeConfirmed: factory.Counter("trueque.exchange.confirmed"),
		ExchangeCancelled: factory.Counter("trueque.exchange.cancelled"),

		// Settlement metrics
		SettlementCompleted: factory.Counter("trueque.settlement.completed"),
		SettlementFailed:    factory.Counter("trueque.settlement.failed"),
		SettlementLatency:   factory.Histogram("trueque.settlement.latency_ms"),
		ConversationLinked:  factory.Counter("trueque.conversation.linked"),

		// Matching metrics
		MatchesComputed: factory.Counter("trueque.match.computed"),

		// Error metrics
		StoreErrors:  factory.Counter("trueque.store.errors"),
		PluginErrors: factory.Counter("trueque.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Member lifecycle hooks
// ──────────────────────────────────────────────────

// OnMemberCreated implements plugin.OnMemberCreated.
func (m *MetricsExtension) OnMemberCreated(_ context.Context, _ interface{}) error {
	m.MemberCreated.Inc()
	return nil
}

// OnLimitExceeded implements plugin.OnLimitExceeded.
func (m *MetricsExtension) OnLimitExceeded(_ context.Context, _ int64, _, _ int64) error {
	m.LimitExceeded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Exchange lifecycle hooks
// ──────────────────────────────────────────────────

// OnExchangeCreated implements plugin.OnExchangeCreated.
func (m *MetricsExtension) OnExchangeCreated(_ context.Context, _ interface{}) error {
	m.ExchangeCreated.Inc()
	return nil
}

// OnExchangeConfirmed implements plugin.OnExchangeConfirmed.
func (m *MetricsExtension) OnExchangeConfirmed(_ context.Context, _ interface{}) error {
	m.ExchangeConfirmed.Inc()
	return nil
}

// OnExchangeCancelled implements plugin.OnExchangeCancelled.
func (m *MetricsExtension) OnExchangeCancelled(_ context.Context, _ interface{}) error {
	m.ExchangeCancelled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementCompleted implements plugin.OnSettlementCompleted.
func (m *MetricsExtension) OnSettlementCompleted(_ context.Context, _ interface{}, elapsed time.Duration) error {
	m.SettlementCompleted.Inc()
	m.SettlementLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, _, _ int64, _ error) error {
	m.SettlementFailed.Inc()
	return nil
}

// OnConversationLinked implements plugin.OnConversationLinked.
func (m *MetricsExtension) OnConversationLinked(_ context.Context, _ interface{}) error {
	m.ConversationLinked.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Matching hooks
// ──────────────────────────────────────────────────

// OnMatchesComputed implements plugin.OnMatchesComputed.
func (m *MetricsExtension) OnMatchesComputed(_ context.Context, _ interface{}) error {
	m.MatchesComputed.Inc()
	return nil
}
