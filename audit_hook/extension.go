// Package audithook bridges Trueque lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/trueque/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnMemberCreated       = (*Extension)(nil)
	_ plugin.OnLimitExceeded       = (*Extension)(nil)
	_ plugin.OnExchangeCreated     = (*Extension)(nil)
	_ plugin.OnExchangeConfirmed   = (*Extension)(nil)
	_ plugin.OnExchangeCancelled   = (*Extension)(nil)
	_ plugin.OnSettlementCompleted = (*Extension)(nil)
	_ plugin.OnSettlementFailed    = (*Extension)(nil)
	_ plugin.OnConversationLinked  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly. Callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Trueque lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Member lifecycle hooks
// ──────────────────────────────────────────────────

// OnMemberCreated implements plugin.OnMemberCreated.
func (e *Extension) OnMemberCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionMemberCreated, SeverityInfo, OutcomeSuccess,
		ResourceMember, "", CategoryLedger, nil,
		"event", "member_created",
	)
}

// OnLimitExceeded implements plugin.OnLimitExceeded.
func (e *Extension) OnLimitExceeded(ctx context.Context, memberID int64, attempted, ceiling int64) error {
	return e.record(ctx, ActionLimitExceeded, SeverityWarning, OutcomeFailure,
		ResourceMember, strconv.FormatInt(memberID, 10), CategoryLedger, nil,
		"member_id", memberID,
		"attempted", attempted,
		"ceiling", ceiling,
	)
}

// ──────────────────────────────────────────────────
// Exchange lifecycle hooks
// ──────────────────────────────────────────────────

// OnExchangeCreated implements plugin.OnExchangeCreated.
func (e *Extension) OnExchangeCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionExchangeCreated, SeverityInfo, OutcomeSuccess,
		ResourceExchange, "", CategoryLedger, nil,
		"event", "exchange_created",
	)
}

// OnExchangeConfirmed implements plugin.OnExchangeConfirmed.
func (e *Extension) OnExchangeConfirmed(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionExchangeConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceExchange, "", CategoryLedger, nil,
		"event", "exchange_confirmed",
	)
}

// OnExchangeCancelled implements plugin.OnExchangeCancelled.
func (e *Extension) OnExchangeCancelled(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionExchangeCancelled, SeverityInfo, OutcomeSuccess,
		ResourceExchange, "", CategoryLedger, nil,
		"event", "exchange_cancelled",
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementCompleted implements plugin.OnSettlementCompleted.
func (e *Extension) OnSettlementCompleted(ctx context.Context, _ interface{}, _ time.Duration) error {
	return e.record(ctx, ActionSettlementCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExchange, "", CategorySettlement, nil,
		"event", "settlement_completed",
	)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, buyerID, listingID int64, err error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityWarning, OutcomeFailure,
		ResourceListing, strconv.FormatInt(listingID, 10), CategorySettlement, err,
		"buyer_id", buyerID,
		"listing_id", listingID,
	)
}

// OnConversationLinked implements plugin.OnConversationLinked.
func (e *Extension) OnConversationLinked(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionConversationLinked, SeverityInfo, OutcomeSuccess,
		ResourceConversation, "", CategoryMessaging, nil,
		"event", "conversation_linked",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
