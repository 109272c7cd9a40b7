// Package plugin provides an extensible plugin system for Trueque.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Member lifecycle hooks
// ──────────────────────────────────────────────────

// OnMemberCreated is called when a new member joins the ledger.
type OnMemberCreated interface {
	Plugin
	OnMemberCreated(ctx context.Context, m interface{}) error
}

// OnLimitExceeded is called when a debit is refused by the credit limit.
type OnLimitExceeded interface {
	Plugin
	OnLimitExceeded(ctx context.Context, memberID int64, attempted, ceiling int64) error
}

// ──────────────────────────────────────────────────
// Exchange lifecycle hooks
// ──────────────────────────────────────────────────

// OnExchangeCreated is called when an exchange record is created.
type OnExchangeCreated interface {
	Plugin
	OnExchangeCreated(ctx context.Context, record interface{}) error
}

// OnExchangeConfirmed is called when a pending exchange is confirmed.
type OnExchangeConfirmed interface {
	Plugin
	OnExchangeConfirmed(ctx context.Context, record interface{}) error
}

// OnExchangeCancelled is called when a pending exchange is cancelled.
type OnExchangeCancelled interface {
	Plugin
	OnExchangeCancelled(ctx context.Context, record interface{}) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementCompleted is called after a checkout settles and commits.
type OnSettlementCompleted interface {
	Plugin
	OnSettlementCompleted(ctx context.Context, result interface{}, elapsed time.Duration) error
}

// OnSettlementFailed is called when a checkout is refused or aborted.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, buyerID, listingID int64, err error) error
}

// OnConversationLinked is called when a settlement opens or reuses the
// buyer/seller conversation. The payload is the identified settlement
// event wrapping the conversation. Delivery is best-effort.
type OnConversationLinked interface {
	Plugin
	OnConversationLinked(ctx context.Context, event interface{}) error
}

// ──────────────────────────────────────────────────
// Matching hooks
// ──────────────────────────────────────────────────

// OnMatchesComputed is called after a matching pass finishes.
type OnMatchesComputed interface {
	Plugin
	OnMatchesComputed(ctx context.Context, result interface{}) error
}

// MatchScorer provides a custom candidate ordering, replacing the default
// distance-from-reference sort.
type MatchScorer interface {
	Plugin
	ScorerName() string
	Score(reference float64, price int64) float64
}
