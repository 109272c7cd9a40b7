package audithook

// Action constants for audit events.
const (
	// Member actions
	ActionMemberCreated = "member.created"
	ActionLimitExceeded = "limit.exceeded"

	// Exchange actions
	ActionExchangeCreated   = "exchange.created"
	ActionExchangeConfirmed = "exchange.confirmed"
	ActionExchangeCancelled = "exchange.cancelled"

	// Settlement actions
	ActionSettlementCompleted = "settlement.completed"
	ActionSettlementFailed    = "settlement.failed"
	ActionConversationLinked  = "conversation.linked"

	// Matching actions
	ActionMatchesComputed = "matches.computed"
)

// Resource constants for audit events.
const (
	ResourceMember       = "member"
	ResourceListing      = "listing"
	ResourceExchange     = "exchange"
	ResourceConversation = "conversation"
	ResourceMatch        = "match"
)

// Category constants for audit events.
const (
	CategoryLedger     = "ledger"
	CategorySettlement = "settlement"
	CategoryMatching   = "matching"
	CategoryMessaging  = "messaging"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
