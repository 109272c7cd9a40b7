package trueque

import (
	"errors"
	"fmt"

	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("trueque: not found")
	ErrAlreadyExists = errors.New("trueque: already exists")
	ErrInvalidInput  = errors.New("trueque: invalid input")

	// Member errors
	ErrMemberNotFound = errors.New("trueque: member not found")

	// Listing errors
	ErrListingNotFound = errors.New("trueque: listing not found")
	ErrListingInactive = errors.New("trueque: listing not active")

	// Settlement errors
	ErrSelfTradeForbidden  = errors.New("trueque: buyer and seller are the same member")
	ErrInsufficientCredit  = errors.New("trueque: insufficient credit")
	ErrLimitExceeded       = errors.New("trueque: credit limit exceeded")
	ErrSettlementTimeout   = errors.New("trueque: settlement lock timed out")
	ErrConversationDropped = errors.New("trueque: conversation notification dropped")

	// Exchange errors
	ErrExchangeNotFound = errors.New("trueque: exchange not found")

	// ErrInvalidTransition is defined next to the state machine and
	// re-exported here so callers only need the root package.
	ErrInvalidTransition = exchange.ErrInvalidTransition

	// Store errors
	ErrStoreNotReady     = errors.New("trueque: store not ready")
	ErrStoreClosed       = errors.New("trueque: store is closed")
	ErrTransactionFailed = errors.New("trueque: transaction failed")
	ErrMigrationFailed   = errors.New("trueque: migration failed")
)

// Stable machine-readable codes, safe to persist and to switch on across
// releases. Human-readable messages may change; these never do.
const (
	CodeMemberNotFound     = "member_not_found"
	CodeListingNotFound    = "listing_not_found"
	CodeListingInactive    = "listing_inactive"
	CodeSelfTradeForbidden = "self_trade_forbidden"
	CodeInsufficientCredit = "insufficient_credit"
	CodeLimitExceeded      = "limit_exceeded"
	CodeInvalidTransition  = "invalid_transition"
	CodeSettlementTimeout  = "settlement_timeout"
	CodeExchangeNotFound   = "exchange_not_found"
	CodeNotFound           = "not_found"
	CodeAlreadyExists      = "already_exists"
	CodeInvalidInput       = "invalid_input"
	CodeStoreNotReady      = "store_not_ready"
	CodeStoreClosed        = "store_closed"
	CodeTransactionFailed  = "transaction_failed"
	CodeUnknown            = "unknown"
)

// Code maps an error to its stable machine code. Wrapped errors resolve
// through errors.Is; unknown errors map to CodeUnknown and nil maps to "".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMemberNotFound):
		return CodeMemberNotFound
	case errors.Is(err, ErrListingNotFound):
		return CodeListingNotFound
	case errors.Is(err, ErrListingInactive):
		return CodeListingInactive
	case errors.Is(err, ErrSelfTradeForbidden):
		return CodeSelfTradeForbidden
	case errors.Is(err, ErrInsufficientCredit):
		return CodeInsufficientCredit
	case errors.Is(err, ErrLimitExceeded):
		return CodeLimitExceeded
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrSettlementTimeout):
		return CodeSettlementTimeout
	case errors.Is(err, ErrExchangeNotFound):
		return CodeExchangeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrStoreNotReady):
		return CodeStoreNotReady
	case errors.Is(err, ErrStoreClosed):
		return CodeStoreClosed
	case errors.Is(err, ErrTransactionFailed):
		return CodeTransactionFailed
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeUnknown
	}
}

// InsufficientCreditError carries the buyer's spending ceiling so callers
// can show how much the member could still spend. Wraps ErrInsufficientCredit.
type InsufficientCreditError struct {
	MemberID int64
	Price    types.Credits
	Ceiling  types.Credits
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("trueque: member %d cannot afford %s (ceiling %s)",
		e.MemberID, e.Price, e.Ceiling)
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("trueque: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrListingNotFound) ||
		errors.Is(err, ErrExchangeNotFound)
}

// IsPolicyViolation returns true if the error reflects a credit-policy
// refusal rather than a missing entity or a store failure.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrInsufficientCredit) ||
		errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, ErrSelfTradeForbidden)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried. Settlement re-validates every precondition per attempt, so a
// timed-out call is always safe to retry, and a limit conflict raised by
// the in-transaction re-check reflects a balance that moved mid-checkout
// rather than a state the caller must fix first.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSettlementTimeout) ||
		errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
