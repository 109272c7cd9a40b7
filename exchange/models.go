// Package exchange holds the append-only exchange record, its status
// state machine, and the buyer/seller conversation side channel.
package exchange

import (
	"errors"
	"time"

	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/types"
)

// ErrInvalidTransition is returned when a record is asked to leave a
// terminal status. Confirmed and cancelled are mutually exclusive and final.
var ErrInvalidTransition = errors.New("trueque: invalid exchange status transition")

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Record is one movement of credits between two members. Records are
// append-only: they are never deleted, only transitioned.
type Record struct {
	types.Entity
	ID               id.ExchangeID `json:"id"`
	InitiatorID      int64         `json:"initiator_id"`
	CounterpartyID   int64         `json:"counterparty_id"`
	CounterpartyName string        `json:"counterparty_name,omitempty"`
	Description      string        `json:"description"`
	// Amount is signed from the initiator's perspective: a settlement
	// debit is negative.
	Amount         types.Credits     `json:"amount"`
	ListingID      *int64            `json:"listing_id,omitempty"`
	Status         Status            `json:"status"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewRecord creates a pending record between two members.
func NewRecord(initiatorID, counterpartyID int64, description string, amount types.Credits) *Record {
	return &Record{
		Entity:         types.NewEntity(),
		ID:             id.NewExchangeID(),
		InitiatorID:    initiatorID,
		CounterpartyID: counterpartyID,
		Description:    description,
		Amount:         amount,
		Status:         StatusPending,
		OccurredAt:     time.Now().UTC(),
	}
}

// IsTerminal reports whether the record reached a final status.
func (r *Record) IsTerminal() bool {
	return r.Status == StatusConfirmed || r.Status == StatusCancelled
}

// Confirm transitions the record to confirmed. Confirming an already
// confirmed record is a no-op; a cancelled record cannot be confirmed.
func (r *Record) Confirm() error {
	switch r.Status {
	case StatusConfirmed:
		return nil
	case StatusCancelled:
		return ErrInvalidTransition
	}
	r.Status = StatusConfirmed
	r.Touch()
	return nil
}

// Cancel transitions the record to cancelled. Cancelling an already
// cancelled record is a no-op; a confirmed record cannot be cancelled.
func (r *Record) Cancel() error {
	switch r.Status {
	case StatusCancelled:
		return nil
	case StatusConfirmed:
		return ErrInvalidTransition
	}
	r.Status = StatusCancelled
	r.Touch()
	return nil
}

// Conversation is the side channel opened (or reused) between a buyer and
// a seller when a settlement completes. One conversation per (buyer,
// seller) pair; repeated settlements update the listing and exchange refs.
type Conversation struct {
	types.Entity
	ID             id.ConversationID `json:"id"`
	BuyerID        int64             `json:"buyer_id"`
	SellerID       int64             `json:"seller_id"`
	LastListingID  *int64            `json:"last_listing_id,omitempty"`
	LastExchangeID id.ExchangeID     `json:"last_exchange_id"`
}

// NewConversation creates a conversation between a buyer and a seller.
func NewConversation(buyerID, sellerID int64) *Conversation {
	return &Conversation{
		Entity:   types.NewEntity(),
		ID:       id.NewConversationID(),
		BuyerID:  buyerID,
		SellerID: sellerID,
	}
}

// SettlementEvent is the post-settlement notification handed to plugins
// after a checkout links a conversation. Each event carries its own ID so
// downstream consumers can deduplicate redelivered notifications.
type SettlementEvent struct {
	ID           id.SettlementEventID `json:"id"`
	Conversation *Conversation        `json:"conversation"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// NewSettlementEvent stamps a conversation notification with a fresh
// event ID.
func NewSettlementEvent(conv *Conversation) *SettlementEvent {
	return &SettlementEvent{
		ID:           id.NewSettlementEventID(),
		Conversation: conv,
		OccurredAt:   time.Now().UTC(),
	}
}
