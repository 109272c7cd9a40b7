package trueque

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/store"
)

// SettlementResult is the outcome of a successful checkout.
type SettlementResult struct {
	// Record is the confirmed exchange, amount signed from the buyer's
	// perspective (negative).
	Record *exchange.Record `json:"record"`
	// ConversationID identifies the buyer/seller conversation opened or
	// reused by this settlement. Opaque passthrough for callers.
	ConversationID id.ConversationID `json:"conversation_id"`
}

// Settle performs an atomic checkout: the buyer purchases the listing,
// credits move buyer→seller, a confirmed exchange record is written, and
// the buyer/seller conversation is linked. Either everything commits or
// nothing does.
//
// Preconditions are validated in a fixed order so callers get stable
// errors: listing, buyer, seller, self-trade, affordability. Affordability
// is re-checked against live locked state inside the transaction; the
// cheap pre-check only exists to fail fast without taking locks.
func (e *Engine) Settle(ctx context.Context, buyerID, listingID int64) (*SettlementResult, error) {
	start := time.Now()

	result, err := e.settle(ctx, buyerID, listingID)
	if err != nil {
		e.logger.Warn("settlement refused",
			"buyer_id", buyerID,
			"listing_id", listingID,
			"code", Code(err),
		)
		e.plugins.EmitSettlementFailed(ctx, buyerID, listingID, err)
		return nil, err
	}

	elapsed := time.Since(start)
	e.logger.Info("settlement completed",
		"buyer_id", buyerID,
		"listing_id", listingID,
		"amount", result.Record.Amount,
		"conversation_id", result.ConversationID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	e.plugins.EmitSettlementCompleted(ctx, result, elapsed)

	return result, nil
}

func (e *Engine) settle(ctx context.Context, buyerID, listingID int64) (*SettlementResult, error) {
	l, err := e.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !l.IsActive() {
		return nil, ErrListingInactive
	}

	buyer, err := e.store.GetMember(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	seller, err := e.store.GetMember(ctx, l.SellerID)
	if err != nil {
		return nil, err
	}

	if buyer.ID == seller.ID {
		return nil, ErrSelfTradeForbidden
	}

	if !buyer.CanAfford(l.Price) {
		return nil, &InsufficientCreditError{
			MemberID: buyer.ID,
			Price:    l.Price,
			Ceiling:  buyer.Ceiling(),
		}
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Lock both parties in ascending ID order so concurrent settlements
	// never deadlock.
	liveBuyer, liveSeller, err := lockPair(ctx, tx, buyer.ID, seller.ID)
	if err != nil {
		return nil, err
	}

	// The pre-check ran on possibly stale state; the locked row decides.
	// A refusal here means the balance moved between pre-check and lock,
	// so it surfaces as a retryable conflict, not a pre-check failure.
	if !liveBuyer.CanAfford(l.Price) {
		e.plugins.EmitLimitExceeded(ctx, liveBuyer.ID, int64(-l.Price), int64(liveBuyer.Ceiling()))
		return nil, ErrLimitExceeded
	}

	if err := tx.UpdateBalance(ctx, liveBuyer.ID, -l.Price); err != nil {
		return nil, err
	}
	if err := tx.UpdateBalance(ctx, liveSeller.ID, l.Price); err != nil {
		return nil, err
	}

	record := exchange.NewRecord(liveBuyer.ID, liveSeller.ID, "Purchase: "+l.Title, -l.Price)
	record.CounterpartyName = liveSeller.Name
	record.ListingID = &l.ID
	record.IdempotencyKey = uuid.NewString()
	record.Status = exchange.StatusConfirmed // settlement records are born confirmed

	if err := tx.CreateExchange(ctx, record); err != nil {
		return nil, err
	}

	conv := exchange.NewConversation(liveBuyer.ID, liveSeller.ID)
	conv.LastListingID = &l.ID
	conv.LastExchangeID = record.ID

	stored, err := tx.UpsertConversation(ctx, conv)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	e.queueConversationNotify(stored)

	return &SettlementResult{
		Record:         record,
		ConversationID: stored.ID,
	}, nil
}

// lockPair locks two member rows in ascending ID order and returns them
// as (first, second) matching the argument order.
func lockPair(ctx context.Context, tx store.Tx, firstID, secondID int64) (*member.Member, *member.Member, error) {
	lo, hi := firstID, secondID
	if lo > hi {
		lo, hi = hi, lo
	}

	loMember, err := tx.MemberForUpdate(ctx, lo)
	if err != nil {
		return nil, nil, err
	}
	hiMember, err := tx.MemberForUpdate(ctx, hi)
	if err != nil {
		return nil, nil, err
	}

	if loMember.ID == firstID {
		return loMember, hiMember, nil
	}
	return hiMember, loMember, nil
}
