package exchange

import (
	"context"

	"github.com/xraph/trueque/id"
)

type Store interface {
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, exchangeID id.ExchangeID) (*Record, error)
	// ListFor returns every record where the member is initiator or
	// counterparty, newest first.
	ListFor(ctx context.Context, memberID int64, opts ListOpts) ([]*Record, error)
	Update(ctx context.Context, r *Record) error
	GetConversation(ctx context.Context, buyerID, sellerID int64) (*Conversation, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
