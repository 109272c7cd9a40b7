package store

import (
	"context"

	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/types"
)

// Store is the unified storage interface for all Trueque entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Member methods
	CreateMember(ctx context.Context, m *member.Member) error
	GetMember(ctx context.Context, memberID int64) (*member.Member, error)
	ListMembers(ctx context.Context, opts member.ListOpts) ([]*member.Member, error)
	UpdateMember(ctx context.Context, m *member.Member) error

	// Listing methods. The engine only reads listings; CreateListing exists
	// for the external catalog collaborator and for tests.
	CreateListing(ctx context.Context, l *listing.Listing) error
	GetListing(ctx context.Context, listingID int64) (*listing.Listing, error)
	FindListingsByPriceBand(ctx context.Context, min, max types.Credits) ([]*listing.Listing, error)
	FindListingsBySeller(ctx context.Context, sellerID int64) ([]*listing.Listing, error)

	// Exchange methods
	CreateExchange(ctx context.Context, r *exchange.Record) error
	GetExchange(ctx context.Context, exchangeID id.ExchangeID) (*exchange.Record, error)
	ListExchangesFor(ctx context.Context, memberID int64, opts exchange.ListOpts) ([]*exchange.Record, error)
	UpdateExchange(ctx context.Context, r *exchange.Record) error
	GetConversation(ctx context.Context, buyerID, sellerID int64) (*exchange.Conversation, error)

	// Begin opens the settlement unit of work.
	Begin(ctx context.Context) (Tx, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the settlement unit of work. Every read inside it sees live,
// locked state; nothing is visible outside until Commit. Implementations
// must tolerate Rollback after a failed Commit so callers can defer it.
type Tx interface {
	// MemberForUpdate reads a member and locks the row until the
	// transaction ends. To stay deadlock-free, callers lock members in
	// ascending ID order.
	MemberForUpdate(ctx context.Context, memberID int64) (*member.Member, error)
	UpdateBalance(ctx context.Context, memberID int64, delta types.Credits) error
	CreateExchange(ctx context.Context, r *exchange.Record) error
	// UpsertConversation creates or refreshes the (buyer, seller)
	// conversation and returns the stored row.
	UpsertConversation(ctx context.Context, c *exchange.Conversation) (*exchange.Conversation, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
