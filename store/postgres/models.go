package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/types"
)

// Row scanning targets. Metadata travels as raw JSONB bytes; TypeIDs as
// text via their Value/Scan implementations.

type memberRow struct {
	ID          int64
	Name        string
	Contact     string
	Balance     int64
	CreditLimit int64
	AskingPrice int64
	Metadata    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *memberRow) toDomain() (*member.Member, error) {
	meta, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, err
	}
	return &member.Member{
		Entity:      types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:          r.ID,
		Name:        r.Name,
		Contact:     r.Contact,
		Balance:     types.Credits(r.Balance),
		Limit:       types.Credits(r.CreditLimit),
		AskingPrice: types.Credits(r.AskingPrice),
		Metadata:    meta,
	}, nil
}

type listingRow struct {
	ID          int64
	SellerID    int64
	Title       string
	Description string
	Price       int64
	Status      string
	Metadata    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *listingRow) toDomain() (*listing.Listing, error) {
	meta, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, err
	}
	return &listing.Listing{
		Entity:      types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:          r.ID,
		SellerID:    r.SellerID,
		Title:       r.Title,
		Description: r.Description,
		Price:       types.Credits(r.Price),
		Status:      listing.Status(r.Status),
		Metadata:    meta,
	}, nil
}

type exchangeRow struct {
	ID               id.ExchangeID
	InitiatorID      int64
	CounterpartyID   int64
	CounterpartyName string
	Description      string
	Amount           int64
	ListingID        *int64
	Status           string
	IdempotencyKey   string
	OccurredAt       time.Time
	Metadata         []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (r *exchangeRow) toDomain() (*exchange.Record, error) {
	meta, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, err
	}
	return &exchange.Record{
		Entity:           types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:               r.ID,
		InitiatorID:      r.InitiatorID,
		CounterpartyID:   r.CounterpartyID,
		CounterpartyName: r.CounterpartyName,
		Description:      r.Description,
		Amount:           types.Credits(r.Amount),
		ListingID:        r.ListingID,
		Status:           exchange.Status(r.Status),
		IdempotencyKey:   r.IdempotencyKey,
		OccurredAt:       r.OccurredAt,
		Metadata:         meta,
	}, nil
}

type conversationRow struct {
	ID             id.ConversationID
	BuyerID        int64
	SellerID       int64
	LastListingID  *int64
	LastExchangeID id.ExchangeID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *conversationRow) toDomain() *exchange.Conversation {
	return &exchange.Conversation{
		Entity:         types.Entity{CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ID:             r.ID,
		BuyerID:        r.BuyerID,
		SellerID:       r.SellerID,
		LastListingID:  r.LastListingID,
		LastExchangeID: r.LastExchangeID,
	}
}

func decodeMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func encodeMetadata(meta map[string]string) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}
