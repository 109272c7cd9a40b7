package mongo

import (
	"time"

	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/types"
)

// ==================== Member models ====================

type memberModel struct {
	ID          int64             `bson:"_id"`
	Name        string            `bson:"name"`
	Contact     string            `bson:"contact"`
	Balance     int64             `bson:"balance"`
	CreditLimit int64             `bson:"credit_limit"`
	AskingPrice int64             `bson:"asking_price"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

func toMemberModel(m *member.Member) *memberModel {
	return &memberModel{
		ID:          m.ID,
		Name:        m.Name,
		Contact:     m.Contact,
		Balance:     int64(m.Balance),
		CreditLimit: int64(m.Limit),
		AskingPrice: int64(m.AskingPrice),
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func fromMemberModel(m *memberModel) *member.Member {
	return &member.Member{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          m.ID,
		Name:        m.Name,
		Contact:     m.Contact,
		Balance:     types.Credits(m.Balance),
		Limit:       types.Credits(m.CreditLimit),
		AskingPrice: types.Credits(m.AskingPrice),
		Metadata:    m.Metadata,
	}
}

// ==================== Listing models ====================

type listingModel struct {
	ID          int64             `bson:"_id"`
	SellerID    int64             `bson:"seller_id"`
	Title       string            `bson:"title"`
	Description string            `bson:"description"`
	Price       int64             `bson:"price"`
	Status      string            `bson:"status"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

func toListingModel(l *listing.Listing) *listingModel {
	return &listingModel{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Title:       l.Title,
		Description: l.Description,
		Price:       int64(l.Price),
		Status:      string(l.Status),
		Metadata:    l.Metadata,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func fromListingModel(m *listingModel) *listing.Listing {
	return &listing.Listing{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          m.ID,
		SellerID:    m.SellerID,
		Title:       m.Title,
		Description: m.Description,
		Price:       types.Credits(m.Price),
		Status:      listing.Status(m.Status),
		Metadata:    m.Metadata,
	}
}

// ==================== Exchange models ====================

type exchangeModel struct {
	ID               string            `bson:"_id"`
	InitiatorID      int64             `bson:"initiator_id"`
	CounterpartyID   int64             `bson:"counterparty_id"`
	CounterpartyName string            `bson:"counterparty_name"`
	Description      string            `bson:"description"`
	Amount           int64             `bson:"amount"`
	ListingID        *int64            `bson:"listing_id,omitempty"`
	Status           string            `bson:"status"`
	IdempotencyKey   string            `bson:"idempotency_key,omitempty"`
	OccurredAt       time.Time         `bson:"occurred_at"`
	Metadata         map[string]string `bson:"metadata,omitempty"`
	CreatedAt        time.Time         `bson:"created_at"`
	UpdatedAt        time.Time         `bson:"updated_at"`
}

func toExchangeModel(r *exchange.Record) *exchangeModel {
	return &exchangeModel{
		ID:               r.ID.String(),
		InitiatorID:      r.InitiatorID,
		CounterpartyID:   r.CounterpartyID,
		CounterpartyName: r.CounterpartyName,
		Description:      r.Description,
		Amount:           int64(r.Amount),
		ListingID:        r.ListingID,
		Status:           string(r.Status),
		IdempotencyKey:   r.IdempotencyKey,
		OccurredAt:       r.OccurredAt,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func fromExchangeModel(m *exchangeModel) (*exchange.Record, error) {
	recordID, err := id.ParseExchangeID(m.ID)
	if err != nil {
		return nil, err
	}
	return &exchange.Record{
		Entity:           types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:               recordID,
		InitiatorID:      m.InitiatorID,
		CounterpartyID:   m.CounterpartyID,
		CounterpartyName: m.CounterpartyName,
		Description:      m.Description,
		Amount:           types.Credits(m.Amount),
		ListingID:        m.ListingID,
		Status:           exchange.Status(m.Status),
		IdempotencyKey:   m.IdempotencyKey,
		OccurredAt:       m.OccurredAt,
		Metadata:         m.Metadata,
	}, nil
}

// ==================== Conversation models ====================

type conversationModel struct {
	ID             string    `bson:"_id"`
	BuyerID        int64     `bson:"buyer_id"`
	SellerID       int64     `bson:"seller_id"`
	LastListingID  *int64    `bson:"last_listing_id,omitempty"`
	LastExchangeID string    `bson:"last_exchange_id"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toConversationModel(c *exchange.Conversation) *conversationModel {
	return &conversationModel{
		ID:             c.ID.String(),
		BuyerID:        c.BuyerID,
		SellerID:       c.SellerID,
		LastListingID:  c.LastListingID,
		LastExchangeID: c.LastExchangeID.String(),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func fromConversationModel(m *conversationModel) (*exchange.Conversation, error) {
	convID, err := id.ParseConversationID(m.ID)
	if err != nil {
		return nil, err
	}
	var exchID id.ExchangeID
	if m.LastExchangeID != "" {
		exchID, err = id.ParseExchangeID(m.LastExchangeID)
		if err != nil {
			return nil, err
		}
	}
	return &exchange.Conversation{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             convID,
		BuyerID:        m.BuyerID,
		SellerID:       m.SellerID,
		LastListingID:  m.LastListingID,
		LastExchangeID: exchID,
	}, nil
}
