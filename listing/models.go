// Package listing holds the read model for catalog listings. The catalog
// service owns listing lifecycle; the engine only reads prices and
// ownership for matching and settlement.
package listing

import (
	"github.com/xraph/trueque/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// Listing is a catalog offer priced in community credits.
type Listing struct {
	types.Entity
	ID          int64             `json:"id"`
	SellerID    int64             `json:"seller_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Price       types.Credits     `json:"price"`
	Status      Status            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IsActive reports whether the listing is open for settlement.
func (l *Listing) IsActive() bool {
	return l.Status == StatusActive
}
