package listing

import (
	"context"

	"github.com/xraph/trueque/types"
)

type Store interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, listingID int64) (*Listing, error)
	// FindByPriceBand returns active listings priced in [min, max] inclusive.
	FindByPriceBand(ctx context.Context, min, max types.Credits) ([]*Listing, error)
	FindBySeller(ctx context.Context, sellerID int64) ([]*Listing, error)
}
