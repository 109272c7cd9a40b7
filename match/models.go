// Package match holds the result types of the price-band matching engine.
package match

import (
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/types"
)

// Candidate is one listing inside a member's affordable price band.
type Candidate struct {
	Listing *listing.Listing `json:"listing"`
	// Diff is |price - reference|, the sort key. Fractional because the
	// reference averages listing prices.
	Diff float64 `json:"diff"`
	// DiffPct is Diff as a percentage of the reference price.
	DiffPct float64 `json:"diff_pct"`
}

// Result is the outcome of one matching pass.
type Result struct {
	MemberID int64 `json:"member_id"`
	// Reference is the price the band was centered on. Fractional because
	// it averages listing prices.
	Reference  float64       `json:"reference"`
	Margin     float64       `json:"margin"`
	BandMin    types.Credits `json:"band_min"`
	BandMax    types.Credits `json:"band_max"`
	Candidates []Candidate   `json:"candidates"`
}
