package trueque

import (
	"context"
	"math"
	"sort"

	"github.com/xraph/trueque/match"
	"github.com/xraph/trueque/types"
)

// MatchOption configures a single matching pass.
type MatchOption func(*matchQuery)

type matchQuery struct {
	margin    float64
	reference float64
	refSet    bool
	scorer    string
}

// WithMargin overrides the band width for this query. 0.2 means ±20%.
func WithMargin(margin float64) MatchOption {
	return func(q *matchQuery) {
		if margin > 0 {
			q.margin = margin
		}
	}
}

// WithReferencePrice centers the band on an explicit price instead of the
// average of the member's own listings. Callers wanting the stored
// asking-price variant pass member.AskingPrice here.
func WithReferencePrice(ref types.Credits) MatchOption {
	return func(q *matchQuery) {
		q.reference = float64(ref)
		q.refSet = true
	}
}

// WithScorer orders candidates with a registered MatchScorer plugin
// instead of the default distance-from-reference sort.
func WithScorer(name string) MatchOption {
	return func(q *matchQuery) { q.scorer = name }
}

// FindMatches returns the active listings a member could plausibly trade
// for: priced within ±margin of the member's reference price, not their
// own, and affordable under their credit limit. Candidates are sorted by
// distance from the reference, closest first.
//
// The reference price is the average price of the member's own listings.
// A member with no listings (or a zero reference) gets an empty result,
// not an error: there is nothing to center the band on.
func (e *Engine) FindMatches(ctx context.Context, memberID int64, opts ...MatchOption) (*match.Result, error) {
	q := &matchQuery{margin: e.defaultMargin}
	for _, opt := range opts {
		opt(q)
	}

	m, err := e.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	ref := q.reference
	if !q.refSet {
		own, err := e.store.FindListingsBySeller(ctx, memberID)
		if err != nil {
			return nil, err
		}
		if len(own) > 0 {
			var total types.Credits
			for _, l := range own {
				total += l.Price
			}
			ref = float64(total) / float64(len(own))
		}
	}

	result := &match.Result{
		MemberID:   memberID,
		Reference:  ref,
		Margin:     q.margin,
		Candidates: []match.Candidate{},
	}

	if ref <= 0 {
		return result, nil
	}

	// Inclusive band, rounded inward so the bounds never widen it.
	result.BandMin = types.Credits(math.Ceil(ref * (1 - q.margin)))
	result.BandMax = types.Credits(math.Floor(ref * (1 + q.margin)))

	listings, err := e.store.FindListingsByPriceBand(ctx, result.BandMin, result.BandMax)
	if err != nil {
		return nil, err
	}

	for _, l := range listings {
		if l.SellerID == memberID {
			continue
		}
		if !m.CanAfford(l.Price) {
			continue
		}
		diff := math.Abs(float64(l.Price) - ref)
		result.Candidates = append(result.Candidates, match.Candidate{
			Listing: l,
			Diff:    diff,
			DiffPct: diff / ref * 100,
		})
	}

	sortKey := func(c match.Candidate) float64 { return c.Diff }
	if q.scorer != "" {
		if scorer := e.plugins.GetMatchScorer(q.scorer); scorer != nil {
			sortKey = func(c match.Candidate) float64 {
				return scorer.Score(ref, int64(c.Listing.Price))
			}
		}
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		ki, kj := sortKey(result.Candidates[i]), sortKey(result.Candidates[j])
		if ki == kj {
			return result.Candidates[i].Listing.ID < result.Candidates[j].Listing.ID
		}
		return ki < kj
	})

	e.logger.Debug("matches computed",
		"member_id", memberID,
		"reference", ref,
		"band_min", result.BandMin,
		"band_max", result.BandMax,
		"candidates", len(result.Candidates),
	)
	e.plugins.EmitMatchesComputed(ctx, result)

	return result, nil
}
