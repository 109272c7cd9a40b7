package trueque_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/trueque"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/store/memory"
	"github.com/xraph/trueque/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize the engine
		e := trueque.New(store,
			trueque.WithLogger(slog.Default()),
			trueque.WithDefaultMargin(0.2),
		)

		// Start the engine
		ctx := context.Background()
		if err := e.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer e.Stop() //nolint:errcheck

		// Register two members
		if err := e.CreateMember(ctx, &member.Member{ID: 1, Name: "Rosa"}); err != nil {
			t.Fatal(err)
		}
		if err := e.CreateMember(ctx, &member.Member{ID: 2, Name: "Ana"}); err != nil {
			t.Fatal(err)
		}

		// The catalog service owns listings; seed one directly.
		l := &listing.Listing{
			ID:       100,
			SellerID: 2,
			Title:    "Dulce de leche",
			Price:    types.IX(200),
			Status:   listing.StatusActive,
		}
		if err := store.CreateListing(ctx, l); err != nil {
			t.Fatal(err)
		}

		// Find affordable listings near Rosa's asking prices
		matches, err := e.FindMatches(ctx, 1, trueque.WithReferencePrice(types.IX(200)))
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range matches.Candidates {
			log.Printf("match: %s at %s\n", c.Listing.Title, c.Listing.Price)
		}

		// Checkout: debit Rosa, credit Ana, open their conversation
		res, err := e.Settle(ctx, 1, 100)
		if err != nil {
			t.Fatal(err)
		}

		log.Printf("settled %s, conversation %s\n", res.Record.Amount, res.ConversationID)
	})

	// Test Credits type examples
	t.Run("CreditsExamples", func(t *testing.T) {
		// Constructors
		_ = types.IX(200)  // 200 IX
		_ = types.IX(-120) // a 120 IX debit

		// Arithmetic
		c1 := types.IX(100)
		c2 := types.IX(200)
		_ = c1.Add(c2)      // 300 IX
		_ = c1.Subtract(c2) // -100 IX
		_ = c2.Negate()     // -200 IX

		// Comparison
		if c1.IsPositive() {
			// c1 is above zero
		}

		// Formatting
		_ = c1.String()      // "100 IX"
		_ = c1.FormatPesos() // "$100"
	})
}
