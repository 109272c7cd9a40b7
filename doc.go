// Package trueque provides a community barter credit ledger for Go applications.
//
// Trueque is designed as a library, not a service. Import it directly into your
// Go application. It provides:
//
//   - A member credit ledger denominated in IX units, with per-member
//     negative balance limits enforced on every debit
//   - A matching engine that suggests affordable listings within a
//     price band around each member's own asking prices
//   - An atomic settlement engine for listing checkout with row-level
//     locking and a bounded lock wait
//   - Conversation bootstrapping between buyer and seller on settlement
//   - Pluggable lifecycle hooks for metrics and audit trails
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/trueque"
//	    "github.com/xraph/trueque/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	t := trueque.New(store)
//
//	// Start the engine (runs migrations, begins background workers)
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
// # Core Concepts
//
// Members hold a signed balance of IX credits. A member may go negative
// down to their credit limit:
//
//	m := &member.Member{ID: 42, Name: "Rosa"}
//	err := t.CreateMember(ctx, m)
//	// m.Balance == 0, m.Limit == 15000
//
// Matching finds listings a member can both afford and plausibly wants,
// within a margin band around the average price of their own listings:
//
//	result, err := t.FindMatches(ctx, 42)
//	for _, c := range result.Candidates {
//	    fmt.Println(c.Listing.Title, c.Listing.Price)
//	}
//
// Settlement executes a checkout atomically: the buyer is debited, the
// seller credited, a confirmed exchange record written, and a buyer/seller
// conversation opened, all in one transaction:
//
//	res, err := t.Settle(ctx, buyerID, listingID)
//
// # Credit Semantics
//
// All balances use integer arithmetic. One IX is pegged one-to-one to the
// Argentine peso for display purposes only; the ledger itself never stores
// pesos. Debits that would push a member below -limit are refused with
// ErrInsufficientCredit or ErrLimitExceeded, and the stable error code is
// available via Code(err) for transport layers.
//
// # TypeID
//
// Exchange records, conversations, and settlement notification events use
// TypeID for globally unique, type-safe identifiers:
//
//	exch_01h2xcejqtf2nbrexx3vqjhp41  // Exchange record ID
//	conv_01h455vb4pex5vsknk084sn02q  // Conversation ID
//	sevt_01h9e8q2k4f6f1gtxv5m3kp8cr  // Settlement event ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities. Members and listings keep
// plain numeric identifiers to match existing community directories.
package trueque
