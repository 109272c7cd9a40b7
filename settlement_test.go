package trueque_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/trueque"
	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/store"
	"github.com/xraph/trueque/store/memory"
	"github.com/xraph/trueque/types"
)

// settlementFixture is a buyer, a seller, and one active listing priced 200.
func settlementFixture(t *testing.T, e *trueque.Engine) {
	t.Helper()
	ctx := context.Background()

	if err := e.CreateMember(ctx, &member.Member{ID: 1, Name: "Rosa"}); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateMember(ctx, &member.Member{ID: 2, Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	l := &listing.Listing{ID: 10, SellerID: 2, Title: "Dulce de leche", Price: 200, Status: listing.StatusActive}
	if err := e.Store().CreateListing(ctx, l); err != nil {
		t.Fatal(err)
	}
}

func TestSettleHappyPath(t *testing.T) {
	e := newTestEngine(t)
	settlementFixture(t, e)
	ctx := context.Background()

	res, err := e.Settle(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if res.Record.Amount != types.IX(-200) {
		t.Errorf("Amount: got %v, want -200 (signed from the buyer)", res.Record.Amount)
	}
	if res.Record.Status != exchange.StatusConfirmed {
		t.Errorf("Status: got %q, settlement records are born confirmed", res.Record.Status)
	}
	if res.Record.ListingID == nil || *res.Record.ListingID != 10 {
		t.Errorf("ListingID: got %v, want 10", res.Record.ListingID)
	}
	if res.Record.CounterpartyName != "Ana" {
		t.Errorf("CounterpartyName: got %q, want %q", res.Record.CounterpartyName, "Ana")
	}
	if res.Record.IdempotencyKey == "" {
		t.Error("settlement records carry an idempotency key")
	}
	if res.ConversationID.IsNil() {
		t.Error("expected a conversation to be opened")
	}

	buyer, _ := e.GetMember(ctx, 1)
	seller, _ := e.GetMember(ctx, 2)
	if buyer.Balance != types.IX(-200) {
		t.Errorf("buyer balance: got %v, want -200", buyer.Balance)
	}
	if seller.Balance != types.IX(200) {
		t.Errorf("seller balance: got %v, want 200", seller.Balance)
	}
	if sum := buyer.Balance + seller.Balance; sum != 0 {
		t.Errorf("credits must be conserved, sum is %v", sum)
	}

	conv, err := e.Store().GetConversation(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.LastExchangeID.String() != res.Record.ID.String() {
		t.Errorf("conversation not linked to the settlement record")
	}
}

func TestSettleReusesConversation(t *testing.T) {
	e := newTestEngine(t)
	settlementFixture(t, e)
	ctx := context.Background()

	first, err := e.Settle(ctx, 1, 10)
	if err != nil {
		t.Fatalf("first Settle: %v", err)
	}

	l2 := &listing.Listing{ID: 11, SellerID: 2, Title: "Pan casero", Price: 50, Status: listing.StatusActive}
	if err := e.Store().CreateListing(ctx, l2); err != nil {
		t.Fatal(err)
	}

	second, err := e.Settle(ctx, 1, 11)
	if err != nil {
		t.Fatalf("second Settle: %v", err)
	}

	if first.ConversationID.String() != second.ConversationID.String() {
		t.Errorf("repeat settlements must reuse the (buyer, seller) conversation: %q != %q",
			first.ConversationID.String(), second.ConversationID.String())
	}

	conv, err := e.Store().GetConversation(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if conv.LastListingID == nil || *conv.LastListingID != 11 {
		t.Errorf("conversation should point at the latest listing, got %v", conv.LastListingID)
	}
	if conv.LastExchangeID.String() != second.Record.ID.String() {
		t.Error("conversation should point at the latest exchange")
	}
}

func TestSettlePreconditionOrder(t *testing.T) {
	e := newTestEngine(t)
	settlementFixture(t, e)
	ctx := context.Background()

	paused := &listing.Listing{ID: 20, SellerID: 2, Title: "Paused", Price: 100, Status: listing.StatusPaused}
	if err := e.Store().CreateListing(ctx, paused); err != nil {
		t.Fatal(err)
	}
	orphan := &listing.Listing{ID: 21, SellerID: 999, Title: "Orphan", Price: 100, Status: listing.StatusActive}
	if err := e.Store().CreateListing(ctx, orphan); err != nil {
		t.Fatal(err)
	}
	own := &listing.Listing{ID: 22, SellerID: 1, Title: "Own listing", Price: 100, Status: listing.StatusActive}
	if err := e.Store().CreateListing(ctx, own); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		buyerID   int64
		listingID int64
		wantErr   error
	}{
		// The listing is checked before the buyer, so a missing listing
		// wins even when the buyer is missing too.
		{"missing listing beats missing buyer", 999, 555, trueque.ErrListingNotFound},
		{"inactive listing beats missing buyer", 999, 20, trueque.ErrListingInactive},
		{"missing buyer", 999, 10, trueque.ErrMemberNotFound},
		{"missing seller", 1, 21, trueque.ErrMemberNotFound},
		{"self trade", 1, 22, trueque.ErrSelfTradeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Settle(context.Background(), tt.buyerID, tt.listingID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	// No refused settlement may move a balance.
	buyer, _ := e.GetMember(ctx, 1)
	seller, _ := e.GetMember(ctx, 2)
	if !buyer.Balance.IsZero() || !seller.Balance.IsZero() {
		t.Errorf("balances moved on refused settlements: (%v, %v)", buyer.Balance, seller.Balance)
	}
}

func TestSettleInsufficientCredit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// A tight limit of 100 cannot absorb a 200 debit.
	if err := e.CreateMember(ctx, &member.Member{ID: 1, Name: "Rosa", Limit: types.IX(100)}); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateMember(ctx, &member.Member{ID: 2, Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	l := &listing.Listing{ID: 10, SellerID: 2, Title: "Dulce de leche", Price: 200, Status: listing.StatusActive}
	if err := e.Store().CreateListing(ctx, l); err != nil {
		t.Fatal(err)
	}

	_, err := e.Settle(ctx, 1, 10)
	if !errors.Is(err, trueque.ErrInsufficientCredit) {
		t.Fatalf("got %v, want ErrInsufficientCredit", err)
	}

	var insErr *trueque.InsufficientCreditError
	if !errors.As(err, &insErr) {
		t.Fatalf("expected *InsufficientCreditError, got %T", err)
	}
	if insErr.Ceiling != types.IX(100) {
		t.Errorf("Ceiling: got %v, want 100 (|0| + 100)", insErr.Ceiling)
	}
	if insErr.Price != types.IX(200) {
		t.Errorf("Price: got %v, want 200", insErr.Price)
	}

	buyer, _ := e.GetMember(ctx, 1)
	if !buyer.Balance.IsZero() {
		t.Errorf("refused settlement moved the balance: %v", buyer.Balance)
	}
}

func TestSettleExactlyToLimit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateMember(ctx, &member.Member{ID: 1, Name: "Rosa", Limit: types.IX(200)}); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateMember(ctx, &member.Member{ID: 2, Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	l := &listing.Listing{ID: 10, SellerID: 2, Title: "Dulce de leche", Price: 200, Status: listing.StatusActive}
	if err := e.Store().CreateListing(ctx, l); err != nil {
		t.Fatal(err)
	}

	// balance - price == -limit is allowed; the invariant is >=, not >.
	if _, err := e.Settle(ctx, 1, 10); err != nil {
		t.Fatalf("Settle to exactly -limit: %v", err)
	}
	buyer, _ := e.GetMember(ctx, 1)
	if buyer.Balance != types.IX(-200) {
		t.Errorf("buyer balance: got %v, want -200", buyer.Balance)
	}
}

func TestSettleTimeoutUnderContention(t *testing.T) {
	s := memory.New(memory.WithLockTimeout(50 * time.Millisecond))
	e := trueque.New(s)
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := e.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	settlementFixture(t, e)

	// Hold the settlement lock so Settle cannot begin its transaction.
	blocker, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	_, err = e.Settle(ctx, 1, 10)
	if !errors.Is(err, trueque.ErrSettlementTimeout) {
		t.Fatalf("got %v, want ErrSettlementTimeout", err)
	}
	if !trueque.IsRetryable(err) {
		t.Error("a timed-out settlement must be retryable")
	}

	if err := blocker.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	// Released lock, same call succeeds.
	if _, err := e.Settle(ctx, 1, 10); err != nil {
		t.Fatalf("Settle after release: %v", err)
	}
}

func TestSettleAppearsInHistory(t *testing.T) {
	e := newTestEngine(t)
	settlementFixture(t, e)
	ctx := context.Background()

	res, err := e.Settle(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}

	for _, memberID := range []int64{1, 2} {
		history, err := e.ExchangesFor(ctx, memberID, exchange.ListOpts{})
		if err != nil {
			t.Fatalf("ExchangesFor(%d): %v", memberID, err)
		}
		if len(history) != 1 {
			t.Fatalf("member %d history: got %d records, want 1", memberID, len(history))
		}
		if history[0].ID.String() != res.Record.ID.String() {
			t.Errorf("member %d history holds the wrong record", memberID)
		}
	}

	// Confirmed settlements cannot be cancelled afterwards.
	if _, err := e.CancelExchange(ctx, res.Record.ID); !errors.Is(err, trueque.ErrInvalidTransition) {
		t.Errorf("cancel settled record: got %v, want ErrInvalidTransition", err)
	}
}

// beginGate signals each settlement transaction attempt so tests can order
// concurrent checkouts deterministically.
type beginGate struct {
	store.Store
	reached chan struct{}
}

func (g *beginGate) Begin(ctx context.Context) (store.Tx, error) {
	g.reached <- struct{}{}
	return g.Store.Begin(ctx)
}

func TestSettleRefusesStaleAffordability(t *testing.T) {
	mem := memory.New()
	gate := &beginGate{Store: mem, reached: make(chan struct{}, 1)}
	e := trueque.New(gate)
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := e.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})

	// A limit of 250 absorbs the 200 debit only while the balance is 0.
	if err := e.CreateMember(ctx, &member.Member{ID: 1, Name: "Rosa", Limit: types.IX(250)}); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateMember(ctx, &member.Member{ID: 2, Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	l := &listing.Listing{ID: 10, SellerID: 2, Title: "Dulce de leche", Price: 200, Status: listing.StatusActive}
	if err := e.Store().CreateListing(ctx, l); err != nil {
		t.Fatal(err)
	}

	// Hold the settlement lock so the checkout passes its pre-check and
	// parks in Begin while the balance still reads 0.
	blocker, err := mem.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Settle(ctx, 1, 10)
		errCh <- err
	}()
	<-gate.reached

	// Move the balance through the held transaction; the parked
	// checkout's pre-check is now stale.
	if err := blocker.UpdateBalance(ctx, 1, types.IX(-100)); err != nil {
		t.Fatal(err)
	}
	if err := blocker.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	err = <-errCh
	if !errors.Is(err, trueque.ErrLimitExceeded) {
		t.Fatalf("got %v, want ErrLimitExceeded from the live re-check", err)
	}
	if errors.Is(err, trueque.ErrInsufficientCredit) {
		t.Error("a live re-check refusal is a conflict, not a pre-check failure")
	}
	if got := trueque.Code(err); got != trueque.CodeLimitExceeded {
		t.Errorf("Code: got %q, want %q", got, trueque.CodeLimitExceeded)
	}
	if !trueque.IsRetryable(err) {
		t.Error("a refused live re-check must be retryable")
	}

	buyer, _ := e.GetMember(ctx, 1)
	seller, _ := e.GetMember(ctx, 2)
	if buyer.Balance != types.IX(-100) {
		t.Errorf("buyer balance: got %v, want -100 (the external debit only)", buyer.Balance)
	}
	if !seller.Balance.IsZero() {
		t.Errorf("seller balance moved on a refused settlement: %v", seller.Balance)
	}
}

func TestSettleConcurrentCheckoutsConserveCredits(t *testing.T) {
	mem := memory.New()
	gate := &beginGate{Store: mem, reached: make(chan struct{}, 2)}
	e := trueque.New(gate)
	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := e.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})

	// A limit of 250 absorbs one 200 debit, never two.
	if err := e.CreateMember(ctx, &member.Member{ID: 1, Name: "Rosa", Limit: types.IX(250)}); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateMember(ctx, &member.Member{ID: 2, Name: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateMember(ctx, &member.Member{ID: 3, Name: "Benita"}); err != nil {
		t.Fatal(err)
	}
	for _, l := range []*listing.Listing{
		{ID: 10, SellerID: 2, Title: "Dulce de leche", Price: 200, Status: listing.StatusActive},
		{ID: 11, SellerID: 3, Title: "Pan casero", Price: 200, Status: listing.StatusActive},
	} {
		if err := e.Store().CreateListing(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	// Park both checkouts in Begin after their pre-checks passed, then
	// release them to race for the settlement lock.
	blocker, err := mem.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	errCh := make(chan error, 2)
	for _, listingID := range []int64{10, 11} {
		go func(listingID int64) {
			_, err := e.Settle(ctx, 1, listingID)
			errCh <- err
		}(listingID)
	}
	<-gate.reached
	<-gate.reached
	if err := blocker.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	var refused error
	succeeded := 0
	for range 2 {
		if err := <-errCh; err != nil {
			refused = err
		} else {
			succeeded++
		}
	}

	if succeeded != 1 {
		t.Fatalf("got %d successful settlements, want exactly 1", succeeded)
	}
	if !errors.Is(refused, trueque.ErrLimitExceeded) {
		t.Fatalf("losing settlement: got %v, want ErrLimitExceeded", refused)
	}

	buyer, _ := e.GetMember(ctx, 1)
	ana, _ := e.GetMember(ctx, 2)
	benita, _ := e.GetMember(ctx, 3)
	if buyer.Balance != types.IX(-200) {
		t.Errorf("buyer balance: got %v, want -200 (one debit, not two)", buyer.Balance)
	}
	if sum := buyer.Balance + ana.Balance + benita.Balance; sum != 0 {
		t.Errorf("credits must be conserved, sum is %v", sum)
	}

	history, err := e.ExchangesFor(ctx, 1, exchange.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("buyer history: got %d records, want 1", len(history))
	}
}

// eventCapture forwards settlement events so the test can wait on delivery.
type eventCapture struct {
	events chan *exchange.SettlementEvent
}

func (p *eventCapture) Name() string { return "event-capture" }

func (p *eventCapture) OnConversationLinked(_ context.Context, event interface{}) error {
	if evt, ok := event.(*exchange.SettlementEvent); ok {
		p.events <- evt
	}
	return nil
}

func TestSettleDeliversSettlementEvent(t *testing.T) {
	capture := &eventCapture{events: make(chan *exchange.SettlementEvent, 1)}
	e := newTestEngine(t, trueque.WithPlugin(capture))
	settlementFixture(t, e)

	res, err := e.Settle(context.Background(), 1, 10)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-capture.events:
		if evt.ID.Prefix() != id.PrefixSettlementEvent {
			t.Errorf("event prefix: got %q, want %q", evt.ID.Prefix(), id.PrefixSettlementEvent)
		}
		if evt.Conversation == nil || evt.Conversation.ID.String() != res.ConversationID.String() {
			t.Error("event must carry the settlement's conversation")
		}
		if evt.OccurredAt.IsZero() {
			t.Error("event must be timestamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("settlement event was never delivered")
	}
}
