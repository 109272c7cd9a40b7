package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/trueque"
	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/store/memory"
)

func TestMemberCRUD(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	m := member.New(1, "Rosa")
	if err := s.CreateMember(ctx, m); err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	if err := s.CreateMember(ctx, m); !errors.Is(err, trueque.ErrAlreadyExists) {
		t.Errorf("duplicate create: got %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetMember(ctx, 1)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if got.Name != "Rosa" {
		t.Errorf("Name: got %q, want %q", got.Name, "Rosa")
	}

	if _, err := s.GetMember(ctx, 999); !errors.Is(err, trueque.ErrMemberNotFound) {
		t.Errorf("missing member: got %v, want ErrMemberNotFound", err)
	}

	got.Contact = "rosa@example.org"
	if err := s.UpdateMember(ctx, got); err != nil {
		t.Fatalf("UpdateMember: %v", err)
	}
}

func TestListMembersPagination(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if err := s.CreateMember(ctx, member.New(i, "m")); err != nil {
			t.Fatalf("CreateMember %d: %v", i, err)
		}
	}

	tests := []struct {
		name    string
		opts    member.ListOpts
		wantIDs []int64
	}{
		{"All", member.ListOpts{}, []int64{1, 2, 3, 4, 5}},
		{"Limit", member.ListOpts{Limit: 2}, []int64{1, 2}},
		{"Offset", member.ListOpts{Limit: 2, Offset: 2}, []int64{3, 4}},
		{"Past the end", member.ListOpts{Limit: 2, Offset: 10}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListMembers(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListMembers: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("count: got %d, want %d", len(got), len(tt.wantIDs))
			}
			for i, m := range got {
				if m.ID != tt.wantIDs[i] {
					t.Errorf("position %d: got ID %d, want %d", i, m.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestFindListingsByPriceBand(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	listings := []*listing.Listing{
		{ID: 1, SellerID: 1, Price: 150, Status: listing.StatusActive},
		{ID: 2, SellerID: 1, Price: 160, Status: listing.StatusActive},
		{ID: 3, SellerID: 2, Price: 200, Status: listing.StatusActive},
		{ID: 4, SellerID: 2, Price: 240, Status: listing.StatusActive},
		{ID: 5, SellerID: 3, Price: 250, Status: listing.StatusActive},
		{ID: 6, SellerID: 3, Price: 200, Status: listing.StatusPaused},
	}
	for _, l := range listings {
		if err := s.CreateListing(ctx, l); err != nil {
			t.Fatalf("CreateListing %d: %v", l.ID, err)
		}
	}

	got, err := s.FindListingsByPriceBand(ctx, 160, 240)
	if err != nil {
		t.Fatalf("FindListingsByPriceBand: %v", err)
	}

	// Band is inclusive on both edges, only active listings qualify.
	wantIDs := []int64{2, 3, 4}
	if len(got) != len(wantIDs) {
		t.Fatalf("count: got %d, want %d", len(got), len(wantIDs))
	}
	for i, l := range got {
		if l.ID != wantIDs[i] {
			t.Errorf("position %d: got ID %d, want %d", i, l.ID, wantIDs[i])
		}
	}
}

func TestExchangeIdempotencyKey(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	r1 := exchange.NewRecord(1, 2, "first", -100)
	r1.IdempotencyKey = "key-1"
	if err := s.CreateExchange(ctx, r1); err != nil {
		t.Fatalf("CreateExchange: %v", err)
	}

	r2 := exchange.NewRecord(1, 2, "replay", -100)
	r2.IdempotencyKey = "key-1"
	if err := s.CreateExchange(ctx, r2); !errors.Is(err, trueque.ErrAlreadyExists) {
		t.Errorf("replayed key: got %v, want ErrAlreadyExists", err)
	}
}

func TestListExchangesForNewestFirst(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		r := exchange.NewRecord(1, 2, "test", -10)
		r.OccurredAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateExchange(ctx, r); err != nil {
			t.Fatalf("CreateExchange %d: %v", i, err)
		}
	}

	got, err := s.ListExchangesFor(ctx, 1, exchange.ListOpts{})
	if err != nil {
		t.Fatalf("ListExchangesFor: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("count: got %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].OccurredAt.After(got[i-1].OccurredAt) {
			t.Errorf("records not newest-first at position %d", i)
		}
	}

	// The counterparty sees the same history.
	got, err = s.ListExchangesFor(ctx, 2, exchange.ListOpts{})
	if err != nil {
		t.Fatalf("ListExchangesFor counterparty: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("counterparty count: got %d, want 3", len(got))
	}
}

func TestTxCommitAppliesDeltas(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.CreateMember(ctx, member.New(1, "buyer")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateMember(ctx, member.New(2, "seller")); err != nil {
		t.Fatal(err)
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.UpdateBalance(ctx, 1, -200); err != nil {
		t.Fatalf("UpdateBalance buyer: %v", err)
	}
	if err := tx.UpdateBalance(ctx, 2, 200); err != nil {
		t.Fatalf("UpdateBalance seller: %v", err)
	}

	// Uncommitted deltas are visible inside the transaction...
	m, err := tx.MemberForUpdate(ctx, 1)
	if err != nil {
		t.Fatalf("MemberForUpdate: %v", err)
	}
	if m.Balance != -200 {
		t.Errorf("in-tx balance: got %v, want -200", m.Balance)
	}

	// ...but not outside it.
	outside, err := s.GetMember(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if outside.Balance != 0 {
		t.Errorf("pre-commit balance leaked: got %v, want 0", outside.Balance)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	buyer, _ := s.GetMember(ctx, 1)
	seller, _ := s.GetMember(ctx, 2)
	if buyer.Balance != -200 || seller.Balance != 200 {
		t.Errorf("post-commit balances: got (%v, %v), want (-200, 200)", buyer.Balance, seller.Balance)
	}
}

func TestTxRollbackDiscardsAll(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.CreateMember(ctx, member.New(1, "buyer")); err != nil {
		t.Fatal(err)
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.UpdateBalance(ctx, 1, -500); err != nil {
		t.Fatal(err)
	}
	r := exchange.NewRecord(1, 2, "discard me", -500)
	if err := tx.CreateExchange(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	m, _ := s.GetMember(ctx, 1)
	if m.Balance != 0 {
		t.Errorf("balance after rollback: got %v, want 0", m.Balance)
	}
	if _, err := s.GetExchange(ctx, r.ID); !errors.Is(err, trueque.ErrExchangeNotFound) {
		t.Errorf("exchange after rollback: got %v, want ErrExchangeNotFound", err)
	}
}

func TestBeginTimesOutUnderContention(t *testing.T) {
	s := memory.New(memory.WithLockTimeout(50 * time.Millisecond))
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	start := time.Now()
	_, err = s.Begin(ctx)
	if !errors.Is(err, trueque.ErrSettlementTimeout) {
		t.Fatalf("second Begin: got %v, want ErrSettlementTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("timed out too early: %v", elapsed)
	}
}

func TestBeginAfterRelease(t *testing.T) {
	s := memory.New(memory.WithLockTimeout(50 * time.Millisecond))
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	tx2, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin after release: %v", err)
	}
	if err := tx2.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Rollback after commit is a tolerated no-op.
	if err := tx2.Rollback(ctx); err != nil {
		t.Errorf("Rollback after Commit: got %v, want nil", err)
	}
}
