// Package memory provides an in-memory Store for tests and embedded use.
// Settlement transactions are serialized behind a single timed lock so the
// engine's timeout path is exercisable without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/trueque"
	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/store"
	"github.com/xraph/trueque/types"
)

const defaultLockTimeout = 3 * time.Second

type Store struct {
	mu sync.RWMutex

	// Member storage
	members map[int64]*member.Member

	// Listing storage
	listings map[int64]*listing.Listing

	// Exchange storage
	exchanges       map[string]*exchange.Record
	idempotencyKeys map[string]string // key -> exchange ID

	// Conversation storage, keyed "buyerID:sellerID"
	conversations map[string]*exchange.Conversation

	// settleLock serializes settlement transactions. Begin blocks on it
	// for at most lockTimeout.
	settleLock  chan struct{}
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLockTimeout overrides how long Begin waits for the settlement lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		members:         make(map[int64]*member.Member),
		listings:        make(map[int64]*listing.Listing),
		exchanges:       make(map[string]*exchange.Record),
		idempotencyKeys: make(map[string]string),
		conversations:   make(map[string]*exchange.Conversation),
		settleLock:      make(chan struct{}, 1),
		lockTimeout:     defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func conversationKey(buyerID, sellerID int64) string {
	return fmt.Sprintf("%d:%d", buyerID, sellerID)
}

// Member Store implementation
func (s *Store) CreateMember(_ context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[m.ID]; exists {
		return trueque.ErrAlreadyExists
	}
	s.members[m.ID] = m
	return nil
}

func (s *Store) GetMember(_ context.Context, memberID int64) (*member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, ok := s.members[memberID]; ok {
		return m, nil
	}
	return nil, trueque.ErrMemberNotFound
}

func (s *Store) ListMembers(_ context.Context, opts member.ListOpts) ([]*member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*member.Member, 0, len(s.members))
	for _, m := range s.members {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) UpdateMember(_ context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[m.ID]; !exists {
		return trueque.ErrMemberNotFound
	}
	s.members[m.ID] = m
	return nil
}

// Listing Store implementation
func (s *Store) CreateListing(_ context.Context, l *listing.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.listings[l.ID]; exists {
		return trueque.ErrAlreadyExists
	}
	s.listings[l.ID] = l
	return nil
}

func (s *Store) GetListing(_ context.Context, listingID int64) (*listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.listings[listingID]; ok {
		return l, nil
	}
	return nil, trueque.ErrListingNotFound
}

func (s *Store) FindListingsByPriceBand(_ context.Context, min, max types.Credits) ([]*listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*listing.Listing, 0)
	for _, l := range s.listings {
		if l.IsActive() && l.Price >= min && l.Price <= max {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) FindListingsBySeller(_ context.Context, sellerID int64) ([]*listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*listing.Listing, 0)
	for _, l := range s.listings {
		if l.SellerID == sellerID {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Exchange Store implementation
func (s *Store) CreateExchange(_ context.Context, r *exchange.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createExchangeLocked(r)
}

func (s *Store) createExchangeLocked(r *exchange.Record) error {
	if _, exists := s.exchanges[r.ID.String()]; exists {
		return trueque.ErrAlreadyExists
	}
	if r.IdempotencyKey != "" {
		if _, exists := s.idempotencyKeys[r.IdempotencyKey]; exists {
			return trueque.ErrAlreadyExists
		}
		s.idempotencyKeys[r.IdempotencyKey] = r.ID.String()
	}
	s.exchanges[r.ID.String()] = r
	return nil
}

func (s *Store) GetExchange(_ context.Context, exchangeID id.ExchangeID) (*exchange.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.exchanges[exchangeID.String()]; ok {
		return r, nil
	}
	return nil, trueque.ErrExchangeNotFound
}

func (s *Store) ListExchangesFor(_ context.Context, memberID int64, opts exchange.ListOpts) ([]*exchange.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*exchange.Record, 0)
	for _, r := range s.exchanges {
		if r.InitiatorID == memberID || r.CounterpartyID == memberID {
			if opts.Status == "" || r.Status == opts.Status {
				result = append(result, r)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) UpdateExchange(_ context.Context, r *exchange.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.exchanges[r.ID.String()]; !exists {
		return trueque.ErrExchangeNotFound
	}
	s.exchanges[r.ID.String()] = r
	return nil
}

func (s *Store) GetConversation(_ context.Context, buyerID, sellerID int64) (*exchange.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.conversations[conversationKey(buyerID, sellerID)]; ok {
		return c, nil
	}
	return nil, trueque.ErrNotFound
}

// Begin acquires the settlement lock, waiting at most the configured
// timeout. All transaction writes are buffered and applied at Commit.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case s.settleLock <- struct{}{}:
		return &memTx{store: s}, nil
	case <-timer.C:
		return nil, trueque.ErrSettlementTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// memTx buffers settlement writes until Commit. The settlement lock is
// held for the lifetime of the transaction, so reads see stable state.
type memTx struct {
	store *Store
	done  bool

	deltas    map[int64]types.Credits
	exchanges []*exchange.Record
	convs     []*exchange.Conversation
}

func (t *memTx) MemberForUpdate(_ context.Context, memberID int64) (*member.Member, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	m, ok := t.store.members[memberID]
	if !ok {
		return nil, trueque.ErrMemberNotFound
	}

	// Copy so uncommitted engine-side math never aliases stored state,
	// then overlay any deltas already buffered in this transaction.
	cp := *m
	cp.Balance += t.deltas[memberID]
	return &cp, nil
}

func (t *memTx) UpdateBalance(_ context.Context, memberID int64, delta types.Credits) error {
	t.store.mu.RLock()
	_, ok := t.store.members[memberID]
	t.store.mu.RUnlock()
	if !ok {
		return trueque.ErrMemberNotFound
	}

	if t.deltas == nil {
		t.deltas = make(map[int64]types.Credits)
	}
	t.deltas[memberID] += delta
	return nil
}

func (t *memTx) CreateExchange(_ context.Context, r *exchange.Record) error {
	t.exchanges = append(t.exchanges, r)
	return nil
}

func (t *memTx) UpsertConversation(_ context.Context, c *exchange.Conversation) (*exchange.Conversation, error) {
	t.convs = append(t.convs, c)

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if existing, ok := t.store.conversations[conversationKey(c.BuyerID, c.SellerID)]; ok {
		merged := *existing
		merged.LastListingID = c.LastListingID
		merged.LastExchangeID = c.LastExchangeID
		merged.Touch()
		return &merged, nil
	}
	return c, nil
}

func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return trueque.ErrTransactionFailed
	}
	t.done = true
	defer func() { <-t.store.settleLock }()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Validate before mutating so a failed commit leaves no partial state.
	for memberID := range t.deltas {
		if _, ok := t.store.members[memberID]; !ok {
			return trueque.ErrMemberNotFound
		}
	}
	for _, r := range t.exchanges {
		if _, exists := t.store.exchanges[r.ID.String()]; exists {
			return trueque.ErrAlreadyExists
		}
		if r.IdempotencyKey != "" {
			if _, exists := t.store.idempotencyKeys[r.IdempotencyKey]; exists {
				return trueque.ErrAlreadyExists
			}
		}
	}

	for memberID, delta := range t.deltas {
		t.store.members[memberID].ApplyDelta(delta)
	}
	for _, r := range t.exchanges {
		if err := t.store.createExchangeLocked(r); err != nil {
			return err
		}
	}
	for _, c := range t.convs {
		key := conversationKey(c.BuyerID, c.SellerID)
		if existing, ok := t.store.conversations[key]; ok {
			existing.LastListingID = c.LastListingID
			existing.LastExchangeID = c.LastExchangeID
			existing.Touch()
		} else {
			t.store.conversations[key] = c
		}
	}
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil // Commit already settled the transaction
	}
	t.done = true
	<-t.store.settleLock

	t.deltas = nil
	t.exchanges = nil
	t.convs = nil
	return nil
}
