package trueque

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/plugin"
	"github.com/xraph/trueque/store"
	"github.com/xraph/trueque/types"
)

// Engine is the community credit ledger: member balances, price-band
// matching, and atomic listing settlement.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Background workers
	notifyBuffer chan *exchange.SettlementEvent
	stopChan     chan struct{}
	wg           sync.WaitGroup

	// Configuration
	defaultMargin float64
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		notifyBuffer:  make(chan *exchange.SettlementEvent, 1024),
		stopChan:      make(chan struct{}),
		defaultMargin: 0.2,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithDefaultMargin sets the matching band width used when a query does
// not override it. 0.2 means ±20% around the reference price.
func WithDefaultMargin(margin float64) Option {
	return func(e *Engine) {
		if margin > 0 {
			e.defaultMargin = margin
		}
	}
}

// WithNotifyBuffer sets the conversation notification buffer capacity.
func WithNotifyBuffer(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.notifyBuffer = make(chan *exchange.SettlementEvent, size)
		}
	}
}

// Plugins exposes the plugin registry, mainly for extensions that need to
// register hooks after construction.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store exposes the underlying store for collaborators that own entities
// the engine only reads, such as the listing catalog.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.notifyWorker(ctx)

	e.logger.Info("trueque engine started",
		"default_margin", e.defaultMargin,
		"notify_buffer", cap(e.notifyBuffer),
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Member Management
// ──────────────────────────────────────────────────

// CreateMember registers a member with a zero balance. A zero limit is
// replaced by the community default.
func (e *Engine) CreateMember(ctx context.Context, m *member.Member) error {
	if m == nil || m.ID == 0 {
		return ErrInvalidInput
	}
	m.Entity = types.NewEntity()
	m.Balance = 0
	if m.Limit == 0 {
		m.Limit = types.DefaultCreditLimit()
	}

	if err := e.store.CreateMember(ctx, m); err != nil {
		return err
	}

	e.plugins.EmitMemberCreated(ctx, m)
	return nil
}

// GetMember retrieves a member by ID.
func (e *Engine) GetMember(ctx context.Context, memberID int64) (*member.Member, error) {
	return e.store.GetMember(ctx, memberID)
}

// ListMembers lists members ordered by ID.
func (e *Engine) ListMembers(ctx context.Context, opts member.ListOpts) ([]*member.Member, error) {
	return e.store.ListMembers(ctx, opts)
}

// UpdateMember applies an explicit-field patch to a member. Balance is
// not patchable; it only moves through exchanges and settlements.
func (e *Engine) UpdateMember(ctx context.Context, memberID int64, patch member.Patch) (*member.Member, error) {
	m, err := e.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if patch.IsZero() {
		return m, nil
	}

	patch.Apply(m)
	if err := e.store.UpdateMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// AdjustBalance applies a signed manual adjustment to a member's balance
// inside a settlement unit of work, honoring the credit limit.
func (e *Engine) AdjustBalance(ctx context.Context, memberID int64, delta types.Credits) (*member.Member, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	m, err := tx.MemberForUpdate(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !m.CanApply(delta) {
		e.plugins.EmitLimitExceeded(ctx, memberID, int64(delta), int64(m.Ceiling()))
		return nil, ErrLimitExceeded
	}
	if err := tx.UpdateBalance(ctx, memberID, delta); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	m.ApplyDelta(delta)
	return m, nil
}

// ──────────────────────────────────────────────────
// Exchange Management
// ──────────────────────────────────────────────────

// CreateExchange records a manual exchange between two members and applies
// its signed amount to the initiator's balance. The record starts pending;
// the counterparty's balance is untouched until community practice settles
// it out of band.
func (e *Engine) CreateExchange(ctx context.Context, r *exchange.Record) error {
	if r == nil || r.InitiatorID == 0 || r.CounterpartyID == 0 {
		return ErrInvalidInput
	}

	counterparty, err := e.store.GetMember(ctx, r.CounterpartyID)
	if err != nil {
		return err
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	initiator, err := tx.MemberForUpdate(ctx, r.InitiatorID)
	if err != nil {
		return err
	}
	if !initiator.CanApply(r.Amount) {
		e.plugins.EmitLimitExceeded(ctx, initiator.ID, int64(r.Amount), int64(initiator.Ceiling()))
		return ErrLimitExceeded
	}

	if r.ID.IsNil() {
		r.ID = id.NewExchangeID()
	}
	r.Entity = types.NewEntity()
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = exchange.StatusPending
	}
	r.CounterpartyName = counterparty.Name

	if err := tx.UpdateBalance(ctx, r.InitiatorID, r.Amount); err != nil {
		return err
	}
	if err := tx.CreateExchange(ctx, r); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	e.plugins.EmitExchangeCreated(ctx, r)
	return nil
}

// GetExchange retrieves an exchange record by ID.
func (e *Engine) GetExchange(ctx context.Context, exchangeID id.ExchangeID) (*exchange.Record, error) {
	return e.store.GetExchange(ctx, exchangeID)
}

// ExchangesFor returns a member's exchange history, newest first.
func (e *Engine) ExchangesFor(ctx context.Context, memberID int64, opts exchange.ListOpts) ([]*exchange.Record, error) {
	if _, err := e.store.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return e.store.ListExchangesFor(ctx, memberID, opts)
}

// ConfirmExchange transitions a pending exchange to confirmed.
func (e *Engine) ConfirmExchange(ctx context.Context, exchangeID id.ExchangeID) (*exchange.Record, error) {
	r, err := e.store.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}

	already := r.Status == exchange.StatusConfirmed
	if err := r.Confirm(); err != nil {
		return nil, err
	}
	if already {
		return r, nil
	}

	if err := e.store.UpdateExchange(ctx, r); err != nil {
		return nil, err
	}

	e.plugins.EmitExchangeConfirmed(ctx, r)
	return r, nil
}

// CancelExchange transitions a pending exchange to cancelled. The
// initiator's balance keeps the adjustment made at creation; reversal is
// a deliberate follow-up exchange, not an implicit refund.
func (e *Engine) CancelExchange(ctx context.Context, exchangeID id.ExchangeID) (*exchange.Record, error) {
	r, err := e.store.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}

	already := r.Status == exchange.StatusCancelled
	if err := r.Cancel(); err != nil {
		return nil, err
	}
	if already {
		return r, nil
	}

	if err := e.store.UpdateExchange(ctx, r); err != nil {
		return nil, err
	}

	e.plugins.EmitExchangeCancelled(ctx, r)
	return r, nil
}

// ──────────────────────────────────────────────────
// Conversation notifications
// ──────────────────────────────────────────────────

// notifyWorker drains settlement events to plugins. Delivery is
// best-effort: settlement never waits on it.
func (e *Engine) notifyWorker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopChan:
			// Drain what is already buffered, then exit.
			for {
				select {
				case event := <-e.notifyBuffer:
					e.plugins.EmitConversationLinked(ctx, event)
				default:
					return
				}
			}

		case event := <-e.notifyBuffer:
			e.plugins.EmitConversationLinked(ctx, event)
		}
	}
}

// queueConversationNotify stamps the conversation into a settlement event
// and enqueues it without blocking.
func (e *Engine) queueConversationNotify(conv *exchange.Conversation) {
	event := exchange.NewSettlementEvent(conv)
	select {
	case e.notifyBuffer <- event:
	default:
		e.logger.Warn("settlement notification dropped",
			"event_id", event.ID.String(),
			"conversation_id", conv.ID.String(),
			"buyer_id", conv.BuyerID,
			"seller_id", conv.SellerID,
		)
	}
}
