// Package postgres implements the Trueque store on PostgreSQL via pgx.
// Settlement transactions take row locks with SELECT ... FOR UPDATE and a
// local lock_timeout so contended checkouts fail fast instead of queueing.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/trueque"
	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	"github.com/xraph/trueque/store"
	"github.com/xraph/trueque/types"
)

const defaultLockTimeout = 3 * time.Second

// SQLSTATE codes the settlement path cares about.
const (
	pgLockNotAvailable = "55P03"
	pgUniqueViolation  = "23505"
	pgCheckViolation   = "23514"
)

type Store struct {
	pool        *pgxpool.Pool
	logger      *slog.Logger
	lockTimeout time.Duration
}

type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithLockTimeout sets how long settlement row locks wait before the
// transaction aborts with a settlement timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// New connects a pooled store to the given DSN.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return NewWithPool(pool, opts...), nil
}

// NewWithPool wraps an existing pool, e.g. one shared with the catalog.
func NewWithPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		logger:      slog.Default(),
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mapError converts driver errors to the package's sentinel taxonomy.
func mapError(err, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return trueque.ErrSettlementTimeout
		case pgUniqueViolation:
			return trueque.ErrAlreadyExists
		case pgCheckViolation:
			return trueque.ErrLimitExceeded
		}
	}
	return err
}

// ──────────────────────────────────────────────────
// Member methods
// ──────────────────────────────────────────────────

const memberColumns = `id, name, contact, balance, credit_limit, asking_price, metadata, created_at, updated_at`

func scanMember(row pgx.Row) (*member.Member, error) {
	var r memberRow
	err := row.Scan(&r.ID, &r.Name, &r.Contact, &r.Balance, &r.CreditLimit,
		&r.AskingPrice, &r.Metadata, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r.toDomain()
}

func (s *Store) CreateMember(ctx context.Context, m *member.Member) error {
	meta, err := encodeMetadata(m.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO trueque_members (id, name, contact, balance, credit_limit, asking_price, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.Name, m.Contact, int64(m.Balance), int64(m.Limit),
		int64(m.AskingPrice), meta, m.CreatedAt, m.UpdatedAt)
	return mapError(err, trueque.ErrMemberNotFound)
}

func (s *Store) GetMember(ctx context.Context, memberID int64) (*member.Member, error) {
	m, err := scanMember(s.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM trueque_members WHERE id = $1`, memberID))
	if err != nil {
		return nil, mapError(err, trueque.ErrMemberNotFound)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, opts member.ListOpts) ([]*member.Member, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = -1 // LIMIT ALL
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+memberColumns+` FROM trueque_members
ORDER BY id
LIMIT NULLIF($1, -1) OFFSET $2`, limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*member.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) UpdateMember(ctx context.Context, m *member.Member) error {
	meta, err := encodeMetadata(m.Metadata)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE trueque_members
SET name = $2, contact = $3, credit_limit = $4, asking_price = $5, metadata = $6, updated_at = $7
WHERE id = $1`,
		m.ID, m.Name, m.Contact, int64(m.Limit), int64(m.AskingPrice), meta, m.UpdatedAt)
	if err != nil {
		return mapError(err, trueque.ErrMemberNotFound)
	}
	if tag.RowsAffected() == 0 {
		return trueque.ErrMemberNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Listing methods
// ──────────────────────────────────────────────────

const listingColumns = `id, seller_id, title, description, price, status, metadata, created_at, updated_at`

func scanListing(row pgx.Row) (*listing.Listing, error) {
	var r listingRow
	err := row.Scan(&r.ID, &r.SellerID, &r.Title, &r.Description, &r.Price,
		&r.Status, &r.Metadata, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r.toDomain()
}

func (s *Store) CreateListing(ctx context.Context, l *listing.Listing) error {
	meta, err := encodeMetadata(l.Metadata)
	if err != nil {
		return err
	}
	if l.Status == "" {
		l.Status = listing.StatusActive
	}

	if l.ID != 0 {
		_, err = s.pool.Exec(ctx, `
INSERT INTO trueque_listings (id, seller_id, title, description, price, status, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			l.ID, l.SellerID, l.Title, l.Description, int64(l.Price), string(l.Status),
			meta, l.CreatedAt, l.UpdatedAt)
		return mapError(err, trueque.ErrListingNotFound)
	}

	err = s.pool.QueryRow(ctx, `
INSERT INTO trueque_listings (seller_id, title, description, price, status, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		l.SellerID, l.Title, l.Description, int64(l.Price), string(l.Status),
		meta, l.CreatedAt, l.UpdatedAt).Scan(&l.ID)
	return mapError(err, trueque.ErrListingNotFound)
}

func (s *Store) GetListing(ctx context.Context, listingID int64) (*listing.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM trueque_listings WHERE id = $1`, listingID))
	if err != nil {
		return nil, mapError(err, trueque.ErrListingNotFound)
	}
	return l, nil
}

func (s *Store) FindListingsByPriceBand(ctx context.Context, min, max types.Credits) ([]*listing.Listing, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+listingColumns+` FROM trueque_listings
WHERE status = $1 AND price BETWEEN $2 AND $3
ORDER BY id`, string(listing.StatusActive), int64(min), int64(max))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectListings(rows)
}

func (s *Store) FindListingsBySeller(ctx context.Context, sellerID int64) ([]*listing.Listing, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+listingColumns+` FROM trueque_listings
WHERE seller_id = $1
ORDER BY id`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectListings(rows)
}

func collectListings(rows pgx.Rows) ([]*listing.Listing, error) {
	result := make([]*listing.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// ──────────────────────────────────────────────────
// Exchange methods
// ──────────────────────────────────────────────────

const exchangeColumns = `id, initiator_id, counterparty_id, counterparty_name, description,
amount, listing_id, status, idempotency_key, occurred_at, metadata, created_at, updated_at`

func scanExchange(row pgx.Row) (*exchange.Record, error) {
	var r exchangeRow
	err := row.Scan(&r.ID, &r.InitiatorID, &r.CounterpartyID, &r.CounterpartyName,
		&r.Description, &r.Amount, &r.ListingID, &r.Status, &r.IdempotencyKey,
		&r.OccurredAt, &r.Metadata, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r.toDomain()
}

const insertExchangeSQL = `
INSERT INTO trueque_exchanges (id, initiator_id, counterparty_id, counterparty_name, description,
    amount, listing_id, status, idempotency_key, occurred_at, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func insertExchange(ctx context.Context, q interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}, r *exchange.Record,
) error {
	meta, err := encodeMetadata(r.Metadata)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, insertExchangeSQL,
		r.ID, r.InitiatorID, r.CounterpartyID, r.CounterpartyName, r.Description,
		int64(r.Amount), r.ListingID, string(r.Status), r.IdempotencyKey,
		r.OccurredAt, meta, r.CreatedAt, r.UpdatedAt)
	return mapError(err, trueque.ErrExchangeNotFound)
}

func (s *Store) CreateExchange(ctx context.Context, r *exchange.Record) error {
	return insertExchange(ctx, s.pool, r)
}

func (s *Store) GetExchange(ctx context.Context, exchangeID id.ExchangeID) (*exchange.Record, error) {
	r, err := scanExchange(s.pool.QueryRow(ctx,
		`SELECT `+exchangeColumns+` FROM trueque_exchanges WHERE id = $1`, exchangeID))
	if err != nil {
		return nil, mapError(err, trueque.ErrExchangeNotFound)
	}
	return r, nil
}

func (s *Store) ListExchangesFor(ctx context.Context, memberID int64, opts exchange.ListOpts) ([]*exchange.Record, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = -1
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+exchangeColumns+` FROM trueque_exchanges
WHERE (initiator_id = $1 OR counterparty_id = $1)
  AND ($2 = '' OR status = $2)
ORDER BY occurred_at DESC, id DESC
LIMIT NULLIF($3, -1) OFFSET $4`, memberID, string(opts.Status), limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*exchange.Record, 0)
	for rows.Next() {
		r, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) UpdateExchange(ctx context.Context, r *exchange.Record) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE trueque_exchanges
SET status = $2, updated_at = $3
WHERE id = $1`, r.ID, string(r.Status), r.UpdatedAt)
	if err != nil {
		return mapError(err, trueque.ErrExchangeNotFound)
	}
	if tag.RowsAffected() == 0 {
		return trueque.ErrExchangeNotFound
	}
	return nil
}

const conversationColumns = `id, buyer_id, seller_id, last_listing_id, last_exchange_id, created_at, updated_at`

func scanConversation(row pgx.Row) (*exchange.Conversation, error) {
	var r conversationRow
	err := row.Scan(&r.ID, &r.BuyerID, &r.SellerID, &r.LastListingID,
		&r.LastExchangeID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

func (s *Store) GetConversation(ctx context.Context, buyerID, sellerID int64) (*exchange.Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, `
SELECT `+conversationColumns+` FROM trueque_conversations
WHERE buyer_id = $1 AND seller_id = $2`, buyerID, sellerID))
	if err != nil {
		return nil, mapError(err, trueque.ErrNotFound)
	}
	return c, nil
}

// ──────────────────────────────────────────────────
// Settlement unit of work
// ──────────────────────────────────────────────────

// Begin opens a settlement transaction with a local lock_timeout so a
// contended row lock surfaces as ErrSettlementTimeout instead of queueing
// indefinitely.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err, trueque.ErrStoreNotReady)
	}

	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // already failing
		return nil, mapError(err, trueque.ErrStoreNotReady)
	}

	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) MemberForUpdate(ctx context.Context, memberID int64) (*member.Member, error) {
	m, err := scanMember(t.tx.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM trueque_members WHERE id = $1 FOR UPDATE`, memberID))
	if err != nil {
		return nil, mapError(err, trueque.ErrMemberNotFound)
	}
	return m, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, memberID int64, delta types.Credits) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE trueque_members
SET balance = balance + $1, updated_at = NOW()
WHERE id = $2`, int64(delta), memberID)
	if err != nil {
		return mapError(err, trueque.ErrMemberNotFound)
	}
	if tag.RowsAffected() == 0 {
		return trueque.ErrMemberNotFound
	}
	return nil
}

func (t *pgTx) CreateExchange(ctx context.Context, r *exchange.Record) error {
	return insertExchange(ctx, t.tx, r)
}

func (t *pgTx) UpsertConversation(ctx context.Context, c *exchange.Conversation) (*exchange.Conversation, error) {
	stored, err := scanConversation(t.tx.QueryRow(ctx, `
INSERT INTO trueque_conversations (id, buyer_id, seller_id, last_listing_id, last_exchange_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (buyer_id, seller_id) DO UPDATE
SET last_listing_id = EXCLUDED.last_listing_id,
    last_exchange_id = EXCLUDED.last_exchange_id,
    updated_at = NOW()
RETURNING `+conversationColumns,
		c.ID, c.BuyerID, c.SellerID, c.LastListingID, c.LastExchangeID,
		c.CreatedAt, c.UpdatedAt))
	if err != nil {
		return nil, mapError(err, trueque.ErrNotFound)
	}
	return stored, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return mapError(err, trueque.ErrTransactionFailed)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// ──────────────────────────────────────────────────
// Store management
// ──────────────────────────────────────────────────

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
