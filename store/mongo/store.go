// Package mongo implements the Trueque store on MongoDB. The settlement
// unit of work runs inside a driver session transaction; the balance debit
// is a conditional update so the credit limit holds even under write
// conflicts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/trueque"
	"github.com/xraph/trueque/exchange"
	"github.com/xraph/trueque/id"
	"github.com/xraph/trueque/listing"
	"github.com/xraph/trueque/member"
	truequestore "github.com/xraph/trueque/store"
	"github.com/xraph/trueque/types"
)

// Collection name constants.
const (
	colMembers       = "trueque_members"
	colListings      = "trueque_listings"
	colExchanges     = "trueque_exchanges"
	colConversations = "trueque_conversations"
)

// compile-time interface check
var _ truequestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and selects the given database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("trueque/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // already failing
		return nil, fmt.Errorf("trueque/mongo: ping: %w", err)
	}
	return NewWithClient(client, database), nil
}

// NewWithClient wraps an existing client, e.g. one shared with the catalog.
func NewWithClient(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// Migrate creates indexes for all trueque collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("trueque/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Member Store ====================

func (s *Store) CreateMember(ctx context.Context, m *member.Member) error {
	_, err := s.db.Collection(colMembers).InsertOne(ctx, toMemberModel(m))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trueque.ErrAlreadyExists
		}
		return fmt.Errorf("trueque/mongo: create member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, memberID int64) (*member.Member, error) {
	var m memberModel
	err := s.db.Collection(colMembers).FindOne(ctx, bson.M{"_id": memberID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trueque.ErrMemberNotFound
		}
		return nil, fmt.Errorf("trueque/mongo: get member: %w", err)
	}
	return fromMemberModel(&m), nil
}

func (s *Store) ListMembers(ctx context.Context, opts member.ListOpts) ([]*member.Member, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colMembers).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("trueque/mongo: list members: %w", err)
	}
	defer cur.Close(ctx) //nolint:errcheck // read-only cursor

	result := make([]*member.Member, 0)
	for cur.Next(ctx) {
		var m memberModel
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		result = append(result, fromMemberModel(&m))
	}
	return result, cur.Err()
}

func (s *Store) UpdateMember(ctx context.Context, m *member.Member) error {
	model := toMemberModel(m)
	res, err := s.db.Collection(colMembers).ReplaceOne(ctx, bson.M{"_id": model.ID}, model)
	if err != nil {
		return fmt.Errorf("trueque/mongo: update member: %w", err)
	}
	if res.MatchedCount == 0 {
		return trueque.ErrMemberNotFound
	}
	return nil
}

// ==================== Listing Store ====================

func (s *Store) CreateListing(ctx context.Context, l *listing.Listing) error {
	if l.Status == "" {
		l.Status = listing.StatusActive
	}
	_, err := s.db.Collection(colListings).InsertOne(ctx, toListingModel(l))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trueque.ErrAlreadyExists
		}
		return fmt.Errorf("trueque/mongo: create listing: %w", err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, listingID int64) (*listing.Listing, error) {
	var m listingModel
	err := s.db.Collection(colListings).FindOne(ctx, bson.M{"_id": listingID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trueque.ErrListingNotFound
		}
		return nil, fmt.Errorf("trueque/mongo: get listing: %w", err)
	}
	return fromListingModel(&m), nil
}

func (s *Store) FindListingsByPriceBand(ctx context.Context, min, max types.Credits) ([]*listing.Listing, error) {
	filter := bson.M{
		"status": string(listing.StatusActive),
		"price":  bson.M{"$gte": int64(min), "$lte": int64(max)},
	}
	return s.findListings(ctx, filter)
}

func (s *Store) FindListingsBySeller(ctx context.Context, sellerID int64) ([]*listing.Listing, error) {
	return s.findListings(ctx, bson.M{"seller_id": sellerID})
}

func (s *Store) findListings(ctx context.Context, filter bson.M) ([]*listing.Listing, error) {
	cur, err := s.db.Collection(colListings).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("trueque/mongo: find listings: %w", err)
	}
	defer cur.Close(ctx) //nolint:errcheck // read-only cursor

	result := make([]*listing.Listing, 0)
	for cur.Next(ctx) {
		var m listingModel
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		result = append(result, fromListingModel(&m))
	}
	return result, cur.Err()
}

// ==================== Exchange Store ====================

func (s *Store) CreateExchange(ctx context.Context, r *exchange.Record) error {
	_, err := s.db.Collection(colExchanges).InsertOne(ctx, toExchangeModel(r))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trueque.ErrAlreadyExists
		}
		return fmt.Errorf("trueque/mongo: create exchange: %w", err)
	}
	return nil
}

func (s *Store) GetExchange(ctx context.Context, exchangeID id.ExchangeID) (*exchange.Record, error) {
	var m exchangeModel
	err := s.db.Collection(colExchanges).FindOne(ctx, bson.M{"_id": exchangeID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trueque.ErrExchangeNotFound
		}
		return nil, fmt.Errorf("trueque/mongo: get exchange: %w", err)
	}
	return fromExchangeModel(&m)
}

func (s *Store) ListExchangesFor(ctx context.Context, memberID int64, opts exchange.ListOpts) ([]*exchange.Record, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"initiator_id": memberID},
		bson.M{"counterparty_id": memberID},
	}}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "occurred_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colExchanges).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("trueque/mongo: list exchanges: %w", err)
	}
	defer cur.Close(ctx) //nolint:errcheck // read-only cursor

	result := make([]*exchange.Record, 0)
	for cur.Next(ctx) {
		var m exchangeModel
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		r, err := fromExchangeModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, cur.Err()
}

func (s *Store) UpdateExchange(ctx context.Context, r *exchange.Record) error {
	res, err := s.db.Collection(colExchanges).UpdateOne(ctx,
		bson.M{"_id": r.ID.String()},
		bson.M{"$set": bson.M{
			"status":     string(r.Status),
			"updated_at": r.UpdatedAt,
		}})
	if err != nil {
		return fmt.Errorf("trueque/mongo: update exchange: %w", err)
	}
	if res.MatchedCount == 0 {
		return trueque.ErrExchangeNotFound
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, buyerID, sellerID int64) (*exchange.Conversation, error) {
	var m conversationModel
	err := s.db.Collection(colConversations).FindOne(ctx,
		bson.M{"buyer_id": buyerID, "seller_id": sellerID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trueque.ErrNotFound
		}
		return nil, fmt.Errorf("trueque/mongo: get conversation: %w", err)
	}
	return fromConversationModel(&m)
}

// ==================== Settlement unit of work ====================

// Begin starts a session transaction. Write conflicts surface as
// transient transaction errors, mapped to ErrSettlementTimeout so callers
// retry the checkout like a lock timeout.
func (s *Store) Begin(ctx context.Context) (truequestore.Tx, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("trueque/mongo: start session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("trueque/mongo: start transaction: %w", err)
	}
	return &mongoTx{store: s, sess: sess}, nil
}

type mongoTx struct {
	store *Store
	sess  *mongo.Session
	done  bool
}

func (t *mongoTx) ctx(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, t.sess)
}

func (t *mongoTx) MemberForUpdate(ctx context.Context, memberID int64) (*member.Member, error) {
	return t.store.GetMember(t.ctx(ctx), memberID)
}

// UpdateBalance applies the delta only while the resulting balance stays
// at or above -credit_limit, so the invariant holds even if the engine's
// re-check raced another writer.
func (t *mongoTx) UpdateBalance(ctx context.Context, memberID int64, delta types.Credits) error {
	filter := bson.M{
		"_id": memberID,
		"$expr": bson.M{"$gte": bson.A{
			bson.M{"$add": bson.A{"$balance", int64(delta)}},
			bson.M{"$multiply": bson.A{-1, "$credit_limit"}},
		}},
	}
	update := bson.M{
		"$inc": bson.M{"balance": int64(delta)},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	res := t.store.db.Collection(colMembers).FindOneAndUpdate(t.ctx(ctx), filter, update)
	if err := res.Err(); err != nil {
		if isNoDocuments(err) {
			// Missing member or refused debit; disambiguate for the caller.
			var m memberModel
			lookErr := t.store.db.Collection(colMembers).
				FindOne(t.ctx(ctx), bson.M{"_id": memberID}).Decode(&m)
			if isNoDocuments(lookErr) {
				return trueque.ErrMemberNotFound
			}
			return trueque.ErrLimitExceeded
		}
		return mapTxError(err)
	}
	return nil
}

func (t *mongoTx) CreateExchange(ctx context.Context, r *exchange.Record) error {
	_, err := t.store.db.Collection(colExchanges).InsertOne(t.ctx(ctx), toExchangeModel(r))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trueque.ErrAlreadyExists
		}
		return mapTxError(err)
	}
	return nil
}

func (t *mongoTx) UpsertConversation(ctx context.Context, c *exchange.Conversation) (*exchange.Conversation, error) {
	filter := bson.M{"buyer_id": c.BuyerID, "seller_id": c.SellerID}
	update := bson.M{
		"$set": bson.M{
			"last_listing_id":  c.LastListingID,
			"last_exchange_id": c.LastExchangeID.String(),
			"updated_at":       time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"_id":        c.ID.String(),
			"buyer_id":   c.BuyerID,
			"seller_id":  c.SellerID,
			"created_at": c.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var m conversationModel
	err := t.store.db.Collection(colConversations).
		FindOneAndUpdate(t.ctx(ctx), filter, update, opts).Decode(&m)
	if err != nil {
		return nil, mapTxError(err)
	}
	return fromConversationModel(&m)
}

func (t *mongoTx) Commit(ctx context.Context) error {
	if t.done {
		return trueque.ErrTransactionFailed
	}
	t.done = true
	defer t.sess.EndSession(ctx)

	if err := t.sess.CommitTransaction(t.ctx(ctx)); err != nil {
		return mapTxError(err)
	}
	return nil
}

func (t *mongoTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil // Commit already settled the transaction
	}
	t.done = true
	defer t.sess.EndSession(ctx)

	return t.sess.AbortTransaction(t.ctx(ctx))
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// mapTxError converts transient transaction conflicts into the retryable
// settlement timeout sentinel.
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) && srvErr.HasErrorLabel("TransientTransactionError") {
		return trueque.ErrSettlementTimeout
	}
	var commitErr mongo.CommandError
	if errors.As(err, &commitErr) && commitErr.HasErrorLabel("UnknownTransactionCommitResult") {
		return trueque.ErrTransactionFailed
	}
	return err
}

// migrationIndexes returns the index definitions for all trueque collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colListings: {
			{Keys: bson.D{{Key: "seller_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "price", Value: 1}}},
		},
		colExchanges: {
			{Keys: bson.D{{Key: "initiator_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
			{Keys: bson.D{{Key: "counterparty_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
			{
				Keys: bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$gt": ""}}),
			},
		},
		colConversations: {
			{
				Keys:    bson.D{{Key: "buyer_id", Value: 1}, {Key: "seller_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
