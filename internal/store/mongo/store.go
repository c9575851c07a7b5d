package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// Collection name constants.
const (
	colUsers         = "users"
	colTransactions  = "credit_transactions"
	colDocuments     = "code_documents"
	colSearchQueries = "search_queries"
	colOutbox        = "outbox"
)

// logAppendAttempts bounds retries of the transaction log insert after a balance update.
const logAppendAttempts = 3

var _ store.Store = (*Store)(nil)

// Store implements store.Store on MongoDB. Balance changes use a single
// FindOneAndUpdate with a $gte predicate; the log insert is retried and, if it
// still fails, the balance change is reverted before the error is returned.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies connectivity.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo URI is empty")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("bearcode/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("bearcode/mongo: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("bearcode/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// HealthPing checks database connectivity.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the database. Used by tests.
func (s *Store) Drop(ctx context.Context) error { return s.db.Drop(ctx) }

func (s *Store) Accounts() store.Accounts           { return (*accounts)(s) }
func (s *Store) Transactions() store.Transactions   { return (*transactions)(s) }
func (s *Store) Documents() store.Documents         { return (*documents)(s) }
func (s *Store) SearchQueries() store.SearchQueries { return (*searchQueries)(s) }
func (s *Store) Outbox() store.Outbox               { return (*outbox)(s) }

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// ==================== Accounts ====================

type accounts Store

func (a *accounts) Create(ctx context.Context, userID string) (*model.Account, error) {
	t := now()
	m := &accountModel{ID: userID, Active: true, CreatedAt: t, UpdatedAt: t}
	if _, err := (*Store)(a).col(colUsers).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, model.NewConflictError("userId", "account already exists")
		}
		return nil, fmt.Errorf("bearcode/mongo: create account: %w", err)
	}
	return fromAccountModel(m), nil
}

func (a *accounts) Get(ctx context.Context, userID string) (*model.Account, error) {
	var m accountModel
	err := (*Store)(a).col(colUsers).FindOne(ctx, bson.M{"_id": userID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, model.NewNotFoundError("account", userID)
		}
		return nil, fmt.Errorf("bearcode/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (a *accounts) Apply(ctx context.Context, mut model.Mutation) (*model.TransactionRecord, error) {
	s := (*Store)(a)
	users := s.col(colUsers)

	filter := bson.M{"_id": mut.UserID}
	if mut.Kind == model.KindUsage {
		filter["active"] = true
		filter["balance"] = bson.M{"$gte": mut.Amount}
	}
	t := now()
	update := bson.M{
		"$inc": bson.M{"balance": mut.Signed(), "version": int64(1)},
		"$set": bson.M{"updated_at": t},
	}
	var after accountModel
	err := users.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&after)
	if err != nil {
		if isNoDocuments(err) {
			return nil, a.explainRejected(ctx, mut)
		}
		return nil, fmt.Errorf("bearcode/mongo: apply: %w", err)
	}

	rec := &model.TransactionRecord{
		ID:            uuid.New().String(),
		UserID:        mut.UserID,
		Amount:        mut.Signed(),
		Kind:          mut.Kind,
		Operation:     mut.Operation,
		Description:   mut.Description,
		BalanceBefore: after.Balance - mut.Signed(),
		BalanceAfter:  after.Balance,
		Metadata:      mut.Metadata,
		Sequence:      after.Version,
		CreatedAt:     t,
	}

	insertErr := appendLog(ctx, logAppendAttempts, func(ctx context.Context) error {
		_, err := s.col(colTransactions).InsertOne(ctx, toTransactionModel(rec))
		return err
	})
	if insertErr == nil {
		return rec, nil
	}

	// Revert the balance change. The version still advances so sequences stay monotonic.
	revert := bson.M{
		"$inc": bson.M{"balance": -mut.Signed(), "version": int64(1)},
		"$set": bson.M{"updated_at": now()},
	}
	revertFilter := bson.M{"_id": mut.UserID}
	if mut.Signed() > 0 {
		revertFilter["balance"] = bson.M{"$gte": mut.Signed()}
	}
	res, err := users.UpdateOne(context.WithoutCancel(ctx), revertFilter, revert)
	if err != nil || res.MatchedCount == 0 {
		if err == nil {
			err = errors.New("balance no longer covers the reverted amount")
		}
		charged := int64(0)
		if mut.Kind == model.KindUsage {
			charged = mut.Amount
		}
		return nil, &model.LedgerInconsistencyError{
			UserID:  mut.UserID,
			Charged: charged,
			Detail:  "transaction log append failed and balance revert failed",
			Cause:   errors.Join(insertErr, err),
		}
	}
	return nil, fmt.Errorf("bearcode/mongo: append transaction log: %w", insertErr)
}

// appendLog runs insert up to attempts times. A duplicate key means an earlier
// attempt committed even though the client saw an error: the record id is fresh
// and its sequence comes from this mutation's version bump, so no other entry
// can hold either key.
func appendLog(ctx context.Context, attempts int, insert func(context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = insert(ctx); err == nil || mongo.IsDuplicateKeyError(err) {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return err
}

func (a *accounts) explainRejected(ctx context.Context, mut model.Mutation) error {
	acc, err := a.Get(ctx, mut.UserID)
	if err != nil {
		return err
	}
	if !acc.Active {
		return model.NewNotFoundError("account", mut.UserID+" is inactive")
	}
	return &model.InsufficientCreditsError{Required: mut.Amount, Available: acc.Balance}
}

func (a *accounts) Deactivate(ctx context.Context, userID string) error {
	res, err := (*Store)(a).col(colUsers).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"active": false, "updated_at": now()}})
	if err != nil {
		return fmt.Errorf("bearcode/mongo: deactivate: %w", err)
	}
	if res.MatchedCount == 0 {
		return model.NewNotFoundError("account", userID)
	}
	return nil
}

// ==================== Transactions ====================

type transactions Store

func (t *transactions) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.TransactionRecord, int64, error) {
	col := (*Store)(t).col(colTransactions)
	filter := bson.M{"user_id": userID}
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: count transactions: %w", err)
	}
	cur, err := col.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "sequence", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: list transactions: %w", err)
	}
	var models []transactionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: list transactions: %w", err)
	}
	out := make([]*model.TransactionRecord, len(models))
	for i := range models {
		out[i] = fromTransactionModel(&models[i])
	}
	return out, total, nil
}

func (t *transactions) SumUsage(ctx context.Context, userID string) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID, "type": string(model.KindUsage)}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": bson.M{"$abs": "$amount"}}}}},
	}
	cur, err := (*Store)(t).col(colTransactions).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("bearcode/mongo: sum usage: %w", err)
	}
	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("bearcode/mongo: sum usage: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// ==================== Documents ====================

type documents Store

func (d *documents) Create(ctx context.Context, rec *model.CodeRecord) (*model.CodeRecord, error) {
	out := *rec
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	t := now()
	out.CreatedAt, out.UpdatedAt = t, t
	if _, err := (*Store)(d).col(colDocuments).InsertOne(ctx, toDocumentModel(&out)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, model.NewConflictError("documentId", out.ID)
		}
		return nil, fmt.Errorf("bearcode/mongo: create document: %w", err)
	}
	return &out, nil
}

func (d *documents) Get(ctx context.Context, userID, documentID string) (*model.CodeRecord, error) {
	var m documentModel
	err := (*Store)(d).col(colDocuments).FindOne(ctx, bson.M{"_id": documentID, "user_id": userID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, model.NewNotFoundError("document", documentID)
		}
		return nil, fmt.Errorf("bearcode/mongo: get document: %w", err)
	}
	return fromDocumentModel(&m), nil
}

func (d *documents) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.CodeRecord, int64, error) {
	col := (*Store)(d).col(colDocuments)
	filter := bson.M{"user_id": userID}
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: count documents: %w", err)
	}
	cur, err := col.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: list documents: %w", err)
	}
	var models []documentModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: list documents: %w", err)
	}
	out := make([]*model.CodeRecord, len(models))
	for i := range models {
		out[i] = fromDocumentModel(&models[i])
	}
	return out, total, nil
}

func (d *documents) Count(ctx context.Context, userID string) (int64, error) {
	return (*Store)(d).col(colDocuments).CountDocuments(ctx, bson.M{"user_id": userID})
}

func (d *documents) Delete(ctx context.Context, userID, documentID string) error {
	res, err := (*Store)(d).col(colDocuments).DeleteOne(ctx, bson.M{"_id": documentID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("bearcode/mongo: delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return model.NewNotFoundError("document", documentID)
	}
	return nil
}

// ==================== Search queries ====================

type searchQueries Store

func (q *searchQueries) Create(ctx context.Context, in *model.SearchQueryLog) (*model.SearchQueryLog, error) {
	out := *in
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = now()
	m := &searchQueryModel{
		ID:          out.ID,
		UserID:      out.UserID,
		Query:       out.Query,
		Filters:     out.Filters,
		Limit:       out.Limit,
		Results:     out.ResultCount,
		CreditsUsed: out.CreditsUsed,
		CreatedAt:   out.CreatedAt,
	}
	if _, err := (*Store)(q).col(colSearchQueries).InsertOne(ctx, m); err != nil {
		return nil, fmt.Errorf("bearcode/mongo: log search query: %w", err)
	}
	return &out, nil
}

func (q *searchQueries) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.SearchQueryLog, int64, error) {
	col := (*Store)(q).col(colSearchQueries)
	filter := bson.M{"user_id": userID}
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: count search queries: %w", err)
	}
	cur, err := col.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: list search queries: %w", err)
	}
	var models []searchQueryModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, 0, fmt.Errorf("bearcode/mongo: list search queries: %w", err)
	}
	out := make([]*model.SearchQueryLog, len(models))
	for i := range models {
		out[i] = fromSearchQueryModel(&models[i])
	}
	return out, total, nil
}

func (q *searchQueries) Count(ctx context.Context, userID string) (int64, error) {
	return (*Store)(q).col(colSearchQueries).CountDocuments(ctx, bson.M{"user_id": userID})
}

// ==================== Outbox ====================

type outbox Store

func (o *outbox) Enqueue(ctx context.Context, op, aggregateID string, payload map[string]interface{}) error {
	t := now()
	_, err := (*Store)(o).col(colOutbox).InsertOne(ctx, &outboxModel{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		Op:            op,
		Payload:       payload,
		Status:        "pending",
		NextAttemptAt: t,
		CreatedAt:     t,
	})
	if err != nil {
		return fmt.Errorf("bearcode/mongo: enqueue outbox: %w", err)
	}
	return nil
}

// Lease claims jobs one at a time; each claim is a single atomic FindOneAndUpdate.
func (o *outbox) Lease(ctx context.Context, n int, leaseFor time.Duration) ([]store.OutboxJob, error) {
	col := (*Store)(o).col(colOutbox)
	var jobs []store.OutboxJob
	for len(jobs) < n {
		t := now()
		var m outboxModel
		err := col.FindOneAndUpdate(ctx,
			bson.M{"status": "pending", "next_attempt_at": bson.M{"$lte": t}},
			bson.M{"$set": bson.M{"next_attempt_at": t.Add(leaseFor)}},
			options.FindOneAndUpdate().SetSort(bson.D{{Key: "created_at", Value: 1}}),
		).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				break
			}
			return jobs, fmt.Errorf("bearcode/mongo: lease outbox: %w", err)
		}
		jobs = append(jobs, store.OutboxJob{
			ID:          m.ID,
			Op:          m.Op,
			AggregateID: m.AggregateID,
			Payload:     normalizeMap(m.Payload),
			Attempts:    m.AttemptCount,
		})
	}
	return jobs, nil
}

func (o *outbox) MarkDone(ctx context.Context, id string) error {
	_, err := (*Store)(o).col(colOutbox).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": "done"}})
	return err
}

// MarkFailed backs off exponentially, capped at 300 seconds.
func (o *outbox) MarkFailed(ctx context.Context, id string) error {
	col := (*Store)(o).col(colOutbox)
	var m outboxModel
	err := col.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$inc": bson.M{"attempt_count": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil
		}
		return err
	}
	backoff := time.Duration(1<<uint(min(m.AttemptCount, 9))) * time.Second
	if backoff > 300*time.Second {
		backoff = 300 * time.Second
	}
	_, err = col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"next_attempt_at": now().Add(backoff)}})
	return err
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTransactions: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "sequence", Value: -1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "type", Value: 1}}},
		},
		colDocuments: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{
				Keys:    bson.D{{Key: "vector_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
		colSearchQueries: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colOutbox: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
		},
	}
}
