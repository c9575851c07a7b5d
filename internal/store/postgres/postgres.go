package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Accounts() store.Accounts           { return &accounts{db: s.db} }
func (s *pgStore) Transactions() store.Transactions   { return &transactions{db: s.db} }
func (s *pgStore) Documents() store.Documents         { return &documents{db: s.db} }
func (s *pgStore) SearchQueries() store.SearchQueries { return &searchQueries{db: s.db} }
func (s *pgStore) Outbox() store.Outbox               { return &outbox{db: s.db} }

// HealthPing implements store.HealthPinger.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *pgStore) Close() error { return s.db.Close() }

// Bootstrap verifies that Postgres is reachable and creates the schema.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return nil
	}
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return EnsureSchema(ctx, db)
}

const (
	debitAccountSQL = `
UPDATE accounts
SET balance = balance - $2, version = version + 1, update_time = now()
WHERE user_id = $1 AND active AND balance >= $2
RETURNING balance, version`

	creditAccountSQL = `
UPDATE accounts
SET balance = balance + $2, version = version + 1, update_time = now()
WHERE user_id = $1
RETURNING balance, version`

	accountStateSQL = `SELECT balance, active FROM accounts WHERE user_id = $1`

	insertTransactionSQL = `
INSERT INTO credit_transactions
    (transaction_id, user_id, amount, kind, operation, description, balance_before, balance_after, metadata, sequence, creation_time)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
)

// --- Accounts ---
type accounts struct{ db *sql.DB }

func (a *accounts) Create(ctx context.Context, userID string) (*model.Account, error) {
	out := model.Account{UserID: userID, Active: true}
	row := a.db.QueryRowContext(ctx, `
        INSERT INTO accounts (user_id, balance, active, version)
        VALUES ($1, 0, TRUE, 0)
        RETURNING creation_time, update_time
    `, userID)
	if err := row.Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, model.NewConflictError("userId", "account already exists")
		}
		return nil, err
	}
	return &out, nil
}

func (a *accounts) Get(ctx context.Context, userID string) (*model.Account, error) {
	out := model.Account{UserID: userID}
	row := a.db.QueryRowContext(ctx, `
        SELECT balance, active, version, creation_time, update_time FROM accounts WHERE user_id=$1
    `, userID)
	if err := row.Scan(&out.Balance, &out.Active, &out.Version, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, notFound(err, "account", userID)
	}
	return &out, nil
}

// Apply runs the conditional balance update and the log insert in one transaction.
func (a *accounts) Apply(ctx context.Context, m model.Mutation) (*model.TransactionRecord, error) {
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := creditAccountSQL
	if m.Kind == model.KindUsage {
		query = debitAccountSQL
	}
	var after, version int64
	if err := tx.QueryRowContext(ctx, query, m.UserID, m.Amount).Scan(&after, &version); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, a.explainRejected(ctx, tx, m)
	}

	rec := &model.TransactionRecord{
		ID:            uuid.New().String(),
		UserID:        m.UserID,
		Amount:        m.Signed(),
		Kind:          m.Kind,
		Operation:     m.Operation,
		Description:   m.Description,
		BalanceBefore: after - m.Signed(),
		BalanceAfter:  after,
		Metadata:      m.Metadata,
		Sequence:      version,
		CreatedAt:     time.Now().UTC(),
	}
	meta, err := marshalNullable(rec.Metadata)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, insertTransactionSQL,
		rec.ID, rec.UserID, rec.Amount, string(rec.Kind), nullIfEmpty(rec.Operation), rec.Description,
		rec.BalanceBefore, rec.BalanceAfter, meta, rec.Sequence, rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// explainRejected tells a missing or inactive account apart from an insufficient balance.
func (a *accounts) explainRejected(ctx context.Context, tx *sql.Tx, m model.Mutation) error {
	var balance int64
	var active bool
	if err := tx.QueryRowContext(ctx, accountStateSQL, m.UserID).Scan(&balance, &active); err != nil {
		return notFound(err, "account", m.UserID)
	}
	if !active {
		return model.NewNotFoundError("account", m.UserID+" is inactive")
	}
	return &model.InsufficientCreditsError{Required: m.Amount, Available: balance}
}

func (a *accounts) Deactivate(ctx context.Context, userID string) error {
	res, err := a.db.ExecContext(ctx, `UPDATE accounts SET active = FALSE, update_time = now() WHERE user_id=$1`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res, "account", userID)
}

// --- Transactions ---
type transactions struct{ db *sql.DB }

func (t *transactions) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.TransactionRecord, int64, error) {
	var total int64
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credit_transactions WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := t.db.QueryContext(ctx, `
        SELECT transaction_id, amount, kind, operation, description, balance_before, balance_after, metadata, sequence, creation_time
        FROM credit_transactions WHERE user_id=$1
        ORDER BY sequence DESC
        LIMIT $2 OFFSET $3
    `, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.TransactionRecord
	for rows.Next() {
		rec := &model.TransactionRecord{UserID: userID}
		var kind string
		var op sql.NullString
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.Amount, &kind, &op, &rec.Description, &rec.BalanceBefore, &rec.BalanceAfter, &meta, &rec.Sequence, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		rec.Kind = model.TransactionKind(kind)
		rec.Operation = op.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (t *transactions) SumUsage(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := t.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(ABS(amount)), 0) FROM credit_transactions WHERE user_id=$1 AND kind='usage'
    `, userID).Scan(&sum)
	return sum, err
}

// --- Documents ---
type documents struct{ db *sql.DB }

func (d *documents) Create(ctx context.Context, rec *model.CodeRecord) (*model.CodeRecord, error) {
	out := *rec
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now
	meta, err := json.Marshal(out.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = d.db.ExecContext(ctx, `
        INSERT INTO code_documents (document_id, user_id, code, language, metadata, vector_id, creation_time, update_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, out.ID, out.UserID, out.Code, out.Language, meta, nullIfEmpty(out.VectorID), out.CreatedAt, out.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.NewConflictError("documentId", out.ID)
		}
		return nil, err
	}
	return &out, nil
}

const selectDocumentColumns = `document_id, user_id, code, language, metadata, vector_id, creation_time, update_time`

func (d *documents) Get(ctx context.Context, userID, documentID string) (*model.CodeRecord, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectDocumentColumns+` FROM code_documents WHERE document_id=$1 AND user_id=$2`, documentID, userID)
	rec, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err, "document", documentID)
	}
	return rec, nil
}

func (d *documents) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.CodeRecord, int64, error) {
	total, err := d.Count(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := d.db.QueryContext(ctx, `
        SELECT `+selectDocumentColumns+` FROM code_documents WHERE user_id=$1
        ORDER BY creation_time DESC, document_id DESC
        LIMIT $2 OFFSET $3
    `, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.CodeRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (d *documents) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_documents WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

func (d *documents) Delete(ctx context.Context, userID, documentID string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM code_documents WHERE document_id=$1 AND user_id=$2`, documentID, userID)
	if err != nil {
		return err
	}
	return requireAffected(res, "document", documentID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*model.CodeRecord, error) {
	var rec model.CodeRecord
	var meta []byte
	var vectorID sql.NullString
	if err := r.Scan(&rec.ID, &rec.UserID, &rec.Code, &rec.Language, &meta, &vectorID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.VectorID = vectorID.String
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

// --- Search queries ---
type searchQueries struct{ db *sql.DB }

func (s *searchQueries) Create(ctx context.Context, q *model.SearchQueryLog) (*model.SearchQueryLog, error) {
	out := *q
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = time.Now().UTC()
	filters, err := marshalNullable(out.Filters)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO search_queries (query_id, user_id, query, filters, result_limit, result_count, credits_used, creation_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, out.ID, out.UserID, out.Query, filters, out.Limit, out.ResultCount, out.CreditsUsed, out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *searchQueries) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.SearchQueryLog, int64, error) {
	total, err := s.Count(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT query_id, query, filters, result_limit, result_count, credits_used, creation_time
        FROM search_queries WHERE user_id=$1
        ORDER BY creation_time DESC, query_id DESC
        LIMIT $2 OFFSET $3
    `, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.SearchQueryLog
	for rows.Next() {
		q := &model.SearchQueryLog{UserID: userID}
		var filters []byte
		if err := rows.Scan(&q.ID, &q.Query, &filters, &q.Limit, &q.ResultCount, &q.CreditsUsed, &q.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(filters) > 0 {
			if err := json.Unmarshal(filters, &q.Filters); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (s *searchQueries) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_queries WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

// --- Outbox ---
type outbox struct{ db *sql.DB }

const (
	leaseOutboxSQL = `
UPDATE outbox
SET next_attempt_at = now() + make_interval(secs => $2), update_time = now()
WHERE id IN (
    SELECT id FROM outbox
    WHERE status = 'pending' AND next_attempt_at <= now()
    ORDER BY id ASC
    FOR UPDATE SKIP LOCKED
    LIMIT $1
)
RETURNING id, op, aggregate_id, payload, attempt_count`

	markOutboxDoneSQL = `UPDATE outbox SET status='done', update_time=now() WHERE id=$1`

	markOutboxFailedSQL = `
UPDATE outbox
SET attempt_count = attempt_count + 1,
    next_attempt_at = now() + make_interval(secs => LEAST(POWER(2, attempt_count+1), 300)),
    update_time = now()
WHERE id=$1`
)

func (o *outbox) Enqueue(ctx context.Context, op, aggregateID string, payload map[string]interface{}) error {
	b, err := marshalNullable(payload)
	if err != nil {
		return err
	}
	_, err = o.db.ExecContext(ctx, `INSERT INTO outbox (aggregate_id, op, payload) VALUES ($1,$2,$3)`, aggregateID, op, b)
	return err
}

func (o *outbox) Lease(ctx context.Context, n int, leaseFor time.Duration) ([]store.OutboxJob, error) {
	rows, err := o.db.QueryContext(ctx, leaseOutboxSQL, n, leaseFor.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []store.OutboxJob
	for rows.Next() {
		var j store.OutboxJob
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &j.Op, &j.AggregateID, &raw, &j.Attempts); err != nil {
			return nil, err
		}
		j.ID = strconv.FormatInt(id, 10)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &j.Payload); err != nil {
				return nil, fmt.Errorf("outbox %d: bad payload: %w", id, err)
			}
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (o *outbox) MarkDone(ctx context.Context, id string) error {
	return o.update(ctx, markOutboxDoneSQL, id)
}

func (o *outbox) MarkFailed(ctx context.Context, id string) error {
	return o.update(ctx, markOutboxFailedSQL, id)
}

func (o *outbox) update(ctx context.Context, query, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return model.NewValidationError("id", "outbox id must be numeric")
	}
	_, err = o.db.ExecContext(ctx, query, n)
	return err
}

// --- helpers ---

func notFound(err error, resource, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewNotFoundError(resource, id)
	}
	return err
}

func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NewNotFoundError(resource, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func marshalNullable(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
