package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// NewWithDB constructs a SQLite-backed store. The caller owns schema creation (EnsureSchema).
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

// OpenStore opens the database file, ensures the schema and returns a ready store.
func OpenStore(ctx context.Context, path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Accounts() store.Accounts           { return &accounts{db: s.db} }
func (s *sqliteStore) Transactions() store.Transactions   { return &transactions{db: s.db} }
func (s *sqliteStore) Documents() store.Documents         { return &documents{db: s.db} }
func (s *sqliteStore) SearchQueries() store.SearchQueries { return &searchQueries{db: s.db} }
func (s *sqliteStore) Outbox() store.Outbox               { return &outbox{db: s.db} }

func (s *sqliteStore) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqliteStore) Close() error                         { return s.db.Close() }

func now() time.Time { return time.Now().UTC() }

// --- Accounts ---
type accounts struct{ db *sql.DB }

func (a *accounts) Create(ctx context.Context, userID string) (*model.Account, error) {
	ts := now()
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO accounts (user_id, balance, active, version, creation_time, update_time)
        VALUES (?, 0, 1, 0, ?, ?)`, userID, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.NewConflictError("userId", "account already exists")
		}
		return nil, err
	}
	return &model.Account{UserID: userID, Active: true, CreatedAt: ts, UpdatedAt: ts}, nil
}

func (a *accounts) Get(ctx context.Context, userID string) (*model.Account, error) {
	out := model.Account{UserID: userID}
	row := a.db.QueryRowContext(ctx, `
        SELECT balance, active, version, creation_time, update_time FROM accounts WHERE user_id=?`, userID)
	if err := row.Scan(&out.Balance, &out.Active, &out.Version, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, notFound(err, "account", userID)
	}
	return &out, nil
}

func (a *accounts) Apply(ctx context.Context, m model.Mutation) (*model.TransactionRecord, error) {
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()
	var row *sql.Row
	if m.Kind == model.KindUsage {
		row = tx.QueryRowContext(ctx, `
            UPDATE accounts SET balance = balance - ?, version = version + 1, update_time = ?
            WHERE user_id = ? AND active = 1 AND balance >= ?
            RETURNING balance, version`, m.Amount, ts, m.UserID, m.Amount)
	} else {
		row = tx.QueryRowContext(ctx, `
            UPDATE accounts SET balance = balance + ?, version = version + 1, update_time = ?
            WHERE user_id = ?
            RETURNING balance, version`, m.Amount, ts, m.UserID)
	}
	var after, version int64
	if err := row.Scan(&after, &version); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, explainRejected(ctx, tx, m)
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
		CreatedAt:     ts,
	}
	meta, err := marshalNullable(rec.Metadata)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO credit_transactions
            (transaction_id, user_id, amount, kind, operation, description, balance_before, balance_after, metadata, sequence, creation_time)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.Amount, string(rec.Kind), rec.Operation, rec.Description,
		rec.BalanceBefore, rec.BalanceAfter, meta, rec.Sequence, rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func explainRejected(ctx context.Context, tx *sql.Tx, m model.Mutation) error {
	var balance int64
	var active bool
	if err := tx.QueryRowContext(ctx, `SELECT balance, active FROM accounts WHERE user_id=?`, m.UserID).Scan(&balance, &active); err != nil {
		return notFound(err, "account", m.UserID)
	}
	if !active {
		return model.NewNotFoundError("account", m.UserID+" is inactive")
	}
	return &model.InsufficientCreditsError{Required: m.Amount, Available: balance}
}

func (a *accounts) Deactivate(ctx context.Context, userID string) error {
	res, err := a.db.ExecContext(ctx, `UPDATE accounts SET active = 0, update_time = ? WHERE user_id=?`, now(), userID)
	if err != nil {
		return err
	}
	return requireAffected(res, "account", userID)
}

// --- Transactions ---
type transactions struct{ db *sql.DB }

func (t *transactions) List(ctx context.Context, userID string, page model.PageRequest) ([]*model.TransactionRecord, int64, error) {
	var total int64
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credit_transactions WHERE user_id=?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := t.db.QueryContext(ctx, `
        SELECT transaction_id, amount, kind, operation, description, balance_before, balance_after, metadata, sequence, creation_time
        FROM credit_transactions WHERE user_id=?
        ORDER BY sequence DESC
        LIMIT ? OFFSET ?`, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.TransactionRecord
	for rows.Next() {
		rec := &model.TransactionRecord{UserID: userID}
		var kind string
		var op, meta sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Amount, &kind, &op, &rec.Description, &rec.BalanceBefore, &rec.BalanceAfter, &meta, &rec.Sequence, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		rec.Kind = model.TransactionKind(kind)
		rec.Operation = op.String
		if meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
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
        SELECT COALESCE(SUM(ABS(amount)), 0) FROM credit_transactions WHERE user_id=? AND kind='usage'`, userID).Scan(&sum)
	return sum, err
}

// --- Documents ---
type documents struct{ db *sql.DB }

func (d *documents) Create(ctx context.Context, rec *model.CodeRecord) (*model.CodeRecord, error) {
	out := *rec
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	ts := now()
	out.CreatedAt, out.UpdatedAt = ts, ts
	meta, err := json.Marshal(out.Metadata)
	if err != nil {
		return nil, err
	}
	var vectorID interface{}
	if out.VectorID != "" {
		vectorID = out.VectorID
	}
	_, err = d.db.ExecContext(ctx, `
        INSERT INTO code_documents (document_id, user_id, code, language, metadata, vector_id, creation_time, update_time)
        VALUES (?,?,?,?,?,?,?,?)`, out.ID, out.UserID, out.Code, out.Language, string(meta), vectorID, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, model.NewConflictError("documentId", out.ID)
		}
		return nil, err
	}
	return &out, nil
}

const documentColumns = `document_id, user_id, code, language, metadata, vector_id, creation_time, update_time`

func (d *documents) Get(ctx context.Context, userID, documentID string) (*model.CodeRecord, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM code_documents WHERE document_id=? AND user_id=?`, documentID, userID)
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
        SELECT `+documentColumns+` FROM code_documents WHERE user_id=?
        ORDER BY creation_time DESC, rowid DESC
        LIMIT ? OFFSET ?`, userID, page.Limit, page.Offset())
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
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_documents WHERE user_id=?`, userID).Scan(&n)
	return n, err
}

func (d *documents) Delete(ctx context.Context, userID, documentID string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM code_documents WHERE document_id=? AND user_id=?`, documentID, userID)
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
	var meta, vectorID sql.NullString
	if err := r.Scan(&rec.ID, &rec.UserID, &rec.Code, &rec.Language, &meta, &vectorID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.VectorID = vectorID.String
	if meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
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
	out.CreatedAt = now()
	filters, err := marshalNullable(out.Filters)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO search_queries (query_id, user_id, query, filters, result_limit, result_count, credits_used, creation_time)
        VALUES (?,?,?,?,?,?,?,?)`, out.ID, out.UserID, out.Query, filters, out.Limit, out.ResultCount, out.CreditsUsed, out.CreatedAt)
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
        FROM search_queries WHERE user_id=?
        ORDER BY creation_time DESC, rowid DESC
        LIMIT ? OFFSET ?`, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.SearchQueryLog
	for rows.Next() {
		q := &model.SearchQueryLog{UserID: userID}
		var filters sql.NullString
		if err := rows.Scan(&q.ID, &q.Query, &filters, &q.Limit, &q.ResultCount, &q.CreditsUsed, &q.CreatedAt); err != nil {
			return nil, 0, err
		}
		if filters.String != "" {
			if err := json.Unmarshal([]byte(filters.String), &q.Filters); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (s *searchQueries) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_queries WHERE user_id=?`, userID).Scan(&n)
	return n, err
}

// --- Outbox ---
type outbox struct{ db *sql.DB }

func (o *outbox) Enqueue(ctx context.Context, op, aggregateID string, payload map[string]interface{}) error {
	b, err := marshalNullable(payload)
	if err != nil {
		return err
	}
	_, err = o.db.ExecContext(ctx, `INSERT INTO outbox (aggregate_id, op, payload, next_attempt_at) VALUES (?,?,?,?)`,
		aggregateID, op, b, now().UnixMilli())
	return err
}

func (o *outbox) Lease(ctx context.Context, n int, leaseFor time.Duration) ([]store.OutboxJob, error) {
	tx, err := o.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ts := now().UnixMilli()
	rows, err := tx.QueryContext(ctx, `
        SELECT id, op, aggregate_id, payload, attempt_count FROM outbox
        WHERE status = 'pending' AND next_attempt_at <= ?
        ORDER BY id ASC
        LIMIT ?`, ts, n)
	if err != nil {
		return nil, err
	}
	var jobs []store.OutboxJob
	var ids []int64
	for rows.Next() {
		var j store.OutboxJob
		var id int64
		var raw sql.NullString
		if err := rows.Scan(&id, &j.Op, &j.AggregateID, &raw, &j.Attempts); err != nil {
			_ = rows.Close()
			return nil, err
		}
		j.ID = strconv.FormatInt(id, 10)
		if raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &j.Payload); err != nil {
				_ = rows.Close()
				return nil, err
			}
		}
		jobs = append(jobs, j)
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	until := ts + leaseFor.Milliseconds()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE outbox SET next_attempt_at = ? WHERE id = ?`, until, id); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (o *outbox) MarkDone(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx, `UPDATE outbox SET status='done' WHERE id=?`, id)
	return err
}

// MarkFailed backs off exponentially, capped at 300 seconds.
func (o *outbox) MarkFailed(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx, `
        UPDATE outbox
        SET attempt_count = attempt_count + 1,
            next_attempt_at = ? + MIN(1 << (attempt_count + 1), 300) * 1000
        WHERE id=?`, now().UnixMilli(), id)
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
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func marshalNullable(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
