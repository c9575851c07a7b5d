package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

type accountModel struct {
	ID        string    `bson:"_id"`
	Balance   int64     `bson:"balance"`
	Active    bool      `bson:"active"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func fromAccountModel(m *accountModel) *model.Account {
	return &model.Account{
		UserID:    m.ID,
		Balance:   m.Balance,
		Active:    m.Active,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type transactionModel struct {
	ID            string                 `bson:"_id"`
	UserID        string                 `bson:"user_id"`
	Amount        int64                  `bson:"amount"`
	Type          string                 `bson:"type"`
	Operation     string                 `bson:"operation,omitempty"`
	Description   string                 `bson:"description"`
	BalanceBefore int64                  `bson:"balance_before"`
	BalanceAfter  int64                  `bson:"balance_after"`
	Metadata      map[string]interface{} `bson:"metadata,omitempty"`
	Sequence      int64                  `bson:"sequence"`
	CreatedAt     time.Time              `bson:"created_at"`
}

func toTransactionModel(r *model.TransactionRecord) *transactionModel {
	return &transactionModel{
		ID:            r.ID,
		UserID:        r.UserID,
		Amount:        r.Amount,
		Type:          string(r.Kind),
		Operation:     r.Operation,
		Description:   r.Description,
		BalanceBefore: r.BalanceBefore,
		BalanceAfter:  r.BalanceAfter,
		Metadata:      r.Metadata,
		Sequence:      r.Sequence,
		CreatedAt:     r.CreatedAt,
	}
}

func fromTransactionModel(m *transactionModel) *model.TransactionRecord {
	return &model.TransactionRecord{
		ID:            m.ID,
		UserID:        m.UserID,
		Amount:        m.Amount,
		Kind:          model.TransactionKind(m.Type),
		Operation:     m.Operation,
		Description:   m.Description,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		Metadata:      normalizeMap(m.Metadata),
		Sequence:      m.Sequence,
		CreatedAt:     m.CreatedAt,
	}
}

type metadataModel struct {
	FileName    string                 `bson:"file_name,omitempty"`
	FilePath    string                 `bson:"file_path,omitempty"`
	ProjectName string                 `bson:"project_name,omitempty"`
	Tags        []string               `bson:"tags,omitempty"`
	Extra       map[string]interface{} `bson:"extra,omitempty"`
}

type documentModel struct {
	ID        string        `bson:"_id"`
	UserID    string        `bson:"user_id"`
	Code      string        `bson:"code"`
	Language  string        `bson:"language"`
	Metadata  metadataModel `bson:"metadata"`
	VectorID  string        `bson:"vector_id,omitempty"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

func toDocumentModel(r *model.CodeRecord) *documentModel {
	return &documentModel{
		ID:       r.ID,
		UserID:   r.UserID,
		Code:     r.Code,
		Language: r.Language,
		Metadata: metadataModel{
			FileName:    r.Metadata.FileName,
			FilePath:    r.Metadata.FilePath,
			ProjectName: r.Metadata.ProjectName,
			Tags:        r.Metadata.Tags,
			Extra:       r.Metadata.Extra,
		},
		VectorID:  r.VectorID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromDocumentModel(m *documentModel) *model.CodeRecord {
	return &model.CodeRecord{
		ID:       m.ID,
		UserID:   m.UserID,
		Code:     m.Code,
		Language: m.Language,
		Metadata: model.CodeMetadata{
			FileName:    m.Metadata.FileName,
			FilePath:    m.Metadata.FilePath,
			ProjectName: m.Metadata.ProjectName,
			Tags:        m.Metadata.Tags,
			Extra:       normalizeMap(m.Metadata.Extra),
		},
		VectorID:  m.VectorID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type searchQueryModel struct {
	ID          string                 `bson:"_id"`
	UserID      string                 `bson:"user_id"`
	Query       string                 `bson:"query"`
	Filters     map[string]interface{} `bson:"filters,omitempty"`
	Limit       int                    `bson:"limit"`
	Results     int                    `bson:"results"`
	CreditsUsed int64                  `bson:"credits_used"`
	CreatedAt   time.Time              `bson:"created_at"`
}

func fromSearchQueryModel(m *searchQueryModel) *model.SearchQueryLog {
	return &model.SearchQueryLog{
		ID:          m.ID,
		UserID:      m.UserID,
		Query:       m.Query,
		Filters:     normalizeMap(m.Filters),
		Limit:       m.Limit,
		ResultCount: m.Results,
		CreditsUsed: m.CreditsUsed,
		CreatedAt:   m.CreatedAt,
	}
}

type outboxModel struct {
	ID            string                 `bson:"_id"`
	AggregateID   string                 `bson:"aggregate_id"`
	Op            string                 `bson:"op"`
	Payload       map[string]interface{} `bson:"payload,omitempty"`
	Status        string                 `bson:"status"`
	AttemptCount  int                    `bson:"attempt_count"`
	NextAttemptAt time.Time              `bson:"next_attempt_at"`
	CreatedAt     time.Time              `bson:"created_at"`
}

// normalizeMap converts nested bson.D / bson.A values back into plain maps and slices.
func normalizeMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.M:
		return normalizeMap(t)
	case bson.A:
		s := make([]interface{}, len(t))
		for i, e := range t {
			s[i] = normalizeValue(e)
		}
		return s
	default:
		return v
	}
}
