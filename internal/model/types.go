package model

import "time"

// TransactionKind classifies a balance change.
type TransactionKind string

const (
	KindPurchase TransactionKind = "purchase"
	KindUsage    TransactionKind = "usage"
	KindRefund   TransactionKind = "refund"
	KindBonus    TransactionKind = "bonus"
)

// Valid reports whether k is one of the known kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindPurchase, KindUsage, KindRefund, KindBonus:
		return true
	}
	return false
}

// IsCredit reports whether k may be used for a balance increment.
func (k TransactionKind) IsCredit() bool {
	return k == KindPurchase || k == KindRefund || k == KindBonus
}

// Account holds the prepaid credit balance of a user.
type Account struct {
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	Active    bool      `json:"active"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TransactionRecord is an immutable entry of the credit transaction log.
// Sequence is the account version produced by the mutation that wrote it.
type TransactionRecord struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"userId"`
	Amount        int64                  `json:"amount"`
	Kind          TransactionKind        `json:"type"`
	Operation     string                 `json:"operation,omitempty"`
	Description   string                 `json:"description"`
	BalanceBefore int64                  `json:"balanceBefore"`
	BalanceAfter  int64                  `json:"balanceAfter"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Sequence      int64                  `json:"sequence"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// Mutation describes a balance change requested from a store. The store fills in the
// balances, sequence, id and timestamp of the resulting TransactionRecord.
type Mutation struct {
	UserID      string
	Amount      int64 // always positive; direction is given by Kind
	Kind        TransactionKind
	Operation   string
	Description string
	Metadata    map[string]interface{}
}

// Signed returns the signed amount applied to the balance.
func (m Mutation) Signed() int64 {
	if m.Kind == KindUsage {
		return -m.Amount
	}
	return m.Amount
}

// CodeRecord is an indexed code document owned by a user.
type CodeRecord struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Code      string       `json:"code"`
	Language  string       `json:"language"`
	Metadata  CodeMetadata `json:"metadata"`
	VectorID  string       `json:"vectorId,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// SearchQueryLog records one billed search.
type SearchQueryLog struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"userId"`
	Query       string                 `json:"query"`
	Filters     map[string]interface{} `json:"filters,omitempty"`
	Limit       int                    `json:"limit"`
	ResultCount int                    `json:"results"`
	CreditsUsed int64                  `json:"creditsUsed"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// VectorEntry is the unit stored in a namespace of the vector index.
type VectorEntry struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DocumentID returns the documentId pointer carried in the metadata, if any.
func (v VectorEntry) DocumentID() string {
	s, _ := v.Metadata[MetaDocumentID].(string)
	return s
}

// SearchHit is a ranked match returned by the vector index.
type SearchHit struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Text     string                 `json:"text,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

// DocumentID returns the documentId pointer carried in the hit metadata, if any.
func (h SearchHit) DocumentID() string {
	s, _ := h.Metadata[MetaDocumentID].(string)
	return s
}

// SearchResult is a hydrated hit returned to callers.
type SearchResult struct {
	ID       string       `json:"id"`
	Code     string       `json:"code"`
	Language string       `json:"language"`
	Metadata CodeMetadata `json:"metadata"`
	Score    float64      `json:"score"`
}

// IndexStats describes one namespace of the vector index.
type IndexStats struct {
	Namespace   string `json:"namespace"`
	VectorCount int64  `json:"vectorCount"`
	Dimension   int    `json:"dimension"`
}

// UserStats aggregates per-user activity.
type UserStats struct {
	TotalSearches    int64 `json:"totalSearches"`
	TotalDocuments   int64 `json:"totalDocuments"`
	TotalCreditsUsed int64 `json:"totalCreditsUsed"`
}

// Vector metadata keys written by the indexing saga.
const (
	MetaDocumentID = "documentId"
	MetaUserID     = "userId"
	MetaLanguage   = "language"
)
