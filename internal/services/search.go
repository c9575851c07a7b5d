package services

import (
	"context"
	"errors"
	"strings"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

var errIndexNotConfigured = errors.New("vector index not configured")

// SearchResponse is the outcome of a billed search.
type SearchResponse struct {
	Results     []model.SearchResult `json:"results"`
	CreditsUsed int64                `json:"creditsUsed"`
}

// SearchCode charges the search cost and returns hydrated hits in index order.
// It fails without charging when the index cannot be attempted. Searches are never refunded.
func (s *CodeService) SearchCode(ctx context.Context, userID, query string, limit int, filters map[string]interface{}) (*SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, model.NewValidationError("query", "is required")
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, model.NewValidationError("limit", "must be between 1 and 100")
	}
	if !s.indexAvailable() {
		cause := errIndexNotConfigured
		if s.idx != nil {
			cause = errors.New("vector index reported unhealthy")
		}
		return nil, &model.StoreUnavailableError{Store: "vector index", Op: "search", Cause: cause}
	}

	cost := s.costs.Search
	if _, err := s.ledger.Debit(ctx, userID, cost, OpSearchCode, "Semantic code search"); err != nil {
		return nil, err
	}

	hits, err := s.idx.Query(ctx, userID, query, limit, filters)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Int64("charged", cost).Msg("vector query failed after debit")
		return nil, &model.StoreUnavailableError{Store: "vector index", Op: "search", Charged: cost, Cause: err}
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, h := range hits {
		docID := h.DocumentID()
		if docID == "" {
			continue
		}
		doc, err := s.store.Documents().Get(ctx, userID, docID)
		if errors.Is(err, model.ErrNotFound) {
			s.log.Debug().Str("user_id", userID).Str("document_id", docID).Str("vector_id", h.ID).Msg("dropping dangling hit")
			continue
		}
		if err != nil {
			return nil, &model.StoreUnavailableError{Store: "record store", Op: "search", Charged: cost, Cause: err}
		}
		results = append(results, model.SearchResult{
			ID:       doc.ID,
			Code:     doc.Code,
			Language: doc.Language,
			Metadata: doc.Metadata,
			Score:    h.Score,
		})
	}

	if _, err := s.store.SearchQueries().Create(ctx, &model.SearchQueryLog{
		UserID:      userID,
		Query:       query,
		Filters:     filters,
		Limit:       limit,
		ResultCount: len(results),
		CreditsUsed: cost,
	}); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("search query log write failed")
	}

	s.log.Info().Str("user_id", userID).Int("hits", len(hits)).Int("results", len(results)).Msg("search completed")
	return &SearchResponse{Results: results, CreditsUsed: cost}, nil
}
