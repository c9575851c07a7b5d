package services

import (
	"context"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// DeleteDocument removes a document owned by userID. The vector removal is best effort and
// is retried through the outbox; only a failed record delete is returned.
func (s *CodeService) DeleteDocument(ctx context.Context, userID, documentID string) error {
	rec, err := s.store.Documents().Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	s.removeVector(ctx, userID, rec.ID, rec.VectorID)

	if err := s.store.Documents().Delete(ctx, userID, documentID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Str("document_id", documentID).Msg("document deleted")
	return nil
}

// ListDocuments returns a newest-first page of the caller's documents.
func (s *CodeService) ListDocuments(ctx context.Context, userID string, page model.PageRequest) (model.Page[*model.CodeRecord], error) {
	page, err := page.Normalize()
	if err != nil {
		return model.Page[*model.CodeRecord]{}, err
	}
	docs, total, err := s.store.Documents().List(ctx, userID, page)
	if err != nil {
		return model.Page[*model.CodeRecord]{}, err
	}
	return model.NewPage(docs, page, total), nil
}

// SearchHistory returns a newest-first page of logged searches.
func (s *CodeService) SearchHistory(ctx context.Context, userID string, page model.PageRequest) (model.Page[*model.SearchQueryLog], error) {
	page, err := page.Normalize()
	if err != nil {
		return model.Page[*model.SearchQueryLog]{}, err
	}
	qs, total, err := s.store.SearchQueries().List(ctx, userID, page)
	if err != nil {
		return model.Page[*model.SearchQueryLog]{}, err
	}
	return model.NewPage(qs, page, total), nil
}

// IndexStats describes the caller's namespace of the vector index.
func (s *CodeService) IndexStats(ctx context.Context, userID string) (model.IndexStats, error) {
	if s.idx == nil {
		return model.IndexStats{}, &model.StoreUnavailableError{Store: "vector index", Op: "describe", Cause: errIndexNotConfigured}
	}
	st, err := s.idx.Describe(ctx, userID)
	if err != nil {
		return model.IndexStats{}, &model.StoreUnavailableError{Store: "vector index", Op: "describe", Cause: err}
	}
	return st, nil
}
