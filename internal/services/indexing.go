package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

const refundDescription = "indexing failed, refund"

// IndexCode charges the index cost, persists the document and upserts its vector.
// A failed upsert removes the document and refunds the charge before returning
// model.IndexingFailedError. If the refund or the document removal fails the
// error is model.LedgerInconsistencyError.
func (s *CodeService) IndexCode(ctx context.Context, userID, code, language string, meta model.CodeMetadata) (*model.CodeRecord, error) {
	if strings.TrimSpace(code) == "" {
		return nil, model.NewValidationError("code", "is required")
	}
	if strings.TrimSpace(language) == "" {
		return nil, model.NewValidationError("language", "is required")
	}
	if s.idx == nil {
		return nil, &model.StoreUnavailableError{Store: "vector index", Op: "index", Cause: errIndexNotConfigured}
	}

	cost := s.costs.Index
	if _, err := s.ledger.Debit(ctx, userID, cost, OpIndexCode, "Index code document"); err != nil {
		return nil, err
	}

	vectorID := uuid.NewString()
	rec, err := s.store.Documents().Create(ctx, &model.CodeRecord{
		UserID:   userID,
		Code:     code,
		Language: language,
		Metadata: meta,
		VectorID: vectorID,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("document create failed after debit")
		if rerr := s.refund(ctx, userID, cost); rerr != nil {
			return nil, rerr
		}
		return nil, &model.StoreUnavailableError{Store: "record store", Op: "index", Refunded: cost, Cause: err}
	}

	entry := model.VectorEntry{ID: vectorID, Text: code, Metadata: vectorMetadata(rec)}
	if err := s.idx.Upsert(ctx, userID, entry); err != nil {
		s.log.Error().Err(err).
			Str("user_id", userID).
			Str("document_id", rec.ID).
			Str("vector_id", vectorID).
			Msg("vector upsert failed, compensating")
		return nil, s.compensateIndex(ctx, rec, cost, err)
	}

	s.log.Info().Str("user_id", userID).Str("document_id", rec.ID).Str("vector_id", vectorID).Msg("code indexed")
	return rec, nil
}

// compensateIndex undoes a partially applied IndexCode.
func (s *CodeService) compensateIndex(ctx context.Context, rec *model.CodeRecord, cost int64, cause error) error {
	cctx, cancel := detached(ctx)
	defer cancel()

	delErr := s.store.Documents().Delete(cctx, rec.UserID, rec.ID)
	// A timed-out upsert may still land; remove it the same way a document delete would.
	s.removeVector(cctx, rec.UserID, rec.ID, rec.VectorID)

	if err := s.refund(cctx, rec.UserID, cost); err != nil {
		return err
	}
	if delErr != nil {
		s.log.Error().Err(delErr).
			Bool("ledger_inconsistency", true).
			Str("user_id", rec.UserID).
			Str("document_id", rec.ID).
			Msg("compensation: document delete failed; orphan record left behind")
		return &model.LedgerInconsistencyError{
			UserID: rec.UserID,
			Detail: "orphan record " + rec.ID + " after failed indexing",
			Cause:  errors.Join(cause, delErr),
		}
	}
	return &model.IndexingFailedError{VectorID: rec.VectorID, Refunded: cost, Cause: cause}
}

func (s *CodeService) refund(ctx context.Context, userID string, cost int64) error {
	cctx, cancel := detached(ctx)
	defer cancel()

	if _, err := s.ledger.Credit(cctx, userID, cost, model.KindRefund, refundDescription, nil); err != nil {
		s.log.Error().Err(err).
			Bool("ledger_inconsistency", true).
			Str("user_id", userID).
			Int64("amount", cost).
			Msg("refund failed; credits charged without service")
		return &model.LedgerInconsistencyError{UserID: userID, Charged: cost, Detail: "refund after failed indexing", Cause: err}
	}
	return nil
}

// vectorMetadata builds the index payload. Pointer keys override caller metadata.
func vectorMetadata(rec *model.CodeRecord) map[string]interface{} {
	m := rec.Metadata.ToMap()
	m[model.MetaDocumentID] = rec.ID
	m[model.MetaUserID] = rec.UserID
	m[model.MetaLanguage] = rec.Language
	return m
}

// removeVector deletes a vector and queues a retry when the index refuses.
func (s *CodeService) removeVector(ctx context.Context, userID, documentID, vectorID string) {
	if vectorID == "" || s.idx == nil {
		return
	}
	err := s.idx.Delete(ctx, userID, vectorID)
	if err == nil {
		return
	}
	s.log.Warn().Err(err).Str("user_id", userID).Str("vector_id", vectorID).Msg("vector delete failed, queued for retry")
	payload := map[string]interface{}{model.MetaUserID: userID, model.MetaDocumentID: documentID}
	if qerr := s.store.Outbox().Enqueue(ctx, store.OpDeleteVector, vectorID, payload); qerr != nil {
		s.log.Error().Err(qerr).Str("vector_id", vectorID).Msg("outbox enqueue failed; vector left dangling")
	}
}
