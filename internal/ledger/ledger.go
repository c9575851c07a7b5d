// Package ledger owns prepaid credit balances. Every balance change goes through a
// single atomic store mutation that also appends the matching transaction record.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

const welcomeBonusDescription = "Welcome bonus credits"

// Ledger performs debits and credits against store.Accounts.
type Ledger struct {
	store        store.Store
	log          zerolog.Logger
	welcomeBonus int64
}

// New creates a Ledger. welcomeBonus is credited by OpenAccount; zero disables it.
func New(s store.Store, log zerolog.Logger, welcomeBonus int64) *Ledger {
	return &Ledger{store: s, log: log.With().Str("component", "ledger").Logger(), welcomeBonus: welcomeBonus}
}

// Balance returns the current balance of userID.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	acc, err := l.store.Accounts().Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// HasSufficientCredits is advisory only. Debit is the sole authority on whether a charge succeeds.
func (l *Ledger) HasSufficientCredits(ctx context.Context, userID string, required int64) (bool, error) {
	bal, err := l.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return bal >= required, nil
}

// Debit atomically decrements the balance by amount and logs a usage record.
// It returns model.InsufficientCreditsError without side effects when the balance is too low.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, operation, description string) (int64, error) {
	if err := validateAmount(amount); err != nil {
		return 0, err
	}
	rec, err := l.store.Accounts().Apply(ctx, model.Mutation{
		UserID:      userID,
		Amount:      amount,
		Kind:        model.KindUsage,
		Operation:   operation,
		Description: description,
	})
	if err != nil {
		var ic *model.InsufficientCreditsError
		if errors.As(err, &ic) {
			l.log.Info().Str("user_id", userID).Int64("required", ic.Required).Int64("available", ic.Available).
				Str("operation", operation).Msg("debit rejected")
		}
		return 0, err
	}
	l.log.Info().Str("user_id", userID).Int64("amount", amount).Str("operation", operation).
		Int64("balance", rec.BalanceAfter).Int64("sequence", rec.Sequence).Msg("credits debited")
	return rec.BalanceAfter, nil
}

// Credit atomically increments the balance. kind must be purchase, bonus or refund.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, kind model.TransactionKind, description string, metadata map[string]interface{}) (int64, error) {
	rec, err := l.credit(ctx, userID, amount, kind, description, metadata)
	if err != nil {
		return 0, err
	}
	return rec.BalanceAfter, nil
}

func (l *Ledger) credit(ctx context.Context, userID string, amount int64, kind model.TransactionKind, description string, metadata map[string]interface{}) (*model.TransactionRecord, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !kind.IsCredit() {
		return nil, model.NewValidationError("type", fmt.Sprintf("%q is not a credit type", kind))
	}
	rec, err := l.store.Accounts().Apply(ctx, model.Mutation{
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("user_id", userID).Int64("amount", amount).Str("type", string(kind)).
		Int64("balance", rec.BalanceAfter).Int64("sequence", rec.Sequence).Msg("credits added")
	return rec, nil
}

// Purchase credits amount as a trusted purchase event.
func (l *Ledger) Purchase(ctx context.Context, userID string, amount int64, paymentMethod string) (*model.TransactionRecord, error) {
	if paymentMethod == "" {
		return nil, model.NewValidationError("paymentMethod", "is required")
	}
	return l.credit(ctx, userID, amount, model.KindPurchase,
		fmt.Sprintf("Purchased %d credits via %s", amount, paymentMethod),
		map[string]interface{}{
			"paymentMethod": paymentMethod,
			"transactionId": "txn_" + uuid.NewString(),
		})
}

// Refund returns amount to userID. originalTransactionID is optional.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int64, reason, originalTransactionID string) (int64, error) {
	var meta map[string]interface{}
	if originalTransactionID != "" {
		meta = map[string]interface{}{"originalTransactionId": originalTransactionID}
	}
	return l.Credit(ctx, userID, amount, model.KindRefund, "Refund: "+reason, meta)
}

// History returns a newest-first page of the transaction log.
func (l *Ledger) History(ctx context.Context, userID string, page model.PageRequest) (model.Page[*model.TransactionRecord], error) {
	page, err := page.Normalize()
	if err != nil {
		return model.Page[*model.TransactionRecord]{}, err
	}
	recs, total, err := l.store.Transactions().List(ctx, userID, page)
	if err != nil {
		return model.Page[*model.TransactionRecord]{}, err
	}
	return model.NewPage(recs, page, total), nil
}

// OpenAccount creates an empty account and credits the welcome bonus.
// An existing account yields model.ConflictError.
func (l *Ledger) OpenAccount(ctx context.Context, userID string) (*model.Account, error) {
	if userID == "" {
		return nil, model.NewValidationError("userId", "is required")
	}
	acc, err := l.store.Accounts().Create(ctx, userID)
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("user_id", userID).Msg("account opened")
	if l.welcomeBonus <= 0 {
		return acc, nil
	}
	if _, err := l.Credit(ctx, userID, l.welcomeBonus, model.KindBonus, welcomeBonusDescription, nil); err != nil {
		return nil, fmt.Errorf("welcome bonus: %w", err)
	}
	return l.store.Accounts().Get(ctx, userID)
}

// Deactivate marks the account inactive. Later debits fail with NotFound.
func (l *Ledger) Deactivate(ctx context.Context, userID string) error {
	if err := l.store.Accounts().Deactivate(ctx, userID); err != nil {
		return err
	}
	l.log.Info().Str("user_id", userID).Msg("account deactivated")
	return nil
}

func validateAmount(amount int64) error {
	if amount <= 0 {
		return model.NewValidationError("amount", "must be a positive integer")
	}
	return nil
}
