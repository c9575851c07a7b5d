package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

func newMockStore(t *testing.T) (*accounts, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &accounts{db: db}, mock
}

func TestApply_DebitWritesLogInSameTransaction(t *testing.T) {
	a, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND active AND balance >= $2")).
		WithArgs("u1", int64(30)).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "version"}).AddRow(int64(70), int64(5)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_transactions")).
		WithArgs(sqlmock.AnyArg(), "u1", int64(-30), "usage", "index_code", "Code indexing",
			int64(100), int64(70), nil, int64(5), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec, err := a.Apply(context.Background(), model.Mutation{
		UserID: "u1", Amount: 30, Kind: model.KindUsage, Operation: "index_code", Description: "Code indexing",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.BalanceBefore)
	assert.Equal(t, int64(70), rec.BalanceAfter)
	assert.Equal(t, int64(-30), rec.Amount)
	assert.Equal(t, int64(5), rec.Sequence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_InsufficientBalanceRollsBack(t *testing.T) {
	a, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("AND balance >= $2")).
		WithArgs("u1", int64(60)).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "version"}))
	mock.ExpectQuery(regexp.QuoteMeta(accountStateSQL)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"balance", "active"}).AddRow(int64(40), true))
	mock.ExpectRollback()

	_, err := a.Apply(context.Background(), model.Mutation{UserID: "u1", Amount: 60, Kind: model.KindUsage})
	var ice *model.InsufficientCreditsError
	require.True(t, errors.As(err, &ice))
	assert.Equal(t, int64(60), ice.Required)
	assert.Equal(t, int64(40), ice.Available)
	assert.Contains(t, err.Error(), "no credits were charged")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_UnknownAccount(t *testing.T) {
	a, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "version"}))
	mock.ExpectQuery(regexp.QuoteMeta(accountStateSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "active"}))
	mock.ExpectRollback()

	_, err := a.Apply(context.Background(), model.Mutation{UserID: "ghost", Amount: 1, Kind: model.KindPurchase})
	assert.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_LogInsertFailureLeavesBalanceUntouched(t *testing.T) {
	a, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"balance", "version"}).AddRow(int64(110), int64(2)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credit_transactions")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := a.Apply(context.Background(), model.Mutation{UserID: "u1", Amount: 10, Kind: model.KindRefund})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivate_UnknownAccount(t *testing.T) {
	a, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET active = FALSE")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := a.Deactivate(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
