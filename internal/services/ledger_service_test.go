package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestLedgerService_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	ctx := context.Background()

	t.Run("successful credit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs("user-1", int64(5000), "comment like", "vote_credit", "vote_credit_user-2_c1", "2026-09-06").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO credit_accounts").
			WithArgs("user-1", int64(5000)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := service.Credit(ctx, "user-1", 5000, "comment like", "vote_credit", "vote_credit_user-2_c1", "2026-09-06")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate reference returns ErrAlreadyProcessed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs("user-1", int64(5000), "comment like", "vote_credit", "vote_credit_user-2_c1", "2026-09-06").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := service.Credit(ctx, "user-1", 5000, "comment like", "vote_credit", "vote_credit_user-2_c1", "2026-09-06")
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		err := service.Credit(ctx, "user-1", 0, "comment like", "vote_credit", "ref", "2026-09-06")
		assert.Error(t, err)
	})
}

func TestLedgerService_Debit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	ctx := context.Background()

	t.Run("successful debit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance_micro FROM credit_accounts").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance_micro"}).AddRow(int64(10000)))
		mock.ExpectExec("INSERT INTO credit_ledger").
			WithArgs("user-1", int64(-3000), "raffle tickets", "raffle_buy", "req-1", "2026-09-06").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE credit_accounts").
			WithArgs("user-1", int64(3000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.Debit(ctx, "user-1", 3000, "raffle tickets", "raffle_buy", "req-1", "2026-09-06")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance_micro FROM credit_accounts").
			WithArgs("user-1").
			WillReturnRows(sqlmock.NewRows([]string{"balance_micro"}).AddRow(int64(1000)))
		mock.ExpectRollback()

		err := service.Debit(ctx, "user-1", 3000, "raffle tickets", "raffle_buy", "req-2", "2026-09-06")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account treated as zero balance", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance_micro FROM credit_accounts").
			WithArgs("user-9").
			WillReturnRows(sqlmock.NewRows([]string{"balance_micro"}))
		mock.ExpectRollback()

		err := service.Debit(ctx, "user-9", 100, "raffle tickets", "raffle_buy", "req-3", "2026-09-06")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_CreditWithCarry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs("user-1", int64(16000), "daily accrual", "daily_accrual", "user-1:2026-09-01:AM", "2026-09-06").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO credit_accounts").
		WithArgs("user-1", int64(16000), int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = service.CreditWithCarry(context.Background(), "user-1", 16000, 0, "daily accrual", "daily_accrual", "user-1:2026-09-01:AM", "2026-09-06")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "user_id", "amount_micro", "reason", "ref_type", "ref_id", "week_key", "created_at"}).
		AddRow(int64(2), "user-1", int64(-1000), "raffle tickets", "raffle_buy", "req-1", "2026-09-06", now).
		AddRow(int64(1), "user-1", int64(5000), "comment like", "vote_credit", "ref-a", "2026-09-06", now.Add(-time.Hour))

	mock.ExpectQuery("SELECT id, user_id, amount_micro").
		WithArgs("user-1", 50).
		WillReturnRows(rows)

	entries, err := service.History(context.Background(), "user-1", 0)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int64(-1000), entries[0].AmountMicro)
	assert.NoError(t, mock.ExpectationsWereMet())
}
