package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/cashquest/backend/internal/audit"
	"github.com/cashquest/backend/internal/events"
	"github.com/cashquest/backend/internal/models"
)

func newTestLedgerService(t *testing.T) (*LedgerService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewLedgerService(db, audit.NewLogger(), events.NewBroker()), mock
}

func expectAccountLock(mock sqlmock.Sqlmock, userID int, balance, earned, withdrawn int64, version int) {
	mock.ExpectQuery("SELECT user_id, balance, total_earned, total_withdrawn, version, updated_at FROM accounts WHERE user_id = \\$1 FOR UPDATE").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "total_earned", "total_withdrawn", "version", "updated_at"}).
			AddRow(userID, balance, earned, withdrawn, version, time.Now()))
}

func TestLedgerService_Apply(t *testing.T) {
	service, mock := newTestLedgerService(t)

	t.Run("credit updates balance and total earned", func(t *testing.T) {
		userID := 1

		mock.ExpectBegin()
		expectAccountLock(mock, userID, 10000, 10000, 0, 1)

		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_earned = \\$2, version = version \\+ 1, updated_at = \\$3 WHERE user_id = \\$4 AND version = \\$5").
			WithArgs(int64(12500), int64(12500), sqlmock.AnyArg(), userID, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), userID, int64(2500), "CREDIT", "Task reward", int64(12500), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		entry, err := service.Apply(userID, 2500, "Task reward")
		assert.NoError(t, err)
		assert.Equal(t, models.EntryCredit, entry.EntryType)
		assert.Equal(t, int64(2500), entry.Amount)
		assert.Equal(t, int64(12500), entry.Balance)
		assert.NotEmpty(t, entry.EntryID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("debit may drive the balance negative", func(t *testing.T) {
		userID := 1

		mock.ExpectBegin()
		expectAccountLock(mock, userID, 10000, 10000, 0, 1)

		// Debit does not touch total_earned.
		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_earned = \\$2, version = version \\+ 1, updated_at = \\$3 WHERE user_id = \\$4 AND version = \\$5").
			WithArgs(int64(-5000), int64(10000), sqlmock.AnyArg(), userID, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), userID, int64(15000), "DEBIT", "Admin adjustment", int64(-5000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		entry, err := service.Apply(userID, -15000, "Admin adjustment")
		assert.NoError(t, err)
		assert.Equal(t, models.EntryDebit, entry.EntryType)
		assert.Equal(t, int64(15000), entry.Amount)
		assert.Equal(t, int64(-5000), entry.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero amount is rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := service.Apply(1, 0, "noop")
		assert.ErrorIs(t, err, ErrZeroAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, balance, total_earned, total_withdrawn, version, updated_at FROM accounts WHERE user_id = \\$1 FOR UPDATE").
			WithArgs(42).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "total_earned", "total_withdrawn", "version", "updated_at"}))
		mock.ExpectRollback()

		_, err := service.Apply(42, 100, "Signup bonus")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_updateAccountBalance(t *testing.T) {
	service, mock := newTestLedgerService(t)

	t.Run("successful update", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := service.db.Begin()

		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_earned = \\$2, version = version \\+ 1, updated_at = \\$3 WHERE user_id = \\$4 AND version = \\$5").
			WithArgs(int64(4000), int64(9000), sqlmock.AnyArg(), 1, 3).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.updateAccountBalance(tx, 1, 4000, 9000, 3)
		assert.NoError(t, err)
	})

	t.Run("optimistic lock failure", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := service.db.Begin()

		mock.ExpectExec("UPDATE accounts SET balance = \\$1, total_earned = \\$2, version = version \\+ 1, updated_at = \\$3 WHERE user_id = \\$4 AND version = \\$5").
			WithArgs(int64(4000), int64(9000), sqlmock.AnyArg(), 1, 3).
			WillReturnResult(sqlmock.NewResult(1, 0)) // No rows affected

		err := service.updateAccountBalance(tx, 1, 4000, 9000, 3)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "optimistic lock failed")
	})
}

func TestLedgerService_ApplyPublishesEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	broker := events.NewBroker()
	service := NewLedgerService(db, audit.NewLogger(), broker)

	ch, cancel := broker.Subscribe(1)
	defer cancel()

	mock.ExpectBegin()
	expectAccountLock(mock, 1, 0, 0, 0, 1)
	mock.ExpectExec("UPDATE accounts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err = service.Apply(1, 500, "Referral signup bonus")
	assert.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, events.TypeLedgerEntry, ev.Type)
		assert.Equal(t, 1, ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected a ledger event")
	}
}
