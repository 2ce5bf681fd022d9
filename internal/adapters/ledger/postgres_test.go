package ledger

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockLedger(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db,
		WithPostgresIDGenerator(func() string { return "rsv-1" }),
		WithPostgresClock(func() time.Time { return fixedNow }),
	), mock
}

func TestPostgres_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("holds credits in one transaction", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM ledger_accounts WHERE account_id = $1 FOR UPDATE")).
			WithArgs("acct").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(100))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_accounts SET balance = balance - $2")).
			WithArgs("acct", 30).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_reservations")).
			WithArgs("rsv-1", "acct", 30, StateHeld, fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		id, err := l.Reserve(ctx, "acct", 30)
		assert.NoError(t, err)
		assert.Equal(t, "rsv-1", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance rolls back", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM ledger_accounts")).
			WithArgs("acct").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(10))
		mock.ExpectRollback()

		_, err := l.Reserve(ctx, "acct", 30)
		assert.True(t, errors.Is(err, pipeline.ErrInsufficientCredit))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account has no credit", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM ledger_accounts")).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := l.Reserve(ctx, "ghost", 1)
		assert.True(t, errors.Is(err, pipeline.ErrInsufficientCredit))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative amounts never reach the database", func(t *testing.T) {
		l, mock := newMockLedger(t)
		_, err := l.Reserve(ctx, "acct", -5)
		assert.Equal(t, pipeline.ErrInvalidAmount, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres_Settle(t *testing.T) {
	ctx := context.Background()
	lockQuery := regexp.QuoteMeta("SELECT account_id, amount, state FROM ledger_reservations WHERE reservation_id = $1 FOR UPDATE")

	t.Run("debit marks the reservation", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs("rsv-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "state"}).AddRow("acct", 30, StateHeld))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_reservations SET state = $2")).
			WithArgs("rsv-1", StateDebited, fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, l.Debit(ctx, "rsv-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("release refunds the account", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs("rsv-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "state"}).AddRow("acct", 30, StateHeld))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_accounts")).
			WithArgs("acct", int64(30)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE ledger_reservations SET state = $2")).
			WithArgs("rsv-1", StateReleased, fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, l.Release(ctx, "rsv-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeated settlement is a no-op", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs("rsv-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "state"}).AddRow("acct", 30, StateReleased))
		mock.ExpectRollback()

		assert.NoError(t, l.Release(ctx, "rsv-1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("settling the other way is rejected", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs("rsv-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "state"}).AddRow("acct", 30, StateDebited))
		mock.ExpectRollback()

		err := l.Release(ctx, "rsv-1")
		assert.True(t, errors.Is(err, pipeline.ErrReservationSettled))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown reservation", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WithArgs("missing").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := l.Debit(ctx, "missing")
		assert.True(t, errors.Is(err, pipeline.ErrReservationNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres_Accounts(t *testing.T) {
	ctx := context.Background()

	t.Run("top up returns the new balance", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ledger_accounts")).
			WithArgs("acct", 50).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(150))

		bal, err := l.TopUp(ctx, "acct", 50)
		assert.NoError(t, err)
		assert.Equal(t, 150, bal)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account reads as zero", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM ledger_accounts WHERE account_id = $1")).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		bal, err := l.Balance(ctx, "ghost")
		assert.NoError(t, err)
		assert.Zero(t, bal)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("migrate creates the schema", func(t *testing.T) {
		l, mock := newMockLedger(t)
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS ledger_accounts")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.NoError(t, l.Migrate(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
