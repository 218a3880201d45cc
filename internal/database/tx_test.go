package database

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/corebank/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE bank.accounts").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = WithTx(context.Background(), db, time.Second, func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE bank.accounts SET balance = 0")
			return err
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("domain error rolls back and passes through", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		err = WithTx(context.Background(), db, time.Second, func(ctx context.Context, tx *sql.Tx) error {
			return apperr.ErrInsufficientFunds
		})
		assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
		assert.NotErrorIs(t, err, apperr.ErrTransactionFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver error becomes transaction failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE bank.accounts").WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err = WithTx(context.Background(), db, time.Second, func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "UPDATE bank.accounts SET balance = 0")
			return err
		})
		assert.ErrorIs(t, err, apperr.ErrTransactionFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure is reported", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))

		err = WithTx(context.Background(), db, time.Second, func(ctx context.Context, tx *sql.Tx) error {
			return nil
		})
		assert.ErrorIs(t, err, apperr.ErrTransactionFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		called := false
		err = WithTx(context.Background(), db, time.Second, func(ctx context.Context, tx *sql.Tx) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, apperr.ErrTransactionFailure)
		assert.False(t, called)
	})

	t.Run("timeout is reported as such", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance").WillDelayFor(time.Second).WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		mock.ExpectRollback()

		err = WithTx(context.Background(), db, 20*time.Millisecond, func(ctx context.Context, tx *sql.Tx) error {
			var balance int
			return tx.QueryRowContext(ctx, "SELECT balance FROM bank.accounts").Scan(&balance)
		})
		assert.ErrorIs(t, err, apperr.ErrTransactionFailure)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, http.StatusGatewayTimeout, apperr.StatusCode(err))
		assert.Equal(t, "operation timed out", apperr.Message(err))
	})

	t.Run("panic rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			WithTx(context.Background(), db, time.Second, func(ctx context.Context, tx *sql.Tx) error {
				panic("boom")
			})
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range migrations {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	assert.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeed_SkipsPopulatedTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bank.users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bank.establecimientos").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	hashed := 0
	err = Seed(context.Background(), db, func(string) (string, error) {
		hashed++
		return "hash", nil
	})
	assert.NoError(t, err)
	assert.Zero(t, hashed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeed_EmptyDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bank.users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	for i, u := range sampleUsers {
		mock.ExpectQuery("INSERT INTO bank.users").
			WithArgs(u.Username, "hashed:"+u.Password, u.Role, u.FullName, u.Email).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(i + 1))
		mock.ExpectExec("INSERT INTO bank.accounts").
			WithArgs(1000, int64(i+1)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO bank.credit_cards").
			WithArgs(5000, 0, int64(i+1)).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM bank.establecimientos").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO bank.establecimientos").WillReturnResult(sqlmock.NewResult(2, 2))
	mock.ExpectCommit()

	err = Seed(context.Background(), db, func(p string) (string, error) {
		return "hashed:" + p, nil
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
