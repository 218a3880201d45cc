package otp

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/corebank/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	selectCode  = regexp.QuoteMeta("SELECT id, user_id, code, expires_at, used FROM bank.otp_codes WHERE user_id = $1 AND code = $2 ORDER BY expires_at DESC, id DESC LIMIT 1 FOR UPDATE")
	consumeCode = regexp.QuoteMeta("UPDATE bank.otp_codes SET used = TRUE WHERE id = $1 AND used = FALSE")
	otpColumns  = []string{"id", "user_id", "code", "expires_at", "used"}
)

func newTestService(t *testing.T, now time.Time) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewService(db, DefaultConfig())
	s.now = func() time.Time { return now }
	return s, mock
}

func TestService_Generate(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	s, mock := newTestService(t, now)

	mock.ExpectExec("INSERT INTO bank.otp_codes").
		WithArgs(int64(7), sqlmock.AnyArg(), now.Add(5*time.Minute)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	code, expiresAt, err := s.Generate(context.Background(), 7)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, code)
	assert.Equal(t, now.Add(5*time.Minute), expiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_GenerateStoreFailure(t *testing.T) {
	s, mock := newTestService(t, time.Now())

	mock.ExpectExec("INSERT INTO bank.otp_codes").WillReturnError(errors.New("connection refused"))

	_, _, err := s.Generate(context.Background(), 7)
	assert.ErrorContains(t, err, "failed to store code")
}

func TestService_GenerateHonorsLength(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewService(db, Config{CodeLength: 8})
	for i := 0; i < 50; i++ {
		code, err := s.generateSecureCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{8}$`, code)
	}
}

func TestService_Validate(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	t.Run("valid code is consumed", func(t *testing.T) {
		s, mock := newTestService(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery(selectCode).
			WithArgs(int64(7), "123456").
			WillReturnRows(sqlmock.NewRows(otpColumns).AddRow(11, 7, "123456", now.Add(time.Minute), false))
		mock.ExpectExec(consumeCode).WithArgs(int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := s.Validate(context.Background(), 7, "123456")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second use fails", func(t *testing.T) {
		s, mock := newTestService(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery(selectCode).
			WithArgs(int64(7), "123456").
			WillReturnRows(sqlmock.NewRows(otpColumns).AddRow(11, 7, "123456", now.Add(time.Minute), true))
		mock.ExpectCommit()

		ok, err := s.Validate(context.Background(), 7, "123456")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired code fails even if unused", func(t *testing.T) {
		s, mock := newTestService(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery(selectCode).
			WithArgs(int64(7), "123456").
			WillReturnRows(sqlmock.NewRows(otpColumns).AddRow(11, 7, "123456", now.Add(-time.Second), false))
		mock.ExpectCommit()

		ok, err := s.Validate(context.Background(), 7, "123456")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown code fails", func(t *testing.T) {
		s, mock := newTestService(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery(selectCode).
			WithArgs(int64(7), "000000").
			WillReturnRows(sqlmock.NewRows(otpColumns))
		mock.ExpectCommit()

		ok, err := s.Validate(context.Background(), 7, "000000")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty code never hits the store", func(t *testing.T) {
		s, mock := newTestService(t, now)

		mock.ExpectBegin()
		mock.ExpectCommit()

		ok, err := s.Validate(context.Background(), 7, "")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("uncommitted consumption is not success", func(t *testing.T) {
		s, mock := newTestService(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery(selectCode).
			WithArgs(int64(7), "123456").
			WillReturnRows(sqlmock.NewRows(otpColumns).AddRow(11, 7, "123456", now.Add(time.Minute), false))
		mock.ExpectExec(consumeCode).WithArgs(int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(errors.New("connection lost"))

		ok, err := s.Validate(context.Background(), 7, "123456")
		assert.ErrorIs(t, err, apperr.ErrTransactionFailure)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed update rolls back", func(t *testing.T) {
		s, mock := newTestService(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery(selectCode).
			WithArgs(int64(7), "123456").
			WillReturnRows(sqlmock.NewRows(otpColumns).AddRow(11, 7, "123456", now.Add(time.Minute), false))
		mock.ExpectExec(consumeCode).WithArgs(int64(11)).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		ok, err := s.Validate(context.Background(), 7, "123456")
		assert.Error(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
