package vault

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/corebank/backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEncrypter struct {
	mock.Mock
}

func (m *mockEncrypter) Encrypt(plaintext []byte) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

var (
	lookupCard = regexp.QuoteMeta("SELECT id FROM bank_secure.encrypted_cards WHERE user_id = $1 AND last4 = $2")
	insertCard = "INSERT INTO bank_secure.encrypted_cards"
	validCard  = CardInput{Number: "5555555555554444", Expiry: "12/29", CVV: "123"}
)

func TestValidateNumber(t *testing.T) {
	valid := []string{"5555555555554444", "4111111111111117", "4992739871604", "0"}
	for _, number := range valid {
		assert.True(t, ValidateNumber(number), number)
	}

	invalid := []string{"", "4992739871603", "5555 5555 5555 4444", "5555-5555-5555-4444", "abcd", "18"}
	for _, number := range invalid {
		assert.False(t, ValidateNumber(number), number)
	}
}

func TestValidateNumber_DetectsSingleDigitErrors(t *testing.T) {
	for _, number := range []string{"5555555555554444", "4111111111111117", "4992739871604"} {
		digits := []byte(number)
		for i := range digits {
			original := digits[i]
			for d := byte('0'); d <= '9'; d++ {
				if d == original {
					continue
				}
				digits[i] = d
				assert.False(t, ValidateNumber(string(digits)), "%s altered at %d", number, i)
			}
			digits[i] = original
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		card  CardInput
		valid bool
	}{
		{"valid", validCard, true},
		{"four digit cvv", CardInput{Number: validCard.Number, Expiry: "01/30", CVV: "1234"}, true},
		{"bad number", CardInput{Number: "5555555555554445", Expiry: "12/29", CVV: "123"}, false},
		{"bad month", CardInput{Number: validCard.Number, Expiry: "13/29", CVV: "123"}, false},
		{"long year", CardInput{Number: validCard.Number, Expiry: "12/2029", CVV: "123"}, false},
		{"missing expiry", CardInput{Number: validCard.Number, CVV: "123"}, false},
		{"short cvv", CardInput{Number: validCard.Number, Expiry: "12/29", CVV: "12"}, false},
		{"alpha cvv", CardInput{Number: validCard.Number, Expiry: "12/29", CVV: "12a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.card)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func beginTx(t *testing.T) (*sql.Tx, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dbMock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	return tx, dbMock
}

func TestVault_StoreTx(t *testing.T) {
	t.Run("new card is encrypted and stored", func(t *testing.T) {
		tx, dbMock := beginTx(t)
		enc := new(mockEncrypter)
		enc.On("Encrypt", []byte("5555555555554444")).Return("enc-number", nil)
		enc.On("Encrypt", []byte("12/29")).Return("enc-expiry", nil)
		enc.On("Encrypt", []byte("123")).Return("enc-cvv", nil)

		dbMock.ExpectQuery(lookupCard).WithArgs(int64(7), "4444").WillReturnRows(sqlmock.NewRows([]string{"id"}))
		dbMock.ExpectQuery(insertCard).
			WithArgs(int64(7), "enc-number", "enc-expiry", "enc-cvv", "4444").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

		ref, err := New(enc).StoreTx(context.Background(), tx, 7, validCard)
		require.NoError(t, err)
		assert.Equal(t, Reference{ID: 9, Last4: "4444", Created: true}, ref)
		assert.Equal(t, "**** **** **** 4444", ref.Masked())
		enc.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("known card is reused without encrypting", func(t *testing.T) {
		tx, dbMock := beginTx(t)
		enc := new(mockEncrypter)

		dbMock.ExpectQuery(lookupCard).WithArgs(int64(7), "4444").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

		ref, err := New(enc).StoreTx(context.Background(), tx, 7, validCard)
		require.NoError(t, err)
		assert.Equal(t, Reference{ID: 4, Last4: "4444"}, ref)
		enc.AssertNotCalled(t, "Encrypt", mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("conflicting insert falls back to the stored row", func(t *testing.T) {
		tx, dbMock := beginTx(t)
		enc := new(mockEncrypter)
		enc.On("Encrypt", mock.Anything).Return("sealed", nil)

		dbMock.ExpectQuery(lookupCard).WithArgs(int64(7), "4444").WillReturnRows(sqlmock.NewRows([]string{"id"}))
		dbMock.ExpectQuery(insertCard).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		dbMock.ExpectQuery(lookupCard).WithArgs(int64(7), "4444").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		ref, err := New(enc).StoreTx(context.Background(), tx, 7, validCard)
		require.NoError(t, err)
		assert.Equal(t, int64(5), ref.ID)
		assert.False(t, ref.Created)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("encryption failure stores nothing", func(t *testing.T) {
		tx, dbMock := beginTx(t)
		enc := new(mockEncrypter)
		enc.On("Encrypt", mock.Anything).Return("", errors.New("entropy exhausted"))

		dbMock.ExpectQuery(lookupCard).WithArgs(int64(7), "4444").WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := New(enc).StoreTx(context.Background(), tx, 7, validCard)
		assert.ErrorContains(t, err, "encrypt card number")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("invalid input never queries", func(t *testing.T) {
		tx, dbMock := beginTx(t)
		enc := new(mockEncrypter)

		_, err := New(enc).StoreTx(context.Background(), tx, 7, CardInput{Number: validCard.Number, Expiry: "2029-12", CVV: "123"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestVault_Seal(t *testing.T) {
	enc := &mockEncrypter{}
	enc.On("Encrypt", []byte(validCard.Number)).Return("sealed-number", nil)
	enc.On("Encrypt", []byte(validCard.Expiry)).Return("sealed-expiry", nil)
	enc.On("Encrypt", []byte(validCard.CVV)).Return("sealed-cvv", nil)

	row, err := New(enc).seal(7, validCard)
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.UserID)
	assert.Equal(t, "4444", row.Last4)
	assert.Equal(t, "sealed-number", row.EncryptedNumber)
	assert.Equal(t, "sealed-expiry", row.EncryptedExpiry)
	assert.Equal(t, "sealed-cvv", row.EncryptedCVV)
	enc.AssertExpectations(t)
}
