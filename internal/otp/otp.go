// Package otp issues short-lived, single-use numeric codes bound to a user.
package otp

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/corebank/backend/internal/database"
	"github.com/corebank/backend/internal/models"
)

// Config controls code shape and lifetime.
type Config struct {
	CodeLength   int
	CodeTimeout  time.Duration
	QueryTimeout time.Duration
}

// DefaultConfig returns 6-digit codes valid for five minutes.
func DefaultConfig() Config {
	return Config{CodeLength: 6, CodeTimeout: 5 * time.Minute, QueryTimeout: 5 * time.Second}
}

type Service struct {
	db     *sql.DB
	config Config
	now    func() time.Time
}

func NewService(db *sql.DB, config Config) *Service {
	if config.CodeLength <= 0 {
		config.CodeLength = 6
	}
	if config.CodeTimeout <= 0 {
		config.CodeTimeout = 5 * time.Minute
	}
	return &Service{db: db, config: config, now: time.Now}
}

// Generate persists a new unused code for userID and returns it with its expiry.
func (s *Service) Generate(ctx context.Context, userID int64) (string, time.Time, error) {
	code, err := s.generateSecureCode()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate code: %w", err)
	}
	expiresAt := s.now().UTC().Add(s.config.CodeTimeout)

	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bank.otp_codes (user_id, code, expires_at, used)
		VALUES ($1, $2, $3, FALSE)
	`, userID, code, expiresAt)
	if err != nil {
		log.Printf("[OTP] Failed to store code for user %d: %v", userID, err)
		return "", time.Time{}, fmt.Errorf("failed to store code: %w", err)
	}

	log.Printf("[OTP] Code issued for user %d, expires %s", userID, expiresAt.Format(time.RFC3339))
	return code, expiresAt, nil
}

// Validate consumes code in its own atomic unit. It reports true only when
// the consumption was committed.
func (s *Service) Validate(ctx context.Context, userID int64, code string) (bool, error) {
	var ok bool
	err := database.WithTx(ctx, s.db, s.config.QueryTimeout, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		ok, err = s.ValidateTx(ctx, tx, userID, code)
		return err
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ValidateTx consumes code inside the caller's transaction. Only the newest
// row matching (userID, code) is considered; it must be unused and unexpired.
// The row stays locked until tx ends, so the consumption is durable only if
// the caller commits.
func (s *Service) ValidateTx(ctx context.Context, tx *sql.Tx, userID int64, code string) (bool, error) {
	if code == "" {
		return false, nil
	}

	var otp models.OTPCode
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, code, expires_at, used
		FROM bank.otp_codes
		WHERE user_id = $1 AND code = $2
		ORDER BY expires_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`, userID, code).Scan(&otp.ID, &otp.UserID, &otp.Code, &otp.ExpiresAt, &otp.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup code: %w", err)
	}

	if otp.Used || s.now().After(otp.ExpiresAt) {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, `UPDATE bank.otp_codes SET used = TRUE WHERE id = $1 AND used = FALSE`, otp.ID)
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return n == 1, nil
}

func (s *Service) generateSecureCode() (string, error) {
	const charset = "0123456789"
	code := make([]byte, s.config.CodeLength)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := range code {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}
