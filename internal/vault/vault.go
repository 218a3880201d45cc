// Package vault validates payment cards and seals their material into
// write-only storage. Nothing here ever returns decrypted card data.
package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/hsm"
	"github.com/corebank/backend/internal/models"
)

var (
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cvvPattern    = regexp.MustCompile(`^[0-9]{3,4}$`)
)

// CardInput is the plaintext card material presented by a caller.
type CardInput struct {
	Number string
	Expiry string
	CVV    string
}

// Reference is the display-safe handle of a stored card.
type Reference struct {
	ID      int64  `json:"id"`
	Last4   string `json:"last4"`
	Created bool   `json:"-"`
}

// Masked renders the reference for display.
func (r Reference) Masked() string {
	return "**** **** **** " + r.Last4
}

type Vault struct {
	enc hsm.Encrypter
}

func New(enc hsm.Encrypter) *Vault {
	return &Vault{enc: enc}
}

// ValidateNumber applies the Luhn checksum. The doubled positions are those
// whose index from the left has the parity of len-1.
func ValidateNumber(number string) bool {
	if number == "" || !isDigits(number) {
		return false
	}

	parity := (len(number) - 1) % 2
	sum := 0
	for i := 0; i < len(number); i++ {
		d := int(number[i] - '0')
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// Validate checks every field of card without touching storage.
func Validate(card CardInput) error {
	if !ValidateNumber(card.Number) {
		return apperr.Validation("invalid card number")
	}
	if !expiryPattern.MatchString(card.Expiry) {
		return apperr.Validation("expiry date must be MM/YY")
	}
	if !cvvPattern.MatchString(card.CVV) {
		return apperr.Validation("cvv must be 3 or 4 digits")
	}
	return nil
}

// StoreTx persists card for userID inside tx unless a card with the same
// last four digits is already on file, in which case the existing row is
// returned untouched.
func (v *Vault) StoreTx(ctx context.Context, tx *sql.Tx, userID int64, card CardInput) (Reference, error) {
	if err := Validate(card); err != nil {
		return Reference{}, err
	}
	ref := Reference{Last4: lastN(card.Number, 4)}

	id, err := v.lookup(ctx, tx, userID, ref.Last4)
	if err == nil {
		ref.ID = id
		return ref, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Reference{}, fmt.Errorf("lookup card: %w", err)
	}

	row, err := v.seal(userID, card)
	if err != nil {
		return Reference{}, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO bank_secure.encrypted_cards (user_id, encrypted_number, encrypted_expiry, encrypted_cvv, last4)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, last4) DO NOTHING
		RETURNING id
	`, row.UserID, row.EncryptedNumber, row.EncryptedExpiry, row.EncryptedCVV, row.Last4).Scan(&row.ID)
	switch {
	case err == nil:
		ref.ID = row.ID
		ref.Created = true
		log.Printf("[VAULT] Stored card %s for user %d", ref.Masked(), userID)
		return ref, nil
	case errors.Is(err, sql.ErrNoRows):
		// A concurrent store for the same pair committed first.
		id, err := v.lookup(ctx, tx, userID, ref.Last4)
		if err != nil {
			return Reference{}, fmt.Errorf("lookup card: %w", err)
		}
		ref.ID = id
		return ref, nil
	default:
		return Reference{}, fmt.Errorf("store card: %w", err)
	}
}

// seal encrypts every sensitive field of card into a vault row.
func (v *Vault) seal(userID int64, card CardInput) (models.EncryptedCard, error) {
	row := models.EncryptedCard{UserID: userID, Last4: lastN(card.Number, 4)}

	var err error
	if row.EncryptedNumber, err = v.enc.Encrypt([]byte(card.Number)); err != nil {
		return models.EncryptedCard{}, fmt.Errorf("encrypt card number: %w", err)
	}
	if row.EncryptedExpiry, err = v.enc.Encrypt([]byte(card.Expiry)); err != nil {
		return models.EncryptedCard{}, fmt.Errorf("encrypt expiry: %w", err)
	}
	if row.EncryptedCVV, err = v.enc.Encrypt([]byte(card.CVV)); err != nil {
		return models.EncryptedCard{}, fmt.Errorf("encrypt cvv: %w", err)
	}
	return row, nil
}

func (v *Vault) lookup(ctx context.Context, tx *sql.Tx, userID int64, last4 string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM bank_secure.encrypted_cards WHERE user_id = $1 AND last4 = $2`,
		userID, last4).Scan(&id)
	return id, err
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
