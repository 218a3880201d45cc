// Package ledger executes the monetary operations. Every operation is one
// database transaction with row locks on the balances it reads, and emits
// exactly one audit event whatever its outcome.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/audit"
	"github.com/corebank/backend/internal/database"
	"github.com/corebank/backend/internal/models"
	"github.com/corebank/backend/internal/vault"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 5 * time.Second

// OTPValidator consumes a one-time code inside the caller's transaction.
type OTPValidator interface {
	ValidateTx(ctx context.Context, tx *sql.Tx, userID int64, code string) (bool, error)
}

// CardStore persists card material inside the caller's transaction.
type CardStore interface {
	StoreTx(ctx context.Context, tx *sql.Tx, userID int64, card vault.CardInput) (vault.Reference, error)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	Identity models.Identity
	IP       string
}

type Engine struct {
	db      *sql.DB
	otp     OTPValidator
	cards   CardStore
	audit   audit.Recorder
	timeout time.Duration
}

// NewEngine wires the engine. timeout bounds each operation's transaction.
func NewEngine(db *sql.DB, otp OTPValidator, cards CardStore, recorder audit.Recorder, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Engine{db: db, otp: otp, cards: cards, audit: recorder, timeout: timeout}
}

func (e *Engine) inTx(ctx context.Context, fn database.TxFunc) error {
	return database.WithTx(ctx, e.db, e.timeout, fn)
}

// record emits the single audit event of an operation.
func (e *Engine) record(ctx context.Context, actor Actor, action string, err error) {
	event := audit.Event{
		Severity: audit.SeverityInfo,
		IP:       actor.IP,
		Username: actor.Identity.Username,
		Action:   action,
		Status:   http.StatusOK,
	}
	if err != nil {
		event.Status = apperr.StatusCode(err)
		event.Action = fmt.Sprintf("%s rejected: %s", action, apperr.Message(err))
		event.Severity = audit.SeverityWarning
		if event.Status >= http.StatusInternalServerError {
			event.Severity = audit.SeverityError
			log.Printf("[LEDGER] %s failed for user %d: %v", action, actor.Identity.UserID, err)
		}
	}
	e.audit.Record(ctx, event)
}

func validate(actor Actor, amount decimal.Decimal) error {
	if actor.Identity.UserID == 0 {
		return fmt.Errorf("%w: no caller identity", apperr.ErrInvalidToken)
	}
	if !amount.IsPositive() {
		return apperr.Validation("amount must be greater than zero")
	}
	return nil
}

func lockAccountByUser(ctx context.Context, tx *sql.Tx, userID int64) (models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx,
		`SELECT id, user_id, balance FROM bank.accounts WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&account.ID, &account.UserID, &account.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, apperr.NotFound("account not found")
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("lock account of user %d: %w", userID, err)
	}
	return account, nil
}

func lockCardByUser(ctx context.Context, tx *sql.Tx, userID int64) (models.CreditCard, error) {
	var card models.CreditCard
	err := tx.QueryRowContext(ctx,
		`SELECT id, user_id, credit_limit, balance FROM bank.credit_cards WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&card.ID, &card.UserID, &card.CreditLimit, &card.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CreditCard{}, apperr.NotFound("credit card not found")
	}
	if err != nil {
		return models.CreditCard{}, fmt.Errorf("lock credit card of user %d: %w", userID, err)
	}
	return card, nil
}

// adjustAccount adds delta to an account and returns the new balance. The
// balance CHECK constraint backs up the sufficiency checks done under lock.
func adjustAccount(ctx context.Context, tx *sql.Tx, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`UPDATE bank.accounts SET balance = balance + $1 WHERE id = $2 RETURNING balance`,
		delta, accountID).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return decimal.Decimal{}, apperr.NotFound("account not found")
	case database.IsCheckViolation(err):
		return decimal.Decimal{}, apperr.ErrInsufficientFunds
	case err != nil:
		return decimal.Decimal{}, fmt.Errorf("update account %d: %w", accountID, err)
	}
	return balance, nil
}

func adjustCard(ctx context.Context, tx *sql.Tx, cardID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var debt decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`UPDATE bank.credit_cards SET balance = balance + $1 WHERE id = $2 RETURNING balance`,
		delta, cardID).Scan(&debt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return decimal.Decimal{}, apperr.NotFound("credit card not found")
	case err != nil:
		return decimal.Decimal{}, fmt.Errorf("update credit card %d: %w", cardID, err)
	}
	return debt, nil
}
