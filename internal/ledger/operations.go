package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/models"
	"github.com/corebank/backend/internal/vault"
	"github.com/shopspring/decimal"
)

type DepositResult struct {
	AccountID  int64           `json:"account_id"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

type WithdrawResult struct {
	NewBalance decimal.Decimal `json:"new_balance"`
}

type TransferResult struct {
	TargetUsername string          `json:"target_username"`
	NewBalance     decimal.Decimal `json:"new_balance"`
}

// PurchaseRequest is a credit purchase at a registered establishment.
type PurchaseRequest struct {
	Amount          decimal.Decimal
	Card            vault.CardInput
	OTPCode         string
	EstablishmentID int64
}

type PurchaseResult struct {
	AccountBalance decimal.Decimal      `json:"account_balance"`
	CardDebt       decimal.Decimal      `json:"credit_card_debt"`
	Card           vault.Reference      `json:"card"`
	Establishment  models.Establishment `json:"establishment"`
}

type PaymentResult struct {
	Paid           decimal.Decimal `json:"paid"`
	AccountBalance decimal.Decimal `json:"account_balance"`
	CardDebt       decimal.Decimal `json:"credit_card_debt"`
}

// Deposit credits amount to any existing account.
func (e *Engine) Deposit(ctx context.Context, actor Actor, accountID int64, amount decimal.Decimal) (DepositResult, error) {
	var res DepositResult
	err := validate(actor, amount)
	if err == nil {
		err = e.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			balance, err := adjustAccount(ctx, tx, accountID, amount)
			if err != nil {
				return err
			}
			res = DepositResult{AccountID: accountID, NewBalance: balance}
			return nil
		})
	}

	e.record(ctx, actor, fmt.Sprintf("Deposit of %s into account %d", amount, accountID), err)
	if err != nil {
		return DepositResult{}, err
	}
	return res, nil
}

// Withdraw debits amount from the caller's own account.
func (e *Engine) Withdraw(ctx context.Context, actor Actor, amount decimal.Decimal) (WithdrawResult, error) {
	var res WithdrawResult
	err := validate(actor, amount)
	if err == nil {
		err = e.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			account, err := lockAccountByUser(ctx, tx, actor.Identity.UserID)
			if err != nil {
				return err
			}
			if account.Balance.LessThan(amount) {
				return apperr.ErrInsufficientFunds
			}
			balance, err := adjustAccount(ctx, tx, account.ID, amount.Neg())
			if err != nil {
				return err
			}
			res.NewBalance = balance
			return nil
		})
	}

	e.record(ctx, actor, fmt.Sprintf("Withdrawal of %s", amount), err)
	if err != nil {
		return WithdrawResult{}, err
	}
	return res, nil
}

// Transfer moves amount from the caller to the account of targetUsername.
// Both accounts are locked in ascending user id order.
func (e *Engine) Transfer(ctx context.Context, actor Actor, targetUsername string, amount decimal.Decimal) (TransferResult, error) {
	targetUsername = strings.TrimSpace(targetUsername)

	var res TransferResult
	err := validate(actor, amount)
	switch {
	case err != nil:
	case targetUsername == "":
		err = apperr.Validation("target username is required")
	case targetUsername == actor.Identity.Username:
		err = apperr.Validation("cannot transfer to the same account")
	}
	if err == nil {
		err = e.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			var targetID int64
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM bank.users WHERE username = $1`, targetUsername).Scan(&targetID)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("target user not found")
			}
			if err != nil {
				return fmt.Errorf("lookup target user: %w", err)
			}
			senderID := actor.Identity.UserID
			if targetID == senderID {
				return apperr.Validation("cannot transfer to the same account")
			}

			first, second := senderID, targetID
			if first > second {
				first, second = second, first
			}
			firstAccount, err := lockAccountByUser(ctx, tx, first)
			if err != nil {
				return err
			}
			secondAccount, err := lockAccountByUser(ctx, tx, second)
			if err != nil {
				return err
			}
			sender, receiver := firstAccount, secondAccount
			if first != senderID {
				sender, receiver = secondAccount, firstAccount
			}

			if sender.Balance.LessThan(amount) {
				return apperr.ErrInsufficientFunds
			}
			balance, err := adjustAccount(ctx, tx, sender.ID, amount.Neg())
			if err != nil {
				return err
			}
			if _, err := adjustAccount(ctx, tx, receiver.ID, amount); err != nil {
				return err
			}
			res = TransferResult{TargetUsername: targetUsername, NewBalance: balance}
			return nil
		})
	}

	e.record(ctx, actor, fmt.Sprintf("Transfer of %s to %s", amount, targetUsername), err)
	if err != nil {
		return TransferResult{}, err
	}
	return res, nil
}

// CreditPurchase charges amount to the caller's account and card. The OTP
// and establishment are checked before the card is stored or any balance
// moves, and a rejection at any step undoes the OTP consumption and the
// card store along with everything else.
func (e *Engine) CreditPurchase(ctx context.Context, actor Actor, req PurchaseRequest) (PurchaseResult, error) {
	var res PurchaseResult
	err := validate(actor, req.Amount)
	switch {
	case err != nil:
	case !vault.ValidateNumber(req.Card.Number):
		err = apperr.Validation("invalid card number")
	case req.OTPCode == "" || req.EstablishmentID <= 0:
		err = apperr.Validation("otp code and establishment id are required")
	default:
		err = vault.Validate(req.Card)
	}
	if err == nil {
		err = e.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			userID := actor.Identity.UserID

			ok, err := e.otp.ValidateTx(ctx, tx, userID, req.OTPCode)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.ErrInvalidOTP
			}

			var shop models.Establishment
			err = tx.QueryRowContext(ctx,
				`SELECT id, nombre, COALESCE(direccion, '') FROM bank.establecimientos WHERE id = $1`,
				req.EstablishmentID).Scan(&shop.ID, &shop.Name, &shop.Address)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrInvalidEstablishment
			}
			if err != nil {
				return fmt.Errorf("lookup establishment: %w", err)
			}

			account, err := lockAccountByUser(ctx, tx, userID)
			if err != nil {
				return err
			}
			card, err := lockCardByUser(ctx, tx, userID)
			if err != nil {
				return err
			}

			ref, err := e.cards.StoreTx(ctx, tx, userID, req.Card)
			if err != nil {
				return err
			}

			if account.Balance.LessThan(req.Amount) {
				return apperr.ErrInsufficientFunds
			}
			if card.Balance.Add(req.Amount).GreaterThan(card.CreditLimit) {
				return apperr.ErrCreditLimitExceeded
			}

			balance, err := adjustAccount(ctx, tx, account.ID, req.Amount.Neg())
			if err != nil {
				return err
			}
			debt, err := adjustCard(ctx, tx, card.ID, req.Amount)
			if err != nil {
				return err
			}
			res = PurchaseResult{AccountBalance: balance, CardDebt: debt, Card: ref, Establishment: shop}
			return nil
		})
	}

	e.record(ctx, actor, fmt.Sprintf("Credit purchase of %s at establishment %d", req.Amount, req.EstablishmentID), err)
	if err != nil {
		return PurchaseResult{}, err
	}
	return res, nil
}

// PayCredit pays down the caller's card debt from their account. The
// payment is clamped to the outstanding debt.
func (e *Engine) PayCredit(ctx context.Context, actor Actor, amount decimal.Decimal) (PaymentResult, error) {
	var res PaymentResult
	err := validate(actor, amount)
	if err == nil {
		err = e.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			account, err := lockAccountByUser(ctx, tx, actor.Identity.UserID)
			if err != nil {
				return err
			}
			card, err := lockCardByUser(ctx, tx, actor.Identity.UserID)
			if err != nil {
				return err
			}

			payment := decimal.Min(amount, card.Balance)
			if account.Balance.LessThan(payment) {
				return apperr.ErrInsufficientFunds
			}
			if payment.IsZero() {
				res = PaymentResult{Paid: payment, AccountBalance: account.Balance, CardDebt: card.Balance}
				return nil
			}

			balance, err := adjustAccount(ctx, tx, account.ID, payment.Neg())
			if err != nil {
				return err
			}
			debt, err := adjustCard(ctx, tx, card.ID, payment.Neg())
			if err != nil {
				return err
			}
			res = PaymentResult{Paid: payment, AccountBalance: balance, CardDebt: debt}
			return nil
		})
	}

	action := fmt.Sprintf("Credit debt payment of %s", amount)
	if err == nil {
		action = fmt.Sprintf("Credit debt payment of %s", res.Paid)
	}
	e.record(ctx, actor, action, err)
	if err != nil {
		return PaymentResult{}, err
	}
	return res, nil
}
