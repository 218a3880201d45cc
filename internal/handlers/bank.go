package handlers

import (
	"context"
	"net/http"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/audit"
	"github.com/corebank/backend/internal/ledger"
	mW "github.com/corebank/backend/internal/middleware"
	"github.com/corebank/backend/internal/vault"
	"github.com/shopspring/decimal"
)

// Ledger is the set of monetary operations exposed over HTTP.
type Ledger interface {
	Deposit(ctx context.Context, actor ledger.Actor, accountID int64, amount decimal.Decimal) (ledger.DepositResult, error)
	Withdraw(ctx context.Context, actor ledger.Actor, amount decimal.Decimal) (ledger.WithdrawResult, error)
	Transfer(ctx context.Context, actor ledger.Actor, targetUsername string, amount decimal.Decimal) (ledger.TransferResult, error)
	CreditPurchase(ctx context.Context, actor ledger.Actor, req ledger.PurchaseRequest) (ledger.PurchaseResult, error)
	PayCredit(ctx context.Context, actor ledger.Actor, amount decimal.Decimal) (ledger.PaymentResult, error)
}

// BankHandler audits only the requests it turns away itself. Everything
// that reaches the ledger is audited there.
type BankHandler struct {
	ledger    Ledger
	audit     audit.Recorder
	validator *ValidationHelper
}

func NewBankHandler(l Ledger, recorder audit.Recorder) *BankHandler {
	return &BankHandler{
		ledger:    l,
		audit:     recorder,
		validator: NewValidationHelper(),
	}
}

// Amounts are range-checked by the ledger so that rejections are audited.
type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func actorFrom(r *http.Request) (ledger.Actor, bool) {
	identity, ok := mW.IdentityFrom(r.Context())
	if !ok {
		return ledger.Actor{}, false
	}
	return ledger.Actor{Identity: identity, IP: mW.ClientIP(r)}, true
}

// Deposit credits an account by number.
func (h *BankHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		reject(w, r, h.audit, "Deposit", apperr.Message(apperr.ErrInvalidToken), http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		AccountNumber int64           `json:"account_number" validate:"required,gt=0"`
		Amount        decimal.Decimal `json:"amount"`
	}
	if !h.validator.decodeBody(w, r, h.audit, "Deposit", &req) {
		return
	}

	res, err := h.ledger.Deposit(r.Context(), actor, req.AccountNumber, req.Amount)
	if err != nil {
		SendAppError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"message":     "Deposit successful",
		"account_id":  res.AccountID,
		"new_balance": res.NewBalance,
	})
}

// Withdraw debits the caller's account.
func (h *BankHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		reject(w, r, h.audit, "Withdrawal", apperr.Message(apperr.ErrInvalidToken), http.StatusUnauthorized, nil)
		return
	}

	var req amountRequest
	if !h.validator.decodeBody(w, r, h.audit, "Withdrawal", &req) {
		return
	}

	res, err := h.ledger.Withdraw(r.Context(), actor, req.Amount)
	if err != nil {
		SendAppError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"message":     "Withdrawal successful",
		"new_balance": res.NewBalance,
	})
}

// Transfer moves funds from the caller to another user.
func (h *BankHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		reject(w, r, h.audit, "Transfer", apperr.Message(apperr.ErrInvalidToken), http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		TargetUsername string          `json:"target_username" validate:"required"`
		Amount         decimal.Decimal `json:"amount"`
	}
	if !h.validator.decodeBody(w, r, h.audit, "Transfer", &req) {
		return
	}

	res, err := h.ledger.Transfer(r.Context(), actor, req.TargetUsername, req.Amount)
	if err != nil {
		SendAppError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"message":         "Transfer successful",
		"target_username": res.TargetUsername,
		"new_balance":     res.NewBalance,
	})
}

// CreditPayment makes an OTP-confirmed credit purchase at an establishment.
func (h *BankHandler) CreditPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		reject(w, r, h.audit, "Credit purchase", apperr.Message(apperr.ErrInvalidToken), http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount          decimal.Decimal `json:"amount"`
		CardNumber      string          `json:"card_number" validate:"required"`
		ExpiryDate      string          `json:"expiry_date" validate:"required"`
		CVV             string          `json:"cvv" validate:"required"`
		OTPCode         string          `json:"otp_code" validate:"required"`
		EstablishmentID int64           `json:"establishment_id" validate:"required,gt=0"`
	}
	if !h.validator.decodeBody(w, r, h.audit, "Credit purchase", &req) {
		return
	}

	res, err := h.ledger.CreditPurchase(r.Context(), actor, ledger.PurchaseRequest{
		Amount: req.Amount,
		Card: vault.CardInput{
			Number: req.CardNumber,
			Expiry: req.ExpiryDate,
			CVV:    req.CVV,
		},
		OTPCode:         req.OTPCode,
		EstablishmentID: req.EstablishmentID,
	})
	if err != nil {
		SendAppError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"message":          "Credit purchase successful",
		"account_balance":  res.AccountBalance,
		"credit_card_debt": res.CardDebt,
		"card":             res.Card.Masked(),
	})
}

// PayCreditBalance pays down the caller's card debt.
func (h *BankHandler) PayCreditBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		reject(w, r, h.audit, "Credit debt payment", apperr.Message(apperr.ErrInvalidToken), http.StatusUnauthorized, nil)
		return
	}

	var req amountRequest
	if !h.validator.decodeBody(w, r, h.audit, "Credit debt payment", &req) {
		return
	}

	res, err := h.ledger.PayCredit(r.Context(), actor, req.Amount)
	if err != nil {
		SendAppError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"message":          "Credit balance payment successful",
		"paid":             res.Paid,
		"account_balance":  res.AccountBalance,
		"credit_card_debt": res.CardDebt,
	})
}
