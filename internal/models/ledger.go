package models

import "github.com/shopspring/decimal"

// Account holds a user's spendable balance. Balance never goes negative.
type Account struct {
	ID      int64           `json:"id" db:"id"`
	UserID  int64           `json:"user_id" db:"user_id"`
	Balance decimal.Decimal `json:"balance" db:"balance"`
}

// CreditCard tracks the debt owed on a user's card.
type CreditCard struct {
	ID          int64           `json:"id" db:"id"`
	UserID      int64           `json:"user_id" db:"user_id"`
	CreditLimit decimal.Decimal `json:"credit_limit" db:"credit_limit"`
	Balance     decimal.Decimal `json:"balance" db:"balance"` // owed debt
}

// Establishment is read-only reference data for credit purchases.
type Establishment struct {
	ID      int64  `json:"id" db:"id"`
	Name    string `json:"name" db:"nombre"`
	Address string `json:"address" db:"direccion"`
}
