package models

import "time"

// EncryptedCard is the vault row for one (user, last4) pair. The encrypted
// fields are write-once.
type EncryptedCard struct {
	ID              int64  `db:"id"`
	UserID          int64  `db:"user_id"`
	EncryptedNumber string `db:"encrypted_number"`
	EncryptedExpiry string `db:"encrypted_expiry"`
	EncryptedCVV    string `db:"encrypted_cvv"`
	Last4           string `db:"last4"`
}

// OTPCode is a single-use numeric code scoped to a user.
type OTPCode struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Code      string    `db:"code"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      bool      `db:"used"`
}

// LogEntry is one row of the append-only audit log.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	LogType    string    `json:"log_type" db:"log_type"`
	IPAddress  string    `json:"ip_address" db:"ip_address"`
	Username   string    `json:"username" db:"username"`
	Action     string    `json:"action" db:"action"`
	HTTPStatus int       `json:"http_status" db:"http_status"`
}
