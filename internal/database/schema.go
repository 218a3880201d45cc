package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/corebank/backend/internal/models"
)

var migrations = []string{
	`CREATE SCHEMA IF NOT EXISTS bank;`,
	`CREATE SCHEMA IF NOT EXISTS bank_secure;`,
	`CREATE SCHEMA IF NOT EXISTS logs_repo;`,
	`CREATE TABLE IF NOT EXISTS bank.users (
		id SERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		full_name TEXT,
		email TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS bank.accounts (
		id SERIAL PRIMARY KEY,
		balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
		user_id INTEGER UNIQUE REFERENCES bank.users(id)
	);`,
	`CREATE TABLE IF NOT EXISTS bank.credit_cards (
		id SERIAL PRIMARY KEY,
		credit_limit NUMERIC NOT NULL DEFAULT 1,
		balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
		user_id INTEGER UNIQUE REFERENCES bank.users(id)
	);`,
	`CREATE TABLE IF NOT EXISTS bank.tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER REFERENCES bank.users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS bank.establecimientos (
		id SERIAL PRIMARY KEY,
		nombre TEXT NOT NULL,
		direccion TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS bank.otp_codes (
		id SERIAL PRIMARY KEY,
		user_id INTEGER REFERENCES bank.users(id),
		code TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		used BOOLEAN NOT NULL DEFAULT FALSE
	);`,
	`CREATE INDEX IF NOT EXISTS otp_codes_user_code_idx ON bank.otp_codes (user_id, code, expires_at DESC);`,
	`CREATE TABLE IF NOT EXISTS bank_secure.encrypted_cards (
		id SERIAL PRIMARY KEY,
		user_id INTEGER REFERENCES bank.users(id),
		encrypted_number TEXT NOT NULL,
		encrypted_expiry TEXT NOT NULL,
		encrypted_cvv TEXT NOT NULL,
		last4 TEXT NOT NULL,
		UNIQUE (user_id, last4)
	);`,
	`CREATE TABLE IF NOT EXISTS logs_repo.app_logs (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		log_type TEXT NOT NULL,
		ip_address TEXT NOT NULL,
		username TEXT NOT NULL,
		action TEXT NOT NULL,
		http_status INTEGER NOT NULL
	);`,
}

// Migrate creates the schemas and tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

// SampleUser is a provisioning record for Seed.
type SampleUser struct {
	Username string
	Password string
	Role     string
	FullName string
	Email    string
}

var sampleUsers = []SampleUser{
	{"user1", "pass1", models.RoleCustomer, "Usuario Uno", "user1@example.com"},
	{"user2", "pass2", models.RoleCustomer, "Usuario Dos", "user2@example.com"},
	{"user3", "pass3", models.RoleCashier, "Usuario Tres", "user3@example.com"},
}

// PasswordHasher turns a plaintext credential into its stored form.
type PasswordHasher func(password string) (string, error)

// Seed provisions sample users, each with an account of 1000 and a credit
// card with limit 5000, plus two establishments. Tables that already hold
// rows are left alone.
func Seed(ctx context.Context, db *sql.DB, hash PasswordHasher) error {
	return WithTx(ctx, db, 0, func(ctx context.Context, tx *sql.Tx) error {
		var users int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.users`).Scan(&users); err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		if users == 0 {
			for _, u := range sampleUsers {
				hashed, err := hash(u.Password)
				if err != nil {
					return fmt.Errorf("hash password for %s: %w", u.Username, err)
				}
				var id int64
				err = tx.QueryRowContext(ctx, `
					INSERT INTO bank.users (username, password, role, full_name, email)
					VALUES ($1, $2, $3, $4, $5) RETURNING id`,
					u.Username, hashed, u.Role, u.FullName, u.Email).Scan(&id)
				if err != nil {
					return fmt.Errorf("insert user %s: %w", u.Username, err)
				}
				if _, err := tx.ExecContext(ctx, `INSERT INTO bank.accounts (balance, user_id) VALUES ($1, $2)`, 1000, id); err != nil {
					return fmt.Errorf("insert account for %s: %w", u.Username, err)
				}
				if _, err := tx.ExecContext(ctx, `INSERT INTO bank.credit_cards (credit_limit, balance, user_id) VALUES ($1, $2, $3)`, 5000, 0, id); err != nil {
					return fmt.Errorf("insert credit card for %s: %w", u.Username, err)
				}
			}
			log.Printf("[DB] Seeded %d sample users", len(sampleUsers))
		}

		var establishments int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.establecimientos`).Scan(&establishments); err != nil {
			return fmt.Errorf("count establishments: %w", err)
		}
		if establishments == 0 {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO bank.establecimientos (nombre, direccion) VALUES
				('Tienda ABC', 'Av. Siempre Viva 123'),
				('Restaurante XYZ', 'Calle Falsa 456')`)
			if err != nil {
				return fmt.Errorf("insert establishments: %w", err)
			}
		}
		return nil
	})
}
