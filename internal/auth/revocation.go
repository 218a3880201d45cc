package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/corebank/backend/internal/token"
	"github.com/go-redis/redis/v8"
)

// Revocations is the set of logged-out tokens, keyed by their jti. An entry
// only needs to outlive the token it revokes.
type Revocations interface {
	Revoke(ctx context.Context, claims token.Claims) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocations keeps blacklist:<jti> keys that expire with the token.
type RedisRevocations struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client, now: time.Now}
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}

func (r *RedisRevocations) Revoke(ctx context.Context, claims token.Claims) error {
	if claims.ExpiresAt == nil {
		return fmt.Errorf("token has no expiry")
	}
	ttl := claims.ExpiresAt.Time.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, blacklistKey(claims.ID), "1", ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SQLRevocations stores revoked tokens in bank.tokens.
type SQLRevocations struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

func NewSQLRevocations(db *sql.DB, timeout time.Duration) *SQLRevocations {
	return &SQLRevocations{db: db, timeout: timeout, now: time.Now}
}

func (r *SQLRevocations) Revoke(ctx context.Context, claims token.Claims) error {
	if claims.ExpiresAt == nil {
		return fmt.Errorf("token has no expiry")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bank.tokens (token, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO NOTHING
	`, claims.ID, claims.UserID, r.now().UTC(), claims.ExpiresAt.Time.UTC())
	return err
}

func (r *SQLRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var revoked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bank.tokens WHERE token = $1)`, jti).Scan(&revoked)
	return revoked, err
}

// Purge drops entries whose token has expired on its own.
func (r *SQLRevocations) Purge(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM bank.tokens WHERE expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLRevocations) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
