package audit

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/corebank/backend/internal/models"
)

const defaultWriteTimeout = 2 * time.Second

// DBSink appends events to logs_repo.app_logs. Each write runs detached from
// the caller's cancellation under its own short timeout, so a finished or
// aborted request still leaves its trail.
type DBSink struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

func NewDBSink(db *sql.DB, timeout time.Duration) *DBSink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &DBSink{db: db, timeout: timeout, now: time.Now}
}

func (s *DBSink) Record(ctx context.Context, event Event) {
	event = Sanitize(event)
	entry := models.LogEntry{
		Timestamp:  s.now().UTC(),
		LogType:    event.Severity,
		IPAddress:  event.IP,
		Username:   event.Username,
		Action:     event.Action,
		HTTPStatus: event.Status,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs_repo.app_logs (timestamp, log_type, ip_address, username, action, http_status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.Timestamp, entry.LogType, entry.IPAddress, entry.Username, entry.Action, entry.HTTPStatus)
	if err != nil {
		log.Printf("[AUDIT] Failed to persist %s event for %s: %v", entry.LogType, entry.Username, err)
	}
}
