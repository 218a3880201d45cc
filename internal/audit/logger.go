package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

type logLine struct {
	Timestamp time.Time `json:"timestamp"`
	EventID   string    `json:"event_id"`
	Severity  string    `json:"severity"`
	IP        string    `json:"ip"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Status    int       `json:"status"`
}

// LogSink writes each event to the process log as a JSON line.
type LogSink struct {
	now func() time.Time
}

func NewLogSink() *LogSink {
	return &LogSink{now: time.Now}
}

func (l *LogSink) Record(_ context.Context, event Event) {
	event = Sanitize(event)
	line := logLine{
		Timestamp: l.now().UTC(),
		EventID:   uuid.NewString(),
		Severity:  event.Severity,
		IP:        event.IP,
		Username:  event.Username,
		Action:    event.Action,
		Status:    event.Status,
	}
	data, err := json.Marshal(line)
	if err != nil {
		log.Printf("[AUDIT] Failed to encode event: %v", err)
		return
	}
	log.Printf("AUDIT: %s", string(data))
}
