// Package audit records one event per authentication and ledger outcome.
// Recording is fire-and-forget: sinks never return errors to callers.
package audit

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

const (
	maxSeverityLen = 10
	maxIPLen       = 50
	maxUsernameLen = 50
	maxActionLen   = 255
)

// Event describes an operation outcome.
type Event struct {
	Severity string
	IP       string
	Username string
	Action   string
	Status   int
}

// Recorder receives audit events.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Sanitize strips line breaks, trims and length-caps every text field.
func Sanitize(event Event) Event {
	return Event{
		Severity: clean(strings.ToUpper(event.Severity), maxSeverityLen),
		IP:       orUnknown(clean(event.IP, maxIPLen)),
		Username: orUnknown(clean(event.Username, maxUsernameLen)),
		Action:   clean(event.Action, maxActionLen),
		Status:   event.Status,
	}
}

func clean(value string, maxLen int) string {
	value = strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) <= maxLen {
		return value
	}
	value = value[:maxLen]
	for len(value) > 0 && !utf8.ValidString(value) {
		value = value[:len(value)-1]
	}
	return value
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

type multi []Recorder

// Multi fans every event out to each non-nil recorder in order.
func Multi(recorders ...Recorder) Recorder {
	var m multi
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) Record(ctx context.Context, event Event) {
	for _, r := range m {
		r.Record(ctx, event)
	}
}
