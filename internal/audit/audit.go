package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// Entry records who did what to which device through the dashboard API.
type Entry struct {
	ID        string
	Actor     string
	Role      string
	Action    string
	DeviceID  string
	Metadata  json.RawMessage
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// LogLogger writes audit entries to a standard logger. Used when no
// database is configured for audit persistence.
type LogLogger struct {
	logger *log.Logger
}

// NewLogLogger constructs a log-backed audit logger.
func NewLogLogger(logger *log.Logger) *LogLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &LogLogger{logger: logger}
}

// Log prints the entry.
func (l *LogLogger) Log(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	l.logger.Printf("audit: id=%s actor=%s role=%s action=%s device=%s ip=%s", entry.ID, entry.Actor, entry.Role, entry.Action, entry.DeviceID, entry.IP)
	return nil
}
