package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mail-agent/internal/decision"
	"mail-agent/internal/email"
)

// Entry is one audit record
type Entry struct {
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
	MessageID      string    `json:"message_id,omitempty" db:"message_id"`
	From           string    `json:"from" db:"sender"`
	Subject        string    `json:"subject" db:"subject"`
	Classification string    `json:"classification" db:"classification"`
	ActionType     string    `json:"action_type" db:"action_type"`
	ActionReason   string    `json:"action_reason,omitempty" db:"action_reason"`
}

// NewEntry builds an entry for a decided message
func NewEntry(now time.Time, msg email.ParsedMessage, cls decision.Classification, action decision.Action) Entry {
	return Entry{
		Timestamp:      now,
		MessageID:      msg.ID,
		From:           msg.From,
		Subject:        msg.Subject,
		Classification: cls.String(),
		ActionType:     string(action.Type),
		ActionReason:   action.Reason,
	}
}

// Journal appends entries to a daily JSON-lines file
type Journal struct {
	dir     string
	console io.Writer
	mirror  *Store
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// Option configures a Journal
type Option func(*Journal)

// WithMirror also inserts every entry into store
func WithMirror(store *Store) Option {
	return func(j *Journal) { j.mirror = store }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// NewJournal creates a journal writing under dir
func NewJournal(dir string, console io.Writer, logger *slog.Logger, opts ...Option) *Journal {
	if console == nil {
		console = io.Discard
	}
	j := &Journal{
		dir:     dir,
		console: console,
		logger:  logger.With("component", "auditlog"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// FileFor returns the log file used for entries written at t
func (j *Journal) FileFor(t time.Time) string {
	return filepath.Join(j.dir, fmt.Sprintf("agent_%s.log", t.Format("2006-01-02")))
}

// Append records a decision. The file is opened in append mode per write.
// Mirror failures are logged and do not fail the append.
func (j *Journal) Append(ctx context.Context, msg email.ParsedMessage, cls decision.Classification, action decision.Action) error {
	entry := NewEntry(j.now(), msg, cls, action)

	fmt.Fprintf(j.console, "    [LOG] %s -> %s\n", entry.Classification, entry.ActionType)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode log entry: %w", err)
	}

	if err := j.appendLine(entry.Timestamp, line); err != nil {
		return err
	}

	if j.mirror != nil {
		if err := j.mirror.Insert(ctx, entry); err != nil {
			j.logger.Warn("Failed to mirror log entry", "message_id", msg.ID, "error", err)
		}
	}
	return nil
}

func (j *Journal) appendLine(t time.Time, line []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	path := j.FileFor(t)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write log file %s: %w", path, err)
	}
	return nil
}
