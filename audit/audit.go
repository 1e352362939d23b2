// CLAUDE:SUMMARY Audit trail of feedkeeper operations (sync, enrich, queue-add, MCP tool calls) in an SQLite audit_log table.
// Package audit records who ran what, when, and how it ended.
//
// Entries are written synchronously: feedkeeper runs one writer at a time
// and an entry is cheap next to the run it describes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hazyhaar/feedkeeper/idgen"
	"github.com/hazyhaar/feedkeeper/kit"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one audit_log row. Timestamp is unix milliseconds.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"`
	Action     string `json:"action"`
	Transport  string `json:"transport"`
	RequestID  string `json:"request_id,omitempty"`
	Parameters string `json:"parameters,omitempty"`
	Result     string `json:"result,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, e *Entry) error
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	action        TEXT NOT NULL,
	transport     TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	parameters    TEXT NOT NULL DEFAULT '',
	result        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action, timestamp);
`

// SQLiteLogger stores entries in the audit_log table.
type SQLiteLogger struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator overrides the entry id generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *SQLiteLogger) { l.now = now }
}

// NewSQLiteLogger creates a logger over db. Call Init before logging.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Init creates the audit_log table if needed.
func (l *SQLiteLogger) Init() error {
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("audit: init: %w", err)
	}
	return nil
}

func (l *SQLiteLogger) fillDefaults(ctx context.Context, e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = l.now().UnixMilli()
	}
	if e.Transport == "" {
		e.Transport = kit.GetTransport(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = kit.GetRequestID(ctx)
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.Error != "" {
			e.Status = StatusError
		}
	}
}

// Log fills missing fields (id, timestamp, transport, request id, status)
// and inserts e.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(ctx, e)
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (entry_id, timestamp, action, transport, request_id, parameters, result, status, error_message, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.Timestamp, e.Action, e.Transport, e.RequestID,
		e.Parameters, e.Result, e.Status, e.Error, e.DurationMs)
	if err != nil {
		return fmt.Errorf("audit: log %s: %w", e.Action, err)
	}
	return nil
}

// Recent returns the newest entries, optionally restricted to one action.
// limit <= 0 means 50.
func (l *SQLiteLogger) Recent(ctx context.Context, action string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	q := sq.Select("entry_id", "timestamp", "action", "transport", "request_id",
		"parameters", "result", "status", "error_message", "duration_ms").
		From("audit_log").
		OrderBy("timestamp DESC", "entry_id DESC").
		Limit(uint64(limit))
	if action != "" {
		q = q.Where(sq.Eq{"action": action})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport, &e.RequestID,
			&e.Parameters, &e.Result, &e.Status, &e.Error, &e.DurationMs); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Encode renders v as compact JSON for the Parameters and Result columns.
// Values that cannot be encoded are recorded as "".
func Encode(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Middleware records one entry per endpoint call. A failure to write the
// entry never changes the endpoint's outcome.
func Middleware(l Logger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			e := &Entry{
				Action:     action,
				Parameters: Encode(req),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				e.Error = err.Error()
			}
			_ = l.Log(ctx, e)
			return resp, err
		}
	}
}
