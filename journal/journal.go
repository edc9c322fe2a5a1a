// CLAUDE:SUMMARY SQLite journal of merge/split operations — metadata only, never document bytes.
// Package journal records one row per pagesmith operation: what was asked,
// how many artifacts came out, and how it ended. Document contents are
// never stored.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pagesmith/dbopen"
	"github.com/hazyhaar/pagesmith/idgen"
)

// Schema is the DDL for the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS operations (
    id          TEXT PRIMARY KEY,
    op          TEXT NOT NULL,
    request_id  TEXT,
    transport   TEXT,
    inputs      TEXT NOT NULL DEFAULT '[]',
    params      TEXT NOT NULL DEFAULT '',
    outputs     INTEGER NOT NULL DEFAULT 0,
    pages       INTEGER NOT NULL DEFAULT 0,
    bytes       INTEGER NOT NULL DEFAULT 0,
    warnings    INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL,
    error       TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operations_created ON operations(created_at DESC);
`

// Status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Entry is one journaled operation.
type Entry struct {
	ID         string    `json:"id"`
	Op         string    `json:"op"` // merge, split_ranges, split_size, plan, inspect
	RequestID  string    `json:"request_id,omitempty"`
	Transport  string    `json:"transport,omitempty"`
	Inputs     []string  `json:"inputs"`
	Params     string    `json:"params,omitempty"` // range expression or size target
	Outputs    int       `json:"outputs"`
	Pages      int       `json:"pages"`
	Bytes      int64     `json:"bytes"`
	Warnings   int       `json:"warnings"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Journal writes and reads operation entries.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets the generator for entry IDs. Default: "op_" + UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithLogger sets the logger used to report write failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// New creates a Journal on db, which must already carry Schema.
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:     db,
		newID:  idgen.Prefixed("op_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Open opens (or creates) a journal database file.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return New(db, opts...), nil
}

// Close closes the underlying database.
func (j *Journal) Close() error { return j.db.Close() }

// Record stores e, filling ID and CreatedAt when empty. Failures are logged
// and swallowed: the journal never fails the operation it describes.
func (j *Journal) Record(ctx context.Context, e *Entry) {
	if e.ID == "" {
		e.ID = j.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Inputs == nil {
		e.Inputs = []string{}
	}
	inputs, _ := json.Marshal(e.Inputs)

	_, err := dbopen.Exec(ctx, j.db, `
		INSERT INTO operations (
			id, op, request_id, transport, inputs, params, outputs, pages,
			bytes, warnings, status, error, duration_ms, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Op, e.RequestID, e.Transport, string(inputs), e.Params, e.Outputs, e.Pages,
		e.Bytes, e.Warnings, e.Status, e.Error, e.DurationMs, e.CreatedAt.UnixMilli())
	if err != nil {
		j.logger.Error("journal: record failed", "error", err, "op", e.Op)
	}
}

// Recent returns the latest entries, newest first. limit <= 0 means 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, op, request_id, transport, inputs, params, outputs, pages,
		       bytes, warnings, status, error, duration_ms, created_at
		FROM operations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var requestID, transport, errMsg sql.NullString
		var inputs string
		var created int64
		if err := rows.Scan(&e.ID, &e.Op, &requestID, &transport, &inputs, &e.Params,
			&e.Outputs, &e.Pages, &e.Bytes, &e.Warnings, &e.Status, &errMsg,
			&e.DurationMs, &created); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.RequestID = requestID.String
		e.Transport = transport.String
		e.Error = errMsg.String
		e.CreatedAt = time.UnixMilli(created)
		if err := json.Unmarshal([]byte(inputs), &e.Inputs); err != nil {
			return nil, fmt.Errorf("journal: decode inputs of %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retention.
func (j *Journal) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	res, err := dbopen.Exec(ctx, j.db, `DELETE FROM operations WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("journal: cleanup: %w", err)
	}
	return res.RowsAffected()
}
