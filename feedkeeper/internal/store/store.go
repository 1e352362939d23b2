// CLAUDE:SUMMARY Store wraps the feedkeeper SQLite database; Tx binds it to a single transaction.
// Package store persists sources, records, identity keys, enrichment state and the fetch log.
package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hazyhaar/feedkeeper/dbopen"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides typed access to the feedkeeper database.
type Store struct {
	DB *sql.DB
	q  querier
	tx bool
}

// NewStore creates a Store over db. The schema must already be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, q: db}
}

// Tx runs fn with a store bound to one transaction. Nested calls reuse the
// outer transaction. fn must only use the store it is given: the pool may
// hold a single connection.
func (s *Store) Tx(ctx context.Context, fn func(*Store) error) error {
	if s.tx {
		return fn(s)
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		return fn(&Store{DB: s.DB, q: tx, tx: true})
	})
}

// builder emits '?' placeholders for SQLite.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func nowMs() int64 { return time.Now().UnixMilli() }

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func ptrInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
