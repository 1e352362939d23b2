package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/feedkeeper/idgen"
)

// InsertFetchLog records one fetch attempt. An empty ID is generated.
func (s *Store) InsertFetchLog(ctx context.Context, e *FetchLogEntry) error {
	if e.ID == "" {
		e.ID = idgen.New()
	}
	if e.FetchedAt == 0 {
		e.FetchedAt = nowMs()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO fetch_log (id, source_id, status, status_code, error_message, item_count, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.Status, e.StatusCode, e.ErrorMessage, e.ItemCount, e.DurationMs, e.FetchedAt)
	if err != nil {
		return fmt.Errorf("insert fetch log: %w", err)
	}
	return nil
}

// FetchHistory returns the most recent fetch attempts of a source.
func (s *Store) FetchHistory(ctx context.Context, sourceID int64, limit int) ([]*FetchLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, source_id, status, status_code, error_message, item_count, duration_ms, fetched_at
		FROM fetch_log WHERE source_id = ?
		ORDER BY fetched_at DESC, id DESC LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer rows.Close()

	var out []*FetchLogEntry
	for rows.Next() {
		var e FetchLogEntry
		if err := rows.Scan(&e.ID, &e.SourceID, &e.Status, &e.StatusCode, &e.ErrorMessage,
			&e.ItemCount, &e.DurationMs, &e.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
