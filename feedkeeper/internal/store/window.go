package store

import (
	"context"
	"database/sql"
	"fmt"
)

const windowRef = "COALESCE(r.published_at, r.last_seen_at)"

// QueryWindow returns the records whose reference time falls in
// [Start, End), most recent first. Records are attributed to the source
// they were first seen on.
func (s *Store) QueryWindow(ctx context.Context, wq WindowQuery) ([]WindowRow, error) {
	if wq.End <= wq.Start {
		return nil, fmt.Errorf("window: end %d not after start %d", wq.End, wq.Start)
	}
	cols := []string{recordColumns, "src.url", "src.title", windowRef}
	if wq.WithEnrichment {
		cols = append(cols, enrichmentColumns)
	}
	q := builder.Select(cols...).
		From("records r").
		Join("sources src ON src.id = r.first_source_id").
		Where(windowRef+" >= ?", wq.Start).
		Where(windowRef+" < ?", wq.End).
		OrderBy(windowRef+" DESC", "r.id DESC")
	if wq.WithEnrichment {
		q = q.LeftJoin("enrichment e ON e.record_id = r.id")
	}
	if wq.Limit > 0 {
		q = q.Limit(uint64(wq.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	defer rows.Close()

	var out []WindowRow
	for rows.Next() {
		row, err := scanWindowRow(rows, wq.WithEnrichment)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func scanWindowRow(rows *sql.Rows, withEnrichment bool) (WindowRow, error) {
	var rd recordDest
	var wr WindowRow
	var ne nullableEnrichment
	dest := append(rd.dest(), &wr.SourceURL, &wr.SourceTitle, &wr.ReferenceAt)
	if withEnrichment {
		dest = append(dest, ne.dest()...)
	}
	if err := rows.Scan(dest...); err != nil {
		return WindowRow{}, err
	}
	rec, err := rd.value()
	if err != nil {
		return WindowRow{}, err
	}
	wr.Record = rec
	wr.Enrichment = ne.value()
	return wr, nil
}
