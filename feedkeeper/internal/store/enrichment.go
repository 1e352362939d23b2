package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const enrichmentColumns = `e.record_id, e.status, e.content_kind, e.extractor, e.source_url,
	e.final_url, e.http_status, e.content_text, e.content_hash, e.content_length, e.retry_count,
	e.next_retry_at, e.last_error, e.fetched_at, e.created_at, e.updated_at`

// GetEnrichment returns the enrichment row of a record, or nil when the
// record has never been attempted.
func (s *Store) GetEnrichment(ctx context.Context, recordID int64) (*Enrichment, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment e WHERE e.record_id = ?`, recordID)
	e, err := scanEnrichmentFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// PutEnrichment writes the full enrichment state of e.RecordID in one
// upsert statement. created_at is set on first attempt only.
func (s *Store) PutEnrichment(ctx context.Context, e *Enrichment) error {
	now := nowMs()
	e.ContentLength = len([]rune(e.ContentText))

	err := s.q.QueryRowContext(ctx, `
		INSERT INTO enrichment (record_id, status, content_kind, extractor, source_url, final_url,
			http_status, content_text, content_hash, content_length, retry_count, next_retry_at,
			last_error, fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			status = excluded.status, content_kind = excluded.content_kind,
			extractor = excluded.extractor, source_url = excluded.source_url,
			final_url = excluded.final_url, http_status = excluded.http_status,
			content_text = excluded.content_text, content_hash = excluded.content_hash,
			content_length = excluded.content_length, retry_count = excluded.retry_count,
			next_retry_at = excluded.next_retry_at, last_error = excluded.last_error,
			fetched_at = excluded.fetched_at, updated_at = excluded.updated_at
		RETURNING created_at`,
		e.RecordID, e.Status, e.ContentKind, e.Extractor, e.SourceURL, e.FinalURL,
		e.HTTPStatus, e.ContentText, e.ContentHash, e.ContentLength, e.RetryCount,
		nullInt(e.NextRetryAt), e.LastError, nullInt(e.FetchedAt), now, now).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("put enrichment: %w", err)
	}
	e.UpdatedAt = now
	return nil
}

// EnrichmentCandidates selects records due for an enrichment attempt. The
// WHERE clause is the SQL form of retry.Eligible. Order: never attempted
// first, then failed rows by retry count, then newest.
func (s *Store) EnrichmentCandidates(ctx context.Context, cq CandidateQuery) ([]Candidate, error) {
	q := builder.Select(recordColumns, enrichmentColumns).
		From("records r").
		LeftJoin("enrichment e ON e.record_id = r.id").
		OrderBy(
			"CASE WHEN e.record_id IS NULL OR e.status = 'new' THEN 0 WHEN e.status = 'failed' THEN 1 ELSE 2 END",
			"COALESCE(e.retry_count, 0) ASC",
			"COALESCE(r.published_at, r.first_seen_at) DESC",
			"r.id DESC",
		)

	if cq.OnlyFailed {
		q = q.Where(sq.Eq{"e.status": StatusFailed})
	}
	if !cq.Force {
		due := sq.And{
			sq.NotEq{"e.status": StatusReady},
			sq.Or{sq.Eq{"e.next_retry_at": nil}, sq.LtOrEq{"e.next_retry_at": cq.Now}},
		}
		if cq.MaxRetries >= 0 {
			due = append(due, sq.Lt{"e.retry_count": cq.MaxRetries})
		}
		eligible := sq.Or{sq.Eq{"e.record_id": nil}, due}
		if cq.RefetchBefore != nil {
			eligible = append(eligible, sq.And{
				sq.Eq{"e.status": StatusReady},
				sq.Or{sq.Eq{"e.fetched_at": nil}, sq.LtOrEq{"e.fetched_at": *cq.RefetchBefore}},
			})
		}
		q = q.Where(eligible)
	}
	if cq.Limit > 0 {
		q = q.Limit(uint64(cq.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("enrichment candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListEnrichment returns enrichment rows by status ("" for all), most
// recently updated first.
func (s *Store) ListEnrichment(ctx context.Context, status string, limit int) ([]*Enrichment, error) {
	q := builder.Select(enrichmentColumns).From("enrichment e").
		OrderBy("e.updated_at DESC", "e.record_id DESC")
	if status != "" {
		q = q.Where(sq.Eq{"e.status": status})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list enrichment: %w", err)
	}
	defer rows.Close()

	var out []*Enrichment
	for rows.Next() {
		e, err := scanEnrichmentFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEnrichmentFrom(r rowScanner) (*Enrichment, error) {
	var e Enrichment
	var next, fetched sql.NullInt64
	err := r.Scan(&e.RecordID, &e.Status, &e.ContentKind, &e.Extractor, &e.SourceURL,
		&e.FinalURL, &e.HTTPStatus, &e.ContentText, &e.ContentHash, &e.ContentLength,
		&e.RetryCount, &next, &e.LastError, &fetched, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.NextRetryAt = ptrInt(next)
	e.FetchedAt = ptrInt(fetched)
	return &e, nil
}

// nullableEnrichment scans the LEFT JOINed enrichment columns.
type nullableEnrichment struct {
	recordID, httpStatus, length, retries, next, fetched, created, updated sql.NullInt64

	status, kind, extractor, sourceURL, finalURL, text, hash, lastError sql.NullString
}

func (n *nullableEnrichment) dest() []any {
	return []any{&n.recordID, &n.status, &n.kind, &n.extractor, &n.sourceURL, &n.finalURL,
		&n.httpStatus, &n.text, &n.hash, &n.length, &n.retries, &n.next, &n.lastError,
		&n.fetched, &n.created, &n.updated}
}

func (n *nullableEnrichment) value() *Enrichment {
	if !n.recordID.Valid {
		return nil
	}
	return &Enrichment{
		RecordID:      n.recordID.Int64,
		Status:        n.status.String,
		ContentKind:   n.kind.String,
		Extractor:     n.extractor.String,
		SourceURL:     n.sourceURL.String,
		FinalURL:      n.finalURL.String,
		HTTPStatus:    int(n.httpStatus.Int64),
		ContentText:   n.text.String,
		ContentHash:   n.hash.String,
		ContentLength: int(n.length.Int64),
		RetryCount:    int(n.retries.Int64),
		NextRetryAt:   ptrInt(n.next),
		LastError:     n.lastError.String,
		FetchedAt:     ptrInt(n.fetched),
		CreatedAt:     n.created.Int64,
		UpdatedAt:     n.updated.Int64,
	}
}

func scanCandidate(rows *sql.Rows) (Candidate, error) {
	var rd recordDest
	var ne nullableEnrichment
	if err := rows.Scan(append(rd.dest(), ne.dest()...)...); err != nil {
		return Candidate{}, err
	}
	rec, err := rd.value()
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{Record: rec, Enrichment: ne.value()}, nil
}
