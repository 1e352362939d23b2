package store

import (
	"context"
	"database/sql"
	"fmt"
)

const sourceColumns = `id, url, title, site_url, kind, active, etag, last_modified,
	last_checked_at, last_success_at, last_status, last_error, created_at, updated_at`

// UpsertSource registers a source by URL. An existing source keeps its
// cache state; an empty title or site URL is filled in. created reports
// whether a row was inserted.
func (s *Store) UpsertSource(ctx context.Context, url, title, siteURL, kind string) (src *Source, created bool, err error) {
	if kind == "" {
		kind = KindFeed
	}
	existing, err := s.GetSourceByURL(ctx, url)
	if err != nil {
		return nil, false, err
	}
	now := nowMs()
	if existing != nil {
		_, err := s.q.ExecContext(ctx, `
			UPDATE sources SET
				title = CASE WHEN title = '' THEN ? ELSE title END,
				site_url = CASE WHEN site_url = '' THEN ? ELSE site_url END,
				active = 1, updated_at = ?
			WHERE id = ?`,
			title, siteURL, now, existing.ID)
		if err != nil {
			return nil, false, fmt.Errorf("update source: %w", err)
		}
		src, err := s.GetSource(ctx, existing.ID)
		return src, false, err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO sources (url, title, site_url, kind, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		url, title, siteURL, kind, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	src, err = s.GetSource(ctx, id)
	return src, true, err
}

// GetSource returns a source by ID, or nil when absent.
func (s *Store) GetSource(ctx context.Context, id int64) (*Source, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// GetSourceByURL returns a source by its canonical URL, or nil when absent.
func (s *Store) GetSourceByURL(ctx context.Context, url string) (*Source, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE url = ?`, url)
	return scanSource(row)
}

// ListSources returns all sources of kind ("" for every kind) by ID.
func (s *Store) ListSources(ctx context.Context, kind string) ([]*Source, error) {
	q := builder.Select(sourceColumns).From("sources").OrderBy("id ASC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	return scanSourceRows(rows)
}

// SourcesForSync returns active feeds, least recently checked first. A
// limit of 0 returns all of them.
func (s *Store) SourcesForSync(ctx context.Context, limit int) ([]*Source, error) {
	q := builder.Select(sourceColumns).From("sources").
		Where("active = 1").
		Where("kind = ?", KindFeed).
		OrderBy("last_checked_at ASC NULLS FIRST", "id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sources for sync: %w", err)
	}
	defer rows.Close()
	return scanSourceRows(rows)
}

// SaveCacheState writes the conditional fetch state of a source.
func (s *Store) SaveCacheState(ctx context.Context, sourceID int64, c CacheUpdate) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE sources SET
			etag = ?, last_modified = ?, last_checked_at = ?, last_success_at = ?,
			last_status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		c.ETag, c.LastModified, nullInt(c.LastCheckedAt), nullInt(c.LastSuccessAt),
		c.LastStatus, c.LastError, nowMs(), sourceID)
	if err != nil {
		return fmt.Errorf("save cache state: %w", err)
	}
	return nil
}

// SetSourceActive enables or disables a source for sync.
func (s *Store) SetSourceActive(ctx context.Context, sourceID int64, active bool) error {
	_, err := s.q.ExecContext(ctx, `UPDATE sources SET active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), nowMs(), sourceID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row *sql.Row) (*Source, error) {
	src, err := scanSourceFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return src, err
}

func scanSourceFrom(r rowScanner) (*Source, error) {
	var src Source
	var active int
	var checked, success sql.NullInt64
	err := r.Scan(&src.ID, &src.URL, &src.Title, &src.SiteURL, &src.Kind, &active,
		&src.ETag, &src.LastModified, &checked, &success,
		&src.LastStatus, &src.LastError, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}
	src.Active = active != 0
	src.LastCheckedAt = ptrInt(checked)
	src.LastSuccessAt = ptrInt(success)
	return &src, nil
}

func scanSourceRows(rows *sql.Rows) ([]*Source, error) {
	var out []*Source
	for rows.Next() {
		src, err := scanSourceFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
