package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const recordColumns = `r.id, r.primary_key, r.first_source_id, r.last_source_id, r.guid, r.url,
	r.canonical_url, r.doi, r.doi_is_surrogate, r.title, r.author, r.summary, r.content,
	r.categories, r.published_at, r.updated_at, r.content_hash, r.first_seen_at, r.last_seen_at,
	r.raw_json`

// LookupKey returns the record a key is registered against.
func (s *Store) LookupKey(ctx context.Context, kind, value string) (int64, bool, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`SELECT record_id FROM identity_keys WHERE key_type = ? AND key_value = ?`,
		kind, value).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup key: %w", err)
	}
	return id, true, nil
}

// RegisterKeys maps every key to recordID. A key already registered is
// left alone; when it points at another record it counts as a conflict.
func (s *Store) RegisterKeys(ctx context.Context, recordID int64, keys []IdentityKey) (added, conflicts int, err error) {
	now := nowMs()
	for _, k := range keys {
		conf := k.Confidence
		if conf == "" {
			conf = "high"
		}
		res, err := s.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO identity_keys (key_type, key_value, record_id, confidence, surrogate, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			k.Kind, k.Value, recordID, conf, boolInt(k.Surrogate), now)
		if err != nil {
			return added, conflicts, fmt.Errorf("register key %s: %w", k.Kind, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
			continue
		}
		owner, found, err := s.LookupKey(ctx, k.Kind, k.Value)
		if err != nil {
			return added, conflicts, err
		}
		if found && owner != recordID {
			conflicts++
		}
	}
	return added, conflicts, nil
}

// KeysForRecord lists the keys registered against a record.
func (s *Store) KeysForRecord(ctx context.Context, recordID int64) ([]IdentityKey, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT key_type, key_value, record_id, confidence, surrogate, created_at
		FROM identity_keys WHERE record_id = ? ORDER BY created_at, key_type`, recordID)
	if err != nil {
		return nil, fmt.Errorf("keys for record: %w", err)
	}
	defer rows.Close()

	var out []IdentityKey
	for rows.Next() {
		var k IdentityKey
		var surrogate int
		if err := rows.Scan(&k.Kind, &k.Value, &k.RecordID, &k.Confidence, &surrogate, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.Surrogate = surrogate != 0
		out = append(out, k)
	}
	return out, rows.Err()
}

// GetRecord returns a record by ID, or nil when absent.
func (s *Store) GetRecord(ctx context.Context, id int64) (*Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records r WHERE r.id = ?`, id)
	rec, err := scanRecordFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// InsertRecord stores a new record and returns its ID.
func (s *Store) InsertRecord(ctx context.Context, r *Record) (int64, error) {
	cats, err := encodeCategories(r.Categories)
	if err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO records (primary_key, first_source_id, last_source_id, guid, url, canonical_url,
			doi, doi_is_surrogate, title, author, summary, content, categories, published_at,
			updated_at, content_hash, first_seen_at, last_seen_at, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PrimaryKey, r.FirstSourceID, r.LastSourceID, r.GUID, r.URL, r.CanonicalURL,
		r.DOI, boolInt(r.DOIIsSurrogate), r.Title, r.Author, r.Summary, r.Content, cats,
		nullInt(r.PublishedAt), nullInt(r.UpdatedAt), r.ContentHash, r.FirstSeenAt, r.LastSeenAt,
		rawJSON(r.RawJSON))
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRecord overwrites the payload of r.ID. first_seen_at and the
// primary key are never changed.
func (s *Store) UpdateRecord(ctx context.Context, r *Record) error {
	cats, err := encodeCategories(r.Categories)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		UPDATE records SET
			last_source_id = ?, guid = ?, url = ?, canonical_url = ?, doi = ?, doi_is_surrogate = ?,
			title = ?, author = ?, summary = ?, content = ?, categories = ?, published_at = ?,
			updated_at = ?, content_hash = ?, last_seen_at = ?, raw_json = ?
		WHERE id = ?`,
		r.LastSourceID, r.GUID, r.URL, r.CanonicalURL, r.DOI, boolInt(r.DOIIsSurrogate),
		r.Title, r.Author, r.Summary, r.Content, cats, nullInt(r.PublishedAt),
		nullInt(r.UpdatedAt), r.ContentHash, r.LastSeenAt, rawJSON(r.RawJSON), r.ID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// TouchRecord advances last_seen_at only.
func (s *Store) TouchRecord(ctx context.Context, id, sourceID, seenAt int64) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE records SET last_seen_at = ?, last_source_id = ? WHERE id = ?`,
		seenAt, sourceID, id)
	if err != nil {
		return fmt.Errorf("touch record: %w", err)
	}
	return nil
}

// CountRecords returns the number of stored records.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

// ListRecords returns records newest first.
func (s *Store) ListRecords(ctx context.Context, f RecordFilter) ([]*Record, error) {
	q := builder.Select(recordColumns).From("records r").
		OrderBy("COALESCE(r.published_at, r.first_seen_at) DESC", "r.id DESC")
	if f.SourceID > 0 {
		q = q.Where("r.last_source_id = ?", f.SourceID)
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecordFrom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteStaleRecords removes records last seen before the cutoff. Identity
// keys and enrichment rows go with them.
func (s *Store) DeleteStaleRecords(ctx context.Context, before int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM records WHERE last_seen_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("delete stale records: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts rows per table and enrichment rows per status.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Enrichment: map[string]int{}}
	err := s.q.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM sources), (SELECT COUNT(*) FROM records),
			(SELECT COUNT(*) FROM identity_keys)`).Scan(&st.Sources, &st.Records, &st.IdentityKeys)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	rows, err := s.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM enrichment GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st.Enrichment[status] = n
	}
	return st, rows.Err()
}

// recordDest holds scan targets for recordColumns.
type recordDest struct {
	rec                Record
	surrogate          int
	cats               string
	published, updated sql.NullInt64
}

func (d *recordDest) dest() []any {
	r := &d.rec
	return []any{&r.ID, &r.PrimaryKey, &r.FirstSourceID, &r.LastSourceID, &r.GUID,
		&r.URL, &r.CanonicalURL, &r.DOI, &d.surrogate, &r.Title, &r.Author, &r.Summary,
		&r.Content, &d.cats, &d.published, &d.updated, &r.ContentHash, &r.FirstSeenAt,
		&r.LastSeenAt, &r.RawJSON}
}

func (d *recordDest) value() (Record, error) {
	rec := d.rec
	rec.DOIIsSurrogate = d.surrogate != 0
	rec.PublishedAt = ptrInt(d.published)
	rec.UpdatedAt = ptrInt(d.updated)
	if d.cats != "" && d.cats != "[]" {
		if err := json.Unmarshal([]byte(d.cats), &rec.Categories); err != nil {
			return rec, fmt.Errorf("decode categories of record %d: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func scanRecordFrom(r rowScanner) (*Record, error) {
	var d recordDest
	if err := r.Scan(d.dest()...); err != nil {
		return nil, err
	}
	rec, err := d.value()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func encodeCategories(cats []string) (string, error) {
	if len(cats) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(cats)
	if err != nil {
		return "", fmt.Errorf("encode categories: %w", err)
	}
	return string(b), nil
}

func rawJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
