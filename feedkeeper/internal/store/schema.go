// CLAUDE:SUMMARY Applies the feedkeeper SQL schema: sources, records, identity keys, enrichment, fetch log.
package store

import "database/sql"

// Schema is the complete feedkeeper schema. Timestamps are unix ms.
const Schema = `
-- Feeds and queues, with their conditional fetch state
CREATE TABLE IF NOT EXISTS sources (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    url             TEXT NOT NULL UNIQUE,
    title           TEXT NOT NULL DEFAULT '',
    site_url        TEXT NOT NULL DEFAULT '',
    kind            TEXT NOT NULL DEFAULT 'feed' CHECK (kind IN ('feed', 'queue')),
    active          INTEGER NOT NULL DEFAULT 1,
    etag            TEXT NOT NULL DEFAULT '',
    last_modified   TEXT NOT NULL DEFAULT '',
    last_checked_at INTEGER,
    last_success_at INTEGER,
    last_status     INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_checked ON sources(active, last_checked_at);

-- One row per distinct real-world item
CREATE TABLE IF NOT EXISTS records (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    primary_key      TEXT NOT NULL UNIQUE,
    first_source_id  INTEGER NOT NULL REFERENCES sources(id),
    last_source_id   INTEGER NOT NULL REFERENCES sources(id),
    guid             TEXT NOT NULL DEFAULT '',
    url              TEXT NOT NULL DEFAULT '',
    canonical_url    TEXT NOT NULL DEFAULT '',
    doi              TEXT NOT NULL DEFAULT '',
    doi_is_surrogate INTEGER NOT NULL DEFAULT 0,
    title            TEXT NOT NULL DEFAULT '',
    author           TEXT NOT NULL DEFAULT '',
    summary          TEXT NOT NULL DEFAULT '',
    content          TEXT NOT NULL DEFAULT '',
    categories       TEXT NOT NULL DEFAULT '[]',
    published_at     INTEGER,
    updated_at       INTEGER,
    content_hash     TEXT NOT NULL,
    first_seen_at    INTEGER NOT NULL,
    last_seen_at     INTEGER NOT NULL,
    raw_json         TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_records_window ON records(COALESCE(published_at, last_seen_at) DESC);
CREATE INDEX IF NOT EXISTS idx_records_last_seen ON records(last_seen_at);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(last_source_id);

-- Every identity key ever observed for a record
CREATE TABLE IF NOT EXISTS identity_keys (
    key_type   TEXT NOT NULL CHECK (key_type IN ('guid', 'canonical_url', 'doi', 'content_hash_fallback')),
    key_value  TEXT NOT NULL,
    record_id  INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
    confidence TEXT NOT NULL DEFAULT 'high' CHECK (confidence IN ('high', 'low')),
    surrogate  INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (key_type, key_value)
);
CREATE INDEX IF NOT EXISTS idx_identity_keys_record ON identity_keys(record_id);

-- Fulltext / abstract companion state, 1:1 with records
CREATE TABLE IF NOT EXISTS enrichment (
    record_id      INTEGER PRIMARY KEY REFERENCES records(id) ON DELETE CASCADE,
    status         TEXT NOT NULL DEFAULT 'new' CHECK (status IN ('new', 'ready', 'failed')),
    content_kind   TEXT NOT NULL DEFAULT '',
    extractor      TEXT NOT NULL DEFAULT '',
    source_url     TEXT NOT NULL DEFAULT '',
    final_url      TEXT NOT NULL DEFAULT '',
    http_status    INTEGER NOT NULL DEFAULT 0,
    content_text   TEXT NOT NULL DEFAULT '',
    content_hash   TEXT NOT NULL DEFAULT '',
    content_length INTEGER NOT NULL DEFAULT 0,
    retry_count    INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
    next_retry_at  INTEGER,
    last_error     TEXT NOT NULL DEFAULT '',
    fetched_at     INTEGER,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    CHECK (status != 'ready' OR content_text != ''),
    CHECK (status = 'failed' OR next_retry_at IS NULL)
);
CREATE INDEX IF NOT EXISTS idx_enrichment_queue ON enrichment(status, next_retry_at);

-- Fetch log (observability)
CREATE TABLE IF NOT EXISTS fetch_log (
    id            TEXT PRIMARY KEY,
    source_id     INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
    status        TEXT NOT NULL CHECK (status IN ('ok', 'not_modified', 'error')),
    status_code   INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    item_count    INTEGER NOT NULL DEFAULT 0,
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    fetched_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_source ON fetch_log(source_id, fetched_at DESC);
`

// Migration001SourceSiteURL adds site_url to databases created before OPML import.
const Migration001SourceSiteURL = `
ALTER TABLE sources ADD COLUMN site_url TEXT NOT NULL DEFAULT '';
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return err
	}
	return applyColumnMigration(db, "sources", "site_url", Migration001SourceSiteURL)
}

// applyColumnMigration adds a column if it doesn't exist (idempotent).
func applyColumnMigration(db *sql.DB, table, column, ddl string) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil || count > 0 {
		return err
	}
	_, err = db.Exec(ddl)
	return err
}
