package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Metric is a single timeseries datapoint, e.g. sync_new_count or
// enrich_duration_ms. Unit is "count" or "milliseconds".
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit"`
}

// MetricsSink persists datapoints.
type MetricsSink interface {
	RecordBatch(ctx context.Context, ms []*Metric) error
}

const metricsSchema = `
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_name TEXT NOT NULL,
    timestamp   INTEGER NOT NULL,
    value       REAL NOT NULL,
    labels      TEXT,
    unit        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);
`

// MetricsManager writes metrics to the metrics_timeseries table of the
// shared database. Writes are synchronous: one batch per run, in one
// transaction, from the single writer.
type MetricsManager struct {
	db *sql.DB
}

// NewMetricsManager creates a manager over db. Call Init before recording.
func NewMetricsManager(db *sql.DB) *MetricsManager {
	return &MetricsManager{db: db}
}

// Init creates the metrics table if needed.
func (mm *MetricsManager) Init() error {
	if _, err := mm.db.Exec(metricsSchema); err != nil {
		return fmt.Errorf("observability: init metrics: %w", err)
	}
	return nil
}

// RecordBatch inserts ms in one transaction. Timestamps are stored as unix
// milliseconds.
func (mm *MetricsManager) RecordBatch(ctx context.Context, ms []*Metric) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record metrics: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("record metrics: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range ms {
		var labels sql.NullString
		if len(m.Labels) > 0 {
			if b, err := json.Marshal(m.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.UnixMilli(), m.Value, labels, m.Unit); err != nil {
			return fmt.Errorf("record metric %s: %w", m.Name, err)
		}
	}
	return tx.Commit()
}

// Query returns metrics newest first, filtered by name ("" for all) and an
// optional time range. limit <= 0 means no limit.
func (mm *MetricsManager) Query(ctx context.Context, name string, start, end *time.Time, limit int) ([]*Metric, error) {
	q := sq.Select("metric_name", "timestamp", "value", "labels", "unit").
		From("metrics_timeseries").
		OrderBy("timestamp DESC", "metric_id DESC")
	if name != "" {
		q = q.Where(sq.Eq{"metric_name": name})
	}
	if start != nil {
		q = q.Where(sq.GtOrEq{"timestamp": start.UnixMilli()})
	}
	if end != nil {
		q = q.Where(sq.LtOrEq{"timestamp": end.UnixMilli()})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := mm.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			m      Metric
			ts     int64
			labels sql.NullString
		)
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &m.Unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts).UTC()
		if labels.Valid {
			_ = json.Unmarshal([]byte(labels.String), &m.Labels)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Run metric names.
const (
	MetricSyncSourcesChecked = "sync_sources_checked_count"
	MetricSyncNotModified    = "sync_not_modified_count"
	MetricSyncSourceErrors   = "sync_source_errors_count"
	MetricSyncNew            = "sync_new_count"
	MetricSyncUpdated        = "sync_updated_count"
	MetricSyncUnchanged      = "sync_unchanged_count"
	MetricSyncFailed         = "sync_failed_count"
	MetricSyncDurationMs     = "sync_duration_ms"

	MetricEnrichChecked    = "enrich_checked_count"
	MetricEnrichReady      = "enrich_ready_count"
	MetricEnrichFailed     = "enrich_failed_count"
	MetricEnrichTransient  = "enrich_transient_count"
	MetricEnrichExhausted  = "enrich_exhausted_count"
	MetricEnrichSkipped    = "enrich_skipped_count"
	MetricEnrichDurationMs = "enrich_duration_ms"
)

const (
	UnitCount        = "count"
	UnitMilliseconds = "milliseconds"
)
