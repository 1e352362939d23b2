// CLAUDE:SUMMARY Service facade: feed registration, OPML import, sync, queue ingestion, enrichment runs, listings and retention.
package feedkeeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/feedkeeper/audit"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/change"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/enrich"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/feed"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/fetch"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/identity"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/pipeline"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/retry"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/store"
	"github.com/hazyhaar/feedkeeper/idgen"
	"github.com/hazyhaar/feedkeeper/observability"
)

// Service is the feedkeeper API over one SQLite database.
type Service struct {
	store   *store.Store
	cfg     Config
	merge   change.Policy
	fetcher *fetch.Fetcher
	audit   audit.Logger              // optional
	metrics observability.MetricsSink // optional
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	urlValidator func(string) error
	now          func() time.Time
	audit        audit.Logger
	metrics      observability.MetricsSink
}

// WithURLValidator overrides the SSRF guard applied to every outbound
// request and redirect. Tests use it to reach httptest servers.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(o *serviceOptions) { o.urlValidator = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.now = now }
}

// WithAudit records data-modifying runs and MCP tool calls.
func WithAudit(a audit.Logger) ServiceOption {
	return func(o *serviceOptions) { o.audit = a }
}

// WithMetrics records the counts and duration of every sync and enrich run.
func WithMetrics(m observability.MetricsSink) ServiceOption {
	return func(o *serviceOptions) { o.metrics = m }
}

// New creates a Service. The schema is applied (idempotently) and cfg is
// validated after defaults are filled; cfg is copied.
func New(db *sql.DB, cfg Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	merge, _ := change.ParsePolicy(cfg.Sync.Merge)

	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("feedkeeper: apply schema: %w", err)
	}

	return &Service{
		store: store.NewStore(db),
		cfg:   cfg,
		merge: merge,
		fetcher: fetch.New(fetch.Config{
			Timeout:      cfg.Fetch.Timeout,
			MaxBytes:     cfg.Fetch.MaxBytes,
			UserAgent:    cfg.Fetch.UserAgent,
			URLValidator: o.urlValidator,
		}),
		audit:   o.audit,
		metrics: o.metrics,
		logger:  logger,
		now:     o.now,
	}, nil
}

// auditLog writes an entry when an audit logger is configured. result is
// reduced to its first line. Audit failures are logged, never returned.
func (svc *Service) auditLog(ctx context.Context, action string, params any, result string, err error, start time.Time) {
	if svc.audit == nil {
		return
	}
	if i := strings.IndexByte(result, '\n'); i >= 0 {
		result = result[:i]
	}
	e := &audit.Entry{
		Action:     action,
		Parameters: audit.Encode(params),
		Result:     result,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if lerr := svc.audit.Log(ctx, e); lerr != nil {
		svc.logger.Warn("feedkeeper: audit log failed", "action", action, "error", lerr)
	}
}

// History returns recent audit entries, optionally of one action. It
// fails when the service has no queryable audit logger.
func (svc *Service) History(ctx context.Context, action string, limit int) ([]*audit.Entry, error) {
	r, ok := svc.audit.(interface {
		Recent(ctx context.Context, action string, limit int) ([]*audit.Entry, error)
	})
	if !ok {
		return nil, fmt.Errorf("%w: audit log not enabled", ErrInvalidInput)
	}
	return r.Recent(ctx, action, limit)
}

// Metrics returns recorded run datapoints, newest first, optionally of
// one metric name. It fails when the service has no queryable sink.
func (svc *Service) Metrics(ctx context.Context, name string, limit int) ([]*observability.Metric, error) {
	q, ok := svc.metrics.(interface {
		Query(ctx context.Context, name string, start, end *time.Time, limit int) ([]*observability.Metric, error)
	})
	if !ok {
		return nil, fmt.Errorf("%w: metrics not enabled", ErrInvalidInput)
	}
	return q.Query(ctx, name, nil, nil, limit)
}

// ApplySchema creates or migrates the feedkeeper tables.
func ApplySchema(db *sql.DB) error {
	return store.ApplySchema(db)
}

// Config returns the effective configuration.
func (svc *Service) Config() Config { return svc.cfg }

func (svc *Service) canonicalSource(raw string) (string, error) {
	c := identity.CanonicalURL(raw, svc.cfg.Identity.TrackingParams)
	u, err := url.Parse(c)
	if c == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: source url %q must be an absolute http(s) URL", ErrInvalidInput, raw)
	}
	return c, nil
}

// AddFeed registers a feed by canonical URL. created is false when it was
// already known; an inactive feed is re-activated.
func (svc *Service) AddFeed(ctx context.Context, rawURL, title string) (*Source, bool, error) {
	u, err := svc.canonicalSource(rawURL)
	if err != nil {
		return nil, false, err
	}
	start := time.Now()
	src, created, err := svc.store.UpsertSource(ctx, u, strings.TrimSpace(title), "", store.KindFeed)
	if err != nil {
		return nil, false, err
	}
	svc.logger.Info("feedkeeper: feed registered", "source_id", src.ID, "url", src.URL, "created", created)
	svc.auditLog(ctx, "add_feed", map[string]any{"url": src.URL, "created": created}, "", nil, start)
	return src, created, nil
}

// ImportResult counts an OPML import.
type ImportResult struct {
	Added    int       `json:"added"`
	Existing int       `json:"existing"`
	Invalid  int       `json:"invalid"`
	Failures []Failure `json:"failures,omitempty"`
}

// ImportOPML registers every feed outline of an OPML document.
func (svc *Service) ImportOPML(ctx context.Context, data []byte) (*ImportResult, error) {
	subs, err := feed.ParseOPML(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	start := time.Now()
	res := &ImportResult{}
	for _, sub := range subs {
		u, err := svc.canonicalSource(sub.URL)
		if err != nil {
			res.Invalid++
			res.Failures = append(res.Failures, Failure{Locator: sub.URL, Reason: "invalid_url", Kind: "input"})
			continue
		}
		_, created, err := svc.store.UpsertSource(ctx, u, sub.Title, sub.SiteURL, store.KindFeed)
		if err != nil {
			return res, err
		}
		if created {
			res.Added++
		} else {
			res.Existing++
		}
	}
	svc.logger.Info("feedkeeper: opml imported", "added", res.Added, "existing", res.Existing, "invalid", res.Invalid)
	svc.auditLog(ctx, "import_opml", map[string]int{"outlines": len(subs)},
		fmt.Sprintf("OPML_OK added=%d existing=%d invalid=%d", res.Added, res.Existing, res.Invalid), nil, start)
	return res, nil
}

// SyncOptions narrows a sync run.
type SyncOptions struct {
	// SourceURL syncs only this feed.
	SourceURL string
	// Max caps the number of feeds checked (least recently checked first).
	// 0 uses the configured max_sources.
	Max int
	// MaxItemsPerSource caps the entries ingested per feed. 0 uses config.
	MaxItemsPerSource int
	// CleanupTTL runs a retention sweep after the sync. 0 uses config.
	CleanupTTL time.Duration
}

// Sync fetches feeds and ingests their entries. Per-source failures are in
// the report; only store errors while selecting sources are returned.
func (svc *Service) Sync(ctx context.Context, opts SyncOptions) (*RunReport, error) {
	start := time.Now()
	rep, err := svc.sync(ctx, opts)
	result := ""
	if rep != nil {
		result = rep.Format()
	}
	svc.auditLog(ctx, "sync", opts, result, err, start)
	return rep, err
}

func (svc *Service) sync(ctx context.Context, opts SyncOptions) (*RunReport, error) {
	var sources []*Source
	if opts.SourceURL != "" {
		u, err := svc.canonicalSource(opts.SourceURL)
		if err != nil {
			return nil, err
		}
		src, err := svc.store.GetSourceByURL(ctx, u)
		if err != nil {
			return nil, err
		}
		if src == nil || src.Kind != store.KindFeed {
			return nil, fmt.Errorf("%w: %s", ErrNoSources, u)
		}
		sources = []*Source{src}
	} else {
		limit := opts.Max
		if limit <= 0 {
			limit = svc.cfg.Sync.MaxSources
		}
		var err error
		if sources, err = svc.store.SourcesForSync(ctx, limit); err != nil {
			return nil, err
		}
	}

	maxItems := opts.MaxItemsPerSource
	if maxItems <= 0 {
		maxItems = svc.cfg.Sync.MaxItemsPerSource
	}
	ing := pipeline.NewIngestor(svc.store, svc.fetcher, pipeline.IngestConfig{
		Identity: identity.Options{
			DOIFirst:       svc.cfg.Identity.DOIFirst,
			TrackingParams: svc.cfg.Identity.TrackingParams,
		},
		Merge:             svc.merge,
		Conditional:       !svc.cfg.Fetch.DisableConditional,
		MaxItemsPerSource: maxItems,
		Now:               svc.now,
		Metrics:           svc.metrics,
	}, svc.logger)
	rep := ing.Sync(ctx, sources)

	ttl := opts.CleanupTTL
	if ttl <= 0 {
		ttl = svc.cfg.Sync.CleanupTTL
	}
	if ttl > 0 {
		n, err := svc.cleanup(ctx, ttl)
		if err != nil {
			return rep, err
		}
		rep.CleanupDeleted = n
	}
	return rep, nil
}

// QueueAdd ingests loosely keyed items (JSONL rows) under the queue source
// sourceURL, with DOI-first identity. Rows that cannot be mapped are
// reported and skipped.
func (svc *Service) QueueAdd(ctx context.Context, sourceURL string, rows []map[string]any) (*RunReport, error) {
	u, err := svc.canonicalSource(sourceURL)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	src, _, err := svc.store.UpsertSource(ctx, u, "", "", store.KindQueue)
	if err != nil {
		return nil, err
	}

	sr := SourceReport{SourceID: src.ID, URL: src.URL, Status: store.FetchOK}
	items := make([]pipeline.Item, 0, len(rows))
	for i, row := range rows {
		it, err := pipeline.MapFields(row, nil)
		if err == nil && it.DOI == "" && it.URL == "" && it.GUID == "" && it.Title == "" {
			err = ErrMissingLocator
		}
		if err != nil {
			// An unidentifiable row is the same config failure the ingestor
			// reports; a malformed field is an input failure.
			kind := "input"
			if errors.Is(err, ErrMissingLocator) {
				kind = "config"
			}
			sr.Items++
			sr.Failed++
			sr.Failures = append(sr.Failures, Failure{Locator: fmt.Sprintf("row:%d", i+1), Reason: err.Error(), Kind: kind})
			continue
		}
		items = append(items, it)
	}

	ing := pipeline.NewIngestor(svc.store, nil, pipeline.IngestConfig{
		Identity: identity.Options{DOIFirst: true, TrackingParams: svc.cfg.Identity.TrackingParams},
		Merge:    svc.merge,
		Now:      svc.now,
	}, svc.logger)
	got := ing.Ingest(ctx, src, items)

	sr.Items += got.Items
	sr.New, sr.Updated, sr.Unchanged = got.New, got.Updated, got.Unchanged
	sr.Failed += got.Failed
	sr.KeyConflicts = got.KeyConflicts
	sr.Failures = append(sr.Failures, got.Failures...)

	rep := &RunReport{RunID: idgen.New()}
	rep.Add(sr)
	svc.auditLog(ctx, "queue_add", map[string]any{"source_url": src.URL, "rows": len(rows)}, rep.Format(), nil, start)
	return rep, nil
}

// EnrichOptions selects the records an enrichment run attempts.
type EnrichOptions struct {
	Force      bool
	OnlyFailed bool
	// RefetchAfter re-attempts ready rows older than this. 0 uses config.
	RefetchAfter time.Duration
	// Limit caps attempted records. 0 uses config.
	Limit int
	// Tiers overrides the configured tier order.
	Tiers []string
}

// Enrich runs one enrichment pass. Per-record failures become enrichment
// state and report entries.
func (svc *Service) Enrich(ctx context.Context, opts EnrichOptions) (*EnrichReport, error) {
	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = svc.cfg.Enrich.Tiers
	}
	sources, err := enrich.Build(tiers, enrich.Deps{
		Getter:              svc.fetcher,
		OpenAlexBase:        svc.cfg.Enrich.OpenAlexBase,
		OpenAlexMailto:      svc.cfg.Enrich.OpenAlexMailto,
		SemanticScholarBase: svc.cfg.Enrich.SemanticScholarBase,
		SemanticScholarKey:  svc.cfg.Enrich.SemanticScholarKey,
		DisableMarkdown:     svc.cfg.Enrich.DisableMarkdown,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	chain := enrich.Chain{Sources: sources, MinChars: svc.cfg.Enrich.MinChars, MaxChars: svc.cfg.Enrich.MaxChars}

	sel := retry.Selection{Force: opts.Force, OnlyFailed: opts.OnlyFailed, RefetchAfter: opts.RefetchAfter}
	if sel.RefetchAfter <= 0 {
		sel.RefetchAfter = svc.cfg.Enrich.RefetchAfter
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = svc.cfg.Enrich.Limit
	}
	start := time.Now()
	rep, err := pipeline.NewEnricher(svc.store, chain, svc.cfg.retryPolicy(), svc.now, svc.logger).
		WithMetrics(svc.metrics).
		Run(ctx, sel, limit)
	result := ""
	if rep != nil {
		result = rep.Format()
	}
	svc.auditLog(ctx, "enrich", map[string]any{
		"force": opts.Force, "only_failed": opts.OnlyFailed, "limit": limit, "tiers": tiers,
	}, result, err, start)
	return rep, err
}

// ListSources returns registered sources of kind ("" for all).
func (svc *Service) ListSources(ctx context.Context, kind string) ([]*Source, error) {
	switch kind {
	case "", store.KindFeed, store.KindQueue:
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrInvalidInput, kind)
	}
	return svc.store.ListSources(ctx, kind)
}

// ListRecords returns the newest records, optionally of one source.
func (svc *Service) ListRecords(ctx context.Context, sourceURL string, limit int) ([]*Record, error) {
	f := store.RecordFilter{Limit: limit}
	if sourceURL != "" {
		src, err := svc.sourceByURL(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		f.SourceID = src.ID
	}
	return svc.store.ListRecords(ctx, f)
}

// ListEnrichment returns enrichment rows, most recently updated first.
func (svc *Service) ListEnrichment(ctx context.Context, status string, limit int) ([]*Enrichment, error) {
	switch status {
	case "", store.StatusNew, store.StatusReady, store.StatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown enrichment status %q", ErrInvalidInput, status)
	}
	return svc.store.ListEnrichment(ctx, status, limit)
}

// FetchHistory returns recent fetch attempts of a source.
func (svc *Service) FetchHistory(ctx context.Context, sourceURL string, limit int) ([]*FetchLogEntry, error) {
	src, err := svc.sourceByURL(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	return svc.store.FetchHistory(ctx, src.ID, limit)
}

// Stats returns table counts.
func (svc *Service) Stats(ctx context.Context) (*Stats, error) {
	return svc.store.Stats(ctx)
}

// Cleanup deletes records not seen for ttl. Their keys and enrichment go
// with them.
func (svc *Service) Cleanup(ctx context.Context, ttl time.Duration) (int64, error) {
	start := time.Now()
	n, err := svc.cleanup(ctx, ttl)
	svc.auditLog(ctx, "cleanup", map[string]string{"ttl": ttl.String()}, fmt.Sprintf("CLEANUP_OK deleted=%d", n), err, start)
	return n, err
}

func (svc *Service) cleanup(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: cleanup ttl must be positive", ErrInvalidInput)
	}
	before := svc.now().Add(-ttl).UnixMilli()
	n, err := svc.store.DeleteStaleRecords(ctx, before)
	if err != nil {
		return 0, err
	}
	svc.logger.Info("feedkeeper: cleanup done", "deleted", n, "ttl", ttl.String())
	return n, nil
}

func (svc *Service) sourceByURL(ctx context.Context, raw string) (*Source, error) {
	u, err := svc.canonicalSource(raw)
	if err != nil {
		return nil, err
	}
	src, err := svc.store.GetSourceByURL(ctx, u)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSources, u)
	}
	return src, nil
}
