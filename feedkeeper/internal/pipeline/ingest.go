// CLAUDE:SUMMARY Sync runs: conditional fetch per source, parse, then one transaction per item (resolve, decide, upsert, register keys).
// Package pipeline runs feed syncs, queue ingestion and enrichment passes
// over the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/change"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/feed"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/fetch"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/identity"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/store"
	"github.com/hazyhaar/feedkeeper/idgen"
	"github.com/hazyhaar/feedkeeper/observability"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/rdf+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

// Fetcher performs HTTP GETs; *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// IngestConfig tunes identity, merging and the fetch gate.
type IngestConfig struct {
	Identity          identity.Options
	Merge             change.Policy
	Conditional       bool
	MaxItemsPerSource int // 0: all entries
	Now               func() time.Time
	// Metrics receives the counts and duration of each Sync. Optional.
	Metrics observability.MetricsSink
}

// Ingestor turns source items into stored records.
type Ingestor struct {
	store   *store.Store
	fetcher Fetcher
	gate    fetch.Gate
	cfg     IngestConfig
	logger  *slog.Logger
	newID   idgen.Generator
}

// NewIngestor creates an Ingestor. fetcher may be nil when only Ingest is
// used.
func NewIngestor(s *store.Store, fetcher Fetcher, cfg IngestConfig, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ingestor{
		store:   s,
		fetcher: fetcher,
		gate:    fetch.Gate{Conditional: cfg.Conditional},
		cfg:     cfg,
		logger:  logger,
		newID:   idgen.Default,
	}
}

// Sync syncs sources in order and aggregates the run report. A cancelled
// context stops before the next source.
func (in *Ingestor) Sync(ctx context.Context, sources []*store.Source) *RunReport {
	start := time.Now()
	rep := &RunReport{RunID: in.newID()}
	ctx, span := observability.StartRunSpan(ctx, "sync", rep.RunID)
	defer span.End()

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		rep.Add(in.SyncSource(ctx, src))
	}
	in.logger.Info("sync: run done", "run_id", rep.RunID, "sources_checked", rep.SourcesChecked,
		"not_modified", rep.NotModified, "source_errors", rep.SourceErrors,
		"new", rep.New, "updated", rep.Updated, "unchanged", rep.Unchanged, "failed", rep.Failed)
	flushMetrics(ctx, in.cfg.Metrics, rep.metrics(in.cfg.Now().UTC(), time.Since(start)), in.logger)
	return rep
}

// SyncSource fetches one feed and ingests its entries. Fetch and parse
// errors are recorded on the source and in the fetch log; they are
// returned in the report, never as an error, so a batch keeps going.
func (in *Ingestor) SyncSource(ctx context.Context, src *store.Source) SourceReport {
	log := in.logger.With("source_id", src.ID, "url", src.URL)
	ctx, span := observability.StartItemSpan(ctx, "sync_source", src.URL)
	defer span.End()

	rep := SourceReport{SourceID: src.ID, URL: src.URL}
	start := time.Now()
	prev := cacheOf(src)
	req := in.gate.Plan(src.URL, prev)
	req.Accept = feedAccept

	res, err := in.fetcher.Fetch(ctx, req)
	now := in.cfg.Now()
	if res != nil {
		rep.StatusCode = res.StatusCode
	}

	var parsed *feed.Feed
	if err == nil && !res.NotModified {
		if parsed, err = feed.Parse(res.Body); err != nil {
			err = fmt.Errorf("parse: %w", err)
		}
	}
	next := in.gate.Next(prev, res, err, now)
	rep.DurationMs = time.Since(start).Milliseconds()

	logEntry := &store.FetchLogEntry{
		SourceID:   src.ID,
		StatusCode: rep.StatusCode,
		DurationMs: rep.DurationMs,
		FetchedAt:  now.UnixMilli(),
	}
	switch {
	case err != nil:
		rep.Status, rep.Error = store.FetchError, err.Error()
		logEntry.Status, logEntry.ErrorMessage = store.FetchError, err.Error()
		observability.RecordError(span, err, "source")
		log.Warn("sync: fetch failed", "error", err, "status", rep.StatusCode)
	case res.NotModified:
		rep.Status = store.FetchNotModified
		logEntry.Status = store.FetchNotModified
		log.Debug("sync: not modified")
	default:
		rep.Status = store.FetchOK
		logEntry.Status = store.FetchOK
	}

	if err := in.store.SaveCacheState(ctx, src.ID, cacheUpdate(next)); err != nil {
		log.Warn("sync: save cache state", "error", err)
	}
	if parsed != nil {
		entries := parsed.Entries
		if in.cfg.MaxItemsPerSource > 0 && len(entries) > in.cfg.MaxItemsPerSource {
			entries = entries[:in.cfg.MaxItemsPerSource]
		}
		items := make([]Item, len(entries))
		for i, e := range entries {
			items[i] = FromEntry(e)
		}
		logEntry.ItemCount = len(items)
		in.ingestInto(ctx, src, items, &rep)
		log.Info("sync: source done", "items", rep.Items, "new", rep.New,
			"updated", rep.Updated, "unchanged", rep.Unchanged, "failed", rep.Failed)
	}
	if err := in.store.InsertFetchLog(ctx, logEntry); err != nil {
		log.Warn("sync: fetch log", "error", err)
	}
	return rep
}

// Ingest stores items on behalf of src, one transaction per item. A
// failing item is reported and the batch continues.
func (in *Ingestor) Ingest(ctx context.Context, src *store.Source, items []Item) SourceReport {
	rep := SourceReport{SourceID: src.ID, URL: src.URL, Status: store.FetchOK}
	in.ingestInto(ctx, src, items, &rep)
	return rep
}

func (in *Ingestor) ingestInto(ctx context.Context, src *store.Source, items []Item, rep *SourceReport) {
	for _, it := range items {
		rep.Items++
		verdict, conflicts, err := in.ingestOne(ctx, src, it)
		rep.KeyConflicts += conflicts
		if err != nil {
			rep.Failed++
			kind := "store"
			if errors.Is(err, identity.ErrNoIdentity) || errors.Is(err, identity.ErrNoScope) {
				kind = "config"
			}
			rep.Failures = append(rep.Failures, Failure{Locator: locator(src, it), Reason: err.Error(), Kind: kind})
			in.logger.Warn("ingest: item failed", "source_id", src.ID, "locator", locator(src, it), "error", err)
			continue
		}
		switch verdict {
		case change.New:
			rep.New++
		case change.Updated:
			rep.Updated++
		case change.Unchanged:
			rep.Unchanged++
		}
	}
}

// ingestOne resolves, decides and writes one item atomically.
func (in *Ingestor) ingestOne(ctx context.Context, src *store.Source, it Item) (change.Verdict, int, error) {
	scope := src.URL
	if it.SourceFeed != "" {
		scope = it.SourceFeed
	}
	input := identity.Input{
		SourceScope: scope,
		GUID:        it.GUID,
		URL:         it.URL,
		DOI:         it.DOI,
		Title:       it.Title,
		Published:   it.Published,
		Summary:     it.Summary,
	}
	ctx, span := observability.StartItemSpan(ctx, "ingest_item", locator(src, it),
		attribute.Int64("source_id", src.ID))
	defer span.End()

	now := in.cfg.Now().UTC()
	var verdict change.Verdict
	var conflicts int
	err := in.store.Tx(ctx, func(tx *store.Store) error {
		res, err := identity.Resolve(ctx, input, in.cfg.Identity, func(ctx context.Context, k identity.Key) (int64, bool, error) {
			return tx.LookupKey(ctx, string(k.Kind), k.Value)
		})
		if err != nil {
			return err
		}

		var snap *change.Snapshot
		rec := &store.Record{FirstSourceID: src.ID, PrimaryKey: res.Primary.String()}
		if !res.New {
			existing, err := tx.GetRecord(ctx, res.RecordID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("key %s points at missing record %d", res.Primary, res.RecordID)
			}
			rec, snap = existing, snapshotOf(existing)
		}
		rec.LastSourceID = src.ID

		d := change.Decide(snap, in.fields(it, res), now, in.cfg.Merge)
		verdict = d.Verdict
		observability.AddVerdict(span, string(d.Verdict), string(res.Primary.Kind))

		switch d.Verdict {
		case change.New:
			applyFields(rec, d)
			id, err := tx.InsertRecord(ctx, rec)
			if err != nil {
				return err
			}
			rec.ID = id
		case change.Unchanged:
			if err := tx.TouchRecord(ctx, rec.ID, src.ID, now.UnixMilli()); err != nil {
				return err
			}
		case change.Updated:
			applyFields(rec, d)
			if err := tx.UpdateRecord(ctx, rec); err != nil {
				return err
			}
		}

		_, conflicts, err = tx.RegisterKeys(ctx, rec.ID, storeKeys(res.Keys))
		return err
	})
	if err != nil {
		observability.RecordError(span, err, "item")
		return "", conflicts, err
	}
	if conflicts > 0 {
		in.logger.Debug("ingest: keys owned by another record", "locator", locator(src, it), "conflicts", conflicts)
	}
	return verdict, conflicts, nil
}

// fields builds the stored payload. The DOI is taken from the resolved
// keys so a surrogate minted in DOI-first mode is stored with its flag.
func (in *Ingestor) fields(it Item, res *identity.Resolution) change.Fields {
	f := change.Fields{
		GUID:         it.GUID,
		URL:          it.URL,
		CanonicalURL: identity.CanonicalURL(it.URL, in.cfg.Identity.TrackingParams),
		DOI:          identity.NormalizeDOI(it.DOI),
		Title:        it.Title,
		Author:       it.Author,
		Summary:      it.Summary,
		Content:      it.Content,
		Categories:   it.Categories,
		PublishedAt:  it.Published,
		UpdatedAt:    it.Updated,
		RawJSON:      encodeRaw(it.Raw),
	}
	for _, k := range res.Keys {
		if k.Kind == identity.KindDOI {
			f.DOI, f.DOIIsSurrogate = k.Value, k.Surrogate
			break
		}
	}
	return f
}

func locator(src *store.Source, it Item) string {
	switch {
	case it.URL != "":
		return it.URL
	case it.DOI != "":
		return it.DOI
	case it.GUID != "":
		return src.URL + "#" + it.GUID
	case it.Title != "":
		return src.URL + "#" + it.Title
	}
	return src.URL
}
