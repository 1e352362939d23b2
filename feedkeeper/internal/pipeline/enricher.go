package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/enrich"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/retry"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/store"
	"github.com/hazyhaar/feedkeeper/idgen"
	"github.com/hazyhaar/feedkeeper/observability"
)

// Enricher runs the enrichment chain over eligible records.
type Enricher struct {
	store   *store.Store
	chain   enrich.Chain
	policy  retry.Policy
	logger  *slog.Logger
	now     func() time.Time
	newID   idgen.Generator
	metrics observability.MetricsSink
}

// NewEnricher creates an Enricher. now may be nil (time.Now).
func NewEnricher(s *store.Store, chain enrich.Chain, policy retry.Policy, now func() time.Time, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Enricher{store: s, chain: chain, policy: policy, logger: logger, now: now, newID: idgen.Default}
}

// WithMetrics makes every Run record its counts and duration to m.
func (e *Enricher) WithMetrics(m observability.MetricsSink) *Enricher {
	e.metrics = m
	return e
}

// Run selects up to limit candidates and attempts each once. Only store
// errors while selecting abort the run; per-record failures become state.
func (e *Enricher) Run(ctx context.Context, sel retry.Selection, limit int) (*EnrichReport, error) {
	start := time.Now()
	rep := &EnrichReport{RunID: e.newID()}
	ctx, span := observability.StartRunSpan(ctx, "enrich", rep.RunID)
	defer span.End()

	now := e.now().UTC()
	cq := store.CandidateQuery{
		Now:        now.UnixMilli(),
		MaxRetries: e.policy.MaxRetries,
		Force:      sel.Force,
		OnlyFailed: sel.OnlyFailed,
		Limit:      limit,
	}
	if sel.RefetchAfter > 0 {
		before := now.Add(-sel.RefetchAfter).UnixMilli()
		cq.RefetchBefore = &before
	}
	cands, err := e.store.EnrichmentCandidates(ctx, cq)
	if err != nil {
		observability.RecordError(span, err, "store")
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		prev := stateOf(c.Enrichment)
		if !retry.Eligible(prev, now, e.policy, sel) {
			continue
		}
		rep.Checked++
		e.enrichOne(ctx, c, prev, rep)
	}

	e.logger.Info("enrich: run done", "run_id", rep.RunID, "checked", rep.Checked,
		"ready_new", rep.ReadyNew, "failed_new", rep.FailedNew, "failed_updated", rep.FailedUpdated,
		"transient", rep.Transient, "skipped", rep.Skipped)
	flushMetrics(ctx, e.metrics, rep.metrics(now, time.Since(start)), e.logger)
	return rep, nil
}

func (e *Enricher) enrichOne(ctx context.Context, c store.Candidate, prev *retry.State, rep *EnrichReport) {
	rec := c.Record
	log := e.logger.With("record_id", rec.ID)
	ctx, span := observability.StartItemSpan(ctx, "enrich_record", strconv.FormatInt(rec.ID, 10))
	defer span.End()

	att := e.chain.Run(ctx, targetOf(&rec))
	next, tr := retry.Apply(prev, att.Outcome, e.now().UTC(), e.policy)
	loc := locatorOf(&rec)

	if !tr.Write {
		rep.Skipped++
		rep.Failures = append(rep.Failures, Failure{Locator: loc, Reason: att.Outcome.Reason, Kind: string(att.Outcome.Failure)})
		log.Debug("enrich: skipped", "reason", att.Outcome.Reason)
		return
	}
	if err := e.store.PutEnrichment(ctx, enrichmentRow(rec.ID, next, att, c.Enrichment, tr)); err != nil {
		rep.Failures = append(rep.Failures, Failure{Locator: loc, Reason: err.Error(), Kind: "store"})
		observability.RecordError(span, err, "store")
		log.Warn("enrich: write failed", "error", err)
		return
	}
	observability.AddStatusTransition(span, string(tr.From), string(tr.To), next.RetryCount)

	switch {
	case tr.To == retry.StatusReady && tr.Retained:
		rep.ReadyRetained++
	case tr.To == retry.StatusReady && tr.From == retry.StatusReady:
		if prev.ContentHash == next.ContentHash {
			rep.ReadyUnchanged++
		} else {
			rep.ReadyUpdated++
		}
	case tr.To == retry.StatusReady:
		rep.ReadyNew++
	case tr.From == retry.StatusFailed:
		rep.FailedUpdated++
	default:
		rep.FailedNew++
	}
	if att.Outcome.Failure != "" {
		if att.Outcome.Failure == retry.Transient {
			rep.Transient++
		}
		if tr.Exhausted {
			rep.Exhausted++
		}
		rep.Failures = append(rep.Failures, Failure{Locator: loc, Reason: att.Outcome.Reason, Kind: string(att.Outcome.Failure)})
		log.Warn("enrich: attempt failed", "kind", att.Outcome.Failure, "reason", att.Outcome.Reason,
			"retry_count", next.RetryCount, "tried", att.Tried)
		return
	}
	log.Debug("enrich: ready", "extractor", next.Extractor, "chars", len([]rune(next.ContentText)))
}

func locatorOf(r *store.Record) string {
	switch {
	case r.URL != "":
		return r.URL
	case r.DOI != "":
		return r.DOI
	}
	return r.PrimaryKey
}
