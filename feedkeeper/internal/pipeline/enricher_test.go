package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/enrich"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/identity"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/retry"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/store"
	"github.com/hazyhaar/feedkeeper/idgen"
)

// scriptedTier returns its results in order, repeating the last one.
type scriptedTier struct {
	results []enrich.Result
	calls   int
}

func (s *scriptedTier) Name() string { return "scripted" }

func (s *scriptedTier) Fetch(_ context.Context, t enrich.Target) enrich.Result {
	if t.URL == "" {
		return enrich.Result{Status: enrich.StatusSkipped}
	}
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r
}

var longText = strings.Repeat("Readable body text. ", 10)

type enrichEnv struct {
	st       *store.Store
	now      time.Time
	tier     *scriptedTier
	enricher *Enricher
	recordID int64
}

func newEnrichEnv(t *testing.T, results ...enrich.Result) *enrichEnv {
	t.Helper()
	env := &enrichEnv{st: openStore(t), now: t0, tier: &scriptedTier{results: results}}
	ctx := context.Background()

	src, _, err := env.st.UpsertSource(ctx, "https://a.example/feed", "", "", store.KindFeed)
	require.NoError(t, err)
	ing := NewIngestor(env.st, nil, IngestConfig{Now: func() time.Time { return t0 }}, nil)
	rep := ing.Ingest(ctx, src, []Item{
		{GUID: "1", URL: "https://example.org/p", Title: "Paper"},
		{GUID: "2", Title: "No locator"},
	})
	require.Equal(t, 2, rep.New)
	id, _, err := env.st.LookupKey(ctx, string(identity.KindCanonicalURL), "https://example.org/p")
	require.NoError(t, err)
	env.recordID = id

	chain := enrich.Chain{Sources: []enrich.Source{env.tier}, MinChars: 20}
	env.enricher = NewEnricher(env.st, chain, retry.DefaultPolicy(), func() time.Time { return env.now }, nil)
	env.enricher.newID = idgen.Sequence("run-")
	return env
}

func (e *enrichEnv) state(t *testing.T) *store.Enrichment {
	t.Helper()
	got, err := e.st.GetEnrichment(context.Background(), e.recordID)
	require.NoError(t, err)
	return got
}

func TestEnricher_ThreePermanentFailures(t *testing.T) {
	env := newEnrichEnv(t, enrich.Result{Status: enrich.StatusNotFound, HTTPStatus: 404})
	ctx := context.Background()

	rep, err := env.enricher.Run(ctx, retry.Selection{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, 2, rep.Checked)
	assert.Equal(t, 1, rep.FailedNew)
	assert.Equal(t, 1, rep.Skipped, "the record without locator is a config failure")

	e := env.state(t)
	assert.Equal(t, store.StatusFailed, e.Status)
	assert.Equal(t, 1, e.RetryCount)
	assert.Equal(t, t0.Add(24*time.Hour).UnixMilli(), *e.NextRetryAt)
	assert.Equal(t, retry.ReasonNotFound, e.LastError)
	assert.Equal(t, 404, e.HTTPStatus)

	env.now = t0.Add(time.Hour)
	rep, err = env.enricher.Run(ctx, retry.Selection{}, 0)
	require.NoError(t, err)
	assert.Zero(t, rep.FailedNew+rep.FailedUpdated, "timer pending")

	env.now = t0.Add(24 * time.Hour)
	rep, err = env.enricher.Run(ctx, retry.Selection{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.FailedUpdated)
	assert.Equal(t, 2, env.state(t).RetryCount)

	env.now = t0.Add(48 * time.Hour)
	rep, err = env.enricher.Run(ctx, retry.Selection{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Exhausted)
	e = env.state(t)
	assert.Equal(t, 3, e.RetryCount)
	assert.Nil(t, e.NextRetryAt)

	env.now = t0.Add(365 * 24 * time.Hour)
	rep, err = env.enricher.Run(ctx, retry.Selection{OnlyFailed: true}, 0)
	require.NoError(t, err)
	assert.Zero(t, rep.Checked, "exhausted rows leave automatic selection")

	rep, err = env.enricher.Run(ctx, retry.Selection{Force: true, OnlyFailed: true}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Checked)
	assert.Equal(t, 4, env.state(t).RetryCount)
	assert.Equal(t, 4, env.tier.calls)
}

func TestEnricher_ReadyThenTransientKeepsContent(t *testing.T) {
	env := newEnrichEnv(t,
		enrich.Result{Status: enrich.StatusOK, Text: longText, Kind: enrich.KindFulltext, HTTPStatus: 200},
		enrich.Result{Status: enrich.StatusRateLimited, HTTPStatus: 429},
	)
	ctx := context.Background()

	rep, err := env.enricher.Run(ctx, retry.Selection{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ReadyNew)

	e := env.state(t)
	assert.Equal(t, store.StatusReady, e.Status)
	assert.Equal(t, "scripted", e.Extractor)
	assert.Equal(t, enrich.KindFulltext, e.ContentKind)
	assert.Equal(t, "https://example.org/p", e.SourceURL)
	assert.Equal(t, 200, e.HTTPStatus)
	body := e.ContentText
	require.NotEmpty(t, body)

	env.now = t0.Add(2 * time.Hour)
	rep, err = env.enricher.Run(ctx, retry.Selection{}, 0)
	require.NoError(t, err)
	assert.Zero(t, rep.ReadyRetained, "ready rows are not picked without refetch")

	rep, err = env.enricher.Run(ctx, retry.Selection{RefetchAfter: time.Hour}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ReadyRetained)
	assert.Equal(t, 1, rep.Transient)

	e = env.state(t)
	assert.Equal(t, store.StatusReady, e.Status)
	assert.Equal(t, body, e.ContentText)
	assert.Zero(t, e.RetryCount)
	assert.Nil(t, e.NextRetryAt)
	assert.Equal(t, retry.ReasonRateLimited, e.LastError)
	assert.Equal(t, t0.UnixMilli(), *e.FetchedAt)
	assert.Equal(t, 200, e.HTTPStatus, "kept content keeps its provenance")
	assert.Equal(t, "https://example.org/p", e.SourceURL)
}

func TestEnricher_RefetchSameContentIsUnchanged(t *testing.T) {
	env := newEnrichEnv(t, enrich.Result{Status: enrich.StatusOK, Text: longText, Kind: enrich.KindAbstract})
	ctx := context.Background()

	_, err := env.enricher.Run(ctx, retry.Selection{}, 0)
	require.NoError(t, err)

	env.now = t0.Add(48 * time.Hour)
	rep, err := env.enricher.Run(ctx, retry.Selection{RefetchAfter: 24 * time.Hour}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ReadyUnchanged)
	assert.Equal(t, env.now.UnixMilli(), *env.state(t).FetchedAt)
}

func TestEnricher_ConfigFailureWritesNothing(t *testing.T) {
	env := newEnrichEnv(t, enrich.Result{Status: enrich.StatusOK, Text: longText})
	ctx := context.Background()

	rep, err := env.enricher.Run(ctx, retry.Selection{}, 0)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Skipped)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, retry.ReasonMissingLocator, rep.Failures[0].Reason)
	assert.Equal(t, string(retry.Config), rep.Failures[0].Kind)

	rows, err := env.st.ListEnrichment(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "only the record with a locator has a row")
}

func TestEnricher_Limit(t *testing.T) {
	env := newEnrichEnv(t, enrich.Result{Status: enrich.StatusOK, Text: longText})
	rep, err := env.enricher.Run(context.Background(), retry.Selection{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Checked)
}
