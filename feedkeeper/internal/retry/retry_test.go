package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func miss() Outcome { return Outcome{Failure: Permanent, Reason: ReasonNotFound} }

func TestBackoff_LastStageRepeats(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 24*time.Hour, p.Backoff(0))
	assert.Equal(t, 24*time.Hour, p.Backoff(1))
	assert.Equal(t, 24*time.Hour, p.Backoff(2))
	assert.Equal(t, 48*time.Hour, p.Backoff(3))
	assert.Equal(t, 48*time.Hour, p.Backoff(9))

	custom := Policy{Stages: []time.Duration{time.Hour, 4 * time.Hour}}
	assert.Equal(t, time.Hour, custom.Backoff(1))
	assert.Equal(t, 4*time.Hour, custom.Backoff(5))
}

func TestExhausted(t *testing.T) {
	p := DefaultPolicy()
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.False(t, Policy{MaxRetries: -1}.Exhausted(1000), "negative budget is unlimited")
}

func TestApply_FirstFailure(t *testing.T) {
	p := DefaultPolicy()
	st, tr := Apply(nil, miss(), t0, p)

	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, 1, st.RetryCount)
	require.NotNil(t, st.NextRetryAt)
	assert.Equal(t, t0.Add(24*time.Hour), *st.NextRetryAt)
	assert.Equal(t, ReasonNotFound, st.LastError)
	assert.Empty(t, st.ContentText)
	assert.Equal(t, Transition{From: StatusNew, To: StatusFailed, Write: true, Counted: true}, tr)
}

func TestApply_ExhaustsAfterMaxRetries(t *testing.T) {
	// WHAT: three permanent misses exhaust the default budget.
	// WHY: exhausted rows must drop out of default selection even once
	// their timer would have elapsed.
	p := DefaultPolicy()
	var st *State
	now := t0
	for i := 1; i <= 3; i++ {
		next, tr := Apply(st, miss(), now, p)
		st = &next
		assert.Equal(t, i, st.RetryCount)
		assert.Equal(t, i == 3, tr.Exhausted, "attempt %d", i)
		now = now.Add(72 * time.Hour)
	}
	assert.Equal(t, StatusFailed, st.Status)
	assert.Nil(t, st.NextRetryAt)

	later := now.Add(365 * 24 * time.Hour)
	assert.False(t, Eligible(st, later, p, Selection{}))
	assert.True(t, Eligible(st, later, p, Selection{Force: true}))
}

func TestApply_TransientDoesNotCount(t *testing.T) {
	p := DefaultPolicy()
	first, _ := Apply(nil, miss(), t0, p)

	st, tr := Apply(&first, Outcome{Failure: Transient, Reason: ReasonRateLimited}, t0.Add(25*time.Hour), p)
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, 1, st.RetryCount)
	assert.False(t, tr.Counted)
	require.NotNil(t, st.NextRetryAt)
	assert.Equal(t, t0.Add(25*time.Hour+30*time.Minute), *st.NextRetryAt)
	assert.Equal(t, ReasonRateLimited, st.LastError)
}

func TestApply_QualityCounts(t *testing.T) {
	st, tr := Apply(nil, Outcome{Failure: Quality, Reason: ReasonTooShort}, t0, DefaultPolicy())
	assert.Equal(t, 1, st.RetryCount)
	assert.True(t, tr.Counted)

	// An empty "success" is a quality failure.
	st, _ = Apply(nil, Outcome{Extractor: "webpage"}, t0, DefaultPolicy())
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, "empty_content", st.LastError)
}

func TestApply_SuccessResets(t *testing.T) {
	p := DefaultPolicy()
	failed, _ := Apply(nil, miss(), t0, p)

	st, tr := Apply(&failed, Outcome{Text: "abstract body", ContentKind: "abstract", Extractor: "openalex"}, t0.Add(48*time.Hour), p)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, 0, st.RetryCount)
	assert.Nil(t, st.NextRetryAt)
	assert.Empty(t, st.LastError)
	assert.Equal(t, "abstract body", st.ContentText)
	assert.Len(t, st.ContentHash, 64)
	assert.Equal(t, "openalex", st.Extractor)
	require.NotNil(t, st.FetchedAt)
	assert.Equal(t, StatusFailed, tr.From)
	assert.Equal(t, StatusReady, tr.To)
}

func TestApply_ReadyRetainsContent(t *testing.T) {
	p := DefaultPolicy()
	ready, _ := Apply(nil, Outcome{Text: "good content", Extractor: "webpage"}, t0, p)

	st, tr := Apply(&ready, Outcome{Failure: Transient, Reason: ReasonServer}, t0.Add(time.Hour), p)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, "good content", st.ContentText)
	assert.Equal(t, ReasonServer, st.LastError)
	assert.Nil(t, st.NextRetryAt)
	assert.Equal(t, 0, st.RetryCount)
	assert.True(t, tr.Retained)

	st, tr = Apply(&st, miss(), t0.Add(2*time.Hour), p)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, "good content", st.ContentText)
	assert.Equal(t, 1, st.RetryCount)
	assert.Nil(t, st.NextRetryAt)
	assert.True(t, tr.Counted)
}

func TestApply_ConfigNoWrite(t *testing.T) {
	prev := &State{Status: StatusFailed, RetryCount: 2}
	st, tr := Apply(prev, Outcome{Failure: Config, Reason: ReasonMissingLocator}, t0, DefaultPolicy())
	assert.False(t, tr.Write)
	assert.Equal(t, *prev, st)
}

func TestEligible(t *testing.T) {
	p := DefaultPolicy()
	future := t0.Add(time.Hour)
	past := t0.Add(-time.Hour)
	fetched := t0.Add(-10 * 24 * time.Hour)

	tests := []struct {
		name string
		s    *State
		sel  Selection
		want bool
	}{
		{"never attempted", nil, Selection{}, true},
		{"never attempted only-failed", nil, Selection{OnlyFailed: true}, false},
		{"new row", &State{Status: StatusNew}, Selection{}, true},
		{"failed timer elapsed", &State{Status: StatusFailed, RetryCount: 1, NextRetryAt: &past}, Selection{}, true},
		{"failed timer pending", &State{Status: StatusFailed, RetryCount: 1, NextRetryAt: &future}, Selection{}, false},
		{"failed timer pending forced", &State{Status: StatusFailed, RetryCount: 1, NextRetryAt: &future}, Selection{Force: true}, true},
		{"failed exhausted", &State{Status: StatusFailed, RetryCount: 3}, Selection{}, false},
		{"ready forced only-failed", &State{Status: StatusReady, FetchedAt: &fetched}, Selection{Force: true, OnlyFailed: true}, false},
		{"exhausted forced only-failed", &State{Status: StatusFailed, RetryCount: 3}, Selection{Force: true, OnlyFailed: true}, true},
		{"ready", &State{Status: StatusReady, FetchedAt: &fetched}, Selection{}, false},
		{"ready only-failed", &State{Status: StatusReady, FetchedAt: &fetched}, Selection{OnlyFailed: true}, false},
		{"ready stale refetch", &State{Status: StatusReady, FetchedAt: &fetched}, Selection{RefetchAfter: 7 * 24 * time.Hour}, true},
		{"ready fresh refetch", &State{Status: StatusReady, FetchedAt: &fetched}, Selection{RefetchAfter: 30 * 24 * time.Hour}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Eligible(tt.s, t0, p, tt.sel), tt.name)
	}
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		status     int
		err        error
		wantKind   FailureKind
		wantReason string
	}{
		{429, nil, Transient, ReasonRateLimited},
		{503, nil, Transient, ReasonServer},
		{404, nil, Permanent, ReasonNotFound},
		{410, nil, Permanent, ReasonNotFound},
		{403, nil, Permanent, "http_403"},
		{0, errors.New("fetch: http 502"), Transient, ReasonServer},
		{0, errors.New("dial tcp: connection refused"), Transient, ReasonNetwork},
		{0, fmt.Errorf("wrap: %w", errors.New("context deadline exceeded")), Transient, ReasonNetwork},
		{0, errors.New("json: cannot unmarshal string"), Permanent, ReasonParse},
		{200, nil, Permanent, ReasonNoContent},
	}
	for _, tt := range tests {
		kind, reason := ClassifyHTTP(tt.status, tt.err)
		assert.Equal(t, tt.wantKind, kind, "status=%d err=%v", tt.status, tt.err)
		assert.Equal(t, tt.wantReason, reason, "status=%d err=%v", tt.status, tt.err)
	}
}

func TestExtractStatusCode(t *testing.T) {
	assert.Equal(t, 503, ExtractStatusCode("fetch https://x: http 503"))
	assert.Equal(t, 404, ExtractStatusCode("Status: 404 Not Found"))
	assert.Equal(t, 429, ExtractStatusCode("http 429: too many"))
	assert.Equal(t, 0, ExtractStatusCode("connection refused"))
}
