package fetch

import (
	"errors"
	"testing"
	"time"
)

var now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestGate_Plan(t *testing.T) {
	g := Gate{Conditional: true}

	if req := g.Plan("https://example.org/rss", nil); req.Conditional() {
		t.Errorf("no cache state must give an unconditional request: %+v", req)
	}

	cache := &CacheState{ETag: `"v1"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT"}
	req := g.Plan("https://example.org/rss", cache)
	if req.ETag != `"v1"` || req.LastModified != cache.LastModified {
		t.Errorf("validators not carried: %+v", req)
	}

	if req := (Gate{}).Plan("https://example.org/rss", cache); req.Conditional() {
		t.Errorf("conditional GET disabled but validators sent: %+v", req)
	}
}

func TestGate_NextNotModified(t *testing.T) {
	// WHAT: a 304 advances last_checked_at and keeps validators.
	prevCheck := now.Add(-time.Hour)
	prev := &CacheState{ETag: `"v1"`, LastCheckedAt: &prevCheck}
	next := Gate{}.Next(prev, &Result{StatusCode: 304, NotModified: true}, nil, now)

	if next.ETag != `"v1"` {
		t.Errorf("etag: got %q", next.ETag)
	}
	if next.LastCheckedAt == nil || !next.LastCheckedAt.Equal(now) {
		t.Errorf("last_checked_at not advanced: %v", next.LastCheckedAt)
	}
	if next.LastSuccessAt != nil {
		t.Errorf("304 is not a content success")
	}
	if next.LastStatus != 304 {
		t.Errorf("status: got %d", next.LastStatus)
	}
}

func TestGate_NextSuccessReplacesValidators(t *testing.T) {
	prev := &CacheState{ETag: `"v1"`, LastModified: "old", LastError: "http 500"}
	next := Gate{}.Next(prev, &Result{StatusCode: 200, ETag: `"v2"`}, nil, now)

	if next.ETag != `"v2"` {
		t.Errorf("etag: got %q", next.ETag)
	}
	if next.LastModified != "old" {
		t.Errorf("omitted last-modified must be kept, got %q", next.LastModified)
	}
	if next.LastError != "" {
		t.Errorf("error not cleared: %q", next.LastError)
	}
	if next.LastSuccessAt == nil {
		t.Error("last_success_at not set")
	}
}

func TestGate_NextErrorPreservesValidators(t *testing.T) {
	// WHAT: a hard error keeps etag/last-modified and records the failure.
	// WHY: the next run must still be able to go conditional.
	success := now.Add(-24 * time.Hour)
	prev := &CacheState{ETag: `"v1"`, LastModified: "lm", LastSuccessAt: &success}
	err := &HTTPError{StatusCode: 502}
	next := Gate{}.Next(prev, &Result{StatusCode: 502}, err, now)

	if next.ETag != `"v1"` || next.LastModified != "lm" {
		t.Errorf("validators cleared: %+v", next)
	}
	if next.LastStatus != 502 || next.LastError != "http 502" {
		t.Errorf("failure not recorded: %+v", next)
	}
	if next.LastSuccessAt == nil || !next.LastSuccessAt.Equal(success) {
		t.Errorf("last_success_at changed: %v", next.LastSuccessAt)
	}

	netErr := Gate{}.Next(nil, nil, errors.New("dial tcp: connection refused"), now)
	if netErr.LastStatus != 0 || netErr.LastCheckedAt == nil {
		t.Errorf("network error state: %+v", netErr)
	}
}
