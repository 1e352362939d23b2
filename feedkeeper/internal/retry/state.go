// CLAUDE:SUMMARY Enrichment retry state machine: transitions on success/failure and run eligibility.
// Package retry implements the per-record enrichment state machine.
package retry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status of an enrichment row.
type Status string

const (
	StatusNew    Status = "new"
	StatusReady  Status = "ready"
	StatusFailed Status = "failed"
)

// FailureKind drives retry accounting.
type FailureKind string

const (
	// Permanent: resource confirmed absent or unusable. Counted, backs off.
	Permanent FailureKind = "permanent"
	// Transient: rate limit, network or server error. Not counted.
	Transient FailureKind = "transient"
	// Quality: fetched but shorter than the minimum. Counted like Permanent.
	Quality FailureKind = "quality"
	// Config: required locator missing. Nothing is written.
	Config FailureKind = "config"
)

// State is the stored enrichment state of one record.
type State struct {
	Status      Status
	ContentText string
	ContentHash string
	ContentKind string
	Extractor   string
	RetryCount  int
	NextRetryAt *time.Time
	LastError   string
	FetchedAt   *time.Time
}

// Outcome is the result of one enrichment attempt. Failure is empty on
// success.
type Outcome struct {
	Text        string
	ContentKind string
	Extractor   string
	Failure     FailureKind
	Reason      string
}

// Transition summarises what Apply did.
type Transition struct {
	From      Status
	To        Status
	Write     bool
	Counted   bool
	Exhausted bool
	Retained  bool // failure on a ready row: content kept
}

// Apply computes the next state after out. prev is nil when the record has
// never been attempted. Config failures return prev unchanged with
// Write=false.
func Apply(prev *State, out Outcome, now time.Time, p Policy) (State, Transition) {
	var cur State
	if prev != nil {
		cur = *prev
	} else {
		cur.Status = StatusNew
	}
	tr := Transition{From: cur.Status}

	if out.Failure == "" && out.Text == "" {
		out.Failure, out.Reason = Quality, "empty_content"
	}

	switch {
	case out.Failure == Config:
		tr.To = cur.Status
		return cur, tr

	case out.Failure == "":
		at := now
		next := State{
			Status:      StatusReady,
			ContentText: out.Text,
			ContentHash: hashText(out.Text),
			ContentKind: out.ContentKind,
			Extractor:   out.Extractor,
			FetchedAt:   &at,
		}
		tr.To, tr.Write = StatusReady, true
		return next, tr

	case cur.Status == StatusReady:
		// Stale content is kept; the row does not re-enter the retry queue.
		if out.Failure != Transient {
			cur.RetryCount++
			tr.Counted = true
		}
		cur.LastError = out.Reason
		cur.NextRetryAt = nil
		tr.To, tr.Write, tr.Retained = StatusReady, true, true
		return cur, tr
	}

	cur.Status = StatusFailed
	cur.ContentText, cur.ContentHash = "", ""
	cur.LastError = out.Reason
	if out.Failure == Transient {
		next := now.Add(p.transientDelay())
		cur.NextRetryAt = &next
	} else {
		cur.RetryCount++
		tr.Counted = true
		next := now.Add(p.Backoff(cur.RetryCount))
		cur.NextRetryAt = &next
	}
	if p.Exhausted(cur.RetryCount) {
		cur.NextRetryAt = nil
		tr.Exhausted = true
	}
	tr.To, tr.Write = StatusFailed, true
	return cur, tr
}

// Selection overrides the default eligibility.
type Selection struct {
	// Force ignores status, retry budget and timers. OnlyFailed still
	// applies.
	Force bool
	// OnlyFailed restricts the run to failed rows.
	OnlyFailed bool
	// RefetchAfter makes ready rows older than this eligible again.
	RefetchAfter time.Duration
}

// Eligible reports whether a record with state s is picked by a run at now.
// A nil state (never attempted) is eligible unless OnlyFailed.
func Eligible(s *State, now time.Time, p Policy, sel Selection) bool {
	if sel.OnlyFailed && (s == nil || s.Status != StatusFailed) {
		return false
	}
	if sel.Force || s == nil {
		return true
	}
	if s.Status == StatusReady {
		return sel.RefetchAfter > 0 && (s.FetchedAt == nil || !s.FetchedAt.After(now.Add(-sel.RefetchAfter)))
	}
	if p.Exhausted(s.RetryCount) {
		return false
	}
	return s.NextRetryAt == nil || !s.NextRetryAt.After(now)
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
