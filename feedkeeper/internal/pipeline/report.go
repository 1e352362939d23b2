package pipeline

import (
	"fmt"
	"strings"
)

// Failure is one item or source that could not be processed.
type Failure struct {
	Locator string `json:"locator"`
	Reason  string `json:"reason"`
	Kind    string `json:"kind,omitempty"`
}

// SourceReport is the outcome of syncing one source.
type SourceReport struct {
	SourceID     int64     `json:"source_id"`
	URL          string    `json:"url"`
	Status       string    `json:"status"` // ok | not_modified | error
	StatusCode   int       `json:"status_code,omitempty"`
	Items        int       `json:"items"`
	New          int       `json:"new"`
	Updated      int       `json:"updated"`
	Unchanged    int       `json:"unchanged"`
	Failed       int       `json:"failed"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Failures     []Failure `json:"failures,omitempty"`
	KeyConflicts int       `json:"key_conflicts,omitempty"`
}

// RunReport aggregates a sync or queue-add run.
type RunReport struct {
	RunID          string         `json:"run_id"`
	SourcesChecked int            `json:"sources_checked"`
	NotModified    int            `json:"not_modified"`
	SourceErrors   int            `json:"source_errors"`
	New            int            `json:"new"`
	Updated        int            `json:"updated"`
	Unchanged      int            `json:"unchanged"`
	Failed         int            `json:"failed"`
	CleanupDeleted int64          `json:"cleanup_deleted"`
	Sources        []SourceReport `json:"sources,omitempty"`
	Failures       []Failure      `json:"failures,omitempty"`
}

// Add folds a source report into the run totals.
func (r *RunReport) Add(sr SourceReport) {
	r.SourcesChecked++
	switch sr.Status {
	case "not_modified":
		r.NotModified++
	case "error":
		r.SourceErrors++
		r.Failures = append(r.Failures, Failure{Locator: sr.URL, Reason: sr.Error, Kind: "source"})
	}
	r.New += sr.New
	r.Updated += sr.Updated
	r.Unchanged += sr.Unchanged
	r.Failed += sr.Failed
	r.Failures = append(r.Failures, sr.Failures...)
	r.Sources = append(r.Sources, sr)
}

// Format renders the one-line summary followed by one line per failure.
func (r *RunReport) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SYNC_OK sources_checked=%d not_modified=%d source_errors=%d new=%d updated=%d unchanged=%d failed=%d cleanup_deleted=%d\n",
		r.SourcesChecked, r.NotModified, r.SourceErrors, r.New, r.Updated, r.Unchanged, r.Failed, r.CleanupDeleted)
	writeFailures(&b, "SYNC_FAIL", r.Failures)
	return b.String()
}

// EnrichReport aggregates an enrichment run. Counters follow the
// transition each record took.
type EnrichReport struct {
	RunID          string    `json:"run_id"`
	Checked        int       `json:"checked"`
	ReadyNew       int       `json:"ready_new"`       // new or failed -> ready
	ReadyUpdated   int       `json:"ready_updated"`   // ready -> ready, content changed
	ReadyUnchanged int       `json:"ready_unchanged"` // ready -> ready, same content
	ReadyRetained  int       `json:"ready_retained"`  // failure on a ready row
	FailedNew      int       `json:"failed_new"`      // new -> failed
	FailedUpdated  int       `json:"failed_updated"`  // failed -> failed
	Transient      int       `json:"transient"`
	Exhausted      int       `json:"exhausted"`
	Skipped        int       `json:"skipped"` // config failures, nothing written
	Failures       []Failure `json:"failures,omitempty"`
}

// Format renders the one-line summary followed by one line per failure.
func (r *EnrichReport) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ENRICH_OK checked=%d ready_new=%d ready_updated=%d ready_unchanged=%d ready_retained=%d failed_new=%d failed_updated=%d transient=%d exhausted=%d skipped=%d\n",
		r.Checked, r.ReadyNew, r.ReadyUpdated, r.ReadyUnchanged, r.ReadyRetained,
		r.FailedNew, r.FailedUpdated, r.Transient, r.Exhausted, r.Skipped)
	writeFailures(&b, "ENRICH_FAIL", r.Failures)
	return b.String()
}

func writeFailures(b *strings.Builder, tag string, fs []Failure) {
	for _, f := range fs {
		fmt.Fprintf(b, "%s kind=%s reason=%s locator=%s\n", tag, f.Kind, oneLine(f.Reason), f.Locator)
	}
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), "_")
	if s == "" {
		return "unknown"
	}
	return s
}
