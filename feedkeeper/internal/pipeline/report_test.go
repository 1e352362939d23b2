package pipeline

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func TestRunReport_Format(t *testing.T) {
	rep := &RunReport{RunID: "run-1"}
	rep.Add(SourceReport{URL: "https://a.example/feed", Status: "ok", Items: 3, New: 2, Unchanged: 1})
	rep.Add(SourceReport{URL: "https://b.example/feed", Status: "not_modified"})
	rep.Add(SourceReport{URL: "https://c.example/feed", Status: "error", Error: "http 503"})
	rep.Add(SourceReport{URL: "https://d.example/feed", Status: "ok", Items: 2, Updated: 1, Failed: 1,
		Failures: []Failure{{Locator: "guid:x", Reason: "no identity", Kind: "config"}}})
	rep.CleanupDeleted = 4

	assert.Equal(t, 4, rep.SourcesChecked)
	assert.Equal(t, 2, rep.New)
	assert.Len(t, rep.Failures, 2)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "sync_report", []byte(rep.Format()))
}

func TestEnrichReport_Format(t *testing.T) {
	rep := &EnrichReport{
		RunID:         "run-2",
		Checked:       5,
		ReadyNew:      2,
		ReadyRetained: 1,
		FailedNew:     1,
		Transient:     1,
		Skipped:       1,
		Failures: []Failure{
			{Locator: "https://example.org/p", Reason: "rate_limited", Kind: "transient"},
			{Locator: "https://example.org/q", Reason: "not_found", Kind: "permanent"},
			{Locator: "hash:abc", Reason: "", Kind: "config"},
		},
	}
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "enrich_report", []byte(rep.Format()))
}
