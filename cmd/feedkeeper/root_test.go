package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_InvalidFormat(t *testing.T) {
	_, err := run(t, "", "--format", "yaml", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")

	_, err = run(t, "", "--log-level", "loud", "stats")
	assert.Error(t, err)
}

func TestCLI_FeedsAndQueue(t *testing.T) {
	t.Setenv("FEEDKEEPER_DB", "")
	db := filepath.Join(t.TempDir(), "data", "kb.db")

	out, err := run(t, "", "--db", db, "init-db")
	require.NoError(t, err)
	assert.Equal(t, "INIT_OK db="+db+"\n", out)

	out, err = run(t, "", "--db", db, "add-feed", "https://Example.org/feed?utm_medium=x", "--title", "Example")
	require.NoError(t, err)
	assert.Equal(t, "FEED_ADDED id=1 url=https://example.org/feed\n", out)

	out, err = run(t, "", "--db", db, "add-feed", "https://example.org/feed")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "FEED_EXISTS id=1"), out)

	opml := filepath.Join(t.TempDir(), "subs.opml")
	require.NoError(t, os.WriteFile(opml, []byte(`<opml version="2.0"><body>
<outline type="rss" text="Other" xmlUrl="https://other.example/rss"/></body></opml>`), 0o644))
	out, err = run(t, "", "--db", db, "import-opml", opml)
	require.NoError(t, err)
	assert.Equal(t, "OPML_OK added=1 existing=0 invalid=0\n", out)

	jsonl := `{"doi": "10.1234/ABC", "title": "Paper A", "link": "https://pub.example/a"}

{"title": "Paper B", "published": "2025-06-01"}
`
	out, err = run(t, jsonl, "--db", db, "queue-add", "--source", "https://kb.example/queue")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "SYNC_OK sources_checked=1 not_modified=0 source_errors=0 new=2 "), out)

	out, err = run(t, jsonl, "--db", db, "queue-add", "--source", "https://kb.example/queue", "-")
	require.NoError(t, err)
	assert.Contains(t, out, " unchanged=2 ")

	_, err = run(t, "{not json}\n", "--db", db, "queue-add", "--source", "https://kb.example/queue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	_, err = run(t, jsonl, "--db", db, "queue-add")
	assert.Error(t, err)

	out, err = run(t, "", "--db", db, "--format", "json", "list-feeds", "--kind", "feed")
	require.NoError(t, err)
	var srcs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &srcs))
	require.Len(t, srcs, 2)
	assert.Equal(t, "Example", srcs[0]["title"])

	out, err = run(t, "", "--db", db, "--format", "json", "list-entries", "--source", "https://kb.example/queue")
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	assert.Len(t, recs, 2)

	out, err = run(t, "", "--db", db, "stats")
	require.NoError(t, err)
	assert.Equal(t, "STATS sources=3 records=2 identity_keys=2 ready=0 failed=0 new=0\n", out)

	out, err = run(t, "", "--db", db, "report", "--start", "2025-06-01", "--end", "2025-06-02")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "REPORT_OK start=2025-06-01T00:00:00Z end=2025-06-02T00:00:00Z in_range=1 returned=1"), out)

	_, err = run(t, "", "--db", db, "report", "--start", "2025-06-02", "--end", "2025-06-01")
	assert.Error(t, err)

	out, err = run(t, "", "--db", db, "cleanup", "--days", "36500")
	require.NoError(t, err)
	assert.Equal(t, "CLEANUP_OK deleted=0\n", out)

	_, err = run(t, "", "--db", db, "cleanup")
	assert.Error(t, err, "ttl is required")

	out, err = run(t, "", "--db", db, "--format", "json", "history", "--action", "queue_add")
	require.NoError(t, err)
	var hist []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Len(t, hist, 2)
	assert.Equal(t, "success", hist[0]["status"])
	assert.Equal(t, "cli", hist[0]["transport"])
	assert.Contains(t, hist[0]["result"], "SYNC_OK")

	_, err = run(t, "", "--db", db, "enrich", "--only-failed")
	require.NoError(t, err)
	out, err = run(t, "", "--db", db, "--format", "json", "metrics", "--name", "enrich_checked_count")
	require.NoError(t, err)
	var points []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 1)
	assert.Equal(t, float64(0), points[0]["value"])
}

func TestReadJSONL(t *testing.T) {
	rows, err := readJSONL(strings.NewReader("{\"a\":1}\n  \n{\"b\":\"x\"}"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, float64(1), rows[0]["a"])
	assert.Equal(t, "x", rows[1]["b"])
}
