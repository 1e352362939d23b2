package feedkeeper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedkeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /var/lib/feedkeeper/kb.db
fetch:
  timeout: 5s
  disable_conditional_get: true
sync:
  max_items_per_source: 25
  merge: fill_empty
  cleanup_ttl: 720h
identity:
  tracking_params: [ref, campaign]
enrich:
  tiers: [openalex, webpage]
  max_retries: -1
  backoff: [1h, 6h]
  refetch_after: 168h
  min_chars: 120
window:
  max_per_source: 3
`), 0o644))
	t.Setenv("FEEDKEEPER_DB", "")
	t.Setenv("OPENALEX_EMAIL", "ops@example.org")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/feedkeeper/kb.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.Fetch.DisableConditional)
	assert.Equal(t, 25, cfg.Sync.MaxItemsPerSource)
	assert.Equal(t, 720*time.Hour, cfg.Sync.CleanupTTL)
	assert.Equal(t, []string{"ref", "campaign"}, cfg.Identity.TrackingParams)
	assert.Equal(t, []time.Duration{time.Hour, 6 * time.Hour}, cfg.Enrich.Backoff)
	assert.Equal(t, -1, cfg.Enrich.MaxRetries)
	assert.Equal(t, "ops@example.org", cfg.Enrich.OpenAlexMailto)

	cfg.defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, -1, cfg.retryPolicy().MaxRetries)
	assert.Equal(t, 120, cfg.Enrich.MinChars)
	assert.Equal(t, 200, cfg.Window.MaxRecords)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch: [unterminated"), 0o644))
	_, err = LoadConfigFile(path)
	assert.Error(t, err)
}

func TestConfig_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"FEEDKEEPER_DB":         "env.db",
		"FEEDKEEPER_USER_AGENT": "kb-bot/2",
		"S2_API_KEY":            "s2-key",
	}
	cfg := Config{DBPath: "file.db"}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "env.db", cfg.DBPath)
	assert.Equal(t, "kb-bot/2", cfg.Fetch.UserAgent)
	assert.Equal(t, "s2-key", cfg.Enrich.SemanticScholarKey)
	assert.Empty(t, cfg.Enrich.OpenAlexMailto)
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "feedkeeper.db", cfg.DBPath)
	assert.Equal(t, "overwrite", cfg.Sync.Merge)
	assert.Equal(t, 3, cfg.Enrich.MaxRetries)
	assert.Len(t, cfg.Enrich.Tiers, 5)
	assert.Equal(t, 300, cfg.Enrich.MinChars)
}
