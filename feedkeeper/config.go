package feedkeeper

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/change"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/enrich"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/retry"
)

// Config configures the feedkeeper service. Zero values are filled by
// defaults; durations are YAML strings ("24h", "30m").
type Config struct {
	DBPath   string         `yaml:"db_path"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Sync     SyncConfig     `yaml:"sync"`
	Identity IdentityConfig `yaml:"identity"`
	Enrich   EnrichConfig   `yaml:"enrich"`
	Window   WindowConfig   `yaml:"window"`
}

// FetchConfig configures outbound HTTP.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
	// DisableConditional sends every feed request without validators.
	DisableConditional bool `yaml:"disable_conditional_get"`
}

// SyncConfig configures feed syncs.
type SyncConfig struct {
	MaxSources        int    `yaml:"max_sources"`
	MaxItemsPerSource int    `yaml:"max_items_per_source"`
	Merge             string `yaml:"merge"` // overwrite | keep_existing | fill_empty
	// CleanupTTL deletes records not seen for this long after each sync.
	CleanupTTL time.Duration `yaml:"cleanup_ttl"`
}

// IdentityConfig configures identity derivation.
type IdentityConfig struct {
	// DOIFirst applies DOI-first identity to feed items too. Queue items
	// always use it.
	DOIFirst       bool     `yaml:"doi_first"`
	TrackingParams []string `yaml:"tracking_params"`
}

// EnrichConfig configures the enrichment chain and its retry policy.
type EnrichConfig struct {
	Tiers []string `yaml:"tiers"`
	// MaxRetries caps counted failures. -1 is unlimited, 0 the default.
	MaxRetries     int             `yaml:"max_retries"`
	Backoff        []time.Duration `yaml:"backoff"`
	TransientDelay time.Duration   `yaml:"transient_delay"`
	RefetchAfter   time.Duration   `yaml:"refetch_after"`
	MinChars       int             `yaml:"min_chars"`
	MaxChars       int             `yaml:"max_chars"`
	Limit          int             `yaml:"limit"`

	OpenAlexBase        string `yaml:"openalex_base"`
	OpenAlexMailto      string `yaml:"openalex_mailto"`
	SemanticScholarBase string `yaml:"semanticscholar_base"`
	SemanticScholarKey  string `yaml:"semanticscholar_key"`
	DisableMarkdown     bool   `yaml:"disable_markdown"`
}

// WindowConfig sets window report limits.
type WindowConfig struct {
	MaxRecords   int `yaml:"max_records"`
	MaxPerSource int `yaml:"max_per_source"`
}

// LoadConfigFile reads a YAML config file and applies env overrides. An
// empty path yields the env-only config.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides fields from FEEDKEEPER_DB, FEEDKEEPER_USER_AGENT,
// OPENALEX_EMAIL and S2_API_KEY when set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("FEEDKEEPER_DB"); v != "" {
		c.DBPath = v
	}
	if v := getenv("FEEDKEEPER_USER_AGENT"); v != "" {
		c.Fetch.UserAgent = v
	}
	if v := getenv("OPENALEX_EMAIL"); v != "" {
		c.Enrich.OpenAlexMailto = v
	}
	if v := getenv("S2_API_KEY"); v != "" {
		c.Enrich.SemanticScholarKey = v
	}
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "feedkeeper.db"
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 20 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "feedkeeper/1.0"
	}
	if c.Sync.Merge == "" {
		c.Sync.Merge = "overwrite"
	}
	if len(c.Enrich.Tiers) == 0 {
		c.Enrich.Tiers = append([]string(nil), enrich.DefaultTiers...)
	}
	if c.Enrich.MaxRetries == 0 {
		c.Enrich.MaxRetries = retry.DefaultMaxRetries
	}
	if len(c.Enrich.Backoff) == 0 {
		c.Enrich.Backoff = append([]time.Duration(nil), retry.DefaultStages...)
	}
	if c.Enrich.TransientDelay == 0 {
		c.Enrich.TransientDelay = retry.DefaultTransientDelay
	}
	if c.Enrich.MinChars == 0 {
		c.Enrich.MinChars = 300
	}
	if c.Enrich.Limit <= 0 {
		c.Enrich.Limit = 50
	}
	if c.Enrich.OpenAlexBase == "" {
		c.Enrich.OpenAlexBase = enrich.DefaultOpenAlexBase
	}
	if c.Enrich.SemanticScholarBase == "" {
		c.Enrich.SemanticScholarBase = enrich.DefaultSemanticScholarBase
	}
	if c.Window.MaxRecords == 0 {
		c.Window.MaxRecords = 200
	}
}

// Validate reports the first configuration error, wrapped in
// ErrInvalidConfig.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.Enrich.MaxRetries < -1 {
		return bad("enrich.max_retries must be >= -1, got %d", c.Enrich.MaxRetries)
	}
	for i, d := range c.Enrich.Backoff {
		if d <= 0 {
			return bad("enrich.backoff[%d] must be positive", i)
		}
	}
	if c.Enrich.TransientDelay < 0 {
		return bad("enrich.transient_delay must not be negative")
	}
	if c.Enrich.RefetchAfter < 0 {
		return bad("enrich.refetch_after must not be negative")
	}
	if c.Enrich.MinChars < 0 || c.Enrich.MaxChars < 0 {
		return bad("enrich.min_chars and enrich.max_chars must not be negative")
	}
	for _, t := range c.Enrich.Tiers {
		if !enrich.KnownTier(t) {
			return bad("enrich.tiers: unknown tier %q", t)
		}
	}
	if _, ok := change.ParsePolicy(c.Sync.Merge); !ok {
		return bad("sync.merge: unknown policy %q", c.Sync.Merge)
	}
	if c.Sync.MaxSources < 0 || c.Sync.MaxItemsPerSource < 0 || c.Sync.CleanupTTL < 0 {
		return bad("sync limits must not be negative")
	}
	if c.Window.MaxRecords < 0 || c.Window.MaxPerSource < 0 {
		return bad("window limits must not be negative")
	}
	return nil
}

func (c *Config) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:     c.Enrich.MaxRetries,
		Stages:         append([]time.Duration(nil), c.Enrich.Backoff...),
		TransientDelay: c.Enrich.TransientDelay,
	}
}
