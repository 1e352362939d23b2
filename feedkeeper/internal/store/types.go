package store

// Source kinds.
const (
	KindFeed  = "feed"
	KindQueue = "queue"
)

// Enrichment statuses, mirrored by the CHECK constraint on enrichment.status.
const (
	StatusNew    = "new"
	StatusReady  = "ready"
	StatusFailed = "failed"
)

// Fetch log statuses.
const (
	FetchOK          = "ok"
	FetchNotModified = "not_modified"
	FetchError       = "error"
)

// Source is a feed or queue together with its conditional fetch state.
type Source struct {
	ID            int64  `json:"id"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	SiteURL       string `json:"site_url,omitempty"`
	Kind          string `json:"kind"`
	Active        bool   `json:"active"`
	ETag          string `json:"etag,omitempty"`
	LastModified  string `json:"last_modified,omitempty"`
	LastCheckedAt *int64 `json:"last_checked_at,omitempty"`
	LastSuccessAt *int64 `json:"last_success_at,omitempty"`
	LastStatus    int    `json:"last_status"`
	LastError     string `json:"last_error,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// CacheUpdate is the conditional fetch state written after one attempt.
type CacheUpdate struct {
	ETag          string
	LastModified  string
	LastCheckedAt *int64
	LastSuccessAt *int64
	LastStatus    int
	LastError     string
}

// Record is one stored item.
type Record struct {
	ID             int64    `json:"id"`
	PrimaryKey     string   `json:"primary_key"`
	FirstSourceID  int64    `json:"first_source_id"`
	LastSourceID   int64    `json:"last_source_id"`
	GUID           string   `json:"guid,omitempty"`
	URL            string   `json:"url,omitempty"`
	CanonicalURL   string   `json:"canonical_url,omitempty"`
	DOI            string   `json:"doi,omitempty"`
	DOIIsSurrogate bool     `json:"doi_is_surrogate,omitempty"`
	Title          string   `json:"title"`
	Author         string   `json:"author,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Content        string   `json:"content,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	PublishedAt    *int64   `json:"published_at,omitempty"`
	UpdatedAt      *int64   `json:"updated_at,omitempty"`
	ContentHash    string   `json:"content_hash"`
	FirstSeenAt    int64    `json:"first_seen_at"`
	LastSeenAt     int64    `json:"last_seen_at"`
	RawJSON        string   `json:"-"`
}

// IdentityKey maps one derived key to a record.
type IdentityKey struct {
	Kind       string `json:"key_type"`
	Value      string `json:"key_value"`
	RecordID   int64  `json:"record_id"`
	Confidence string `json:"confidence"`
	Surrogate  bool   `json:"surrogate,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// Enrichment is the fulltext/abstract companion row of a record.
type Enrichment struct {
	RecordID      int64  `json:"record_id"`
	Status        string `json:"status"`
	ContentKind   string `json:"content_kind,omitempty"`
	Extractor     string `json:"extractor,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`
	FinalURL      string `json:"final_url,omitempty"`
	HTTPStatus    int    `json:"http_status,omitempty"`
	ContentText   string `json:"content_text,omitempty"`
	ContentHash   string `json:"content_hash,omitempty"`
	ContentLength int    `json:"content_length"`
	RetryCount    int    `json:"retry_count"`
	NextRetryAt   *int64 `json:"next_retry_at,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	FetchedAt     *int64 `json:"fetched_at,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Candidate is a record selected for enrichment with its current state
// (nil when never attempted).
type Candidate struct {
	Record     Record
	Enrichment *Enrichment
}

// CandidateQuery selects records for an enrichment run.
type CandidateQuery struct {
	Now        int64
	MaxRetries int // negative: unlimited
	Force      bool
	OnlyFailed bool
	// RefetchBefore makes ready rows fetched at or before it eligible again.
	RefetchBefore *int64
	Limit         int
}

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	SourceID int64
	Limit    int
}

// WindowQuery selects records whose reference time (published, else last
// seen) falls in [Start, End).
type WindowQuery struct {
	Start          int64
	End            int64
	Limit          int // 0: no limit
	WithEnrichment bool
}

// WindowRow is one record of a window query.
type WindowRow struct {
	Record      Record      `json:"record"`
	SourceURL   string      `json:"source_url"`
	SourceTitle string      `json:"source_title,omitempty"`
	ReferenceAt int64       `json:"reference_at"`
	Enrichment  *Enrichment `json:"enrichment,omitempty"`
}

// FetchLogEntry records one source fetch attempt.
type FetchLogEntry struct {
	ID           string `json:"id"`
	SourceID     int64  `json:"source_id"`
	Status       string `json:"status"`
	StatusCode   int    `json:"status_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ItemCount    int    `json:"item_count"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"`
}

// Stats summarises database contents.
type Stats struct {
	Sources      int            `json:"sources"`
	Records      int            `json:"records"`
	IdentityKeys int            `json:"identity_keys"`
	Enrichment   map[string]int `json:"enrichment"`
}
