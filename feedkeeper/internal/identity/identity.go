// Package identity derives the identity keys of an incoming item and
// resolves them against the stored record index.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Kind is the type of an identity key.
type Kind string

const (
	KindGUID         Kind = "guid"
	KindCanonicalURL Kind = "canonical_url"
	KindDOI          Kind = "doi"
	KindFallback     Kind = "content_hash_fallback"
)

// Confidence grades how reliably a key identifies one real-world item.
type Confidence string

const (
	High Confidence = "high"
	Low  Confidence = "low"
)

// ErrNoIdentity is returned when an item carries nothing an identity can be
// derived from. It is a configuration failure: nothing is written.
var ErrNoIdentity = errors.New("identity: no identity derivable")

// ErrNoScope is returned when the item has no source scope.
var ErrNoScope = errors.New("identity: missing source scope")

// Key is one (kind, value) pair. For KindGUID the value is scoped by the
// source so equal guids from different feeds never collide.
type Key struct {
	Kind       Kind       `json:"kind"`
	Value      string     `json:"value"`
	Confidence Confidence `json:"confidence"`
	Surrogate  bool       `json:"surrogate,omitempty"`
}

// String renders the key the way it is stored as a record's primary key.
func (k Key) String() string {
	switch k.Kind {
	case KindGUID:
		return "guid:" + k.Value
	case KindCanonicalURL:
		return "url:" + k.Value
	case KindDOI:
		return "doi:" + k.Value
	default:
		return "hash:" + k.Value
	}
}

// Input is the part of a source item identity cares about.
type Input struct {
	SourceScope string
	GUID        string
	URL         string
	DOI         string
	Title       string
	Published   *time.Time
	Summary     string
}

// Options tunes derivation.
type Options struct {
	// DOIFirst makes the DOI (real or surrogate) the sole key.
	DOIFirst       bool
	TrackingParams []string
}

// Derive returns the candidate keys of in, highest confidence first. The
// low-confidence content fallback is derived only when no guid, URL or DOI
// yields a key.
func Derive(in Input, opts Options) ([]Key, error) {
	scope := CanonicalURL(in.SourceScope, opts.TrackingParams)
	if scope == "" {
		return nil, ErrNoScope
	}
	published := formatTime(in.Published)

	if opts.DOIFirst {
		if doi := NormalizeDOI(in.DOI); doi != "" {
			return []Key{{Kind: KindDOI, Value: doi, Confidence: High}}, nil
		}
		if NormalizeTitle(in.Title) == "" {
			return nil, fmt.Errorf("%w: no doi and no title", ErrNoIdentity)
		}
		return []Key{{
			Kind:       KindDOI,
			Value:      SurrogateDOI(scope, in.Title, published),
			Confidence: High,
			Surrogate:  true,
		}}, nil
	}

	var keys []Key
	if guid := collapse(in.GUID); guid != "" {
		keys = append(keys, Key{Kind: KindGUID, Value: scope + ":" + guid, Confidence: High})
	}
	if u := CanonicalURL(in.URL, opts.TrackingParams); u != "" {
		keys = append(keys, Key{Kind: KindCanonicalURL, Value: u, Confidence: High})
	}
	if doi := NormalizeDOI(in.DOI); doi != "" {
		keys = append(keys, Key{Kind: KindDOI, Value: doi, Confidence: High})
	}
	if len(keys) > 0 {
		return keys, nil
	}

	// The content fallback only stands in for a missing natural key: two
	// items with their own guid or URL never meet on it.
	if NormalizeTitle(in.Title) == "" && published == "" && collapse(in.Summary) == "" {
		return nil, ErrNoIdentity
	}
	return []Key{{Kind: KindFallback, Value: FallbackHash(scope, in.Title, published, in.Summary), Confidence: Low}}, nil
}

// FallbackHash is sha256(scope|normalized title|published|summary[:200]),
// hex encoded. Identical inputs always give the same key.
func FallbackHash(scope, title, published, summary string) string {
	summary = collapse(summary)
	if utf8.RuneCountInString(summary) > 200 {
		summary = string([]rune(summary)[:200])
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{scope, NormalizeTitle(title), published, summary}, "|")))
	return hex.EncodeToString(sum[:])
}

// NormalizeTitle applies NFKC, collapses whitespace and lower-cases.
func NormalizeTitle(s string) string {
	return strings.ToLower(collapse(norm.NFKC.String(s)))
}

// Lookup finds the record a key is registered against.
type Lookup func(ctx context.Context, k Key) (recordID int64, found bool, err error)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Keys     []Key
	Primary  Key   // matched key, or the highest-confidence key of a new item
	RecordID int64 // zero when New
	New      bool
}

// Resolve derives the keys of in and tries them in order; the first key
// found wins. With no match the item is new under its first key.
func Resolve(ctx context.Context, in Input, opts Options, lookup Lookup) (*Resolution, error) {
	keys, err := Derive(in, opts)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		id, found, err := lookup(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("identity: lookup %s: %w", k.Kind, err)
		}
		if found {
			return &Resolution{Keys: keys, Primary: k, RecordID: id}, nil
		}
	}
	return &Resolution{Keys: keys, Primary: keys[0], New: true}, nil
}

// FormatTime renders t as RFC3339 UTC at second precision, "" for nil.
func FormatTime(t *time.Time) string { return formatTime(t) }

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
