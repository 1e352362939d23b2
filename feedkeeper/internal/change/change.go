// Package change classifies an incoming item against its stored record and
// computes the fields an upsert writes.
package change

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"
)

// Verdict is the change detector outcome for one item.
type Verdict string

const (
	New       Verdict = "new"
	Unchanged Verdict = "unchanged"
	Updated   Verdict = "updated"
)

// Fields is the domain payload of a stored record.
type Fields struct {
	GUID           string
	URL            string
	CanonicalURL   string
	DOI            string
	DOIIsSurrogate bool
	Title          string
	Author         string
	Summary        string
	Content        string
	Categories     []string
	PublishedAt    *time.Time
	UpdatedAt      *time.Time
	RawJSON        string
}

// Hash digests the semantic payload over a fixed field order: title,
// summary, published, updated, canonical URL (raw URL when absent), sorted
// categories. Whitespace runs are collapsed so formatting noise upstream
// does not register as change.
func Hash(f Fields) string {
	cats := make([]string, 0, len(f.Categories))
	for _, c := range f.Categories {
		if c = collapse(c); c != "" {
			cats = append(cats, c)
		}
	}
	slices.Sort(cats)
	cats = slices.Compact(cats)

	link := f.CanonicalURL
	if link == "" {
		link = f.URL
	}
	basis := strings.Join([]string{
		collapse(f.Title),
		collapse(f.Summary),
		stamp(f.PublishedAt),
		stamp(f.UpdatedAt),
		link,
		strings.Join(cats, ","),
	}, "|")
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// Classify compares a stored hash (nil when no record matched) with the
// hash of the incoming payload.
func Classify(existing *string, incoming string) Verdict {
	switch {
	case existing == nil:
		return New
	case *existing == incoming:
		return Unchanged
	default:
		return Updated
	}
}

// Snapshot is the stored state Decide compares against.
type Snapshot struct {
	RecordID    int64
	Fields      Fields
	ContentHash string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Decision is what the writer applies for one item.
type Decision struct {
	Verdict     Verdict
	Fields      Fields
	ContentHash string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Decide classifies incoming against existing (nil for a new item).
// Unchanged items only advance LastSeenAt; updated items are merged under
// policy and keep FirstSeenAt. The stored hash is always the hash of the
// incoming payload so an identical re-fetch compares equal.
func Decide(existing *Snapshot, incoming Fields, now time.Time, policy Policy) Decision {
	h := Hash(incoming)
	if existing == nil {
		return Decision{Verdict: New, Fields: incoming, ContentHash: h, FirstSeenAt: now, LastSeenAt: now}
	}
	d := Decision{
		Verdict:     Classify(&existing.ContentHash, h),
		FirstSeenAt: existing.FirstSeenAt,
		LastSeenAt:  now,
	}
	if d.Verdict == Unchanged {
		d.Fields = existing.Fields
		d.ContentHash = existing.ContentHash
		return d
	}
	d.Fields = Merge(existing.Fields, incoming, policy)
	d.ContentHash = h
	return d
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
