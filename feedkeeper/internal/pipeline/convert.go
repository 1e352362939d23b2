package pipeline

import (
	"time"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/change"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/enrich"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/fetch"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/identity"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/retry"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/store"
)

func toMs(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMs(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

func snapshotOf(r *store.Record) *change.Snapshot {
	return &change.Snapshot{
		RecordID:    r.ID,
		Fields:      fieldsOf(r),
		ContentHash: r.ContentHash,
		FirstSeenAt: time.UnixMilli(r.FirstSeenAt).UTC(),
		LastSeenAt:  time.UnixMilli(r.LastSeenAt).UTC(),
	}
}

func fieldsOf(r *store.Record) change.Fields {
	return change.Fields{
		GUID:           r.GUID,
		URL:            r.URL,
		CanonicalURL:   r.CanonicalURL,
		DOI:            r.DOI,
		DOIIsSurrogate: r.DOIIsSurrogate,
		Title:          r.Title,
		Author:         r.Author,
		Summary:        r.Summary,
		Content:        r.Content,
		Categories:     r.Categories,
		PublishedAt:    fromMs(r.PublishedAt),
		UpdatedAt:      fromMs(r.UpdatedAt),
		RawJSON:        r.RawJSON,
	}
}

// applyFields copies a decision's payload onto rec.
func applyFields(rec *store.Record, d change.Decision) {
	f := d.Fields
	rec.GUID = f.GUID
	rec.URL = f.URL
	rec.CanonicalURL = f.CanonicalURL
	rec.DOI = f.DOI
	rec.DOIIsSurrogate = f.DOIIsSurrogate
	rec.Title = f.Title
	rec.Author = f.Author
	rec.Summary = f.Summary
	rec.Content = f.Content
	rec.Categories = f.Categories
	rec.PublishedAt = toMs(f.PublishedAt)
	rec.UpdatedAt = toMs(f.UpdatedAt)
	rec.RawJSON = f.RawJSON
	rec.ContentHash = d.ContentHash
	rec.FirstSeenAt = d.FirstSeenAt.UnixMilli()
	rec.LastSeenAt = d.LastSeenAt.UnixMilli()
}

func storeKeys(keys []identity.Key) []store.IdentityKey {
	out := make([]store.IdentityKey, len(keys))
	for i, k := range keys {
		out[i] = store.IdentityKey{
			Kind:       string(k.Kind),
			Value:      k.Value,
			Confidence: string(k.Confidence),
			Surrogate:  k.Surrogate,
		}
	}
	return out
}

func cacheOf(src *store.Source) *fetch.CacheState {
	return &fetch.CacheState{
		ETag:          src.ETag,
		LastModified:  src.LastModified,
		LastCheckedAt: fromMs(src.LastCheckedAt),
		LastSuccessAt: fromMs(src.LastSuccessAt),
		LastStatus:    src.LastStatus,
		LastError:     src.LastError,
	}
}

func cacheUpdate(c fetch.CacheState) store.CacheUpdate {
	return store.CacheUpdate{
		ETag:          c.ETag,
		LastModified:  c.LastModified,
		LastCheckedAt: toMs(c.LastCheckedAt),
		LastSuccessAt: toMs(c.LastSuccessAt),
		LastStatus:    c.LastStatus,
		LastError:     c.LastError,
	}
}

func stateOf(e *store.Enrichment) *retry.State {
	if e == nil {
		return nil
	}
	return &retry.State{
		Status:      retry.Status(e.Status),
		ContentText: e.ContentText,
		ContentHash: e.ContentHash,
		ContentKind: e.ContentKind,
		Extractor:   e.Extractor,
		RetryCount:  e.RetryCount,
		NextRetryAt: fromMs(e.NextRetryAt),
		LastError:   e.LastError,
		FetchedAt:   fromMs(e.FetchedAt),
	}
}

// enrichmentRow builds the row to write. A retained ready row keeps the
// provenance of the content it still holds.
func enrichmentRow(recordID int64, s retry.State, att enrich.Attempt, prev *store.Enrichment, tr retry.Transition) *store.Enrichment {
	if tr.Retained && prev != nil {
		att.SourceURL, att.FinalURL, att.HTTPStatus = prev.SourceURL, prev.FinalURL, prev.HTTPStatus
	}
	return &store.Enrichment{
		RecordID:    recordID,
		Status:      string(s.Status),
		ContentKind: s.ContentKind,
		Extractor:   s.Extractor,
		SourceURL:   att.SourceURL,
		FinalURL:    att.FinalURL,
		HTTPStatus:  att.HTTPStatus,
		ContentText: s.ContentText,
		ContentHash: s.ContentHash,
		RetryCount:  s.RetryCount,
		NextRetryAt: toMs(s.NextRetryAt),
		LastError:   s.LastError,
		FetchedAt:   toMs(s.FetchedAt),
	}
}

func targetOf(r *store.Record) enrich.Target {
	u := r.URL
	if u == "" {
		u = r.CanonicalURL
	}
	return enrich.Target{
		RecordID:       r.ID,
		URL:            u,
		DOI:            r.DOI,
		DOIIsSurrogate: r.DOIIsSurrogate,
		FeedContent:    r.Content,
		Summary:        r.Summary,
	}
}
