package fetch

import (
	"time"
)

// CacheState is the per-source conditional fetch state.
type CacheState struct {
	ETag          string
	LastModified  string
	LastCheckedAt *time.Time
	LastSuccessAt *time.Time
	LastStatus    int
	LastError     string
}

// Gate decides how a source is requested and how its cache state evolves.
type Gate struct {
	// Conditional enables If-None-Match / If-Modified-Since.
	Conditional bool
}

// Plan builds the request for url. Without cache state or validators the
// request is unconditional.
func (g Gate) Plan(url string, cache *CacheState) Request {
	req := Request{URL: url}
	if g.Conditional && cache != nil {
		req.ETag = cache.ETag
		req.LastModified = cache.LastModified
	}
	return req
}

// Next returns the cache state after an attempt. Every outcome advances
// LastCheckedAt. A 304 keeps the validators unless the server resent them;
// a success replaces them (keeping the old ones the server omitted); an
// error keeps them so the next run can still go conditional.
func (g Gate) Next(prev *CacheState, res *Result, err error, now time.Time) CacheState {
	var next CacheState
	if prev != nil {
		next = *prev
	}
	at := now
	next.LastCheckedAt = &at

	if err != nil {
		next.LastError = err.Error()
		next.LastStatus = 0
		if res != nil {
			next.LastStatus = res.StatusCode
		}
		if sc := StatusCode(err); sc != 0 {
			next.LastStatus = sc
		}
		return next
	}

	next.LastStatus = res.StatusCode
	next.LastError = ""
	if res.ETag != "" {
		next.ETag = res.ETag
	}
	if res.LastModified != "" {
		next.LastModified = res.LastModified
	}
	if !res.NotModified {
		next.LastSuccessAt = &at
	}
	return next
}
