package identity

import (
	"net/url"
	"strings"
)

// DefaultTrackingParams are dropped from URLs in addition to any utm_* key.
var DefaultTrackingParams = []string{"ref", "source", "fbclid", "gclid", "mc_cid", "mc_eid"}

// CanonicalURL normalises an item or feed URL: scheme and host lower-cased,
// fragment dropped, utm_* and tracking query keys removed (remaining pairs
// keep their order and encoding), empty path replaced by "/". Strings that
// are not absolute URLs come back trimmed and otherwise untouched.
func CanonicalURL(raw string, tracking []string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	if tracking == nil {
		tracking = DefaultTrackingParams
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	u.RawQuery = filterQuery(u.RawQuery, tracking)
	u.ForceQuery = false
	return u.String()
}

func filterQuery(rawQuery string, tracking []string) string {
	if rawQuery == "" {
		return ""
	}
	kept := make([]string, 0, 4)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key = pair[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if isTracking(strings.ToLower(key), tracking) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

func isTracking(key string, tracking []string) bool {
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	for _, t := range tracking {
		if key == t {
			return true
		}
	}
	return false
}
