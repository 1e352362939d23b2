package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/feed"
)

// Item is one source item after field mapping, before identity.
type Item struct {
	GUID       string
	URL        string
	DOI        string
	Title      string
	Author     string
	Summary    string
	Content    string
	Categories []string
	Published  *time.Time
	Updated    *time.Time
	// SourceFeed overrides the identity scope (queue items naming the feed
	// they came from).
	SourceFeed string
	Raw        map[string]any
}

// FromEntry maps a parsed feed entry. HTML is stripped from the summary;
// the content body is kept as shipped for the feed_content tier.
func FromEntry(e feed.Entry) Item {
	return Item{
		GUID:       e.GUID,
		URL:        e.Link,
		DOI:        e.DOI,
		Title:      feed.StripHTML(e.Title),
		Author:     e.Author,
		Summary:    feed.StripHTML(e.Description),
		Content:    e.Content,
		Categories: e.Categories,
		Published:  e.Published,
		Updated:    e.Updated,
	}
}

// FieldMap maps a canonical field to the input keys accepted for it, in
// precedence order.
type FieldMap map[string][]string

// DefaultFieldMap covers the names feed exports and JSONL dumps use.
var DefaultFieldMap = FieldMap{
	"guid":        {"guid", "id", "entry_id"},
	"url":         {"url", "link", "href"},
	"doi":         {"doi", "DOI", "identifier", "prism_doi"},
	"title":       {"title", "name"},
	"author":      {"author", "creator", "authors"},
	"summary":     {"summary", "description", "abstract"},
	"content":     {"content", "content_encoded", "body"},
	"categories":  {"categories", "tags", "category", "keywords"},
	"published":   {"published", "published_at", "pubDate", "date", "issued"},
	"updated":     {"updated", "updated_at", "modified"},
	"source_feed": {"source_feed", "feed_url", "source"},
}

// MapFields builds an Item from a loosely keyed record. Unknown keys are
// kept in Raw only.
func MapFields(raw map[string]any, fm FieldMap) (Item, error) {
	if fm == nil {
		fm = DefaultFieldMap
	}
	it := Item{Raw: raw}
	str := func(field string) string {
		for _, k := range fm[field] {
			if v, ok := raw[k]; ok {
				if s := stringValue(v); s != "" {
					return s
				}
			}
		}
		return ""
	}

	it.GUID = str("guid")
	it.URL = str("url")
	it.DOI = str("doi")
	it.Title = str("title")
	it.Author = str("author")
	it.Summary = feed.StripHTML(str("summary"))
	it.Content = str("content")
	it.SourceFeed = str("source_feed")
	for _, k := range fm["categories"] {
		if v, ok := raw[k]; ok {
			it.Categories = listValue(v)
			break
		}
	}

	var err error
	if it.Published, err = timeValue(raw, fm["published"]); err != nil {
		return it, err
	}
	if it.Updated, err = timeValue(raw, fm["updated"]); err != nil {
		return it, err
	}
	return it, nil
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case []any:
		parts := listValue(x)
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func listValue(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s := stringValue(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return x
	case string:
		var out []string
		for _, p := range strings.Split(x, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// timeValue accepts date strings and unix seconds.
func timeValue(raw map[string]any, keys []string) (*time.Time, error) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case float64:
			t := time.Unix(int64(x), 0).UTC()
			return &t, nil
		case string:
			if strings.TrimSpace(x) == "" {
				continue
			}
			if t := feed.ParseTime(x); t != nil {
				return t, nil
			}
			return nil, fmt.Errorf("field %s: unparseable time %q", k, x)
		}
	}
	return nil, nil
}

// encodeRaw renders the raw input for the records.raw_json column.
func encodeRaw(raw map[string]any) string {
	if len(raw) == 0 {
		return ""
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(b)
}
