package feed

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/identity"
)

// Subscription is one feed listed in an OPML file.
type Subscription struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	SiteURL string `json:"site_url,omitempty"`
}

type opmlDoc struct {
	XMLName xml.Name `xml:"opml"`
	Body    struct {
		Outlines []opmlOutline `xml:"outline"`
	} `xml:"body"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// ParseOPML returns the feeds of an OPML document in document order,
// nested folders included, deduplicated by canonical URL.
func ParseOPML(data []byte) ([]Subscription, error) {
	var doc opmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("feed: parse opml: %w", err)
	}
	var out []Subscription
	seen := make(map[string]bool)
	var walk func([]opmlOutline)
	walk = func(outlines []opmlOutline) {
		for _, o := range outlines {
			if u := identity.CanonicalURL(o.XMLURL, nil); u != "" && !seen[u] {
				seen[u] = true
				title := strings.TrimSpace(o.Title)
				if title == "" {
					title = strings.TrimSpace(o.Text)
				}
				out = append(out, Subscription{URL: u, Title: title, SiteURL: strings.TrimSpace(o.HTMLURL)})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)
	return out, nil
}
