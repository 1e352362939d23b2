// CLAUDE:SUMMARY RSS 2.0, RSS 1.0 (RDF) and Atom 1.0 parser with auto-detection from the XML root element.
// Package feed parses syndication feeds and OPML subscription lists using
// encoding/xml.
//
// Format is detected from the root element:
//   - <rss ...>     → RSS 2.0
//   - <rdf:RDF ...> → RSS 1.0
//   - <feed ...>    → Atom 1.0
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Entry is one item of a feed, with text fields trimmed.
type Entry struct {
	GUID        string     `json:"guid,omitempty"`
	Title       string     `json:"title"`
	Link        string     `json:"link,omitempty"`
	Description string     `json:"description,omitempty"`
	Content     string     `json:"content,omitempty"`
	Published   *time.Time `json:"published,omitempty"`
	Updated     *time.Time `json:"updated,omitempty"`
	Author      string     `json:"author,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	DOI         string     `json:"doi,omitempty"`
}

// Feed is a parsed feed.
type Feed struct {
	Format  string  `json:"format"`
	Title   string  `json:"title"`
	Link    string  `json:"link"`
	Entries []Entry `json:"entries"`
}

// Parse auto-detects and parses RSS 2.0, RSS 1.0 or Atom 1.0 XML.
func Parse(data []byte) (*Feed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("feed: empty data")
	}

	switch detectFormat(trimmed) {
	case "rss":
		return parseRSS(trimmed)
	case "rdf":
		return parseRDF(trimmed)
	case "atom":
		return parseAtom(trimmed)
	default:
		return nil, fmt.Errorf("feed: unknown format (expected <rss>, <rdf:RDF> or <feed>)")
	}
}

func detectFormat(data []byte) string {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss":
				return "rss"
			case "rdf":
				return "rdf"
			case "feed":
				return "atom"
			}
			return ""
		}
	}
}

// --- RSS 2.0 ---

type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Link  string    `xml:"link"`
	Items []rssItem `xml:"item"`
}

// rssItem also serves RSS 1.0 items, which share the dc: extensions.
type rssItem struct {
	GUID        string   `xml:"guid"`
	About       string   `xml:"about,attr"` // rdf:about
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Content     string   `xml:"encoded"` // content:encoded
	PubDate     string   `xml:"pubDate"`
	Date        string   `xml:"date"`     // dc:date
	Modified    string   `xml:"modified"` // dcterms:modified
	Author      string   `xml:"author"`
	Creator     string   `xml:"creator"` // dc:creator
	Categories  []string `xml:"category"`
	Subjects    []string `xml:"subject"`    // dc:subject
	Identifier  []string `xml:"identifier"` // dc:identifier
	DOI         string   `xml:"doi"`        // prism:doi
}

func (it rssItem) entry() Entry {
	author := strings.TrimSpace(it.Author)
	if author == "" {
		author = strings.TrimSpace(it.Creator)
	}
	published := ParseTime(it.PubDate)
	if published == nil {
		published = ParseTime(it.Date)
	}
	guid := strings.TrimSpace(it.GUID)
	if guid == "" {
		guid = strings.TrimSpace(it.About)
	}
	return Entry{
		GUID:        guid,
		Title:       strings.TrimSpace(it.Title),
		Link:        strings.TrimSpace(it.Link),
		Description: strings.TrimSpace(it.Description),
		Content:     strings.TrimSpace(it.Content),
		Published:   published,
		Updated:     ParseTime(it.Modified),
		Author:      author,
		Categories:  terms(append(it.Categories, it.Subjects...)),
		DOI:         pickDOI(it.DOI, it.Identifier),
	}
}

func parseRSS(data []byte) (*Feed, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse rss: %w", err)
	}

	ch := root.Channel
	feed := &Feed{
		Format:  "rss",
		Title:   strings.TrimSpace(ch.Title),
		Link:    strings.TrimSpace(ch.Link),
		Entries: make([]Entry, 0, len(ch.Items)),
	}
	for _, item := range ch.Items {
		feed.Entries = append(feed.Entries, item.entry())
	}
	return feed, nil
}

// --- RSS 1.0 ---

type rdfRoot struct {
	XMLName xml.Name   `xml:"RDF"`
	Channel rssChannel `xml:"channel"`
	Items   []rssItem  `xml:"item"`
}

func parseRDF(data []byte) (*Feed, error) {
	var root rdfRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse rdf: %w", err)
	}
	feed := &Feed{
		Format:  "rdf",
		Title:   strings.TrimSpace(root.Channel.Title),
		Link:    strings.TrimSpace(root.Channel.Link),
		Entries: make([]Entry, 0, len(root.Items)),
	}
	for _, item := range root.Items {
		feed.Entries = append(feed.Entries, item.entry())
	}
	return feed, nil
}

// --- Atom 1.0 ---

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Links      []atomLink     `xml:"link"`
	Summary    string         `xml:"summary"`
	Content    atomContent    `xml:"content"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Identifier []string       `xml:"identifier"`
	DOI        string         `xml:"doi"`
}

type atomContent struct {
	Body string `xml:",chardata"`
	Type string `xml:"type,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term  string `xml:"term,attr"`
	Label string `xml:"label,attr"`
}

func parseAtom(data []byte) (*Feed, error) {
	var root atomFeed
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("feed: parse atom: %w", err)
	}

	feed := &Feed{
		Format:  "atom",
		Title:   strings.TrimSpace(root.Title),
		Link:    alternateLink(root.Links),
		Entries: make([]Entry, 0, len(root.Entries)),
	}

	for _, entry := range root.Entries {
		updated := ParseTime(entry.Updated)
		published := ParseTime(entry.Published)
		if published == nil {
			published = updated
		}

		var author string
		if len(entry.Authors) > 0 {
			author = strings.TrimSpace(entry.Authors[0].Name)
		}

		cats := make([]string, 0, len(entry.Categories))
		for _, c := range entry.Categories {
			if c.Term != "" {
				cats = append(cats, c.Term)
			} else {
				cats = append(cats, c.Label)
			}
		}

		feed.Entries = append(feed.Entries, Entry{
			GUID:        strings.TrimSpace(entry.ID),
			Title:       strings.TrimSpace(entry.Title),
			Link:        alternateLink(entry.Links),
			Description: strings.TrimSpace(entry.Summary),
			Content:     strings.TrimSpace(entry.Content.Body),
			Published:   published,
			Updated:     updated,
			Author:      author,
			Categories:  terms(cats),
			DOI:         pickDOI(entry.DOI, entry.Identifier),
		})
	}

	return feed, nil
}

// alternateLink prefers rel="alternate" (or no rel), then the first href.
func alternateLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(links) > 0 {
		return strings.TrimSpace(links[0].Href)
	}
	return ""
}

func terms(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// pickDOI returns prism:doi, else the first dc:identifier that looks like
// a DOI. Normalisation is left to the identity layer.
func pickDOI(doi string, identifiers []string) string {
	if d := strings.TrimSpace(doi); d != "" {
		return d
	}
	for _, id := range identifiers {
		id = strings.TrimSpace(id)
		if strings.Contains(strings.ToLower(id), "10.") {
			return id
		}
	}
	return ""
}
