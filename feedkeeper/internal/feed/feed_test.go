package feed

import (
	"testing"
	"time"
)

const rss20Sample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:prism="http://prismstandard.org/namespaces/basic/2.0/">
  <channel>
    <title>Climate Papers</title>
    <link>https://journal.example.com</link>
    <item>
      <guid isPermaLink="false">item-001</guid>
      <title>Ocean Heat Content</title>
      <link>https://journal.example.com/ohc?utm_source=rss</link>
      <description>&lt;p&gt;Warming &amp;amp; more.&lt;/p&gt;</description>
      <content:encoded><![CDATA[<p>Full body</p>]]></content:encoded>
      <pubDate>Mon, 24 Feb 2026 10:00:00 GMT</pubDate>
      <dc:creator>Alice</dc:creator>
      <category>ocean</category>
      <category>climate</category>
      <category>ocean</category>
      <prism:doi>10.1234/ohc.2026</prism:doi>
    </item>
    <item>
      <title>No Guid Item</title>
      <link>https://journal.example.com/b</link>
      <pubDate>Sun, 23 Feb 2026 09:00:00 +0100</pubDate>
      <dc:identifier>doi:10.5555/B</dc:identifier>
    </item>
  </channel>
</rss>`

const rdfSample = `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns="http://purl.org/rss/1.0/" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel rdf:about="https://rdf.example.com/">
    <title>RDF Feed</title>
    <link>https://rdf.example.com/</link>
  </channel>
  <item rdf:about="https://rdf.example.com/1">
    <title>First</title>
    <link>https://rdf.example.com/1</link>
    <dc:date>2026-01-05T10:00:00Z</dc:date>
    <dc:subject>energy</dc:subject>
  </item>
</rdf:RDF>`

const atom10Sample = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Science Blog</title>
  <link href="https://science.example.com/feed" rel="self"/>
  <link href="https://science.example.com" rel="alternate"/>
  <entry>
    <id>urn:uuid:abc-001</id>
    <title>Quantum Computing Advances</title>
    <link href="https://science.example.com/quantum/edit" rel="edit"/>
    <link href="https://science.example.com/quantum" rel="alternate"/>
    <summary>New breakthroughs.</summary>
    <published>2026-02-24T08:00:00Z</published>
    <updated>2026-02-25T08:00:00+02:00</updated>
    <author><name>Bob</name></author>
    <category term="physics"/>
  </entry>
  <entry>
    <id>urn:uuid:abc-002</id>
    <title>Mars Mission Update</title>
    <link href="https://science.example.com/mars"/>
    <updated>2026-02-23T12:00:00Z</updated>
  </entry>
</feed>`

func TestParseRSS20(t *testing.T) {
	// WHAT: RSS 2.0 with dc/content/prism extensions.
	// WHY: identity needs guid, link, DOI and dates; hashing needs categories.
	f, err := Parse([]byte(rss20Sample))
	if err != nil {
		t.Fatalf("parse rss: %v", err)
	}
	if f.Format != "rss" || f.Title != "Climate Papers" || len(f.Entries) != 2 {
		t.Fatalf("feed: got format=%q title=%q entries=%d", f.Format, f.Title, len(f.Entries))
	}

	e := f.Entries[0]
	if e.GUID != "item-001" {
		t.Errorf("guid: got %q", e.GUID)
	}
	if e.Author != "Alice" {
		t.Errorf("author (dc:creator): got %q", e.Author)
	}
	if e.Content != "<p>Full body</p>" {
		t.Errorf("content:encoded: got %q", e.Content)
	}
	if e.DOI != "10.1234/ohc.2026" {
		t.Errorf("doi: got %q", e.DOI)
	}
	if len(e.Categories) != 2 || e.Categories[0] != "ocean" || e.Categories[1] != "climate" {
		t.Errorf("categories: got %v", e.Categories)
	}
	want := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	if e.Published == nil || !e.Published.Equal(want) {
		t.Errorf("published: got %v", e.Published)
	}
	if got := StripHTML(e.Description); got != "Warming & more." {
		t.Errorf("stripped description: got %q", got)
	}

	e2 := f.Entries[1]
	if e2.GUID != "" {
		t.Errorf("missing guid must stay empty, got %q", e2.GUID)
	}
	if e2.DOI != "doi:10.5555/B" {
		t.Errorf("dc:identifier doi: got %q", e2.DOI)
	}
	if e2.Published == nil || e2.Published.Hour() != 8 {
		t.Errorf("published should be normalised to UTC: got %v", e2.Published)
	}
}

func TestParseRDF(t *testing.T) {
	f, err := Parse([]byte(rdfSample))
	if err != nil {
		t.Fatalf("parse rdf: %v", err)
	}
	if f.Format != "rdf" || f.Title != "RDF Feed" || len(f.Entries) != 1 {
		t.Fatalf("feed: got %+v", f)
	}
	e := f.Entries[0]
	if e.GUID != "https://rdf.example.com/1" {
		t.Errorf("guid (rdf:about): got %q", e.GUID)
	}
	if e.Published == nil || e.Published.Day() != 5 {
		t.Errorf("dc:date: got %v", e.Published)
	}
	if len(e.Categories) != 1 || e.Categories[0] != "energy" {
		t.Errorf("dc:subject: got %v", e.Categories)
	}
}

func TestParseAtom10(t *testing.T) {
	f, err := Parse([]byte(atom10Sample))
	if err != nil {
		t.Fatalf("parse atom: %v", err)
	}
	if f.Link != "https://science.example.com" {
		t.Errorf("link: got %q", f.Link)
	}
	e := f.Entries[0]
	if e.Link != "https://science.example.com/quantum" {
		t.Errorf("alternate link: got %q", e.Link)
	}
	if e.Updated == nil || e.Updated.Hour() != 6 {
		t.Errorf("updated: got %v", e.Updated)
	}
	if len(e.Categories) != 1 || e.Categories[0] != "physics" {
		t.Errorf("categories: got %v", e.Categories)
	}

	// Second entry falls back to updated for published.
	e2 := f.Entries[1]
	if e2.Published == nil || !e2.Published.Equal(time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("published (from updated): got %v", e2.Published)
	}
}

func TestParse_Errors(t *testing.T) {
	for name, data := range map[string]string{
		"empty":   "   ",
		"html":    "<html><body>not a feed</body></html>",
		"garbage": "not xml at all",
	} {
		if _, err := Parse([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-01-01T00:00:00Z", "2026-01-01T00:00:00Z"},
		{"2026-01-01T02:00:00+02:00", "2026-01-01T00:00:00Z"},
		{"Thu, 01 Jan 2026 00:00:00 GMT", "2026-01-01T00:00:00Z"},
		{"Thu, 1 Jan 2026 01:00:00 +0100", "2026-01-01T00:00:00Z"},
		{"2026-01-01", "2026-01-01T00:00:00Z"},
	}
	for _, tt := range tests {
		got := ParseTime(tt.in)
		if got == nil || got.Format(time.RFC3339) != tt.want {
			t.Errorf("ParseTime(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
	if ParseTime("") != nil || ParseTime("yesterday") != nil {
		t.Error("empty or unparseable input must give nil")
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML(`<div>Line one<br/>line&nbsp;two</div><script>x()</script><p>Tail</p>`)
	if got != "Line one line two Tail" {
		t.Errorf("StripHTML: got %q", got)
	}
}

func TestParseOPML(t *testing.T) {
	// WHAT: nested outlines are flattened and duplicates dropped.
	// WHY: exported OPML files often list a feed in several folders.
	doc := `<?xml version="1.0"?>
<opml version="2.0">
  <head><title>subs</title></head>
  <body>
    <outline text="Science">
      <outline text="Nature" title="Nature News" type="rss" xmlUrl="https://Nature.com/feed#top" htmlUrl="https://nature.com"/>
      <outline text="Dup" xmlUrl="https://nature.com/feed"/>
    </outline>
    <outline text="Atom Blog" xmlUrl="https://blog.example.org/atom.xml?utm_source=opml"/>
    <outline text="folder without feed"/>
  </body>
</opml>`
	subs, err := ParseOPML([]byte(doc))
	if err != nil {
		t.Fatalf("parse opml: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("subs: got %d (%+v), want 2", len(subs), subs)
	}
	if subs[0].URL != "https://nature.com/feed" || subs[0].Title != "Nature News" || subs[0].SiteURL != "https://nature.com" {
		t.Errorf("first: got %+v", subs[0])
	}
	if subs[1].URL != "https://blog.example.org/atom.xml" || subs[1].Title != "Atom Blog" {
		t.Errorf("second: got %+v", subs[1])
	}
}
