package enrich

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/fetch"
)

const htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

var binaryContentPrefixes = []string{
	"application/pdf",
	"application/zip",
	"application/octet-stream",
	"image/",
	"audio/",
	"video/",
}

// noise is removed before the article body is picked.
const noise = "script, style, noscript, svg, canvas, iframe, nav, header, footer, aside, form"

// bodySelectors are tried in order; the first non-empty match is converted.
var bodySelectors = []string{"article", "main", "[role=main]", "body"}

// Webpage fetches the record URL and extracts the readable body.
type Webpage struct {
	Getter Getter
	// DisableMarkdown forces the plain readable-text extractor.
	DisableMarkdown bool

	md *converter.Converter
}

// NewWebpage creates the webpage tier.
func NewWebpage(g Getter) *Webpage {
	return &Webpage{
		Getter: g,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (w *Webpage) Name() string { return "webpage" }

func (w *Webpage) Fetch(ctx context.Context, t Target) Result {
	if t.URL == "" {
		return Result{Status: StatusSkipped}
	}
	r, err := w.Getter.Fetch(ctx, fetch.Request{URL: t.URL, Accept: htmlAccept})
	if err != nil {
		return failure(r, err)
	}
	res := Result{Status: StatusOK, HTTPStatus: r.StatusCode, FinalURL: r.FinalURL, Kind: KindFulltext}

	ct := strings.ToLower(r.ContentType)
	for _, p := range binaryContentPrefixes {
		if strings.HasPrefix(ct, p) {
			res.Status = StatusError
			res.Err = fmt.Errorf("%w: %s", ErrUnsupportedContent, ct)
			return res
		}
	}

	pageURL := r.FinalURL
	if pageURL == "" {
		pageURL = t.URL
	}
	res.Text = w.extract(r.Body, pageURL)
	return res
}

// extract converts the main body to markdown, falling back to the
// readable-text parser when conversion yields nothing.
func (w *Webpage) extract(page []byte, pageURL string) string {
	if !w.DisableMarkdown && w.md != nil {
		if text := w.markdown(page, pageURL); text != "" {
			return text
		}
	}
	return ReadableText(page)
}

func (w *Webpage) markdown(page []byte, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	doc.Find(noise).Remove()

	for _, sel := range bodySelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 || strings.TrimSpace(node.Text()) == "" {
			continue
		}
		html, err := goquery.OuterHtml(node)
		if err != nil {
			return ""
		}
		out, err := w.md.ConvertString(html, converter.WithDomain(pageURL))
		if err != nil {
			return ""
		}
		return CleanText(out)
	}
	return ""
}

// FeedContent uses the body the feed itself shipped (content:encoded).
type FeedContent struct{}

func (FeedContent) Name() string { return "feed_content" }

func (FeedContent) Fetch(_ context.Context, t Target) Result {
	if strings.TrimSpace(t.FeedContent) == "" {
		return Result{Status: StatusSkipped}
	}
	return Result{Status: StatusOK, Text: ReadableText([]byte(t.FeedContent)), Kind: KindFulltext}
}

// FeedSummary uses the feed summary as an abstract of last resort.
type FeedSummary struct{}

func (FeedSummary) Name() string { return "feed_summary" }

func (FeedSummary) Fetch(_ context.Context, t Target) Result {
	if strings.TrimSpace(t.Summary) == "" {
		return Result{Status: StatusSkipped}
	}
	return Result{Status: StatusOK, Text: ReadableText([]byte(t.Summary)), Kind: KindAbstract}
}
