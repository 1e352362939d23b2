// CLAUDE:SUMMARY Ordered fulltext/abstract tiers: first usable text wins, failures aggregate into one retry outcome.
// Package enrich fetches fulltext and abstracts for stored records.
package enrich

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/retry"
	"github.com/hazyhaar/feedkeeper/horosafe"
)

// Content kinds.
const (
	KindFulltext = "fulltext"
	KindAbstract = "abstract"
)

// Status of one tier attempt.
type Status string

const (
	StatusOK          Status = "ok"
	StatusNotFound    Status = "not_found"
	StatusRateLimited Status = "rate_limited"
	StatusError       Status = "error"
	StatusSkipped     Status = "skipped" // tier not applicable to the target
)

// ErrUnsupportedContent is returned for binary responses (PDF, images...).
var ErrUnsupportedContent = errors.New("unsupported content type")

// Target is what the tiers know about a record.
type Target struct {
	RecordID       int64
	URL            string
	DOI            string
	DOIIsSurrogate bool
	FeedContent    string
	Summary        string
}

// HasDOI reports whether the target carries a resolvable DOI.
func (t Target) HasDOI() bool {
	return t.DOI != "" && !t.DOIIsSurrogate
}

// Result is the outcome of one tier.
type Result struct {
	Status     Status
	Text       string
	Kind       string
	HTTPStatus int
	FinalURL   string
	Err        error
}

// Source is one enrichment tier.
type Source interface {
	Name() string
	Fetch(ctx context.Context, t Target) Result
}

// Attempt is the aggregated result of a chain run.
type Attempt struct {
	Outcome    retry.Outcome
	SourceURL  string
	FinalURL   string
	HTTPStatus int
	Tried      []string
}

// Chain tries its sources in order.
type Chain struct {
	Sources  []Source
	MinChars int // below this the text is a quality failure. Default: 1.
	MaxChars int // longer text is truncated. 0: no limit.
}

// Run tries each tier until one yields text of at least MinChars. With no
// winner the failure kind is transient if any tier failed transiently,
// else quality if any text was too short, else permanent. When no tier
// applied to the target the outcome is a config failure.
func (c Chain) Run(ctx context.Context, t Target) Attempt {
	minChars := max(c.MinChars, 1)
	att := Attempt{SourceURL: t.URL}

	var transient, short, permanent string
	applied := false
	for _, src := range c.Sources {
		if ctx.Err() != nil {
			transient = retry.ReasonNetwork
			break
		}
		res := src.Fetch(ctx, t)
		if res.Status == StatusSkipped {
			continue
		}
		applied = true
		att.Tried = append(att.Tried, src.Name())
		if res.HTTPStatus != 0 {
			att.HTTPStatus = res.HTTPStatus
		}
		if res.FinalURL != "" {
			att.FinalURL = res.FinalURL
		}

		if res.Status == StatusOK {
			text := CleanText(res.Text)
			if utf8.RuneCountInString(text) >= minChars {
				att.Outcome = retry.Outcome{
					Text:        truncate(text, c.MaxChars),
					ContentKind: res.Kind,
					Extractor:   src.Name(),
				}
				return att
			}
			if short == "" {
				short = retry.ReasonTooShort
			}
			continue
		}

		kind, reason := classify(res)
		switch kind {
		case retry.Transient:
			if transient == "" {
				transient = reason
			}
		default:
			if permanent == "" {
				permanent = reason
			}
		}
	}

	switch {
	case !applied && transient == "":
		att.Outcome = retry.Outcome{Failure: retry.Config, Reason: retry.ReasonMissingLocator}
	case transient != "":
		att.Outcome = retry.Outcome{Failure: retry.Transient, Reason: transient}
	case short != "":
		att.Outcome = retry.Outcome{Failure: retry.Quality, Reason: short}
	default:
		att.Outcome = retry.Outcome{Failure: retry.Permanent, Reason: permanent}
	}
	return att
}

func classify(res Result) (retry.FailureKind, string) {
	switch res.Status {
	case StatusNotFound:
		return retry.Permanent, retry.ReasonNotFound
	case StatusRateLimited:
		return retry.Transient, retry.ReasonRateLimited
	}
	switch {
	case errors.Is(res.Err, ErrUnsupportedContent):
		return retry.Permanent, "unsupported_content_type"
	case errors.Is(res.Err, horosafe.ErrSSRF), errors.Is(res.Err, horosafe.ErrUnsafeScheme):
		return retry.Permanent, "blocked_url"
	case errors.Is(res.Err, horosafe.ErrTooLarge):
		return retry.Permanent, "too_large"
	}
	return retry.ClassifyHTTP(res.HTTPStatus, res.Err)
}

var (
	spaceBeforeNL = regexp.MustCompile(`[ \t]+\n`)
	spaceAfterNL  = regexp.MustCompile(`\n[ \t]+`)
	manyNL        = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalises extracted text: whitespace is collapsed per line,
// consecutive duplicate lines are dropped and blank lines are squeezed.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceBeforeNL.ReplaceAllString(s, "\n")
	s = spaceAfterNL.ReplaceAllString(s, "\n")

	var out []string
	prev := ""
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 && out[len(out)-1] != "" {
				out = append(out, "")
			}
			continue
		}
		if line == prev {
			continue
		}
		out = append(out, line)
		prev = line
	}
	joined := strings.Join(out, "\n")
	return strings.TrimSpace(manyNL.ReplaceAllString(joined, "\n\n"))
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
