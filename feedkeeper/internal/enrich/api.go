package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/fetch"
)

// Getter performs HTTP GETs; *fetch.Fetcher satisfies it.
type Getter interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// Default API endpoints.
const (
	DefaultOpenAlexBase        = "https://api.openalex.org/works/https://doi.org/"
	DefaultSemanticScholarBase = "https://api.semanticscholar.org/graph/v1/paper/DOI:"
)

// OpenAlex reads abstracts from the OpenAlex works API, which ships them
// as an inverted index.
type OpenAlex struct {
	Getter  Getter
	BaseURL string // Default: DefaultOpenAlexBase.
	Mailto  string // polite pool contact
}

func (o *OpenAlex) Name() string { return "openalex" }

func (o *OpenAlex) Fetch(ctx context.Context, t Target) Result {
	if !t.HasDOI() {
		return Result{Status: StatusSkipped}
	}
	base := o.BaseURL
	if base == "" {
		base = DefaultOpenAlexBase
	}
	u := base + t.DOI
	if o.Mailto != "" {
		u += "?mailto=" + url.QueryEscape(o.Mailto)
	}

	var body struct {
		AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	}
	res := getJSON(ctx, o.Getter, fetch.Request{URL: u, Accept: "application/json"}, &body)
	if res.Status != StatusOK {
		return res
	}
	text := ReconstructAbstract(body.AbstractInvertedIndex)
	if text == "" {
		res.Status = StatusNotFound
		return res
	}
	res.Text, res.Kind = text, KindAbstract
	return res
}

// ReconstructAbstract rebuilds plain text from an OpenAlex
// abstract_inverted_index (word -> positions).
func ReconstructAbstract(index map[string][]int) string {
	type placed struct {
		pos  int
		word string
	}
	var words []placed
	for w, positions := range index {
		for _, p := range positions {
			words = append(words, placed{p, w})
		}
	}
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.word
	}
	return strings.Join(parts, " ")
}

// SemanticScholar reads abstracts from the Semantic Scholar graph API.
type SemanticScholar struct {
	Getter  Getter
	BaseURL string // Default: DefaultSemanticScholarBase.
	APIKey  string // optional, sent as x-api-key
}

func (s *SemanticScholar) Name() string { return "semanticscholar" }

func (s *SemanticScholar) Fetch(ctx context.Context, t Target) Result {
	if !t.HasDOI() {
		return Result{Status: StatusSkipped}
	}
	base := s.BaseURL
	if base == "" {
		base = DefaultSemanticScholarBase
	}
	req := fetch.Request{URL: base + t.DOI + "?fields=abstract", Accept: "application/json"}
	if s.APIKey != "" {
		req.Header = http.Header{"X-Api-Key": []string{s.APIKey}}
	}

	var body struct {
		Abstract *string `json:"abstract"`
	}
	res := getJSON(ctx, s.Getter, req, &body)
	if res.Status != StatusOK {
		return res
	}
	if body.Abstract == nil || strings.TrimSpace(*body.Abstract) == "" {
		res.Status = StatusNotFound
		return res
	}
	res.Text, res.Kind = *body.Abstract, KindAbstract
	return res
}

func getJSON(ctx context.Context, g Getter, req fetch.Request, into any) Result {
	r, err := g.Fetch(ctx, req)
	if err != nil {
		return failure(r, err)
	}
	res := Result{Status: StatusOK, HTTPStatus: r.StatusCode, FinalURL: r.FinalURL}
	if err := json.Unmarshal(r.Body, into); err != nil {
		res.Status = StatusError
		res.Err = fmt.Errorf("parse json: %w", err)
	}
	return res
}

// failure maps a fetch error to a tier result. r may be nil.
func failure(r *fetch.Result, err error) Result {
	res := Result{Status: StatusError, Err: err, HTTPStatus: fetch.StatusCode(err)}
	if r != nil {
		res.FinalURL = r.FinalURL
	}
	switch res.HTTPStatus {
	case http.StatusNotFound, http.StatusGone:
		res.Status = StatusNotFound
	case http.StatusTooManyRequests:
		res.Status = StatusRateLimited
	}
	return res
}
