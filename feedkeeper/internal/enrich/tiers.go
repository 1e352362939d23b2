package enrich

import "fmt"

// Tier names accepted in configuration.
const (
	TierOpenAlex        = "openalex"
	TierSemanticScholar = "semanticscholar"
	TierWebpage         = "webpage"
	TierFeedContent     = "feed_content"
	TierFeedSummary     = "feed_summary"
)

// DefaultTiers: abstracts from the APIs first, then the page, then what
// the feed carried.
var DefaultTiers = []string{TierOpenAlex, TierSemanticScholar, TierWebpage, TierFeedContent, TierFeedSummary}

// KnownTier reports whether name is a tier Build understands.
func KnownTier(name string) bool {
	switch name {
	case TierOpenAlex, TierSemanticScholar, TierWebpage, TierFeedContent, TierFeedSummary:
		return true
	}
	return false
}

// Deps carries what the network tiers need.
type Deps struct {
	Getter              Getter
	OpenAlexBase        string
	OpenAlexMailto      string
	SemanticScholarBase string
	SemanticScholarKey  string
	DisableMarkdown     bool
}

// Build instantiates tiers by name, in order.
func Build(names []string, d Deps) ([]Source, error) {
	out := make([]Source, 0, len(names))
	for _, n := range names {
		switch n {
		case TierOpenAlex:
			out = append(out, &OpenAlex{Getter: d.Getter, BaseURL: d.OpenAlexBase, Mailto: d.OpenAlexMailto})
		case TierSemanticScholar:
			out = append(out, &SemanticScholar{Getter: d.Getter, BaseURL: d.SemanticScholarBase, APIKey: d.SemanticScholarKey})
		case TierWebpage:
			w := NewWebpage(d.Getter)
			w.DisableMarkdown = d.DisableMarkdown
			out = append(out, w)
		case TierFeedContent:
			out = append(out, FeedContent{})
		case TierFeedSummary:
			out = append(out, FeedSummary{})
		default:
			return nil, fmt.Errorf("enrich: unknown tier %q", n)
		}
	}
	return out, nil
}
