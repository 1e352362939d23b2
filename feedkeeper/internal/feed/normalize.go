package feed

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// StripHTML removes markup from a feed summary and collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	// Block boundaries become spaces before tags are dropped.
	s = strings.NewReplacer("<br", " <br", "</p>", "</p> ", "</div>", "</div> ", "</li>", "</li> ").Replace(s)
	text := html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}
