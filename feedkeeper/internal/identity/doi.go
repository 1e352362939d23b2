package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// SurrogatePrefix marks a synthetic DOI minted for items that carry none.
const SurrogatePrefix = "rss-hash:"

var (
	doiPattern  = regexp.MustCompile(`(?i)10\.\d{4,9}/[-._;()/:A-Z0-9]+`)
	doiResolver = regexp.MustCompile(`(?i)^https?://(dx\.)?doi\.org/`)
	doiScheme   = regexp.MustCompile(`(?i)^doi:\s*`)
)

const doiTrailing = ".,;:!?)]}>'\""

// NormalizeDOI extracts a bare lower-case DOI from raw (a DOI, a doi.org
// URL or a "doi:" string). Surrogates and strings without a DOI yield "".
func NormalizeDOI(raw string) string {
	text := strings.Join(strings.Fields(raw), " ")
	if text == "" || IsSurrogateDOI(text) {
		return ""
	}
	text = doiResolver.ReplaceAllString(text, "")
	text = doiScheme.ReplaceAllString(text, "")
	text = strings.Trim(strings.TrimSpace(text), "<>")
	text = strings.TrimRight(text, doiTrailing)
	m := doiPattern.FindString(text)
	if m == "" {
		return ""
	}
	return strings.ToLower(strings.TrimRight(m, doiTrailing))
}

// IsSurrogateDOI reports whether doi was minted by SurrogateDOI.
func IsSurrogateDOI(doi string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(doi)), SurrogatePrefix)
}

// SurrogateDOI derives a deterministic placeholder DOI from the source,
// normalised title and published time.
func SurrogateDOI(source, title, published string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{source, NormalizeTitle(title), published}, "|")))
	return SurrogatePrefix + hex.EncodeToString(sum[:])[:24]
}
