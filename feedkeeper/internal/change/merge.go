package change

// Policy selects how Merge resolves a field present on both sides.
type Policy int

const (
	// Overwrite takes every incoming payload field. Locators (guid, URLs,
	// DOI) are only replaced by non-empty values.
	Overwrite Policy = iota
	// KeepExisting ignores incoming entirely.
	KeepExisting
	// FillEmpty keeps existing values and fills the empty ones.
	FillEmpty
)

func (p Policy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case KeepExisting:
		return "keep_existing"
	case FillEmpty:
		return "fill_empty"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a config string to a Policy; false when unknown.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "overwrite":
		return Overwrite, true
	case "keep_existing":
		return KeepExisting, true
	case "fill_empty":
		return FillEmpty, true
	}
	return Overwrite, false
}

// Merge is the three-way merge applied on update.
func Merge(existing, incoming Fields, policy Policy) Fields {
	switch policy {
	case KeepExisting:
		return existing
	case FillEmpty:
		out := existing
		fill(&out.GUID, incoming.GUID)
		fill(&out.URL, incoming.URL)
		fill(&out.CanonicalURL, incoming.CanonicalURL)
		if out.DOI == "" || (out.DOIIsSurrogate && incoming.DOI != "" && !incoming.DOIIsSurrogate) {
			out.DOI, out.DOIIsSurrogate = incoming.DOI, incoming.DOIIsSurrogate
		}
		fill(&out.Title, incoming.Title)
		fill(&out.Author, incoming.Author)
		fill(&out.Summary, incoming.Summary)
		fill(&out.Content, incoming.Content)
		fill(&out.RawJSON, incoming.RawJSON)
		if len(out.Categories) == 0 {
			out.Categories = incoming.Categories
		}
		if out.PublishedAt == nil {
			out.PublishedAt = incoming.PublishedAt
		}
		if out.UpdatedAt == nil {
			out.UpdatedAt = incoming.UpdatedAt
		}
		return out
	default:
		out := incoming
		keep(&out.GUID, existing.GUID)
		keep(&out.URL, existing.URL)
		keep(&out.CanonicalURL, existing.CanonicalURL)
		if out.DOI == "" || (out.DOIIsSurrogate && existing.DOI != "" && !existing.DOIIsSurrogate) {
			out.DOI, out.DOIIsSurrogate = existing.DOI, existing.DOIIsSurrogate
		}
		return out
	}
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func keep(dst *string, old string) {
	if *dst == "" {
		*dst = old
	}
}
