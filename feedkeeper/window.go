package feedkeeper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/store"
)

// WindowOptions selects records whose reference time (published, else last
// seen) falls in [Start, End).
type WindowOptions struct {
	Start time.Time
	End   time.Time
	// MaxRecords caps the returned rows. 0 uses config, -1 is unlimited.
	MaxRecords int
	// MaxPerSource caps rows per source, applied before MaxRecords.
	MaxPerSource   int
	WithEnrichment bool
}

// WindowReport is the result of a window query.
type WindowReport struct {
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	MaxRecords   int            `json:"max_records"`
	MaxPerSource int            `json:"max_per_source"`
	InRange      int            `json:"records_in_range"`
	Returned     int            `json:"records_returned"`
	Truncated    bool           `json:"truncated"`
	SourceCounts map[string]int `json:"source_counts"`
	EnrichCounts map[string]int `json:"enrichment_counts,omitempty"`
	Records      []WindowRow    `json:"records"`
}

// Window returns the records of a time window, most recent first.
func (svc *Service) Window(ctx context.Context, opts WindowOptions) (*WindowReport, error) {
	if !opts.End.After(opts.Start) {
		return nil, fmt.Errorf("%w: end %s not after start %s", ErrInvalidWindow,
			opts.End.UTC().Format(time.RFC3339), opts.Start.UTC().Format(time.RFC3339))
	}
	maxRecords := opts.MaxRecords
	if maxRecords == 0 {
		maxRecords = svc.cfg.Window.MaxRecords
	}
	perSource := opts.MaxPerSource
	if perSource == 0 {
		perSource = svc.cfg.Window.MaxPerSource
	}

	rows, err := svc.store.QueryWindow(ctx, store.WindowQuery{
		Start:          opts.Start.UnixMilli(),
		End:            opts.End.UnixMilli(),
		WithEnrichment: opts.WithEnrichment,
	})
	if err != nil {
		return nil, err
	}

	rep := &WindowReport{
		Start:        opts.Start.UTC(),
		End:          opts.End.UTC(),
		MaxRecords:   maxRecords,
		MaxPerSource: perSource,
		InRange:      len(rows),
		SourceCounts: map[string]int{},
	}
	rows = capWindow(rows, maxRecords, perSource)
	rep.Records = rows
	rep.Returned = len(rows)
	rep.Truncated = rep.Returned < rep.InRange

	if opts.WithEnrichment {
		rep.EnrichCounts = map[string]int{}
	}
	for _, r := range rows {
		rep.SourceCounts[sourceLabel(r)]++
		if rep.EnrichCounts != nil {
			status := "none"
			if r.Enrichment != nil {
				status = r.Enrichment.Status
			}
			rep.EnrichCounts[status]++
		}
	}
	return rep, nil
}

// capWindow applies the per-source cap then the total cap to rows already
// ordered most recent first.
func capWindow(rows []WindowRow, maxRecords, perSource int) []WindowRow {
	if perSource > 0 {
		seen := map[string]int{}
		kept := rows[:0:0]
		for _, r := range rows {
			k := sourceLabel(r)
			if seen[k] >= perSource {
				continue
			}
			seen[k]++
			kept = append(kept, r)
		}
		rows = kept
	}
	if maxRecords > 0 && len(rows) > maxRecords {
		rows = rows[:maxRecords]
	}
	return rows
}

func sourceLabel(r WindowRow) string {
	if r.SourceTitle != "" {
		return r.SourceTitle
	}
	return r.SourceURL
}

// Period names accepted by PeriodRange.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// PeriodRange returns the UTC [start, end) of the day, ISO week (Monday
// first) or month containing anchor.
func PeriodRange(period string, anchor time.Time) (time.Time, time.Time, error) {
	a := anchor.UTC()
	day := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case PeriodDaily:
		return day, day.AddDate(0, 0, 1), nil
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonthly:
		start := time.Date(a.Year(), a.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, period)
}

// TopSources returns the source counts by count desc, then name.
func (r *WindowReport) TopSources(n int) []SourceCount {
	out := make([]SourceCount, 0, len(r.SourceCounts))
	for k, v := range r.SourceCounts {
		out = append(out, SourceCount{Source: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Source < out[j].Source
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SourceCount is one row of TopSources.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}
