package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/feedkeeper/feedkeeper"
)

// NewListEntriesCommand creates the list-entries command.
func NewListEntriesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		source string
		limit  int
	)
	cmd := &cobra.Command{
		Use:          "list-entries",
		Short:        "List the newest records",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			recs, err := svc.ListRecords(cmd.Context(), source, limit)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), recs, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPUBLISHED\tLAST_SEEN\tKEY\tTITLE")
				for _, r := range recs {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, formatMs(r.PublishedAt),
						formatMs(&r.LastSeenAt), r.PrimaryKey, r.Title)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "restrict to one source URL")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		period, date, start, end string
		opts                     feedkeeper.WindowOptions
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Records of a daily, weekly, monthly or custom window",
		Long: `List the records whose publication time (else last seen time) falls in a
UTC window, most recent first. --start/--end take YYYY-MM-DD or RFC 3339 and
override --period; --end is exclusive.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch {
			case start != "" || end != "":
				if opts.Start, err = feedkeeper.ParseBoundary(start); err != nil {
					return err
				}
				if opts.End, err = feedkeeper.ParseBoundary(end); err != nil {
					return err
				}
			default:
				anchor := time.Now()
				if date != "" {
					if anchor, err = feedkeeper.ParseBoundary(date); err != nil {
						return err
					}
				}
				if opts.Start, opts.End, err = feedkeeper.PeriodRange(period, anchor); err != nil {
					return err
				}
			}

			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			rep, err := svc.Window(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), rep, func(w io.Writer) { writeWindow(w, rep) })
		},
	}
	cmd.Flags().StringVar(&period, "period", feedkeeper.PeriodDaily, "daily, weekly or monthly")
	cmd.Flags().StringVar(&date, "date", "", "anchor date of the period (default: today, UTC)")
	cmd.Flags().StringVar(&start, "start", "", "custom window start")
	cmd.Flags().StringVar(&end, "end", "", "custom window end (exclusive)")
	cmd.Flags().IntVar(&opts.MaxRecords, "max-records", 0, "maximum records (0: config, -1: unlimited)")
	cmd.Flags().IntVar(&opts.MaxPerSource, "max-per-source", 0, "maximum records per source")
	cmd.Flags().BoolVar(&opts.WithEnrichment, "with-enrichment", false, "include fulltext/abstract state")
	return cmd
}

func writeWindow(w io.Writer, rep *feedkeeper.WindowReport) {
	fmt.Fprintf(w, "REPORT_OK start=%s end=%s in_range=%d returned=%d truncated=%t\n",
		rep.Start.Format(time.RFC3339), rep.End.Format(time.RFC3339), rep.InRange, rep.Returned, rep.Truncated)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rep.Records {
		status := "-"
		if r.Enrichment != nil {
			status = r.Enrichment.Status
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", formatMs(&r.ReferenceAt), r.SourceTitle, status, r.Record.Title, r.Record.URL)
	}
	tw.Flush()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "stats",
		Short:        "Count sources, records, identity keys and enrichment rows",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			st, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), st, func(w io.Writer) {
				fmt.Fprintf(w, "STATS sources=%d records=%d identity_keys=%d ready=%d failed=%d new=%d\n",
					st.Sources, st.Records, st.IdentityKeys,
					st.Enrichment[feedkeeper.StatusReady], st.Enrichment[feedkeeper.StatusFailed], st.Enrichment[feedkeeper.StatusNew])
			})
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		action string
		limit  int
	)
	cmd := &cobra.Command{
		Use:          "history",
		Short:        "Show the audit trail of runs and tool calls",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			entries, err := svc.History(cmd.Context(), action, limit)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), entries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tACTION\tTRANSPORT\tSTATUS\tMS\tRESULT")
				for _, e := range entries {
					result := e.Result
					if e.Error != "" {
						result = e.Error
					}
					ts := e.Timestamp
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", formatMs(&ts), e.Action, e.Transport, e.Status, e.DurationMs, result)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "only this action (sync, enrich, queue_add, cleanup, add_feed, import_opml or an MCP tool name)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}

// NewMetricsCommand lists the per-run counts and durations of sync and
// enrich.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name  string
		limit int
	)
	cmd := &cobra.Command{
		Use:          "metrics",
		Short:        "Show recorded run counts and durations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			ms, err := svc.Metrics(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), ms, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tNAME\tVALUE\tUNIT\tRUN")
				for _, m := range ms {
					fmt.Fprintf(tw, "%s\t%s\t%g\t%s\t%s\n", m.Timestamp.Format(time.RFC3339), m.Name, m.Value, m.Unit, m.Labels["run_id"])
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only this metric, e.g. sync_new_count or enrich_duration_ms")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum datapoints (0: all)")
	return cmd
}

func formatMs(ms *int64) string {
	if ms == nil || *ms == 0 {
		return "-"
	}
	return time.UnixMilli(*ms).UTC().Format(time.RFC3339)
}
