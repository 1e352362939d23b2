package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/feedkeeper/feedkeeper"
)

// NewEnrichCommand creates the enrich command.
func NewEnrichCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		opts       feedkeeper.EnrichOptions
		minChars   int
		maxRetries int
	)
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fetch fulltext or abstracts for eligible records",
		Long: `Attempt each eligible record once through the tier chain (OpenAlex,
Semantic Scholar, web page, feed content, feed summary by default).

Never-attempted records come first, then failed records by retry count, then
the newest. Failed records wait out their backoff; after max retries they
are only attempted again with --force.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, func(c *feedkeeper.Config) {
				if cmd.Flags().Changed("min-chars") {
					c.Enrich.MinChars = minChars
				}
				if cmd.Flags().Changed("max-retries") {
					c.Enrich.MaxRetries = maxRetries
				}
			})
			if err != nil {
				return err
			}
			defer done()
			rep, err := svc.Enrich(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), rep, func(w io.Writer) { io.WriteString(w, rep.Format()) })
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "ignore status, backoff and retry budget")
	cmd.Flags().BoolVar(&opts.OnlyFailed, "only-failed", false, "attempt failed records only")
	cmd.Flags().DurationVar(&opts.RefetchAfter, "refetch-after", 0, "re-attempt ready records fetched longer ago than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records attempted (0: config)")
	cmd.Flags().StringSliceVar(&opts.Tiers, "tiers", nil, "tier order, e.g. openalex,webpage")
	cmd.Flags().IntVar(&minChars, "min-chars", 0, "minimum text length for ready")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "counted failures before a record is exhausted (-1: unlimited)")
	return cmd
}

// NewQueueListCommand creates the queue-list command.
func NewQueueListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:          "queue-list",
		Short:        "List enrichment rows with retry state",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			rows, err := svc.ListEnrichment(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), rows, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RECORD\tSTATUS\tKIND\tEXTRACTOR\tCHARS\tRETRIES\tNEXT_RETRY\tLAST_ERROR")
				for _, e := range rows {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n", e.RecordID, e.Status, e.ContentKind,
						e.Extractor, e.ContentLength, e.RetryCount, formatMs(e.NextRetryAt), e.LastError)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "restrict to new, ready or failed")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}
