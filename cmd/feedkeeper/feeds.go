package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/feedkeeper/feedkeeper"
)

// NewInitDBCommand creates the init-db command.
func NewInitDBCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "init-db",
		Short:        "Create or migrate the database schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			db := svc.Config().DBPath
			return rootOpts.emit(cmd.OutOrStdout(), map[string]string{"db": db}, func(w io.Writer) {
				fmt.Fprintf(w, "INIT_OK db=%s\n", db)
			})
		},
	}
}

// NewAddFeedCommand creates the add-feed command.
func NewAddFeedCommand(rootOpts *RootOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:          "add-feed <url>",
		Short:        "Register a feed by canonical URL",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			src, created, err := svc.AddFeed(cmd.Context(), args[0], title)
			if err != nil {
				return err
			}
			out := struct {
				Source  *feedkeeper.Source `json:"source"`
				Created bool               `json:"created"`
			}{src, created}
			return rootOpts.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
				tag := "FEED_ADDED"
				if !created {
					tag = "FEED_EXISTS"
				}
				fmt.Fprintf(w, "%s id=%d url=%s\n", tag, src.ID, src.URL)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "feed title")
	return cmd
}

// NewImportOPMLCommand creates the import-opml command.
func NewImportOPMLCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "import-opml <file>",
		Short:        "Register every feed of an OPML file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			res, err := svc.ImportOPML(cmd.Context(), data)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "OPML_OK added=%d existing=%d invalid=%d\n", res.Added, res.Existing, res.Invalid)
				for _, f := range res.Failures {
					fmt.Fprintf(w, "OPML_FAIL reason=%s locator=%s\n", f.Reason, f.Locator)
				}
			})
		},
	}
}

// NewListFeedsCommand creates the list-feeds command.
func NewListFeedsCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:          "list-feeds",
		Short:        "List registered sources with their fetch state",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			srcs, err := svc.ListSources(cmd.Context(), kind)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), srcs, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tACTIVE\tSTATUS\tCHECKED\tURL\tTITLE")
				for _, s := range srcs {
					fmt.Fprintf(tw, "%d\t%s\t%t\t%d\t%s\t%s\t%s\n",
						s.ID, s.Kind, s.Active, s.LastStatus, formatMs(s.LastCheckedAt), s.URL, s.Title)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "restrict to feed or queue")
	return cmd
}
