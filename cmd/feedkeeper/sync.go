package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/feedkeeper/feedkeeper"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		opts          feedkeeper.SyncOptions
		noConditional bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch feeds and ingest new or changed entries",
		Long: `Fetch registered feeds (least recently checked first) with conditional
GET, then classify each entry as new, unchanged or updated. One failing feed
never stops the others.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := rootOpts.open(cmd, func(c *feedkeeper.Config) {
				if noConditional {
					c.Fetch.DisableConditional = true
				}
			})
			if err != nil {
				return err
			}
			defer done()
			rep, err := svc.Sync(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), rep, func(w io.Writer) { io.WriteString(w, rep.Format()) })
		},
	}
	cmd.Flags().StringVar(&opts.SourceURL, "source", "", "sync only this feed URL")
	cmd.Flags().IntVar(&opts.Max, "max-sources", 0, "maximum feeds checked (0: config)")
	cmd.Flags().IntVar(&opts.MaxItemsPerSource, "max-items-per-source", 0, "maximum entries ingested per feed (0: config)")
	cmd.Flags().DurationVar(&opts.CleanupTTL, "cleanup-ttl", 0, "delete records not seen for this long after the sync")
	cmd.Flags().BoolVar(&noConditional, "disable-conditional-get", false, "send requests without ETag/Last-Modified validators")
	return cmd
}

// NewQueueAddCommand creates the queue-add command.
func NewQueueAddCommand(rootOpts *RootOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "queue-add [file.jsonl]",
		Short: "Ingest JSONL records (doi, title, link, source_feed...) with DOI-first identity",
		Long: `Read one JSON object per line from the file, or stdin when omitted or "-".
Records without a DOI get a deterministic surrogate derived from the source,
title and publication time.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("%w: --source is required", feedkeeper.ErrInvalidInput)
			}
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			rows, err := readJSONL(in)
			if err != nil {
				return err
			}

			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			rep, err := svc.QueueAdd(cmd.Context(), source, rows)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), rep, func(w io.Writer) { io.WriteString(w, rep.Format()) })
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "queue source URL the records are scoped to")
	return cmd
}

// readJSONL decodes one object per non-blank line.
func readJSONL(r io.Reader) ([]map[string]any, error) {
	var rows []map[string]any
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", feedkeeper.ErrInvalidInput, line, err)
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		ttl  time.Duration
		days int
	)
	cmd := &cobra.Command{
		Use:          "cleanup",
		Short:        "Delete records not seen for a while, with their keys and enrichment",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days > 0 {
				ttl = time.Duration(days) * 24 * time.Hour
			}
			svc, done, err := rootOpts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer done()
			n, err := svc.Cleanup(cmd.Context(), ttl)
			if err != nil {
				return err
			}
			return rootOpts.emit(cmd.OutOrStdout(), map[string]int64{"deleted": n}, func(w io.Writer) {
				fmt.Fprintf(w, "CLEANUP_OK deleted=%d\n", n)
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "retention window (e.g. 720h)")
	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (overrides --ttl)")
	return cmd
}
