package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/feedkeeper/audit"
	"github.com/hazyhaar/feedkeeper/dbopen"
	"github.com/hazyhaar/feedkeeper/feedkeeper"
	"github.com/hazyhaar/feedkeeper/observability"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath     string
	ConfigPath string
	LogLevel   string
	Format     string // "text" | "json"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the feedkeeper root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "feedkeeper",
		Short: "Dedup, idempotency and retry state for feed and enrichment ingestion",
		Long: `feedkeeper keeps one SQLite file of feed items and queue records with stable
identity keys, change detection and a bounded-retry enrichment queue
(fulltext and abstracts).`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := observability.ParseLevel(opts.LogLevel); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path (default: config db_path, $FEEDKEEPER_DB or feedkeeper.db)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewInitDBCommand(opts))
	cmd.AddCommand(NewAddFeedCommand(opts))
	cmd.AddCommand(NewImportOPMLCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewQueueAddCommand(opts))
	cmd.AddCommand(NewEnrichCommand(opts))
	cmd.AddCommand(NewListFeedsCommand(opts))
	cmd.AddCommand(NewListEntriesCommand(opts))
	cmd.AddCommand(NewQueueListCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewMetricsCommand(opts))
	cmd.AddCommand(NewMCPCommand(opts))

	return cmd
}

// open loads the config, applies flag overrides through tune and opens the
// service. Logs go to stderr so stdout carries only the command output.
func (o *RootOptions) open(cmd *cobra.Command, tune func(*feedkeeper.Config)) (*feedkeeper.Service, func(), error) {
	cfg, err := feedkeeper.LoadConfigFile(o.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "feedkeeper.db"
	}
	if tune != nil {
		tune(&cfg)
	}

	logger, err := observability.NewLogger(o.LogLevel, "json", cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSingleWriter())
	if err != nil {
		return nil, nil, fmt.Errorf("open db %s: %w", cfg.DBPath, err)
	}
	auditLog := audit.NewSQLiteLogger(db)
	if err := auditLog.Init(); err != nil {
		db.Close()
		return nil, nil, err
	}
	metrics := observability.NewMetricsManager(db)
	if err := metrics.Init(); err != nil {
		db.Close()
		return nil, nil, err
	}
	svc, err := feedkeeper.New(db, cfg, logger, feedkeeper.WithAudit(auditLog), feedkeeper.WithMetrics(metrics))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, func() { db.Close() }, nil
}

// emit writes v as indented JSON, or calls text.
func (o *RootOptions) emit(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
