package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"TrendsScanner/internal/app"
	"TrendsScanner/internal/config"
	"TrendsScanner/internal/logging"
)

type rootOptions struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "trendsscanner",
		Short: "Trending topics fetch, ingest and enrichment pipeline",
		Long: `trendsscanner captures the trending-searches feed, stores each payload,
ingests it into Postgres and enriches queued trends with generated content.

Example usage:
  trendsscanner migrate             # Apply the schema
  trendsscanner fetch               # Fetch, store and ingest one payload
  trendsscanner drain               # Enrich one batch from the queue
  trendsscanner serve               # HTTP API plus scheduled fetch/drain`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.cfg = config.Load(opts.configPath)
			opts.logger = logging.New(opts.cfg.Logging.Level, opts.cfg.Logging.Format)
			slog.SetDefault(opts.logger)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $TRENDS_CONFIG)")

	root.AddCommand(
		newMigrateCmd(opts),
		newFetchCmd(opts),
		newIngestCmd(opts),
		newDrainCmd(opts),
		newEnrichCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// withApp builds the application for the duration of one command.
func withApp(cmd *cobra.Command, opts *rootOptions, run func(*app.Application) error) error {
	application, err := app.New(cmd.Context(), opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			opts.logger.Warn("close application", "error", err)
		}
	}()
	return run(application)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and seed categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				return a.Migrate(cmd.Context())
			})
		},
	}
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var noIngest bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the feed once and store the payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				name, summary, err := a.RunFetch(cmd.Context(), !noIngest)
				if err != nil {
					return err
				}
				if summary == nil {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), name)
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().BoolVar(&noIngest, "no-ingest", false, "store the payload without ingesting it")
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <filename>",
		Short: "Ingest a stored payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				summary, err := a.RunIngest(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newDrainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Claim and enrich one batch of queued trends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				summary, err := a.RunDrain(cmd.Context())
				if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil && err == nil {
					err = perr
				}
				return err
			})
		},
	}
}

func newEnrichCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <trend-id>...",
		Short: "Enrich specific trends directly, bypassing the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app.Application) error {
				results, err := a.RunEnrich(cmd.Context(), ids)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled fetch and drain jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app.Application) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid trend id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
