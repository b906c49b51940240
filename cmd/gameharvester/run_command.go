package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"GameHarvester/internal/app"
	"GameHarvester/internal/config"
	"GameHarvester/internal/domain"
	"GameHarvester/internal/logging"
)

type runFlags struct {
	limit          int
	workers        int
	batchSize      int
	minimumReviews int
	maxRetries     int
	delay          time.Duration
	noBatch        bool
	source         string
	ids            []int64
	resume         string
	every          time.Duration
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enumerate, crawl and persist the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)

			var summary domain.RunSummary
			runErr := ctx.withApp(cmd.Context(), func(a *app.Application) error {
				var err error
				summary, err = a.Run(cmd.Context())
				return err
			})
			if summary.RunID != "" {
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary, logging.IsTerminal(cmd.OutOrStdout())))
			}
			if runErr != nil {
				return runErr
			}
			if summary.Interrupted && summary.ManifestKey != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "run interrupted; --resume %s retries failed and unstarted ids\n", summary.ManifestKey)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.limit, "limit", 0, "Process at most this many ids (0 = all)")
	f.IntVar(&flags.workers, "workers", 0, "Concurrent item pipelines")
	f.IntVar(&flags.batchSize, "batch-size", 0, "Records per storage transaction")
	f.IntVar(&flags.minimumReviews, "minimum-reviews", 0, "Review count an item needs to be persisted")
	f.IntVar(&flags.maxRetries, "max-retries", 0, "Retries per remote call")
	f.DurationVar(&flags.delay, "delay", 0, "Pause after each item")
	f.BoolVar(&flags.noBatch, "no-batch", false, "Write each record in its own transaction")
	f.StringVar(&flags.source, "source", "", "Comma separated id sources (applist, steamspy, missing_tags, static, manifest)")
	f.Int64SliceVar(&flags.ids, "ids", nil, "Explicit ids for the static source")
	f.StringVar(&flags.resume, "resume", "", "Retry the ids of a failure manifest key, or \"latest\"")
	f.DurationVar(&flags.every, "every", 0, "Repeat the run on this interval until interrupted")

	return cmd
}

// apply copies explicitly set flags over the loaded configuration.
func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("limit") {
		cfg.Ingest.Limit = f.limit
	}
	if changed("workers") {
		cfg.Ingest.Workers = f.workers
	}
	if changed("batch-size") {
		cfg.Ingest.BatchSize = f.batchSize
	}
	if changed("minimum-reviews") {
		cfg.Ingest.MinimumReviews = f.minimumReviews
	}
	if changed("max-retries") {
		cfg.Ingest.MaxRetries = f.maxRetries
	}
	if changed("delay") {
		cfg.Ingest.Delay = f.delay
	}
	if changed("no-batch") {
		cfg.Ingest.UseBatch = !f.noBatch
	}
	if changed("ids") {
		cfg.Ingest.IDs = f.ids
		if !changed("source") {
			cfg.Ingest.Source = "static"
		}
	}
	if changed("source") {
		cfg.Ingest.Source = f.source
	}
	if changed("resume") {
		cfg.Ingest.ResumeManifest = f.resume
	}
	if changed("every") {
		cfg.Ingest.Every = f.every
	}
}

var errNoIDs = errors.New("no ids enumerated")

func newIDsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ids",
		Short: "Print the ids the configured sources would enumerate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				source := a.Source()
				ids, err := source.Enumerate(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					return errNoIDs
				}
				out := cmd.OutOrStdout()
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Print at most this many ids (0 = all)")
	return cmd
}
