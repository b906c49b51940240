package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"GameHarvester/internal/app"
	"GameHarvester/internal/config"
	"GameHarvester/internal/logging"
)

type commandContext struct {
	configPath *string
	logLevel   *string
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	ctx := &commandContext{configPath: &configFlag, logLevel: &logLevelFlag}

	rootCmd := &cobra.Command{
		Use:           "gameharvester",
		Short:         "Bulk ingestion of the Steam game catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (defaults to $GAME_HARVESTER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newIDsCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newGamesCommand(ctx))

	return rootCmd
}

// ensureConfig loads the configuration once per process.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return nil, err
	}
	if *c.logLevel != "" {
		cfg.Logging.Level = *c.logLevel
	}
	c.cfg = &cfg
	return c.cfg, nil
}

func (c *commandContext) logger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}

// withApp opens the application for the duration of fn.
func (c *commandContext) withApp(ctx context.Context, fn func(*app.Application) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	application, err := app.New(ctx, *cfg, c.logger(cfg))
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}
