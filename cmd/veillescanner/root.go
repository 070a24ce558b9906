package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"VeilleScanner/internal/app"
	"VeilleScanner/internal/config"
	"VeilleScanner/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "veillescanner",
		Short: "Technology watch for sentiment analysis",
		Long: `veillescanner collects articles and repositories about sentiment
analysis, records snapshots of tracked models and raises alerts when
activity spikes or notable titles appear.

Examples:
  # Run one full cycle with the built-in sources
  veillescanner run

  # Run on the configured cron schedule
  veillescanner schedule --config veille.yaml

  # Show the latest active alerts
  veillescanner alerts list --status active`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration (defaults to $VEILLE_SCANNER_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCommand(opts),
		newCollectCommand(opts),
		newSurveyCommand(opts),
		newScheduleCommand(opts),
		newAlertsCommand(opts),
		newResourcesCommand(opts),
		newModelsCommand(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() config.Config {
	var cfg config.Config
	if o.configPath != "" {
		cfg = config.LoadFile(o.configPath)
	} else {
		cfg = config.Load()
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg
}

// session bundles an opened application with its log sink.
type session struct {
	app    *app.Application
	logger *slog.Logger
	sink   io.Closer
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg := o.loadConfig()
	logger, sink := logging.NewFromConfig(cfg.Logging)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("start application: %w", err)
	}
	return &session{app: application, logger: logger, sink: sink}, nil
}

func (s *session) Close() {
	if err := s.app.Close(); err != nil {
		s.logger.Warn("close store", "error", err)
	}
	_ = s.sink.Close()
}
