package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/ytsub-pipeline/internal/config"
	"github.com/MimeLyc/ytsub-pipeline/internal/fetch"
	"github.com/MimeLyc/ytsub-pipeline/internal/metrics"
	"github.com/MimeLyc/ytsub-pipeline/internal/persistence"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/service"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "ytsub",
		Short:         "Download, convert and LLM-process YouTube captions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&cc.envFiles, "env-file", nil, "Load environment variables from these .env files (default .env)")
	rootCmd.PersistentFlags().StringVar(&cc.logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newTracksCommand(cc))
	rootCmd.AddCommand(newDownloadCommand(cc))
	rootCmd.AddCommand(newConvertCommand(cc))
	rootCmd.AddCommand(newProvidersCommand(cc))
	rootCmd.AddCommand(newTestConnectionCommand(cc))
	rootCmd.AddCommand(newUsageCommand(cc))

	return rootCmd
}

type commandContext struct {
	envFiles []string
	logLevel string

	cfg *config.Config
}

// loadConfig loads .env files, the environment and the provider settings file,
// once per process.
func (c *commandContext) loadConfig(ctx context.Context) (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	if err := config.LoadDotEnv(c.envFiles...); err != nil {
		return nil, err
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	settings, err := config.LoadProviderSettingsFile(ctx, cfg.System.SettingsFile)
	if err != nil {
		return nil, err
	}
	if cfg, err = config.NewFromEnv(config.WithProviderSettings(settings)); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	level := cfg.System.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	log.InitLogger(log.ParseLevel(level))

	c.cfg = cfg
	return cfg, nil
}

// app is the set of wired components a command works with.
type app struct {
	cfg       *config.Config
	store     *persistence.SQLiteStore
	settings  *config.ProviderSettingsStore
	metrics   *metrics.Metrics
	processor *processor.Processor
	pipeline  *service.Pipeline
}

// buildApp wires the components. The SQLite store is opened only when withStore
// is set; without it usage is not recorded.
func (c *commandContext) buildApp(ctx context.Context, withStore bool) (*app, error) {
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New()}
	if a.settings, err = config.NewProviderSettingsStore(cfg.System.SettingsFile, cfg); err != nil {
		return nil, err
	}

	procOpts := []processor.Option{
		processor.WithBatchSize(cfg.LLM.BatchSize),
		processor.WithBatchPause(cfg.LLM.BatchPause()),
		processor.WithMetrics(a.metrics),
	}
	if withStore {
		if a.store, err = persistence.NewSQLiteStore(cfg.DBPath()); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		procOpts = append(procOpts, processor.WithUsageStore(a.store))
	}
	a.processor = processor.NewFromStore(ctx, a.settings, procOpts...)

	fetcher := fetch.NewFetcher(
		fetch.WithTimeout(cfg.Fetch.Timeout()),
		fetch.WithBaseDelay(cfg.Fetch.BaseDelay()),
		fetch.WithMetrics(a.metrics),
	)
	a.pipeline = service.NewPipeline(fetcher,
		service.WithProcessor(a.processor),
		service.WithMaxRetries(cfg.Fetch.MaxRetries),
		service.WithDefaultProvider(cfg.LLM.DefaultProvider),
	)
	return a, nil
}

func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		log.Warn("Failed to close database: %v", err)
	}
}
