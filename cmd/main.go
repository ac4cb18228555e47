package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/ytsub-pipeline/internal/config"
	"github.com/MimeLyc/ytsub-pipeline/internal/httpapi"
	"github.com/MimeLyc/ytsub-pipeline/internal/jobs"
	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/service"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job queue and the caption watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := cc.buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer app.Close()

			queue := jobs.NewQueue(app.cfg.HTTP.JobWorkers, app.store,
				jobs.WithActiveJobsHook(app.metrics.SetActiveJobs))
			queue.Start(processJob(app.processor))
			defer queue.Stop()

			engine := cron.New()
			watcher := service.NewWatcher(app.pipeline, app.cfg.Watch, app.cfg.System.OutputDir, app.store, engine)
			srv := httpapi.NewServer(app.pipeline, app.processor, queue,
				httpapi.WithSettingsStore(app.settings),
				httpapi.WithMetrics(app.metrics),
				httpapi.WithDefaultProvider(app.cfg.LLM.DefaultProvider),
			)

			return runWithComponents(ctx, app.cfg, watcher, engine, srv)
		},
	}
}

// processJob runs a queued job through the processor.
func processJob(proc *processor.Processor) jobs.Executor {
	return func(ctx context.Context, job *jobs.ProcessingJob) ([]subtitle.Cue, error) {
		return proc.ProcessSubtitles(ctx, job.Payload.Cues, job.Payload.Operation,
			llm.Provider(job.Payload.Provider), job.Payload.Options)
	}
}

// runWithComponents blocks until ctx is cancelled or the HTTP server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, engine cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule watcher: %w", err)
	}

	engine.Start()
	defer func() {
		stopCtx := engine.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(shutdownTimeout):
			log.Warn("Timed out waiting for running watch jobs")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}
