package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/ytsub-pipeline/internal/config"
	"github.com/MimeLyc/ytsub-pipeline/internal/persistence"
	"github.com/MimeLyc/ytsub-pipeline/pkg/file"
	"github.com/MimeLyc/ytsub-pipeline/pkg/icron"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

// WatchStore remembers what was last written per page;
// *persistence.SQLiteStore satisfies it.
type WatchStore interface {
	GetWatchState(ctx context.Context, pageURL string) (persistence.WatchState, bool, error)
	PutWatchState(ctx context.Context, state persistence.WatchState) error
}

// Scheduler registers cron functions; *cron.Cron satisfies it.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
}

// WatchReport summarises one pass over the watch list.
type WatchReport struct {
	Checked int
	Written []string
	Skipped int
	Failed  int
}

// Watcher periodically re-downloads subtitles for a fixed list of pages
// and rewrites the output file when the page's caption languages change.
type Watcher struct {
	pipeline  *Pipeline
	cfg       config.WatchConfig
	outputDir string
	store     WatchStore
	cron      Scheduler

	group singleflight.Group
}

func NewWatcher(pipeline *Pipeline, cfg config.WatchConfig, outputDir string, store WatchStore, scheduler Scheduler) *Watcher {
	return &Watcher{
		pipeline:  pipeline,
		cfg:       cfg,
		outputDir: outputDir,
		store:     store,
		cron:      scheduler,
	}
}

// Schedule registers the watch run with the cron engine. Overlapping
// triggers share the run already in flight.
func (w *Watcher) Schedule(ctx context.Context) error {
	if !w.cfg.Enabled() {
		log.Info("Watcher disabled: no WATCH_CRON or WATCH_URLS configured")
		return nil
	}
	if _, err := w.cron.AddFunc(w.cfg.CronExpr, func() {
		if _, err := w.RunOnce(ctx); err != nil {
			log.Error("Watch run failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule watcher: %w", err)
	}

	if info, err := icron.GetTriggerInfo(w.cfg.CronExpr, time.Now()); err == nil {
		log.Info("Watching %d pages (%s), next run in %s", len(w.cfg.URLs), w.cfg.CronExpr, info.TimeUntilNext.Round(time.Second))
	}
	return nil
}

// RunOnce checks every configured page. Per-page failures are logged and
// counted; they never stop the pass.
func (w *Watcher) RunOnce(ctx context.Context) (WatchReport, error) {
	v, err, shared := w.group.Do("watch", func() (any, error) {
		return w.run(ctx), nil
	})
	if shared {
		log.Debug("Watch run already in progress, sharing its result")
	}
	if err != nil {
		return WatchReport{}, err
	}
	return v.(WatchReport), nil
}

func (w *Watcher) run(ctx context.Context) WatchReport {
	var report WatchReport
	for _, pageURL := range w.cfg.URLs {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		written, err := w.check(ctx, pageURL)
		switch {
		case err != nil:
			report.Failed++
			log.Error("Watch %s failed: %v", pageURL, err)
		case written == "":
			report.Skipped++
		default:
			report.Written = append(report.Written, written)
		}
	}
	log.Info("Watch run: checked=%d written=%d skipped=%d failed=%d",
		report.Checked, len(report.Written), report.Skipped, report.Failed)
	return report
}

// check downloads pageURL when its track signature differs from the stored
// one. It returns the written path, or "" when nothing changed.
func (w *Watcher) check(ctx context.Context, pageURL string) (string, error) {
	page, err := w.pipeline.LoadPage(ctx, pageURL)
	if err != nil {
		return "", err
	}
	info, err := w.pipeline.Inspect(page)
	if err != nil {
		return "", err
	}
	if len(info.Tracks) == 0 {
		log.Debug("Watch %s: no captions yet", pageURL)
		return "", nil
	}

	signature := trackSignature(info)
	if w.store != nil {
		prev, found, err := w.store.GetWatchState(ctx, pageURL)
		if err != nil {
			return "", fmt.Errorf("read watch state: %w", err)
		}
		if found && prev.Signature == signature {
			if _, statErr := os.Stat(prev.OutputPath); statErr == nil {
				return "", nil
			}
		}
	}

	result, err := w.pipeline.Download(ctx, DownloadRequest{
		Page:        page,
		Language:    w.cfg.Language,
		Format:      w.cfg.Format,
		TranslateTo: w.cfg.TranslateTo,
	})
	if err != nil {
		return "", err
	}

	outPath := filepath.Join(w.outputDir, result.Filename)
	if err := file.WriteText(outPath, result.Content); err != nil {
		return "", err
	}

	if w.store != nil {
		err := w.store.PutWatchState(ctx, persistence.WatchState{
			PageURL:    pageURL,
			VideoID:    result.VideoID,
			Signature:  signature,
			OutputPath: outPath,
		})
		if err != nil {
			log.Warn("Failed to save watch state for %s: %v", pageURL, err)
		}
	}
	log.Info("Watch %s: wrote %s (%d cues)", pageURL, outPath, result.SubtitleCount)
	return outPath, nil
}

// trackSignature identifies the video and its caption track set.
func trackSignature(info *Inspection) string {
	parts := make([]string, 0, len(info.Tracks))
	for _, t := range info.Tracks {
		parts = append(parts, t.LanguageCode+":"+t.Kind)
	}
	sort.Strings(parts)
	return info.Video.VideoID + "|" + strings.Join(parts, ",")
}
