package persistence

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/ytsub-pipeline/internal/jobs"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "ytsub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(" ")
	assert.Error(t, err)
}

func TestNewSQLiteStore_ReopenKeepsData(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ytsub.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Update(context.Background(), processor.UsageDelta{Provider: "openai", Requests: 1, Tokens: 10}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	stats, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalTokens)
}

func TestSQLiteStore_UsageEmpty(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	stats, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRequests)
	assert.Zero(t, stats.TotalTokens)
	assert.NotNil(t, stats.ProviderStats)
	assert.Empty(t, stats.ProviderStats)
}

func TestSQLiteStore_UsageAccumulates(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, processor.UsageDelta{Provider: "openai", Requests: 1, Tokens: 120}))
	require.NoError(t, store.Update(ctx, processor.UsageDelta{Provider: "openai", Requests: 1, Tokens: 30}))
	require.NoError(t, store.Update(ctx, processor.UsageDelta{Provider: "anthropic", Requests: 1, Tokens: 50}))

	stats, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(200), stats.TotalTokens)
	assert.Equal(t, processor.ProviderUsage{Requests: 2, Tokens: 150}, stats.ProviderStats["openai"])
	assert.Equal(t, processor.ProviderUsage{Requests: 1, Tokens: 50}, stats.ProviderStats["anthropic"])
}

func TestSQLiteStore_UsageConcurrentUpdates(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Update(ctx, processor.UsageDelta{Provider: "openai", Requests: 1, Tokens: 5}))
		}()
	}
	wg.Wait()

	stats, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(40), stats.TotalRequests)
	assert.Equal(t, int64(200), stats.TotalTokens)
}

func TestSQLiteStore_UsageRejectsBlankProvider(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	assert.Error(t, store.Update(context.Background(), processor.UsageDelta{Requests: 1}))
}

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	job := &jobs.ProcessingJob{
		ID:        "job-1",
		Source:    "api",
		DedupeKey: "vid|en|translate",
		Payload: jobs.JobPayload{
			Operation: processor.OperationTranslate,
			Provider:  "anthropic",
			Options:   processor.NewOptions().WithTargetLanguage("ja"),
			Cues:      []subtitle.Cue{subtitle.NewCue(1, 0, 1.5, "hello")},
		},
		Status:    jobs.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, jobs.StatusPending, got.Status)
	assert.Equal(t, job.Payload, got.Payload)
	assert.Empty(t, got.Result)
	assert.True(t, now.Equal(got.CreatedAt))

	ok := true
	processed := subtitle.NewCue(1, 0, 1.5, "こんにちは")
	processed.Processed = &ok
	job.Status = jobs.StatusSuccess
	job.Result = []subtitle.Cue{processed}
	job.UpdatedAt = now.Add(time.Second)
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, jobs.StatusSuccess, all[0].Status)
	require.Len(t, all[0].Result, 1)
	assert.Equal(t, "こんにちは", all[0].Result[0].Text)

	require.NoError(t, store.DeleteJob(ctx, job.ID))
	all, err = store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_UpsertNilJob(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	assert.Error(t, store.UpsertJob(context.Background(), nil))
}

func TestSQLiteStore_WatchState(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()
	page := "https://www.youtube.com/watch?v=abc"

	_, found, err := store.GetWatchState(ctx, page)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.PutWatchState(ctx, WatchState{PageURL: page, VideoID: "abc", Signature: "en,fr", OutputPath: "/out/abc_en.srt"}))
	require.NoError(t, store.PutWatchState(ctx, WatchState{PageURL: page, VideoID: "abc", Signature: "en,fr,de", OutputPath: "/out/abc_en.srt"}))

	state, found, err := store.GetWatchState(ctx, page)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "en,fr,de", state.Signature)
	assert.Equal(t, "/out/abc_en.srt", state.OutputPath)
	assert.False(t, state.UpdatedAt.IsZero())
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("012_more.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

func TestSQLiteStore_SatisfiesInterfaces(t *testing.T) {
	var _ processor.UsageStore = (*SQLiteStore)(nil)
	var _ jobs.Store = (*SQLiteStore)(nil)
}
