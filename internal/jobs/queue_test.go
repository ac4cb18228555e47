package jobs

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
)

func succeed(_ context.Context, job *ProcessingJob) ([]subtitle.Cue, error) {
	return job.Payload.Cues, nil
}

func samplePayload() JobPayload {
	return JobPayload{
		Operation: processor.OperationOptimize,
		Provider:  "openai",
		Cues:      []subtitle.Cue{subtitle.NewCue(1, 0, 1, "hello")},
	}
}

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(2, nil)

	jobA, createdA := q.Enqueue(EnqueueRequest{Source: "api", DedupeKey: "vid1|en|optimize"})
	jobB, createdB := q.Enqueue(EnqueueRequest{Source: "watch", DedupeKey: "vid1|en|optimize"})

	require.True(t, createdA)
	require.False(t, createdB)
	require.NotNil(t, jobA)
	require.NotNil(t, jobB)
	assert.Equal(t, jobA.ID, jobB.ID)
	assert.True(t, strings.HasPrefix(jobA.ID, "job-"))
}

func TestQueue_Enqueue_EmptyKeyNeverDeduplicates(t *testing.T) {
	q := NewQueue(1, nil)

	a, createdA := q.Enqueue(EnqueueRequest{Source: "api"})
	b, createdB := q.Enqueue(EnqueueRequest{Source: "api"})

	assert.True(t, createdA)
	assert.True(t, createdB)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestQueue_Enqueue_AllowsRetryAfterFailure(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts atomic.Int32
	q.Start(func(ctx context.Context, job *ProcessingJob) ([]subtitle.Cue, error) {
		if attempts.Add(1) == 1 {
			return nil, assert.AnError
		}
		return succeed(ctx, job)
	})
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{Source: "api", DedupeKey: "retry-key"})
	require.True(t, created)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(first.ID)
	assert.Equal(t, assert.AnError.Error(), got.Error)

	second, created := q.Enqueue(EnqueueRequest{Source: "api", DedupeKey: "retry-key"})
	require.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)

	require.Eventually(t, func() bool {
		got, ok := q.Get(second.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Worker_StoresResult(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, job *ProcessingJob) ([]subtitle.Cue, error) {
		out := make([]subtitle.Cue, len(job.Payload.Cues))
		for i, c := range job.Payload.Cues {
			ok := i == 0
			c.Processed = &ok
			out[i] = c
		}
		return out, nil
	})
	defer q.Stop()

	payload := samplePayload()
	payload.Cues = append(payload.Cues, subtitle.NewCue(2, 1, 2, "world"))
	job, _ := q.Enqueue(EnqueueRequest{Source: "api", Payload: payload})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(job.ID)
	require.Len(t, got.Result, 2)
	assert.Equal(t, 1, got.Failed)
}

func TestQueue_ListOmitsCuesNewestFirst(t *testing.T) {
	q := NewQueue(1, nil)
	first, _ := q.Enqueue(EnqueueRequest{Source: "api", Payload: samplePayload()})
	time.Sleep(2 * time.Millisecond)
	second, _ := q.Enqueue(EnqueueRequest{Source: "api", Payload: samplePayload()})

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Nil(t, list[0].Payload.Cues)

	full, ok := q.Get(first.ID)
	require.True(t, ok)
	assert.Len(t, full.Payload.Cues, 1)
}

func TestQueue_GetReturnsCopy(t *testing.T) {
	q := NewQueue(1, nil)
	job, _ := q.Enqueue(EnqueueRequest{Source: "api", Payload: samplePayload()})

	got, _ := q.Get(job.ID)
	got.Payload.Cues[0].Text = "mutated"
	got.Status = StatusFailed

	again, _ := q.Get(job.ID)
	assert.Equal(t, "hello", again.Payload.Cues[0].Text)
	assert.Equal(t, StatusPending, again.Status)
}

func TestQueue_ActiveJobsHook(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	q := NewQueue(1, nil, WithActiveJobsHook(func(active int) {
		mu.Lock()
		seen = append(seen, active)
		mu.Unlock()
	}))
	q.Start(succeed)
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "api", Payload: samplePayload()})
	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, q.Active())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3 && seen[2] == 0
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 1, 0}, seen)
}

func TestQueue_PrunesOldestFinishedJobs(t *testing.T) {
	q := NewQueue(1, nil, WithMaxJobs(2))
	q.Start(succeed)
	defer q.Stop()

	var ids []string
	for range 3 {
		job, _ := q.Enqueue(EnqueueRequest{Source: "api", Payload: samplePayload()})
		ids = append(ids, job.ID)
		require.Eventually(t, func() bool {
			got, ok := q.Get(job.ID)
			return ok && got.Status == StatusSuccess
		}, time.Second, 10*time.Millisecond)
	}

	_, ok := q.Get(ids[0])
	assert.False(t, ok)
	assert.Len(t, q.List(), 2)
}

func TestQueue_StopCancelsRunningJob(t *testing.T) {
	q := NewQueue(1, nil)
	started := make(chan struct{})
	q.Start(func(ctx context.Context, _ *ProcessingJob) ([]subtitle.Cue, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	job, _ := q.Enqueue(EnqueueRequest{Source: "api", Payload: samplePayload()})
	<-started
	q.Stop()

	got, ok := q.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "context canceled")
}
