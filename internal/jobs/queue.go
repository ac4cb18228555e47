package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

const defaultMaxJobs = 200

// Executor runs one job and returns the processed cues.
type Executor func(ctx context.Context, job *ProcessingJob) ([]subtitle.Cue, error)

type Queue struct {
	workerCount int
	maxJobs     int
	store       Store
	onChange    func(active int)

	mu         sync.RWMutex
	jobs       map[string]*ProcessingJob
	dedupe     map[string]string
	started    bool
	pendingIDs chan string
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type QueueOption func(*Queue)

// WithMaxJobs bounds how many jobs are kept; the oldest finished jobs are
// pruned first.
func WithMaxJobs(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxJobs = n
		}
	}
}

// WithActiveJobsHook is called with the pending plus running count after
// every transition.
func WithActiveJobsHook(fn func(active int)) QueueOption {
	return func(q *Queue) {
		q.onChange = fn
	}
}

func NewQueue(workerCount int, store Store, opts ...QueueOption) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     defaultMaxJobs,
		store:       store,
		jobs:        make(map[string]*ProcessingJob),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.hydrateFromStore(context.Background())
	return q
}

// Enqueue adds a pending job. A request whose DedupeKey matches an
// unfinished job returns that job and false.
func (q *Queue) Enqueue(req EnqueueRequest) (*ProcessingJob, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[req.DedupeKey]; ok && req.DedupeKey != "" {
		if existing, exists := q.jobs[id]; exists {
			snapshot := cloneJob(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, req.DedupeKey)
	}

	job := &ProcessingJob{
		ID:        "job-" + uuid.NewString(),
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.jobs[job.ID] = job
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = job.ID
	}
	started := q.started
	snapshot := cloneJob(job)
	active := q.activeLocked()
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.notify(active)
	if started {
		q.enqueuePendingID(job.ID)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*ProcessingJob, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns every job, newest first, without cue payloads.
func (q *Queue) List() []*ProcessingJob {
	q.mu.RLock()
	ret := make([]*ProcessingJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, summarize(job))
	}
	q.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret
}

// Active is the number of pending and running jobs.
func (q *Queue) Active() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.activeLocked()
}

func (q *Queue) activeLocked() int {
	n := 0
	for _, job := range q.jobs {
		if !job.Status.Terminal() {
			n++
		}
	}
	return n
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]*ProcessingJob, 0)
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	ids := make([]string, len(pending))
	for i, job := range pending {
		ids[i] = job.ID
	}
	q.mu.Unlock()

	for _, id := range ids {
		q.enqueuePendingID(id)
	}

	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop cancels running executors and waits for workers to exit. Jobs
// interrupted this way are failed with the context error.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.pendingIDs:
			job, ok := q.markRunning(id)
			if !ok {
				continue
			}

			result, err := exec(q.ctx, job)
			if err != nil {
				q.markFailed(id, err)
				continue
			}
			q.markSuccess(id, result)
		}
	}
}

func (q *Queue) enqueuePendingID(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.ctx.Done():
			}
		}()
	}
}

func (q *Queue) markRunning(id string) (*ProcessingJob, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	active := q.activeLocked()
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.notify(active)
	return snapshot, true
}

func (q *Queue) markSuccess(id string, result []subtitle.Cue) {
	q.finish(id, func(job *ProcessingJob) {
		job.Status = StatusSuccess
		job.Error = ""
		job.Result = result
		job.Failed = countFailed(result)
	})
}

func (q *Queue) markFailed(id string, err error) {
	q.finish(id, func(job *ProcessingJob) {
		job.Status = StatusFailed
		if err != nil {
			job.Error = err.Error()
		}
	})
}

func (q *Queue) finish(id string, apply func(job *ProcessingJob)) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	apply(job)
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	pruned := q.pruneTerminalJobsLocked()
	snapshot := cloneJob(job)
	active := q.activeLocked()
	q.mu.Unlock()

	q.persistJob(snapshot)
	q.deleteJobsFromStore(pruned)
	q.notify(active)
	log.Info("Job %s finished: status=%s failed_cues=%d", id, snapshot.Status, snapshot.Failed)
}

func (q *Queue) releaseDedupeLocked(job *ProcessingJob) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

func (q *Queue) pruneTerminalJobsLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(q.jobs))
	for id, job := range q.jobs {
		if job == nil || !job.Status.Terminal() {
			continue
		}
		terminal = append(terminal, candidate{id: id, updatedAt: job.UpdatedAt})
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := min(len(q.jobs)-q.maxJobs, len(terminal))
	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		id := terminal[i].id
		q.releaseDedupeLocked(q.jobs[id])
		delete(q.jobs, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func (q *Queue) deleteJobsFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete pruned job %s from store: %v", id, err)
		}
	}
}

func (q *Queue) hydrateFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := time.Now()
	toPersist := make([]*ProcessingJob, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.dedupe[job.DedupeKey] = job.ID
		}
	}
	q.mu.Unlock()

	for _, job := range toPersist {
		q.persistJob(job)
	}
	if len(loaded) > 0 {
		log.Info("Recovered %d jobs from store (%d requeued)", len(loaded), len(toPersist))
	}
}

func (q *Queue) persistJob(job *ProcessingJob) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func (q *Queue) notify(active int) {
	if q.onChange != nil {
		q.onChange(active)
	}
}

func countFailed(cues []subtitle.Cue) int {
	n := 0
	for _, c := range cues {
		if c.Processed != nil && !*c.Processed {
			n++
		}
	}
	return n
}

func cloneJob(job *ProcessingJob) *ProcessingJob {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Payload.Cues = append([]subtitle.Cue(nil), job.Payload.Cues...)
	tmp.Result = append([]subtitle.Cue(nil), job.Result...)
	if job.Payload.Options != nil {
		opts := *job.Payload.Options
		tmp.Payload.Options = &opts
	}
	return &tmp
}

// summarize is a copy of job without cue payloads.
func summarize(job *ProcessingJob) *ProcessingJob {
	tmp := *job
	tmp.Payload.Cues = nil
	tmp.Result = nil
	if job.Payload.Options != nil {
		opts := *job.Payload.Options
		tmp.Payload.Options = &opts
	}
	return &tmp
}
