package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crawlpace/crawlpace/internal/core"
	"github.com/crawlpace/crawlpace/internal/core/engine"
)

// JobStatus is the lifecycle state of a submitted crawl.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobCancelled JobStatus = "cancelled"
)

const (
	DefaultMaxJobs    = 100
	DefaultMaxJobURLs = 1000
)

var (
	// ErrQueueFull means every retained job is still running.
	ErrQueueFull = errors.New("crawl job capacity reached")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("crawl job queue closed")
)

// JobView is the JSON shape of a crawl job.
type JobView struct {
	ID          string                   `json:"job_id"`
	Status      JobStatus                `json:"status"`
	SubmittedAt time.Time                `json:"submitted_at"`
	FinishedAt  *time.Time               `json:"finished_at,omitempty"`
	Total       int                      `json:"total"`
	Completed   int                      `json:"completed"`
	Summary     map[core.CrawlStatus]int `json:"summary,omitempty"`
	Results     []engine.Result          `json:"results,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

type job struct {
	mu        sync.Mutex
	id        string
	status    JobStatus
	submitted time.Time
	finished  *time.Time
	urls      []string
	completed int
	results   []engine.Result
	err       string
}

func (j *job) view(withResults bool) JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	v := JobView{
		ID:          j.id,
		Status:      j.status,
		SubmittedAt: j.submitted,
		FinishedAt:  j.finished,
		Total:       len(j.urls),
		Completed:   j.completed,
		Error:       j.err,
	}
	if j.results != nil {
		v.Summary = engine.Summary(j.results)
		if withResults {
			v.Results = append([]engine.Result(nil), j.results...)
		}
	}
	return v
}

// JobQueue runs crawl jobs in the background against one shared pipeline,
// so every job is paced against the same per-domain state.
type JobQueue struct {
	Pipeline    *engine.Pipeline
	Fetch       engine.FetchFunc
	Concurrency int
	MaxJobs     int
	MaxURLs     int
	// OnResult observes every finished URL across jobs.
	OnResult func(engine.Result)
	Clock    func() time.Time

	mu     sync.Mutex
	jobs   map[string]*job
	order  []string
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobQueue returns a queue whose jobs stop when Close is called.
func NewJobQueue(pipeline *engine.Pipeline, fetch engine.FetchFunc, concurrency int) *JobQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobQueue{
		Pipeline:    pipeline,
		Fetch:       fetch,
		Concurrency: concurrency,
		MaxJobs:     DefaultMaxJobs,
		MaxURLs:     DefaultMaxJobURLs,
		jobs:        make(map[string]*job),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit registers a job and starts it. The oldest finished job is evicted
// when the queue is at capacity.
func (q *JobQueue) Submit(urls []string) (JobView, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return JobView{}, ErrQueueClosed
	}
	if len(q.order) >= q.maxJobs() && !q.evictLocked() {
		return JobView{}, ErrQueueFull
	}

	j := &job{
		id:        uuid.New().String(),
		status:    JobQueued,
		submitted: q.now(),
		urls:      append([]string(nil), urls...),
	}
	q.jobs[j.id] = j
	q.order = append(q.order, j.id)

	q.wg.Add(1)
	go q.run(j)

	return j.view(false), nil
}

// Get returns a job by ID.
func (q *JobQueue) Get(id string) (JobView, bool) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	q.mu.Unlock()
	if !ok {
		return JobView{}, false
	}
	return j.view(true), true
}

// Close cancels running jobs and waits for them to stop.
func (q *JobQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

func (q *JobQueue) run(j *job) {
	defer q.wg.Done()

	j.mu.Lock()
	j.status = JobRunning
	j.mu.Unlock()

	orchestrator := &engine.Orchestrator{
		Pipeline:    q.Pipeline,
		Fetch:       q.Fetch,
		Concurrency: q.Concurrency,
		OnResult: func(result engine.Result) {
			j.mu.Lock()
			j.completed++
			j.mu.Unlock()
			if q.OnResult != nil {
				q.OnResult(result)
			}
		},
	}

	results, err := orchestrator.Crawl(q.ctx, j.urls)

	finished := q.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = results
	j.finished = &finished
	j.status = JobDone
	if err != nil {
		j.status = JobCancelled
		j.err = err.Error()
	}
}

// evictLocked drops the oldest finished job. Caller holds q.mu.
func (q *JobQueue) evictLocked() bool {
	for i, id := range q.order {
		j := q.jobs[id]
		j.mu.Lock()
		done := j.finished != nil
		j.mu.Unlock()
		if !done {
			continue
		}
		delete(q.jobs, id)
		q.order = append(q.order[:i], q.order[i+1:]...)
		return true
	}
	return false
}

func (q *JobQueue) maxJobs() int {
	if q.MaxJobs <= 0 {
		return DefaultMaxJobs
	}
	return q.MaxJobs
}

func (q *JobQueue) maxURLs() int {
	if q.MaxURLs <= 0 {
		return DefaultMaxJobURLs
	}
	return q.MaxURLs
}

func (q *JobQueue) now() time.Time {
	if q.Clock != nil {
		return q.Clock()
	}
	return time.Now().UTC()
}
