package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// JobStatus is the lifecycle stage of a queued print
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobPrinting  JobStatus = "printing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

const queuePollInterval = 100 * time.Millisecond

// Printer delivers one payload. *Session implements it.
type Printer interface {
	Print(ctx context.Context, payload string) (Notice, error)
}

// PrintJob is a payload waiting for, or done with, the printer
type PrintJob struct {
	ID        string    `json:"id"`
	Payload   string    `json:"payload"`
	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Queue prints jobs one at a time in submission order
type Queue struct {
	jobs        []*PrintJob
	mu          sync.Mutex
	printer     Printer
	maxAttempts int
	logger      *log.Logger
	wake        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewQueue starts a worker that sends jobs to p. A failed job is retried
// until it has been attempted maxAttempts times.
func NewQueue(p Printer, maxAttempts int, logger *log.Logger) *Queue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		jobs:        make([]*PrintJob, 0),
		printer:     p,
		maxAttempts: maxAttempts,
		logger:      logger.WithPrefix("queue"),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}

	q.wg.Add(1)
	go q.worker()

	return q
}

// Enqueue adds payload to the queue and returns the job ID
func (q *Queue) Enqueue(payload string) string {
	now := time.Now()
	job := &PrintJob{
		ID:        uuid.NewString(),
		Payload:   payload,
		Status:    JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.logger.Debug("job queued", "id", job.ID)
	return job.ID
}

func (q *Queue) worker() {
	defer q.wg.Done()

	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
		case <-q.wake:
		}
		for q.processNextJob() {
			if q.ctx.Err() != nil {
				return
			}
		}
	}
}

// processNextJob runs the oldest queued job and reports whether there was one
func (q *Queue) processNextJob() bool {
	q.mu.Lock()
	var job *PrintJob
	for _, j := range q.jobs {
		if j.Status == JobQueued {
			job = j
			job.Status = JobPrinting
			job.UpdatedAt = time.Now()
			break
		}
	}
	var payload string
	if job != nil {
		payload = job.Payload
	}
	q.mu.Unlock()

	if job == nil {
		return false
	}

	_, err := q.printer.Print(q.ctx, payload)

	q.mu.Lock()
	defer q.mu.Unlock()

	job.Attempts++
	job.UpdatedAt = time.Now()
	if err == nil {
		job.Status = JobCompleted
		job.Error = ""
		q.logger.Info("job completed", "id", job.ID)
		return true
	}

	job.Error = err.Error()
	if job.Attempts >= q.maxAttempts {
		job.Status = JobFailed
		q.logger.Error("job failed", "id", job.ID, "attempts", job.Attempts, "err", err)
		return true
	}

	// Back of the line so a flaky printer does not starve later jobs.
	job.Status = JobQueued
	q.moveToBackLocked(job)
	q.logger.Warn("job failed, retrying", "id", job.ID, "attempt", job.Attempts, "max", q.maxAttempts, "err", err)
	return false
}

func (q *Queue) moveToBackLocked(job *PrintJob) {
	for i, j := range q.jobs {
		if j == job {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			q.jobs = append(q.jobs, job)
			return
		}
	}
}

// Job returns a copy of the job with the given ID
func (q *Queue) Job(id string) (PrintJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == id {
			return *job, true
		}
	}
	return PrintJob{}, false
}

// Jobs returns copies of all jobs in queue order
func (q *Queue) Jobs() []PrintJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]PrintJob, len(q.jobs))
	for i, job := range q.jobs {
		jobs[i] = *job
	}
	return jobs
}

// ClearCompleted removes completed jobs and returns how many were removed
func (q *Queue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.jobs[:0]
	for _, job := range q.jobs {
		if job.Status != JobCompleted {
			kept = append(kept, job)
		}
	}
	removed := len(q.jobs) - len(kept)
	for i := len(kept); i < len(q.jobs); i++ {
		q.jobs[i] = nil
	}
	q.jobs = kept
	return removed
}

// Stop cancels the in-flight job and waits for the worker to exit
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}
