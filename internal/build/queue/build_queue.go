package queue

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/repobuilder/internal/build"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/logfields"
	"git.home.luguber.info/inful/repobuilder/internal/metrics"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// JobType records what triggered a build job.
type JobType string

const (
	JobTypeManual JobType = "manual" // Requested on the command line
	JobTypeWatch  JobType = "watch"  // Candidates file changed
)

// JobStatus represents the current status of a build job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Job is one repository build in the queue.
type Job struct {
	ID          string                   `json:"id"`
	Type        JobType                  `json:"type"`
	Ref         repository.RepositoryRef `json:"repository"`
	Status      JobStatus                `json:"status"`
	CreatedAt   time.Time                `json:"created_at"`
	StartedAt   *time.Time               `json:"started_at,omitempty"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Duration    time.Duration            `json:"duration,omitempty"`
	Error       string                   `json:"error,omitempty"`
	Report      *build.BuildReport       `json:"report,omitempty"`

	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJob creates a queued job for ref.
func NewJob(ref repository.RepositoryRef, typ JobType) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Type:      typ,
		Ref:       ref,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the error the builder returned, if any.
func (j *Job) Err() error { return j.err }

// Builder produces a report for one repository.
type Builder interface {
	Build(ctx context.Context, ref repository.RepositoryRef) (*build.BuildReport, error)
}

// ReportSink receives every freshly built report. Cached reports are not sent.
type ReportSink interface {
	RecordReport(ctx context.Context, jobID string, report *build.BuildReport) error
}

// BuildQueue runs build jobs on a fixed pool of workers.
type BuildQueue struct {
	jobs        chan *Job
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*Job
	history     []*Job
	historySize int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	builder     Builder

	recorder metrics.Recorder
	sink     ReportSink
	logger   *slog.Logger
}

// New creates a build queue holding up to maxSize waiting jobs.
func New(maxSize, workers int, builder Builder) *BuildQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	if builder == nil {
		panic("queue.New: builder is required")
	}

	return &BuildQueue{
		jobs:        make(chan *Job, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*Job),
		history:     make([]*Job, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		builder:     builder,
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
}

// SetRecorder injects a metrics recorder for queue depth (optional).
func (bq *BuildQueue) SetRecorder(r metrics.Recorder) {
	bq.recorder = metrics.OrNoop(r)
}

// SetReportSink injects the destination for finished reports.
func (bq *BuildQueue) SetReportSink(sink ReportSink) {
	bq.sink = sink
}

// SetLogger sets the logger.
func (bq *BuildQueue) SetLogger(l *slog.Logger) {
	if l != nil {
		bq.logger = l
	}
}

// Start begins processing jobs with the configured number of workers.
func (bq *BuildQueue) Start(ctx context.Context) {
	bq.logger.Info("Starting build queue", slog.Int("workers", bq.workers), slog.Int("max_size", bq.maxSize))
	for i := range bq.workers {
		bq.wg.Add(1)
		go bq.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels running jobs and waits for the workers to exit. Jobs still
// waiting are marked canceled.
func (bq *BuildQueue) Stop(_ context.Context) {
	bq.stopOnce.Do(func() { close(bq.stopChan) })

	bq.mu.Lock()
	for _, job := range bq.active {
		if job.cancel != nil {
			job.cancel()
		}
	}
	bq.mu.Unlock()

	bq.wg.Wait()

	for {
		select {
		case job := <-bq.jobs:
			bq.markJobCompleted(job, context.Canceled)
		default:
			bq.recorder.SetQueueDepth(0)
			return
		}
	}
}

// Length returns the current queue length.
func (bq *BuildQueue) Length() int {
	return len(bq.jobs)
}

// GetActiveJobs returns a copy of the currently active jobs.
func (bq *BuildQueue) GetActiveJobs() []*Job {
	bq.mu.RLock()
	defer bq.mu.RUnlock()

	active := make([]*Job, 0, len(bq.active))
	for _, job := range bq.active {
		cp := *job
		active = append(active, &cp)
	}
	return active
}

// Enqueue adds a job to the queue without blocking.
func (bq *BuildQueue) Enqueue(job *Job) error {
	if job == nil {
		return stdErrors.New("job cannot be nil")
	}
	if job.ID == "" {
		return stdErrors.New("job ID is required")
	}
	if job.done == nil {
		job.done = make(chan struct{})
	}

	job.Status = JobStatusQueued

	select {
	case bq.jobs <- job:
		bq.recorder.SetQueueDepth(len(bq.jobs))
		return nil
	default:
		return stdErrors.New("build queue is full")
	}
}

// JobSnapshot returns a copy of a job (active first, then history).
func (bq *BuildQueue) JobSnapshot(id string) (*Job, bool) {
	bq.mu.RLock()
	defer bq.mu.RUnlock()

	if j, ok := bq.active[id]; ok {
		cp := *j
		return &cp, true
	}
	for _, j := range bq.history {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	return nil, false
}

func (bq *BuildQueue) worker(ctx context.Context, workerID string) {
	defer bq.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bq.stopChan:
			return
		case job := <-bq.jobs:
			if job != nil {
				bq.recorder.SetQueueDepth(len(bq.jobs))
				bq.processJob(ctx, job, workerID)
			}
		}
	}
}

func (bq *BuildQueue) processJob(ctx context.Context, job *Job, workerID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	startTime := time.Now()
	bq.mu.Lock()
	job.cancel = cancel
	job.StartedAt = &startTime
	job.Status = JobStatusRunning
	bq.active[job.ID] = job
	bq.mu.Unlock()

	bq.logger.Debug("Build job started",
		logfields.JobID(job.ID),
		logfields.Worker(workerID),
		logfields.Repository(job.Ref.FullName()))

	report, err := bq.build(jobCtx, job)
	bq.mu.Lock()
	job.Report = report
	bq.mu.Unlock()
	if err == nil && report != nil && report.Canceled() {
		err = context.Canceled
	}

	bq.recordReport(ctx, job, report)
	bq.markJobCompleted(job, err)
}

// build runs one job. A panic fails the job instead of the whole queue.
func (bq *BuildQueue) build(ctx context.Context, job *Job) (report *build.BuildReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			bq.logger.Error("Build job panicked",
				logfields.JobID(job.ID),
				logfields.Repository(job.Ref.FullName()),
				slog.Any("panic", r))
			report = nil
			err = foundationerrors.InternalError("build panicked").
				WithContext("repository", job.Ref.FullName()).
				WithContext("panic", fmt.Sprint(r)).Build()
		}
	}()
	return bq.builder.Build(ctx, job.Ref)
}

func (bq *BuildQueue) recordReport(ctx context.Context, job *Job, report *build.BuildReport) {
	if bq.sink == nil || report == nil || report.FromCache {
		return
	}
	if err := bq.sink.RecordReport(context.WithoutCancel(ctx), job.ID, report); err != nil {
		bq.logger.Warn("Failed to record build report", logfields.JobID(job.ID), logfields.Error(err))
	}
}

func (bq *BuildQueue) markJobCompleted(job *Job, err error) {
	endTime := time.Now()
	bq.mu.Lock()
	job.CompletedAt = &endTime
	if job.StartedAt != nil {
		job.Duration = endTime.Sub(*job.StartedAt)
	}
	delete(bq.active, job.ID)
	bq.addToHistory(job)
	job.err = err
	switch {
	case err == nil:
		job.Status = JobStatusCompleted
	case stdErrors.Is(err, context.Canceled):
		job.Status = JobStatusCanceled
		job.Error = err.Error()
	default:
		job.Status = JobStatusFailed
		job.Error = err.Error()
	}
	status := job.Status
	bq.mu.Unlock()

	bq.logger.Debug("Build job finished",
		logfields.JobID(job.ID),
		logfields.JobStatus(string(status)),
		logfields.Repository(job.Ref.FullName()))
	close(job.done)
}

func (bq *BuildQueue) addToHistory(job *Job) {
	bq.history = append(bq.history, job)
	if len(bq.history) > bq.historySize {
		copy(bq.history, bq.history[len(bq.history)-bq.historySize:])
		bq.history = bq.history[:bq.historySize]
	}
}
