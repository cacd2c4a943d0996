package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/podsearch/internal/db"
	"github.com/raphaelgruber/podsearch/internal/models"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a background directory indexing run.
type Job struct {
	ID          string           `json:"id"`
	Status      JobStatus        `json:"status"`
	DirPath     string           `json:"dir_path"`
	Force       bool             `json:"force"`
	Prune       bool             `json:"prune"`
	Progress    int              `json:"progress"`
	Total       int              `json:"total"`
	CurrentFile string           `json:"current_file,omitempty"`
	Result      *DirectoryResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`

	mu                 sync.RWMutex
	lastProgressUpdate time.Time // debounces DB writes
	done               chan struct{}
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{
		ID:          j.ID,
		Status:      j.Status,
		DirPath:     j.DirPath,
		Force:       j.Force,
		Prune:       j.Prune,
		Progress:    j.Progress,
		Total:       j.Total,
		CurrentFile: j.CurrentFile,
		Result:      j.Result,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// JobManager runs directory indexing in the background, one run at a time.
type JobManager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	runMu   sync.Mutex
	db      *db.Client
	indexer *IndexService
}

// NewJobManager creates a job manager. dbClient may be nil to keep jobs in memory only.
func NewJobManager(indexer *IndexService, dbClient *db.Client) *JobManager {
	return &JobManager{
		jobs:    make(map[string]*Job),
		db:      dbClient,
		indexer: indexer,
	}
}

// Start creates a job for dirPath and indexes it in a goroutine. Runs queue
// behind one another; the job stays pending until it acquires the store.
// The run is detached from ctx so it outlives the request that started it.
func (m *JobManager) Start(ctx context.Context, dirPath string, opts IndexOptions) (*Job, error) {
	files, err := m.indexer.CollectFiles(dirPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidQuery, err)
	}

	job := &Job{
		ID:        uuid.New().String()[:8],
		Status:    JobStatusPending,
		DirPath:   dirPath,
		Force:     opts.Force,
		Prune:     opts.Prune,
		Total:     len(files),
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	if m.db != nil {
		if err := m.db.CreateIndexJob(ctx, models.IndexJob{
			ID:        job.ID,
			Status:    string(JobStatusRunning),
			DirPath:   dirPath,
			Force:     opts.Force,
			Prune:     opts.Prune,
			Total:     len(files),
			StartedAt: job.StartedAt,
		}); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	slog.Info("job created", "job_id", job.ID, "dir", dirPath, "files", len(files))

	go m.run(context.WithoutCancel(ctx), job, files, opts)
	return job, nil
}

func (m *JobManager) run(ctx context.Context, job *Job, files []string, opts IndexOptions) {
	defer close(job.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job goroutine panicked", "job_id", job.ID, "panic", r)
			m.Fail(ctx, job, fmt.Errorf("internal panic: %v", r))
		}
	}()

	m.runMu.Lock()
	defer m.runMu.Unlock()

	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()

	caller := opts.Progress
	opts.Progress = func(done, total int, file string) {
		m.UpdateProgress(ctx, job, done, total, file)
		if caller != nil {
			caller(done, total, file)
		}
	}

	result, err := m.indexer.IndexFiles(ctx, files, opts)
	if err != nil {
		m.Fail(ctx, job, err)
		return
	}
	m.Complete(ctx, job, result)
}

// GetJob retrieves a job by ID, or nil.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, most recent first.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}

	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// UpdateProgress updates job progress with debounced DB persistence.
func (m *JobManager) UpdateProgress(ctx context.Context, job *Job, current, total int, file string) {
	job.mu.Lock()
	job.Progress = current
	job.Total = total
	job.CurrentFile = file

	// persist every 5 seconds, every 10 files and on the last file
	shouldPersist := m.db != nil && (time.Since(job.lastProgressUpdate) > 5*time.Second ||
		current%10 == 0 || current == total)
	if shouldPersist {
		job.lastProgressUpdate = time.Now()
	}
	job.mu.Unlock()

	if shouldPersist {
		if err := m.db.UpdateJobProgress(ctx, job.ID, current, total); err != nil {
			slog.Warn("failed to persist job progress", "job_id", job.ID, "error", err)
		}
	}
}

// Complete marks job as completed with result.
func (m *JobManager) Complete(ctx context.Context, job *Job, result *DirectoryResult) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Result = result
	job.CurrentFile = ""
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	if m.db != nil {
		if err := m.db.CompleteJob(ctx, job.ID, result.Summary()); err != nil {
			slog.Warn("failed to persist job completion", "job_id", job.ID, "error", err)
		}
	}

	slog.Info("job completed", "job_id", job.ID, "indexed", result.Indexed, "errors", len(result.Errors))
}

// Fail marks job as failed with error.
func (m *JobManager) Fail(ctx context.Context, job *Job, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	if m.db != nil {
		if dbErr := m.db.FailJob(ctx, job.ID, err.Error()); dbErr != nil {
			slog.Warn("failed to persist job failure", "job_id", job.ID, "error", dbErr)
		}
	}

	slog.Error("job failed", "job_id", job.ID, "error", err)
}

// RecoverInterrupted marks jobs a previous process left running as failed.
// Runs are not resumed; re-indexing skips unchanged episodes anyway.
func (m *JobManager) RecoverInterrupted(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	n, err := m.db.FailInterruptedJobs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("marked interrupted jobs as failed", "count", n)
	}
	return nil
}

// History returns persisted jobs, including those from earlier processes.
func (m *JobManager) History(ctx context.Context, limit int) ([]models.IndexJob, error) {
	if m.db == nil {
		return nil, nil
	}
	return m.db.ListIndexJobs(ctx, limit)
}
