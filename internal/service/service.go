// Package service runs decomposition jobs: submission, asynchronous
// execution on a bounded pool, result archiving and retrieval.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/archive"
	"github.com/ndemo/scalesep/internal/config"
	"github.com/ndemo/scalesep/internal/costs"
	"github.com/ndemo/scalesep/internal/errors"
	"github.com/ndemo/scalesep/internal/metrics"
	"github.com/ndemo/scalesep/internal/window"
	"github.com/ndemo/scalesep/internal/workerpool"
)

// JobState is the lifecycle state of a decomposition job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobRequest describes a decomposition to run. Data is laid out as one row
// per spatial channel.
type JobRequest struct {
	Data   [][]float64
	Time   []float64
	Levels []costs.LevelSpec
}

// Job tracks one decomposition through its lifecycle.
type Job struct {
	ID          string
	State       JobState
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Error       string
	Levels      int
	ArchivePath string
}

// Service owns the job table and the execution pool.
type Service struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	pool    *workerpool.Pool

	mu      sync.RWMutex
	jobs    map[string]*Job
	results map[string][]*costs.LevelData
	closed  bool

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// New builds the service and starts its execution pool.
func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Archive.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		jobs:    make(map[string]*Job),
		results: make(map[string][]*costs.LevelData),
		pool: workerpool.New(workerpool.Config{
			Name:      "decomposition-jobs",
			Workers:   cfg.Jobs.MaxConcurrent,
			QueueSize: cfg.Jobs.QueueSize,
			Logger:    logger,
		}),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go s.janitor()

	return s, nil
}

// Submit validates the request, registers a pending job and queues it for
// execution.
func (s *Service) Submit(ctx context.Context, req *JobRequest) (*Job, error) {
	data, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:          uuid.New().String(),
		State:       JobPending,
		SubmittedAt: time.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.Unavailable("service is shutting down", nil)
	}
	s.jobs[job.ID] = job
	s.mu.Unlock()

	task := workerpool.Task{
		ID: job.ID,
		Fn: func(context.Context) error {
			s.runJob(job.ID, data, req)
			return nil
		},
	}
	if err := s.pool.Submit(task); err != nil {
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return nil, errors.ResourceExhausted("job queue", s.cfg.Jobs.QueueSize, s.cfg.Jobs.QueueSize)
	}

	if s.metrics != nil {
		s.metrics.RecordJobSubmitted()
		stats := s.pool.Stats()
		s.metrics.UpdateJobQueue(stats.Active, stats.Queued)
	}
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.Int("num_space", len(req.Data)),
		zap.Int("num_time", len(req.Time)),
		zap.Int("levels", len(req.Levels)))

	return s.snapshot(job.ID)
}

// validate checks the request and builds the data matrix.
func (s *Service) validate(req *JobRequest) (*mat.Dense, error) {
	if req == nil || len(req.Data) == 0 || len(req.Data[0]) == 0 {
		return nil, errors.InvalidArgument("data must not be empty", nil)
	}
	nSpace := len(req.Data)
	nTime := len(req.Data[0])
	for i, row := range req.Data {
		if len(row) != nTime {
			return nil, errors.InvalidArgument(
				fmt.Sprintf("data row %d has %d samples, want %d", i, len(row), nTime), nil)
		}
	}
	if len(req.Time) != nTime {
		return nil, errors.InvalidArgument(
			fmt.Sprintf("time vector has %d entries, want %d", len(req.Time), nTime), nil)
	}
	if elements := nSpace * nTime; elements > s.cfg.Decomposition.MaxDataElements {
		return nil, errors.DataTooLarge(elements, s.cfg.Decomposition.MaxDataElements)
	}

	if len(req.Levels) == 0 {
		return nil, errors.InvalidArgument("at least one decomposition level is required", nil)
	}
	if len(req.Levels) > s.cfg.Decomposition.MaxLevels {
		return nil, errors.InvalidArgument(
			fmt.Sprintf("requested %d levels, maximum is %d", len(req.Levels), s.cfg.Decomposition.MaxLevels), nil)
	}
	for _, spec := range req.Levels {
		if _, err := window.NewPlan(nTime, spec.WindowLength, spec.StepSize); err != nil {
			return nil, errors.InvalidWindow(spec.WindowLength, spec.StepSize, nTime)
		}
	}

	data := mat.NewDense(nSpace, nTime, nil)
	for i, row := range req.Data {
		for j, v := range row {
			data.Set(i, j, v)
		}
	}
	return data, nil
}

// runJob executes the decomposition and archives the result.
func (s *Service) runJob(id string, data *mat.Dense, req *JobRequest) {
	start := time.Now()
	s.setState(id, func(j *Job) {
		j.State = JobRunning
		j.StartedAt = start
	})
	logger := s.logger.With(zap.String("job_id", id))
	logger.Info("job started")

	opts := costs.DefaultOptions()
	opts.Workers = s.cfg.Decomposition.Workers
	opts.RelativeFilterLength = s.cfg.Decomposition.RelativeFilterLength
	opts.CornerSharpness = s.cfg.Decomposition.CornerSharpness
	opts.Logger = logger
	opts.Metrics = s.metrics

	result, err := costs.FitLevels(context.Background(), data, req.Time, req.Levels, opts)
	if err != nil {
		// Clustering failures carry their own code; everything else is a
		// fit failure.
		if errors.IsDecompError(err) {
			s.fail(id, start, err)
		} else {
			s.fail(id, start, errors.FitFailed("decomposition failed", err))
		}
		return
	}

	levels, err := result.Export()
	if err != nil {
		s.fail(id, start, errors.InternalError("exporting levels failed", err))
		return
	}

	path := filepath.Join(s.cfg.Archive.Dir, id+".ssa")
	archiveStart := time.Now()
	if err := archive.Write(path, levels); err != nil {
		s.fail(id, start, errors.ArchiveFailed("writing archive failed", err))
		return
	}
	if s.metrics != nil {
		if info, statErr := os.Stat(path); statErr == nil {
			s.metrics.RecordArchiveWrite(time.Since(archiveStart).Seconds(), info.Size())
		}
		s.metrics.RecordLevels(len(levels))
	}

	s.mu.Lock()
	s.results[id] = levels
	s.mu.Unlock()

	s.setState(id, func(j *Job) {
		j.State = JobCompleted
		j.FinishedAt = time.Now()
		j.Levels = len(levels)
		j.ArchivePath = path
	})
	s.recordFinished(string(JobCompleted), start)
	logger.Info("job completed",
		zap.Int("levels", len(levels)),
		zap.Duration("duration", time.Since(start)))
}

func (s *Service) fail(id string, start time.Time, err error) {
	s.setState(id, func(j *Job) {
		j.State = JobFailed
		j.FinishedAt = time.Now()
		j.Error = err.Error()
	})
	s.recordFinished(string(JobFailed), start)
	s.logger.Error("job failed", zap.String("job_id", id), zap.Error(err))
}

func (s *Service) recordFinished(status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordJobFinished(status, time.Since(start).Seconds())
	stats := s.pool.Stats()
	s.metrics.UpdateJobQueue(stats.Active, stats.Queued)
}

func (s *Service) setState(id string, update func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		update(job)
	}
}

// Get returns a snapshot of one job.
func (s *Service) Get(id string) (*Job, error) {
	return s.snapshot(id)
}

func (s *Service) snapshot(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.JobNotFound(id)
	}
	copied := *job
	return &copied, nil
}

// Result returns the fitted levels of a completed job, reloading them from
// the archive when they have been evicted from memory.
func (s *Service) Result(id string) ([]*costs.LevelData, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.RUnlock()
		return nil, errors.JobNotFound(id)
	}
	state := job.State
	path := job.ArchivePath
	levels := s.results[id]
	s.mu.RUnlock()

	switch state {
	case JobCompleted:
	case JobFailed:
		return nil, errors.FitFailed(fmt.Sprintf("job %s failed: %s", id, job.Error), nil)
	default:
		return nil, errors.JobNotReady(id, string(state))
	}

	if levels != nil {
		return levels, nil
	}

	loaded, err := archive.Read(path)
	if err != nil {
		return nil, errors.CorruptedData(fmt.Sprintf("reading archive for job %s", id), err)
	}
	if s.metrics != nil {
		s.metrics.RecordArchiveRead()
	}
	return loaded, nil
}

// Ready reports whether the service accepts new jobs.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// List returns snapshots of every known job.
func (s *Service) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		out = append(out, &copied)
	}
	return out
}

// janitor drops finished jobs past the retention window. The archive files
// stay on disk.
func (s *Service) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.janitorStop:
			return
		case <-ticker.C:
			s.evictExpired(time.Now())
		}
	}
}

func (s *Service) evictExpired(now time.Time) {
	cutoff := now.Add(-s.cfg.Jobs.Retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.State != JobCompleted && job.State != JobFailed {
			continue
		}
		if job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.results, id)
			s.logger.Debug("job evicted", zap.String("job_id", id))
		}
	}
}

// Close stops accepting jobs and shuts the pool down.
func (s *Service) Close(timeout time.Duration) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	close(s.janitorStop)
	<-s.janitorDone

	return s.pool.Stop(timeout)
}
