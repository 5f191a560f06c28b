package service

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ndemo/scalesep/internal/config"
	"github.com/ndemo/scalesep/internal/costs"
)

func testService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Archive.Dir = t.TempDir()
	cfg.Jobs.MaxConcurrent = 2
	cfg.Decomposition.Workers = 2

	s, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(10 * time.Second) })
	return s
}

// twoScaleRequest builds a small two-frequency decomposition request.
func twoScaleRequest(nSpace, nTime int) *JobRequest {
	dt := 0.05
	tv := make([]float64, nTime)
	for i := range tv {
		tv[i] = float64(i) * dt
	}

	data := make([][]float64, nSpace)
	for i := range data {
		data[i] = make([]float64, nTime)
		for j, t := range tv {
			data[i][j] = math.Cos(math.Pi/2*t+0.3*float64(i)) +
				0.5*math.Cos(2*math.Pi*t+0.5*float64(i))
		}
	}

	return &JobRequest{
		Data: data,
		Time: tv,
		Levels: []costs.LevelSpec{
			{WindowLength: 160, StepSize: 80, NumBands: 2, SVDRank: 4},
		},
	}
}

func waitForJob(t *testing.T, s *Service, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.Get(id)
		require.NoError(t, err)
		if job.State == JobCompleted || job.State == JobFailed {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return nil
}

func TestSubmitAndComplete(t *testing.T) {
	s := testService(t)

	job, err := s.Submit(context.Background(), twoScaleRequest(6, 480))
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	done := waitForJob(t, s, job.ID)
	require.Equal(t, JobCompleted, done.State, "job error: %s", done.Error)
	assert.Equal(t, 1, done.Levels)
	assert.NotEmpty(t, done.ArchivePath)

	if _, err := os.Stat(done.ArchivePath); err != nil {
		t.Errorf("archive file missing: %v", err)
	}
}

func TestResult(t *testing.T) {
	s := testService(t)

	job, err := s.Submit(context.Background(), twoScaleRequest(6, 480))
	require.NoError(t, err)
	waitForJob(t, s, job.ID)

	levels, err := s.Result(job.ID)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, 160, levels[0].WindowLength)
	assert.Equal(t, 2, levels[0].NumBands)
	assert.Equal(t, 4, levels[0].Rank)

	// Result survives in-memory eviction by reloading from the archive.
	s.mu.Lock()
	delete(s.results, job.ID)
	s.mu.Unlock()

	reloaded, err := s.Result(job.ID)
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.Equal(t, levels[0].Rank, reloaded[0].Rank)
}

func TestSubmitValidation(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	_, err := s.Submit(ctx, &JobRequest{})
	assert.Error(t, err, "empty request")

	req := twoScaleRequest(6, 480)
	req.Data[2] = req.Data[2][:100]
	_, err = s.Submit(ctx, req)
	assert.Error(t, err, "ragged data rows")

	req = twoScaleRequest(6, 480)
	req.Time = req.Time[:10]
	_, err = s.Submit(ctx, req)
	assert.Error(t, err, "short time vector")

	req = twoScaleRequest(6, 480)
	req.Levels = nil
	_, err = s.Submit(ctx, req)
	assert.Error(t, err, "no levels")

	req = twoScaleRequest(6, 480)
	req.Levels[0].WindowLength = 10_000
	_, err = s.Submit(ctx, req)
	assert.Error(t, err, "window longer than the series")
}

func TestGetUnknownJob(t *testing.T) {
	s := testService(t)
	_, err := s.Get("no-such-job")
	assert.Error(t, err)
}

func TestResultNotReady(t *testing.T) {
	s := testService(t)

	s.mu.Lock()
	s.jobs["stuck"] = &Job{ID: "stuck", State: JobRunning}
	s.mu.Unlock()

	_, err := s.Result("stuck")
	assert.Error(t, err)
}

func TestFailedJobReportsError(t *testing.T) {
	s := testService(t)

	// Non-finite data passes request validation but fails the fit.
	req := twoScaleRequest(6, 480)
	req.Data[0][0] = math.NaN()

	job, err := s.Submit(context.Background(), req)
	require.NoError(t, err)

	done := waitForJob(t, s, job.ID)
	assert.Equal(t, JobFailed, done.State)
	assert.NotEmpty(t, done.Error)

	_, err = s.Result(job.ID)
	assert.Error(t, err)
}

func TestEvictExpired(t *testing.T) {
	s := testService(t)

	s.mu.Lock()
	s.jobs["old"] = &Job{
		ID:         "old",
		State:      JobCompleted,
		FinishedAt: time.Now().Add(-48 * time.Hour),
	}
	s.jobs["fresh"] = &Job{
		ID:         "fresh",
		State:      JobCompleted,
		FinishedAt: time.Now(),
	}
	s.mu.Unlock()

	s.evictExpired(time.Now())

	_, err := s.Get("old")
	assert.Error(t, err, "expired job should be gone")
	_, err = s.Get("fresh")
	assert.NoError(t, err)
}

func TestList(t *testing.T) {
	s := testService(t)

	job, err := s.Submit(context.Background(), twoScaleRequest(6, 480))
	require.NoError(t, err)
	waitForJob(t, s, job.ID)

	jobs := s.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}
