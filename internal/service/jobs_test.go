package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/raphaelgruber/podsearch/internal/parser"
	"github.com/raphaelgruber/podsearch/internal/service"
	"github.com/raphaelgruber/podsearch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitJob(t *testing.T, job *service.Job) service.Job {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("job %s did not finish", job.ID)
	}
	return job.Snapshot()
}

func TestJobManagerRunsDirectory(t *testing.T) {
	ctx := context.Background()
	client := testutil.OpenTestDB(t)
	indexer := service.NewIndexService(client, testutil.NewStubEmbedder(testDim), parser.DefaultChunkConfig(), testDim, nil)
	jobs := service.NewJobManager(indexer, client)

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	job, err := jobs.Start(ctx, dir, service.IndexOptions{})
	require.NoError(t, err)
	assert.Len(t, job.ID, 8)

	snap := waitJob(t, job)
	assert.Equal(t, service.JobStatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.Progress)
	assert.Equal(t, 2, snap.Total)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 2, snap.Result.Indexed)
	assert.NotNil(t, snap.CompletedAt)

	assert.Same(t, job, jobs.GetJob(job.ID))
	assert.Nil(t, jobs.GetJob("nope"))

	history, err := jobs.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, job.ID, history[0].ID)
	assert.Equal(t, string(service.JobStatusCompleted), history[0].Status)
	assert.Equal(t, 2, history[0].Progress)
	assert.EqualValues(t, 2, history[0].Result["indexed"])
}

func TestJobManagerSerializesRuns(t *testing.T) {
	ctx := context.Background()
	client := testutil.OpenTestDB(t)
	indexer := service.NewIndexService(client, testutil.NewStubEmbedder(testDim), parser.DefaultChunkConfig(), testDim, nil)
	jobs := service.NewJobManager(indexer, client)

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "alpha", "b.txt": "beta", "c.txt": "gamma"})

	first, err := jobs.Start(ctx, dir, service.IndexOptions{})
	require.NoError(t, err)
	second, err := jobs.Start(ctx, dir, service.IndexOptions{})
	require.NoError(t, err)

	a, b := waitJob(t, first), waitJob(t, second)
	assert.Equal(t, service.JobStatusCompleted, a.Status)
	assert.Equal(t, service.JobStatusCompleted, b.Status)

	// whichever ran second found everything already indexed
	assert.Equal(t, 3, a.Result.Indexed+b.Result.Indexed)
	assert.Equal(t, 3, a.Result.Skipped+b.Result.Skipped)

	listed := jobs.ListJobs()
	require.Len(t, listed, 2)
	assert.False(t, listed[0].StartedAt.Before(listed[1].StartedAt))
}

func TestJobManagerMissingDirectory(t *testing.T) {
	client := testutil.OpenTestDB(t)
	indexer := service.NewIndexService(client, testutil.NewStubEmbedder(testDim), parser.DefaultChunkConfig(), testDim, nil)
	jobs := service.NewJobManager(indexer, client)

	_, err := jobs.Start(context.Background(), filepath.Join(t.TempDir(), "missing"), service.IndexOptions{})
	assert.ErrorIs(t, err, models.ErrInvalidQuery)
	assert.Empty(t, jobs.ListJobs())
}

func TestJobManagerCallsProgress(t *testing.T) {
	client := testutil.OpenTestDB(t)
	indexer := service.NewIndexService(client, testutil.NewStubEmbedder(testDim), parser.DefaultChunkConfig(), testDim, nil)
	jobs := service.NewJobManager(indexer, nil)

	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "alpha"})

	var files []string
	job, err := jobs.Start(context.Background(), dir, service.IndexOptions{
		Progress: func(done, total int, file string) { files = append(files, file) },
	})
	require.NoError(t, err)
	waitJob(t, job)
	assert.Equal(t, []string{"a.txt"}, files)

	history, err := jobs.History(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestJobManagerRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	client := testutil.OpenTestDB(t)
	require.NoError(t, client.CreateIndexJob(ctx, models.IndexJob{ID: "stale", DirPath: "/x", StartedAt: time.Now()}))

	jobs := service.NewJobManager(nil, client)
	require.NoError(t, jobs.RecoverInterrupted(ctx))

	history, err := jobs.History(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, string(service.JobStatusFailed), history[0].Status)
	require.NotNil(t, history[0].Error)
	assert.Equal(t, "interrupted", *history[0].Error)
}
