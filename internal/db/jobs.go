package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/raphaelgruber/podsearch/internal/models"
)

// Job statuses as stored.
const (
	jobStatusRunning   = "running"
	jobStatusCompleted = "completed"
	jobStatusFailed    = "failed"
)

// CreateIndexJob persists a new running job.
func (c *Client) CreateIndexJob(ctx context.Context, job models.IndexJob) error {
	if job.Status == "" {
		job.Status = jobStatusRunning
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO index_jobs (id, status, dir_path, force, prune, total, progress, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Status, job.DirPath, job.Force, job.Prune, job.Total, job.Progress, formatTime(job.StartedAt))
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, wrapQueryError(err))
	}
	return nil
}

// UpdateJobProgress records how many files a job has processed.
func (c *Client) UpdateJobProgress(ctx context.Context, id string, progress, total int) error {
	_, err := c.db.ExecContext(ctx, `UPDATE index_jobs SET progress = ?, total = ? WHERE id = ?`, progress, total, id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return nil
}

// CompleteJob marks a job completed with its result summary.
func (c *Client) CompleteJob(ctx context.Context, id string, result map[string]any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = ?, result = ?, completed_at = ? WHERE id = ?`,
		jobStatusCompleted, string(raw), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// FailJob marks a job failed.
func (c *Client) FailJob(ctx context.Context, id, message string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		jobStatusFailed, message, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

// ListIndexJobs returns the most recent jobs first, up to limit.
func (c *Client) ListIndexJobs(ctx context.Context, limit int) ([]models.IndexJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, status, dir_path, force, prune, total, progress, result, error, started_at, completed_at
		FROM index_jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.IndexJob
	for rows.Next() {
		var (
			j              models.IndexJob
			result, errMsg sql.NullString
			started        string
			completed      sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.Status, &j.DirPath, &j.Force, &j.Prune, &j.Total, &j.Progress,
			&result, &errMsg, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if result.Valid {
			if err := json.Unmarshal([]byte(result.String), &j.Result); err != nil {
				return nil, fmt.Errorf("decode job %s result: %w", j.ID, err)
			}
		}
		if errMsg.Valid {
			j.Error = &errMsg.String
		}
		j.StartedAt = parseTime(started)
		j.CompletedAt = parseNullTime(completed)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FailInterruptedJobs marks jobs left running by a previous process as failed.
// Returns how many were updated.
func (c *Client) FailInterruptedJobs(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = ?, error = ?, completed_at = ? WHERE status = ?`,
		jobStatusFailed, "interrupted", formatTime(time.Now()), jobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
