// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertJob creates a new job in pending status. Atomic claim, heartbeat,
// retry-with-backoff and pause/resume live in internal/queue, which shares
// this Store's underlying *sql.DB.
func (s *Store) InsertJob(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, project_id, job_type, payload, status, priority, retry_count,
			max_retries, locked_by, locked_until, heartbeat_at, scheduled_at,
			started_at, finished_at, progress_indexed, progress_failed, progress_total
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ProjectID, string(j.JobType), string(j.Payload), string(j.Status), j.Priority,
		j.RetryCount, j.MaxRetries, j.LockedBy, j.LockedUntil, j.HeartbeatAt, j.ScheduledAt,
		j.StartedAt, j.FinishedAt, j.ProgressIndexed, j.ProgressFailed, j.ProgressTotal,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return nil
}

const jobSelectColumns = `
	SELECT id, project_id, job_type, payload, status, priority, retry_count,
		max_retries, locked_by, locked_until, heartbeat_at, scheduled_at,
		started_at, finished_at, progress_indexed, progress_failed, progress_total`

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+" FROM jobs WHERE id = ?", id)
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ListJobsByStatus returns jobs in a given status, highest priority and
// oldest-scheduled first, matching the jobs(status, priority DESC,
// scheduled_at) index.
func (s *Store) ListJobsByStatus(ctx context.Context, status JobStatus) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		jobSelectColumns+" FROM jobs WHERE status = ? ORDER BY priority DESC, scheduled_at ASC",
		string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJobRow(row rowScanner) (*Job, error) {
	var j Job
	var jobType, status, payload string
	if err := row.Scan(
		&j.ID, &j.ProjectID, &jobType, &payload, &status, &j.Priority, &j.RetryCount,
		&j.MaxRetries, &j.LockedBy, &j.LockedUntil, &j.HeartbeatAt, &j.ScheduledAt,
		&j.StartedAt, &j.FinishedAt, &j.ProgressIndexed, &j.ProgressFailed, &j.ProgressTotal,
	); err != nil {
		return nil, err
	}
	j.JobType = JobType(jobType)
	j.Status = JobStatus(status)
	j.Payload = []byte(payload)
	return &j, nil
}

// InsertJobExecution records the start of one claim-to-completion attempt.
func (s *Store) InsertJobExecution(ctx context.Context, e *JobExecution) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_executions (job_id, worker_id, started_at, finished_at, status, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.JobID, e.WorkerID, e.StartedAt, e.FinishedAt, e.Status, e.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("insert job execution for %s: %w", e.JobID, err)
	}
	return res.LastInsertId()
}

// FinishJobExecution records the terminal status of an execution.
func (s *Store) FinishJobExecution(ctx context.Context, executionID int64, status string, execErr *string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE job_executions SET finished_at = CURRENT_TIMESTAMP, status = ?, error = ? WHERE id = ?",
		status, execErr, executionID)
	return err
}
