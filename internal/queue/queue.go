// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/northbound/fold/internal/metadata"
)

const (
	// DefaultLeaseTTL is how long a claim holds a job before it is eligible
	// for recovery if the worker goes silent.
	DefaultLeaseTTL = 5 * time.Minute

	backoffBase = 30 * time.Second
	backoffCap  = 30 * time.Minute
)

// Queue is the durable, sqlite-backed job queue (C11). It shares its
// *sql.DB with the metadata store, so a claim and its accompanying
// progress/status writes serialize under the store's WAL.
type Queue struct {
	db   *sql.DB
	meta *metadata.Store
}

// New wraps a metadata store's database for queue operations.
func New(meta *metadata.Store) *Queue {
	return &Queue{db: meta.DB(), meta: meta}
}

// Enqueue inserts a new job in pending status, scheduled after initialDelay.
func (q *Queue) Enqueue(ctx context.Context, projectID *string, jobType metadata.JobType, payload interface{}, priority int, initialDelay time.Duration) (*metadata.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal payload: %w", err)
	}
	j := &metadata.Job{
		ID:          newJobID(),
		ProjectID:   projectID,
		JobType:     jobType,
		Payload:     raw,
		Status:      metadata.JobPending,
		Priority:    priority,
		MaxRetries:  3,
		ScheduledAt: time.Now().Add(initialDelay),
	}
	if err := q.meta.InsertJob(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Claim atomically selects the next runnable job — highest priority,
// oldest scheduled_at — and marks it running under workerID. Returns nil,
// nil when no job is ready. mattn/go-sqlite3 has no UPDATE ... RETURNING,
// so the claim is select-id-then-conditional-update-by-id; the store's
// single-writer connection pool (SetMaxOpenConns(1)) serializes the pair
// against other claimers in this process, and the rowsAffected check below
// guards against a cross-process race on the same database file.
func (q *Queue) Claim(ctx context.Context, workerID string) (*metadata.Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM jobs
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT 1`, string(metadata.JobPending), time.Now()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: select claimable job: %w", err)
	}

	lockedUntil := time.Now().Add(DefaultLeaseTTL)
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, locked_by = ?, locked_until = ?,
			started_at = CURRENT_TIMESTAMP, heartbeat_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
		string(metadata.JobRunning), workerID, lockedUntil, id, string(metadata.JobPending))
	if err != nil {
		return nil, fmt.Errorf("queue: claim update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost the race to another claimer between select and update.
		return nil, tx.Commit()
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: commit claim: %w", err)
	}
	return q.meta.GetJob(ctx, id)
}

// Heartbeat extends a claimed job's lease. Returns false if the job is no
// longer owned by workerID (already recovered, completed, or retried).
func (q *Queue) Heartbeat(ctx context.Context, jobID, workerID string) (bool, error) {
	lockedUntil := time.Now().Add(DefaultLeaseTTL)
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET locked_until = ?, heartbeat_at = CURRENT_TIMESTAMP
		WHERE id = ? AND locked_by = ? AND status = ?`,
		lockedUntil, jobID, workerID, string(metadata.JobRunning))
	if err != nil {
		return false, fmt.Errorf("queue: heartbeat %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Complete marks a job finished successfully.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, finished_at = CURRENT_TIMESTAMP, locked_by = NULL
		WHERE id = ?`, string(metadata.JobComplete), jobID)
	if err != nil {
		return fmt.Errorf("queue: complete %s: %w", jobID, err)
	}
	return nil
}

// Retry reschedules a failed job with exponential backoff, or marks it
// permanently failed once max_retries is exceeded.
func (q *Queue) Retry(ctx context.Context, jobID string, cause error) error {
	j, err := q.meta.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j == nil {
		return fmt.Errorf("queue: retry: job %s not found", jobID)
	}

	nextAttempt := j.RetryCount + 1
	if nextAttempt > j.MaxRetries {
		_, err := q.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, finished_at = CURRENT_TIMESTAMP, locked_by = NULL
			WHERE id = ?`, string(metadata.JobFailed), jobID)
		if err != nil {
			return fmt.Errorf("queue: fail %s: %w", jobID, err)
		}
		log.Printf("queue: job %s exhausted retries (%d/%d): %v", jobID, j.RetryCount, j.MaxRetries, cause)
		return nil
	}

	delay := backoff(nextAttempt)
	_, err = q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, retry_count = ?, locked_by = NULL, scheduled_at = ?
		WHERE id = ?`, string(metadata.JobPending), nextAttempt, time.Now().Add(delay), jobID)
	if err != nil {
		return fmt.Errorf("queue: retry %s: %w", jobID, err)
	}
	log.Printf("queue: job %s scheduled for retry %d/%d in %s: %v", jobID, nextAttempt, j.MaxRetries, delay, cause)
	return nil
}

// backoff implements base*2^n capped per spec (base=30s, cap=30min), with
// up to 20% jitter so a batch of recovered workers doesn't retry in lockstep.
func backoff(attempt int) time.Duration {
	d := backoffBase
	for i := 0; i < attempt-1 && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		d = backoffCap
	}
	return d + time.Duration(float64(d)*0.2*jitterFraction())
}

// jitterFraction returns a value in [0, 1) sourced from crypto/rand; backoff
// jitter has no correctness requirement, but a package-level math/rand would
// need its own seeding story for no benefit.
func jitterFraction() float64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return 0
	}
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Pause sets a job's status to paused, used when a provider the job needs
// (LLM or embeddings) is currently unavailable.
func (q *Queue) Pause(ctx context.Context, jobID, reason string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`,
		string(metadata.JobPaused), jobID)
	if err != nil {
		return fmt.Errorf("queue: pause %s: %w", jobID, err)
	}
	log.Printf("queue: job %s paused: %s", jobID, reason)
	return nil
}

// ResumePausedJobs moves every paused job back to pending, scheduled now.
// Called when a previously-down provider becomes available again.
func (q *Queue) ResumePausedJobs(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, scheduled_at = ?
		WHERE status = ?`, string(metadata.JobPending), time.Now(), string(metadata.JobPaused))
	if err != nil {
		return 0, fmt.Errorf("queue: resume paused jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if n > 0 {
		log.Printf("queue: resumed %d paused job(s)", n)
	}
	return n, err
}

// RecoverStaleJobs reschedules running jobs whose lease expired more than
// ttlSec ago, preserving retry_count — lease expiry is not itself a retry
// attempt.
func (q *Queue) RecoverStaleJobs(ctx context.Context, ttlSec int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(ttlSec) * time.Second)
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM jobs WHERE status = ? AND locked_until < ?`,
		string(metadata.JobRunning), cutoff)
	if err != nil {
		return 0, fmt.Errorf("queue: select stale jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var recovered int64
	for _, id := range ids {
		_, err := q.db.ExecContext(ctx, `
			UPDATE jobs SET status = ?, locked_by = NULL, scheduled_at = ?
			WHERE id = ? AND status = ?`,
			string(metadata.JobPending), time.Now(), id, string(metadata.JobRunning))
		if err != nil {
			return recovered, fmt.Errorf("queue: recover stale job %s: %w", id, err)
		}
		recovered++
		log.Printf("queue: recovered stale job %s (lease expired)", id)
	}
	return recovered, nil
}

func newJobID() string {
	var b [16]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b[:])
}
