// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/northbound/fold/internal/metadata"
)

func newTestQueue(t *testing.T) (*Queue, *metadata.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := metadata.Open(dbPath)
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func TestEnqueueClaimOrdersByPriorityThenAge(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	low, err := q.Enqueue(ctx, nil, metadata.JobCustom, map[string]string{"n": "low"}, 1, 0)
	if err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	high, err := q.Enqueue(ctx, nil, metadata.JobCustom, map[string]string{"n": "high"}, 10, 0)
	if err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	claimed, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != high.ID {
		t.Fatalf("expected higher-priority job %s claimed first, got %+v", high.ID, claimed)
	}

	claimed2, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed2 == nil || claimed2.ID != low.ID {
		t.Fatalf("expected remaining job %s, got %+v", low.ID, claimed2)
	}
}

func TestClaimSkipsNotYetScheduled(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, nil, metadata.JobCustom, nil, 0, time.Hour); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := q.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no claimable job, got %+v", claimed)
	}
}

func TestClaimMarksRunningAndSetsLock(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Enqueue(ctx, nil, metadata.JobCustom, nil, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != metadata.JobRunning {
		t.Fatalf("expected running, got %s", got.Status)
	}
	if got.LockedBy == nil || *got.LockedBy != "worker-1" {
		t.Fatalf("expected lock held by worker-1, got %+v", got.LockedBy)
	}
}

func TestHeartbeatRejectsWrongOwner(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Enqueue(ctx, nil, metadata.JobCustom, nil, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	ok, err := q.Heartbeat(ctx, j.ID, "worker-2")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if ok {
		t.Fatal("expected heartbeat from non-owning worker to fail")
	}

	ok, err = q.Heartbeat(ctx, j.ID, "worker-1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !ok {
		t.Fatal("expected heartbeat from owning worker to succeed")
	}
}

func TestCompleteSetsTerminalStatus(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Enqueue(ctx, nil, metadata.JobCustom, nil, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.Complete(ctx, j.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != metadata.JobComplete {
		t.Fatalf("expected complete, got %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
}

func TestRetryReschedulesUnderMaxRetries(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Enqueue(ctx, nil, metadata.JobCustom, nil, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.Retry(ctx, j.ID, errors.New("transient failure")); err != nil {
		t.Fatalf("retry: %v", err)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != metadata.JobPending {
		t.Fatalf("expected pending after retry, got %s", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", got.RetryCount)
	}
	if !got.ScheduledAt.After(time.Now()) {
		t.Fatal("expected scheduled_at pushed into the future by backoff")
	}
}

func TestRetryFailsPermanentlyPastMaxRetries(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Enqueue(ctx, nil, metadata.JobCustom, nil, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, "UPDATE jobs SET max_retries = 0 WHERE id = ?", j.ID); err != nil {
		t.Fatalf("force max_retries: %v", err)
	}
	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.Retry(ctx, j.ID, errors.New("still failing")); err != nil {
		t.Fatalf("retry: %v", err)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != metadata.JobFailed {
		t.Fatalf("expected failed once max_retries is exceeded, got %s", got.Status)
	}
}

func TestPauseAndResumePausedJobs(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Enqueue(ctx, nil, metadata.JobIndexRepo, nil, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.Pause(ctx, j.ID, "providers_unavailable"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != metadata.JobPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}

	n, err := q.ResumePausedJobs(ctx)
	if err != nil {
		t.Fatalf("resume paused jobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 resumed job, got %d", n)
	}

	claimed, err := q.Claim(ctx, "worker-2")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != j.ID {
		t.Fatal("expected resumed job to be claimable again")
	}
}

func TestRecoverStaleJobsRequeuesExpiredLease(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	j, err := q.Enqueue(ctx, nil, metadata.JobCustom, nil, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	past := time.Now().Add(-time.Hour)
	if _, err := store.DB().ExecContext(ctx, "UPDATE jobs SET locked_until = ? WHERE id = ?", past, j.ID); err != nil {
		t.Fatalf("force-expire lease: %v", err)
	}

	n, err := q.RecoverStaleJobs(ctx, 300)
	if err != nil {
		t.Fatalf("recover stale jobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 recovered job, got %d", n)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != metadata.JobPending {
		t.Fatalf("expected pending after recovery, got %s", got.Status)
	}
	if got.RetryCount != 0 {
		t.Fatalf("expected retry_count preserved at 0, got %d", got.RetryCount)
	}
}
