// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/northbound/fold/internal/eventbus"
	"github.com/northbound/fold/internal/git"
	"github.com/northbound/fold/internal/memory"
	"github.com/northbound/fold/internal/metadata"
)

// providerDependentJobs need the LLM and/or embedding providers to be up;
// claimed while down, they are paused rather than retried.
var providerDependentJobs = map[metadata.JobType]bool{
	metadata.JobIndexRepo:       true,
	metadata.JobReindexRepo:     true,
	metadata.JobIndexHistory:    true,
	metadata.JobGenerateSummary: true,
}

// runJob spawns the job's heartbeat, records an execution row, dispatches
// by job_type, and reports the outcome back to the queue.
func (w *Worker) runJob(ctx context.Context, job *metadata.Job) {
	if providerDependentJobs[job.JobType] && !w.providersAvailable.Load() {
		if err := w.Queue.Pause(ctx, job.ID, "providers_unavailable"); err != nil {
			log.Printf("worker %s: pause %s: %v", w.ID, job.ID, err)
		}
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeatJob(hbCtx, job.ID)

	execID, err := w.Meta.InsertJobExecution(ctx, &metadata.JobExecution{
		JobID:     job.ID,
		WorkerID:  w.ID,
		StartedAt: time.Now(),
		Status:    "running",
	})
	if err != nil {
		log.Printf("worker %s: insert job execution for %s: %v", w.ID, job.ID, err)
	}

	err = w.dispatch(ctx, job)
	stopHeartbeat()

	if err != nil {
		log.Printf("worker %s: job %s (%s) failed: %v", w.ID, job.ID, job.JobType, err)
		if execID != 0 {
			msg := err.Error()
			w.Meta.FinishJobExecution(ctx, execID, "failed", &msg)
		}
		if rerr := w.Queue.Retry(ctx, job.ID, err); rerr != nil {
			log.Printf("worker %s: retry %s: %v", w.ID, job.ID, rerr)
		}
		w.publish(ctx, eventbus.Event{Type: eventbus.EventJobStatusChanged, JobID: job.ID, JobType: string(job.JobType), Status: "failed", Message: err.Error()})
		return
	}

	if execID != 0 {
		w.Meta.FinishJobExecution(ctx, execID, "complete", nil)
	}
	if err := w.Queue.Complete(ctx, job.ID); err != nil {
		log.Printf("worker %s: complete %s: %v", w.ID, job.ID, err)
	}
	w.publish(ctx, eventbus.Event{Type: eventbus.EventJobStatusChanged, JobID: job.ID, JobType: string(job.JobType), Status: "complete"})
}

func (w *Worker) heartbeatJob(ctx context.Context, jobID string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := w.Queue.Heartbeat(ctx, jobID, w.ID)
			if err != nil {
				log.Printf("worker %s: heartbeat %s: %v", w.ID, jobID, err)
				continue
			}
			if !ok {
				return
			}
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job *metadata.Job) error {
	switch job.JobType {
	case metadata.JobIndexRepo:
		return w.handleIndexRepo(ctx, job)
	case metadata.JobReindexRepo:
		return w.handleReindexRepo(ctx, job)
	case metadata.JobIndexHistory:
		return w.handleIndexHistory(ctx, job)
	case metadata.JobSyncMetadata:
		return w.handleSyncMetadata(ctx, job)
	case metadata.JobProcessWebhook:
		return w.handleProcessWebhook(ctx, job)
	case metadata.JobGenerateSummary:
		return w.handleGenerateSummary(ctx, job)
	case metadata.JobCustom:
		return w.handleCustom(ctx, job)
	default:
		return fmt.Errorf("unknown job type %q", job.JobType)
	}
}

func (w *Worker) projectForJob(ctx context.Context, job *metadata.Job) (*metadata.Project, error) {
	if job.ProjectID == nil {
		return nil, fmt.Errorf("job %s has no project_id", job.ID)
	}
	p, err := w.Meta.GetProject(ctx, *job.ProjectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s not found", *job.ProjectID)
	}
	return p, nil
}

func (w *Worker) cloneProject(ctx context.Context, p *metadata.Project) (string, error) {
	token := tokenOf(p)
	provider := "github"
	if p.Provider != nil {
		provider = *p.Provider
	}
	branch := "main"
	if p.Branch != nil {
		branch = *p.Branch
	}
	owner, repo := "", ""
	if p.Owner != nil {
		owner = *p.Owner
	}
	if p.Repo != nil {
		repo = *p.Repo
	}
	return w.Local.CloneOrPull(ctx, w.BaseDir, p.Slug, owner, repo, branch, token, provider)
}

type indexRepoPayload struct {
	Files []string `json:"files"`
}

// handleIndexRepo ensures the clone exists, pulls latest, and indexes only
// payload.files[], skipping unknown/empty/large files as indexFile itself
// already does. Progress events fire every 10 files (spec §4.10 step per
// job: SSE-style progress, minus the HTTP/SSE transport).
func (w *Worker) handleIndexRepo(ctx context.Context, job *metadata.Job) error {
	p, err := w.projectForJob(ctx, job)
	if err != nil {
		return err
	}
	var payload indexRepoPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal index_repo payload: %w", err)
	}

	path, err := w.cloneProject(ctx, p)
	if err != nil {
		return fmt.Errorf("clone %s: %w", p.Slug, err)
	}

	seen := make(map[string]string)
	var indexed int
	for i, relpath := range payload.Files {
		ok, err := w.Indexer.IndexFile(ctx, p.ID, p.Slug, path, filepath.ToSlash(relpath), seen)
		if err != nil {
			log.Printf("worker %s: index %s in %s: %v", w.ID, relpath, p.Slug, err)
			continue
		}
		if ok {
			indexed++
		}
		if (i+1)%10 == 0 {
			w.publish(ctx, eventbus.Event{Type: eventbus.EventJobProgress, JobID: job.ID, JobType: string(job.JobType), ProjectID: p.ID, FilesIndexed: indexed, FilesTotal: len(payload.Files)})
		}
	}
	w.publish(ctx, eventbus.Event{Type: eventbus.EventJobProgress, JobID: job.ID, JobType: string(job.JobType), ProjectID: p.ID, FilesIndexed: indexed, FilesTotal: len(payload.Files)})
	return nil
}

// handleReindexRepo clears caches and re-walks the whole tree, then updates
// the project's HEAD sha.
func (w *Worker) handleReindexRepo(ctx context.Context, job *metadata.Job) error {
	p, err := w.projectForJob(ctx, job)
	if err != nil {
		return err
	}
	path, err := w.cloneProject(ctx, p)
	if err != nil {
		return fmt.Errorf("clone %s: %w", p.Slug, err)
	}

	w.Indexer.ClearCache(p.Slug)
	n, err := w.Indexer.IndexTree(ctx, p.ID, p.Slug, path)
	if err != nil {
		return fmt.Errorf("index tree %s: %w", p.Slug, err)
	}

	sha, err := w.Local.GetHeadSHA(ctx, path)
	if err != nil {
		return fmt.Errorf("head sha %s: %w", p.Slug, err)
	}
	p.LastCommitSHA = &sha
	if err := w.Meta.UpsertProject(ctx, p); err != nil {
		return fmt.Errorf("update head sha %s: %w", p.Slug, err)
	}

	log.Printf("worker %s: reindexed %d file(s) for %s", w.ID, n, p.Slug)
	return nil
}

// handleIndexHistory pulls recent commits via the git adapter and records a
// commit row for each; non-fast-forward is fine since commits are additive.
func (w *Worker) handleIndexHistory(ctx context.Context, job *metadata.Job) error {
	p, err := w.projectForJob(ctx, job)
	if err != nil {
		return err
	}
	if p.Provider == nil || p.Owner == nil || p.Repo == nil {
		return fmt.Errorf("project %s has no remote configured", p.Slug)
	}
	provider := w.NewProvider(*p.Provider, tokenOf(p))

	cursor := ""
	if p.LastCommitSHA != nil {
		cursor = *p.LastCommitSHA
	}
	events, err := provider.DetectChanges(ctx, *p.Owner, *p.Repo, cursor)
	if err != nil {
		return fmt.Errorf("detect changes %s: %w", p.Slug, err)
	}

	var newest string
	for _, e := range events {
		if e.Kind != "commit" {
			continue
		}
		if err := w.Meta.UpsertCommit(ctx, &metadata.Commit{
			SHA:         e.SHA,
			ProjectID:   p.ID,
			Author:      e.Author,
			Message:     e.Message,
			CommittedAt: e.Timestamp,
		}); err != nil {
			log.Printf("worker %s: upsert commit %s: %v", w.ID, e.SHA, err)
			continue
		}
		newest = e.SHA
	}
	if newest != "" {
		p.LastCommitSHA = &newest
		if err := w.Meta.UpsertProject(ctx, p); err != nil {
			log.Printf("worker %s: update cursor after history %s: %v", w.ID, p.Slug, err)
		}
	}
	return nil
}

// handleSyncMetadata implements §4.11: render every indexed memory for the
// project into .fold/ Markdown, then commit and push the diff as
// fold-meta-bot. A project with no memories or no Markdown diff is a no-op.
func (w *Worker) handleSyncMetadata(ctx context.Context, job *metadata.Job) error {
	p, err := w.projectForJob(ctx, job)
	if err != nil {
		return err
	}

	memories, err := w.Meta.ListMemoriesByProject(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("sync_metadata: list memories: %w", err)
	}
	if len(memories) == 0 {
		log.Printf("worker %s: sync_metadata: no memories for %s, nothing to sync", w.ID, p.Slug)
		return nil
	}

	linksByMemory := make(map[string][]*metadata.Link, len(memories))
	for _, m := range memories {
		links, err := w.Meta.GetLinksForMemory(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("sync_metadata: links for %s: %w", m.ID, err)
		}
		linksByMemory[m.ID] = links
	}

	repoPath, err := w.cloneProject(ctx, p)
	if err != nil {
		return fmt.Errorf("sync_metadata: clone: %w", err)
	}

	changed, err := materializeFoldDir(repoPath, memories, linksByMemory)
	if err != nil {
		return fmt.Errorf("sync_metadata: materialize: %w", err)
	}
	if len(changed) == 0 {
		log.Printf("worker %s: sync_metadata: %s up to date, nothing to commit", w.ID, p.Slug)
		return nil
	}

	branch := "main"
	if p.Branch != nil {
		branch = *p.Branch
	}
	provider := "github"
	if p.Provider != nil {
		provider = *p.Provider
	}
	sha, err := w.Local.CommitAndPush(ctx, repoPath, branch, changed, syncMetadataCommitMessage(len(changed)), tokenOf(p), provider)
	if err != nil {
		return fmt.Errorf("sync_metadata: commit and push: %w", err)
	}
	log.Printf("worker %s: sync_metadata: pushed %d file(s) for %s as %s", w.ID, len(changed), p.Slug, sha)
	return nil
}

type webhookPayload struct {
	EventType string          `json:"event_type"`
	Body      json.RawMessage `json:"body"`
}

// handleProcessWebhook dispatches by event_type: push events enqueue
// index_repo for the changed files; PR/MR events are logged only.
func (w *Worker) handleProcessWebhook(ctx context.Context, job *metadata.Job) error {
	p, err := w.projectForJob(ctx, job)
	if err != nil {
		return err
	}
	var payload webhookPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal process_webhook payload: %w", err)
	}
	if p.Provider == nil {
		return fmt.Errorf("project %s has no provider configured", p.Slug)
	}
	provider := w.NewProvider(*p.Provider, tokenOf(p))

	events, err := provider.ParseNotification(payload.EventType, payload.Body)
	if err != nil {
		return fmt.Errorf("parse notification: %w", err)
	}

	var changed []string
	for _, e := range events {
		switch e.Kind {
		case git.EventFileCreated, git.EventFileModified:
			changed = append(changed, e.Path)
		case git.EventPullRequest:
			log.Printf("worker %s: pull request event for %s (number=%d action=%s) logged only", w.ID, p.Slug, e.Number, e.Action)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	body, err := json.Marshal(indexRepoPayload{Files: changed})
	if err != nil {
		return err
	}
	if _, err := w.Queue.Enqueue(ctx, &p.ID, metadata.JobIndexRepo, json.RawMessage(body), 5, 0); err != nil {
		return fmt.Errorf("enqueue index_repo from webhook: %w", err)
	}
	return nil
}

type generateSummaryPayload struct {
	SummaryType string `json:"summary_type"`
	Content     string `json:"content"`
}

// handleGenerateSummary runs the LLM with a prompt chosen by summary_type
// and persists the result as a general memory whose context records the job
// id, since
// the job table itself carries no free-form result column.
func (w *Worker) handleGenerateSummary(ctx context.Context, job *metadata.Job) error {
	var payload generateSummaryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal generate_summary payload: %w", err)
	}
	if w.LLM == nil {
		return fmt.Errorf("no LLM router configured")
	}
	summary, ok := w.LLM.Summarize(ctx, payload.SummaryType, payload.Content)
	if !ok {
		return fmt.Errorf("summarize failed for job %s", job.ID)
	}

	projectRootPath := ""
	slug := ""
	if job.ProjectID != nil {
		if p, err := w.Meta.GetProject(ctx, *job.ProjectID); err == nil && p != nil {
			projectRootPath = p.RootPath
			slug = p.Slug
		}
	}
	jobContext := fmt.Sprintf("generate_summary job=%s type=%s", job.ID, payload.SummaryType)
	projectID := ""
	if job.ProjectID != nil {
		projectID = *job.ProjectID
	}
	_, err := w.Memory.Add(ctx, projectID, projectRootPath, slug, memoryCreateForSummary(summary, jobContext))
	return err
}

func (w *Worker) handleCustom(ctx context.Context, job *metadata.Job) error {
	log.Printf("worker %s: custom job %s payload=%s (no-op scaffold)", w.ID, job.ID, string(job.Payload))
	return nil
}

func memoryCreateForSummary(summary, jobContext string) memory.Create {
	return memory.Create{
		Type:    metadata.MemoryTypeGeneral,
		Source:  metadata.SourceAgent,
		Context: jobContext,
		Body:    summary,
	}
}
