// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package worker runs the background job loop (C11): claims jobs from the
// queue, heartbeats them while in flight, recovers stale leases, watches
// provider health to pause/resume provider-dependent jobs, and polls
// webhook-less projects for new commits.
package worker

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/northbound/fold/internal/embeddings"
	"github.com/northbound/fold/internal/eventbus"
	"github.com/northbound/fold/internal/git"
	"github.com/northbound/fold/internal/indexer"
	"github.com/northbound/fold/internal/llm"
	"github.com/northbound/fold/internal/memory"
	"github.com/northbound/fold/internal/metadata"
	"github.com/northbound/fold/internal/queue"
)

const (
	DefaultMaxConcurrentJobs = 5
	claimInterval            = 2 * time.Second
	heartbeatInterval        = 30 * time.Second
	recoveryInterval         = 60 * time.Second
	recoveryTTLSec           = 300
	providerWatchInterval    = 30 * time.Second
	repoPollInterval         = 300 * time.Second
)

// Worker owns one claim loop plus its supporting background loops. Multiple
// Workers (in-process or in separate processes) may share the same Queue;
// correctness rests on the queue's atomic claim and lease heartbeat, not on
// any lock here.
type Worker struct {
	ID string

	Queue    *queue.Queue
	Meta     *metadata.Store
	Memory   *memory.Service
	Indexer  *indexer.Indexer
	Local    *git.Local
	LLM      *llm.Router
	Embed    *embeddings.Router
	Bus      eventbus.Bus
	BaseDir  string // where project clones live, one subdirectory per slug

	MaxConcurrentJobs int

	// NewProvider constructs a git.Provider for a project's remote host.
	// Defaults to git.NewProvider; overridable for tests.
	NewProvider func(name, token string) git.Provider

	providersAvailable atomic.Bool
	inFlight           atomic.Int32
	wg                 sync.WaitGroup
}

// New constructs a Worker with a generated id (worker-<host>-<rand>).
func New(q *queue.Queue, meta *metadata.Store, mem *memory.Service, idx *indexer.Indexer, local *git.Local, llmRouter *llm.Router, embedRouter *embeddings.Router, bus eventbus.Bus, baseDir string) *Worker {
	w := &Worker{
		ID:                newWorkerID(),
		Queue:             q,
		Meta:              meta,
		Memory:            mem,
		Indexer:           idx,
		Local:             local,
		LLM:               llmRouter,
		Embed:             embedRouter,
		Bus:               bus,
		BaseDir:           baseDir,
		MaxConcurrentJobs: DefaultMaxConcurrentJobs,
		NewProvider:       git.NewProvider,
	}
	return w
}

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	var b [4]byte
	cryptorand.Read(b[:])
	return fmt.Sprintf("worker-%s-%s", host, hex.EncodeToString(b[:]))
}

// checkProviders reports whether the LLM and embedding routers currently
// have at least one available provider each; provider-dependent jobs pause
// when this is false.
func (w *Worker) checkProviders() bool {
	llmOK := w.LLM == nil || w.LLM.IsAvailable()
	embedOK := w.Embed == nil || w.Embed.HasProviders()
	return llmOK && embedOK
}

// Run starts the claim loop and the three supporting background loops; it
// blocks until ctx is cancelled, then waits for those four loops to return.
// In-flight jobs are not waited for: their heartbeats stop with ctx, their
// leases expire, and recovery requeues them — no explicit rollback is
// attempted.
func (w *Worker) Run(ctx context.Context) {
	w.providersAvailable.Store(w.checkProviders())
	log.Printf("worker %s: starting (providers_available=%v)", w.ID, w.providersAvailable.Load())

	w.wg.Add(4)
	go w.claimLoop(ctx)
	go w.recoveryLoop(ctx)
	go w.providerWatchLoop(ctx)
	go w.repoPollLoop(ctx)

	<-ctx.Done()
	w.wg.Wait()
	log.Printf("worker %s: stopped", w.ID)
}

func (w *Worker) claimLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for int(w.inFlight.Load()) < w.MaxConcurrentJobs {
				job, err := w.Queue.Claim(ctx, w.ID)
				if err != nil {
					log.Printf("worker %s: claim error: %v", w.ID, err)
					break
				}
				if job == nil {
					break
				}
				w.inFlight.Add(1)
				go func() {
					defer w.inFlight.Add(-1)
					w.runJob(ctx, job)
				}()
			}
		}
	}
}

func (w *Worker) recoveryLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Queue.RecoverStaleJobs(ctx, recoveryTTLSec)
			if err != nil {
				log.Printf("worker %s: recover stale jobs: %v", w.ID, err)
				continue
			}
			if n > 0 {
				log.Printf("worker %s: recovered %d stale job(s)", w.ID, n)
			}
		}
	}
}

func (w *Worker) providerWatchLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(providerWatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := w.checkProviders()
			was := w.providersAvailable.Swap(now)
			if was == now {
				continue
			}
			if now {
				log.Printf("worker %s: providers became available, resuming paused jobs", w.ID)
				if _, err := w.Queue.ResumePausedJobs(ctx); err != nil {
					log.Printf("worker %s: resume paused jobs: %v", w.ID, err)
				}
				w.publish(ctx, eventbus.Event{Type: eventbus.EventProviderAvailable})
			} else {
				log.Printf("worker %s: providers became unavailable", w.ID)
				w.publish(ctx, eventbus.Event{Type: eventbus.EventProviderUnavailable})
			}
		}
	}
}

// repoPollLoop fetches commits for projects configured to poll (a remote
// provider but no webhook) and enqueues sync_metadata when new commits land.
func (w *Worker) repoPollLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(repoPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollProjects(ctx)
		}
	}
}

func (w *Worker) pollProjects(ctx context.Context) {
	projects, err := w.Meta.ListProjects(ctx)
	if err != nil {
		log.Printf("worker %s: list projects for polling: %v", w.ID, err)
		return
	}
	for _, p := range projects {
		if p.Provider == nil || p.Owner == nil || p.Repo == nil {
			continue
		}
		provider := w.NewProvider(*p.Provider, tokenOf(p))
		if provider.SupportsWebhooks() && !provider.RequiresPolling() {
			continue
		}
		cursor := ""
		if p.LastCommitSHA != nil {
			cursor = *p.LastCommitSHA
		}
		events, err := provider.DetectChanges(ctx, *p.Owner, *p.Repo, cursor)
		if err != nil {
			log.Printf("worker %s: detect changes for %s: %v", w.ID, p.Slug, err)
			continue
		}
		if len(events) == 0 {
			continue
		}
		var newest string
		for _, e := range events {
			if e.Kind == "commit" {
				newest = e.SHA
			}
		}
		if newest == "" {
			continue
		}
		p.LastCommitSHA = &newest
		now := time.Now()
		p.LastSync = &now
		if err := w.Meta.UpsertProject(ctx, p); err != nil {
			log.Printf("worker %s: update cursor for %s: %v", w.ID, p.Slug, err)
			continue
		}
		if _, err := w.Queue.Enqueue(ctx, &p.ID, metadata.JobSyncMetadata, map[string]string{"project_id": p.ID}, 0, 0); err != nil {
			log.Printf("worker %s: enqueue sync_metadata for %s: %v", w.ID, p.Slug, err)
		}
	}
}

func tokenOf(p *metadata.Project) string {
	if p.AccessToken != nil {
		return *p.AccessToken
	}
	return ""
}

func (w *Worker) publish(ctx context.Context, e eventbus.Event) {
	if w.Bus == nil {
		return
	}
	e.Timestamp = time.Now()
	if err := w.Bus.Publish(ctx, e); err != nil {
		log.Printf("worker %s: publish event: %v", w.ID, err)
	}
}
