// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/northbound/fold/internal/embeddings"
	"github.com/northbound/fold/internal/git"
	"github.com/northbound/fold/internal/indexer"
	"github.com/northbound/fold/internal/llm"
	"github.com/northbound/fold/internal/memory"
	"github.com/northbound/fold/internal/metadata"
	"github.com/northbound/fold/internal/queue"
	"github.com/northbound/fold/internal/vectordb"
)

type fakeExecutor struct{}

func (fakeExecutor) Run(ctx context.Context, dir string, args ...string) (string, error) {
	switch args[0] {
	case "rev-parse":
		return "deadbeef\n", nil
	case "remote":
		return "", nil
	}
	return "", nil
}

func newTestWorker(t *testing.T) (*Worker, *metadata.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := metadata.Open(dbPath)
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	embedRouter, err := embeddings.NewRouter([]embeddings.ProviderConfig{{Name: "mock", Priority: 1}}, 384)
	if err != nil {
		t.Fatalf("new embed router: %v", err)
	}
	llmRouter := llm.NewRouter([]llm.ProviderConfig{{Name: "mock", Priority: 1}})
	vdb := vectordb.NewMockVectorDB()
	memSvc := memory.New(store, vdb, embedRouter, llmRouter, "fold_")
	idx := indexer.New(memSvc, embedRouter, vdb, indexer.Options{})
	local := git.NewLocal(fakeExecutor{})
	q := queue.New(store)

	w := New(q, store, memSvc, idx, local, llmRouter, embedRouter, nil, t.TempDir())
	return w, store
}

func TestCheckProvidersTrueWithMocks(t *testing.T) {
	w, _ := newTestWorker(t)
	if !w.checkProviders() {
		t.Fatal("expected mock providers to report available")
	}
}

func TestRunJobPausesProviderDependentJobWhenUnavailable(t *testing.T) {
	w, store := newTestWorker(t)
	w.providersAvailable.Store(false)

	j, err := w.Queue.Enqueue(context.Background(), nil, metadata.JobIndexRepo, indexRepoPayload{}, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := w.Queue.Claim(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected claim to succeed")
	}

	w.runJob(context.Background(), claimed)

	got, err := store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != metadata.JobPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
}

func TestRunJobCompletesCustomJob(t *testing.T) {
	w, store := newTestWorker(t)

	j, err := w.Queue.Enqueue(context.Background(), nil, metadata.JobCustom, map[string]string{"x": "y"}, 0, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := w.Queue.Claim(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	w.runJob(context.Background(), claimed)

	got, err := store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != metadata.JobComplete {
		t.Fatalf("expected complete, got %s", got.Status)
	}
}

func TestHandleIndexRepoIndexesListedFiles(t *testing.T) {
	w, store := newTestWorker(t)
	ctx := context.Background()

	root := filepath.Join(w.BaseDir, "acme-widgets")
	writeTestFile(t, root, "main.go", "package main\nfunc main() {}\n")
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}

	p := &metadata.Project{ID: "p1", Slug: "acme-widgets", Name: "widgets", RootPath: root}
	if err := store.UpsertProject(ctx, p); err != nil {
		t.Fatalf("upsert project: %v", err)
	}

	payload, _ := json.Marshal(indexRepoPayload{Files: []string{"main.go"}})
	job := &metadata.Job{ID: "j1", ProjectID: &p.ID, JobType: metadata.JobIndexRepo, Payload: payload}

	if err := w.handleIndexRepo(ctx, job); err != nil {
		t.Fatalf("handleIndexRepo: %v", err)
	}

	mem, err := store.GetMemoryByFilePath(ctx, p.ID, "main.go")
	if err != nil {
		t.Fatalf("get memory by file path: %v", err)
	}
	if mem == nil {
		t.Fatal("expected main.go to be indexed as a memory")
	}
}

func TestHandleGenerateSummaryStoresMemory(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx := context.Background()

	payload, _ := json.Marshal(generateSummaryPayload{SummaryType: "code", Content: "package main"})
	job := &metadata.Job{ID: "j2", JobType: metadata.JobGenerateSummary, Payload: payload}

	if err := w.handleGenerateSummary(ctx, job); err != nil {
		t.Fatalf("handleGenerateSummary: %v", err)
	}
}

func TestHandleCustomNeverErrors(t *testing.T) {
	w, _ := newTestWorker(t)
	job := &metadata.Job{ID: "j3", JobType: metadata.JobCustom, Payload: []byte(`{"k":"v"}`)}
	if err := w.handleCustom(context.Background(), job); err != nil {
		t.Fatalf("handleCustom: %v", err)
	}
}

func TestDispatchUnknownJobTypeErrors(t *testing.T) {
	w, _ := newTestWorker(t)
	job := &metadata.Job{ID: "j4", JobType: metadata.JobType("bogus")}
	if err := w.dispatch(context.Background(), job); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}

func TestHandleProcessWebhookEnqueuesIndexRepoOnPush(t *testing.T) {
	w, store := newTestWorker(t)
	ctx := context.Background()

	provider := "github"
	p := &metadata.Project{ID: "p2", Slug: "acme", Provider: &provider}
	if err := store.UpsertProject(ctx, p); err != nil {
		t.Fatalf("upsert project: %v", err)
	}

	pushBody := []byte(`{"after":"sha1","commits":[{"id":"sha1","message":"m","author":{"name":"a"},"added":["a.go"],"modified":[],"removed":[]}]}`)
	wh, _ := json.Marshal(webhookPayload{EventType: "push", Body: pushBody})
	job := &metadata.Job{ID: "j5", ProjectID: &p.ID, JobType: metadata.JobProcessWebhook, Payload: wh}

	if err := w.handleProcessWebhook(ctx, job); err != nil {
		t.Fatalf("handleProcessWebhook: %v", err)
	}

	jobs, err := store.ListJobsByStatus(ctx, metadata.JobPending)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	var found bool
	for _, j := range jobs {
		if j.JobType == metadata.JobIndexRepo {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an index_repo job to be enqueued from the push webhook")
	}
}

func writeTestFile(t *testing.T, root, relpath, content string) {
	t.Helper()
	full := filepath.Join(root, relpath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir for test file: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
}
