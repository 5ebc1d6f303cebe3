// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/northbound/fold/internal/embeddings"
	"github.com/northbound/fold/internal/hashstore"
	"github.com/northbound/fold/internal/llm"
	"github.com/northbound/fold/internal/metadata"
	"github.com/northbound/fold/internal/vectordb"
)

func newTestService(t *testing.T) (*Service, *metadata.Store, string) {
	t.Helper()
	store, err := metadata.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	embedRouter, err := embeddings.NewRouter([]embeddings.ProviderConfig{{Name: "mock", Priority: 1}}, 8)
	if err != nil {
		t.Fatalf("new embedding router: %v", err)
	}
	llmRouter := llm.NewRouter([]llm.ProviderConfig{{Name: "mock", Priority: 1}})
	vdb := vectordb.NewMockVectorDB()

	return New(store, vdb, embedRouter, llmRouter, "fold_test_"), store, t.TempDir()
}

func TestAddGetUpdateDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, store, root := newTestService(t)

	created, err := svc.Add(ctx, "proj-1", root, "", Create{
		Type:   metadata.MemoryTypeGeneral,
		Source: metadata.SourceAgent,
		Body:   "Hello world",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated id")
	}
	stored, err := store.GetMemory(ctx, created.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetMemory: %+v err=%v", stored, err)
	}
	if stored.Content != nil {
		t.Errorf("expected agent memory content column to stay nil, got %v", *stored.Content)
	}

	got, err := svc.Get(ctx, root, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected to find the memory just added")
	}
	if got.Content == nil || *got.Content != "Hello world" {
		t.Errorf("expected body resolved from hash storage, got %v", got.Content)
	}
	if got.RetrievalCount != 1 {
		t.Errorf("expected Get to bump retrieval_count to 1, got %d", got.RetrievalCount)
	}

	newBody := "Hello, updated world"
	updated, err := svc.Update(ctx, "proj-1", root, "", created.ID, Update{Body: &newBody})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content == nil || *updated.Content != newBody {
		t.Errorf("expected updated body, got %v", updated.Content)
	}

	if err := svc.Delete(ctx, root, "", "proj-1", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	afterDelete, err := svc.Get(ctx, root, created.ID)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	if afterDelete != nil {
		t.Errorf("expected memory to be gone after Delete, got %+v", afterDelete)
	}
	if _, err := hashstore.Read(root, created.ID); err == nil {
		t.Error("expected hash storage file to be deleted")
	}
}

// TestAddIDDerivedFromCreateSlug pins the id-derivation rule: Create.Slug
// (not the outer project slug parameter) determines the deterministic id,
// so repeated adds within the same project that vary only Create.Slug
// don't collide on the project's own slug.
func TestAddIDDerivedFromCreateSlug(t *testing.T) {
	ctx := context.Background()
	svc, _, root := newTestService(t)

	const projectSlug = "acme-widgets"

	first, err := svc.Add(ctx, "proj-1", root, projectSlug, Create{
		Type:   metadata.MemoryTypeGeneral,
		Source: metadata.SourceAgent,
		Slug:   "summary-2026-01-01",
		Body:   "first summary",
	})
	if err != nil {
		t.Fatalf("Add first: %v", err)
	}

	second, err := svc.Add(ctx, "proj-1", root, projectSlug, Create{
		Type:   metadata.MemoryTypeGeneral,
		Source: metadata.SourceAgent,
		Slug:   "summary-2026-01-02",
		Body:   "second summary",
	})
	if err != nil {
		t.Fatalf("Add second: %v", err)
	}

	if first.ID == second.ID {
		t.Fatalf("expected distinct ids for distinct Create.Slug values, got %s for both", first.ID)
	}
	if first.ID != hashstore.SlugToID("summary-2026-01-01") {
		t.Errorf("expected id derived from Create.Slug, got %s", first.ID)
	}

	// Both memories must still resolve independently: neither was
	// clobbered by sharing the outer project slug.
	got1, err := svc.Get(ctx, root, first.ID)
	if err != nil || got1 == nil || *got1.Content != "first summary" {
		t.Errorf("expected first memory intact, got %+v err=%v", got1, err)
	}
	got2, err := svc.Get(ctx, root, second.ID)
	if err != nil || got2 == nil || *got2.Content != "second summary" {
		t.Errorf("expected second memory intact, got %+v err=%v", got2, err)
	}
}

func TestDeleteUsesProjectIDWhenSlugEmpty(t *testing.T) {
	ctx := context.Background()
	svc, _, root := newTestService(t)

	fake := &fakeVectorDB{}
	svc.vectors = fake

	created, err := svc.Add(ctx, "proj-1", root, "", Create{
		Type:   metadata.MemoryTypeGeneral,
		Source: metadata.SourceAgent,
		Body:   "no slug memory",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := svc.Delete(ctx, root, "", "proj-1", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if fake.lastDeleteSlug != "proj-1" {
		t.Errorf("expected vector delete scoped to project id %q, got %q", "proj-1", fake.lastDeleteSlug)
	}
}

// fakeVectorDB records the slug Delete was called with so a test can assert
// vector deletes target the right collection even when the project slug
// passed to Delete is empty.
type fakeVectorDB struct {
	lastDeleteSlug string
}

func (f *fakeVectorDB) EnsureCollection(ctx context.Context, slug string, dim int) error {
	return nil
}

func (f *fakeVectorDB) Upsert(ctx context.Context, slug, id string, vector []float32, payload map[string]string) error {
	return nil
}

func (f *fakeVectorDB) Search(ctx context.Context, slug string, queryVector []float32, topK int, filter vectordb.Filter) ([]vectordb.Match, error) {
	return nil, nil
}

func (f *fakeVectorDB) Delete(ctx context.Context, slug, id string) error {
	f.lastDeleteSlug = slug
	return nil
}

func (f *fakeVectorDB) DeleteCollection(ctx context.Context, slug string) error { return nil }

func (f *fakeVectorDB) PointCount(ctx context.Context, slug string) (int, error) { return 0, nil }
