// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/northbound/fold/internal/embeddings"
	"github.com/northbound/fold/internal/memory"
	"github.com/northbound/fold/internal/metadata"
	"github.com/northbound/fold/internal/vectordb"
)

func newTestIndexer(t *testing.T) (*Indexer, *metadata.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := metadata.Open(dbPath)
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	router, err := embeddings.NewRouter([]embeddings.ProviderConfig{{Name: "mock", Priority: 1}}, 384)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	vdb := vectordb.NewMockVectorDB()
	memSvc := memory.New(store, vdb, router, nil, "fold_")

	return New(memSvc, router, vdb, Options{}), store
}

func writeFile(t *testing.T, root, relpath, content string) {
	t.Helper()
	full := filepath.Join(root, relpath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestIndexFileSkipsUnknownExtension(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "binary.exe", "\x00\x01\x02")

	ok, err := ix.IndexFile(context.Background(), "proj1", "proj-one", root, "binary.exe", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected unknown extension to be skipped")
	}
}

func TestIndexFileSkipsEmptyFile(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "empty.go", "")

	ok, err := ix.IndexFile(context.Background(), "proj1", "proj-one", root, "empty.go", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected empty file to be skipped")
	}
}

func TestIndexFileSkipsOversizedFile(t *testing.T) {
	ix, _ := newTestIndexer(t)
	ix.opts.MaxFileBytes = 10
	root := t.TempDir()
	writeFile(t, root, "big.go", "package main\n\nfunc main() {}\n")

	ok, err := ix.IndexFile(context.Background(), "proj1", "proj-one", root, "big.go", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected oversized file to be skipped")
	}
}

func TestIndexFileCreatesMemoryAndChunks(t *testing.T) {
	ix, store := newTestIndexer(t)
	root := t.TempDir()
	src := "package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n"
	writeFile(t, root, "hello.go", src)

	seen := map[string]string{}
	ok, err := ix.IndexFile(context.Background(), "proj1", "proj-one", root, "hello.go", seen)
	if err != nil {
		t.Fatalf("index file: %v", err)
	}
	if !ok {
		t.Fatal("expected file to be indexed")
	}

	id := pathHashID("proj-one", "hello.go")
	m, err := store.GetMemory(context.Background(), id)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if m == nil {
		t.Fatal("expected memory row to exist")
	}
	if m.Type != metadata.MemoryTypeCodebase || m.Source != metadata.SourceFile {
		t.Fatalf("unexpected type/source: %v/%v", m.Type, m.Source)
	}

	chunks, err := store.GetChunksForMemory(context.Background(), id)
	if err != nil {
		t.Fatalf("get chunks: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk for a chunk-capable language")
	}
}

func TestIndexFileSkipsUnchangedContent(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "hello.go", "package main\n\nfunc main() {}\n")

	seen := map[string]string{}
	ok, err := ix.IndexFile(context.Background(), "proj1", "proj-one", root, "hello.go", seen)
	if err != nil || !ok {
		t.Fatalf("expected first index to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = ix.IndexFile(context.Background(), "proj1", "proj-one", root, "hello.go", seen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second index of unchanged content to be skipped")
	}
}

func TestIndexTreeHonoursIgnorePatterns(t *testing.T) {
	ix, store := newTestIndexer(t)
	ix.opts.IgnorePatterns = []string{"vendor/*"}
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "vendor/dep.go", "package vendor\n\nfunc X() {}\n")

	n, err := ix.IndexTree(context.Background(), "proj1", "proj-one", root)
	if err != nil {
		t.Fatalf("index tree: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 file indexed, got %d", n)
	}

	vendorID := pathHashID("proj-one", "vendor/dep.go")
	m, err := store.GetMemory(context.Background(), vendorID)
	if err != nil {
		t.Fatalf("get memory: %v", err)
	}
	if m != nil {
		t.Fatal("expected vendor file to be skipped")
	}
}

func TestIndexTreeSkipsDotDirectories(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	n, err := ix.IndexTree(context.Background(), "proj1", "proj-one", root)
	if err != nil {
		t.Fatalf("index tree: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 file indexed (dot-dir skipped), got %d", n)
	}
}

func TestClearCacheForcesReindex(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	n, err := ix.IndexTree(context.Background(), "proj1", "proj-one", root)
	if err != nil || n != 1 {
		t.Fatalf("first walk: n=%d err=%v", n, err)
	}
	n, err = ix.IndexTree(context.Background(), "proj1", "proj-one", root)
	if err != nil || n != 0 {
		t.Fatalf("second walk should be a no-op: n=%d err=%v", n, err)
	}

	ix.ClearCache("proj-one")
	n, err = ix.IndexTree(context.Background(), "proj1", "proj-one", root)
	if err != nil || n != 1 {
		t.Fatalf("walk after ClearCache: n=%d err=%v", n, err)
	}
}
