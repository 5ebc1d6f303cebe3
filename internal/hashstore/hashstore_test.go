// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package hashstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSlugToIDDeterministic(t *testing.T) {
	a := SlugToID("readme")
	b := SlugToID("readme")
	if a != b {
		t.Fatalf("expected stable id, got %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16-char hex id, got %q (len %d)", a, len(a))
	}
}

func TestSlugToIDCollidesOnPurpose(t *testing.T) {
	if SlugToID("same-slug") != SlugToID("same-slug") {
		t.Fatal("same slug must always produce the same id")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	fm := Frontmatter{
		ID:        SlugToID("design-doc"),
		Slug:      "design-doc",
		Type:      "decision",
		Source:    "agent",
		Title:     "Use sqlite for the index",
		Tags:      []string{"architecture", "storage"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	body := "We chose sqlite because it needs no separate server process."

	if err := Write(root, fm, body); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec, err := Read(root, fm.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Body != body {
		t.Errorf("body mismatch: got %q", rec.Body)
	}
	if rec.Frontmatter.Title != fm.Title {
		t.Errorf("title mismatch: got %q", rec.Frontmatter.Title)
	}
	if len(rec.Frontmatter.Tags) != 2 {
		t.Errorf("expected 2 tags, got %+v", rec.Frontmatter.Tags)
	}

	path, _ := Path(root, fm.ID)
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not survive a successful write")
	}
}

func TestWriteShardsByIDPrefix(t *testing.T) {
	root := t.TempDir()
	id := "ab34cdef00112233"
	fm := Frontmatter{ID: id, Type: "general", Source: "agent", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := Write(root, fm, "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := filepath.Join(root, "fold", "a", "b", id+".md")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected file at %s: %v", want, err)
	}
}

func TestDeleteMissingFileIsNotAnError(t *testing.T) {
	root := t.TempDir()
	if err := Delete(root, SlugToID("never-written")); err != nil {
		t.Fatalf("delete of missing file should not error: %v", err)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	root := t.TempDir()
	fm := Frontmatter{ID: SlugToID("to-delete"), Type: "general", Source: "agent", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := Write(root, fm, "body"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Delete(root, fm.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := Read(root, fm.ID); err == nil {
		t.Fatal("expected read to fail after delete")
	}
}

func TestUpdateLinksPreservesBody(t *testing.T) {
	root := t.TempDir()
	fm := Frontmatter{ID: SlugToID("linked"), Type: "general", Source: "agent", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	body := "original body text"
	if err := Write(root, fm, body); err != nil {
		t.Fatalf("write: %v", err)
	}

	related := []string{"aaaa111122223333", "bbbb444455556666"}
	if err := UpdateLinks(root, fm.ID, related); err != nil {
		t.Fatalf("update links: %v", err)
	}

	rec, err := Read(root, fm.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.Body != body {
		t.Errorf("body changed after update_links: got %q", rec.Body)
	}
	if len(rec.Frontmatter.Related) != 2 {
		t.Fatalf("expected 2 related ids, got %+v", rec.Frontmatter.Related)
	}
}

func TestScanFindsAllMemories(t *testing.T) {
	root := t.TempDir()
	ids := []string{SlugToID("one"), SlugToID("two"), SlugToID("three")}
	for _, id := range ids {
		fm := Frontmatter{ID: id, Type: "general", Source: "agent", CreatedAt: time.Now(), UpdatedAt: time.Now()}
		if err := Write(root, fm, "x"); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}

	found, err := Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(found) != len(ids) {
		t.Fatalf("expected %d ids, got %d: %+v", len(ids), len(found), found)
	}
}

func TestScanOnMissingFoldDirReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	found, err := Scan(root)
	if err != nil {
		t.Fatalf("scan of missing fold dir should not error: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no ids, got %+v", found)
	}
}

func TestInitFoldDirectoryCreatesGitignoreAndReadme(t *testing.T) {
	root := t.TempDir()
	if err := InitFoldDirectory(root, "demo-project"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "fold", ".gitignore")); err != nil {
		t.Errorf("expected .gitignore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "fold", "README.md")); err != nil {
		t.Errorf("expected README.md: %v", err)
	}

	// Calling again must not clobber an edited gitignore.
	gitignorePath := filepath.Join(root, "fold", ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("custom\n"), 0o640); err != nil {
		t.Fatalf("overwrite gitignore: %v", err)
	}
	if err := InitFoldDirectory(root, "demo-project"); err != nil {
		t.Fatalf("second init: %v", err)
	}
	data, err := os.ReadFile(gitignorePath)
	if err != nil {
		t.Fatalf("read gitignore: %v", err)
	}
	if string(data) != "custom\n" {
		t.Errorf("expected custom gitignore to survive re-init, got %q", string(data))
	}
}
