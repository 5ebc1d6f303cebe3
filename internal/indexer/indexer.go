// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package indexer walks a project's local checkout and materializes each
// file as a memory (C9): language detection, size/empty filtering, chunking
// for chunk-capable languages, and idempotent re-indexing via a
// deterministic path-hash id.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/northbound/fold/internal/chunker"
	"github.com/northbound/fold/internal/docparse"
	"github.com/northbound/fold/internal/embeddings"
	"github.com/northbound/fold/internal/memory"
	"github.com/northbound/fold/internal/metadata"
)

// Options tunes the file walk. Zero values fall back to the defaults below.
type Options struct {
	IndexPatterns  []string // glob allowlist, matched against the slash-joined relative path
	IgnorePatterns []string // glob denylist, checked first
	MaxFileBytes   int64
	ChunkerOptions chunker.Options
}

const DefaultMaxFileBytes = 100 * 1024

func (o Options) withDefaults() Options {
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = DefaultMaxFileBytes
	}
	return o
}

// Indexer materializes project files as memories. One Indexer instance is
// shared across projects; per-project state is the (slug, rootPath) pair
// passed to IndexTree.
type Indexer struct {
	mem      *memory.Service
	embedder *embeddings.Router
	vectors  vectorUpserter
	opts     Options

	cacheMu sync.Mutex
	cache   map[string]map[string]string // slug -> relpath -> content_hash
}

// vectorUpserter is the narrow slice of vectordb.VectorDB the indexer needs
// for chunk vectors (the memory service already upserts the file-level
// vector via mem.Add).
type vectorUpserter interface {
	Upsert(ctx context.Context, slug, id string, vector []float32, payload map[string]string) error
}

func New(mem *memory.Service, embedder *embeddings.Router, vectors vectorUpserter, opts Options) *Indexer {
	return &Indexer{
		mem:      mem,
		embedder: embedder,
		vectors:  vectors,
		opts:     opts.withDefaults(),
		cache:    make(map[string]map[string]string),
	}
}

// ClearCache forces the next IndexTree for slug to re-process every file
// regardless of its last-seen content hash.
func (ix *Indexer) ClearCache(slug string) {
	ix.cacheMu.Lock()
	defer ix.cacheMu.Unlock()
	delete(ix.cache, slug)
}

func (ix *Indexer) cacheFor(slug string) map[string]string {
	ix.cacheMu.Lock()
	defer ix.cacheMu.Unlock()
	c, ok := ix.cache[slug]
	if !ok {
		c = make(map[string]string)
		ix.cache[slug] = c
	}
	return c
}

func (ix *Indexer) rememberHash(seen map[string]string, relpath, hash string) {
	if seen == nil {
		return
	}
	ix.cacheMu.Lock()
	defer ix.cacheMu.Unlock()
	seen[relpath] = hash
}

// IndexTree walks rootPath and indexes every matching file under project
// projectID/slug. Returns the number of files indexed (not counting
// skipped/unchanged files).
func (ix *Indexer) IndexTree(ctx context.Context, projectID, slug, rootPath string) (int, error) {
	seen := ix.cacheFor(slug)
	indexed := 0

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(rootPath, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		relSlash := filepath.ToSlash(rel)

		if info.IsDir() {
			if isDotComponent(relSlash) && !matchesAny(relSlash, ix.opts.IndexPatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if isDotComponent(relSlash) && !matchesAny(relSlash, ix.opts.IndexPatterns) {
			return nil
		}
		if matchesAny(relSlash, ix.opts.IgnorePatterns) {
			return nil
		}
		if len(ix.opts.IndexPatterns) > 0 && !matchesAny(relSlash, ix.opts.IndexPatterns) {
			return nil
		}

		ok, ierr := ix.IndexFile(ctx, projectID, slug, rootPath, relSlash, seen)
		if ierr != nil {
			return fmt.Errorf("index %s: %w", relSlash, ierr)
		}
		if ok {
			indexed++
		}
		return nil
	})
	if err != nil {
		return indexed, err
	}
	return indexed, nil
}

// IndexFile indexes a single file (spec §4.10 steps 2-6). Returns false
// without error if the file was skipped (unknown language, binary, empty,
// too large, or unchanged since the last index).
func (ix *Indexer) IndexFile(ctx context.Context, projectID, slug, rootPath, relpath string, seen map[string]string) (bool, error) {
	language, ok := languageForPath(relpath)
	if !ok {
		return false, nil
	}

	fullPath := filepath.Join(rootPath, filepath.FromSlash(relpath))
	info, err := os.Stat(fullPath)
	if err != nil {
		return false, err
	}
	if info.Size() == 0 || info.Size() > ix.opts.MaxFileBytes {
		return false, nil
	}

	var raw string
	if isDocparseExt(relpath) {
		text, perr := docparse.ParseFile(fullPath)
		if perr != nil {
			return false, nil // unparsable binary-ish file: skip, not fatal
		}
		raw = text
	} else {
		b, rerr := os.ReadFile(fullPath)
		if rerr != nil {
			return false, rerr
		}
		raw = string(b)
	}
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}

	hash := contentHash(raw)
	if seen[relpath] == hash {
		return false, nil
	}

	id := pathHashID(slug, relpath)
	filePath := relpath
	lang := language
	m, err := ix.mem.Add(ctx, projectID, rootPath, slug, memory.Create{
		ID:           id,
		Slug:         slug,
		Type:         metadata.MemoryTypeCodebase,
		Source:       metadata.SourceFile,
		FilePath:     &filePath,
		Language:     &lang,
		Body:         raw,
		AutoMetadata: true,
	})
	if err != nil {
		return false, err
	}
	ix.rememberHash(seen, relpath, hash)

	if chunker.IsChunkCapable(language) {
		if err := ix.indexChunks(ctx, slug, m.ID, raw, language); err != nil {
			return true, fmt.Errorf("chunk %s: %w", relpath, err)
		}
	}
	return true, nil
}

func (ix *Indexer) indexChunks(ctx context.Context, slug, parentMemoryID, raw, language string) error {
	chunks := chunker.ChunkContent(raw, language, ix.opts.ChunkerOptions)
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]*metadata.Chunk, 0, len(chunks))
	for i, c := range chunks {
		rows = append(rows, &metadata.Chunk{
			ID:             chunkID(parentMemoryID, i),
			ParentMemoryID: parentMemoryID,
			Content:        c.Content,
			NodeType:       c.NodeType,
			NodeName:       c.NodeName,
			StartLine:      c.StartLine,
			EndLine:        c.EndLine,
		})
	}
	if err := ix.mem.ReplaceChunks(ctx, parentMemoryID, rows); err != nil {
		return err
	}

	if ix.embedder == nil || ix.vectors == nil {
		return nil
	}
	for _, row := range rows {
		vec, err := ix.embedder.EmbedSingle(ctx, row.Content)
		if err != nil {
			continue // a single unembeddable chunk doesn't fail the whole file
		}
		payload := map[string]string{
			"memory_id":        row.ID,
			"parent_memory_id": parentMemoryID,
			"type":             "chunk",
			"node_type":        row.NodeType,
			"node_name":        row.NodeName,
		}
		_ = ix.vectors.Upsert(ctx, slug, row.ID, vec, payload)
	}
	return nil
}

func contentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// pathHashID implements spec §4.10 step 4: truncate(SHA-256("slug:relpath"), 128 bits).
func pathHashID(slug, relpath string) string {
	sum := sha256.Sum256([]byte(slug + ":" + relpath))
	return hex.EncodeToString(sum[:16])
}

func chunkID(parentMemoryID string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:chunk:%d", parentMemoryID, index)))
	return hex.EncodeToString(sum[:16])
}

func isDotComponent(relSlash string) bool {
	for _, part := range strings.Split(relSlash, "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

func matchesAny(relSlash string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, relSlash); ok {
			return true
		}
		// also try matching just the base name, for patterns like "*.log"
		if ok, _ := filepath.Match(pat, filepath.Base(relSlash)); ok {
			return true
		}
	}
	return false
}
