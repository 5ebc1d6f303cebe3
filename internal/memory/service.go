// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package memory is the memory service (C8): CRUD over the memory graph,
// decay-weighted hybrid search, and the evolution engine that links a
// freshly added agent memory to its nearest neighbours.
package memory

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/northbound/fold/internal/embeddings"
	"github.com/northbound/fold/internal/hashstore"
	"github.com/northbound/fold/internal/llm"
	"github.com/northbound/fold/internal/metadata"
	"github.com/northbound/fold/internal/vectordb"
)

// Service wires the metadata index, vector index, embedding and LLM
// routers, and hash storage into the operations described in spec §4.8.
type Service struct {
	meta         *metadata.Store
	vectors      vectordb.VectorDB
	embedder     *embeddings.Router
	llmRouter    *llm.Router
	vectorPrefix string
}

// New constructs a memory service. llmRouter may be nil; when absent,
// auto-metadata and evolution are silently skipped.
func New(meta *metadata.Store, vectors vectordb.VectorDB, embedder *embeddings.Router, llmRouter *llm.Router, vectorPrefix string) *Service {
	return &Service{meta: meta, vectors: vectors, embedder: embedder, llmRouter: llmRouter, vectorPrefix: vectorPrefix}
}

// Create is the caller-supplied half of add(): fields left nil/empty are
// either inferred (auto_metadata) or left unset.
type Create struct {
	ID           string // if empty and Slug is set, derived from Slug; else random
	Slug         string
	Type         metadata.MemoryType
	Source       metadata.MemorySource
	Title        *string
	Author       *string
	Keywords     []string
	Tags         []string
	Context      string
	Metadata     map[string]interface{}
	FilePath     *string
	Language     *string
	Status       *string
	Assignee     *string
	Body         string
	AutoMetadata bool
}

// Update carries the reconcilable fields of update(); nil means "keep
// existing".
type Update struct {
	Title    *string
	Author   *string
	Keywords []string
	Tags     []string
	Context  *string
	Metadata map[string]interface{}
	Status   *string
	Assignee *string
	Body     *string
}

func randomID() string {
	var b [16]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		// extremely unlikely; fall back to a time-seeded hash
		sum := sha256.Sum256([]byte(time.Now().String()))
		copy(b[:], sum[:16])
	}
	return hex.EncodeToString(b[:])
}

func contentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Add implements §4.8 add(): resolves the id, runs auto-metadata, persists
// to the metadata index and (for agent memories) hash storage, embeds, and
// runs evolution.
func (s *Service) Add(ctx context.Context, projectID, projectRootPath, slug string, in Create) (*metadata.Memory, error) {
	id := in.ID
	if id == "" {
		if in.Slug != "" {
			id = hashstore.SlugToID(in.Slug)
		} else {
			id = randomID()
		}
	}

	isAgent := in.Source == metadata.SourceAgent || in.Source == ""
	source := in.Source
	if source == "" {
		source = metadata.SourceAgent
	}

	keywords, tags, memContext := in.Keywords, in.Tags, in.Context
	if in.AutoMetadata && s.llmRouter != nil && (len(keywords) == 0 || len(tags) == 0) {
		if analysis, ok := s.llmRouter.Analyze(ctx, in.Body); ok {
			if len(keywords) == 0 {
				keywords = analysis.Keywords
			}
			if len(tags) == 0 {
				tags = analysis.Tags
			}
			if memContext == "" {
				memContext = analysis.Context
			}
		}
	}

	title := in.Title
	if isAgent && in.AutoMetadata && title == nil && s.llmRouter != nil {
		if t, ok := s.llmRouter.Title(ctx, in.Body); ok {
			title = &t
		}
	}
	if title == nil {
		title = firstLineTitle(in.Body)
	}

	now := time.Now()
	m := &metadata.Memory{
		ID:          id,
		ProjectID:   projectID,
		Type:        in.Type,
		Source:      source,
		ContentHash: contentHash(in.Body),
		Title:       title,
		Author:      in.Author,
		Keywords:    keywords,
		Tags:        tags,
		Context:     memContext,
		Metadata:    in.Metadata,
		FilePath:    in.FilePath,
		Language:    in.Language,
		Status:      in.Status,
		Assignee:    in.Assignee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if isAgent {
		m.Content = nil // authoritative content lives in hash storage (I1)
	} else {
		body := in.Body
		m.Content = &body
	}

	if err := s.meta.UpsertMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("memory: add: upsert metadata: %w", err)
	}

	if isAgent {
		if err := hashstore.InitFoldDirectory(projectRootPath, projectID); err != nil {
			return nil, fmt.Errorf("memory: add: init fold dir: %w", err)
		}
		fm := hashstore.Frontmatter{
			ID: id, Slug: slug, Type: string(in.Type), Source: string(source),
			Author: derefStr(in.Author), Tags: tags,
			Language: derefStr(in.Language), FilePath: derefStr(in.FilePath),
			CreatedAt: now, UpdatedAt: now,
		}
		if title != nil {
			fm.Title = *title
		}
		if err := hashstore.Write(projectRootPath, fm, in.Body); err != nil {
			return nil, fmt.Errorf("memory: add: write hash storage: %w", err)
		}
	}

	embedText := buildEmbeddingText(in.Body, memContext, keywords, tags, title)
	var vec []float32
	if s.embedder != nil {
		v, err := s.embedder.EmbedSingle(ctx, embedText)
		if err == nil {
			vec = v
		}
	}
	if vec != nil && s.vectors != nil {
		slugForVectors := projectSlugOrID(slug, projectID)
		payload := memoryPayload(m)
		if err := s.vectors.Upsert(ctx, slugForVectors, id, vec, payload); err != nil {
			return nil, fmt.Errorf("memory: add: upsert vector: %w", err)
		}

		if isAgent {
			s.evolve(ctx, projectRootPath, slugForVectors, m, vec, in.Body)
		}
	}

	result := *m
	result.Content = &in.Body
	return &result, nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstLineTitle(body string) *string {
	line := strings.TrimSpace(strings.SplitN(body, "\n", 2)[0])
	if line == "" {
		return nil
	}
	if len(line) > 60 {
		line = line[:60]
	}
	return &line
}

func buildEmbeddingText(body, memContext string, keywords, tags []string, title *string) string {
	parts := []string{body}
	if memContext != "" {
		parts = append(parts, memContext)
	}
	if len(keywords) > 0 {
		parts = append(parts, strings.Join(keywords, ", "))
	}
	if len(tags) > 0 {
		parts = append(parts, strings.Join(tags, ", "))
	}
	if title != nil && *title != "" {
		parts = append(parts, *title)
	}
	return strings.Join(parts, "\n")
}

func memoryPayload(m *metadata.Memory) map[string]string {
	payload := map[string]string{
		"memory_id":  m.ID,
		"project_id": m.ProjectID,
		"type":       string(m.Type),
		"created_at": m.CreatedAt.Format(time.RFC3339),
	}
	if m.Title != nil {
		payload["title"] = *m.Title
	}
	if m.Author != nil {
		payload["author"] = *m.Author
	}
	if m.FilePath != nil {
		payload["file_path"] = *m.FilePath
	}
	return payload
}

func projectSlugOrID(slug, projectID string) string {
	if slug != "" {
		return slug
	}
	return projectID
}

// Get implements §4.8 get(): fetch, resolve body per I1, then bump
// retrieval counters.
func (s *Service) Get(ctx context.Context, projectRootPath, id string) (*metadata.Memory, error) {
	m, err := s.meta.GetMemory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("memory: get: %w", err)
	}
	if m == nil {
		return nil, nil
	}

	if err := s.resolveBody(projectRootPath, m); err != nil {
		return nil, err
	}

	if err := s.meta.BumpRetrieval(ctx, id); err != nil {
		return nil, fmt.Errorf("memory: get: bump retrieval: %w", err)
	}
	m.RetrievalCount++
	accessed := time.Now()
	m.LastAccessed = &accessed
	return m, nil
}

func (s *Service) resolveBody(projectRootPath string, m *metadata.Memory) error {
	if (m.Source == metadata.SourceFile || m.Source == metadata.SourceGit) && m.Content != nil {
		return nil
	}
	rec, err := hashstore.Read(projectRootPath, m.ID)
	if err != nil {
		return fmt.Errorf("memory: resolve body from hash storage: %w", err)
	}
	m.Content = &rec.Body
	return nil
}

// Delete implements §4.8 delete(): metadata delete, vector delete,
// hash-file delete (best-effort), bulk-delete incident links. Vector and
// hash-file failures are printed as warnings here and are not returned.
func (s *Service) Delete(ctx context.Context, projectRootPath, slug, projectID, id string) error {
	if err := s.meta.DeleteMemory(ctx, id); err != nil {
		return fmt.Errorf("memory: delete: metadata: %w", err)
	}
	if s.vectors != nil {
		if err := s.vectors.Delete(ctx, projectSlugOrID(slug, projectID), id); err != nil {
			fmt.Printf("memory: delete: vector delete warning for %s: %v\n", id, err)
		}
	}
	if err := hashstore.Delete(projectRootPath, id); err != nil {
		fmt.Printf("memory: delete: hash storage delete warning for %s: %v\n", id, err)
	}
	return nil
}
