// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UpsertMemory inserts a memory or, if one with the same id already exists,
// updates it in place while preserving created_at and bumping updated_at to
// now (the "INSERT ... ON CONFLICT(id) DO UPDATE" rule of §4.4).
func (s *Store) UpsertMemory(ctx context.Context, m *Memory) error {
	keywords, err := json.Marshal(m.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, project_id, type, source, content_hash, title, author,
			keywords, tags, context, metadata, file_path, language, status,
			assignee, content, created_at, updated_at, retrieval_count, last_accessed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			type = excluded.type,
			source = excluded.source,
			content_hash = excluded.content_hash,
			title = excluded.title,
			author = excluded.author,
			keywords = excluded.keywords,
			tags = excluded.tags,
			context = excluded.context,
			metadata = excluded.metadata,
			file_path = excluded.file_path,
			language = excluded.language,
			status = excluded.status,
			assignee = excluded.assignee,
			content = excluded.content,
			updated_at = excluded.updated_at
	`,
		m.ID, m.ProjectID, string(m.Type), string(m.Source), m.ContentHash,
		m.Title, m.Author, string(keywords), string(tags), m.Context, string(meta),
		m.FilePath, m.Language, m.Status, m.Assignee, m.Content,
		m.CreatedAt, m.UpdatedAt, m.RetrievalCount, m.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("upsert memory %s: %w", m.ID, err)
	}
	return nil
}

// GetMemory fetches a memory row without touching retrieval counters.
func (s *Store) GetMemory(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, type, source, content_hash, title, author,
			keywords, tags, context, metadata, file_path, language, status,
			assignee, content, created_at, updated_at, retrieval_count, last_accessed
		FROM memories WHERE id = ?`, id)
	return scanMemory(row)
}

func scanMemory(row *sql.Row) (*Memory, error) {
	var m Memory
	var typ, source, keywords, tags, meta string
	if err := row.Scan(
		&m.ID, &m.ProjectID, &typ, &source, &m.ContentHash, &m.Title, &m.Author,
		&keywords, &tags, &m.Context, &meta, &m.FilePath, &m.Language, &m.Status,
		&m.Assignee, &m.Content, &m.CreatedAt, &m.UpdatedAt, &m.RetrievalCount, &m.LastAccessed,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	m.Type = MemoryType(typ)
	m.Source = MemorySource(source)
	if err := json.Unmarshal([]byte(keywords), &m.Keywords); err != nil {
		m.Keywords = nil
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		m.Tags = nil
	}
	if meta != "" {
		json.Unmarshal([]byte(meta), &m.Metadata)
	}
	return &m, nil
}

// BumpRetrieval increments retrieval_count and sets last_accessed to now.
// Called after a search result has been selected, not before, so scoring
// reflects state as of the start of the query (§4.8 step 5).
func (s *Store) BumpRetrieval(ctx context.Context, id string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		"UPDATE memories SET retrieval_count = retrieval_count + 1, last_accessed = ? WHERE id = ?",
		now, id)
	return err
}

// DeleteMemory removes a memory row and all incident links and chunks. The
// hash-storage file and vector are deleted by the caller (internal/memory),
// which owns cross-store atomicity.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_links WHERE source_id = ? OR target_id = ?", id, id); err != nil {
		return fmt.Errorf("delete incident links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE parent_memory_id = ?", id); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return tx.Commit()
}

// ListMemoriesByType returns memories of a given type for a project,
// without touching retrieval counters.
func (s *Store) ListMemoriesByType(ctx context.Context, projectID string, memType MemoryType) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, type, source, content_hash, title, author,
			keywords, tags, context, metadata, file_path, language, status,
			assignee, content, created_at, updated_at, retrieval_count, last_accessed
		FROM memories WHERE project_id = ? AND type = ?`, projectID, string(memType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListMemoriesByProject returns every memory for a project regardless of
// type, used by the sync_metadata job to materialize .fold/ markdown.
func (s *Store) ListMemoriesByProject(ctx context.Context, projectID string) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, type, source, content_hash, title, author,
			keywords, tags, context, metadata, file_path, language, status,
			assignee, content, created_at, updated_at, retrieval_count, last_accessed
		FROM memories WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// GetMemoryByFilePath looks up the memory indexed for a given file path
// within a project, used by the indexer to detect existing rows on re-scan.
func (s *Store) GetMemoryByFilePath(ctx context.Context, projectID, filePath string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, type, source, content_hash, title, author,
			keywords, tags, context, metadata, file_path, language, status,
			assignee, content, created_at, updated_at, retrieval_count, last_accessed
		FROM memories WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	return scanMemory(row)
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		var m Memory
		var typ, source, keywords, tags, meta string
		if err := rows.Scan(
			&m.ID, &m.ProjectID, &typ, &source, &m.ContentHash, &m.Title, &m.Author,
			&keywords, &tags, &m.Context, &meta, &m.FilePath, &m.Language, &m.Status,
			&m.Assignee, &m.Content, &m.CreatedAt, &m.UpdatedAt, &m.RetrievalCount, &m.LastAccessed,
		); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		m.Type = MemoryType(typ)
		m.Source = MemorySource(source)
		json.Unmarshal([]byte(keywords), &m.Keywords)
		json.Unmarshal([]byte(tags), &m.Tags)
		if meta != "" {
			json.Unmarshal([]byte(meta), &m.Metadata)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
