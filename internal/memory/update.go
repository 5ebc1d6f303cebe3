// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memory

import (
	"context"
	"fmt"
	"log"

	"github.com/northbound/fold/internal/hashstore"
	"github.com/northbound/fold/internal/metadata"
)

// Update implements §4.8 update(): reconcile fields (nil = keep existing),
// recompute content_hash if the body changed, rewrite the authoritative
// body per I1, then re-embed and re-upsert the vector. A vector failure
// after the metadata commit is logged as a reconciliation warning (§7)
// rather than rolled back, since the two stores cannot share a transaction.
func (s *Service) Update(ctx context.Context, projectID, projectRootPath, slug, id string, in Update) (*metadata.Memory, error) {
	m, err := s.meta.GetMemory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("memory: update: fetch: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("memory: update: memory %s not found", id)
	}
	if err := s.resolveBody(projectRootPath, m); err != nil {
		return nil, err
	}

	bodyChanged := false
	body := derefStr(m.Content)
	if in.Body != nil && *in.Body != body {
		body = *in.Body
		bodyChanged = true
	}
	if in.Title != nil {
		m.Title = in.Title
	}
	if in.Author != nil {
		m.Author = in.Author
	}
	if in.Keywords != nil {
		m.Keywords = in.Keywords
	}
	if in.Tags != nil {
		m.Tags = in.Tags
	}
	if in.Context != nil {
		m.Context = *in.Context
	}
	if in.Metadata != nil {
		m.Metadata = in.Metadata
	}
	if in.Status != nil {
		m.Status = in.Status
	}
	if in.Assignee != nil {
		m.Assignee = in.Assignee
	}
	if bodyChanged {
		m.ContentHash = contentHash(body)
	}

	isAgent := m.Source == metadata.SourceAgent
	if isAgent {
		m.Content = nil
	} else {
		m.Content = &body
	}

	if err := s.meta.UpsertMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("memory: update: upsert metadata: %w", err)
	}

	if isAgent {
		fm := hashstore.Frontmatter{
			ID: m.ID, Slug: slug, Type: string(m.Type), Source: string(m.Source),
			Author: derefStr(m.Author), Tags: m.Tags,
			Language: derefStr(m.Language), FilePath: derefStr(m.FilePath),
			CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
		}
		if m.Title != nil {
			fm.Title = *m.Title
		}
		if err := hashstore.Write(projectRootPath, fm, body); err != nil {
			return nil, fmt.Errorf("memory: update: rewrite hash storage: %w", err)
		}
	}

	if s.embedder != nil && s.vectors != nil {
		embedText := buildEmbeddingText(body, m.Context, m.Keywords, m.Tags, m.Title)
		vec, err := s.embedder.EmbedSingle(ctx, embedText)
		if err != nil {
			log.Printf("memory: update: reconciliation warning: re-embed failed for %s: %v", id, err)
		} else {
			slugForVectors := projectSlugOrID(slug, projectID)
			if err := s.vectors.Upsert(ctx, slugForVectors, id, vec, memoryPayload(m)); err != nil {
				log.Printf("memory: update: reconciliation warning: vector upsert failed for %s: %v", id, err)
			}
		}
	}

	result := *m
	result.Content = &body
	return &result, nil
}
