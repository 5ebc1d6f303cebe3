// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertLink adds a directed link between two memories. Links with
// source_id = target_id are rejected (I4); duplicate (source, target,
// link_type) tuples are idempotent via INSERT OR IGNORE.
func (s *Store) InsertLink(ctx context.Context, l *Link) error {
	if l.SourceID == l.TargetID {
		return fmt.Errorf("metadata: link source and target must differ (%s)", l.SourceID)
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memory_links
			(source_id, target_id, link_type, confidence, context, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.SourceID, l.TargetID, string(l.LinkType), l.Confidence, l.Context, string(l.CreatedBy), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert link %s->%s: %w", l.SourceID, l.TargetID, err)
	}
	return nil
}

// GetLinksForMemory returns every link incident to id, in either direction.
func (s *Store) GetLinksForMemory(ctx context.Context, id string) ([]*Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, target_id, link_type, confidence, context, created_by, created_at
		 FROM memory_links WHERE source_id = ? OR target_id = ? ORDER BY created_at DESC`,
		id, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]*Link, error) {
	var links []*Link
	for rows.Next() {
		var l Link
		var linkType, createdBy string
		if err := rows.Scan(&l.SourceID, &l.TargetID, &linkType, &l.Confidence, &l.Context, &createdBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.LinkType = LinkType(linkType)
		l.CreatedBy = LinkCreator(createdBy)
		links = append(links, &l)
	}
	return links, rows.Err()
}

// DeleteLinksIncidentTo removes every link touching id, used when deleting
// a memory.
func (s *Store) DeleteLinksIncidentTo(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memory_links WHERE source_id = ? OR target_id = ?", id, id)
	return err
}

// NeighbourIDs returns the deduplicated set of memory ids linked to id in
// either direction, used by search_agentic and get_context.
func (s *Store) NeighbourIDs(ctx context.Context, id string) ([]string, error) {
	links, err := s.GetLinksForMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, l := range links {
		other := l.TargetID
		if other == id {
			other = l.SourceID
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out, nil
}
