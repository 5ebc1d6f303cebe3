// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"context"
	"fmt"
)

// ReplaceChunks deletes any existing chunks for parentMemoryID and inserts
// the given set, used when a file/memory is reindexed.
func (s *Store) ReplaceChunks(ctx context.Context, parentMemoryID string, chunks []*Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE parent_memory_id = ?", parentMemoryID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, parent_memory_id, content, node_type, node_name, start_line, end_line)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, parentMemoryID, c.Content, c.NodeType, c.NodeName, c.StartLine, c.EndLine); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// GetChunksForMemory returns all chunks belonging to a memory, ordered by
// position in the source file.
func (s *Store) GetChunksForMemory(ctx context.Context, parentMemoryID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_memory_id, content, node_type, node_name, start_line, end_line
		 FROM chunks WHERE parent_memory_id = ? ORDER BY start_line ASC`, parentMemoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.ParentMemoryID, &c.Content, &c.NodeType, &c.NodeName, &c.StartLine, &c.EndLine); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
