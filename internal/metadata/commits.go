// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertCommit records one ingested commit, idempotent on (project_id, sha).
func (s *Store) UpsertCommit(ctx context.Context, c *Commit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commits (sha, project_id, author, message, committed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, sha) DO NOTHING`,
		c.SHA, c.ProjectID, c.Author, c.Message, c.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert commit %s: %w", c.SHA, err)
	}
	return nil
}

// LastCommit returns the most recently committed commit ingested for a
// project, or nil if none have been recorded.
func (s *Store) LastCommit(ctx context.Context, projectID string) (*Commit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT sha, project_id, author, message, committed_at
		 FROM commits WHERE project_id = ? ORDER BY committed_at DESC LIMIT 1`, projectID)

	var c Commit
	if err := row.Scan(&c.SHA, &c.ProjectID, &c.Author, &c.Message, &c.CommittedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan last commit: %w", err)
	}
	return &c, nil
}
