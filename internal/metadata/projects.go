// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// UpsertProject inserts or updates a project by id.
func (s *Store) UpsertProject(ctx context.Context, p *Project) error {
	authors, err := json.Marshal(p.IgnoredCommitAuthors)
	if err != nil {
		return fmt.Errorf("marshal ignored_commit_authors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (
			id, slug, name, root_path, provider, owner, repo, branch, access_token,
			decay_half_life_days, decay_strength_weight, ignored_commit_authors,
			last_commit_sha, last_sync, sync_cursor
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			name = excluded.name,
			root_path = excluded.root_path,
			provider = excluded.provider,
			owner = excluded.owner,
			repo = excluded.repo,
			branch = excluded.branch,
			access_token = excluded.access_token,
			decay_half_life_days = excluded.decay_half_life_days,
			decay_strength_weight = excluded.decay_strength_weight,
			ignored_commit_authors = excluded.ignored_commit_authors,
			last_commit_sha = excluded.last_commit_sha,
			last_sync = excluded.last_sync,
			sync_cursor = excluded.sync_cursor
	`,
		p.ID, p.Slug, p.Name, p.RootPath, p.Provider, p.Owner, p.Repo, p.Branch, p.AccessToken,
		p.DecayHalfLifeDays, p.DecayStrengthWeight, string(authors),
		p.LastCommitSHA, p.LastSync, p.SyncCursor,
	)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.Slug, err)
	}
	return nil
}

// GetProjectBySlug fetches a project by its URL-safe slug.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelectColumns+" FROM projects WHERE slug = ?", slug)
	return scanProject(row)
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelectColumns+" FROM projects WHERE id = ?", id)
	return scanProject(row)
}

// ListProjects returns every configured project, used by the worker's
// repo-polling loop.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, projectSelectColumns+" FROM projects")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const projectSelectColumns = `
	SELECT id, slug, name, root_path, provider, owner, repo, branch, access_token,
		decay_half_life_days, decay_strength_weight, ignored_commit_authors,
		last_commit_sha, last_sync, sync_cursor`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProject(row *sql.Row) (*Project, error) {
	p, err := scanProjectRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanProjectRow(row rowScanner) (*Project, error) {
	var p Project
	var authors string
	if err := row.Scan(
		&p.ID, &p.Slug, &p.Name, &p.RootPath, &p.Provider, &p.Owner, &p.Repo, &p.Branch, &p.AccessToken,
		&p.DecayHalfLifeDays, &p.DecayStrengthWeight, &authors,
		&p.LastCommitSHA, &p.LastSync, &p.SyncCursor,
	); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(authors), &p.IgnoredCommitAuthors)
	return &p, nil
}
