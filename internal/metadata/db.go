// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the sqlite-backed metadata index: memories, links, chunks,
// projects, and the job queue tables that internal/queue builds atomic
// claim/lease semantics on top of.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the full schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// sqlite only tolerates one writer; keep the pool to a single
	// connection so concurrent callers serialize through database/sql
	// rather than racing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle for packages (internal/queue) that need
// to run additional statements against the same database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	root_path TEXT NOT NULL,
	provider TEXT,
	owner TEXT,
	repo TEXT,
	branch TEXT,
	access_token TEXT,
	decay_half_life_days REAL,
	decay_strength_weight REAL,
	ignored_commit_authors TEXT,
	last_commit_sha TEXT,
	last_sync DATETIME,
	sync_cursor TEXT
);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	type TEXT NOT NULL,
	source TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	title TEXT,
	author TEXT,
	keywords TEXT,
	tags TEXT,
	context TEXT,
	metadata TEXT,
	file_path TEXT,
	language TEXT,
	status TEXT,
	assignee TEXT,
	content TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	retrieval_count INTEGER NOT NULL DEFAULT 0,
	last_accessed DATETIME
);

CREATE INDEX IF NOT EXISTS idx_memories_project_type ON memories(project_id, type);
CREATE INDEX IF NOT EXISTS idx_memories_project_file_path ON memories(project_id, file_path);

CREATE TABLE IF NOT EXISTS memory_links (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	link_type TEXT NOT NULL,
	confidence REAL,
	context TEXT,
	created_by TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (source_id, target_id, link_type)
);

CREATE INDEX IF NOT EXISTS idx_memory_links_source ON memory_links(source_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_target ON memory_links(target_id);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	parent_memory_id TEXT NOT NULL,
	content TEXT NOT NULL,
	node_type TEXT NOT NULL,
	node_name TEXT,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_parent ON chunks(parent_memory_id);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	job_type TEXT NOT NULL,
	payload TEXT,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 3,
	locked_by TEXT,
	locked_until DATETIME,
	heartbeat_at DATETIME,
	scheduled_at DATETIME NOT NULL,
	started_at DATETIME,
	finished_at DATETIME,
	progress_indexed INTEGER NOT NULL DEFAULT 0,
	progress_failed INTEGER NOT NULL DEFAULT 0,
	progress_total INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_priority ON jobs(status, priority DESC, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_jobs_locked ON jobs(locked_by, locked_until);

CREATE TABLE IF NOT EXISTS job_executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	worker_id TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	status TEXT NOT NULL,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_job_executions_job ON job_executions(job_id);

CREATE TABLE IF NOT EXISTS commits (
	sha TEXT NOT NULL,
	project_id TEXT NOT NULL,
	author TEXT NOT NULL,
	message TEXT,
	committed_at DATETIME NOT NULL,
	PRIMARY KEY (project_id, sha)
);

CREATE TABLE IF NOT EXISTS system_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	event_type TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	details TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_subject ON events(subject_id);
`

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}
