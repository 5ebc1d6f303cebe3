// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package metadata is the durable, transactional index backing the memory
// graph: memories, their links, sub-document chunks, indexed projects, and
// the job queue's tables. It is the system of record for everything except
// the vector embeddings (internal/vectordb) and agent-authored memory bodies
// (internal/hashstore).
package metadata

import (
	"encoding/json"
	"time"
)

// MemoryType classifies what kind of thing a memory describes.
type MemoryType string

const (
	MemoryTypeCodebase MemoryType = "codebase"
	MemoryTypeSpec      MemoryType = "spec"
	MemoryTypeDecision   MemoryType = "decision"
	MemoryTypeSession    MemoryType = "session"
	MemoryTypeCommit     MemoryType = "commit"
	MemoryTypeTask       MemoryType = "task"
	MemoryTypeGeneral    MemoryType = "general"
)

// MemorySource determines where a memory's content authoritatively lives
// (see invariant I1: file/git content lives in the metadata row; agent
// content lives in hash storage).
type MemorySource string

const (
	SourceAgent MemorySource = "agent"
	SourceFile  MemorySource = "file"
	SourceGit   MemorySource = "git"
)

// Memory is the fundamental unit of the system.
type Memory struct {
	ID             string
	ProjectID      string
	Type           MemoryType
	Source         MemorySource
	ContentHash    string
	Title          *string
	Author         *string
	Keywords       []string
	Tags           []string
	Context        string
	Metadata       map[string]interface{}
	FilePath       *string
	Language       *string
	Status         *string
	Assignee       *string
	Content        *string // authoritative only when Source is file/git
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RetrievalCount int
	LastAccessed   *time.Time
}

// LinkType enumerates the kinds of directed edges between two memories.
type LinkType string

const (
	LinkRelated    LinkType = "related"
	LinkImplements LinkType = "implements"
	LinkModifies   LinkType = "modifies"
	LinkAffects    LinkType = "affects"
	LinkDecides    LinkType = "decides"
	LinkReferences LinkType = "references"
	LinkDependsOn  LinkType = "depends_on"
	LinkExtends    LinkType = "extends"
	LinkContains   LinkType = "contains"
	LinkParent     LinkType = "parent"
)

// LinkCreator enumerates who/what created a link.
type LinkCreator string

const (
	CreatedByUser      LinkCreator = "user"
	CreatedByAI        LinkCreator = "ai"
	CreatedByEvolution LinkCreator = "evolution"
	CreatedBySystem    LinkCreator = "system"
)

// Link is a directed edge between two memories in the same project.
type Link struct {
	SourceID   string
	TargetID   string
	LinkType   LinkType
	Confidence *float64
	Context    *string
	CreatedBy  LinkCreator
	CreatedAt  time.Time
}

// Chunk is a sub-document unit belonging to one parent memory.
type Chunk struct {
	ID             string
	ParentMemoryID string
	Content        string
	NodeType       string
	NodeName       *string
	StartLine      int
	EndLine        int
}

// Project is an indexed codebase or document tree.
type Project struct {
	ID                   string
	Slug                 string
	Name                 string
	RootPath             string
	Provider             *string
	Owner                *string
	Repo                 *string
	Branch               *string
	AccessToken          *string
	DecayHalfLifeDays    *float64
	DecayStrengthWeight  *float64
	IgnoredCommitAuthors []string
	LastCommitSHA        *string
	LastSync             *time.Time
	SyncCursor           *string
}

// JobType enumerates the kinds of background work the queue dispatches.
type JobType string

const (
	JobIndexRepo       JobType = "index_repo"
	JobReindexRepo     JobType = "reindex_repo"
	JobIndexHistory    JobType = "index_history"
	JobSyncMetadata    JobType = "sync_metadata"
	JobProcessWebhook  JobType = "process_webhook"
	JobGenerateSummary JobType = "generate_summary"
	JobCustom          JobType = "custom"
)

// JobStatus is a job's lifecycle state.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobPaused   JobStatus = "paused"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// Job is one unit of durable background work.
type Job struct {
	ID             string
	ProjectID      *string
	JobType        JobType
	Payload        json.RawMessage
	Status         JobStatus
	Priority       int
	RetryCount     int
	MaxRetries     int
	LockedBy       *string
	LockedUntil    *time.Time
	HeartbeatAt    *time.Time
	ScheduledAt    time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	ProgressIndexed int
	ProgressFailed  int
	ProgressTotal   int
}

// JobExecution records one claim-to-completion attempt of a job, for
// diagnosing retries.
type JobExecution struct {
	ID         int64
	JobID      string
	WorkerID   string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Error      *string
}

// Commit records one ingested git commit, used by index_history and by
// ignored_commit_authors filtering.
type Commit struct {
	SHA         string
	ProjectID   string
	Author      string
	Message     string
	CommittedAt time.Time
}
