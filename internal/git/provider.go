// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package git

import (
	"context"
	"net/http"
	"time"
)

// Provider is the remote git-host abstraction (§4.12): commit/file listing
// for polling-based sync, and webhook registration/verification/parsing for
// push-based sync.
type Provider interface {
	// GetFile fetches a single file's content at ref.
	GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
	// ListFiles lists every file path in the tree at ref.
	ListFiles(ctx context.Context, owner, repo, ref string) ([]string, error)
	// DetectChanges returns commits on the default branch after cursor
	// (a commit sha; empty means "from the beginning").
	DetectChanges(ctx context.Context, owner, repo, cursor string) ([]ChangeEvent, error)

	RegisterNotifications(ctx context.Context, owner, repo, callbackURL, secret string) error
	RemoveNotifications(ctx context.Context, owner, repo string, hookID string) error
	ParseNotification(eventType string, payload []byte) ([]ChangeEvent, error)
	VerifyNotification(headers http.Header, body []byte, secret string) bool

	SupportsWebhooks() bool
	RequiresPolling() bool
}

// httpClient is shared across providers; 30s matches the LLM/embedding
// provider contract's timeout so no single external call can wedge a
// worker job indefinitely.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// NewProvider constructs the Provider for the named host ("github" or
// "gitlab"). token is used as the API bearer credential.
func NewProvider(name, token string) Provider {
	switch name {
	case "gitlab":
		return &GitLabProvider{token: token}
	default:
		return &GitHubProvider{token: token}
	}
}
