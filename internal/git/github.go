// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package git

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GitHubProvider talks to the GitHub REST API (v3). No official SDK ships
// in the example corpus, so this is a thin direct client: a handful of
// endpoints, not a general-purpose API wrapper.
type GitHubProvider struct {
	token   string
	baseURL string // overridable in tests; defaults to https://api.github.com
}

func (p *GitHubProvider) apiBase() string {
	if p.baseURL != "" {
		return p.baseURL
	}
	return "https://api.github.com"
}

func (p *GitHubProvider) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.apiBase()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return httpClient.Do(req)
}

type githubContentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Type     string `json:"type"`
}

func (p *GitHubProvider) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	url := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, path, ref)
	resp, err := p.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("github: get file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github: get file %s: status %d", path, resp.StatusCode)
	}
	var c githubContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return nil, fmt.Errorf("github: decode content response: %w", err)
	}
	if c.Encoding == "base64" {
		return base64.StdEncoding.DecodeString(strings.ReplaceAll(c.Content, "\n", ""))
	}
	return []byte(c.Content), nil
}

type githubTreeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

func (p *GitHubProvider) ListFiles(ctx context.Context, owner, repo, ref string) ([]string, error) {
	url := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, ref)
	resp, err := p.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("github: list files: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github: list files: status %d", resp.StatusCode)
	}
	var t githubTreeResponse
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("github: decode tree response: %w", err)
	}
	out := make([]string, 0, len(t.Tree))
	for _, entry := range t.Tree {
		if entry.Type == "blob" {
			out = append(out, entry.Path)
		}
	}
	return out, nil
}

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func (p *GitHubProvider) DetectChanges(ctx context.Context, owner, repo, cursor string) ([]ChangeEvent, error) {
	url := fmt.Sprintf("/repos/%s/%s/commits", owner, repo)
	if cursor != "" {
		url += "?sha=" + cursor
	}
	resp, err := p.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("github: list commits: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github: list commits: status %d", resp.StatusCode)
	}
	var commits []githubCommit
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return nil, fmt.Errorf("github: decode commits: %w", err)
	}

	events := make([]ChangeEvent, 0, len(commits))
	for _, c := range commits {
		if c.SHA == cursor {
			continue
		}
		events = append(events, ChangeEvent{
			Kind:      EventCommit,
			SHA:       c.SHA,
			Message:   c.Commit.Message,
			Author:    c.Commit.Author.Name,
			Timestamp: c.Commit.Author.Date,
		})
	}
	return events, nil
}

type githubHookRequest struct {
	Name   string            `json:"name"`
	Active bool              `json:"active"`
	Events []string          `json:"events"`
	Config map[string]string `json:"config"`
}

func (p *GitHubProvider) RegisterNotifications(ctx context.Context, owner, repo, callbackURL, secret string) error {
	hook := githubHookRequest{
		Name:   "web",
		Active: true,
		Events: []string{"push", "pull_request"},
		Config: map[string]string{
			"url":          callbackURL,
			"content_type": "json",
			"secret":       secret,
		},
	}
	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}
	resp, err := p.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/hooks", owner, repo), strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("github: register webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("github: register webhook: status %d", resp.StatusCode)
	}
	return nil
}

func (p *GitHubProvider) RemoveNotifications(ctx context.Context, owner, repo, hookID string) error {
	resp, err := p.do(ctx, http.MethodDelete, fmt.Sprintf("/repos/%s/%s/hooks/%s", owner, repo, hookID), nil)
	if err != nil {
		return fmt.Errorf("github: remove webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("github: remove webhook: status %d", resp.StatusCode)
	}
	return nil
}

type githubPushEvent struct {
	After   string `json:"after"`
	Commits []struct {
		ID        string    `json:"id"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
		Author    struct {
			Name string `json:"name"`
		} `json:"author"`
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
}

func (p *GitHubProvider) ParseNotification(eventType string, payload []byte) ([]ChangeEvent, error) {
	switch eventType {
	case "push":
		var push githubPushEvent
		if err := json.Unmarshal(payload, &push); err != nil {
			return nil, fmt.Errorf("github: parse push event: %w", err)
		}
		events := make([]ChangeEvent, 0, len(push.Commits)+1)
		for _, c := range push.Commits {
			files := append(append(append([]string{}, c.Added...), c.Modified...), c.Removed...)
			events = append(events, ChangeEvent{
				Kind: EventCommit, SHA: c.ID, Message: c.Message,
				Author: c.Author.Name, Timestamp: c.Timestamp, Files: files,
			})
			for _, f := range c.Added {
				events = append(events, ChangeEvent{Kind: EventFileCreated, Path: f})
			}
			for _, f := range c.Modified {
				events = append(events, ChangeEvent{Kind: EventFileModified, Path: f})
			}
			for _, f := range c.Removed {
				events = append(events, ChangeEvent{Kind: EventFileDeleted, Path: f})
			}
		}
		return events, nil
	case "pull_request":
		var pr struct {
			Action      string `json:"action"`
			Number      int    `json:"number"`
			PullRequest struct {
				Title string `json:"title"`
			} `json:"pull_request"`
		}
		if err := json.Unmarshal(payload, &pr); err != nil {
			return nil, fmt.Errorf("github: parse pull_request event: %w", err)
		}
		return []ChangeEvent{{Kind: EventPullRequest, Number: pr.Number, Action: pr.Action, Message: pr.PullRequest.Title}}, nil
	default:
		return nil, nil
	}
}

// VerifyNotification checks GitHub's HMAC-SHA256 signature header
// (X-Hub-Signature-256: sha256=<hex>).
func (p *GitHubProvider) VerifyNotification(headers http.Header, body []byte, secret string) bool {
	sig := headers.Get("X-Hub-Signature-256")
	const prefix = "sha256="
	if !strings.HasPrefix(sig, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(sig, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func (p *GitHubProvider) SupportsWebhooks() bool { return true }
func (p *GitHubProvider) RequiresPolling() bool  { return false }
