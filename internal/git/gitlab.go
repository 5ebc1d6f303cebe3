// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package git

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GitLabProvider talks to the GitLab REST API (v4).
type GitLabProvider struct {
	token   string
	baseURL string
}

func (p *GitLabProvider) apiBase() string {
	if p.baseURL != "" {
		return p.baseURL
	}
	return "https://gitlab.com/api/v4"
}

func projectID(owner, repo string) string {
	return url.PathEscape(owner + "/" + repo)
}

func (p *GitLabProvider) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader *strings.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, p.apiBase()+path, reader)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("PRIVATE-TOKEN", p.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return httpClient.Do(req)
}

func (p *GitLabProvider) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	u := fmt.Sprintf("/projects/%s/repository/files/%s/raw?ref=%s", projectID(owner, repo), url.PathEscape(path), ref)
	resp, err := p.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gitlab: get file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gitlab: get file %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type gitlabTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

func (p *GitLabProvider) ListFiles(ctx context.Context, owner, repo, ref string) ([]string, error) {
	u := fmt.Sprintf("/projects/%s/repository/tree?ref=%s&recursive=true&per_page=100", projectID(owner, repo), ref)
	resp, err := p.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gitlab: list files: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gitlab: list files: status %d", resp.StatusCode)
	}
	var entries []gitlabTreeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("gitlab: decode tree: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type == "blob" {
			out = append(out, e.Path)
		}
	}
	return out, nil
}

type gitlabCommit struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	AuthorName   string    `json:"author_name"`
	AuthoredDate time.Time `json:"authored_date"`
}

func (p *GitLabProvider) DetectChanges(ctx context.Context, owner, repo, cursor string) ([]ChangeEvent, error) {
	u := fmt.Sprintf("/projects/%s/repository/commits", projectID(owner, repo))
	if cursor != "" {
		u += "?since=" + url.QueryEscape(cursor)
	}
	resp, err := p.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gitlab: list commits: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gitlab: list commits: status %d", resp.StatusCode)
	}
	var commits []gitlabCommit
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return nil, fmt.Errorf("gitlab: decode commits: %w", err)
	}
	events := make([]ChangeEvent, 0, len(commits))
	for _, c := range commits {
		if c.ID == cursor {
			continue
		}
		events = append(events, ChangeEvent{
			Kind: EventCommit, SHA: c.ID, Message: c.Message,
			Author: c.AuthorName, Timestamp: c.AuthoredDate,
		})
	}
	return events, nil
}

func (p *GitLabProvider) RegisterNotifications(ctx context.Context, owner, repo, callbackURL, secret string) error {
	body, err := json.Marshal(map[string]interface{}{
		"url":                    callbackURL,
		"push_events":            true,
		"merge_requests_events":  true,
		"token":                  secret,
		"enable_ssl_verification": true,
	})
	if err != nil {
		return err
	}
	resp, err := p.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/hooks", projectID(owner, repo)), body)
	if err != nil {
		return fmt.Errorf("gitlab: register webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("gitlab: register webhook: status %d", resp.StatusCode)
	}
	return nil
}

func (p *GitLabProvider) RemoveNotifications(ctx context.Context, owner, repo, hookID string) error {
	resp, err := p.do(ctx, http.MethodDelete, fmt.Sprintf("/projects/%s/hooks/%s", projectID(owner, repo), hookID), nil)
	if err != nil {
		return fmt.Errorf("gitlab: remove webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("gitlab: remove webhook: status %d", resp.StatusCode)
	}
	return nil
}

type gitlabPushEvent struct {
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

func (p *GitLabProvider) ParseNotification(eventType string, payload []byte) ([]ChangeEvent, error) {
	switch eventType {
	case "Push Hook", "push":
		var push gitlabPushEvent
		if err := json.Unmarshal(payload, &push); err != nil {
			return nil, fmt.Errorf("gitlab: parse push event: %w", err)
		}
		events := make([]ChangeEvent, 0, len(push.Commits))
		for _, c := range push.Commits {
			files := append(append(append([]string{}, c.Added...), c.Modified...), c.Removed...)
			events = append(events, ChangeEvent{
				Kind: EventCommit, SHA: c.ID, Message: c.Message,
				Author: c.Author.Name, Timestamp: c.Timestamp, Files: files,
			})
		}
		return events, nil
	case "Merge Request Hook", "merge_request":
		var mr struct {
			ObjectAttributes struct {
				IID    int    `json:"iid"`
				Action string `json:"action"`
				Title  string `json:"title"`
			} `json:"object_attributes"`
		}
		if err := json.Unmarshal(payload, &mr); err != nil {
			return nil, fmt.Errorf("gitlab: parse merge_request event: %w", err)
		}
		return []ChangeEvent{{Kind: EventPullRequest, Number: mr.ObjectAttributes.IID, Action: mr.ObjectAttributes.Action, Message: mr.ObjectAttributes.Title}}, nil
	default:
		return nil, nil
	}
}

// VerifyNotification checks GitLab's X-Gitlab-Token header against the
// configured secret with a constant-time comparison (GitLab uses plain
// token equality, not an HMAC, unlike GitHub).
func (p *GitLabProvider) VerifyNotification(headers http.Header, body []byte, secret string) bool {
	got := headers.Get("X-Gitlab-Token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func (p *GitLabProvider) SupportsWebhooks() bool { return true }
func (p *GitLabProvider) RequiresPolling() bool   { return false }
