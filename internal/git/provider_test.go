// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package git

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGitHubGetFileDecodesBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"content":  "aGVsbG8=",
			"encoding": "base64",
		})
	}))
	defer srv.Close()

	p := &GitHubProvider{baseURL: srv.URL}
	content, err := p.GetFile(context.Background(), "acme", "widgets", "README.md", "main")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(content) != "hello" {
		t.Fatalf("expected decoded content, got %q", content)
	}
}

func TestGitHubListFilesFiltersBlobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tree": []map[string]string{
				{"path": "main.go", "type": "blob"},
				{"path": "internal", "type": "tree"},
				{"path": "internal/x.go", "type": "blob"},
			},
		})
	}))
	defer srv.Close()

	p := &GitHubProvider{baseURL: srv.URL}
	files, err := p.ListFiles(context.Background(), "acme", "widgets", "main")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 blobs, got %v", files)
	}
}

func TestGitHubDetectChangesSkipsCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"sha": "cursor-sha", "commit": map[string]interface{}{"message": "old"}},
			{"sha": "new-sha", "commit": map[string]interface{}{"message": "new"}},
		})
	}))
	defer srv.Close()

	p := &GitHubProvider{baseURL: srv.URL}
	events, err := p.DetectChanges(context.Background(), "acme", "widgets", "cursor-sha")
	if err != nil {
		t.Fatalf("DetectChanges: %v", err)
	}
	if len(events) != 1 || events[0].SHA != "new-sha" {
		t.Fatalf("expected only the commit after the cursor, got %+v", events)
	}
}

func TestGitHubVerifyNotificationValidSignature(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"ref":"refs/heads/main"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("X-Hub-Signature-256", sig)

	p := &GitHubProvider{}
	if !p.VerifyNotification(headers, body, secret) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestGitHubVerifyNotificationRejectsTamperedBody(t *testing.T) {
	secret := "s3cr3t"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(`{"ref":"refs/heads/main"}`))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("X-Hub-Signature-256", sig)

	p := &GitHubProvider{}
	if p.VerifyNotification(headers, []byte(`{"ref":"refs/heads/evil"}`), secret) {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestGitHubParseNotificationPush(t *testing.T) {
	payload := []byte(`{
		"after": "new-sha",
		"commits": [{"id": "new-sha", "message": "fix bug", "author": {"name": "dev"}, "added": ["a.go"], "modified": ["b.go"], "removed": []}]
	}`)
	p := &GitHubProvider{}
	events, err := p.ParseNotification("push", payload)
	if err != nil {
		t.Fatalf("ParseNotification: %v", err)
	}
	var sawCommit, sawCreate, sawModify bool
	for _, e := range events {
		switch e.Kind {
		case EventCommit:
			sawCommit = true
		case EventFileCreated:
			sawCreate = true
		case EventFileModified:
			sawModify = true
		}
	}
	if !sawCommit || !sawCreate || !sawModify {
		t.Fatalf("expected commit+create+modify events, got %+v", events)
	}
}

func TestGitLabVerifyNotificationTokenEquality(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-Gitlab-Token", "expected-token")

	p := &GitLabProvider{}
	if !p.VerifyNotification(headers, nil, "expected-token") {
		t.Fatal("expected matching token to verify")
	}
	if p.VerifyNotification(headers, nil, "other-token") {
		t.Fatal("expected mismatched token to fail")
	}
}

func TestGitLabListFilesFiltersBlobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"path": "main.go", "type": "blob"},
			{"path": "internal", "type": "tree"},
		})
	}))
	defer srv.Close()

	p := &GitLabProvider{baseURL: srv.URL}
	files, err := p.ListFiles(context.Background(), "acme", "widgets", "main")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "main.go" {
		t.Fatalf("unexpected files: %v", files)
	}
}

func TestNewProviderDispatchesByName(t *testing.T) {
	if _, ok := NewProvider("github", "").(*GitHubProvider); !ok {
		t.Fatal("expected github to return a GitHubProvider")
	}
	if _, ok := NewProvider("gitlab", "").(*GitLabProvider); !ok {
		t.Fatal("expected gitlab to return a GitLabProvider")
	}
}
