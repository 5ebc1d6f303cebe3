// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package git is the git adapter (C10): local clone/pull/HEAD against a
// disposable working copy, and a small per-host-provider abstraction over
// GitHub/GitLab's commit, file, and webhook APIs.
package git

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Executor runs git CLI commands against one repository root. Exported so
// tests can substitute a fake; production code always uses NewExecutor.
type Executor interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// CLIExecutor shells out to the system `git` binary.
type CLIExecutor struct{}

func NewExecutor() Executor { return CLIExecutor{} }

func (CLIExecutor) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s timed out or canceled: %w", args[0], ctx.Err())
		}
		if stderrStr := strings.TrimSpace(stderr.String()); stderrStr != "" {
			return "", fmt.Errorf("git %s failed: %s", args[0], stderrStr)
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return stdout.String(), nil
}

// Local wraps the disposable-clone lifecycle used by the indexer's
// index_repo/reindex_repo jobs: clones are local caches, not a durable
// workspace, so a bad state is fixed by removing and re-cloning rather than
// by reconciling history.
type Local struct {
	exec Executor
}

func NewLocal(exec Executor) *Local {
	if exec == nil {
		exec = NewExecutor()
	}
	return &Local{exec: exec}
}

// CloneOrPull ensures baseDir/slug contains an up-to-date checkout of
// branch. If the directory is already a valid git repository it pulls
// instead of cloning; if it exists but is not a valid repository it is
// removed and re-cloned. Returns the checkout path.
func (l *Local) CloneOrPull(ctx context.Context, baseDir, slug, owner, repo, branch, token, provider string) (string, error) {
	path := filepath.Join(baseDir, slug)

	if info, err := os.Stat(filepath.Join(path, ".git")); err == nil && info.IsDir() {
		if err := l.PullRepo(ctx, path, branch, token, provider); err != nil {
			return "", err
		}
		return path, nil
	} else if _, statErr := os.Stat(path); statErr == nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return "", fmt.Errorf("git: remove invalid checkout %s: %w", path, rmErr)
		}
	}

	remote, err := remoteURL(owner, repo, token, provider)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("git: create base dir: %w", err)
	}

	args := []string{"clone", "--branch", branch, "--single-branch", remote, path}
	if _, err := l.exec.Run(ctx, baseDir, args...); err != nil {
		return "", fmt.Errorf("git: clone %s/%s: %w", owner, repo, err)
	}
	return path, nil
}

// PullRepo fetches and fast-forwards path to branch's remote tip. On a
// non-fast-forward divergence it hard-resets to the remote ref: indexing
// clones are disposable, so local history never needs preserving.
func (l *Local) PullRepo(ctx context.Context, path, branch, token, provider string) error {
	if token != "" {
		if err := l.setAuthenticatedRemote(ctx, path, token, provider); err != nil {
			return err
		}
	}
	if _, err := l.exec.Run(ctx, path, "fetch", "origin", branch); err != nil {
		return fmt.Errorf("git: fetch: %w", err)
	}
	if _, err := l.exec.Run(ctx, path, "merge", "--ff-only", "origin/"+branch); err != nil {
		if _, resetErr := l.exec.Run(ctx, path, "reset", "--hard", "origin/"+branch); resetErr != nil {
			return fmt.Errorf("git: non-fast-forward, reset failed: %w", resetErr)
		}
	}
	return nil
}

// MetaBotName and MetaBotEmail identify commits the daemon writes back to a
// repository (sync_metadata), distinguishing them from user commits.
const (
	MetaBotName  = "fold-meta-bot"
	MetaBotEmail = "fold-meta-bot@noreply.fold.dev"
)

// CommitAndPush stages paths (relative to path), commits as fold-meta-bot,
// and pushes HEAD to origin/branch. Returns the new commit SHA.
func (l *Local) CommitAndPush(ctx context.Context, path, branch string, paths []string, message, token, provider string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("git: commit and push: no paths to stage")
	}
	if token != "" {
		if err := l.setAuthenticatedRemote(ctx, path, token, provider); err != nil {
			return "", err
		}
	}
	addArgs := append([]string{"add"}, paths...)
	if _, err := l.exec.Run(ctx, path, addArgs...); err != nil {
		return "", fmt.Errorf("git: add: %w", err)
	}
	commitArgs := []string{
		"-c", "user.name=" + MetaBotName,
		"-c", "user.email=" + MetaBotEmail,
		"commit", "-m", message,
	}
	if _, err := l.exec.Run(ctx, path, commitArgs...); err != nil {
		return "", fmt.Errorf("git: commit: %w", err)
	}
	if _, err := l.exec.Run(ctx, path, "push", "origin", "HEAD:"+branch); err != nil {
		return "", fmt.Errorf("git: push: %w", err)
	}
	return l.GetHeadSHA(ctx, path)
}

// GetHeadSHA returns the checked-out HEAD commit sha.
func (l *Local) GetHeadSHA(ctx context.Context, path string) (string, error) {
	out, err := l.exec.Run(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git: rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (l *Local) setAuthenticatedRemote(ctx context.Context, path, token, provider string) error {
	current, err := l.exec.Run(ctx, path, "remote", "get-url", "origin")
	if err != nil {
		return fmt.Errorf("git: get remote url: %w", err)
	}
	authed, err := injectToken(strings.TrimSpace(current), token)
	if err != nil {
		return err
	}
	if _, err := l.exec.Run(ctx, path, "remote", "set-url", "origin", authed); err != nil {
		return fmt.Errorf("git: set remote url: %w", err)
	}
	return nil
}

// remoteURL builds an HTTPS clone URL with the access token embedded as
// basic-auth credentials: username "x-access-token", password the token.
// Both GitHub and GitLab accept this form for a personal/installation token.
func remoteURL(owner, repo, token, provider string) (string, error) {
	host := providerHost(provider)
	base := fmt.Sprintf("https://%s/%s/%s.git", host, owner, repo)
	if token == "" {
		return base, nil
	}
	return injectToken(base, token)
}

func injectToken(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("git: parse remote url: %w", err)
	}
	u.User = url.UserPassword("x-access-token", token)
	return u.String(), nil
}

func providerHost(provider string) string {
	switch provider {
	case "gitlab":
		return "gitlab.com"
	default:
		return "github.com"
	}
}
