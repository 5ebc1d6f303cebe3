// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/northbound/fold/internal/metadata"
)

const (
	foldDir      = ".fold"
	foldFilesDir = "files"
)

// fileMarkdownPath mirrors a project-relative file path into .fold/files,
// replacing path separators so every memory gets a single flat file.
func fileMarkdownPath(relFilePath string) string {
	flat := strings.NewReplacer("/", "_", "\\", "_").Replace(relFilePath)
	return filepath.Join(foldFilesDir, flat+".md")
}

// generateFileMarkdown renders the per-file metadata page: summary from the
// most-recently-updated memory touching that file, its keywords, and its
// links.
func generateFileMarkdown(filePath string, memories []*metadata.Memory, links []*metadata.Link) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", filePath)

	latest := memories[0]
	for _, m := range memories[1:] {
		if m.UpdatedAt.After(latest.UpdatedAt) {
			latest = m
		}
	}

	if latest.Title != nil {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", *latest.Title)
	}
	if len(latest.Keywords) > 0 {
		b.WriteString("## Keywords\n\n")
		for _, kw := range latest.Keywords {
			fmt.Fprintf(&b, "- %s\n", kw)
		}
		b.WriteString("\n")
	}
	if len(links) > 0 {
		b.WriteString("## Links\n\n")
		for _, l := range links {
			fmt.Fprintf(&b, "- **%s**: %s\n", l.LinkType, l.TargetID)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "*Last indexed: %s by fold*\n", time.Now().UTC().Format(time.RFC3339))
	return b.String()
}

// generateFoldReadme renders the top-level .fold/README.md summary.
func generateFoldReadme(memories []*metadata.Memory) string {
	fileSet := make(map[string]bool)
	for _, m := range memories {
		if m.FilePath != nil {
			fileSet[*m.FilePath] = true
		}
	}

	var b strings.Builder
	b.WriteString("# Fold Metadata\n\n")
	b.WriteString("This directory contains auto-generated metadata from fold.\n\n")
	b.WriteString("> Do not edit these files manually. They are overwritten by fold-meta-bot.\n\n")
	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- **Files indexed**: %d\n", len(fileSet))
	fmt.Fprintf(&b, "- **Total memories**: %d\n", len(memories))
	fmt.Fprintf(&b, "- **Last sync**: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("## Structure\n\n")
	b.WriteString("```\n.fold/\n  README.md      # this file\n  files/         # per-file metadata\n```\n\n")
	b.WriteString("---\n\n*Generated by fold-meta-bot*\n")
	return b.String()
}

// materializeFoldDir writes the per-file markdown pages plus the README
// under repoPath/.fold, returning the repo-relative paths of every file
// that was created or changed (so the caller only stages real diffs).
func materializeFoldDir(repoPath string, memories []*metadata.Memory, linksByMemory map[string][]*metadata.Link) ([]string, error) {
	filesDir := filepath.Join(repoPath, foldDir, foldFilesDir)
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create .fold dir: %w", err)
	}

	byFile := make(map[string][]*metadata.Memory)
	for _, m := range memories {
		if m.FilePath == nil || *m.FilePath == "" {
			continue
		}
		byFile[*m.FilePath] = append(byFile[*m.FilePath], m)
	}

	var changed []string
	for filePath, fileMemories := range byFile {
		latest := fileMemories[0]
		for _, m := range fileMemories[1:] {
			if m.UpdatedAt.After(latest.UpdatedAt) {
				latest = m
			}
		}
		content := generateFileMarkdown(filePath, fileMemories, linksByMemory[latest.ID])
		relPath := filepath.Join(foldDir, fileMarkdownPath(filePath))
		absPath := filepath.Join(repoPath, relPath)

		wrote, err := writeIfChanged(absPath, content)
		if err != nil {
			return nil, err
		}
		if wrote {
			changed = append(changed, relPath)
		}
	}

	readmeRel := filepath.Join(foldDir, "README.md")
	wrote, err := writeIfChanged(filepath.Join(repoPath, readmeRel), generateFoldReadme(memories))
	if err != nil {
		return nil, err
	}
	if wrote {
		changed = append(changed, readmeRel)
	}
	return changed, nil
}

func writeIfChanged(path, content string) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && string(existing) == content {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func syncMetadataCommitMessage(n int) string {
	if n == 1 {
		return "chore(fold): update metadata for 1 file\n\nSynced by fold-meta-bot"
	}
	return fmt.Sprintf("chore(fold): update metadata for %d files\n\nSynced by fold-meta-bot", n)
}
