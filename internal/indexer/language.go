// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package indexer

import (
	"path/filepath"
	"strings"
)

// extLanguages maps a lowercase file extension to the language tag used by
// the chunker and stored on the memory row. Extensions absent from this map
// (and not routed through docparse) are treated as unknown/binary and
// skipped.
var extLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".md":   "markdown",
	".mdx":  "markdown",
	".txt":  "plaintext",
	".json": "plaintext",
	".yaml": "plaintext",
	".yml":  "plaintext",
	".toml": "plaintext",
	".sql":  "plaintext",
	".sh":   "plaintext",
	".html": "plaintext",
	".htm":  "plaintext",
	".eml":  "plaintext",
	".pdf":  "plaintext",
	".docx": "plaintext",
	".xlsx": "plaintext",
	".xls":  "plaintext",
}

// docparseExtensions are routed through internal/docparse for text
// extraction rather than read raw.
var docparseExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".xlsx": true, ".xls": true,
	".html": true, ".htm": true, ".eml": true,
}

func languageForPath(relpath string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(relpath))
	lang, ok := extLanguages[ext]
	return lang, ok
}

// isDocparseExt reports whether relpath's extension should be routed
// through docparse for extraction instead of read as raw text.
func isDocparseExt(relpath string) bool {
	return docparseExtensions[strings.ToLower(filepath.Ext(relpath))]
}
