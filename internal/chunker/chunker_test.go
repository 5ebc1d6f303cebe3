// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkContentEmpty(t *testing.T) {
	chunks := ChunkContent("", "go", Options{})
	assert.Empty(t, chunks)
}

func TestChunkMarkdownHeadings(t *testing.T) {
	content := "# Title\n\nintro text\n\n## Section A\n\nbody A\n\n## Section B\n\nbody B\n"
	chunks := ChunkContent(content, "markdown", Options{})
	require.Len(t, chunks, 3)
	assert.Equal(t, "h1", chunks[0].NodeType)
	assert.Equal(t, "Title", chunks[0].NodeName)
	assert.Equal(t, "Section A", chunks[1].NodeName)
	assert.Equal(t, "Section B", chunks[2].NodeName)
}

func TestChunkMarkdownIgnoresFencedHeadings(t *testing.T) {
	content := "# Real Heading\n\n```\n# not a heading\n```\n"
	chunks := ChunkContent(content, "markdown", Options{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "Real Heading", chunks[0].NodeName)
}

func TestChunkMarkdownNoHeadingsIsOneDocument(t *testing.T) {
	content := "just some prose\nwith no headings at all\n"
	chunks := ChunkContent(content, "markdown", Options{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "document", chunks[0].NodeType)
}

func TestChunkPlaintextParagraphs(t *testing.T) {
	content := "paragraph one\nline two\n\nparagraph two\n\nparagraph three\n"
	chunks := ChunkContent(content, "text", Options{LineChunkSize: 3})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "paragraph", c.NodeType)
	}
}

func TestChunkASTGoFunctions(t *testing.T) {
	content := `package sample

func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}
`
	chunks := ChunkContent(content, "go", Options{})
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, "function", c.NodeType)
	}
	names := map[string]bool{chunks[0].NodeName: true, chunks[1].NodeName: true}
	assert.True(t, names["Add"])
	assert.True(t, names["Sub"])
}

func TestChunkASTFallsBackOnUnsupportedLanguage(t *testing.T) {
	chunks := ChunkContent(strings.Repeat("line\n", 5), "cobol", Options{LineChunkSize: 2, LineOverlap: 1})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Contains(t, []string{"paragraph", "window"}, c.NodeType)
	}
}

func TestSplitOversizedLinesNamesParts(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString("x\n")
	}
	chunks := splitOversizedLines(b.String(), "function", 1, Options{LineChunkSize: 50, LineOverlap: 10})
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "function_part1", chunks[0].NodeName)
	assert.Equal(t, "function_part2", chunks[1].NodeName)
}
