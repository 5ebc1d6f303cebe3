// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package chunker splits memory content into sub-document chunks for vector
// indexing. Strategy is selected by language tag: AST-based splitting for
// code languages with a tree-sitter grammar, heading-based splitting for
// markdown, and paragraph/line-window splitting for everything else.
package chunker

// Chunk is an ordered sub-document unit extracted from a memory's content.
type Chunk struct {
	Content   string
	NodeType  string
	NodeName  string
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
}

// Options tunes chunk sizing. Zero values fall back to the defaults below.
type Options struct {
	MinChunkLines int
	MaxChunkLines int
	LineChunkSize int
	LineOverlap   int
}

const (
	DefaultMinChunkLines = 3
	DefaultMaxChunkLines = 200
	DefaultLineChunkSize = 50
	DefaultLineOverlap   = 10
)

func (o Options) withDefaults() Options {
	if o.MinChunkLines <= 0 {
		o.MinChunkLines = DefaultMinChunkLines
	}
	if o.MaxChunkLines <= 0 {
		o.MaxChunkLines = DefaultMaxChunkLines
	}
	if o.LineChunkSize <= 0 {
		o.LineChunkSize = DefaultLineChunkSize
	}
	if o.LineOverlap <= 0 {
		o.LineOverlap = DefaultLineOverlap
	}
	return o
}

// ChunkContent splits content tagged with the given language into an
// ordered sequence of chunks, selecting a strategy by language tag.
func ChunkContent(content, language string, opts Options) []Chunk {
	opts = opts.withDefaults()

	if content == "" {
		return nil
	}

	switch {
	case isMarkdown(language):
		chunks := chunkMarkdown(content)
		if len(chunks) > 0 {
			return chunks
		}
		return lineWindows(content, opts)
	case isASTLanguage(language):
		chunks, ok := chunkAST(content, language, opts)
		if ok {
			return chunks
		}
		return lineWindows(content, opts)
	default:
		chunks := chunkPlaintext(content, opts)
		if len(chunks) > 0 {
			return chunks
		}
		return lineWindows(content, opts)
	}
}

func isMarkdown(language string) bool {
	switch language {
	case "markdown", "md":
		return true
	default:
		return false
	}
}
