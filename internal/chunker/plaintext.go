// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"strconv"
	"strings"
)

// chunkPlaintext splits on blank-line paragraphs, flushing the accumulated
// buffer whenever adding the next paragraph would exceed LineChunkSize
// lines.
func chunkPlaintext(content string, opts Options) []Chunk {
	lines := strings.Split(content, "\n")
	var paragraphs [][]string
	var current []string

	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, current)
			current = nil
		}
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []Chunk
	var bufLines []string
	bufStart := 0
	lineNo := 0

	flushBuf := func(endLine int) {
		if len(bufLines) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Content:   strings.Join(bufLines, "\n"),
			NodeType:  "paragraph",
			StartLine: bufStart + 1,
			EndLine:   endLine,
		})
		bufLines = nil
	}

	for _, p := range paragraphs {
		if len(bufLines) == 0 {
			bufStart = lineNo
		}
		if len(bufLines)+len(p) > opts.LineChunkSize && len(bufLines) > 0 {
			flushBuf(lineNo)
			bufStart = lineNo
		}
		bufLines = append(bufLines, p...)
		lineNo += len(p) + 1 // +1 for the blank separator line consumed by Split
	}
	flushBuf(lineNo)

	return chunks
}

// lineWindows is the final fallback: overlapping fixed-size line windows,
// used when no richer strategy produced any chunks (including AST parse
// failure / unsupported language, and markdown with no recognisable
// structure won't reach here since it always yields a document chunk).
func lineWindows(content string, opts Options) []Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	step := opts.LineChunkSize - opts.LineOverlap
	if step <= 0 {
		step = opts.LineChunkSize
	}

	for start := 0; start < len(lines); start += step {
		end := start + opts.LineChunkSize
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			Content:   strings.Join(lines[start:end], "\n"),
			NodeType:  "window",
			StartLine: start + 1,
			EndLine:   end,
		})
		if end >= len(lines) {
			break
		}
	}
	return chunks
}

// splitOversizedLines splits a node's content, whose first line is
// startLine within the original file, into overlapping windows named
// "<nodeType>_part1", "<nodeType>_part2", ... per §4.2's oversized-node rule.
func splitOversizedLines(content, nodeType string, startLine int, opts Options) []Chunk {
	lines := strings.Split(content, "\n")
	step := opts.LineChunkSize - opts.LineOverlap
	if step <= 0 {
		step = opts.LineChunkSize
	}

	var chunks []Chunk
	part := 1
	for start := 0; start < len(lines); start += step {
		end := start + opts.LineChunkSize
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			Content:   strings.Join(lines[start:end], "\n"),
			NodeType:  nodeType,
			NodeName:  nodeTypePart(nodeType, part),
			StartLine: startLine + start,
			EndLine:   startLine + end - 1,
		})
		part++
		if end >= len(lines) {
			break
		}
	}
	return chunks
}

func nodeTypePart(nodeType string, part int) string {
	return nodeType + "_part" + strconv.Itoa(part)
}
