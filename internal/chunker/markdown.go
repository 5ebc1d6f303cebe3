// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"regexp"
	"strings"
)

var atxHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// chunkMarkdown splits on ATX headings, never inside a fenced code block.
// If no headings are found, the whole document is returned as one chunk.
func chunkMarkdown(content string) []Chunk {
	lines := strings.Split(content, "\n")

	type section struct {
		level     int
		name      string
		startLine int
		body      []string
	}

	var sections []*section
	var current *section
	inFence := false

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			if current != nil {
				current.body = append(current.body, line)
			}
			continue
		}

		if !inFence {
			if m := atxHeadingRe.FindStringSubmatch(line); m != nil {
				current = &section{
					level:     len(m[1]),
					name:      m[2],
					startLine: lineNo,
				}
				sections = append(sections, current)
				continue
			}
		}

		if current != nil {
			current.body = append(current.body, line)
		}
	}

	if len(sections) == 0 {
		return []Chunk{{
			Content:   content,
			NodeType:  "document",
			StartLine: 1,
			EndLine:   len(lines),
		}}
	}

	var chunks []Chunk
	for i, s := range sections {
		endLine := len(lines)
		if i+1 < len(sections) {
			endLine = sections[i+1].startLine - 1
		}
		body := strings.TrimRight(strings.Join(s.body, "\n"), "\n")
		heading := strings.Repeat("#", s.level) + " " + s.name
		text := heading
		if body != "" {
			text = heading + "\n" + body
		}
		chunks = append(chunks, Chunk{
			Content:   text,
			NodeType:  headingNodeType(s.level),
			NodeName:  s.name,
			StartLine: s.startLine,
			EndLine:   endLine,
		})
	}
	return chunks
}

func headingNodeType(level int) string {
	return "h" + string(rune('0'+level))
}
