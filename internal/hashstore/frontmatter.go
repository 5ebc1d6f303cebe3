// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package hashstore

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// render combines frontmatter and body into the on-disk document format:
// "---\n<yaml>\n---\n\n<body>".
func render(fm Frontmatter, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delimiter)
	buf.WriteByte('\n')

	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("hashstore: marshal frontmatter: %w", err)
	}
	buf.Write(fmBytes)

	buf.WriteString(delimiter)
	buf.WriteString("\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// parse splits a document's frontmatter from its body.
func parse(data []byte) (*Record, error) {
	str := string(data)
	if !strings.HasPrefix(str, delimiter) {
		return nil, fmt.Errorf("hashstore: missing frontmatter delimiter")
	}

	rest := str[len(delimiter):]
	idx := strings.Index(rest, "\n"+delimiter)
	if idx == -1 {
		return nil, fmt.Errorf("hashstore: unclosed frontmatter")
	}

	fmYAML := rest[:idx]
	body := strings.TrimPrefix(rest[idx+len("\n"+delimiter):], "\n")
	body = strings.TrimPrefix(body, "\n")

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(fmYAML), &fm); err != nil {
		return nil, fmt.Errorf("hashstore: parse frontmatter: %w", err)
	}

	return &Record{Frontmatter: fm, Body: body}, nil
}
