// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

import (
	"context"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// parsers are not thread-safe; one sync.Pool per language lets concurrent
// indexer workers share a small set of parser instances instead of
// allocating one per file.
var (
	goPool   sync.Pool
	pyPool   sync.Pool
	jsPool   sync.Pool
	tsPool   sync.Pool
	poolInit sync.Once
)

func initPools() {
	poolInit.Do(func() {
		goPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(golang.GetLanguage())
			return p
		}
		pyPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(python.GetLanguage())
			return p
		}
		jsPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(javascript.GetLanguage())
			return p
		}
		tsPool.New = func() any {
			p := sitter.NewParser()
			p.SetLanguage(typescript.GetLanguage())
			return p
		}
	})
}

func isASTLanguage(language string) bool {
	_, ok := interestingKinds[language]
	return ok
}

func poolFor(language string) *sync.Pool {
	switch language {
	case "go":
		return &goPool
	case "python":
		return &pyPool
	case "javascript", "jsx":
		return &jsPool
	case "typescript", "tsx":
		return &tsPool
	default:
		return nil
	}
}

// chunkAST walks the parse tree and emits chunks for every node whose kind
// is in the language's interesting set. Returns ok=false when no parser
// exists for the language or parsing produced no usable tree, so the caller
// falls back to line windows.
func chunkAST(content, language string, opts Options) ([]Chunk, bool) {
	pool := poolFor(language)
	if pool == nil {
		return nil, false
	}
	initPools()

	parserObj := pool.Get()
	parser, ok := parserObj.(*sitter.Parser)
	if !ok {
		return nil, false
	}
	defer pool.Put(parser)

	source := []byte(content)
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, false
	}

	kinds := interestingKinds[language]
	var nodes []*sitter.Node
	collectInteresting(root, kinds, &nodes)

	if len(nodes) == 0 {
		return nil, false
	}

	var chunks []Chunk
	for _, n := range nodes {
		chunks = append(chunks, nodeToChunks(n, source, language, opts)...)
	}
	return chunks, true
}

func collectInteresting(node *sitter.Node, kinds map[string]bool, out *[]*sitter.Node) {
	if node == nil {
		return
	}
	if kinds[node.Type()] {
		*out = append(*out, node)
		// Don't descend into an interesting node's own interesting
		// descendants (e.g. a method inside a class already captured
		// by the class chunk) — the class is one chunk, not nested ones.
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectInteresting(node.Child(i), kinds, out)
	}
}

func nodeToChunks(n *sitter.Node, source []byte, language string, opts Options) []Chunk {
	startLine := int(n.StartPoint().Row) + 1
	endLine := int(n.EndPoint().Row) + 1
	lineCount := endLine - startLine + 1

	if lineCount < opts.MinChunkLines {
		return nil
	}

	nodeType := normalizeKind(language, n.Type())
	name := extractName(n, source)
	text := string(source[n.StartByte():n.EndByte()])

	if lineCount > opts.MaxChunkLines {
		return splitOversizedLines(text, nodeType, startLine, opts)
	}

	return []Chunk{{
		Content:   text,
		NodeType:  nodeType,
		NodeName:  name,
		StartLine: startLine,
		EndLine:   endLine,
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}}
}

var nameChildKinds = map[string]bool{
	"identifier":          true,
	"name":                 true,
	"type_identifier":      true,
	"property_identifier":  true,
}

// extractName finds the chunk's name from the first child of a
// name-shaped kind, searching direct children first and then the children
// of each direct child in order, stopping at the first match.
func extractName(n *sitter.Node, source []byte) string {
	if name := firstNamedChildOfKind(n, source); name != "" {
		return name
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if name := firstNamedChildOfKind(child, source); name != "" {
			return name
		}
	}
	return ""
}

func firstNamedChildOfKind(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if nameChildKinds[child.Type()] {
			return string(source[child.StartByte():child.EndByte()])
		}
	}
	return ""
}
