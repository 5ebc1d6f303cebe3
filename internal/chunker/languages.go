// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package chunker

// interestingKinds lists, per supported language, the tree-sitter grammar
// node kinds worth emitting as their own chunk: functions, methods,
// classes, enums, interfaces, type declarations, decorated definitions,
// lexical declarations and export statements.
var interestingKinds = map[string]map[string]bool{
	"go": {
		"function_declaration": true,
		"method_declaration":   true,
		"type_declaration":     true,
		"type_spec":            true,
	},
	"python": {
		"function_definition": true,
		"class_definition":    true,
		"decorated_definition": true,
	},
	"javascript": {
		"function_declaration":   true,
		"class_declaration":      true,
		"method_definition":      true,
		"lexical_declaration":    true,
		"export_statement":       true,
	},
	"typescript": {
		"function_declaration":  true,
		"class_declaration":     true,
		"method_definition":     true,
		"interface_declaration": true,
		"type_alias_declaration": true,
		"enum_declaration":      true,
		"export_statement":      true,
	},
}

// normalizedKinds maps a language's raw grammar node kind to the small,
// language-independent tag set used in chunk metadata and search filters.
var normalizedKinds = map[string]string{
	"function_declaration":   "function",
	"function_definition":    "function",
	"method_declaration":     "method",
	"method_definition":      "method",
	"class_declaration":      "class",
	"class_definition":       "class",
	"type_declaration":       "type",
	"type_spec":              "type",
	"type_alias_declaration": "type",
	"interface_declaration":  "interface",
	"enum_declaration":       "enum",
	"decorated_definition":   "decorated",
	"lexical_declaration":    "object",
	"export_statement":       "export",
}

func normalizeKind(language, kind string) string {
	if tag, ok := normalizedKinds[kind]; ok {
		return tag
	}
	return kind
}

// IsChunkCapable reports whether language has a dedicated chunking strategy
// (AST or markdown headings) rather than falling straight to the
// plaintext/line-window tier.
func IsChunkCapable(language string) bool {
	if isMarkdown(language) {
		return true
	}
	_, ok := interestingKinds[language]
	return ok
}
