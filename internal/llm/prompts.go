// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Analysis is the structured result of the analysis prompt: keyword/tag/
// context extraction run over a memory's body on add, when auto-metadata is
// requested and the caller didn't supply these fields.
type Analysis struct {
	Keywords []string `json:"keywords"`
	Context  string   `json:"context"`
	Tags     []string `json:"tags"`
}

// Neighbor is a compact description of a nearest-neighbor memory, used both
// as evolution-prompt input and echoed back (by index) in its response.
type Neighbor struct {
	ID       string   `json:"id"`
	Snippet  string   `json:"snippet"`
	Context  string   `json:"context"`
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
}

// EvolutionDecision is the structured result of the evolution prompt.
type EvolutionDecision struct {
	ShouldEvolve             bool       `json:"should_evolve"`
	Actions                  []string   `json:"actions"`
	SuggestedConnections     []string   `json:"suggested_connections"`
	TagsToUpdate             []string   `json:"tags_to_update"`
	NewContextNeighbourhood  []string   `json:"new_context_neighbourhood"`
	NewTagsNeighbourhood     [][]string `json:"new_tags_neighbourhood"`
}

// LinkSuggestion is one entry of suggest_links' response.
type LinkSuggestion struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	LinkType   string  `json:"link_type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const analysisMaxTokens = 400

// Analyze asks the router to extract keywords, tags and a short context
// summary for a memory's body. A parse failure is not an error: the caller
// treats a zero-value Analysis as "no metadata available" rather than fatal.
func (r *Router) Analyze(ctx context.Context, content string) (Analysis, bool) {
	prompt := fmt.Sprintf(`Analyze the following content and return ONLY a JSON object with:
- "keywords": up to 15 short keyword strings
- "context": a 3-5 sentence summary of what this content is about
- "tags": up to 6 short category tags

Content:
%s`, truncateForPrompt(content, 4000))

	text, _, err := r.Complete(ctx, prompt, analysisMaxTokens)
	if err != nil {
		return Analysis{}, false
	}

	var a Analysis
	if !extractJSON(text, &a) {
		return Analysis{}, false
	}
	if len(a.Keywords) > 15 {
		a.Keywords = a.Keywords[:15]
	}
	if len(a.Tags) > 6 {
		a.Tags = a.Tags[:6]
	}
	return a, true
}

const titleMaxTokens = 30

// Title asks the router for a single-line title, sentence case, <=60 chars,
// no surrounding quotes.
func (r *Router) Title(ctx context.Context, content string) (string, bool) {
	prompt := fmt.Sprintf(`Write a single-line title, sentence case, no quotes, at most 60 characters, summarizing this content:

%s`, truncateForPrompt(content, 2000))

	text, _, err := r.Complete(ctx, prompt, titleMaxTokens)
	if err != nil {
		return "", false
	}

	title := strings.TrimSpace(text)
	title = strings.Trim(title, `"'`)
	if idx := strings.IndexAny(title, "\r\n"); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > 60 {
		title = title[:60]
	}
	if title == "" {
		return "", false
	}
	return title, true
}

const evolutionMaxTokens = 800

// Evolve asks the router whether a newly added agent memory should be linked
// to, or should rewrite, any of its nearest neighbours.
func (r *Router) Evolve(ctx context.Context, body string, metadata Analysis, neighbours []Neighbor) (EvolutionDecision, bool) {
	var nb strings.Builder
	for i, n := range neighbours {
		fmt.Fprintf(&nb, "[%d] id=%s\nsnippet: %s\ncontext: %s\nkeywords: %s\ntags: %s\n\n",
			i, n.ID, truncateForPrompt(n.Snippet, 300), n.Context,
			strings.Join(n.Keywords, ", "), strings.Join(n.Tags, ", "))
	}

	prompt := fmt.Sprintf(`A new memory was just added. Decide whether it should be linked to any of
its nearest neighbours, or whether any neighbour's context/tags should be
updated as a result. Return ONLY a JSON object with:
- "should_evolve": bool
- "actions": array of action names, each "strengthen" or "update_neighbor"
- "suggested_connections": array of neighbour ids (from the list below) to link to
- "tags_to_update": array of tags to set on the new memory, if any
- "new_context_neighbourhood": array (same order as neighbours below) of new context strings, empty string if unchanged
- "new_tags_neighbourhood": array of arrays (same order), empty array if unchanged

New memory context: %s
New memory keywords: %s
New memory tags: %s

New memory body:
%s

Neighbours:
%s`, metadata.Context, strings.Join(metadata.Keywords, ", "), strings.Join(metadata.Tags, ", "),
		truncateForPrompt(body, 1500), nb.String())

	text, _, err := r.Complete(ctx, prompt, evolutionMaxTokens)
	if err != nil {
		return EvolutionDecision{}, false
	}

	var d EvolutionDecision
	if !extractJSON(text, &d) {
		return EvolutionDecision{}, false
	}
	return d, true
}

// SuggestLinksCandidate is one candidate memory offered to SuggestLinks.
type SuggestLinksCandidate struct {
	ID      string
	Snippet string
}

const suggestLinksMaxTokens = 500

// SuggestLinks asks the router to propose typed links between a memory and a
// set of candidates.
func (r *Router) SuggestLinks(ctx context.Context, memoryID, memoryBody string, candidates []SuggestLinksCandidate) ([]LinkSuggestion, bool) {
	var cb strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&cb, "id=%s: %s\n", c.ID, truncateForPrompt(c.Snippet, 300))
	}

	prompt := fmt.Sprintf(`Given the memory below and a list of candidate memories, return ONLY a
JSON array of link suggestions, each an object with "source_id", "target_id",
"link_type" (one of related, implements, modifies, affects, decides,
references, depends_on, extends, contains, parent), "confidence" (0-1) and
"reason". Only use ids from the candidate list as target_id.

Memory id: %s
Memory body:
%s

Candidates:
%s`, memoryID, truncateForPrompt(memoryBody, 1500), cb.String())

	text, _, err := r.Complete(ctx, prompt, suggestLinksMaxTokens)
	if err != nil {
		return nil, false
	}

	var suggestions []LinkSuggestion
	if !extractJSON(text, &suggestions) {
		return nil, false
	}
	return suggestions, true
}

const summaryMaxTokens = 400

// Summarize asks the router for a prose summary of content, tailored by
// summaryType (one of "commit", "pr", "code"; anything else gets a generic
// prompt), used by the worker's generate_summary job.
func (r *Router) Summarize(ctx context.Context, summaryType, content string) (string, bool) {
	var instruction string
	switch summaryType {
	case "commit":
		instruction = "Summarize this commit in 2-3 sentences: what changed and why, if evident."
	case "pr":
		instruction = "Summarize this pull request in a short paragraph: its purpose and the main changes."
	case "code":
		instruction = "Summarize what this code does in 2-3 sentences, for someone unfamiliar with it."
	default:
		instruction = "Summarize the following content in a short paragraph."
	}

	prompt := fmt.Sprintf("%s\n\n%s", instruction, truncateForPrompt(content, 4000))

	text, _, err := r.Complete(ctx, prompt, summaryMaxTokens)
	if err != nil {
		return "", false
	}
	summary := strings.TrimSpace(text)
	if summary == "" {
		return "", false
	}
	return summary, true
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// extractJSON pulls a JSON payload out of a completion that may wrap it in
// markdown fences or surround it with explanatory prose, and unmarshals it
// into out. Returns false (not an error) on any parse failure, per the
// "treat unparsable responses as no-op" rule.
func extractJSON(text string, out interface{}) bool {
	candidates := []string{text}

	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidates = append([]string{strings.TrimSpace(m[1])}, candidates...)
	}

	if start := strings.IndexAny(text, "{["); start >= 0 {
		end := strings.LastIndexAny(text, "}]")
		if end > start {
			candidates = append([]string{text[start : end+1]}, candidates...)
		}
	}

	for _, c := range candidates {
		if json.Unmarshal([]byte(c), out) == nil {
			return true
		}
	}
	return false
}

func truncateForPrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
