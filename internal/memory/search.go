// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/northbound/fold/internal/decay"
	"github.com/northbound/fold/internal/metadata"
	"github.com/northbound/fold/internal/vectordb"
)

// Result is one ranked hit from a search call.
type Result struct {
	Memory   *metadata.Memory
	Score    float64 // raw semantic relevance, 0..1
	Strength float64 // decayed retrieval strength, 0..1
	Combined float64 // blended ranking score, 0..1
}

// Search implements §4.8 search(): embed the query, vector-search at
// 2x limit (capped at 100), resolve bodies, blend relevance with decay
// strength, sort, truncate, then bump retrieval counters for the returned
// set only (so ranking reflects state as of the start of the query).
func (s *Service) Search(ctx context.Context, projectRootPath, vectorSlug string, cfg decay.Config, query string, memType *metadata.MemoryType, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	kPrime := limit * 2
	if kPrime > 100 {
		kPrime = 100
	}

	queryVec, err := s.embedder.EmbedSingleForSearch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: search: embed query: %w", err)
	}

	var filter vectordb.Filter
	if memType != nil {
		filter = vectordb.Filter{"type": string(*memType)}
	}

	hits, err := s.vectors.Search(ctx, vectorSlug, queryVec, kPrime, filter)
	if err != nil {
		return nil, fmt.Errorf("memory: search: vector search: %w", err)
	}

	now := time.Now()
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		m, err := s.meta.GetMemory(ctx, hit.ID)
		if err != nil || m == nil {
			continue
		}
		if err := s.resolveBody(projectRootPath, m); err != nil {
			continue
		}
		strength := decay.CalculateStrength(m.UpdatedAt, m.LastAccessed, m.RetrievalCount, cfg.HalfLifeDays, now)
		combined := decay.BlendScores(float64(hit.Score), strength, cfg.StrengthWeight)
		results = append(results, Result{Memory: m, Score: float64(hit.Score), Strength: strength, Combined: combined})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Combined > results[j].Combined })
	if len(results) > limit {
		results = results[:limit]
	}

	for _, r := range results {
		if err := s.meta.BumpRetrieval(ctx, r.Memory.ID); err != nil {
			return nil, fmt.Errorf("memory: search: bump retrieval: %w", err)
		}
	}
	return results, nil
}

// ChunkResult groups matched chunks under their parent memory.
type ChunkResult struct {
	Result
	MatchedChunks int
	MaxChunkScore float64
}

// SearchWithChunks implements §4.8 search_with_chunks(): an additional pass
// over the vector collection filtered to type="chunk", grouped by
// parent_memory_id. A memory not directly hit displays the max chunk score;
// matched chunks give an additive confidence boost capped at 0.1, clamped
// so combined never exceeds 1.
func (s *Service) SearchWithChunks(ctx context.Context, projectRootPath, vectorSlug string, cfg decay.Config, query string, memType *metadata.MemoryType, limit int) ([]ChunkResult, error) {
	base, err := s.Search(ctx, projectRootPath, vectorSlug, cfg, query, memType, limit)
	if err != nil {
		return nil, err
	}
	byMemory := make(map[string]*ChunkResult, len(base))
	for i := range base {
		byMemory[base[i].Memory.ID] = &ChunkResult{Result: base[i]}
	}

	if limit <= 0 {
		limit = 10
	}
	kPrime := limit * 2
	if kPrime > 100 {
		kPrime = 100
	}

	queryVec, err := s.embedder.EmbedSingleForSearch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: search_with_chunks: embed query: %w", err)
	}
	chunkHits, err := s.vectors.Search(ctx, vectorSlug, queryVec, kPrime, vectordb.Filter{"type": "chunk"})
	if err != nil {
		return nil, fmt.Errorf("memory: search_with_chunks: chunk search: %w", err)
	}

	now := time.Now()
	for _, hit := range chunkHits {
		parentID := hit.Payload["parent_memory_id"]
		if parentID == "" {
			continue
		}
		entry, ok := byMemory[parentID]
		if !ok {
			m, err := s.meta.GetMemory(ctx, parentID)
			if err != nil || m == nil {
				continue
			}
			if err := s.resolveBody(projectRootPath, m); err != nil {
				continue
			}
			strength := decay.CalculateStrength(m.UpdatedAt, m.LastAccessed, m.RetrievalCount, cfg.HalfLifeDays, now)
			entry = &ChunkResult{Result: Result{Memory: m, Score: float64(hit.Score), Strength: strength, Combined: decay.BlendScores(float64(hit.Score), strength, cfg.StrengthWeight)}}
			byMemory[parentID] = entry
		}
		entry.MatchedChunks++
		if float64(hit.Score) > entry.MaxChunkScore {
			entry.MaxChunkScore = float64(hit.Score)
		}
	}

	out := make([]ChunkResult, 0, len(byMemory))
	for _, entry := range byMemory {
		if entry.MatchedChunks > 0 {
			if entry.Score == 0 {
				entry.Score = entry.MaxChunkScore
			}
			boost := 0.02 * float64(entry.MatchedChunks)
			if boost > 0.1 {
				boost = 0.1
			}
			entry.Combined += boost
			if entry.Combined > 1 {
				entry.Combined = 1
			}
		}
		out = append(out, *entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Combined > out[j].Combined })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AgenticResult is a direct search hit plus the linked memories ("neighbours")
// surfaced alongside it.
type AgenticResult struct {
	Result
	IsNeighbour bool
}

// SearchAgentic implements §4.8 search_agentic(): pure semantic search, then
// for each hit enumerate linked ids (both directions, deduped) and include
// up to 2*limit neighbours with score scaled by 0.8.
func (s *Service) SearchAgentic(ctx context.Context, projectRootPath, vectorSlug string, cfg decay.Config, query string, limit int) ([]AgenticResult, error) {
	pureSemantic := decay.PureSemantic()
	base, err := s.Search(ctx, projectRootPath, vectorSlug, pureSemantic, query, nil, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(base))
	out := make([]AgenticResult, 0, len(base))
	for _, r := range base {
		seen[r.Memory.ID] = true
		out = append(out, AgenticResult{Result: r})
	}

	neighbourCap := limit * 2
	for _, r := range base {
		if len(out)-len(base) >= neighbourCap {
			break
		}
		ids, err := s.meta.NeighbourIDs(ctx, r.Memory.ID)
		if err != nil {
			continue
		}
		for _, id := range ids {
			if seen[id] || len(out)-len(base) >= neighbourCap {
				continue
			}
			seen[id] = true
			nm, err := s.meta.GetMemory(ctx, id)
			if err != nil || nm == nil {
				continue
			}
			if err := s.resolveBody(projectRootPath, nm); err != nil {
				continue
			}
			out = append(out, AgenticResult{
				Result:      Result{Memory: nm, Score: r.Score * 0.8, Combined: r.Combined * 0.8},
				IsNeighbour: true,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Combined > out[j].Combined })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetContext implements §4.8 get_context(): BFS from id through links up to
// depth hops, plus up to 5 vector-similar ids not already visited.
func (s *Service) GetContext(ctx context.Context, projectRootPath, vectorSlug, id string, depth int) ([]*metadata.Memory, error) {
	visited := map[string]bool{id: true}
	frontier := []string{id}
	var out []*metadata.Memory

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, curID := range frontier {
			ids, err := s.meta.NeighbourIDs(ctx, curID)
			if err != nil {
				continue
			}
			for _, nid := range ids {
				if visited[nid] {
					continue
				}
				visited[nid] = true
				next = append(next, nid)
			}
		}
		frontier = next
	}

	for memID := range visited {
		if memID == id {
			continue
		}
		m, err := s.meta.GetMemory(ctx, memID)
		if err != nil || m == nil {
			continue
		}
		if err := s.resolveBody(projectRootPath, m); err != nil {
			continue
		}
		out = append(out, m)
	}

	seed, err := s.meta.GetMemory(ctx, id)
	if err == nil && seed != nil && s.embedder != nil && s.vectors != nil {
		if err := s.resolveBody(projectRootPath, seed); err == nil && seed.Content != nil {
			vec, err := s.embedder.EmbedSingle(ctx, *seed.Content)
			if err == nil {
				hits, err := s.vectors.Search(ctx, vectorSlug, vec, depth+5, nil)
				if err == nil {
					added := 0
					for _, hit := range hits {
						if added >= 5 || visited[hit.ID] {
							continue
						}
						visited[hit.ID] = true
						m, err := s.meta.GetMemory(ctx, hit.ID)
						if err != nil || m == nil {
							continue
						}
						if err := s.resolveBody(projectRootPath, m); err != nil {
							continue
						}
						out = append(out, m)
						added++
					}
				}
			}
		}
	}

	return out, nil
}
