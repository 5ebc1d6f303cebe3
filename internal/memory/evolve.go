// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memory

import (
	"context"
	"log"

	"github.com/northbound/fold/internal/hashstore"
	"github.com/northbound/fold/internal/llm"
	"github.com/northbound/fold/internal/metadata"
)

const evolutionNeighbourLimit = 5

// evolve runs the evolution engine (§4.9) for a newly added agent memory.
// Best-effort: any individual error is logged and skipped, never surfaced
// to the add() caller.
func (s *Service) evolve(ctx context.Context, projectRootPath, vectorSlug string, m *metadata.Memory, vec []float32, body string) {
	if s.llmRouter == nil {
		return
	}

	hits, err := s.vectors.Search(ctx, vectorSlug, vec, evolutionNeighbourLimit+1, nil)
	if err != nil {
		log.Printf("memory: evolve: neighbour search failed for %s: %v", m.ID, err)
		return
	}

	neighbours := make([]llm.Neighbor, 0, evolutionNeighbourLimit)
	neighbourIDs := make(map[string]bool)
	for _, hit := range hits {
		if hit.ID == m.ID || len(neighbours) >= evolutionNeighbourLimit {
			continue
		}
		neighbourIDs[hit.ID] = true
		nm, err := s.meta.GetMemory(ctx, hit.ID)
		if err != nil || nm == nil {
			continue
		}
		snippet := derefStr(nm.Content)
		if snippet == "" {
			if rec, rerr := hashstore.Read(projectRootPath, nm.ID); rerr == nil {
				snippet = rec.Body
			}
		}
		neighbours = append(neighbours, llm.Neighbor{
			ID:       nm.ID,
			Snippet:  truncate(snippet, 300),
			Context:  nm.Context,
			Keywords: nm.Keywords,
			Tags:     nm.Tags,
		})
	}
	if len(neighbours) == 0 {
		return
	}

	analysis := llm.Analysis{Context: m.Context, Keywords: m.Keywords, Tags: m.Tags}
	decision, ok := s.llmRouter.Evolve(ctx, body, analysis, neighbours)
	if !ok || !decision.ShouldEvolve {
		return
	}

	var createdLinks []string
	for _, action := range decision.Actions {
		switch action {
		case "strengthen":
			for _, target := range decision.SuggestedConnections {
				if !neighbourIDs[target] {
					continue // ignore hallucinated targets not in the neighbour set
				}
				confidence := 0.8
				link := &metadata.Link{
					SourceID:   m.ID,
					TargetID:   target,
					LinkType:   metadata.LinkRelated,
					Confidence: &confidence,
					CreatedBy:  metadata.CreatedByEvolution,
				}
				if err := s.meta.InsertLink(ctx, link); err != nil {
					log.Printf("memory: evolve: insert link %s->%s failed: %v", m.ID, target, err)
					continue
				}
				createdLinks = append(createdLinks, target)
			}
			if len(decision.TagsToUpdate) > 0 {
				m.Tags = decision.TagsToUpdate
				if err := s.meta.UpsertMemory(ctx, m); err != nil {
					log.Printf("memory: evolve: update tags for %s failed: %v", m.ID, err)
				}
			}
		case "update_neighbor":
			s.applyNeighbourUpdates(ctx, neighbours, decision)
		}
	}

	if len(createdLinks) > 0 {
		if err := hashstore.UpdateLinks(projectRootPath, m.ID, createdLinks); err != nil {
			log.Printf("memory: evolve: persist backlinks for %s failed: %v", m.ID, err)
		}
	}
}

func (s *Service) applyNeighbourUpdates(ctx context.Context, neighbours []llm.Neighbor, decision llm.EvolutionDecision) {
	for i, n := range neighbours {
		nm, err := s.meta.GetMemory(ctx, n.ID)
		if err != nil || nm == nil {
			continue
		}
		changed := false
		if i < len(decision.NewContextNeighbourhood) && decision.NewContextNeighbourhood[i] != "" {
			nm.Context = decision.NewContextNeighbourhood[i]
			changed = true
		}
		if i < len(decision.NewTagsNeighbourhood) && len(decision.NewTagsNeighbourhood[i]) > 0 {
			nm.Tags = decision.NewTagsNeighbourhood[i]
			changed = true
		}
		if changed {
			if err := s.meta.UpsertMemory(ctx, nm); err != nil {
				log.Printf("memory: evolve: update neighbour %s failed: %v", n.ID, err)
			}
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
