// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package embeddings is the priority-ordered embedding router (C6): each
// configured provider is tried in order, with a circuit breaker guarding
// against a degraded provider being retried on every call, and a
// deterministic hash-based placeholder keeping the pipeline operational
// when every provider is down.
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sony/gobreaker"
)

// Provider generates embedding vectors from text.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ProviderConfig describes one configured embedding provider.
type ProviderConfig struct {
	Name           string
	BaseURL        string
	Model          string
	APIKey         string
	Priority       int
	SearchPriority int  // read only when HasSearchPrio is true; used only by EmbedSingleForSearch
	HasSearchPrio  bool // marks SearchPriority as set
}

type providerEntry struct {
	cfg     ProviderConfig
	client  Provider
	breaker *gobreaker.CircuitBreaker
}

// Router tries providers in priority order, falling through on failure,
// and degrades to a deterministic placeholder vector when none succeed.
type Router struct {
	mu        sync.RWMutex
	providers []*providerEntry
	dim       int
}

// NewRouter builds a router from provider configs (ascending Priority =
// tried first) and a fixed output dimension every provider's vectors must
// match.
func NewRouter(configs []ProviderConfig, dim int) (*Router, error) {
	sorted := make([]ProviderConfig, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	r := &Router{dim: dim}
	for _, cfg := range sorted {
		client, err := newProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("embeddings: provider %s: %w", cfg.Name, err)
		}
		r.providers = append(r.providers, &providerEntry{
			cfg:    cfg,
			client: client,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name: "embeddings-" + cfg.Name,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			}),
		})
	}
	return r, nil
}

func newProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "mock":
		dim := 384
		return NewMockEmbedder(dim), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(baseURL, model)
	default: // openai and openai-compatible providers
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api_key is required")
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIEmbedder(cfg.APIKey, model)
	}
}

// HasProviders reports whether at least one configured provider's breaker
// isn't tripped open.
func (r *Router) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.breaker.State() != gobreaker.StateOpen {
			return true
		}
	}
	return false
}

// Dimension returns the fixed vector length every provider must produce.
func (r *Router) Dimension() int {
	return r.dim
}

// Embed runs the batch through providers in priority order, skipping any
// provider whose breaker is open. A failing provider is retried once and
// then the next provider is tried; errors are not classified, so a 4xx or
// authorization error gets the same single retry as a transient one. If
// every provider fails, returns deterministic placeholder vectors so
// downstream code stays operational.
func (r *Router) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.RLock()
	providers := append([]*providerEntry(nil), r.providers...)
	r.mu.RUnlock()

	for _, p := range providers {
		if p.breaker.State() == gobreaker.StateOpen {
			continue
		}
		vectors, err := r.tryProvider(ctx, p, texts)
		if err == nil {
			return r.normalizeDimension(vectors)
		}
	}

	return placeholderBatch(texts, r.dim), nil
}

func (r *Router) tryProvider(ctx context.Context, p *providerEntry, texts []string) ([][]float32, error) {
	attempt := func() ([][]float32, error) {
		result, err := p.breaker.Execute(func() (interface{}, error) {
			return p.client.EmbedBatch(ctx, texts)
		})
		if err != nil {
			return nil, err
		}
		return result.([][]float32), nil
	}

	vectors, err := attempt()
	if err == nil {
		return vectors, nil
	}
	// One same-provider retry for any failure before falling through.
	return attempt()
}

func (r *Router) normalizeDimension(vectors [][]float32) ([][]float32, error) {
	for i, v := range vectors {
		if len(v) != r.dim {
			return nil, fmt.Errorf("embeddings: provider returned dimension %d, want %d", len(v), r.dim)
		}
		_ = i
	}
	return vectors, nil
}

// EmbedSingle embeds one text.
func (r *Router) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in chunks of batchSize, preserving order.
func (r *Router) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	var out [][]float32
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := r.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedSingleForSearch embeds a latency-sensitive query. If any provider
// declares a SearchPriority, those providers are tried first (ascending),
// preferring a local/self-hosted provider over a cloud one for interactive
// search even when that provider ranks lower for batch indexing.
func (r *Router) EmbedSingleForSearch(ctx context.Context, text string) ([]float32, error) {
	r.mu.RLock()
	providers := append([]*providerEntry(nil), r.providers...)
	r.mu.RUnlock()

	ordered := make([]*providerEntry, len(providers))
	copy(ordered, providers)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := ordered[i], ordered[j]
		if pi.cfg.HasSearchPrio != pj.cfg.HasSearchPrio {
			return pi.cfg.HasSearchPrio
		}
		if pi.cfg.HasSearchPrio && pj.cfg.HasSearchPrio {
			return pi.cfg.SearchPriority < pj.cfg.SearchPriority
		}
		return pi.cfg.Priority < pj.cfg.Priority
	})

	for _, p := range ordered {
		if p.breaker.State() == gobreaker.StateOpen {
			continue
		}
		vectors, err := r.tryProvider(ctx, p, []string{text})
		if err == nil {
			normalized, nerr := r.normalizeDimension(vectors)
			if nerr == nil {
				return normalized[0], nil
			}
		}
	}
	return placeholderBatch([]string{text}, r.dim)[0], nil
}

// placeholderBatch produces deterministic, content-derived vectors so a
// caller probing has_providers() == false still gets a stable result for
// the same input instead of an error.
func placeholderBatch(texts []string, dim int) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = placeholderVector(text, dim)
	}
	return out
}

func placeholderVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	sum := sha256.Sum256([]byte(text))
	for i := 0; i < dim; i++ {
		b := sum[i%len(sum):]
		var seed uint64
		if len(b) >= 8 {
			seed = binary.LittleEndian.Uint64(b[:8])
		} else {
			seed = uint64(b[0])
		}
		seed = seed ^ uint64(i)*2654435761
		vec[i] = float32(math.Sin(float64(seed)))
	}
	return vec
}
