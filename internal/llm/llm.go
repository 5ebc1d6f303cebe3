// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package llm implements the multi-provider, priority-ordered completion
// router used for memory analysis, title generation, and evolution
// decisions. Unlike the embedding router (internal/embeddings) it has no
// deterministic fallback: if every provider is unavailable, callers treat
// the response as absent and fall back to a no-op.
package llm

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Usage carries token accounting returned by a provider, when available.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client is a single LLM provider's completion contract.
type Client interface {
	// Complete generates a completion for prompt, capped at maxTokens.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, *Usage, error)
}

// ProviderConfig describes one configured provider entry, mirroring the
// embedding router's provider shape (internal/embeddings.ProviderConfig).
type ProviderConfig struct {
	Name     string
	BaseURL  string
	Model    string
	APIKey   string
	Priority int
}

type providerEntry struct {
	cfg     ProviderConfig
	client  Client
	breaker *gobreaker.CircuitBreaker
}

// Router dispatches completions across providers in priority order, skipping
// providers whose circuit breaker is open.
type Router struct {
	mu        sync.RWMutex
	providers []*providerEntry
}

// NewRouter builds a router from a priority-ordered provider list. Entries
// are sorted ascending by Priority (lower value = tried first).
func NewRouter(configs []ProviderConfig) *Router {
	r := &Router{}
	sorted := make([]ProviderConfig, len(configs))
	copy(sorted, configs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	for _, cfg := range sorted {
		client, err := newClient(cfg)
		if err != nil {
			log.Printf("llm: skipping provider %s: %v", cfg.Name, err)
			continue
		}
		r.providers = append(r.providers, &providerEntry{
			cfg:    cfg,
			client: client,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        cfg.Name,
				MaxRequests: 1,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			}),
		})
	}
	return r
}

func newClient(cfg ProviderConfig) (Client, error) {
	switch cfg.Name {
	case "anthropic":
		return newAnthropicClient(cfg)
	case "mock":
		return newMockClient(cfg), nil
	default:
		// openai and any OpenAI-compatible HTTP endpoint (ollama, local
		// gateways) all speak the same chat-completions wire format.
		return newOpenAIClient(cfg)
	}
}

// IsAvailable reports whether at least one provider's breaker is closed or
// half-open (i.e. not currently tripped open).
func (r *Router) IsAvailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.breaker.State() != gobreaker.StateOpen {
			return true
		}
	}
	return false
}

// Complete tries each provider in priority order, skipping open breakers,
// until one succeeds.
func (r *Router) Complete(ctx context.Context, prompt string, maxTokens int) (string, *Usage, error) {
	r.mu.RLock()
	providers := make([]*providerEntry, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	if len(providers) == 0 {
		return "", nil, fmt.Errorf("llm: no providers configured")
	}

	var lastErr error
	for _, p := range providers {
		if p.breaker.State() == gobreaker.StateOpen {
			continue
		}
		result, err := p.breaker.Execute(func() (interface{}, error) {
			text, usage, err := p.client.Complete(ctx, prompt, maxTokens)
			if err != nil {
				return nil, err
			}
			return struct {
				text  string
				usage *Usage
			}{text, usage}, nil
		})
		if err != nil {
			lastErr = err
			log.Printf("llm: provider %s failed, falling through: %v", p.cfg.Name, err)
			continue
		}
		pair := result.(struct {
			text  string
			usage *Usage
		})
		return pair.text, pair.usage, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("llm: all providers unavailable")
	}
	return "", nil, lastErr
}
