// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"testing"
)

func TestRouterMockProviderRoundTrip(t *testing.T) {
	r, err := NewRouter([]ProviderConfig{{Name: "mock", Priority: 1}}, 384)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	vec, err := r.EmbedSingle(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed single: %v", err)
	}
	if len(vec) != 384 {
		t.Fatalf("expected dimension 384, got %d", len(vec))
	}
}

func TestRouterHasProvidersTrueWhileClosed(t *testing.T) {
	r, err := NewRouter([]ProviderConfig{{Name: "mock", Priority: 1}}, 384)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	if !r.HasProviders() {
		t.Fatal("expected HasProviders true with a healthy mock provider")
	}
}

func TestPlaceholderVectorDeterministic(t *testing.T) {
	a := placeholderVector("same text", 32)
	b := placeholderVector("same text", 32)
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("expected dimension 32, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("placeholder vector not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestPlaceholderVectorVariesWithInput(t *testing.T) {
	a := placeholderVector("text one", 16)
	b := placeholderVector("text two", 16)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected different inputs to produce different placeholder vectors")
	}
}

func TestEmbedBatchPreservesOrderAcrossChunks(t *testing.T) {
	r, err := NewRouter([]ProviderConfig{{Name: "mock", Priority: 1}}, 384)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := r.EmbedBatch(context.Background(), texts, 2)
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	single, err := r.EmbedSingle(context.Background(), "a")
	if err != nil {
		t.Fatalf("embed single: %v", err)
	}
	for i := range single {
		if single[i] != vectors[0][i] {
			t.Fatalf("batch order mismatch at index %d", i)
		}
	}
}

func TestEmbedSingleForSearchReturnsRouterDimension(t *testing.T) {
	r, err := NewRouter([]ProviderConfig{
		{Name: "mock", Priority: 1},
	}, 384)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	vec, err := r.EmbedSingleForSearch(context.Background(), "query text")
	if err != nil {
		t.Fatalf("embed single for search: %v", err)
	}
	if len(vec) != 384 {
		t.Fatalf("expected dimension 384, got %d", len(vec))
	}
}
