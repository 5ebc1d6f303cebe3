// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"testing"
)

func TestLoadDefaultsWithNoEnv(t *testing.T) {
	for _, k := range []string{
		"DATABASE_PATH", "FOLD_PATH", "QDRANT_URL", "QDRANT_COLLECTION_PREFIX",
		"OLLAMA_URL", "REDIS_ADDR", "EMBEDDING_DIMENSION", "INDEXING_CONCURRENCY",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(k, "")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath == "" {
		t.Error("expected a default database_path")
	}
	if cfg.EmbeddingDimension != 384 {
		t.Errorf("expected default embedding dimension 384, got %d", cfg.EmbeddingDimension)
	}
	if len(cfg.EmbeddingProviders) != 1 || cfg.EmbeddingProviders[0].Name != "mock" {
		t.Errorf("expected mock embedding provider fallback, got %+v", cfg.EmbeddingProviders)
	}
	if len(cfg.LLMProviders) != 1 || cfg.LLMProviders[0].Name != "mock" {
		t.Errorf("expected mock llm provider fallback, got %+v", cfg.LLMProviders)
	}
}

func TestLoadPicksUpProviderCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var foundOpenAI bool
	for _, p := range cfg.EmbeddingProviders {
		if p.Name == "openai" {
			foundOpenAI = true
			if p.Model != "gpt-test" {
				t.Errorf("expected model gpt-test, got %q", p.Model)
			}
		}
	}
	if !foundOpenAI {
		t.Errorf("expected openai embedding provider, got %+v", cfg.EmbeddingProviders)
	}

	var foundAnthropic bool
	for _, p := range cfg.LLMProviders {
		if p.Name == "anthropic" {
			foundAnthropic = true
		}
	}
	if !foundAnthropic {
		t.Errorf("expected anthropic llm provider, got %+v", cfg.LLMProviders)
	}
}

func TestAuthProvidersFromEnvParsesFieldsButDoesNotValidate(t *testing.T) {
	t.Setenv("AUTH_PROVIDER_GITHUB_CLIENT_ID", "abc123")
	t.Setenv("AUTH_PROVIDER_GITHUB_CLIENT_SECRET", "shh")

	providers := authProvidersFromEnv()
	gh, ok := providers["github"]
	if !ok {
		t.Fatalf("expected a github auth provider entry, got %+v", providers)
	}
	if gh["client_id"] != "abc123" {
		t.Errorf("expected client_id field to be split off _client_id, got %+v", gh)
	}
}

func TestEnsureFoldPathCreatesDirectory(t *testing.T) {
	cfg := &Config{FoldPath: t.TempDir() + "/nested/projects"}
	if err := cfg.EnsureFoldPath(); err != nil {
		t.Fatalf("EnsureFoldPath: %v", err)
	}
}
