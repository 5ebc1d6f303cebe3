// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds foldd's configuration: where things live on disk, where the
// vector store and Redis bus are, and which embedding/LLM providers are
// configured and in what priority order.
type Config struct {
	DatabasePath string `mapstructure:"database_path"`
	FoldPath     string `mapstructure:"fold_path"` // base dir for project clones + fold/ artifacts

	QdrantURL              string `mapstructure:"qdrant_url"`
	QdrantCollectionPrefix string `mapstructure:"qdrant_collection_prefix"`

	OllamaURL string `mapstructure:"ollama_url"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPassword string `mapstructure:"redis_password"`

	EmbeddingDimension  int `mapstructure:"embedding_dimension"`
	IndexingConcurrency int `mapstructure:"indexing_concurrency"`

	EmbeddingProviders []ProviderConfig `mapstructure:"-"`
	LLMProviders       []ProviderConfig `mapstructure:"-"`

	AuthProviders map[string]map[string]string `mapstructure:"-"`
}

// ProviderConfig is the provider shape shared by the embedding and LLM
// routers; Config builds one of these per <PROVIDER>_API_KEY/_MODEL pair it
// finds in the environment.
type ProviderConfig struct {
	Name     string
	Model    string
	APIKey   string
	BaseURL  string
	Priority int
}

// Load first loads a .env file if one exists (into the process environment,
// without overriding variables already set), then reads config.yaml (if
// present), then FOLD_-prefixed and bare environment variables, which take
// precedence over config.yaml. Missing files are not an error: every field
// has a workable default for local development.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file found, using environment variables only")
	} else {
		log.Printf("config: loaded .env file")
	}

	viper.SetConfigType("yaml")
	viper.SetDefault("database_path", "./fold.db")
	viper.SetDefault("fold_path", "./fold-projects")
	viper.SetDefault("qdrant_url", "localhost:6334")
	viper.SetDefault("qdrant_collection_prefix", "fold_")
	viper.SetDefault("ollama_url", "http://localhost:11434")
	viper.SetDefault("redis_addr", "127.0.0.1:6379")
	viper.SetDefault("embedding_dimension", 384)
	viper.SetDefault("indexing_concurrency", 4)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	} else if _, err := os.Stat("config.yaml"); err == nil {
		viper.SetConfigFile("config.yaml")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read config.yaml: %w", err)
		}
	} else {
		log.Printf("config: no config.yaml found, using defaults + environment")
	}

	viper.SetEnvPrefix("FOLD")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("FOLD_PATH"); v != "" {
		cfg.FoldPath = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.QdrantURL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION_PREFIX"); v != "" {
		cfg.QdrantCollectionPrefix = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.OllamaURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		} else {
			log.Printf("config: invalid REDIS_DB %q, keeping %d", v, cfg.RedisDB)
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbeddingDimension = n
		} else {
			log.Printf("config: invalid EMBEDDING_DIMENSION %q, keeping %d", v, cfg.EmbeddingDimension)
		}
	}
	if v := os.Getenv("INDEXING_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IndexingConcurrency = n
		} else {
			log.Printf("config: invalid INDEXING_CONCURRENCY %q, keeping %d", v, cfg.IndexingConcurrency)
		}
	}

	cfg.EmbeddingProviders = providersFromEnv([]string{"OPENAI", "OLLAMA"}, cfg.OllamaURL)
	cfg.LLMProviders = providersFromEnv([]string{"ANTHROPIC", "OPENAI"}, "")
	cfg.AuthProviders = authProvidersFromEnv()

	if len(cfg.EmbeddingProviders) == 0 {
		log.Printf("config: no embedding provider credentials found, falling back to mock")
		cfg.EmbeddingProviders = []ProviderConfig{{Name: "mock", Priority: 0}}
	}
	if len(cfg.LLMProviders) == 0 {
		log.Printf("config: no LLM provider credentials found, falling back to mock")
		cfg.LLMProviders = []ProviderConfig{{Name: "mock", Priority: 0}}
	}

	return &cfg, nil
}

// providersFromEnv builds one ProviderConfig per name in names whose
// <NAME>_API_KEY is set (priority = position in names), plus a lowercase
// provider entry named after the name itself (e.g. "openai", "anthropic").
// When OLLAMA_ENABLED=true and ollamaURL is non-empty, a bare "ollama" entry
// with ollamaURL as its base_url is appended; that entry needs no API key.
func providersFromEnv(names []string, ollamaURL string) []ProviderConfig {
	var out []ProviderConfig
	for i, name := range names {
		lower := strings.ToLower(name)
		apiKey := os.Getenv(name + "_API_KEY")
		model := os.Getenv(name + "_MODEL")
		if apiKey == "" {
			continue
		}
		out = append(out, ProviderConfig{
			Name:     lower,
			APIKey:   apiKey,
			Model:    model,
			Priority: i,
		})
	}
	if ollamaURL != "" && os.Getenv("OLLAMA_ENABLED") == "true" {
		out = append(out, ProviderConfig{Name: "ollama", BaseURL: ollamaURL, Model: os.Getenv("OLLAMA_MODEL"), Priority: len(out)})
	}
	return out
}

// authProvidersFromEnv recognises the AUTH_PROVIDER_<NAME>_<FIELD> family:
// parsed and validated shape-wise, never consumed, since session auth is
// out of scope for this core (spec §1 Non-goals).
func authProvidersFromEnv() map[string]map[string]string {
	const prefix = "AUTH_PROVIDER_"
	out := make(map[string]map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], prefix) {
			continue
		}
		rest := strings.TrimPrefix(parts[0], prefix)
		idx := strings.IndexByte(rest, '_')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(rest[:idx])
		field := strings.ToLower(rest[idx+1:])
		if out[name] == nil {
			out[name] = make(map[string]string)
		}
		out[name][field] = parts[1]
	}
	return out
}

// EnsureFoldPath creates the base directory for project clones and fold/
// artifacts if it doesn't already exist.
func (c *Config) EnsureFoldPath() error {
	abs, err := filepath.Abs(c.FoldPath)
	if err != nil {
		return fmt.Errorf("config: resolve fold_path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("config: create fold_path %s: %w", abs, err)
	}
	c.FoldPath = abs
	return nil
}
