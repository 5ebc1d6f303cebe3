// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Command foldd is the fold daemon: it wires storage, the embedding and
// LLM routers, the git adapter, the indexer, the memory service, the job
// queue and the worker loop together, then runs the worker loop until
// interrupted. There is no HTTP/gRPC/CLI surface here (see SPEC_FULL.md
// Non-goals) — operators interact with the system by enqueuing jobs and
// projects directly against the sqlite store, or through a separate tool.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northbound/fold/internal/config"
	"github.com/northbound/fold/internal/embeddings"
	"github.com/northbound/fold/internal/eventbus"
	"github.com/northbound/fold/internal/git"
	"github.com/northbound/fold/internal/indexer"
	"github.com/northbound/fold/internal/llm"
	"github.com/northbound/fold/internal/logging"
	"github.com/northbound/fold/internal/memory"
	"github.com/northbound/fold/internal/metadata"
	"github.com/northbound/fold/internal/queue"
	"github.com/northbound/fold/internal/vectordb"
	"github.com/northbound/fold/internal/worker"
)

var (
	configPath = flag.String("config", "", "path to config.yaml (defaults to ./config.yaml if present)")
	logFile    = flag.String("log-file", "foldd.log", "log file path")
)

func main() {
	flag.Parse()

	if _, err := logging.Init(*logFile); err != nil {
		log.Printf("foldd: failed to initialize logger: %v, using stdout only", err)
	} else {
		logging.Printf("foldd: logger initialized, writing to %s", *logFile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatalf("foldd: load config: %v", err)
	}
	if err := cfg.EnsureFoldPath(); err != nil {
		logging.Fatalf("foldd: %v", err)
	}

	meta, err := metadata.Open(cfg.DatabasePath)
	if err != nil {
		logging.Fatalf("foldd: open metadata store %s: %v", cfg.DatabasePath, err)
	}
	defer meta.Close()
	logging.Printf("foldd: metadata store open at %s", cfg.DatabasePath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectorDB := connectVectorDB(ctx, cfg)

	embedRouter, err := embeddings.NewRouter(toEmbeddingProviderConfigs(cfg.EmbeddingProviders), cfg.EmbeddingDimension)
	if err != nil {
		logging.Fatalf("foldd: init embedding router: %v", err)
	}
	llmRouter := llm.NewRouter(toLLMProviderConfigs(cfg.LLMProviders))

	memSvc := memory.New(meta, vectorDB, embedRouter, llmRouter, cfg.QdrantCollectionPrefix)
	idx := indexer.New(memSvc, embedRouter, vectorDB, indexer.Options{})
	local := git.NewLocal(nil)
	jobQueue := queue.New(meta)

	bus := connectEventBus(ctx, cfg)

	w := worker.New(jobQueue, meta, memSvc, idx, local, llmRouter, embedRouter, bus, cfg.FoldPath)
	w.MaxConcurrentJobs = cfg.IndexingConcurrency

	logging.Printf("foldd: worker %s starting", w.ID)
	w.Run(ctx)
	logging.Printf("foldd: shut down")
}

// connectVectorDB dials Qdrant at cfg.QdrantURL; on any failure it falls
// back to the in-memory mock vector DB so the daemon still starts (search
// quality degrades, nothing crashes), matching the teacher's
// cmd/hive-server fallback behaviour.
func connectVectorDB(ctx context.Context, cfg *config.Config) vectordb.VectorDB {
	conn, err := grpc.NewClient(cfg.QdrantURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logging.Printf("foldd: dial qdrant at %s: %v, using mock vector db", cfg.QdrantURL, err)
		return vectordb.NewMockVectorDB()
	}
	vdb, err := vectordb.NewQdrantVectorDB(conn, cfg.QdrantCollectionPrefix)
	if err != nil {
		logging.Printf("foldd: init qdrant client: %v, using mock vector db", err)
		return vectordb.NewMockVectorDB()
	}
	logging.Printf("foldd: connected to qdrant at %s", cfg.QdrantURL)
	return vdb
}

// connectEventBus dials Redis at cfg.RedisAddr for cross-process progress
// and provider-availability events; on failure the worker just runs with a
// nil bus (events are dropped, nothing else depends on them).
func connectEventBus(ctx context.Context, cfg *config.Config) eventbus.Bus {
	client, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		logging.Printf("foldd: connect redis at %s: %v, running without an event bus", cfg.RedisAddr, err)
		return nil
	}
	logging.Printf("foldd: connected to redis at %s", cfg.RedisAddr)
	return eventbus.NewRedisBus(client, "fold:events")
}

func toEmbeddingProviderConfigs(in []config.ProviderConfig) []embeddings.ProviderConfig {
	out := make([]embeddings.ProviderConfig, len(in))
	for i, p := range in {
		out[i] = embeddings.ProviderConfig{Name: p.Name, Model: p.Model, APIKey: p.APIKey, BaseURL: p.BaseURL, Priority: p.Priority}
	}
	return out
}

func toLLMProviderConfigs(in []config.ProviderConfig) []llm.ProviderConfig {
	out := make([]llm.ProviderConfig, len(in))
	for i, p := range in {
		out[i] = llm.ProviderConfig{Name: p.Name, Model: p.Model, APIKey: p.APIKey, BaseURL: p.BaseURL, Priority: p.Priority}
	}
	return out
}
