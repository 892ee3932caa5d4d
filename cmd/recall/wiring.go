package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recalldev/recall/internal/adapters/id"
	"github.com/recalldev/recall/internal/adapters/postgres"
	"github.com/recalldev/recall/internal/adapters/vector"
	"github.com/recalldev/recall/internal/application/services"
	"github.com/recalldev/recall/internal/config"
	"github.com/recalldev/recall/internal/llm"
)

// app bundles everything a transport needs, plus the resources to
// release on shutdown.
type app struct {
	pool         *pgxpool.Pool
	orchestrator *services.Orchestrator
	units        *postgres.MemoryUnitRepository
	index        *vector.Client
	retriever    *services.RetrieverService
}

// buildApp wires repositories, the model gateway, the vector index
// and the service pipeline from configuration.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Store.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.Store.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.Store.PoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established")

	conversationRepo := postgres.NewConversationRepository(pool)
	messageRepo := postgres.NewMessageRepository(pool)
	unitRepo := postgres.NewMemoryUnitRepository(pool)
	embeddingRepo := postgres.NewEmbeddingRepository(pool)
	usageRepo := postgres.NewMemoryUsageRepository(pool)
	txManager := postgres.NewTransactionManager(pool)
	idGen := id.NewGenerator()

	gateway := llm.NewGateway(cfg.Models, cfg.Vector.Dimension, cfg.Limits.PerProviderInflight)

	index := vector.NewClient(cfg.Vector.URL, cfg.Vector.Collection)

	compressor := services.NewCompressor(gateway, idGen, cfg.Memory.TokenBudget)
	retriever := services.NewRetriever(gateway, unitRepo, index,
		time.Duration(cfg.Retrieval.CacheTTLSeconds)*time.Second, cfg.Retrieval.CacheEnabled)

	// LLM fusion needs a completion model; without one only direct
	// concatenation is possible.
	fusionMode := services.FusionModeDirect
	if cfg.Models.Light != "" {
		fusionMode = services.FusionModeLLM
	}
	fuser := services.NewFuser(gateway, fusionMode)
	injector := services.NewInjector(retriever, fuser, cfg.Memory.FuserBudget)

	orchestrator := services.NewOrchestrator(services.OrchestratorDeps{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Units:         unitRepo,
		Embeddings:    embeddingRepo,
		Usages:        usageRepo,
		Tx:            txManager,
		IDs:           idGen,
		Gateway:       gateway,
		Index:         index,
		Compressor:    compressor,
		Retriever:     retriever,
		Injector:      injector,
		StoreHealth:   pool.Ping,
		Usage:         gateway.Usage,
	}, cfg.Limits.CompressorInflight)

	return &app{
		pool:         pool,
		orchestrator: orchestrator,
		units:        unitRepo,
		index:        index,
		retriever:    retriever,
	}, nil
}

func (a *app) close() {
	a.pool.Close()
}
