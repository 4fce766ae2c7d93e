package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"insightbot/internal/config"
	"insightbot/internal/embcache"
	"insightbot/internal/http"
	"insightbot/internal/indexer"
	"insightbot/internal/llm"
	"insightbot/internal/metrics"
	"insightbot/internal/rag"
	"insightbot/internal/service"
	"insightbot/internal/storage"
	"insightbot/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions about uploaded documents with a multi-stage
// retrieval and reasoning workflow.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: InsightBot API
//   description: |
//     Upload documents, ask questions about them and get cited, self-evaluated answers.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

const version = "1.0.0"

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	docRepo := storage.NewDocumentRepo(db)
	queryRepo := storage.NewQueryRepo(db)

	index, err := openIndex(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open similarity index: %v", err)
	}

	embedder, completer, evalCompleter := newModelClients(cfg)

	if cfg.RedisAddr != "" {
		redisStore, err := embcache.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		embedder = embcache.New(embedder, redisStore, cfg.EmbeddingModelName, cfg.EmbeddingCacheTTL, metrics.EmbeddingCacheTotal)
		slog.Info("Embedding cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.EmbeddingCacheTTL)
	}

	if cfg.LLMRateLimit > 0 {
		completer = llm.NewRateLimited(completer, cfg.LLMRateLimit, 1)
		evalCompleter = llm.NewRateLimited(evalCompleter, cfg.LLMRateLimit, 1)
		slog.Info("LLM rate limit enabled", "per_second", cfg.LLMRateLimit)
	}

	var models *llm.ModelLoader
	if cfg.LLMProvider == config.ProviderLlamaCPP {
		models = llm.NewModelLoader(cfg.LLMBaseURL)
		if cfg.LLMAutoload {
			ensureModel(ctx, models, cfg.LLMModelName)
		}
	}

	pipeline, err := indexer.NewPipeline(index, embedder, docRepo, indexer.Options{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		MaxFileSize:    cfg.MaxFileSize,
		EmbeddingModel: cfg.EmbeddingModelName,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("Failed to create ingestion pipeline: %v", err)
	}

	stageOpts := rag.Options{Timeout: cfg.LLMTimeout, Logger: logger}
	evaluator := rag.NewEvaluator(evalCompleter, stageOpts)
	retriever := rag.NewRetriever(index, embedder, rag.RetrieverOptions{
		Options:      stageOpts,
		MinRelevance: cfg.MinRelevanceScore,
		MaxSources:   cfg.MaxSources,
	})
	engine := rag.NewEngine(
		rag.NewQueryParser(completer, stageOpts),
		retriever,
		rag.NewAnalyzer(completer, stageOpts),
		rag.NewSummarizer(completer, stageOpts),
		evaluator,
		logger,
	)
	slog.Info("Workflow initialized", "provider", cfg.LLMProvider, "model", cfg.LLMModelName)

	deps := &http.Deps{
		Queries:     service.NewQueryService(engine, evaluator, queryRepo, docRepo, pipeline),
		Documents:   service.NewDocumentService(pipeline),
		Search:      service.NewSearchService(retriever),
		Index:       index,
		Workflow:    engine,
		ModelName:   cfg.LLMModelName,
		MaxFileSize: cfg.MaxFileSize,
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
	}
	if models != nil {
		deps.Models = models
	}
	router := http.NewRouter(deps)

	if cfg.InboxDir != "" {
		go func() {
			slog.Info("Scanning inbox", "dir", cfg.InboxDir)
			if _, err := pipeline.IngestDir(ctx, cfg.InboxDir); err != nil {
				slog.Error("Inbox scan completed with errors", "error", err)
			}
			watcher := indexer.NewWatcher(pipeline, cfg.InboxDir, 0, logger)
			if err := watcher.Run(ctx); err != nil {
				slog.Error("Inbox watcher stopped", "error", err)
			}
		}()
	}

	srv := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", srv.Addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName, "evaluation_model", cfg.EvaluationModel)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}
	slog.Info("API server stopped")
}

// openIndex opens the configured similarity index backend.
func openIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vectorstore.Index, error) {
	if cfg.IndexBackend == config.IndexBackendQdrant {
		idx, err := vectorstore.NewQdrantIndex(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDimension, logger)
		if err != nil {
			return nil, err
		}
		if err := idx.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.EmbeddingDimension)
		return idx, nil
	}

	idx, err := vectorstore.OpenFlatIndex(cfg.IndexPath, cfg.EmbeddingDimension, logger)
	if err != nil {
		if !errors.Is(err, vectorstore.ErrIndexLoad) {
			return nil, err
		}
		// The returned index is empty and usable.
		slog.Warn("Starting with an empty index; unreadable artifacts moved aside", "path", cfg.IndexPath, "error", err)
	}
	slog.Info("Flat index ready", "path", cfg.IndexPath, "vectors", idx.VectorCount())
	return idx, nil
}

// newModelClients builds the embedder, the stage completer and the evaluation
// completer for the configured provider.
func newModelClients(cfg *config.Config) (indexer.Embedder, rag.Completer, rag.Completer) {
	if cfg.LLMProvider == config.ProviderOpenAI {
		oc := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:         cfg.LLMAPIKey,
			BaseURL:        cfg.LLMBaseURL,
			Model:          cfg.LLMModelName,
			EmbeddingModel: cfg.EmbeddingModelName,
			Dimensions:     cfg.EmbeddingDimension,
		})
		eval := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.EvaluationModel,
		})
		return oc, oc, eval
	}

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingDimension)
	completer := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	eval := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.EvaluationModel)
	return embedder, completer, eval
}

// ensureModel loads the model on the llama.cpp server unless it is already loaded.
func ensureModel(ctx context.Context, models *llm.ModelLoader, model string) {
	loaded, err := models.IsModelLoaded(ctx, model)
	if err != nil {
		slog.Warn("Failed to check model status", "model", model, "error", err)
		return
	}
	if loaded {
		return
	}
	slog.Info("Loading model", "model", model)
	if err := models.LoadModel(ctx, model, nil); err != nil {
		slog.Error("Failed to load model", "model", model, "error", err)
	}
}
