package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"localrag/internal/config"
	"localrag/internal/handlers"
	"localrag/internal/http"
	"localrag/internal/indexer"
	"localrag/internal/llm"
	"localrag/internal/rag"
	"localrag/internal/search"
	"localrag/internal/storage"
	"localrag/internal/synthesis"
	"localrag/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
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

	// Initialize database
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
	chunkRepo := storage.NewChunkRepo(db)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	testEmbeddings, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testEmbeddings) == 0 || len(testEmbeddings[0]) != cfg.QdrantVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.QdrantVectorSize, len(testEmbeddings[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	// Create ingest pipeline over the docs directory
	indexerPipeline := indexer.NewPipeline(
		indexer.NewScanner(cfg.DocsDir),
		docRepo,
		chunkRepo,
		embedder,
		vectorStore,
		cfg.QdrantCollection,
	)

	// Create LLM client for grounded synthesis
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	packOpts := synthesis.DefaultPackOptions()
	packOpts.MaxChars = cfg.MaxContextChars
	synthesizer := synthesis.NewSynthesizer(llmClient, synthesis.Options{
		Model:            cfg.LLMModelName,
		CiteN:            cfg.CiteN,
		AbstainThreshold: cfg.AbstainThreshold,
		StrictCitations:  cfg.StrictCitations,
		Pack:             packOpts,
	})

	// Select the reranker backend
	var reranker rag.Reranker = rag.NoopReranker{}
	if cfg.RerankEnabled {
		reranker = rag.NewHTTPReranker(cfg.RerankURL, cfg.RerankModel)
		slog.Info("Cross-encoder reranker enabled", "url", cfg.RerankURL, "model", cfg.RerankModel)
	}

	// Assemble the retrieval pipeline
	pipeline := &rag.Pipeline{
		Lexical:     search.NewLexicalSearcher(chunkRepo),
		Dense:       search.NewDenseSearcher(embedder, vectorStore, cfg.QdrantCollection),
		Chunks:      chunkRepo,
		Reranker:    reranker,
		Synthesizer: synthesizer,
		Config: rag.Config{
			TopKLexical:    cfg.TopKLexical,
			TopKDense:      cfg.TopKDense,
			RRFK:           cfg.RRFK,
			NeighborRadius: cfg.NeighborRadius,
			FinalK:         cfg.FinalK,
			RerankTopK:     cfg.RerankTopK,
			MinScore:       cfg.MinScore,
			RerankEnabled:  cfg.RerankEnabled,
			MaxAnswerChars: cfg.MaxAnswerChars,
		},
	}
	slog.Info("Retrieval pipeline initialized")

	deps := &http.Deps{
		Query:      handlers.NewQueryHandler(pipeline),
		Synthesize: handlers.NewSynthesizeHandler(synthesizer),
		Ingest:     handlers.NewIngestHandler(indexerPipeline, cfg.ChunksExportPath),
		Health:     handlers.NewHealthHandler(db, vectorStore, cfg.QdrantCollection),
	}
	router := http.NewRouter(deps)

	// Start indexing in background after router is ready
	go func() {
		indexCtx := context.Background()
		slog.Info("Starting background ingest", "docs_dir", cfg.DocsDir)
		summary, err := indexerPipeline.IndexAll(indexCtx)
		if err != nil {
			slog.Error("Ingest completed with errors", "error", err)
		}
		if summary != nil && summary.FilesIndexed > 0 && cfg.ChunksExportPath != "" {
			if err := indexerPipeline.ExportChunks(indexCtx, cfg.ChunksExportPath); err != nil {
				slog.Warn("Failed to export chunks", "error", err, "path", cfg.ChunksExportPath)
			}
		}
	}()

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
