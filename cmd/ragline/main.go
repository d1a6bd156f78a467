package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devkraft/ragline/internal/api"
	"github.com/devkraft/ragline/internal/chathistory"
	"github.com/devkraft/ragline/internal/chunker"
	"github.com/devkraft/ragline/internal/config"
	"github.com/devkraft/ragline/internal/embedding"
	"github.com/devkraft/ragline/internal/ingest"
	"github.com/devkraft/ragline/internal/llm"
	"github.com/devkraft/ragline/internal/ragquery"
	"github.com/devkraft/ragline/internal/vectorstore"
	"github.com/devkraft/ragline/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// 1. Initialize Logger
	logger.Init(logrus.InfoLevel)
	appLogger := logger.New("ragline")
	appLogger.Info("Starting ragline...")

	// 2. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	appLogger.Info("Configuration loaded successfully.")

	ctx := context.Background()

	// 3. Vector backends. The durable engine must come up; the fast engine
	// is optional and the store degrades to replica reads without it.
	durable, err := vectorstore.NewMilvusBackend(ctx, cfg.Vector.Durable.Address, cfg.Vector.Durable.APIKey, appLogger)
	if err != nil {
		log.Fatalf("Failed to connect to durable vector backend: %v", err)
	}
	defer durable.Close()

	var fast vectorstore.Backend
	if cfg.Vector.Fast.Address == "" {
		appLogger.Warn("No fast vector backend configured, serving local-space reads from the replica")
		fast = vectorstore.Unavailable(errors.New("fast backend not configured"))
	} else {
		fastMilvus, err := vectorstore.NewMilvusBackend(ctx, cfg.Vector.Fast.Address, cfg.Vector.Fast.APIKey, appLogger)
		if err != nil {
			appLogger.WithError(err).Warn("Fast vector backend is unreachable, serving local-space reads from the replica")
			fast = vectorstore.Unavailable(err)
		} else {
			defer fastMilvus.Close()
			fast = fastMilvus
		}
	}

	store, err := vectorstore.NewDualStore(ctx, durable, fast, vectorstore.DualStoreConfig{
		DurableCollection: cfg.Vector.DurableCollection,
		FastCollection:    cfg.Vector.FastCollection,
		ReplicaCollection: cfg.Vector.ReplicaCollection,
		DurableDim:        cfg.Gemini.EmbeddingDim,
		FastDim:           cfg.Local.EmbeddingDim,
	}, appLogger)
	if err != nil {
		log.Fatalf("Failed to prepare vector collections: %v", err)
	}

	// 4. Embedding providers, one per space.
	remoteEmbed, err := embedding.NewGeminiProvider(ctx,
		[]string{cfg.Gemini.APIKey, cfg.Gemini.APIKey2},
		cfg.Gemini.EmbeddingModel, cfg.Gemini.EmbeddingDim, appLogger)
	if err != nil {
		log.Fatalf("Failed to create Gemini embedding client: %v", err)
	}

	hfEmbed, err := embedding.NewHuggingFaceModel(cfg.HuggingFace.Token, cfg.HuggingFace.EmbeddingModel, cfg.HuggingFace.EmbeddingURL)
	if err != nil {
		log.Fatalf("Failed to create Hugging Face embedding client: %v", err)
	}
	localEmbed, err := embedding.NewLocalProvider(ctx, cfg.Local.EmbeddingModel, cfg.Local.OllamaURL, hfEmbed, cfg.Local.EmbeddingDim, appLogger)
	if err != nil {
		log.Fatalf("Failed to create local embedding provider: %v", err)
	}

	// 5. Generators, one per space.
	remoteGen, err := llm.NewGeminiGenerator(ctx, cfg.Gemini.ChatModel, cfg.Gemini.APIKey, appLogger)
	if err != nil {
		log.Fatalf("Failed to create Gemini LLM client: %v", err)
	}
	localGen, err := llm.NewLocalGenerator(ctx, cfg.Local.ChatModel, cfg.Local.OllamaURL,
		cfg.HuggingFace.Token, cfg.HuggingFace.ChatModel, appLogger)
	if err != nil {
		log.Fatalf("Failed to create local LLM client: %v", err)
	}

	// 6. Chat history: Mongo when reachable, JSON files otherwise.
	fileHistory, err := chathistory.NewFileStore(cfg.Chat.FallbackDir)
	if err != nil {
		log.Fatalf("Failed to prepare chat-history fallback dir: %v", err)
	}
	var history chathistory.Store = fileHistory
	if cfg.Chat.Mongo.URI != "" {
		mongoHistory, err := chathistory.NewMongoStore(ctx, cfg.Chat.Mongo.URI, cfg.Chat.Mongo.Database, cfg.Chat.Mongo.Collection, appLogger)
		if err != nil {
			appLogger.WithError(err).Warn("MongoDB is unreachable, chat history goes to local files")
		} else {
			defer mongoHistory.Close(ctx)
			history = chathistory.NewFallbackStore(mongoHistory, fileHistory, appLogger)
		}
	} else {
		appLogger.Warn("No MongoDB URI configured, chat history goes to local files")
	}

	// 7. Ingestion and query services.
	splitter, err := chunker.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		log.Fatalf("Failed to create splitter: %v", err)
	}
	ingestor, err := ingest.NewIngestor(store, remoteEmbed, localEmbed, splitter, ingest.Dirs{
		Inbox:       cfg.Ingest.InboxDir,
		Stored:      cfg.Ingest.StoredDir,
		DurableOnly: cfg.Ingest.DurableOnlyDir,
		FastOnly:    cfg.Ingest.FastOnlyDir,
	}, appLogger)
	if err != nil {
		log.Fatalf("Failed to create ingestor: %v", err)
	}

	engine := ragquery.NewEngine(store, remoteEmbed, localEmbed, remoteGen, localGen, history, ragquery.Options{
		TopK:          cfg.Query.TopK,
		HistoryWindow: cfg.Query.HistoryWindow,
		MaxSources:    cfg.Query.MaxSources,
	}, appLogger)

	// 8. HTTP server with graceful shutdown.
	handler := api.NewHandler(ingestor, engine, history, appLogger)
	router := api.SetupRouter(handler)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}
	go func() {
		appLogger.Infof("HTTP server listening at %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Forced shutdown")
	}
	appLogger.Info("Server gracefully stopped")
}
