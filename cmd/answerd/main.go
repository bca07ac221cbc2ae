// Answerd is a retrieval-augmented question-answering daemon.
//
// It indexes documents into a local persistent vector store and answers
// questions over them via an HTTP API. Embeddings run locally (fastembed)
// or against an OpenAI-compatible API; answer generation is optional and
// degrades to extractive answers when unavailable.
//
// Configuration is loaded from ~/.config/answerd/config.yaml with
// environment-variable overrides. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	answerd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=8000 EMBEDDINGS_PROVIDER=fastembed answerd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/answer"
	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/embeddings"
	"github.com/fyrsmithlabs/answerd/internal/httpapi"
	"github.com/fyrsmithlabs/answerd/internal/knowledge"
	"github.com/fyrsmithlabs/answerd/internal/logging"
	"github.com/fyrsmithlabs/answerd/internal/retriever"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/answerd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  answerd           Start the answerd daemon\n")
			fmt.Fprintf(os.Stderr, "  answerd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("answerd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run initializes all dependencies and blocks until the context is
// cancelled:
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Opens the persistent vector store
//  4. Creates the embedding provider and optional generator
//  5. Wires retriever, synthesizer, and knowledge-base manager
//  6. Starts the HTTP server
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting answerd",
		zap.String("version", version),
		zap.String("commit", gitCommit),
		zap.String("build_date", buildDate))

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       cfg.VectorStore.Path,
		Collection: cfg.VectorStore.Collection,
		VectorSize: cfg.VectorStore.VectorSize,
		Compress:   cfg.VectorStore.Compress,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		APIKey:   cfg.Embeddings.APIKey.Value(),
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	defer func() { _ = provider.Close() }()

	if dim := provider.Dimension(); dim != 0 && dim != cfg.VectorStore.VectorSize {
		return fmt.Errorf("embedding dimension %d does not match vector store size %d", dim, cfg.VectorStore.VectorSize)
	}

	var generator answer.Generator
	if cfg.Generation.Enabled {
		generator, err = answer.NewOpenAIGenerator(answer.GeneratorConfig{
			APIKey:      cfg.Generation.APIKey.Value(),
			BaseURL:     cfg.Generation.BaseURL,
			Model:       cfg.Generation.Model,
			MaxTokens:   cfg.Generation.MaxTokens,
			Temperature: cfg.Generation.Temperature,
		})
		if err != nil {
			return fmt.Errorf("creating answer generator: %w", err)
		}
		logger.Info("answer generation enabled", zap.String("model", cfg.Generation.Model))
	} else {
		logger.Info("answer generation disabled, answers are extractive")
	}

	ret, err := retriever.New(provider, store, retriever.Config{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
	}, logger.Named("retriever"))
	if err != nil {
		return fmt.Errorf("creating retriever: %w", err)
	}

	synth, err := answer.New(generator, answer.Config{}, logger.Named("answer"))
	if err != nil {
		return fmt.Errorf("creating answer synthesizer: %w", err)
	}

	fetcher, err := knowledge.NewDirectoryFetcher(cfg.Documents.Root)
	if err != nil {
		return fmt.Errorf("creating document fetcher: %w", err)
	}

	kb, err := knowledge.New(fetcher, provider, store, ret, synth, knowledge.Config{
		ChunkSize:         cfg.Chunking.Size,
		ChunkOverlap:      cfg.Chunking.Overlap,
		EmbedBatchSize:    cfg.Embeddings.BatchSize,
		EmbedBatchTimeout: cfg.Embeddings.BatchTimeout,
	}, logger.Named("knowledge"))
	if err != nil {
		return fmt.Errorf("creating knowledge base manager: %w", err)
	}

	srv := httpapi.NewServer(cfg.Server, kb, logger.Named("http"))
	return srv.Start(ctx)
}
