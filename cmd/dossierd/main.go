// Dossierd is the dossier daemon: a retrieval-grounded assistant over
// heterogeneous case documents (scans, PDFs, recordings, spreadsheets).
//
// It serves the HTTP API for case lifecycle, document ingest, and
// streamed question answering. Extraction runs locally (tesseract for
// OCR, an OpenAI-compatible endpoint for speech); embeddings and chat
// go through Ollama; each case keeps its own on-disk vector index.
//
// Configuration is loaded from ~/.config/dossier/config.yaml and
// overridden by environment variables.
//
// Usage:
//
//	# Start with defaults
//	dossierd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9180 OLLAMA_CHAT_MODEL=llama3.1 dossierd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dossier/internal/answer"
	"github.com/fyrsmithlabs/dossier/internal/assistant"
	"github.com/fyrsmithlabs/dossier/internal/casefile"
	"github.com/fyrsmithlabs/dossier/internal/chunk"
	"github.com/fyrsmithlabs/dossier/internal/config"
	"github.com/fyrsmithlabs/dossier/internal/embeddings"
	"github.com/fyrsmithlabs/dossier/internal/extract"
	dhttp "github.com/fyrsmithlabs/dossier/internal/http"
	"github.com/fyrsmithlabs/dossier/internal/index"
	"github.com/fyrsmithlabs/dossier/internal/logging"
	"github.com/fyrsmithlabs/dossier/internal/retrieve"
	"github.com/fyrsmithlabs/dossier/internal/sanitize"
	"github.com/fyrsmithlabs/dossier/internal/session"
	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/dossier/config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dossierd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n",
			version, gitCommit, buildDate)
		os.Exit(0)
	}

	// Optional .env for local development; absence is fine.
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

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

// run wires the daemon together and blocks until the context is
// cancelled:
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Builds extraction, embedding, and chat dependencies
//  4. Opens the case registry and sweeps the trash
//  5. Starts the HTTP server, shutting it down gracefully on cancel
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting dossierd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.HTTPPort),
		zap.String("memory_root", cfg.Memory.Root))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	registry, err := casefile.NewRegistry(cfg.Memory.Root, logger)
	if err != nil {
		return fmt.Errorf("failed to open case registry: %w", err)
	}
	if removed, err := registry.Sweep(); err != nil {
		logger.Warn("trash sweep incomplete",
			zap.Int("removed", removed), zap.Error(err))
	}

	opener := func(caseName string) (session.Store, error) {
		return vectorstore.Open(vectorstore.Config{
			Root:     cfg.Memory.Root,
			Case:     sanitize.CaseName(caseName),
			Compress: cfg.Memory.Compress,
		}, deps.embedder, logger)
	}
	manager := session.NewManager(opener, logger)
	defer manager.Release("")

	svc := assistant.New(
		registry,
		manager,
		deps.extractor,
		chunk.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
		index.New(index.Config{
			BatchSize:  cfg.Ingest.BatchSize,
			BatchPause: cfg.Ingest.BatchPause.Duration(),
		}, logger),
		retrieve.New(cfg.Retrieval.TopK, logger),
		answer.New(deps.llm, cfg.Ollama.Temperature, logger),
		logger,
	)

	srv, err := dhttp.NewServer(svc, logger, &dhttp.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.HTTPPort,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// dependencies holds the model and extraction backends.
type dependencies struct {
	embedder  *embeddings.Service
	llm       *ollama.LLM
	extractor *extract.Service
	tesseract *extract.Tesseract
}

// Close releases backend resources.
func (d *dependencies) Close() {
	if d.tesseract != nil {
		_ = d.tesseract.Close()
	}
}

// initDependencies builds the embedder, the chat model, and the
// extraction service. OCR is optional: when disabled, image files and
// scanned PDF pages come back empty instead of failing the daemon.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	embedder, err := embeddings.NewService(embeddings.Config{
		ServerURL: cfg.Ollama.URL,
		Model:     cfg.Ollama.EmbedModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}
	logger.Info("embedding service initialized",
		zap.String("url", cfg.Ollama.URL),
		zap.String("model", cfg.Ollama.EmbedModel))

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.Ollama.URL),
		ollama.WithModel(cfg.Ollama.ChatModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	logger.Info("chat model initialized",
		zap.String("model", cfg.Ollama.ChatModel))

	var (
		ocr       extract.OCR
		tesseract *extract.Tesseract
	)
	if cfg.OCR.Enabled() {
		tesseract, err = extract.NewTesseract(cfg.OCR.Languages)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tesseract: %w", err)
		}
		ocr = tesseract
		logger.Info("ocr initialized",
			zap.Strings("languages", cfg.OCR.Languages))
	} else {
		logger.Warn("ocr disabled, images and scanned pages will be skipped")
	}

	transcriber, err := extract.NewWhisper(extract.WhisperConfig{
		BaseURL: cfg.Speech.BaseURL,
		APIKey:  cfg.Speech.APIKey,
		Model:   cfg.Speech.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}
	logger.Info("transcriber initialized",
		zap.String("base_url", cfg.Speech.BaseURL),
		zap.String("model", cfg.Speech.Model))

	return &dependencies{
		embedder:  embedder,
		llm:       llm,
		extractor: extract.NewService(ocr, transcriber, logger),
		tesseract: tesseract,
	}, nil
}
