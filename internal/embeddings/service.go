// Package embeddings provides embedding generation via langchaingo.
//
// This package wraps langchaingo's embedding functionality over an
// Ollama server. The service is constructed once at process start and
// injected wherever a vectorstore.Embedder is needed.
//
// Example usage:
//
//	config := embeddings.Config{
//	    ServerURL: "http://localhost:11434",
//	    Model:     "all-minilm",
//	}
//	service, err := embeddings.NewService(config)
//	if err != nil {
//	    // Handle error
//	}
//	vectors, err := service.EmbedDocuments(ctx, []string{"text1", "text2"})
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds configuration for the embedding service.
type Config struct {
	// ServerURL is the Ollama server URL (e.g. http://localhost:11434).
	ServerURL string

	// Model is the embedding model to use (e.g. all-minilm).
	Model string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("%w: server URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service provides embedding generation functionality.
//
// It satisfies vectorstore.Embedder.
type Service struct {
	embedder *embeddings.EmbedderImpl
	config   Config
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	llm, err := ollama.New(
		ollama.WithServerURL(config.ServerURL),
		ollama.WithModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{
		embedder: embedder,
		config:   config,
	}, nil
}

// EmbedDocuments generates embeddings for the given texts, one vector
// per input text. Returns ErrEmptyInput if texts is empty or nil.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}

	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return vector, nil
}
