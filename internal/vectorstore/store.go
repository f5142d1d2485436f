// Package vectorstore provides the per-case persistent vector index.
//
// Each case owns one chromem-go database under its own directory in the
// memory root, with a single collection named after the case. chromem-go
// is an embeddable vector database persisting to gob files, so a "handle"
// is this process's view of those files: only one Store per case
// directory may be open at a time (see session.Manager for the
// release-then-acquire ordering on case switch).
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dossier/internal/sanitize"
)

var tracer = otel.Tracer("dossier.vectorstore")

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrClosed is returned when operating on a released store handle.
	ErrClosed = errors.New("vector store is closed")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds configuration for a per-case store.
type Config struct {
	// Root is the memory root directory; the case database lives in
	// Root/<case>.
	Root string

	// Case is the sanitized case name, also used as the collection name.
	Case string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: root directory required", ErrInvalidConfig)
	}
	if !sanitize.Valid(c.Case) {
		return fmt.Errorf("%w: case name %q is not sanitized", ErrInvalidConfig, c.Case)
	}
	return nil
}

// Store is the open handle to one case's vector index.
//
// Fragments are append-only: they are written once and removed only by
// deleting the whole case directory.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     Config
	logger     *zap.Logger
	closed     bool
}

// Open opens (creating if needed) the vector index for one case.
func Open(config Config, embedder Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	dir := filepath.Join(config.Root, config.Case)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating case directory %s: %w", dir, err)
	}

	db, err := chromem.NewPersistentDB(dir, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	// The collection is created eagerly so a fresh case is queryable
	// (returning zero results) before its first upload.
	s.collection, err = db.GetOrCreateCollection(config.Case, nil, s.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Case, err)
	}

	logger.Info("case vector store opened",
		zap.String("case", config.Case),
		zap.String("path", dir),
		zap.Int("fragments", s.collection.Count()),
	)

	return s, nil
}

// embeddingFunc adapts the Embedder to chromem's query-time interface.
func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Case returns the case name this store belongs to.
func (s *Store) Case() string {
	return s.config.Case
}

// Count returns the number of fragments currently indexed.
func (s *Store) Count() int {
	if s.closed {
		return 0
	}
	return s.collection.Count()
}

// AddDocuments embeds and persists fragments into the case collection.
//
// The caller is responsible for respecting the store's write-size limit
// (chromem rejects writes above roughly 5461 items); see index.Indexer
// for the batching that enforces it.
func (s *Store) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.AddDocuments")
	defer span.End()

	span.SetAttributes(
		attribute.String("case", s.config.Case),
		attribute.Int("document_count", len(docs)),
	)

	if s.closed {
		return nil, ErrClosed
	}
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			return nil, fmt.Errorf("document at index %d has no ID", i)
		}
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1: embeddings are already computed above.
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added fragments to case index",
		zap.String("case", s.config.Case),
		zap.Int("count", len(docs)),
	)

	return ids, nil
}

// Search performs similarity search over the case collection, returning
// up to k fragments ordered by descending similarity. An empty index
// yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("case", s.config.Case),
		attribute.Int("k", k),
	)

	if s.closed {
		return nil, ErrClosed
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	// chromem requires nResults <= document count.
	count := s.collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Case, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")

	return searchResults, nil
}

// Close releases the store handle. chromem persists on every write, so
// closing only invalidates this handle; it must be called before another
// Store is opened for a different case (the underlying store can error
// when two handles over overlapping storage paths are open at once).
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.db = nil
	s.collection = nil
	s.logger.Info("case vector store closed", zap.String("case", s.config.Case))
	return nil
}
