// Package index writes chunked fragments into a case's vector store in
// bounded batches. Large uploads are split into writes of at most
// BatchSize fragments with a short pause between writes, so a single
// ingest cannot monopolize the store or trip its per-write limit.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dossier/internal/chunk"
	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

var tracer = otel.Tracer("dossier.index")

const (
	// DefaultBatchSize is the maximum fragments per store write.
	DefaultBatchSize = 4000

	// DefaultBatchPause is the delay between consecutive batch writes.
	DefaultBatchPause = 100 * time.Millisecond
)

// ErrNoFragments indicates there is nothing to index.
var ErrNoFragments = errors.New("no fragments to index")

// DocumentWriter accepts fragment batches. *vectorstore.Store satisfies it.
type DocumentWriter interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error)
}

// Report summarizes one indexing run. A run that fails partway still
// reports the batches and fragments that were written before the fault.
type Report struct {
	// Fragments is the total number of fragments submitted.
	Fragments int

	// Batches is the number of store writes completed.
	Batches int

	// Indexed is the number of fragments persisted.
	Indexed int
}

// Config controls batching behavior.
type Config struct {
	// BatchSize caps fragments per write. Defaults to DefaultBatchSize.
	BatchSize int

	// BatchPause is the sleep between writes. Defaults to DefaultBatchPause.
	BatchPause time.Duration
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchPause <= 0 {
		c.BatchPause = DefaultBatchPause
	}
}

// Indexer batches fragments into a case's vector store.
type Indexer struct {
	config Config
	logger *zap.Logger
}

// New creates an indexer. A nil logger falls back to a no-op logger.
func New(config Config, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.applyDefaults()
	return &Indexer{config: config, logger: logger}
}

// Index writes fragments to the store in order, BatchSize at a time,
// pausing BatchPause between writes. Every fragment gets a fresh UUID.
// On a batch failure the fragments already written stay in the store and
// the returned Report reflects them alongside the error.
func (ix *Indexer) Index(ctx context.Context, store DocumentWriter, fragments []chunk.Fragment) (Report, error) {
	ctx, span := tracer.Start(ctx, "index.Index",
		trace.WithAttributes(
			attribute.Int("index.fragments", len(fragments)),
			attribute.Int("index.batch_size", ix.config.BatchSize),
		))
	defer span.End()

	report := Report{Fragments: len(fragments)}
	if len(fragments) == 0 {
		span.SetStatus(codes.Error, ErrNoFragments.Error())
		return report, ErrNoFragments
	}

	docs := make([]vectorstore.Document, len(fragments))
	for i, f := range fragments {
		docs[i] = vectorstore.Document{
			ID:       uuid.NewString(),
			Content:  f.Text,
			Metadata: f.Metadata,
		}
	}

	for start := 0; start < len(docs); start += ix.config.BatchSize {
		if start > 0 {
			if err := ix.pause(ctx); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return report, err
			}
		}

		end := start + ix.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		if _, err := store.AddDocuments(ctx, batch); err != nil {
			span.SetStatus(codes.Error, err.Error())
			ix.logger.Error("batch write failed",
				zap.Int("batch", report.Batches),
				zap.Int("indexed", report.Indexed),
				zap.Int("fragments", report.Fragments),
				zap.Error(err))
			return report, fmt.Errorf("write batch %d: %w", report.Batches, err)
		}

		report.Batches++
		report.Indexed += len(batch)
		ix.logger.Debug("batch indexed",
			zap.Int("batch", report.Batches),
			zap.Int("size", len(batch)))
	}

	span.SetAttributes(attribute.Int("index.batches", report.Batches))
	ix.logger.Info("fragments indexed",
		zap.Int("fragments", report.Indexed),
		zap.Int("batches", report.Batches))
	return report, nil
}

func (ix *Indexer) pause(ctx context.Context) error {
	timer := time.NewTimer(ix.config.BatchPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
