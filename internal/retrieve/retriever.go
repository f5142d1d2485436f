// Package retrieve pulls the most relevant fragments for a question out
// of a case's vector store. The result is a small context window the
// answer generator grounds itself on, plus the source files it came from.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

var tracer = otel.Tracer("dossier.retrieve")

// DefaultTopK is the number of fragments fetched per question.
const DefaultTopK = 5

// Searcher answers similarity queries. *vectorstore.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error)
}

// Context is the retrieved evidence for one question.
type Context struct {
	// Fragments are the matches, best first.
	Fragments []vectorstore.SearchResult
}

// Empty reports whether retrieval produced no evidence.
func (c Context) Empty() bool {
	return len(c.Fragments) == 0
}

// Text renders the fragments as a single block for the prompt.
func (c Context) Text() string {
	parts := make([]string, len(c.Fragments))
	for i, f := range c.Fragments {
		parts[i] = f.Content
	}
	return strings.Join(parts, "\n\n")
}

// Sources returns the distinct source file names behind the fragments,
// in first-seen order.
func (c Context) Sources() []string {
	var sources []string
	seen := map[string]bool{}
	for _, f := range c.Fragments {
		name := f.Metadata[vectorstore.MetaSourceName]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		sources = append(sources, name)
	}
	return sources
}

// Retriever fetches evidence from a case's vector store.
type Retriever struct {
	topK   int
	logger *zap.Logger
}

// New creates a retriever. Non-positive topK falls back to DefaultTopK
// and a nil logger falls back to a no-op logger.
func New(topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{topK: topK, logger: logger}
}

// Retrieve searches the store for the question's nearest fragments. An
// empty store yields an empty context without error.
func (r *Retriever) Retrieve(ctx context.Context, store Searcher, question string) (Context, error) {
	ctx, span := tracer.Start(ctx, "retrieve.Retrieve",
		trace.WithAttributes(attribute.Int("retrieve.top_k", r.topK)))
	defer span.End()

	results, err := store.Search(ctx, question, r.topK)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Context{}, fmt.Errorf("search: %w", err)
	}

	span.SetAttributes(attribute.Int("retrieve.hits", len(results)))
	r.logger.Debug("fragments retrieved", zap.Int("hits", len(results)))
	return Context{Fragments: results}, nil
}
