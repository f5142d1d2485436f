// Package assistant orchestrates the two user-facing flows over the
// active case: ingesting a batch of files into the index and answering
// questions grounded on what the case holds. It owns no extraction,
// chunking, or model logic of its own; it sequences the stages and
// enforces the evidence rules, refusing questions that no document can
// back.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dossier/internal/answer"
	"github.com/fyrsmithlabs/dossier/internal/casefile"
	"github.com/fyrsmithlabs/dossier/internal/chunk"
	"github.com/fyrsmithlabs/dossier/internal/compose"
	"github.com/fyrsmithlabs/dossier/internal/extract"
	"github.com/fyrsmithlabs/dossier/internal/index"
	"github.com/fyrsmithlabs/dossier/internal/retrieve"
	"github.com/fyrsmithlabs/dossier/internal/session"
	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

var tracer = otel.Tracer("dossier.assistant")

// Extractor turns one file into a raw document.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.RawDocument, error)
}

// Chunker splits raw documents into index-ready fragments.
type Chunker interface {
	Chunk(caseName string, docs []*extract.RawDocument) ([]chunk.Fragment, error)
}

// Indexer writes fragments into a case's store in batches.
type Indexer interface {
	Index(ctx context.Context, store index.DocumentWriter, fragments []chunk.Fragment) (index.Report, error)
}

// Retriever fetches the evidence for a question.
type Retriever interface {
	Retrieve(ctx context.Context, store retrieve.Searcher, question string) (retrieve.Context, error)
}

// Generator streams a model answer for a composed prompt.
type Generator interface {
	Stream(ctx context.Context, prompt string) <-chan answer.Chunk
}

// File ingest outcomes. StatusExtracted is the interim state of a file
// whose text was pulled but whose fragments have not reached the store;
// it survives in the report only when indexing aborts before the batch.
const (
	StatusIndexed   = "indexed"
	StatusExtracted = "extracted"
	StatusEmpty     = "empty"
	StatusSkipped   = "skipped"
	StatusError     = "error"
)

// FileResult is the per-file outcome of an ingest batch.
type FileResult struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Fragments int    `json:"fragments,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// IngestReport summarizes one upload batch. A batch that indexed some
// fragments before a store fault still reports what landed.
type IngestReport struct {
	Case      string       `json:"case"`
	Files     []FileResult `json:"files"`
	Fragments int          `json:"fragments"`
	Batches   int          `json:"batches"`
	Indexed   int          `json:"indexed"`
}

// AnswerStream is a streamed reply plus the evidence behind it.
type AnswerStream struct {
	// Chunks delivers the answer increments; closed when done.
	Chunks <-chan answer.Chunk

	// Sources are the file names the persisted evidence came from.
	Sources []string

	// Refused is set when no evidence exists and Chunks carries only
	// the fixed refusal text. The model was not called.
	Refused bool
}

// Service wires the ingest and ask flows together.
type Service struct {
	registry  *casefile.Registry
	manager   *session.Manager
	extractor Extractor
	chunker   Chunker
	indexer   Indexer
	retriever Retriever
	generator Generator
	logger    *zap.Logger
}

// New creates the orchestrator. A nil logger falls back to a no-op
// logger.
func New(
	registry *casefile.Registry,
	manager *session.Manager,
	extractor Extractor,
	chunker Chunker,
	indexer Indexer,
	retriever Retriever,
	generator Generator,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:  registry,
		manager:   manager,
		extractor: extractor,
		chunker:   chunker,
		indexer:   indexer,
		retriever: retriever,
		generator: generator,
		logger:    logger,
	}
}

// Ingest extracts the given files into the case, replaces the session's
// immediate memory with the batch text, and indexes the fragments. Files
// are processed strictly in order; one bad file never aborts the batch.
// The report covers whatever landed even when indexing fails partway,
// alongside the error.
func (s *Service) Ingest(ctx context.Context, caseName string, paths []string) (IngestReport, error) {
	ctx, span := tracer.Start(ctx, "assistant.Ingest",
		trace.WithAttributes(
			attribute.String("case", caseName),
			attribute.Int("files", len(paths)),
		))
	defer span.End()

	report := IngestReport{Case: caseName}

	sess, err := s.manager.Activate(caseName)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	var docs []*extract.RawDocument
	for _, path := range paths {
		name := filepath.Base(path)
		doc, err := s.extractor.Extract(ctx, path)
		switch {
		case err == nil:
			docs = append(docs, doc)
			report.Files = append(report.Files, FileResult{Name: name, Status: StatusExtracted})
		case errors.Is(err, extract.ErrUnsupported):
			s.logger.Warn("unsupported file skipped", zap.String("file", name))
			report.Files = append(report.Files, FileResult{
				Name: name, Status: StatusSkipped, Detail: "unsupported file type",
			})
		case errors.Is(err, extract.ErrEmptyContent):
			report.Files = append(report.Files, FileResult{
				Name: name, Status: StatusEmpty, Detail: "no usable text extracted",
			})
		default:
			s.logger.Warn("extraction failed",
				zap.String("file", name), zap.Error(err))
			report.Files = append(report.Files, FileResult{
				Name: name, Status: StatusError, Detail: err.Error(),
			})
		}
	}

	// The batch becomes the immediate memory before any indexing, so
	// questions can lean on it even if the store write fails.
	sess.SetImmediate(batchText(docs))

	if len(docs) == 0 {
		return report, nil
	}

	fragments, err := s.chunker.Chunk(caseName, docs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("chunk batch: %w", err)
	}

	counts := fragmentCounts(fragments)
	for i := range report.Files {
		if report.Files[i].Status == StatusExtracted {
			report.Files[i].Fragments = counts[report.Files[i].Name]
		}
	}

	idxReport, err := s.indexer.Index(ctx, sess.Store(), fragments)
	report.Fragments = idxReport.Fragments
	report.Batches = idxReport.Batches
	report.Indexed = idxReport.Indexed

	// Batches are written in fragment order, so the first Indexed
	// fragments are the ones that landed. A file only reads "indexed"
	// when every one of its fragments did.
	landed := fragmentCounts(fragments[:idxReport.Indexed])
	for i := range report.Files {
		f := &report.Files[i]
		if f.Status != StatusExtracted {
			continue
		}
		switch {
		case landed[f.Name] == f.Fragments:
			f.Status = StatusIndexed
		default:
			f.Status = StatusError
			f.Detail = fmt.Sprintf("indexed %d of %d fragments", landed[f.Name], f.Fragments)
		}
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("index batch: %w", err)
	}

	s.logger.Info("batch ingested",
		zap.String("case", caseName),
		zap.Int("files", len(paths)),
		zap.Int("indexed", report.Indexed))
	return report, nil
}

// Ask answers a question from the active case's evidence. Retrieval
// faults degrade to an empty persisted context; when immediate memory
// is also empty the reply is the fixed refusal and the model is never
// called. The finished exchange is appended to the session's
// conversation.
func (s *Service) Ask(ctx context.Context, caseName, question string) (*AnswerStream, error) {
	ctx, span := tracer.Start(ctx, "assistant.Ask",
		trace.WithAttributes(attribute.String("case", caseName)))
	defer span.End()

	sess, err := s.manager.Activate(caseName)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	evidence, err := s.retriever.Retrieve(ctx, sess.Store(), question)
	if err != nil {
		s.logger.Warn("retrieval degraded to empty context",
			zap.String("case", caseName), zap.Error(err))
		evidence = retrieve.Context{}
	}

	prompt, err := compose.Build(sess.Immediate(), evidence.Text(), evidence.Sources(), question)
	if errors.Is(err, compose.ErrNoBasis) {
		span.SetAttributes(attribute.Bool("refused", true))
		sess.AddTurn(session.Turn{Question: question, Answer: compose.RefusalMessage})
		return refusalStream(), nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make(chan answer.Chunk)
	go func() {
		defer close(out)
		var full strings.Builder
		for c := range s.generator.Stream(ctx, prompt.Text) {
			if c.Err == nil {
				full.WriteString(c.Text)
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
		sess.AddTurn(session.Turn{
			Question: question,
			Answer:   full.String(),
			Sources:  prompt.Sources,
		})
	}()

	return &AnswerStream{Chunks: out, Sources: prompt.Sources}, nil
}

// ListCases returns the visible cases, pinned first.
func (s *Service) ListCases() ([]casefile.Case, error) {
	return s.registry.List()
}

// CreateCase makes a new case and returns its sanitized name.
func (s *Service) CreateCase(name string) (string, error) {
	return s.registry.Create(name)
}

// PinCase marks or unmarks a case as pinned.
func (s *Service) PinCase(name string, pinned bool) error {
	return s.registry.Pin(name, pinned)
}

// DeleteCase releases the case's store handle, then soft-deletes the
// case to the trash. Its immediate memory and conversation go with the
// session.
func (s *Service) DeleteCase(name string) error {
	s.manager.Release(name)
	return s.registry.Trash(name)
}

// RenameCase releases the case's store handle, then moves the directory
// to the sanitized new name. The renamed case is not re-activated; the
// next operation on it starts a fresh session.
func (s *Service) RenameCase(oldName, newName string) (string, error) {
	s.manager.Release(oldName)
	return s.registry.Rename(oldName, newName)
}

// ActiveCase returns the name of the active case, or empty when none.
func (s *Service) ActiveCase() string {
	sess, err := s.manager.Current()
	if err != nil {
		return ""
	}
	return sess.Case()
}

func refusalStream() *AnswerStream {
	ch := make(chan answer.Chunk, 1)
	ch <- answer.Chunk{Text: compose.RefusalMessage}
	close(ch)
	return &AnswerStream{Chunks: ch, Refused: true}
}

// batchText concatenates the formatted documents of one upload batch
// into the session's immediate memory.
func batchText(docs []*extract.RawDocument) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Formatted()
	}
	return strings.Join(parts, "\n")
}

func fragmentCounts(fragments []chunk.Fragment) map[string]int {
	counts := map[string]int{}
	for _, f := range fragments {
		counts[f.Metadata[vectorstore.MetaSourceName]]++
	}
	return counts
}
