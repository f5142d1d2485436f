package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// memoryStore is an in-memory stand-in for a case's vector index with
// substring-match "similarity".
type memoryStore struct {
	docs   []vectorstore.Document
	closed bool
	calls  int
	addErr error
	// failOnCall delays addErr until the n-th write; zero fails every
	// write once addErr is set.
	failOnCall int
}

func (m *memoryStore) AddDocuments(_ context.Context, docs []vectorstore.Document) ([]string, error) {
	m.calls++
	if m.addErr != nil && (m.failOnCall == 0 || m.calls >= m.failOnCall) {
		return nil, m.addErr
	}
	m.docs = append(m.docs, docs...)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (m *memoryStore) Search(_ context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	var out []vectorstore.SearchResult
	for _, d := range m.docs {
		if len(out) == k {
			break
		}
		if strings.Contains(strings.ToLower(d.Content), strings.ToLower(query)) {
			out = append(out, vectorstore.SearchResult{
				ID: d.ID, Content: d.Content, Score: 0.9, Metadata: d.Metadata,
			})
		}
	}
	return out, nil
}

func (m *memoryStore) Count() int { return len(m.docs) }

func (m *memoryStore) Close() error {
	m.closed = true
	return nil
}

type fakeExtractor struct {
	texts map[string]string // base name -> text; missing means unsupported
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (*extract.RawDocument, error) {
	name := filepath.Base(path)
	text, ok := f.texts[name]
	if !ok {
		return nil, extract.ErrUnsupported
	}
	if !extract.Usable(text) {
		return nil, extract.ErrEmptyContent
	}
	return &extract.RawDocument{Name: name, Kind: extract.KindForPath(name), Text: text}, nil
}

type fakeLLM struct {
	called  bool
	prompts []string
}

func (f *fakeLLM) Stream(_ context.Context, prompt string) <-chan answer.Chunk {
	f.called = true
	f.prompts = append(f.prompts, prompt)
	ch := make(chan answer.Chunk, 2)
	ch <- answer.Chunk{Text: "Based on the lease, "}
	ch <- answer.Chunk{Text: "it ends in March."}
	close(ch)
	return ch
}

type harness struct {
	svc     *Service
	stores  map[string]*memoryStore
	llm     *fakeLLM
	manager *session.Manager
}

func newHarness(t *testing.T, texts map[string]string) *harness {
	return newHarnessBatch(t, texts, 10)
}

func newHarnessBatch(t *testing.T, texts map[string]string, batchSize int) *harness {
	t.Helper()

	registry, err := casefile.NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)

	stores := map[string]*memoryStore{}
	opener := func(caseName string) (session.Store, error) {
		store := &memoryStore{}
		stores[caseName] = store
		return store, nil
	}
	manager := session.NewManager(opener, nil)
	llm := &fakeLLM{}

	svc := New(
		registry,
		manager,
		&fakeExtractor{texts: texts},
		chunk.New(2000, 200),
		index.New(index.Config{BatchSize: batchSize, BatchPause: 1}, nil),
		retrieve.New(5, nil),
		llm,
		nil,
	)
	return &harness{svc: svc, stores: stores, llm: llm, manager: manager}
}

func drain(t *testing.T, stream *AnswerStream) string {
	t.Helper()
	var b strings.Builder
	for c := range stream.Chunks {
		require.NoError(t, c.Err)
		b.WriteString(c.Text)
	}
	return b.String()
}

func TestIngestThenAsk(t *testing.T) {
	h := newHarness(t, map[string]string{
		"lease.pdf": "The lease agreement ends in March 2027.",
	})

	report, err := h.svc.Ingest(context.Background(), "acme", []string{"/tmp/lease.pdf"})
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Equal(t, StatusIndexed, report.Files[0].Status)
	assert.Equal(t, 1, report.Files[0].Fragments)
	assert.Equal(t, 1, report.Indexed)
	assert.Positive(t, h.stores["acme"].Count())

	stream, err := h.svc.Ask(context.Background(), "acme", "lease")
	require.NoError(t, err)
	assert.False(t, stream.Refused)
	assert.Equal(t, []string{"lease.pdf"}, stream.Sources)

	got := drain(t, stream)
	assert.Equal(t, "Based on the lease, it ends in March.", got)

	// The prompt carried both evidence tiers.
	require.Len(t, h.llm.prompts, 1)
	assert.Contains(t, h.llm.prompts[0], "lease agreement ends in March")
}

func TestIngestMixedBatchPartialSuccess(t *testing.T) {
	h := newHarness(t, map[string]string{
		"good.pdf":  "Signed by both parties on page four.",
		"blank.png": "  ",
	})

	report, err := h.svc.Ingest(context.Background(), "acme",
		[]string{"good.pdf", "blank.png", "virus.exe"})
	require.NoError(t, err)
	require.Len(t, report.Files, 3)

	byName := map[string]FileResult{}
	for _, f := range report.Files {
		byName[f.Name] = f
	}
	assert.Equal(t, StatusIndexed, byName["good.pdf"].Status)
	assert.Equal(t, StatusEmpty, byName["blank.png"].Status)
	assert.Equal(t, StatusSkipped, byName["virus.exe"].Status)
	assert.Equal(t, 1, report.Indexed)
}

func TestAskNoBasisRefusesWithoutModelCall(t *testing.T) {
	h := newHarness(t, nil)

	stream, err := h.svc.Ask(context.Background(), "empty_case", "who signed?")
	require.NoError(t, err)
	assert.True(t, stream.Refused)
	assert.Empty(t, stream.Sources)

	got := drain(t, stream)
	assert.Equal(t, compose.RefusalMessage, got)
	assert.False(t, h.llm.called, "model must not be called without evidence")
}

func TestAskUsesImmediateMemoryWhenIndexWriteFails(t *testing.T) {
	h := newHarness(t, map[string]string{
		"note.pdf": "Payment of 5000 was received in cash.",
	})

	// First activate so the store exists, then make writes fail.
	_, err := h.svc.Ingest(context.Background(), "acme", nil)
	require.NoError(t, err)
	h.stores["acme"].addErr = errors.New("disk full")

	report, err := h.svc.Ingest(context.Background(), "acme", []string{"note.pdf"})
	require.Error(t, err)
	assert.Zero(t, report.Indexed)

	// The batch still answers from immediate memory.
	stream, err := h.svc.Ask(context.Background(), "acme", "payment")
	require.NoError(t, err)
	assert.False(t, stream.Refused)
	drain(t, stream)
	require.Len(t, h.llm.prompts, 1)
	assert.Contains(t, h.llm.prompts[0], "Payment of 5000")
}

func TestIngestReportNeverClaimsIndexedWhenWriteFails(t *testing.T) {
	h := newHarness(t, map[string]string{
		"note.pdf": "Payment of 5000 was received in cash.",
	})

	_, err := h.svc.Ingest(context.Background(), "acme", nil)
	require.NoError(t, err)
	h.stores["acme"].addErr = errors.New("disk full")

	report, err := h.svc.Ingest(context.Background(), "acme", []string{"note.pdf"})
	require.Error(t, err)
	assert.Zero(t, report.Indexed)

	require.Len(t, report.Files, 1)
	assert.Equal(t, StatusError, report.Files[0].Status)
	assert.Equal(t, 1, report.Files[0].Fragments)
	assert.Equal(t, "indexed 0 of 1 fragments", report.Files[0].Detail)
}

func TestIngestReportSplitsStatusOnPartialIndexFailure(t *testing.T) {
	h := newHarnessBatch(t, map[string]string{
		"short.pdf": "One page of testimony.",
		"long.pdf":  strings.Repeat("x", 3000),
	}, 1)

	_, err := h.svc.Ingest(context.Background(), "acme", nil)
	require.NoError(t, err)
	h.stores["acme"].addErr = errors.New("disk full")
	h.stores["acme"].failOnCall = 2

	report, err := h.svc.Ingest(context.Background(), "acme",
		[]string{"short.pdf", "long.pdf"})
	require.Error(t, err)
	assert.Equal(t, 1, report.Indexed)

	byName := map[string]FileResult{}
	for _, f := range report.Files {
		byName[f.Name] = f
	}
	assert.Equal(t, StatusIndexed, byName["short.pdf"].Status)
	assert.Equal(t, StatusError, byName["long.pdf"].Status)
	assert.Greater(t, byName["long.pdf"].Fragments, 1)
	assert.Contains(t, byName["long.pdf"].Detail, "indexed 0 of")
}

func TestCaseSwitchClearsImmediateMemory(t *testing.T) {
	h := newHarness(t, map[string]string{
		"secret.pdf": "The settlement amount is confidential.",
	})

	_, err := h.svc.Ingest(context.Background(), "case_a", []string{"secret.pdf"})
	require.NoError(t, err)

	// Switching to another case must not leak case_a's upload batch.
	stream, err := h.svc.Ask(context.Background(), "case_b", "settlement")
	require.NoError(t, err)
	assert.True(t, stream.Refused)
	assert.True(t, h.stores["case_a"].closed, "old store handle not released")
}

func TestDeleteReleasesHandleFirst(t *testing.T) {
	h := newHarness(t, map[string]string{"a.pdf": "some evidence text here"})

	_, err := h.svc.CreateCase("doomed")
	require.NoError(t, err)
	_, err = h.svc.Ingest(context.Background(), "doomed", []string{"a.pdf"})
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteCase("doomed"))
	assert.True(t, h.stores["doomed"].closed)
	assert.Empty(t, h.svc.ActiveCase())

	cases, err := h.svc.ListCases()
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestRenameReleasesHandleFirst(t *testing.T) {
	h := newHarness(t, map[string]string{"a.pdf": "some evidence text here"})

	_, err := h.svc.CreateCase("old")
	require.NoError(t, err)
	_, err = h.svc.Ingest(context.Background(), "old", []string{"a.pdf"})
	require.NoError(t, err)

	got, err := h.svc.RenameCase("old", "shiny new")
	require.NoError(t, err)
	assert.Equal(t, "shiny_new", got)
	assert.True(t, h.stores["old"].closed)
}
