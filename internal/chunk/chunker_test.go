package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dossier/internal/extract"
	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

func TestChunkShortDocumentIsSingleFragment(t *testing.T) {
	chunker := New(2000, 200)
	doc := &extract.RawDocument{Name: "invoice.pdf", Kind: extract.KindPDF, Text: "INVOICE #123"}

	fragments, err := chunker.Chunk("acme", []*extract.RawDocument{doc})
	require.NoError(t, err)

	require.Len(t, fragments, 1)
	assert.Contains(t, fragments[0].Text, "INVOICE #123")
	assert.Contains(t, fragments[0].Text, "--- PDF: invoice.pdf ---")
}

func TestChunkMetadataPreserved(t *testing.T) {
	chunker := New(2000, 200)
	docs := []*extract.RawDocument{
		{Name: "scan.png", Kind: extract.KindImage, Text: strings.Repeat("evidence line\n", 300)},
		{Name: "ledger.csv", Kind: extract.KindSpreadsheet, Text: "| a | b |"},
	}

	fragments, err := chunker.Chunk("acme", docs)
	require.NoError(t, err)
	require.Greater(t, len(fragments), 2)

	bySource := map[string]int{}
	for _, f := range fragments {
		assert.Equal(t, "acme", f.Metadata[vectorstore.MetaCase])
		bySource[f.Metadata[vectorstore.MetaSourceName]]++

		switch f.Metadata[vectorstore.MetaSourceName] {
		case "scan.png":
			assert.Equal(t, "image", f.Metadata[vectorstore.MetaKind])
		case "ledger.csv":
			assert.Equal(t, "spreadsheet", f.Metadata[vectorstore.MetaKind])
		default:
			t.Fatalf("unexpected source %q", f.Metadata[vectorstore.MetaSourceName])
		}
	}
	assert.Greater(t, bySource["scan.png"], 1)
	assert.Equal(t, 1, bySource["ledger.csv"])
}

func TestChunkWindowAndOverlap(t *testing.T) {
	chunker := New(2000, 200)
	// No separators at all, so splitting falls through to the character
	// level and windows are exact.
	doc := &extract.RawDocument{
		Name: "blob.pdf",
		Kind: extract.KindPDF,
		Text: strings.Repeat("abcdefghij", 500), // 5000 chars
	}

	fragments, err := chunker.Chunk("acme", []*extract.RawDocument{doc})
	require.NoError(t, err)
	require.Greater(t, len(fragments), 1)

	for _, f := range fragments {
		assert.LessOrEqual(t, len(f.Text), 2000)
	}

	// Consecutive full windows share the overlap's worth of text. The
	// provenance header splits off as a short fragment of its own, so
	// only pairs of body windows are checked.
	for i := 0; i < len(fragments)-1; i++ {
		cur, next := fragments[i].Text, fragments[i+1].Text
		if len(cur) < 1000 {
			continue
		}
		shared := longestSuffixPrefix(cur, next)
		assert.GreaterOrEqual(t, shared, 150,
			"fragments %d and %d share only %d chars", i, i+1, shared)
	}

	// Nothing is lost: every fragment's content appears in the source.
	formatted := doc.Formatted()
	for i, f := range fragments {
		assert.Contains(t, formatted, f.Text, "fragment %d not found in source", i)
	}
}

func TestChunkDefaultsApplied(t *testing.T) {
	chunker := New(0, -1)
	doc := &extract.RawDocument{Name: "a.pdf", Kind: extract.KindPDF, Text: strings.Repeat("x", 4500)}

	fragments, err := chunker.Chunk("acme", []*extract.RawDocument{doc})
	require.NoError(t, err)
	require.Greater(t, len(fragments), 1)
	for _, f := range fragments {
		assert.LessOrEqual(t, len(f.Text), DefaultChunkSize)
	}
}

func TestChunkOverlapNeverReachesWindow(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
		wantOverlap   int
	}{
		{"overlap equals window", 150, 150, 15},
		{"overlap above window", 100, 400, 10},
		{"negative overlap with tiny window", 50, -1, 5},
		{"fallback fits window", 2000, 2000, DefaultChunkOverlap},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunker := New(tc.size, tc.overlap)
			assert.Equal(t, tc.wantOverlap, chunker.splitter.ChunkOverlap)
			assert.Less(t, chunker.splitter.ChunkOverlap, chunker.splitter.ChunkSize)
		})
	}

	// The clamped chunker must still terminate and respect the window.
	chunker := New(150, 150)
	doc := &extract.RawDocument{Name: "a.pdf", Kind: extract.KindPDF, Text: strings.Repeat("y", 600)}
	fragments, err := chunker.Chunk("acme", []*extract.RawDocument{doc})
	require.NoError(t, err)
	require.Greater(t, len(fragments), 1)
	for _, f := range fragments {
		assert.LessOrEqual(t, len(f.Text), 150)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	chunker := New(2000, 200)
	fragments, err := chunker.Chunk("acme", nil)
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

// longestSuffixPrefix returns the length of the longest suffix of a
// that is also a prefix of b.
func longestSuffixPrefix(a, b string) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(a, b[:n]) {
			return n
		}
	}
	return 0
}
