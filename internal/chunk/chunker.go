// Package chunk splits extracted documents into overlapping fragments
// suitable for embedding.
//
// Splitting uses langchaingo's recursive character splitter with a
// separator preference of paragraph, line, sentence, then character, so
// fragments snap to natural boundaries where possible. A fragment never
// exceeds the target window except when a single indivisible token is
// longer than the window, in which case it passes through as-is.
package chunk

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/dossier/internal/extract"
	"github.com/fyrsmithlabs/dossier/internal/vectorstore"
)

// Defaults for the fragment window.
const (
	DefaultChunkSize    = 2000
	DefaultChunkOverlap = 200
)

// Fragment is a bounded slice of extracted text plus provenance
// metadata, the unit stored in the vector index. Fragments are
// immutable once created.
type Fragment struct {
	Text     string
	Metadata map[string]string
}

// Chunker splits raw documents into fragments.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// New creates a chunker with the given window size and overlap.
// Non-positive size or negative overlap fall back to the defaults; an
// overlap that would not fit the window is clamped to a tenth of it.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 10
		}
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)

	return &Chunker{splitter: splitter}
}

// Chunk splits each document's formatted text (provenance header
// included) into overlapping fragments, carrying the document's
// metadata onto every resulting fragment.
func (c *Chunker) Chunk(caseName string, docs []*extract.RawDocument) ([]Fragment, error) {
	var fragments []Fragment

	for _, doc := range docs {
		pieces, err := c.splitter.SplitText(doc.Formatted())
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", doc.Name, err)
		}

		for _, piece := range pieces {
			fragments = append(fragments, Fragment{
				Text: piece,
				Metadata: map[string]string{
					vectorstore.MetaSourceName: doc.Name,
					vectorstore.MetaKind:       string(doc.Kind),
					vectorstore.MetaCase:       caseName,
				},
			})
		}
	}

	return fragments, nil
}
