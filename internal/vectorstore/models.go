package vectorstore

// Metadata keys attached to every indexed fragment.
const (
	// MetaSourceName is the originating file name.
	MetaSourceName = "source_name"
	// MetaKind is the extraction kind (image, pdf, audio, spreadsheet).
	MetaKind = "kind"
	// MetaCase is the owning case name.
	MetaCase = "case"
)

// Document represents a fragment to be stored in the vector store.
type Document struct {
	// ID is the unique identifier for the fragment.
	ID string

	// Content is the fragment text.
	Content string

	// Metadata contains provenance key-value pairs.
	// Common fields: source_name, kind, case.
	Metadata map[string]string
}

// SearchResult represents a retrieved fragment.
type SearchResult struct {
	// ID is the fragment identifier.
	ID string

	// Content is the fragment text.
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the fragment provenance metadata.
	Metadata map[string]string
}
