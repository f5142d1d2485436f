package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies the extraction strategy for a file.
type Kind string

const (
	// KindImage covers jpg/jpeg/png raster images (OCR).
	KindImage Kind = "image"
	// KindPDF covers paged documents (hybrid text-layer/OCR).
	KindPDF Kind = "pdf"
	// KindAudio covers wav/mp3 recordings (speech transcription).
	KindAudio Kind = "audio"
	// KindSpreadsheet covers xlsx/xls/csv tabular files.
	KindSpreadsheet Kind = "spreadsheet"
	// KindUnknown marks unsupported extensions.
	KindUnknown Kind = "unknown"
)

// minUsableChars is the usability threshold: extracted text is usable
// only if its trimmed length exceeds this many characters.
const minUsableChars = 2

// KindForPath determines the extraction kind from the file extension.
func KindForPath(path string) Kind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "jpg", "jpeg", "png":
		return KindImage
	case "pdf":
		return KindPDF
	case "wav", "mp3":
		return KindAudio
	case "xlsx", "xls", "csv":
		return KindSpreadsheet
	default:
		return KindUnknown
	}
}

// label is the provenance header tag for each kind.
func (k Kind) label() string {
	return strings.ToUpper(string(k))
}

// RawDocument is the full text extracted from one file.
type RawDocument struct {
	// Name is the originating file name (base name, no directory).
	Name string

	// Kind is the extraction strategy that produced the text.
	Kind Kind

	// Text is the extracted plain text, without the provenance header.
	Text string
}

// Formatted returns the document text prefixed with its provenance
// header, the form in which it is chunked and shown to the model.
func (d *RawDocument) Formatted() string {
	return fmt.Sprintf("--- %s: %s ---\n%s\n", d.Kind.label(), d.Name, d.Text)
}

// Usable reports whether extracted text clears the usability threshold.
// Anything that trims to minUsableChars characters or fewer is treated
// as absent and excluded from both indexing and immediate memory.
func Usable(text string) bool {
	return len(strings.TrimSpace(text)) > minUsableChars
}
