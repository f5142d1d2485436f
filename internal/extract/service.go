// Package extract normalizes heterogeneous case files into plain text.
//
// One extraction strategy exists per file kind: OCR for images, a
// per-page hybrid of embedded text layer and OCR for PDFs, speech
// transcription for audio, and Markdown-table rendering for
// spreadsheets. Extraction failures are always per-file; one bad file
// never aborts a batch.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

var (
	// ErrUnsupported is returned for file extensions with no extraction
	// strategy. Callers skip the file with a warning.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrEmptyContent is returned when extraction succeeded technically
	// but the text did not clear the usability threshold.
	ErrEmptyContent = errors.New("no usable content extracted")

	// ErrOCRUnavailable is returned for image files when no OCR engine
	// is configured.
	ErrOCRUnavailable = errors.New("OCR engine unavailable")
)

// Service extracts text from case files.
//
// The OCR engine and transcriber are constructed once per process and
// injected; either may be nil, which disables the corresponding paths.
type Service struct {
	ocr         OCR
	transcriber Transcriber
	logger      *zap.Logger
}

// NewService creates an extraction service.
func NewService(ocr OCR, transcriber Transcriber, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ocr:         ocr,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Extract converts one file into a RawDocument.
//
// Returns ErrUnsupported for unknown extensions and ErrEmptyContent
// when the extracted text trims to 2 characters or fewer; both are
// per-file skip conditions, not batch failures. Audio and spreadsheet
// engine failures degrade to an inline error string in the document
// text rather than an error, so the user sees what went wrong in
// context.
func (s *Service) Extract(ctx context.Context, path string) (*RawDocument, error) {
	kind := KindForPath(path)
	name := filepath.Base(path)

	var (
		text string
		err  error
	)

	switch kind {
	case KindImage:
		text, err = s.extractImage(ctx, path)
	case KindPDF:
		text, err = s.extractPDF(ctx, path)
	case KindAudio:
		text = s.extractAudio(ctx, path)
	case KindSpreadsheet:
		text = s.extractTable(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", name, err)
	}

	if !Usable(text) {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyContent)
	}

	s.logger.Debug("extracted file",
		zap.String("file", name),
		zap.String("kind", string(kind)),
		zap.Int("chars", len(text)),
	)

	return &RawDocument{Name: name, Kind: kind, Text: text}, nil
}

// extractImage OCRs a raster image, inverting it first when it is
// mostly dark. An OCR engine failure yields empty text, which the
// usability rule then treats as an empty file.
func (s *Service) extractImage(ctx context.Context, path string) (string, error) {
	if s.ocr == nil {
		return "", ErrOCRUnavailable
	}

	img, err := loadImage(path)
	if err != nil {
		return "", err
	}

	text, err := s.ocr.Recognize(ctx, prepareForOCR(img))
	if err != nil {
		s.logger.Warn("image OCR failed", zap.String("file", filepath.Base(path)), zap.Error(err))
		return "", nil
	}
	return text, nil
}

// extractAudio transcribes a recording. Failures degrade to a visible
// inline error string so the batch continues.
func (s *Service) extractAudio(ctx context.Context, path string) string {
	if s.transcriber == nil {
		return "audio error: no transcription engine configured"
	}

	text, err := s.transcriber.Transcribe(ctx, path)
	if err != nil {
		s.logger.Warn("audio transcription failed", zap.String("file", filepath.Base(path)), zap.Error(err))
		return fmt.Sprintf("audio error: %v", err)
	}
	return text
}

// extractTable renders a tabular file as Markdown. Failures degrade to
// a visible inline error string so the batch continues.
func (s *Service) extractTable(path string) string {
	text, err := extractSpreadsheet(path)
	if err != nil {
		s.logger.Warn("spreadsheet parsing failed", zap.String("file", filepath.Base(path)), zap.Error(err))
		return fmt.Sprintf("spreadsheet error: %v", err)
	}
	return text
}
