package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// pdfTextLayerMin is the minimum number of non-whitespace characters a
// page's embedded text layer must yield before the page is trusted as
// born-digital; below it the page is treated as scanned and OCRed.
const pdfTextLayerMin = 5

// pageNeedsOCR reports whether a page's embedded text layer is too thin
// to use, meaning the page is likely a scanned image.
func pageNeedsOCR(text string) bool {
	count := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			count++
			if count >= pdfTextLayerMin {
				return false
			}
		}
	}
	return true
}

// extractPDF extracts text from a paged document with the per-page
// hybrid strategy: embedded text layer first, OCR of the rasterized
// page when the layer is too thin. Pages are joined with newlines, so a
// mixed text/scanned document is handled page-by-page.
func (s *Service) extractPDF(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := doc.Text(page)
		if err != nil {
			return "", fmt.Errorf("reading text layer of page %d: %w", page+1, err)
		}

		if pageNeedsOCR(text) && s.ocr != nil {
			text = s.ocrPage(ctx, doc, page)
		}

		b.WriteString(text)
		b.WriteString("\n")
	}

	return b.String(), nil
}

// ocrPage rasterizes one page and OCRs it with the same dark-background
// inversion heuristic used for standalone images. OCR failures degrade
// to an empty page rather than aborting the document.
func (s *Service) ocrPage(ctx context.Context, doc *fitz.Document, page int) string {
	img, err := doc.Image(page)
	if err != nil {
		s.logger.Warn("failed to rasterize pdf page for OCR",
			zap.Int("page", page+1),
			zap.Error(err),
		)
		return ""
	}

	text, err := s.ocr.Recognize(ctx, prepareForOCR(img))
	if err != nil {
		s.logger.Warn("pdf page OCR failed",
			zap.Int("page", page+1),
			zap.Error(err),
		)
		return ""
	}
	return text
}
