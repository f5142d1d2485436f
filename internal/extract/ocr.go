package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// OCR recognizes text in a raster image.
//
// Implementations are expected to be expensive to construct; build one
// per process and reuse it.
type OCR interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Tesseract is an OCR backed by the tesseract engine via gosseract.
//
// The underlying client is not safe for concurrent use, so calls are
// serialized with a mutex; batch extraction is sequential anyway.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a tesseract OCR engine with the given language
// models (e.g. "por", "eng"). Close must be called when done.
func NewTesseract(languages []string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("setting OCR languages %v: %w", languages, err)
		}
	}
	return &Tesseract{client: client}, nil
}

// Recognize runs OCR over the image and returns the recognized text.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding image for OCR: %w", err)
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("loading image into OCR engine: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("running OCR: %w", err)
	}
	return text, nil
}

// Close releases the tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
