package extract

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Transcriber converts an audio file into text.
//
// Like OCR engines, speech models are expensive to load; construct one
// per process and reuse it.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// WhisperConfig configures the speech-transcription client.
type WhisperConfig struct {
	// BaseURL of an OpenAI-compatible /v1/audio/transcriptions endpoint
	// (a local whisper server or the OpenAI API).
	BaseURL string

	// APIKey is optional for local servers.
	APIKey string

	// Model is the transcription model name.
	Model string
}

// Whisper transcribes audio through an OpenAI-compatible API.
type Whisper struct {
	client *openai.Client
	model  string
}

// NewWhisper creates a transcription client.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcription base URL required")
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Whisper{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Transcribe sends the audio file for transcription and returns the
// transcript text.
func (w *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("transcribing %s: %w", path, err)
	}
	return resp.Text, nil
}
