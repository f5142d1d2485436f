package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/dossier/internal/logging"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration for dossier.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Memory    MemoryConfig    `koanf:"memory"`
	Ollama    OllamaConfig    `koanf:"ollama"`
	OCR       OCRConfig       `koanf:"ocr"`
	Speech    SpeechConfig    `koanf:"speech"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Logging   logging.Config  `koanf:"logging"`
}

// ServerConfig configures the dossierd HTTP server.
type ServerConfig struct {
	Host string `koanf:"host"`
	// HTTPPort is the listen port for the HTTP API.
	HTTPPort int `koanf:"http_port"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// MaxUploadBytes caps a single multipart upload request.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// MemoryConfig configures case storage under the memory root.
type MemoryConfig struct {
	// Root is the directory holding one subdirectory per case.
	// Default: ~/.config/dossier/cases
	Root string `koanf:"root"`
	// Compress enables gzip compression of persisted vectors.
	Compress bool `koanf:"compress"`
}

// OllamaConfig configures the Ollama endpoint used for both chat
// generation and embeddings.
type OllamaConfig struct {
	// URL is the Ollama server URL. Default: http://localhost:11434
	URL string `koanf:"url"`
	// ChatModel is the generation model. Default: llama3.1
	ChatModel string `koanf:"chat_model"`
	// EmbedModel is the embedding model. Default: all-minilm
	EmbedModel string `koanf:"embed_model"`
	// Temperature for generation. Unset falls back to a low value
	// suited to document analysis.
	Temperature float64 `koanf:"temperature"`
}

// OCRConfig configures the tesseract OCR engine. OCR is on unless
// explicitly disabled; a zero-value toggle cannot distinguish "unset"
// from "off", so the field is spelled as the non-default state.
type OCRConfig struct {
	// Disabled turns off OCR-based extraction (images, scanned PDF
	// pages).
	Disabled bool `koanf:"disabled"`
	// Languages passed to tesseract. Default: por, eng.
	Languages []string `koanf:"languages"`
}

// Enabled reports whether OCR extraction should run.
func (c OCRConfig) Enabled() bool { return !c.Disabled }

// SpeechConfig configures audio transcription through an
// OpenAI-compatible /v1/audio/transcriptions endpoint.
type SpeechConfig struct {
	// BaseURL of the transcription server (whisper-server or OpenAI).
	BaseURL string `koanf:"base_url"`
	// APIKey is optional for local servers.
	APIKey string `koanf:"api_key"`
	// Model name. Default: whisper-1.
	Model string `koanf:"model"`
}

// IngestConfig configures chunking and indexing.
type IngestConfig struct {
	// ChunkSize is the target fragment window in characters.
	ChunkSize int `koanf:"chunk_size"`
	// ChunkOverlap is the overlap between consecutive fragments.
	ChunkOverlap int `koanf:"chunk_overlap"`
	// BatchSize caps fragments per vector-store write call. The store
	// rejects writes above ~5461 items; 4000 leaves a safety margin.
	BatchSize int `koanf:"batch_size"`
	// BatchPause is the pause between consecutive batch writes.
	BatchPause Duration `koanf:"batch_pause"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	// TopK is the number of fragments retrieved per query.
	TopK int `koanf:"top_k"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Memory.Root == "" {
		return fmt.Errorf("memory.root is required")
	}
	if c.Ollama.URL == "" {
		return fmt.Errorf("ollama.url is required")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.BatchSize > 5461 {
		return fmt.Errorf("ingest.batch_size %d exceeds the store write limit (~5461)", c.Ingest.BatchSize)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
