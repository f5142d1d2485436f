// Package config provides configuration loading for dossier.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/dossier/internal/logging"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, OLLAMA_CHAT_MODEL, ...)
//  2. YAML config file (~/.config/dossier/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty,
// the default path is used. A missing file is not an error; defaults
// and environment variables still apply.
//
// Environment variables use an underscore separator and map onto YAML
// keys by splitting on the first underscore:
//
//	SERVER_HTTP_PORT   -> server.http_port
//	OLLAMA_CHAT_MODEL  -> ollama.chat_model
//	INGEST_BATCH_SIZE  -> ingest.batch_size
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "dossier", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. Split on the first underscore
	// only (section.field_name pattern); underscores in the field name
	// are preserved.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the dossier config directory if it doesn't
// exist, with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "dossier")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 9180
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 256 << 20 // 256MB; audio files are large
	}

	// Memory defaults
	if cfg.Memory.Root == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.Memory.Root = filepath.Join(home, ".config", "dossier", "cases")
		}
	}

	// Ollama defaults (all-minilm embeddings, llama3.1 chat)
	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = "http://localhost:11434"
	}
	if cfg.Ollama.ChatModel == "" {
		cfg.Ollama.ChatModel = "llama3.1"
	}
	if cfg.Ollama.EmbedModel == "" {
		cfg.Ollama.EmbedModel = "all-minilm"
	}

	// OCR defaults
	if cfg.OCR.Languages == nil {
		cfg.OCR.Languages = []string{"por", "eng"}
	}

	// Speech defaults
	if cfg.Speech.BaseURL == "" {
		cfg.Speech.BaseURL = "http://localhost:9000/v1"
	}
	if cfg.Speech.Model == "" {
		cfg.Speech.Model = "whisper-1"
	}

	// Ingest defaults
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 2000
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 4000
	}
	if cfg.Ingest.BatchPause == 0 {
		cfg.Ingest.BatchPause = Duration(100 * time.Millisecond)
	}

	// Retrieval defaults
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	// Logging defaults
	if cfg.Logging.Level == "" || cfg.Logging.Format == "" {
		def := logging.NewDefaultConfig()
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = def.Level
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = def.Format
		}
	}
}
