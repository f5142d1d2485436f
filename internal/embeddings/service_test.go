package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{ServerURL: "http://localhost:11434", Model: "all-minilm"}, false},
		{"missing url", Config{Model: "all-minilm"}, true},
		{"missing model", Config{ServerURL: "http://localhost:11434"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	_, err := NewService(Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	svc, err := NewService(Config{ServerURL: "http://localhost:11434", Model: "all-minilm"})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
