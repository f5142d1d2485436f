// Package answer streams model completions as a forward-only sequence
// of text increments. The consumer ranges over a channel and can stop
// early by cancelling the context; the generation is abandoned rather
// than buffered.
package answer

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("dossier.answer")

// DefaultTemperature keeps answers close to the supplied evidence.
const DefaultTemperature = 0.1

// Chunk is one increment of a streamed answer. A Chunk with a non-nil
// Err is terminal; the channel is closed right after it.
type Chunk struct {
	Text string
	Err  error
}

// Generator turns composed prompts into streamed answers.
type Generator struct {
	llm         llms.Model
	temperature float64
	logger      *zap.Logger
}

// New creates a generator. Temperature outside (0, 1] falls back to
// DefaultTemperature and a nil logger falls back to a no-op logger.
func New(llm llms.Model, temperature float64, logger *zap.Logger) *Generator {
	if temperature <= 0 || temperature > 1 {
		temperature = DefaultTemperature
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{llm: llm, temperature: temperature, logger: logger}
}

// Stream generates an answer for the prompt and delivers it as text
// increments. The channel is closed when the answer is complete, the
// context is cancelled, or the model fails; in the last two cases the
// final chunk carries the error.
func (g *Generator) Stream(ctx context.Context, prompt string) <-chan Chunk {
	out := make(chan Chunk)

	go func() {
		defer close(out)
		ctx, span := tracer.Start(ctx, "answer.Stream")
		defer span.End()

		_, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
			llms.WithTemperature(g.temperature),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				select {
				case out <- Chunk{Text: string(chunk)}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			g.logger.Warn("generation aborted", zap.Error(err))
			select {
			case out <- Chunk{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return out
}
