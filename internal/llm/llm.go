package llm

import (
	"context"
	"errors"
)

// Client is the generation provider boundary. GenerateStream must invoke
// onChunk once per upstream chunk, in emission order, and return the full
// concatenated text; Generate is the non-streaming call used by iteration.
type Client interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error)
	Close() error
}

var ErrEmptyCompletion = errors.New("empty completion from provider")
