package llm

import (
	"context"
	"errors"
)

// ErrModel classifies generation failures: transport errors after retries,
// non-2xx responses, and unrecognized response shapes.
var ErrModel = errors.New("model gateway error")

type LLM interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds the gateway settings shared by both implementations.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}
