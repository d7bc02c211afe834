package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI generates completions through the official client. Use this when the
// endpoint is known to be OpenAI-compatible; the client handles retries on
// 429/5xx internally.
type OpenAI struct {
	client openai.Client
	cfg    Config
}

var _ LLM = (*OpenAI)(nil)

func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}
}

func (o *OpenAI) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)

	if len(systemPrompt) > 0 {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	chatOpts := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.cfg.Model,
		Temperature: openai.Float(o.cfg.Temperature),
	}
	if o.cfg.MaxTokens > 0 {
		chatOpts.MaxTokens = openai.Int(int64(o.cfg.MaxTokens))
	}

	res, err := o.client.Chat.Completions.New(ctx, chatOpts)
	if err != nil {
		slog.Error("openai error: chat completions failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrModel, err)
	}

	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrModel)
	}

	return res.Choices[0].Message.Content, nil
}
