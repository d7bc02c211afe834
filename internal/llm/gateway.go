package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Gateway talks to any chat-completions-shaped endpoint. Unlike the OpenAI
// client it tolerates the looser response shapes returned by LLM proxies:
// decoding attempts a fixed sequence of typed shapes instead of probing fields
// dynamically.
type Gateway struct {
	client *resty.Client
	cfg    Config
}

var _ LLM = (*Gateway)(nil)

func NewGateway(cfg Config) *Gateway {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(120 * time.Second).
		SetRetryCount(2). // 3 attempts total
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(8 * time.Second).
		AddRetryCondition(func(res *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return res.StatusCode() == 429 || res.StatusCode() >= 500
		})

	return &Gateway{client: client, cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Known response shapes, tried in order. The first decoder yielding non-empty
// text wins; none matching is a classified model error, not a silent blank.

type chatChoicesResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
}

type outputResponse struct {
	Output json.RawMessage `json:"output"`
}

type resultResponse struct {
	Result json.RawMessage `json:"result"`
}

func decodeRawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

func extractAssistantText(body []byte) (string, error) {
	var chat chatChoicesResponse
	if err := json.Unmarshal(body, &chat); err == nil && len(chat.Choices) > 0 {
		if text := chat.Choices[0].Message.Content; text != "" {
			return strings.TrimSpace(text), nil
		}
		if text := chat.Choices[0].Text; text != "" {
			return strings.TrimSpace(text), nil
		}
	}

	var out outputResponse
	if err := json.Unmarshal(body, &out); err == nil {
		if text := decodeRawText(out.Output); text != "" {
			return strings.TrimSpace(text), nil
		}
	}

	var res resultResponse
	if err := json.Unmarshal(body, &res); err == nil {
		if text := decodeRawText(res.Result); text != "" {
			return strings.TrimSpace(text), nil
		}
	}

	return "", fmt.Errorf("%w: unrecognized response shape", ErrModel)
}

func (g *Gateway) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := completionRequest{
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	res, err := g.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/chat/completions")

	if err != nil {
		slog.Error("llm gateway request failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrModel, err)
	}

	if !res.IsSuccess() {
		slog.Error("llm gateway returned error", "status_code", res.StatusCode(), "body", truncate(res.String(), 400))
		return "", fmt.Errorf("%w: status %d", ErrModel, res.StatusCode())
	}

	return extractAssistantText(res.Body())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
