package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"deployer-backend/pkg/api"
)

// Notifier delivers the completion callback to the evaluator. Delivery gets
// its own bounded exponential backoff; exhausting it degrades the task's
// terminal state rather than failing it.
type Notifier struct {
	client *resty.Client

	Attempts     int
	InitialDelay time.Duration
}

func NewNotifier() *Notifier {
	return &Notifier{
		client:       resty.New().SetTimeout(15 * time.Second),
		Attempts:     6,
		InitialDelay: 1 * time.Second,
	}
}

func (n *Notifier) Notify(ctx context.Context, evaluationUrl string, result api.EvaluationResult) error {
	delay := n.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= n.Attempts; attempt++ {
		res, err := n.client.R().SetContext(ctx).SetBody(result).Post(evaluationUrl)
		if err == nil && res.IsSuccess() {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("evaluator returned status %d", res.StatusCode())
		}
		slog.Warn("evaluator notification attempt failed", "url", evaluationUrl, "attempt", attempt, "error", lastErr)

		if attempt == n.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("notifying evaluator at %s: %w", evaluationUrl, lastErr)
}
