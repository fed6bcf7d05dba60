package repository

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	xhttp "FinCast/pkg/http"
	applogger "FinCast/pkg/logger"
)

// WebhookPayload is posted to the webhook after every run.
type WebhookPayload struct {
	RunEvent
	Predictions []models.Prediction `json:"predictions"`
}

// WebhookSink posts run outcomes as JSON to an HTTP endpoint, retrying
// transport errors, 429 and 5xx answers.
type WebhookSink struct {
	url      string
	attempts int
	client   *xhttp.Client
	l        *applogger.Logger
}

func NewWebhookSink(url string, timeout time.Duration, attempts int, l *applogger.Logger) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if attempts < 1 {
		attempts = 1
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &WebhookSink{
		url:      url,
		attempts: attempts,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		l:        l,
	}
}

func (s *WebhookSink) SaveRun(ctx context.Context, run *models.RunSummary) error {
	if run == nil {
		return nil
	}
	symbols := run.Symbols()
	payload := WebhookPayload{
		RunEvent: RunEvent{
			RunID:      run.RunID,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Succeeded:  symbols,
			Failures:   run.Failures,
		},
		Predictions: make([]models.Prediction, 0, len(symbols)),
	}
	for _, sym := range symbols {
		payload.Predictions = append(payload.Predictions, run.Results[sym].Prediction())
	}

	var err error
	for i := 1; i <= s.attempts; i++ {
		err = s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     s.url,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    payload,
		}, nil)
		if err == nil {
			return nil
		}
		s.l.Warn("webhook post failed", applogger.Int("attempt", i), applogger.Error(err))
		if i == s.attempts || !xhttp.IsRetryable(err) {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("post webhook: %w", err)
}
