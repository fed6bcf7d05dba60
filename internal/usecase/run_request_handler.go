package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/queue"
)

// RunTrigger starts a forecast run on request.
type RunTrigger interface {
	Trigger(ctx context.Context, symbols []string) (*models.RunSummary, error)
}

// RunRequest is the payload of the run-requests topic. An empty body or an
// empty symbol list runs the configured set.
type RunRequest struct {
	Symbols []string `json:"symbols"`
}

// JobTypeRun is the queue message type of a run request.
const JobTypeRun = "forecast.run"

// RunRequestHandler starts forecast runs from the run-requests topic or the
// Redis job queue.
type RunRequestHandler struct {
	topic   string
	runner  RunTrigger
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewRunRequestHandler(topic string, runner RunTrigger, metrics domrepo.Metrics, l *applogger.Logger) *RunRequestHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &RunRequestHandler{topic: topic, runner: runner, metrics: metrics, l: l}
}

func (h *RunRequestHandler) Topic() string { return h.topic }
func (h *RunRequestHandler) Name() string  { return "forecast-run-request" }
func (h *RunRequestHandler) Type() string  { return JobTypeRun }

// Handle runs the request. Overlapping and throttled requests are dropped
// rather than retried; they would only queue up duplicate runs.
func (h *RunRequestHandler) Handle(ctx context.Context, b []byte) error {
	var req RunRequest
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, &req); err != nil {
			h.metrics.RecordError("run_request_unmarshal")
			return fmt.Errorf("decode run request: %w", err)
		}
	}
	summary, err := h.runner.Trigger(ctx, req.Symbols)
	if errors.Is(err, ErrRunInProgress) || errors.Is(err, ErrRateLimited) {
		h.l.Info("run request skipped", applogger.Strings("symbols", req.Symbols), applogger.String("reason", err.Error()))
		return nil
	}
	// with a summary the run stood; sink failures were logged by the runner
	if err != nil && summary == nil {
		return err
	}
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*RunRequestHandler)(nil)
	_ queue.Job               = (*RunRequestHandler)(nil)
)
