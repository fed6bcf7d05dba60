package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/service/metrics"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
)

// RunStarter starts forecast runs without waiting for them.
type RunStarter interface {
	TriggerAsync(ctx context.Context, symbols []string) error
}

// RunRequest is the body of POST /api/runs. No symbols means the configured set.
type RunRequest struct {
	Symbols []string `json:"symbols" validate:"omitempty,max=500,dive,required,symbol"`
}

// Normalize upper-cases symbols and drops repeats, keeping first-seen order.
func (r *RunRequest) Normalize() {
	if r.Symbols == nil {
		return
	}
	seen := make(map[string]struct{}, len(r.Symbols))
	out := r.Symbols[:0]
	for _, s := range r.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	r.Symbols = out
}

// ForecastsHandler serves stored forecasts and accepts run requests.
type ForecastsHandler struct {
	logger *xlogger.Logger
	reader domrepo.ForecastReader
	runs   domrepo.RunReader
	runner RunStarter
}

// NewForecastsHandler wires the handler. runs may be nil when no run history
// is kept.
func NewForecastsHandler(logger *xlogger.Logger, reader domrepo.ForecastReader, runs domrepo.RunReader, runner RunStarter) *ForecastsHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ForecastsHandler{logger: logger, reader: reader, runs: runs, runner: runner}
}

func (h *ForecastsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/forecasts", h.List)
	g.GET("/forecasts/:symbol", h.Get)
	g.POST("/runs", h.StartRun)
	g.GET("/runs/latest", h.LatestRun)
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *ForecastsHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
	var appErr *xhttp.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, err)
}

// List returns the latest forecast of every instrument.
func (h *ForecastsHandler) List(c echo.Context) error {
	defer observe("forecasts", time.Now())
	res, err := h.reader.LatestAll(c.Request().Context())
	if err != nil {
		return h.fail(c, "forecasts", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, res, int64(len(res)))
}

// Get returns the latest forecast of one instrument.
func (h *ForecastsHandler) Get(c echo.Context) error {
	defer observe("forecast", time.Now())
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		return h.fail(c, "forecast", xhttp.BadRequestError("symbol is required"))
	}
	res, err := h.reader.Latest(c.Request().Context(), symbol)
	if errors.Is(err, domrepo.ErrNotFound) {
		return h.fail(c, "forecast", xhttp.NotFoundErrorf("no forecast for %s", symbol).WithError(err))
	}
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

// StartRun accepts a run request; the run continues after the response.
func (h *ForecastsHandler) StartRun(c echo.Context) error {
	defer observe("runs", time.Now())
	req := &RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("runs").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.runner.TriggerAsync(c.Request().Context(), req.Symbols)
	switch {
	case errors.Is(err, usecase.ErrRateLimited):
		return h.fail(c, "runs", xhttp.TooManyRequestsError("run requests are rate limited").WithError(err))
	case errors.Is(err, usecase.ErrRunInProgress):
		return h.fail(c, "runs", xhttp.ConflictError("a forecast run is already in progress").WithError(err))
	case err != nil:
		return h.fail(c, "runs", err)
	}
	h.logger.Info("forecast run requested", xlogger.Strings("symbols", req.Symbols), xlogger.String("remote", c.RealIP()))
	return xhttp.AcceptedResponse(c, map[string]interface{}{"accepted": true, "symbols": req.Symbols})
}

// LatestRun returns the summary of the most recent run.
func (h *ForecastsHandler) LatestRun(c echo.Context) error {
	defer observe("runs_latest", time.Now())
	if h.runs == nil {
		return h.fail(c, "runs_latest", xhttp.NotFoundError("run history is not kept"))
	}
	run, err := h.runs.LatestRun(c.Request().Context())
	if errors.Is(err, domrepo.ErrNotFound) {
		return h.fail(c, "runs_latest", xhttp.NotFoundError("no run has completed yet").WithError(err))
	}
	if err != nil {
		return h.fail(c, "runs_latest", err)
	}
	return xhttp.SuccessResponse(c, run)
}
