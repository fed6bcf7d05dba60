package repository

import (
	"context"
	"errors"
	"time"

	"FinCast/internal/domain/models"
)

// ErrNotFound is returned when no forecast exists for a symbol.
var ErrNotFound = errors.New("not found")

// SeriesSource supplies instrument history in ascending time order.
type SeriesSource interface {
	Symbols(ctx context.Context) ([]string, error)
	LatestSeries(ctx context.Context, symbol string, n int) (models.Series, error)
}

// BarWriter persists incoming bars.
type BarWriter interface {
	StoreBars(ctx context.Context, bars []models.Bar) error
}

// ForecastSink receives the outcome of a run.
type ForecastSink interface {
	SaveRun(ctx context.Context, run *models.RunSummary) error
}

// ForecastReader serves the latest stored forecasts.
type ForecastReader interface {
	Latest(ctx context.Context, symbol string) (*models.ForecastResult, error)
	LatestAll(ctx context.Context) ([]*models.ForecastResult, error)
}

// ForecastStore is a sink that can also be read back.
type ForecastStore interface {
	ForecastSink
	ForecastReader
}

// RunReader serves the summary of the most recent run.
type RunReader interface {
	LatestRun(ctx context.Context) (*models.RunSummary, error)
}

// Locker guards a run so overlapping triggers do not duplicate work.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Metrics records run, instrument and latency observations.
type Metrics interface {
	RecordRun(succeeded, failed int, seconds float64)
	RecordInstrument(symbol, outcome string, mae float64)
	RecordStage(stage string, seconds float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
