package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// Forecaster runs the forecasting pipeline over many instruments.
type Forecaster interface {
	Run(ctx context.Context, series map[string]models.Series) (*models.RunSummary, error)
	ForecastInstrument(ctx context.Context, s models.Series) (*models.ForecastResult, error)
}
