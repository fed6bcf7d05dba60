package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
)

const (
	forecastKeyPrefix = "forecast"
	indexKey          = "forecast:index"
	latestRunKey      = "run:latest"
)

// CachedForecastStore keeps the latest result per symbol in a cache and
// falls back to a durable reader on a miss.
type CachedForecastStore struct {
	c        cache.Service
	ttl      time.Duration
	fallback domrepo.ForecastReader
	l        *applogger.Logger
}

// NewCachedForecastStore builds the store. fallback may be nil.
func NewCachedForecastStore(c cache.Service, ttl time.Duration, fallback domrepo.ForecastReader, l *applogger.Logger) *CachedForecastStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedForecastStore{c: c, ttl: ttl, fallback: fallback, l: l}
}

func forecastKey(symbol string) string { return cache.Key(forecastKeyPrefix, symbol) }

func (s *CachedForecastStore) SaveRun(ctx context.Context, run *models.RunSummary) error {
	if run == nil {
		return nil
	}
	var index []string
	if err := s.c.Get(ctx, indexKey, &index); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return fmt.Errorf("read index: %w", err)
	}
	known := make(map[string]bool, len(index))
	for _, sym := range index {
		known[sym] = true
	}
	for _, sym := range run.Symbols() {
		if err := s.c.Set(ctx, forecastKey(sym), run.Results[sym], s.ttl); err != nil {
			return fmt.Errorf("cache %s: %w", sym, err)
		}
		if !known[sym] {
			index = append(index, sym)
			known[sym] = true
		}
	}
	sort.Strings(index)
	if err := s.c.Set(ctx, indexKey, index, s.ttl); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := s.c.Set(ctx, latestRunKey, run, s.ttl); err != nil {
		return fmt.Errorf("cache run: %w", err)
	}
	return nil
}

func (s *CachedForecastStore) Latest(ctx context.Context, symbol string) (*models.ForecastResult, error) {
	var r models.ForecastResult
	err := s.c.Get(ctx, forecastKey(symbol), &r)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("forecast cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	if s.fallback == nil {
		return nil, fmt.Errorf("forecast %s: %w", symbol, domrepo.ErrNotFound)
	}
	res, err := s.fallback.Latest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := s.c.Set(ctx, forecastKey(symbol), res, s.ttl); err != nil {
		s.l.Warn("forecast cache backfill failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	return res, nil
}

func (s *CachedForecastStore) LatestAll(ctx context.Context) ([]*models.ForecastResult, error) {
	var index []string
	err := s.c.Get(ctx, indexKey, &index)
	if errors.Is(err, cache.ErrCacheMiss) && s.fallback != nil {
		return s.fallback.LatestAll(ctx)
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("read index: %w", err)
	}
	out := make([]*models.ForecastResult, 0, len(index))
	for _, sym := range index {
		r, err := s.Latest(ctx, sym)
		if errors.Is(err, domrepo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *CachedForecastStore) LatestRun(ctx context.Context) (*models.RunSummary, error) {
	var run models.RunSummary
	if err := s.c.Get(ctx, latestRunKey, &run); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("latest run: %w", domrepo.ErrNotFound)
		}
		return nil, err
	}
	return &run, nil
}
