package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinCast/internal/domain/models"
	"FinCast/pkg/logger"
)

// Observer receives progress events. Implementations must be safe for
// concurrent use because instruments run in parallel.
type Observer interface {
	StageCompleted(symbol string, stage State, took time.Duration)
	InstrumentCompleted(symbol string, result *models.ForecastResult, err error)
}

type nopObserver struct{}

func (nopObserver) StageCompleted(string, State, time.Duration) {}
func (nopObserver) InstrumentCompleted(string, *models.ForecastResult, error) {}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers o for stage and instrument events.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline turns instrument series into forecasts. It holds no per-run
// state and may be reused across runs.
type Pipeline struct {
	cfg      Config
	log      *logger.Logger
	observer Observer
	selector *Selector
	now      func() time.Time
}

// NewPipeline validates cfg and returns a ready pipeline.
func NewPipeline(cfg Config, log *logger.Logger, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Evaluation == "" {
		cfg.Evaluation = EvalTestLabels
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg.SignalColumns = append([]string(nil), cfg.SignalColumns...)
	cfg.Candidates = append([]ModelSpec(nil), cfg.Candidates...)

	p := &Pipeline{
		cfg:      cfg,
		log:      log,
		observer: nopObserver{},
		selector: &Selector{Candidates: cfg.Candidates, Mode: cfg.Evaluation},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns a copy of the pipeline configuration.
func (p *Pipeline) Config() Config {
	c := p.cfg
	c.SignalColumns = append([]string(nil), c.SignalColumns...)
	c.Candidates = append([]ModelSpec(nil), c.Candidates...)
	return c
}

// ForecastInstrument runs every stage for one instrument. Failures are
// returned as *InstrumentError carrying the last state reached.
func (p *Pipeline) ForecastInstrument(ctx context.Context, s models.Series) (*models.ForecastResult, error) {
	return p.forecastInstrument(ctx, "", s)
}

func (p *Pipeline) forecastInstrument(ctx context.Context, runID string, s models.Series) (res *models.ForecastResult, err error) {
	log := p.log.With(logger.String("symbol", s.Symbol))
	state := StateRaw
	defer func() {
		if err != nil {
			err = &InstrumentError{Symbol: s.Symbol, Reached: state, Err: err}
		}
		p.observer.InstrumentCompleted(s.Symbol, res, err)
	}()

	advance := func(started time.Time) {
		state = state.Next()
		took := p.now().Sub(started)
		p.observer.StageCompleted(s.Symbol, state, took)
		log.Debug("stage completed", logger.String("state", state.String()), logger.Duration("took", took))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := RequireColumns(s, p.cfg.RequiredColumns()); err != nil {
		return nil, err
	}

	started := p.now()
	windowed, err := Window(s, p.cfg.WindowLength, p.cfg.Horizon)
	if err != nil {
		return nil, err
	}
	advance(started)

	started = p.now()
	table, err := BuildLagFeatures(windowed, p.cfg.SignalColumns, p.cfg.TargetColumn, p.cfg.Horizon)
	if err != nil {
		return nil, err
	}
	advance(started)

	started = p.now()
	sp, err := SplitAndScale(table, p.cfg.Horizon)
	if err != nil {
		return nil, err
	}
	warnings := sp.Scalers.Warnings()
	for _, w := range warnings {
		log.Warn("degenerate scale, using unit scale", logger.Error(w))
	}
	advance(started)

	started = p.now()
	sel, err := p.selector.Select(ctx, sp)
	if err != nil {
		return nil, err
	}
	for _, f := range sel.Failures {
		log.Warn("candidate skipped", logger.String("candidate", f.Name), logger.Error(f.Err))
	}
	advance(started)

	started = p.now()
	values, err := Forecast(sel.Model, sp, p.cfg.DisplayPrecision)
	if err != nil {
		return nil, err
	}
	advance(started)

	blob, err := json.Marshal(sel.Model)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", sel.Spec.Label(), err)
	}

	res = &models.ForecastResult{
		RunID:       runID,
		Symbol:      s.Symbol,
		Model:       string(sel.Spec.Kind),
		ModelName:   sel.Spec.Label(),
		MAE:         sel.MAE,
		Forecast:    values,
		Horizon:     p.cfg.Horizon,
		Features:    table.FeatureNames,
		Candidates:  sel.Scores,
		State:       state.String(),
		CompletedAt: p.now(),
		FittedModel: blob,
	}
	for _, w := range warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}
	log.Info("instrument forecasted",
		logger.String("model", res.ModelName),
		logger.Float64("mae", res.MAE),
		logger.Int("horizon", len(values)))
	return res, nil
}

// Validate performs the run-level checks: configuration and the presence of
// every required column in every instrument.
func (p *Pipeline) Validate(series map[string]models.Series) error {
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	cols := p.cfg.RequiredColumns()
	for _, sym := range sortedSymbols(series) {
		s := series[sym]
		if s.Symbol == "" {
			s.Symbol = sym
		}
		if err := RequireColumns(s, cols); err != nil {
			return err
		}
	}
	return nil
}

// Run forecasts every instrument on a bounded worker pool. Run-level errors
// abort before any instrument is processed. Per-instrument failures are
// isolated and listed in the summary; instruments not started before ctx is
// cancelled are reported as cancelled.
func (p *Pipeline) Run(ctx context.Context, series map[string]models.Series) (*models.RunSummary, error) {
	if err := p.Validate(series); err != nil {
		p.log.Error("run rejected", logger.Error(err))
		return nil, err
	}

	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
		Results:   make(map[string]*models.ForecastResult, len(series)),
	}
	log := p.log.With(logger.String("run_id", summary.RunID))
	log.Info("run started", logger.Int("instruments", len(series)), logger.Int("workers", p.cfg.Workers))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	for _, sym := range sortedSymbols(series) {
		s := series[sym]
		if s.Symbol == "" {
			s.Symbol = sym
		}
		g.Go(func() error {
			res, err := p.forecastInstrument(ctx, summary.RunID, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failures = append(summary.Failures, failureOf(sym, err))
				return nil
			}
			summary.Results[sym] = res
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool { return summary.Failures[i].Symbol < summary.Failures[j].Symbol })
	summary.FinishedAt = p.now()

	for _, f := range summary.Failures {
		log.Warn("instrument failed", logger.String("symbol", f.Symbol), logger.String("kind", f.Kind), logger.String("error", f.Message))
	}
	log.Info("run finished",
		logger.Int("succeeded", summary.Succeeded()),
		logger.Int("failed", len(summary.Failures)),
		logger.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, nil
}

func failureOf(symbol string, err error) models.InstrumentFailure {
	f := models.InstrumentFailure{
		Symbol:  symbol,
		Kind:    string(KindOf(err)),
		State:   StateRaw.String(),
		Message: err.Error(),
	}
	var ie *InstrumentError
	if errors.As(err, &ie) {
		f.State = ie.Reached.String()
	}
	return f
}

func sortedSymbols(series map[string]models.Series) []string {
	out := make([]string, 0, len(series))
	for sym := range series {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
