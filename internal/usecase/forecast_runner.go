package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	applogger "FinCast/pkg/logger"
)

var (
	// ErrRunInProgress is returned when another run holds the run lock.
	ErrRunInProgress = errors.New("forecast run already in progress")
	// ErrRateLimited is returned when run triggers arrive too fast.
	ErrRateLimited = errors.New("forecast run rate limit exceeded")
)

// KindLoadFailed marks instruments whose history could not be read.
const KindLoadFailed = "load_failed"

const runLockKey = "lock:forecast-run"

// Broadcaster pushes completed results to live subscribers.
type Broadcaster interface {
	Broadcast(v interface{})
}

// RunnerConfig holds the runner settings.
type RunnerConfig struct {
	// Symbols restricts runs to these instruments; empty means every symbol
	// the source knows.
	Symbols []string
	// Observations is how many trailing rows to load per instrument.
	Observations int
	LockTTL      time.Duration
	// RunsPerMinute bounds Trigger; zero disables the limit.
	RunsPerMinute int
}

// ForecastRunner loads history, runs the pipeline and fans the summary out
// to the sinks.
type ForecastRunner struct {
	cfg        RunnerConfig
	forecaster service.Forecaster
	source     domrepo.SeriesSource
	sinks      []domrepo.ForecastSink
	locker     domrepo.Locker
	metrics    domrepo.Metrics
	hub        Broadcaster
	limiter    *rate.Limiter
	l          *applogger.Logger
	running    atomic.Bool
}

func NewForecastRunner(
	cfg RunnerConfig,
	forecaster service.Forecaster,
	source domrepo.SeriesSource,
	sinks []domrepo.ForecastSink,
	locker domrepo.Locker,
	metrics domrepo.Metrics,
	hub Broadcaster,
	l *applogger.Logger,
) *ForecastRunner {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	r := &ForecastRunner{
		cfg:        cfg,
		forecaster: forecaster,
		source:     source,
		sinks:      sinks,
		locker:     locker,
		metrics:    metrics,
		hub:        hub,
		l:          l,
	}
	if cfg.RunsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RunsPerMinute)), 1)
	}
	return r
}

// Trigger is RunOnce behind the rate limit, for externally requested runs.
func (r *ForecastRunner) Trigger(ctx context.Context, symbols []string) (*models.RunSummary, error) {
	if r.limiter != nil && !r.limiter.Allow() {
		return nil, ErrRateLimited
	}
	return r.RunOnce(ctx, symbols)
}

// TriggerAsync starts a run in the background and returns once it is
// accepted. The run outlives ctx. The process guard is claimed before
// returning, so of two concurrent callers exactly one is accepted.
func (r *ForecastRunner) TriggerAsync(ctx context.Context, symbols []string) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	if r.limiter != nil && !r.limiter.Allow() {
		r.running.Store(false)
		return ErrRateLimited
	}
	runCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := r.run(runCtx, symbols); err != nil {
			r.l.Warn("triggered run ended with error", applogger.Error(err))
		}
	}()
	return nil
}

// Running reports whether this process is executing a run.
func (r *ForecastRunner) Running() bool { return r.running.Load() }

// RunOnce forecasts symbols, or the configured set when symbols is empty.
// Sink failures are returned alongside the summary; the run itself stands.
func (r *ForecastRunner) RunOnce(ctx context.Context, symbols []string) (*models.RunSummary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	return r.run(ctx, symbols)
}

// run executes a run whose process guard the caller has claimed, and
// releases the guard when done.
func (r *ForecastRunner) run(ctx context.Context, symbols []string) (summary *models.RunSummary, err error) {
	defer r.running.Store(false)

	ctx, span := otel.Tracer("fincast/usecase").Start(ctx, "forecast.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if r.locker != nil {
		ok, lerr := r.locker.TryLock(ctx, runLockKey, r.cfg.LockTTL)
		if lerr != nil {
			return nil, fmt.Errorf("acquire run lock: %w", lerr)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			// The run context may already be cancelled.
			if uerr := r.locker.Unlock(context.Background(), runLockKey); uerr != nil {
				r.l.Warn("release run lock", applogger.Error(uerr))
			}
		}()
	}

	start := time.Now()
	symbols, err = r.resolveSymbols(ctx, symbols)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("fincast.symbols", len(symbols)))

	series, loadFailures := r.load(ctx, symbols)
	summary, err = r.forecaster.Run(ctx, series)
	if err != nil {
		r.metrics.RecordError("run_rejected")
		r.l.Error("forecast run rejected", applogger.Error(err))
		return nil, err
	}
	if len(loadFailures) > 0 {
		summary.Failures = append(summary.Failures, loadFailures...)
		sort.Slice(summary.Failures, func(i, j int) bool { return summary.Failures[i].Symbol < summary.Failures[j].Symbol })
	}
	r.metrics.RecordRun(summary.Succeeded(), len(summary.Failures), time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("fincast.run_id", summary.RunID),
		attribute.Int("fincast.succeeded", summary.Succeeded()),
		attribute.Int("fincast.failed", len(summary.Failures)),
	)

	var sinkErrs []error
	for _, sink := range r.sinks {
		sinkStart := time.Now()
		if serr := sink.SaveRun(ctx, summary); serr != nil {
			r.metrics.RecordError("sink")
			r.l.Error("forecast sink failed", applogger.String("sink", fmt.Sprintf("%T", sink)), applogger.Error(serr))
			sinkErrs = append(sinkErrs, serr)
			continue
		}
		r.metrics.RecordLatency("sink_save", time.Since(sinkStart).Seconds())
	}

	if r.hub != nil {
		for _, sym := range summary.Symbols() {
			r.hub.Broadcast(summary.Results[sym])
		}
	}

	r.l.Info("forecast run finished",
		applogger.String("run_id", summary.RunID),
		applogger.Int("succeeded", summary.Succeeded()),
		applogger.Int("failed", len(summary.Failures)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return summary, errors.Join(sinkErrs...)
}

func (r *ForecastRunner) resolveSymbols(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	if len(r.cfg.Symbols) > 0 {
		return r.cfg.Symbols, nil
	}
	syms, err := r.source.Symbols(ctx)
	if err != nil {
		r.metrics.RecordError("list_symbols")
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return syms, nil
}

// load reads each instrument's trailing history. Instruments that cannot be
// read become failures and do not block the others.
func (r *ForecastRunner) load(ctx context.Context, symbols []string) (map[string]models.Series, []models.InstrumentFailure) {
	series := make(map[string]models.Series, len(symbols))
	var failures []models.InstrumentFailure
	for _, sym := range symbols {
		start := time.Now()
		s, err := r.source.LatestSeries(ctx, sym, r.cfg.Observations)
		r.metrics.RecordLatency("load_series", time.Since(start).Seconds())
		if err != nil {
			r.metrics.RecordError(KindLoadFailed)
			r.l.Warn("load series failed", applogger.String("symbol", sym), applogger.Error(err))
			failures = append(failures, models.InstrumentFailure{
				Symbol:  sym,
				Kind:    KindLoadFailed,
				State:   "RAW",
				Message: err.Error(),
			})
			continue
		}
		s.Symbol = sym
		series[sym] = s
	}
	return series, failures
}
