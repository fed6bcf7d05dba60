package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
)

// ErrBufferFull is returned when the store is failing and the retry buffer
// has no room left.
var ErrBufferFull = errors.New("bar ingest buffer full")

// BarIngest sits between the bars consumer and the bar store. It validates,
// throttles per symbol and buffers batches while the store is unavailable.
type BarIngest struct {
	writer  domrepo.BarWriter
	metrics domrepo.Metrics
	l       *applogger.Logger
	maxRPS  int
	bufSize int
	bufCh   chan []models.Bar
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
	// per-symbol throttles, created on first sight
	limiters map[string]*rate.Limiter
}

type IngestOption func(*BarIngest)

// WithMaxRPS caps accepted bars per second per symbol. Zero disables it.
func WithMaxRPS(n int) IngestOption {
	return func(p *BarIngest) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many failed batches are kept for retry.
func WithBufferSize(n int) IngestOption {
	return func(p *BarIngest) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithLogger(l *applogger.Logger) IngestOption {
	return func(p *BarIngest) {
		if l != nil {
			p.l = l
		}
	}
}

func NewBarIngest(writer domrepo.BarWriter, metrics domrepo.Metrics, opts ...IngestOption) *BarIngest {
	p := &BarIngest{
		writer:   writer,
		metrics:  metrics,
		l:        applogger.Nop(),
		bufSize:  256,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan []models.Bar, p.bufSize)
	return p
}

// Start launches the background flush of buffered batches.
func (p *BarIngest) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case bars := <-p.bufCh:
				if err := p.writer.StoreBars(ctx, bars); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("ingest_flush")
					p.l.Warn("buffered bars flush failed", applogger.Int("bars", len(bars)), applogger.Duration("backoff_ms", backoff), applogger.Error(err))
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					}
					select {
					case p.bufCh <- bars:
					default:
						p.metrics.RecordError("ingest_buffer_drop")
						p.l.Error("dropping buffered bars", applogger.Int("bars", len(bars)))
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop ends the flush loop. Batches still buffered are logged and dropped.
func (p *BarIngest) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
	if n := len(p.bufCh); n > 0 {
		p.l.Warn("bar ingest stopped with pending batches", applogger.Int("batches", n))
	}
}

// Pending returns the number of buffered batches.
func (p *BarIngest) Pending() int { return len(p.bufCh) }

// Process validates and forwards bars. A failing store buffers the batch
// and reports success; only a full buffer is an error.
func (p *BarIngest) Process(ctx context.Context, bars []models.Bar) error {
	start := time.Now()
	accepted := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if err := validateBar(b); err != nil {
			p.metrics.RecordError("ingest_validate")
			p.l.Debug("bar rejected", applogger.String("symbol", b.Symbol), applogger.Error(err))
			continue
		}
		if !p.allow(b.Symbol, start) {
			p.metrics.RecordError("ingest_throttle")
			continue
		}
		accepted = append(accepted, b)
	}
	if len(accepted) == 0 {
		return nil
	}

	if err := p.writer.StoreBars(ctx, accepted); err != nil {
		p.metrics.RecordError("ingest_store")
		select {
		case p.bufCh <- accepted:
			p.metrics.RecordLatency("ingest_buffer_depth", float64(len(p.bufCh)))
			return nil
		default:
			return fmt.Errorf("%w: %v", ErrBufferFull, err)
		}
	}
	p.metrics.RecordLatency("ingest_store", time.Since(start).Seconds())
	return nil
}

func validateBar(b models.Bar) error {
	switch {
	case b.Symbol == "":
		return fmt.Errorf("symbol empty")
	case b.Timestamp.IsZero():
		return fmt.Errorf("timestamp missing")
	case b.Close <= 0 || b.Open < 0 || b.High < 0 || b.Low < 0:
		return fmt.Errorf("non-positive price")
	case b.High < b.Low:
		return fmt.Errorf("high below low")
	case b.Volume < 0:
		return fmt.Errorf("negative volume")
	}
	return nil
}

func (p *BarIngest) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	lim, ok := p.limiters[symbol]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(p.maxRPS), p.maxRPS)
		p.limiters[symbol] = lim
	}
	p.mu.Unlock()
	return lim.AllowN(now, 1)
}
