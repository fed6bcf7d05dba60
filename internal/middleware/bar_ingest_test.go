package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

type nopMetrics struct {
	mu     sync.Mutex
	errors []string
}

func (m *nopMetrics) RecordRun(int, int, float64)              {}
func (m *nopMetrics) RecordInstrument(string, string, float64) {}
func (m *nopMetrics) RecordStage(string, float64)              {}
func (m *nopMetrics) RecordLatency(string, float64)            {}
func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *nopMetrics) has(kind string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.errors {
		if k == kind {
			return true
		}
	}
	return false
}

// flakyWriter fails the first failures calls.
type flakyWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	stored   []models.Bar
}

func (w *flakyWriter) StoreBars(_ context.Context, bars []models.Bar) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failures {
		return errors.New("clickhouse down")
	}
	w.stored = append(w.stored, bars...)
	return nil
}

func (w *flakyWriter) storedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stored)
}

func bar(sym string, c float64) models.Bar {
	return models.Bar{Symbol: sym, Timestamp: time.Unix(1700000000, 0), Open: c, High: c, Low: c, Close: c}
}

func TestBarIngestDropsInvalidBars(t *testing.T) {
	w := &flakyWriter{}
	m := &nopMetrics{}
	p := NewBarIngest(w, m)

	bad := bar("AAPL", 1)
	bad.High, bad.Low = 1, 2
	require.NoError(t, p.Process(context.Background(), []models.Bar{bar("AAPL", 1), bar("", 1), bar("MSFT", 0), bad}))
	assert.Equal(t, 1, w.storedCount())
	assert.True(t, m.has("ingest_validate"))

	require.NoError(t, p.Process(context.Background(), []models.Bar{bar("", 1)}))
	assert.Equal(t, 1, w.calls)
}

func TestBarIngestThrottlesPerSymbol(t *testing.T) {
	w := &flakyWriter{}
	m := &nopMetrics{}
	p := NewBarIngest(w, m, WithMaxRPS(2))

	batch := []models.Bar{bar("AAPL", 1), bar("AAPL", 2), bar("AAPL", 3), bar("MSFT", 4)}
	require.NoError(t, p.Process(context.Background(), batch))
	assert.Equal(t, 3, w.storedCount())
	assert.True(t, m.has("ingest_throttle"))
}

func TestBarIngestBuffersUntilStoreRecovers(t *testing.T) {
	w := &flakyWriter{failures: 2}
	m := &nopMetrics{}
	p := NewBarIngest(w, m, WithBufferSize(4))
	p.Start(context.Background())
	defer p.Stop()

	require.NoError(t, p.Process(context.Background(), []models.Bar{bar("AAPL", 1)}))
	assert.Eventually(t, func() bool { return w.storedCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, p.Pending())
	assert.True(t, m.has("ingest_flush"))
}

func TestBarIngestBufferFull(t *testing.T) {
	w := &flakyWriter{failures: 100}
	p := NewBarIngest(w, &nopMetrics{}, WithBufferSize(1))

	require.NoError(t, p.Process(context.Background(), []models.Bar{bar("AAPL", 1)}))
	err := p.Process(context.Background(), []models.Bar{bar("AAPL", 2)})
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, 1, p.Pending())
}
