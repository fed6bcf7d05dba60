package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"FinCast/internal/domain/models"
	"FinCast/internal/forecast"
)

type fakeMetrics struct {
	stages      []string
	instruments []string
	errors      []string
	mae         float64
}

func (f *fakeMetrics) RecordRun(int, int, float64) {}
func (f *fakeMetrics) RecordInstrument(symbol, outcome string, mae float64) {
	f.instruments = append(f.instruments, symbol+":"+outcome)
	f.mae = mae
}
func (f *fakeMetrics) RecordStage(stage string, _ float64) { f.stages = append(f.stages, stage) }
func (f *fakeMetrics) RecordError(kind string) { f.errors = append(f.errors, kind) }
func (f *fakeMetrics) RecordLatency(string, float64) {}

func TestPipelineObserver(t *testing.T) {
	m := &fakeMetrics{}
	o := NewPipelineObserver(m)

	o.StageCompleted("AAPL", forecast.StateLagged, time.Millisecond)
	o.InstrumentCompleted("AAPL", &models.ForecastResult{MAE: 0.3}, nil)
	o.InstrumentCompleted("TINY", nil, &forecast.InsufficientDataError{Stage: forecast.StateRaw, Have: 3, Need: 10})

	assert.Equal(t, []string{"LAGGED"}, m.stages)
	assert.Equal(t, []string{"AAPL:forecasted", "TINY:insufficient_data"}, m.instruments)
	assert.Equal(t, []string{"insufficient_data"}, m.errors)
}
