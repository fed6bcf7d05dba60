package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/forecast"
	pkgmetrics "FinCast/pkg/metrics"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fincast",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of forecast API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fincast",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by forecast API endpoint",
		},
		[]string{"endpoint"},
	)
)

// Register adds the API metrics to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors)
	})
}

// PipelineObserver forwards pipeline progress to a metrics recorder.
type PipelineObserver struct {
	m domrepo.Metrics
}

func NewPipelineObserver(m domrepo.Metrics) *PipelineObserver {
	return &PipelineObserver{m: m}
}

func (o *PipelineObserver) StageCompleted(_ string, stage forecast.State, d time.Duration) {
	o.m.RecordStage(stage.String(), d.Seconds())
}

func (o *PipelineObserver) InstrumentCompleted(symbol string, res *models.ForecastResult, err error) {
	if err != nil {
		kind := string(forecast.KindOf(err))
		o.m.RecordInstrument(symbol, kind, 0)
		o.m.RecordError(kind)
		return
	}
	o.m.RecordInstrument(symbol, pkgmetrics.OutcomeForecasted, res.MAE)
}

var _ forecast.Observer = (*PipelineObserver)(nil)
