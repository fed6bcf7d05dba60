package repository

import (
	"context"
	"time"

	"FinCast/internal/domain/models"
	pkgkafka "FinCast/pkg/kafka"
)

// batchPublisher is the part of the Kafka producer the publisher needs.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// RunEvent is the compact run record published on the runs topic.
type RunEvent struct {
	RunID      string                     `json:"run_id"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Succeeded  []string                   `json:"succeeded"`
	Failures   []models.InstrumentFailure `json:"failures"`
}

// KafkaForecastPublisher publishes one prediction record per instrument,
// keyed by symbol, and a run event.
type KafkaForecastPublisher struct {
	producer       batchPublisher
	forecastsTopic string
	runsTopic      string
}

func NewKafkaForecastPublisher(producer batchPublisher, forecastsTopic, runsTopic string) *KafkaForecastPublisher {
	return &KafkaForecastPublisher{producer: producer, forecastsTopic: forecastsTopic, runsTopic: runsTopic}
}

func (p *KafkaForecastPublisher) SaveRun(ctx context.Context, run *models.RunSummary) error {
	if run == nil {
		return nil
	}
	symbols := run.Symbols()
	if len(symbols) > 0 {
		msgs := make([]pkgkafka.Message, len(symbols))
		for i, sym := range symbols {
			msgs[i] = pkgkafka.Message{Key: []byte(sym), Value: run.Results[sym].Prediction()}
		}
		if err := p.producer.PublishBatch(ctx, p.forecastsTopic, msgs); err != nil {
			return err
		}
	}
	if p.runsTopic == "" {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.runsTopic, []pkgkafka.Message{{
		Key: []byte(run.RunID),
		Value: RunEvent{
			RunID:      run.RunID,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Succeeded:  symbols,
			Failures:   run.Failures,
		},
	}})
}
