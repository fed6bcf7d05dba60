package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/util"
)

// BarProcessor accepts decoded bars for storage.
type BarProcessor interface {
	Process(ctx context.Context, bars []models.Bar) error
}

// KafkaBarsHandler consumes aggregated bars and hands them to storage.
type KafkaBarsHandler struct {
	topic   string
	proc    BarProcessor
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, proc BarProcessor, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, proc: proc, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, o, h, l, c, v, vw, n} or an array of them.
// t is epoch seconds, epoch milliseconds or an RFC3339 string.
type wireBar struct {
	Symbol string          `json:"symbol"`
	T      json.RawMessage `json:"t"`
	O      float64         `json:"o"`
	H      float64         `json:"h"`
	L      float64         `json:"l"`
	C      float64         `json:"c"`
	V      float64         `json:"v"`
	VW     float64         `json:"vw"`
	N      int64           `json:"n"`
}

func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	bars, err := DecodeBars(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if len(bars) == 0 {
		return nil
	}
	// event time to now for the newest bar
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bars[len(bars)-1].Timestamp).Seconds())

	if err := h.proc.Process(ctx, bars); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

// DecodeBars parses one bar or an array of bars.
func DecodeBars(b []byte) ([]models.Bar, error) {
	b = bytes.TrimSpace(b)
	var wire []wireBar
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &wire); err != nil {
			return nil, fmt.Errorf("decode bars: %w", err)
		}
	} else {
		var one wireBar
		if err := json.Unmarshal(b, &one); err != nil {
			return nil, fmt.Errorf("decode bar: %w", err)
		}
		wire = []wireBar{one}
	}

	bars := make([]models.Bar, 0, len(wire))
	for i, w := range wire {
		ts, ok := util.ParseTimestamp(w.T)
		if !ok {
			return nil, fmt.Errorf("bar %d (%s): bad timestamp %s", i, w.Symbol, string(w.T))
		}
		bars = append(bars, models.Bar{
			Symbol:       w.Symbol,
			Timestamp:    ts,
			Open:         w.O,
			High:         w.H,
			Low:          w.L,
			Close:        w.C,
			Volume:       w.V,
			VWAP:         w.VW,
			Transactions: w.N,
		})
	}
	return bars, nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
