package models

import (
	"encoding/json"
	"sort"
	"time"
)

// CandidateScore is the held-out evaluation of one candidate model.
type CandidateScore struct {
	Name  string  `json:"name"`
	Kind  string  `json:"kind"`
	MAE   float64 `json:"mae,omitempty"`
	Error string  `json:"error,omitempty"`
}

// Failed reports whether the candidate was excluded from selection.
func (c CandidateScore) Failed() bool { return c.Error != "" }

// ForecastResult is the outcome of one instrument's pipeline run.
// It is immutable once produced.
type ForecastResult struct {
	RunID       string           `json:"run_id"`
	Symbol      string           `json:"tickerName"`
	Model       string           `json:"model"`
	ModelName   string           `json:"model_name"`
	MAE         float64          `json:"best_mae"`
	Forecast    []float64        `json:"predictions"`
	Horizon     int              `json:"horizon"`
	Features    []string         `json:"features"`
	Candidates  []CandidateScore `json:"candidates"`
	Warnings    []string         `json:"warnings,omitempty"`
	State       string           `json:"state"`
	CompletedAt time.Time        `json:"completed_at"`
	// FittedModel is the serialized winning estimator. Downstream treats it
	// as an opaque blob.
	FittedModel json.RawMessage `json:"fitted_model,omitempty"`
}

// InstrumentFailure reports an instrument whose pipeline stopped early.
type InstrumentFailure struct {
	Symbol  string `json:"symbol"`
	Kind    string `json:"kind"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// RunSummary aggregates one pipeline run over many instruments.
type RunSummary struct {
	RunID      string                     `json:"run_id"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Results    map[string]*ForecastResult `json:"results"`
	Failures   []InstrumentFailure        `json:"failures"`
}

// Succeeded returns the number of instruments that reached FORECASTED.
func (r *RunSummary) Succeeded() int { return len(r.Results) }

// Symbols returns the forecasted symbols in a stable order.
func (r *RunSummary) Symbols() []string {
	out := make([]string, 0, len(r.Results))
	for s := range r.Results {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Prediction is the downstream record published per ticker.
type Prediction struct {
	TickerName  string    `json:"tickerName"`
	Predictions []float64 `json:"predictions"`
}

// Prediction projects the result onto the published record.
func (r *ForecastResult) Prediction() Prediction {
	return Prediction{TickerName: r.Symbol, Predictions: r.Forecast}
}
