package forecast

import (
	"fmt"
	"math"

	"FinCast/internal/domain/models"
)

// Config is shared read-only by every instrument of a run.
type Config struct {
	WindowLength     int
	Horizon          int
	SignalColumns    []string
	TargetColumn     string
	DisplayPrecision int
	Workers          int
	Evaluation       EvaluationMode
	Candidates       []ModelSpec
}

// DefaultConfig is a month of 10-minute bars forecasting one trading day.
func DefaultConfig() Config {
	return Config{
		WindowLength:     819,
		Horizon:          39,
		SignalColumns:    []string{models.ColumnVWAP},
		TargetColumn:     models.ColumnClose,
		DisplayPrecision: 2,
		Workers:          4,
		Evaluation:       EvalTestLabels,
		Candidates:       DefaultCandidates(),
	}
}

// Validate returns a *ConfigError describing the first problem found.
func (c Config) Validate() error {
	switch {
	case c.WindowLength <= 0:
		return &ConfigError{Field: "window_length", Reason: "must be positive"}
	case c.Horizon <= 0:
		return &ConfigError{Field: "horizon", Reason: "must be positive"}
	case len(c.SignalColumns) == 0:
		return &ConfigError{Field: "signal_columns", Reason: "must not be empty"}
	case c.TargetColumn == "":
		return &ConfigError{Field: "target_column", Reason: "must not be empty"}
	case len(c.Candidates) == 0:
		return &ConfigError{Field: "candidate_models", Reason: "must not be empty"}
	case c.Evaluation != "" && !c.Evaluation.Valid():
		return &ConfigError{Field: "evaluation", Reason: fmt.Sprintf("unknown mode %q", c.Evaluation)}
	}
	// The split needs 2*horizon+1 lagged rows out of window+horizon observations.
	if c.WindowLength < 2*c.Horizon {
		return &ConfigError{Field: "window_length", Reason: fmt.Sprintf("must be at least twice the horizon (%d)", 2*c.Horizon)}
	}
	seen := make(map[string]bool, len(c.SignalColumns))
	for _, s := range c.SignalColumns {
		if s == "" {
			return &ConfigError{Field: "signal_columns", Reason: "empty column name"}
		}
		if seen[s] {
			return &ConfigError{Field: "signal_columns", Reason: fmt.Sprintf("duplicate column %q", s)}
		}
		seen[s] = true
	}
	for i, m := range c.Candidates {
		if !m.Kind.Valid() {
			return &ConfigError{Field: fmt.Sprintf("candidate_models[%d].kind", i), Reason: fmt.Sprintf("unknown kind %q", m.Kind)}
		}
		if err := m.validateParams(); err != nil {
			err.Field = fmt.Sprintf("candidate_models[%d].%s", i, err.Field)
			return err
		}
	}
	return nil
}

// RequiredColumns lists the signal columns followed by the target, without
// duplicates.
func (c Config) RequiredColumns() []string {
	cols := append([]string(nil), c.SignalColumns...)
	for _, s := range c.SignalColumns {
		if s == c.TargetColumn {
			return cols
		}
	}
	return append(cols, c.TargetColumn)
}

// Observations returns the number of rows kept per instrument.
func (c Config) Observations() int { return c.WindowLength + c.Horizon }

// validateParams rejects hyper-parameters the models cannot fit with. Only
// explicitly set values are checked; nil ones resolve to defaults.
func (s ModelSpec) validateParams() *ConfigError {
	in := func(p *float64, lo, hi float64, loOpen bool) bool {
		if p == nil {
			return true
		}
		if loOpen {
			return *p > lo && *p <= hi
		}
		return *p >= lo && *p <= hi
	}
	switch {
	case s.MaxIter < 0:
		return &ConfigError{Field: "max_iter", Reason: "must not be negative"}
	case s.NEstimators < 0:
		return &ConfigError{Field: "n_estimators", Reason: "must not be negative"}
	case s.MaxDepth < 0:
		return &ConfigError{Field: "max_depth", Reason: "must not be negative"}
	case !in(s.Alpha, 0, math.Inf(1), false):
		return &ConfigError{Field: "alpha", Reason: "must not be negative"}
	case !in(s.L1Ratio, 0, 1, false):
		return &ConfigError{Field: "l1_ratio", Reason: "must be within [0,1]"}
	case !in(s.Tol, 0, math.Inf(1), true):
		return &ConfigError{Field: "tol", Reason: "must be positive"}
	case !in(s.LearningRate, 0, math.Inf(1), true):
		return &ConfigError{Field: "learning_rate", Reason: "must be positive"}
	case !in(s.MinChildWeight, 0, math.Inf(1), false):
		return &ConfigError{Field: "min_child_weight", Reason: "must not be negative"}
	case !in(s.Subsample, 0, 1, true):
		return &ConfigError{Field: "subsample", Reason: "must be within (0,1]"}
	}
	return nil
}
