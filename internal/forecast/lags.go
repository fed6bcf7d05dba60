package forecast

import (
	"fmt"

	"FinCast/internal/domain/models"
)

// Table is the supervised-learning view of one instrument: one row per
// period with every lag defined, features in X and the target in Y.
type Table struct {
	FeatureNames []string
	X            [][]float64
	Y            []float64
}

// Rows returns the number of rows.
func (t *Table) Rows() int { return len(t.Y) }

// Cols returns the number of feature columns.
func (t *Table) Cols() int { return len(t.FeatureNames) }

// LagFeatureName names the k-th lag of a signal, e.g. lag_vwap_3.
func LagFeatureName(signal string, k int) string {
	return fmt.Sprintf("lag_%s_%d", signal, k)
}

// FeatureNames lists the columns BuildLagFeatures produces for the given
// signals: each signal followed by its lags 1..horizon-1.
func FeatureNames(signals []string, horizon int) []string {
	names := make([]string, 0, len(signals)*horizon)
	for _, s := range signals {
		names = append(names, s)
		for k := 1; k < horizon; k++ {
			names = append(names, LagFeatureName(s, k))
		}
	}
	return names
}

// BuildLagFeatures expands s into a Table with lag_k[t] = signal[t-k] for
// k in 1..horizon-1. The first horizon-1 rows, whose lags are undefined, are
// dropped.
func BuildLagFeatures(s models.Series, signals []string, target string, horizon int) (*Table, error) {
	if horizon < 1 {
		return nil, &ConfigError{Field: "horizon", Reason: "must be positive"}
	}
	if len(signals) == 0 {
		return nil, &ConfigError{Field: "signal_columns", Reason: "must not be empty"}
	}

	columns := make([][]float64, len(signals))
	for i, name := range signals {
		col, ok := s.Column(name)
		if !ok {
			return nil, &MissingColumnError{Symbol: s.Symbol, Column: name, Row: firstMissing(s, name)}
		}
		columns[i] = col
	}
	labels, ok := s.Column(target)
	if !ok {
		return nil, &MissingColumnError{Symbol: s.Symbol, Column: target, Row: firstMissing(s, target)}
	}

	offset := horizon - 1
	rows := s.Len() - offset
	if rows <= 0 {
		return nil, &InsufficientDataError{Stage: StateLagged, Have: s.Len(), Need: horizon}
	}

	t := &Table{
		FeatureNames: FeatureNames(signals, horizon),
		X:            make([][]float64, rows),
		Y:            make([]float64, rows),
	}
	width := len(signals) * horizon
	for r := 0; r < rows; r++ {
		src := r + offset
		row := make([]float64, 0, width)
		for _, col := range columns {
			for k := 0; k < horizon; k++ {
				row = append(row, col[src-k])
			}
		}
		t.X[r] = row
		t.Y[r] = labels[src]
	}
	return t, nil
}

func firstMissing(s models.Series, column string) int {
	for i, o := range s.Observations {
		if _, ok := o[column]; !ok {
			return i
		}
	}
	return -1
}
