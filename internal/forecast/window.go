package forecast

import "FinCast/internal/domain/models"

// Window keeps the most recent window+horizon observations of s.
func Window(s models.Series, window, horizon int) (models.Series, error) {
	need := window + horizon
	if s.Len() < need {
		return models.Series{}, &InsufficientDataError{Stage: StateWindowed, Have: s.Len(), Need: need}
	}
	return s.Tail(need), nil
}

// RequireColumns checks that every observation carries every column.
func RequireColumns(s models.Series, columns []string) error {
	for i, o := range s.Observations {
		for _, c := range columns {
			if _, ok := o[c]; !ok {
				return &MissingColumnError{Symbol: s.Symbol, Column: c, Row: i}
			}
		}
	}
	return nil
}
