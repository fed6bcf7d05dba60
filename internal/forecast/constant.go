package forecast

import (
	"encoding/json"

	"gonum.org/v1/gonum/stat"
)

// ConstantModel predicts the mean training label for every row. It is the
// baseline the other candidates have to beat.
type ConstantModel struct {
	Mean   float64 `json:"mean"`
	Width  int     `json:"n_features"`
	Fitted bool    `json:"fitted"`
}

func (m *ConstantModel) Kind() ModelKind { return KindConstant }

func (m *ConstantModel) Fit(X [][]float64, y []float64) error {
	cols, err := checkFitInput(X, y)
	if err != nil {
		return err
	}
	m.Mean = stat.Mean(y, nil)
	m.Width = cols
	m.Fitted = true
	return nil
}

func (m *ConstantModel) Predict(X [][]float64) ([]float64, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	if err := checkPredictInput(X, m.Width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range out {
		out[i] = m.Mean
	}
	return out, nil
}

func (m *ConstantModel) MarshalJSON() ([]byte, error) {
	type plain ConstantModel
	return json.Marshal(envelope{Kind: KindConstant, Model: (*plain)(m)})
}
