package forecast

import (
	"encoding/json"
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// rankTol is the relative singular-value cutoff of the least-squares solve.
// Lag columns of a smooth signal are close to collinear after scaling, so
// the solve must tolerate rank deficiency.
const rankTol = 1e-10

// LinearModel is ordinary least squares with an intercept. When the design
// is rank deficient it takes the minimum-norm solution.
type LinearModel struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (m *LinearModel) Kind() ModelKind { return KindLinear }

func (m *LinearModel) Fit(X [][]float64, y []float64) error {
	cols, err := checkFitInput(X, y)
	if err != nil {
		return err
	}
	xm, ym, xc, yc := center(X, y, cols)

	coef := make([]float64, cols)
	m.Coef = coef
	m.Intercept = ym
	// Constant features carry no signal; the fit is the label mean.
	if mat.Norm(xc, 1) == 0 {
		return nil
	}
	var svd mat.SVD
	if !svd.Factorize(xc, mat.SVDThin) {
		return errors.New("linear: SVD factorization failed")
	}
	if rank := svd.Rank(rankTol); rank > 0 {
		var w mat.VecDense
		svd.SolveVecTo(&w, yc, rank)
		for j := range coef {
			coef[j] = w.AtVec(j)
		}
	}
	m.Intercept = ym - floats.Dot(xm, coef)
	return nil
}

func (m *LinearModel) Predict(X [][]float64) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	return predictLinear(X, m.Coef, m.Intercept)
}

func (m *LinearModel) MarshalJSON() ([]byte, error) {
	type plain LinearModel
	return json.Marshal(envelope{Kind: KindLinear, Model: (*plain)(m)})
}

// center returns column means, label mean and the centered design and labels.
func center(X [][]float64, y []float64, cols int) ([]float64, float64, *mat.Dense, *mat.VecDense) {
	n := len(X)
	xm := make([]float64, cols)
	for _, row := range X {
		floats.Add(xm, row)
	}
	floats.Scale(1/float64(n), xm)
	ym := floats.Sum(y) / float64(n)

	xc := mat.NewDense(n, cols, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xm[j])
		}
		yc.SetVec(i, y[i]-ym)
	}
	return xm, ym, xc, yc
}

func predictLinear(X [][]float64, coef []float64, intercept float64) ([]float64, error) {
	if err := checkPredictInput(X, len(coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = floats.Dot(row, coef) + intercept
	}
	return out, nil
}
