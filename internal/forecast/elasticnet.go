package forecast

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	defaultAlpha   = 1.0
	defaultL1Ratio = 0.5
	defaultMaxIter = 1000
	defaultTol     = 1e-4
)

// ElasticNetModel minimizes
//
//	1/(2n) * |y - Xw - b|^2 + alpha*l1*|w|_1 + alpha*(1-l1)/2 * |w|^2
//
// by cyclic coordinate descent on centered data.
type ElasticNetModel struct {
	Alpha     float64   `json:"alpha"`
	L1Ratio   float64   `json:"l1_ratio"`
	MaxIter   int       `json:"max_iter"`
	Tol       float64   `json:"tol"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Iters     int       `json:"n_iter"`
}

func newElasticNet(s ModelSpec) *ElasticNetModel {
	m := &ElasticNetModel{
		Alpha:   paramOr(s.Alpha, defaultAlpha),
		L1Ratio: paramOr(s.L1Ratio, defaultL1Ratio),
		MaxIter: s.MaxIter,
		Tol:     paramOr(s.Tol, defaultTol),
	}
	if m.MaxIter == 0 {
		m.MaxIter = defaultMaxIter
	}
	return m
}

func (m *ElasticNetModel) Kind() ModelKind { return KindElasticNet }

func (m *ElasticNetModel) Fit(X [][]float64, y []float64) error {
	cols, err := checkFitInput(X, y)
	if err != nil {
		return err
	}
	n := len(X)
	xm, ym, xc, yc := center(X, y, cols)

	// Column-major copy so each coordinate update walks contiguous memory.
	xcol := make([][]float64, cols)
	sq := make([]float64, cols)
	for j := 0; j < cols; j++ {
		xcol[j] = make([]float64, n)
		for i := 0; i < n; i++ {
			xcol[j][i] = xc.At(i, j)
		}
		sq[j] = floats.Dot(xcol[j], xcol[j])
	}
	resid := make([]float64, n)
	for i := range resid {
		resid[i] = yc.AtVec(i)
	}

	l1 := float64(n) * m.Alpha * m.L1Ratio
	l2 := float64(n) * m.Alpha * (1 - m.L1Ratio)
	w := make([]float64, cols)

	m.Iters = m.MaxIter
	for it := 1; it <= m.MaxIter; it++ {
		var maxW, maxDelta float64
		for j := 0; j < cols; j++ {
			old := w[j]
			denom := sq[j] + l2
			if denom == 0 {
				continue
			}
			rho := floats.Dot(xcol[j], resid) + sq[j]*old
			w[j] = softThreshold(rho, l1) / denom
			if d := w[j] - old; d != 0 {
				floats.AddScaled(resid, -d, xcol[j])
			}
			maxDelta = math.Max(maxDelta, math.Abs(w[j]-old))
			maxW = math.Max(maxW, math.Abs(w[j]))
		}
		if maxW == 0 || maxDelta/maxW < m.Tol {
			m.Iters = it
			break
		}
	}

	m.Coef = w
	m.Intercept = ym - floats.Dot(xm, w)
	return nil
}

func (m *ElasticNetModel) Predict(X [][]float64) ([]float64, error) {
	if m.Coef == nil {
		return nil, ErrNotFitted
	}
	return predictLinear(X, m.Coef, m.Intercept)
}

func (m *ElasticNetModel) MarshalJSON() ([]byte, error) {
	type plain ElasticNetModel
	return json.Marshal(envelope{Kind: KindElasticNet, Model: (*plain)(m)})
}

func softThreshold(x, lambda float64) float64 {
	switch {
	case x > lambda:
		return x - lambda
	case x < -lambda:
		return x + lambda
	default:
		return 0
	}
}
