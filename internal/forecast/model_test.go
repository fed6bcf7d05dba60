package forecast

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// planeData returns y = 2*a - 3*b + 1 over a small grid.
func planeData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for a := 0; a < 8; a++ {
		for b := 0; b < 5; b++ {
			fa, fb := float64(a), float64(b)
			X = append(X, []float64{fa, fb})
			y = append(y, 2*fa-3*fb+1)
		}
	}
	return X, y
}

func TestLinearModelRecoversPlane(t *testing.T) {
	X, y := planeData()
	m := &LinearModel{}
	require.NoError(t, m.Fit(X, y))
	assert.InDeltaSlice(t, []float64{2, -3}, m.Coef, 1e-9)
	assert.InDelta(t, 1, m.Intercept, 1e-9)

	pred, err := m.Predict([][]float64{{10, 10}})
	require.NoError(t, err)
	assert.InDelta(t, -9, pred[0], 1e-9)
}

func TestLinearModelCollinearColumns(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		v := float64(i)
		X = append(X, []float64{v, v, v})
		y = append(y, 3*v+2)
	}
	m := &LinearModel{}
	require.NoError(t, m.Fit(X, y))
	// Minimum-norm solution spreads the weight evenly.
	assert.InDeltaSlice(t, []float64{1, 1, 1}, m.Coef, 1e-8)
	pred, err := m.Predict([][]float64{{30, 30, 30}})
	require.NoError(t, err)
	assert.InDelta(t, 92, pred[0], 1e-6)
}

func TestElasticNetShrinks(t *testing.T) {
	X, y := planeData()
	weak := newElasticNet(ModelSpec{Alpha: Param(1e-6), L1Ratio: Param(0.5)})
	require.NoError(t, weak.Fit(X, y))
	assert.InDeltaSlice(t, []float64{2, -3}, weak.Coef, 1e-3)

	strong := newElasticNet(ModelSpec{Alpha: Param(100), L1Ratio: Param(1)})
	require.NoError(t, strong.Fit(X, y))
	assert.Equal(t, []float64{0, 0}, strong.Coef)
	assert.InDelta(t, mean(y), strong.Intercept, 1e-9)

	mid := newElasticNet(ModelSpec{Alpha: Param(0.2), L1Ratio: Param(0.2)})
	require.NoError(t, mid.Fit(X, y))
	assert.Less(t, math.Abs(mid.Coef[0]), 2.0)
	assert.Less(t, math.Abs(mid.Coef[1]), 3.0)
	assert.LessOrEqual(t, mid.Iters, defaultMaxIter)
}

func TestExplicitZeroHyperParametersAreKept(t *testing.T) {
	spec := ModelSpec{Kind: KindElasticNet, Alpha: Param(0.2), L1Ratio: Param(0)}
	require.NoError(t, Config{
		WindowLength: 40, Horizon: 5, SignalColumns: []string{"vwap"}, TargetColumn: "close",
		Candidates: []ModelSpec{spec},
	}.Validate())

	est, err := spec.New()
	require.NoError(t, err)
	enet := est.(*ElasticNetModel)
	assert.Equal(t, 0.0, enet.L1Ratio)
	assert.Equal(t, 0.2, enet.Alpha)

	X, y := planeData()
	require.NoError(t, enet.Fit(X, y))
	// Pure ridge shrinks but never zeroes a coefficient.
	assert.NotZero(t, enet.Coef[0])
	assert.NotZero(t, enet.Coef[1])

	trees := newBoostedTrees(ModelSpec{MinChildWeight: Param(0)})
	assert.Equal(t, 0.0, trees.MinChildWeight)
	assert.Equal(t, defaultLearningRate, trees.LearningRate)

	unset := newElasticNet(ModelSpec{})
	assert.Equal(t, defaultAlpha, unset.Alpha)
	assert.Equal(t, defaultL1Ratio, unset.L1Ratio)
}

func TestBoostedTreesFitStep(t *testing.T) {
	var X [][]float64
	var y []float64
	for i := 0; i < 60; i++ {
		X = append(X, []float64{float64(i), float64(i % 3)})
		if i < 30 {
			y = append(y, 1)
		} else {
			y = append(y, 5)
		}
	}
	m := newBoostedTrees(ModelSpec{NEstimators: 50, MaxDepth: 2, LearningRate: Param(0.3), Seed: 1})
	require.NoError(t, m.Fit(X, y))
	pred, err := m.Predict([][]float64{{5, 0}, {50, 0}})
	require.NoError(t, err)
	assert.InDelta(t, 1, pred[0], 0.05)
	assert.InDelta(t, 5, pred[1], 0.05)
	assert.Len(t, m.Trees, 50)
	assert.Equal(t, 0, m.Trees[0].Nodes[0].Feature)
}

func TestBoostedTreesDeterministicWithSeed(t *testing.T) {
	X, y := planeData()
	spec := ModelSpec{Kind: KindGradientBoostedTrees, NEstimators: 30, MaxDepth: 3, LearningRate: Param(0.1), Subsample: Param(0.7), Seed: 42}
	fit := func() []float64 {
		est, err := spec.New()
		require.NoError(t, err)
		require.NoError(t, est.Fit(X, y))
		pred, err := est.Predict(X)
		require.NoError(t, err)
		return pred
	}
	assert.Equal(t, fit(), fit())
}

func TestConstantModel(t *testing.T) {
	m := &ConstantModel{}
	_, err := m.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, m.Fit([][]float64{{1}, {2}, {3}}, []float64{2, 4, 9}))
	pred, err := m.Predict([][]float64{{0}, {100}})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5}, pred)
}

func TestFitInputChecks(t *testing.T) {
	for _, spec := range DefaultCandidates() {
		est, err := spec.New()
		require.NoError(t, err)
		assert.ErrorIs(t, est.Fit(nil, nil), ErrEmptyFit, spec.Label())
		assert.Equal(t, KindShapeMismatch, KindOf(est.Fit([][]float64{{1}, {2}}, []float64{1})), spec.Label())
	}
	_, err := ModelSpec{Kind: "svm"}.New()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEstimatorSerializationRestoresPredictions(t *testing.T) {
	X, y := planeData()
	specs := append(DefaultCandidates(), ModelSpec{Kind: KindConstant})
	specs[2].NEstimators = 10
	for _, spec := range specs {
		est, err := spec.New()
		require.NoError(t, err)
		require.NoError(t, est.Fit(X, y))
		want, err := est.Predict(X)
		require.NoError(t, err)

		blob, err := json.Marshal(est)
		require.NoError(t, err)
		var head struct {
			Kind ModelKind `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(blob, &head))
		assert.Equal(t, spec.Kind, head.Kind)

		restored, err := UnmarshalEstimator(blob)
		require.NoError(t, err)
		got, err := restored.Predict(X)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-12, spec.Label())
	}
}

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
