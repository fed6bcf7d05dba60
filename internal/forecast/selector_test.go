package forecast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitFor(t *testing.T, n, h int) *Split {
	t.Helper()
	sp, err := SplitAndScale(lagged(t, noisySeries("AAA", n), h), h)
	require.NoError(t, err)
	return sp
}

func TestSelectorTieKeepsFirst(t *testing.T) {
	sel := &Selector{Candidates: []ModelSpec{
		{Name: "first", Kind: KindConstant},
		{Name: "second", Kind: KindConstant},
	}}
	got, err := sel.Select(context.Background(), splitFor(t, 60, 5))
	require.NoError(t, err)
	assert.Equal(t, "first", got.Spec.Label())
	require.Len(t, got.Scores, 2)
	assert.Equal(t, got.Scores[0].MAE, got.Scores[1].MAE)
}

func TestSelectorSkipsFailingCandidates(t *testing.T) {
	sel := &Selector{Candidates: []ModelSpec{
		{Name: "broken", Kind: "svm"},
		{Name: "baseline", Kind: KindConstant},
	}}
	got, err := sel.Select(context.Background(), splitFor(t, 60, 5))
	require.NoError(t, err)
	assert.Equal(t, "baseline", got.Spec.Label())
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "broken", got.Failures[0].Name)
	assert.True(t, got.Scores[0].Failed())
	assert.False(t, got.Scores[1].Failed())
}

func TestSelectorNoViableModel(t *testing.T) {
	sel := &Selector{Candidates: []ModelSpec{{Name: "a", Kind: "svm"}, {Name: "b", Kind: "knn"}}}
	_, err := sel.Select(context.Background(), splitFor(t, 60, 5))
	var nv *NoViableModelError
	require.ErrorAs(t, err, &nv)
	assert.Len(t, nv.Failures, 2)
	assert.Equal(t, KindNoViableModel, KindOf(err))
}

func TestSelectorIsReproducible(t *testing.T) {
	sel := &Selector{Candidates: []ModelSpec{
		{Kind: KindLinear},
		{Kind: KindElasticNet, Alpha: Param(0.2), L1Ratio: Param(0.2)},
		{Kind: KindGradientBoostedTrees, NEstimators: 20, MaxDepth: 3, LearningRate: Param(0.1), Subsample: Param(0.8), Seed: 100},
	}}
	a, err := sel.Select(context.Background(), splitFor(t, 80, 5))
	require.NoError(t, err)
	b, err := sel.Select(context.Background(), splitFor(t, 80, 5))
	require.NoError(t, err)
	assert.Equal(t, a.Scores, b.Scores)
	assert.Equal(t, a.Spec, b.Spec)
	assert.Equal(t, a.MAE, b.MAE)
}

func TestSelectorEvaluationModes(t *testing.T) {
	sp := splitFor(t, 60, 5)
	candidates := []ModelSpec{{Kind: KindConstant}}

	byDefault, err := (&Selector{Candidates: candidates}).Select(context.Background(), sp)
	require.NoError(t, err)
	test, err := (&Selector{Candidates: candidates, Mode: EvalTestLabels}).Select(context.Background(), sp)
	require.NoError(t, err)
	train, err := (&Selector{Candidates: candidates, Mode: EvalReservedTrain}).Select(context.Background(), sp)
	require.NoError(t, err)

	fitRows := len(sp.TrainX) - sp.Horizon
	avg := mean(sp.TrainY[:fitRows])
	pred := make([]float64, sp.Horizon)
	for i := range pred {
		pred[i] = avg
	}

	truth, err := sp.Scalers.TestLabel.InverseTransformVector(sp.TestY)
	require.NoError(t, err)
	nativeTest, err := sp.Scalers.TestLabel.InverseTransformVector(pred)
	require.NoError(t, err)
	want, err := MeanAbsoluteError(truth, nativeTest)
	require.NoError(t, err)
	assert.InDelta(t, want, test.MAE, 1e-9)
	assert.Equal(t, test.MAE, byDefault.MAE)

	nativeTrain, err := sp.Scalers.TrainLabel.InverseTransformVector(pred)
	require.NoError(t, err)
	want, err = MeanAbsoluteError(sp.RawTrainY[fitRows:], nativeTrain)
	require.NoError(t, err)
	assert.InDelta(t, want, train.MAE, 1e-9)
}

func TestSelectorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Selector{Candidates: []ModelSpec{{Kind: KindConstant}}}).Select(ctx, splitFor(t, 60, 5))
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestMeanAbsoluteError(t *testing.T) {
	mae, err := MeanAbsoluteError([]float64{1, 2, 3}, []float64{2, 2, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mae, 1e-12)

	_, err = MeanAbsoluteError([]float64{1}, []float64{1, 2})
	assert.Equal(t, KindShapeMismatch, KindOf(err))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 2.68, Round(2.675, 2))
	assert.Equal(t, -1.5, Round(-1.45, 1))
	assert.Equal(t, 109.0, Round(108.996, 2))
	assert.Equal(t, 1.23456, Round(1.23456, -1))
}

func TestForwardWindow(t *testing.T) {
	rows := func(from, to int) [][]float64 {
		var out [][]float64
		for i := from; i < to; i++ {
			out = append(out, []float64{float64(i)})
		}
		return out
	}
	got, err := ForwardWindow(rows(0, 10), rows(10, 13), 3)
	require.NoError(t, err)
	assert.Equal(t, rows(10, 13), got)

	got, err = ForwardWindow(rows(0, 10), rows(10, 11), 3)
	require.NoError(t, err)
	assert.Equal(t, rows(8, 11), got)

	_, err = ForwardWindow(rows(0, 2), rows(2, 3), 3)
	assert.Equal(t, KindInsufficientData, KindOf(err))
}
