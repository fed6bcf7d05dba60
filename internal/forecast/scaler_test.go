package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRobustScalerMedianAndIQR(t *testing.T) {
	s, err := FitRobust(RoleTrainFeatures, [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.5, 25}, s.Center(), 1e-12)
	// Q1 and Q3 interpolate at positions 0.75 and 2.25.
	assert.InDeltaSlice(t, []float64{1.5, 15}, s.Scale(), 1e-12)
	assert.Nil(t, s.Warning())
}

func TestRobustScalerRoundTrip(t *testing.T) {
	block := make([][]float64, 50)
	for i := range block {
		x := float64(i)
		block[i] = []float64{math.Sin(x+0.5) * 100, x*x - 3, 1e6 + x/7}
	}
	s, err := FitRobust(RoleTestFeatures, block)
	require.NoError(t, err)

	scaled, err := s.Transform(block)
	require.NoError(t, err)
	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)
	for i := range block {
		for j := range block[i] {
			assert.InEpsilon(t, block[i][j], back[i][j], 1e-9)
		}
	}
}

func TestRobustScalerDegenerateColumn(t *testing.T) {
	y := []float64{7, 7, 7, 7, 7}
	s, err := FitRobustVector(RoleTrainLabel, y)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, s.Scale())
	assert.Equal(t, []int{0}, s.Degenerate())

	var dse *DegenerateScaleError
	require.ErrorAs(t, s.Warning(), &dse)
	assert.Equal(t, RoleTrainLabel, dse.Role)
	assert.Equal(t, KindDegenerateScale, KindOf(s.Warning()))

	scaled, err := s.TransformVector([]float64{7, 8, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, -2}, scaled)
}

func TestRobustScalerShapeChecks(t *testing.T) {
	_, err := FitRobust(RoleTrainFeatures, [][]float64{{1, 2}, {3}})
	assert.Equal(t, KindShapeMismatch, KindOf(err))

	s, err := FitRobust(RoleTrainFeatures, [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	_, err = s.Transform([][]float64{{1, 2, 3}})
	assert.Equal(t, KindShapeMismatch, KindOf(err))
	_, err = s.TransformVector([]float64{1})
	assert.Equal(t, KindShapeMismatch, KindOf(err))

	_, err = FitRobust(RoleTrainFeatures, nil)
	assert.Equal(t, KindInsufficientData, KindOf(err))
}
