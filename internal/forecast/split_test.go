package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func lagged(t *testing.T, s models.Series, h int) *Table {
	t.Helper()
	table, err := BuildLagFeatures(s, []string{models.ColumnVWAP}, models.ColumnClose, h)
	require.NoError(t, err)
	return table
}

func TestSplitAndScaleShapes(t *testing.T) {
	const h = 5
	table := lagged(t, noisySeries("AAA", 40), h)
	sp, err := SplitAndScale(table, h)
	require.NoError(t, err)

	assert.Len(t, sp.TrainX, table.Rows()-h)
	assert.Len(t, sp.TrainY, table.Rows()-h)
	assert.Len(t, sp.TestX, h)
	assert.Len(t, sp.TestY, h)
	assert.Equal(t, table.Y[table.Rows()-h:], sp.RawTestY)
	assert.Equal(t, RoleTestLabel, sp.Scalers.TestLabel.Role())
	assert.Equal(t, h, sp.Scalers.TrainFeatures.Columns())
	assert.Equal(t, 1, sp.Scalers.TrainLabel.Columns())
}

func TestSplitScalersDoNotSeeOtherSegment(t *testing.T) {
	const h = 5
	base := lagged(t, noisySeries("AAA", 40), h)
	sp, err := SplitAndScale(base, h)
	require.NoError(t, err)

	perturbed := lagged(t, noisySeries("AAA", 40), h)
	for r := perturbed.Rows() - h; r < perturbed.Rows(); r++ {
		perturbed.Y[r] *= 10
		for j := range perturbed.X[r] {
			perturbed.X[r][j] += 1000
		}
	}
	sp2, err := SplitAndScale(perturbed, h)
	require.NoError(t, err)

	assert.Equal(t, sp.Scalers.TrainFeatures.Center(), sp2.Scalers.TrainFeatures.Center())
	assert.Equal(t, sp.Scalers.TrainFeatures.Scale(), sp2.Scalers.TrainFeatures.Scale())
	assert.Equal(t, sp.Scalers.TrainLabel.Center(), sp2.Scalers.TrainLabel.Center())
	assert.Equal(t, sp.TrainX, sp2.TrainX)
	assert.Equal(t, sp.TrainY, sp2.TrainY)
	assert.NotEqual(t, sp.Scalers.TestLabel.Center(), sp2.Scalers.TestLabel.Center())
}

func TestSplitAndScaleErrors(t *testing.T) {
	const h = 5
	_, err := SplitAndScale(lagged(t, noisySeries("AAA", 14), h), h)
	var ide *InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, 2*h+1, ide.Need)

	table := lagged(t, noisySeries("AAA", 40), h)
	last := table.Rows() - 1
	table.X[last] = table.X[last][:h-1]
	_, err = SplitAndScale(table, h)
	assert.Equal(t, KindShapeMismatch, KindOf(err))
}
