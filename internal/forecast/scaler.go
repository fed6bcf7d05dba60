package forecast

import (
	"math"
	"sort"
)

// Role names one of the four blocks an instrument's scalers are fit on.
type Role string

const (
	RoleTrainFeatures Role = "train_features"
	RoleTestFeatures  Role = "test_features"
	RoleTrainLabel    Role = "train_label"
	RoleTestLabel     Role = "test_label"
)

// zeroScale matches the threshold below which a spread counts as zero.
const zeroScale = 10 * 2.220446049250313e-16

// RobustScaler centers each column on its median and divides by its
// interquartile range. It only accepts blocks of the width it was fit on.
type RobustScaler struct {
	role       Role
	center     []float64
	scale      []float64
	degenerate []int
}

// FitRobust fits a scaler on block. Columns with a zero IQR get scale 1;
// they are listed by Degenerate and reported by Warning, and fitting still
// succeeds.
func FitRobust(role Role, block [][]float64) (*RobustScaler, error) {
	if len(block) == 0 {
		return nil, &InsufficientDataError{Stage: StateSplitScaled, Have: 0, Need: 1}
	}
	cols := len(block[0])
	if cols == 0 {
		return nil, &ShapeMismatchError{What: string(role), Want: 1, Got: 0}
	}
	for _, row := range block {
		if len(row) != cols {
			return nil, &ShapeMismatchError{What: string(role), Want: cols, Got: len(row)}
		}
	}

	s := &RobustScaler{
		role:   role,
		center: make([]float64, cols),
		scale:  make([]float64, cols),
	}
	buf := make([]float64, len(block))
	for j := 0; j < cols; j++ {
		for i, row := range block {
			buf[i] = row[j]
		}
		sort.Float64s(buf)
		s.center[j] = quantileSorted(buf, 0.5)
		iqr := quantileSorted(buf, 0.75) - quantileSorted(buf, 0.25)
		if iqr < zeroScale || math.IsNaN(iqr) {
			iqr = 1
			s.degenerate = append(s.degenerate, j)
		}
		s.scale[j] = iqr
	}
	return s, nil
}

// FitRobustVector fits a single-column scaler on a label vector.
func FitRobustVector(role Role, y []float64) (*RobustScaler, error) {
	return FitRobust(role, column(y))
}

// quantileSorted interpolates linearly between the order statistics at
// position p*(n-1), the same estimator numpy uses by default.
func quantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Role returns the block the scaler was fit on.
func (s *RobustScaler) Role() Role { return s.role }

// Columns returns the fitted width.
func (s *RobustScaler) Columns() int { return len(s.center) }

// Center returns a copy of the per-column medians.
func (s *RobustScaler) Center() []float64 { return append([]float64(nil), s.center...) }

// Scale returns a copy of the per-column scales.
func (s *RobustScaler) Scale() []float64 { return append([]float64(nil), s.scale...) }

// Degenerate lists the columns whose IQR was zero.
func (s *RobustScaler) Degenerate() []int { return append([]int(nil), s.degenerate...) }

// Warning returns a *DegenerateScaleError when any column fell back to
// scale 1, nil otherwise.
func (s *RobustScaler) Warning() error {
	if len(s.degenerate) == 0 {
		return nil
	}
	return &DegenerateScaleError{Role: s.role, Columns: s.Degenerate()}
}

// Transform returns (x - center) / scale for every row of block.
func (s *RobustScaler) Transform(block [][]float64) ([][]float64, error) {
	return s.apply(block, func(v float64, j int) float64 { return (v - s.center[j]) / s.scale[j] })
}

// InverseTransform returns x*scale + center for every row of block.
func (s *RobustScaler) InverseTransform(block [][]float64) ([][]float64, error) {
	return s.apply(block, func(v float64, j int) float64 { return v*s.scale[j] + s.center[j] })
}

// TransformVector scales a label vector with a single-column scaler.
func (s *RobustScaler) TransformVector(y []float64) ([]float64, error) {
	out, err := s.Transform(column(y))
	if err != nil {
		return nil, err
	}
	return flatten(out), nil
}

// InverseTransformVector restores a label vector to native units.
func (s *RobustScaler) InverseTransformVector(y []float64) ([]float64, error) {
	out, err := s.InverseTransform(column(y))
	if err != nil {
		return nil, err
	}
	return flatten(out), nil
}

func (s *RobustScaler) apply(block [][]float64, f func(v float64, j int) float64) ([][]float64, error) {
	out := make([][]float64, len(block))
	for i, row := range block {
		if len(row) != len(s.center) {
			return nil, &ShapeMismatchError{What: string(s.role), Want: len(s.center), Got: len(row)}
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = f(v, j)
		}
		out[i] = scaled
	}
	return out, nil
}

// Bank holds the four independent scalers of one instrument.
type Bank struct {
	TrainFeatures *RobustScaler
	TestFeatures  *RobustScaler
	TrainLabel    *RobustScaler
	TestLabel     *RobustScaler
}

// Warnings collects the degenerate-scale warnings of all four scalers.
func (b *Bank) Warnings() []error {
	var out []error
	for _, s := range []*RobustScaler{b.TrainFeatures, b.TestFeatures, b.TrainLabel, b.TestLabel} {
		if s == nil {
			continue
		}
		if w := s.Warning(); w != nil {
			out = append(out, w)
		}
	}
	return out
}

func column(y []float64) [][]float64 {
	out := make([][]float64, len(y))
	for i, v := range y {
		out[i] = []float64{v}
	}
	return out
}

func flatten(block [][]float64) []float64 {
	out := make([]float64, len(block))
	for i, row := range block {
		out[i] = row[0]
	}
	return out
}
