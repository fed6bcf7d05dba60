package forecast

// Split is one instrument's table partitioned into train and test segments,
// each block scaled by a scaler fit on that same block.
type Split struct {
	Horizon int

	TrainX [][]float64
	TrainY []float64
	TestX  [][]float64
	TestY  []float64

	RawTrainX [][]float64
	RawTrainY []float64
	RawTestX  [][]float64
	RawTestY  []float64

	Scalers *Bank
}

// SplitAndScale holds out the last horizon rows as the test segment. The
// train segment must keep at least horizon+1 rows because the selector
// reserves its last horizon rows for evaluation.
func SplitAndScale(t *Table, horizon int) (*Split, error) {
	need := 2*horizon + 1
	if t.Rows() < need {
		return nil, &InsufficientDataError{Stage: StateSplitScaled, Have: t.Rows(), Need: need}
	}
	if len(t.X) != len(t.Y) {
		return nil, &ShapeMismatchError{What: "table rows", Want: len(t.Y), Got: len(t.X)}
	}

	cut := t.Rows() - horizon
	sp := &Split{
		Horizon:   horizon,
		RawTrainX: t.X[:cut],
		RawTrainY: t.Y[:cut],
		RawTestX:  t.X[cut:],
		RawTestY:  t.Y[cut:],
	}
	if tw, sw := width(sp.RawTrainX), width(sp.RawTestX); tw != sw {
		return nil, &ShapeMismatchError{What: "train/test features", Want: tw, Got: sw}
	}

	bank := &Bank{}
	var err error
	if bank.TrainFeatures, err = FitRobust(RoleTrainFeatures, sp.RawTrainX); err != nil {
		return nil, err
	}
	if bank.TestFeatures, err = FitRobust(RoleTestFeatures, sp.RawTestX); err != nil {
		return nil, err
	}
	if bank.TrainLabel, err = FitRobustVector(RoleTrainLabel, sp.RawTrainY); err != nil {
		return nil, err
	}
	if bank.TestLabel, err = FitRobustVector(RoleTestLabel, sp.RawTestY); err != nil {
		return nil, err
	}
	sp.Scalers = bank

	if sp.TrainX, err = bank.TrainFeatures.Transform(sp.RawTrainX); err != nil {
		return nil, err
	}
	if sp.TestX, err = bank.TestFeatures.Transform(sp.RawTestX); err != nil {
		return nil, err
	}
	if sp.TrainY, err = bank.TrainLabel.TransformVector(sp.RawTrainY); err != nil {
		return nil, err
	}
	if sp.TestY, err = bank.TestLabel.TransformVector(sp.RawTestY); err != nil {
		return nil, err
	}
	return sp, nil
}

// width returns the common row width of block, or -1 if rows disagree.
func width(block [][]float64) int {
	if len(block) == 0 {
		return 0
	}
	w := len(block[0])
	for _, row := range block[1:] {
		if len(row) != w {
			return -1
		}
	}
	return w
}
