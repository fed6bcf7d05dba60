package forecast

import "github.com/shopspring/decimal"

// ForwardWindow drops the first horizon train rows, appends the test rows
// and keeps the last horizon rows: the feature block one horizon past the
// reserved train rows.
func ForwardWindow(trainX, testX [][]float64, horizon int) ([][]float64, error) {
	if len(trainX) < horizon {
		return nil, &InsufficientDataError{Stage: StateForecasted, Have: len(trainX), Need: horizon}
	}
	joined := make([][]float64, 0, len(trainX)-horizon+len(testX))
	joined = append(joined, trainX[horizon:]...)
	joined = append(joined, testX...)
	if len(joined) < horizon {
		return nil, &InsufficientDataError{Stage: StateForecasted, Have: len(joined), Need: horizon}
	}
	return joined[len(joined)-horizon:], nil
}

// Forecast predicts the next horizon periods with model and restores them
// to native units with the test-label scaler, rounded to precision decimals.
func Forecast(model Estimator, sp *Split, precision int) ([]float64, error) {
	window, err := ForwardWindow(sp.TrainX, sp.TestX, sp.Horizon)
	if err != nil {
		return nil, err
	}
	pred, err := model.Predict(window)
	if err != nil {
		return nil, err
	}
	native, err := sp.Scalers.TestLabel.InverseTransformVector(pred)
	if err != nil {
		return nil, err
	}
	for i, v := range native {
		native[i] = Round(v, precision)
	}
	return native, nil
}

// Round rounds the shortest decimal form of v half away from zero, so 2.675
// becomes 2.68. A negative precision leaves v untouched.
func Round(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	return decimal.NewFromFloat(v).Round(int32(precision)).InexactFloat64()
}
