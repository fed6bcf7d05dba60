package forecast

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"FinCast/internal/domain/models"
)

// EvaluationMode chooses what the predictions on the reserved train rows
// are compared against.
type EvaluationMode string

const (
	// EvalTestLabels compares against the test labels. Predictions and test
	// labels are both restored to price units with the test-label scaler.
	EvalTestLabels EvaluationMode = "test_labels"
	// EvalReservedTrain compares against the raw labels of the reserved train
	// rows. Predictions are restored with the train-label scaler; the truth
	// side is already in price units.
	EvalReservedTrain EvaluationMode = "reserved_train"
)

// Valid reports whether m is a known mode.
func (m EvaluationMode) Valid() bool {
	return m == EvalTestLabels || m == EvalReservedTrain
}

// CandidateFailure records a candidate that was skipped.
type CandidateFailure struct {
	Name string
	Kind ModelKind
	Err  error
}

// Selection is the winning candidate of one instrument.
type Selection struct {
	Model    Estimator
	Spec     ModelSpec
	MAE      float64
	Scores   []models.CandidateScore
	Failures []CandidateFailure
}

// Selector fits every candidate on a fresh clone and keeps the lowest MAE.
// Ties keep the earlier candidate.
type Selector struct {
	Candidates []ModelSpec
	Mode       EvaluationMode
}

// Select evaluates the candidates on sp. A candidate whose fit or predict
// fails (or panics, or yields a non-finite MAE) is skipped; when none
// survives the result is a *NoViableModelError.
func (s *Selector) Select(ctx context.Context, sp *Split) (*Selection, error) {
	mode := s.Mode
	if mode == "" {
		mode = EvalTestLabels
	}
	sel := &Selection{MAE: math.Inf(1)}
	found := false
	for _, spec := range s.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := models.CandidateScore{Name: spec.Label(), Kind: string(spec.Kind)}
		est, mae, err := evaluate(spec, sp, mode)
		if err != nil {
			score.Error = err.Error()
			sel.Scores = append(sel.Scores, score)
			sel.Failures = append(sel.Failures, CandidateFailure{Name: spec.Label(), Kind: spec.Kind, Err: err})
			continue
		}
		score.MAE = mae
		sel.Scores = append(sel.Scores, score)
		if !found || mae < sel.MAE {
			found = true
			sel.Model, sel.Spec, sel.MAE = est, spec, mae
		}
	}
	if !found {
		return nil, &NoViableModelError{Failures: sel.Failures}
	}
	return sel, nil
}

func evaluate(spec ModelSpec, sp *Split, mode EvaluationMode) (est Estimator, mae float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			est, err = nil, fmt.Errorf("%s panicked: %v", spec.Label(), r)
		}
	}()

	est, err = spec.New()
	if err != nil {
		return nil, 0, err
	}
	fitRows := len(sp.TrainX) - sp.Horizon
	if fitRows < 1 {
		return nil, 0, &InsufficientDataError{Stage: StateModelSelected, Have: len(sp.TrainX), Need: sp.Horizon + 1}
	}
	if err = est.Fit(sp.TrainX[:fitRows], sp.TrainY[:fitRows]); err != nil {
		return nil, 0, fmt.Errorf("fit: %w", err)
	}
	pred, err := est.Predict(sp.TrainX[fitRows:])
	if err != nil {
		return nil, 0, fmt.Errorf("predict: %w", err)
	}

	var (
		truth  []float64
		scaler *RobustScaler
	)
	switch mode {
	case EvalReservedTrain:
		scaler = sp.Scalers.TrainLabel
		truth = sp.RawTrainY[fitRows:]
	default:
		scaler = sp.Scalers.TestLabel
		if truth, err = scaler.InverseTransformVector(sp.TestY); err != nil {
			return nil, 0, err
		}
	}
	native, err := scaler.InverseTransformVector(pred)
	if err != nil {
		return nil, 0, err
	}
	mae, err = MeanAbsoluteError(truth, native)
	if err != nil {
		return nil, 0, err
	}
	if math.IsNaN(mae) || math.IsInf(mae, 0) {
		return nil, 0, fmt.Errorf("%s: non-finite MAE", spec.Label())
	}
	return est, mae, nil
}

// MeanAbsoluteError returns mean(|yTrue - yPred|).
func MeanAbsoluteError(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, &ShapeMismatchError{What: "mae inputs", Want: len(yTrue), Got: len(yPred)}
	}
	if len(yTrue) == 0 {
		return 0, &InsufficientDataError{Stage: StateModelSelected, Have: 0, Need: 1}
	}
	return floats.Distance(yTrue, yPred, 1) / float64(len(yTrue)), nil
}
