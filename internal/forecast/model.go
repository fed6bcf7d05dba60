package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ModelKind enumerates the candidate regression models.
type ModelKind string

const (
	KindLinear               ModelKind = "linear"
	KindElasticNet           ModelKind = "elastic_net"
	KindGradientBoostedTrees ModelKind = "gradient_boosted_trees"
	KindConstant             ModelKind = "constant"
)

// Valid reports whether k is a known model kind.
func (k ModelKind) Valid() bool {
	switch k {
	case KindLinear, KindElasticNet, KindGradientBoostedTrees, KindConstant:
		return true
	}
	return false
}

// Estimator is a fitted (or fittable) regression model of one instrument.
// Each instance belongs to exactly one instrument.
type Estimator interface {
	Kind() ModelKind
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
	json.Marshaler
}

var (
	ErrNotFitted   = errors.New("model is not fitted")
	ErrEmptyFit    = errors.New("cannot fit on zero rows")
	ErrUnknownKind = errors.New("unknown model kind")
)

// ModelSpec describes one candidate. A nil float hyper-parameter takes the
// default of the model kind, while an explicit value, zero included, is used
// as given. Zero iteration, estimator and depth counts select the default.
type ModelSpec struct {
	Name string    `yaml:"name" json:"name"`
	Kind ModelKind `yaml:"kind" json:"kind" validate:"required,oneof=linear elastic_net gradient_boosted_trees constant"`

	// elastic_net
	Alpha   *float64 `yaml:"alpha" json:"alpha,omitempty" validate:"omitnil,gte=0"`
	L1Ratio *float64 `yaml:"l1_ratio" json:"l1_ratio,omitempty" validate:"omitnil,gte=0,lte=1"`
	MaxIter int      `yaml:"max_iter" json:"max_iter,omitempty" validate:"gte=0"`
	Tol     *float64 `yaml:"tol" json:"tol,omitempty" validate:"omitnil,gt=0"`

	// gradient_boosted_trees
	NEstimators    int      `yaml:"n_estimators" json:"n_estimators,omitempty" validate:"gte=0"`
	MaxDepth       int      `yaml:"max_depth" json:"max_depth,omitempty" validate:"gte=0"`
	LearningRate   *float64 `yaml:"learning_rate" json:"learning_rate,omitempty" validate:"omitnil,gt=0"`
	MinChildWeight *float64 `yaml:"min_child_weight" json:"min_child_weight,omitempty" validate:"omitnil,gte=0"`
	Subsample      *float64 `yaml:"subsample" json:"subsample,omitempty" validate:"omitnil,gt=0,lte=1"`
	Seed           int64    `yaml:"seed" json:"seed,omitempty"`
}

// Param returns a pointer to v for the optional ModelSpec fields.
func Param(v float64) *float64 { return &v }

func paramOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Label is the display name of the candidate.
func (s ModelSpec) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}

// New returns a fresh, unfitted estimator of kind s.Kind.
func (s ModelSpec) New() (Estimator, error) {
	switch s.Kind {
	case KindLinear:
		return &LinearModel{}, nil
	case KindElasticNet:
		return newElasticNet(s), nil
	case KindGradientBoostedTrees:
		return newBoostedTrees(s), nil
	case KindConstant:
		return &ConstantModel{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
}

// DefaultCandidates mirrors the candidate list the service was tuned with.
func DefaultCandidates() []ModelSpec {
	return []ModelSpec{
		{Name: "linear", Kind: KindLinear},
		{Name: "elastic_net", Kind: KindElasticNet, Alpha: Param(0.2), L1Ratio: Param(0.2)},
		{Name: "xgb", Kind: KindGradientBoostedTrees, NEstimators: 1000, MaxDepth: 5, LearningRate: Param(0.1), Seed: 100},
	}
}

func checkFitInput(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyFit
	}
	if len(X) != len(y) {
		return 0, &ShapeMismatchError{What: "fit rows", Want: len(X), Got: len(y)}
	}
	cols := len(X[0])
	for _, row := range X {
		if len(row) != cols {
			return 0, &ShapeMismatchError{What: "fit features", Want: cols, Got: len(row)}
		}
	}
	return cols, nil
}

func checkPredictInput(X [][]float64, cols int) error {
	for _, row := range X {
		if len(row) != cols {
			return &ShapeMismatchError{What: "predict features", Want: cols, Got: len(row)}
		}
	}
	return nil
}

// envelope wraps a serialized estimator with its kind.
type envelope struct {
	Kind  ModelKind `json:"kind"`
	Model any       `json:"model"`
}

// UnmarshalEstimator restores an estimator serialized by MarshalJSON.
func UnmarshalEstimator(data []byte) (Estimator, error) {
	var head struct {
		Kind  ModelKind       `json:"kind"`
		Model json.RawMessage `json:"model"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var est Estimator
	switch head.Kind {
	case KindLinear:
		est = &LinearModel{}
	case KindElasticNet:
		est = &ElasticNetModel{}
	case KindGradientBoostedTrees:
		est = &BoostedTreesModel{}
	case KindConstant:
		est = &ConstantModel{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Kind)
	}
	if err := json.Unmarshal(head.Model, est); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", head.Kind, err)
	}
	return est, nil
}
