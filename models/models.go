// Package models trains the regressors used to nowcast the target.
//
// Five kinds are supported: gradient-boosted trees, random forest, ordinary
// least squares, a small multilayer perceptron and a nearest-neighbour analog
// model. Each kind has a fixed hyperparameter profile (DefaultParams). An
// Ensemble averages K members of the same kind trained on the same data with
// different seeds.
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Noofbiz/nowcast/datasets"
)

// ErrUnsupportedModel is returned for an unrecognised model kind.
var ErrUnsupportedModel = errors.New("unsupported model type")

// Kind selects the learning algorithm.
type Kind int

const (
	GradientBoosting Kind = iota + 1
	RandomForest
	Linear
	MLP
	Analog
)

func (k Kind) String() string {
	switch k {
	case GradientBoosting:
		return "XGBoost"
	case RandomForest:
		return "RandomForest"
	case Linear:
		return "OLS"
	case MLP:
		return "MLP"
	case Analog:
		return "Analog"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration string onto a Kind. Matching is
// case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xgboost", "gbt", "gradient_boosting", "gradientboosting":
		return GradientBoosting, nil
	case "randomforest", "random_forest", "rf":
		return RandomForest, nil
	case "ols", "linear":
		return Linear, nil
	case "mlp":
		return MLP, nil
	case "analog", "knn":
		return Analog, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedModel, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Regressor is a fitted model. Predict returns NaN when x has the wrong
// length or contains a null.
type Regressor interface {
	Predict(x []float64) float64
}

// Params holds the hyperparameter profile of every kind.
type Params struct {
	Boosting BoostingParams
	Forest   ForestParams
	MLP      MLPParams
	Analog   AnalogParams
}

// DefaultParams returns the documented profiles: boosted trees with 500
// rounds, eta 0.1, depth 3, lambda 1, alpha 0; a random forest of 100
// unconstrained trees with 1% split and leaf fractions, sqrt feature
// sampling and no bootstrap; a single 64-unit hidden layer MLP; and an
// analog model drawing 60 times from the 8 nearest rows.
func DefaultParams() Params {
	return Params{
		Boosting: BoostingParams{
			Rounds:         500,
			LearningRate:   0.1,
			MaxDepth:       3,
			Lambda:         1,
			Alpha:          0,
			MinChildWeight: 1,
		},
		Forest: ForestParams{
			Trees:            100,
			MaxDepth:         0,
			MinSplitFraction: 0.01,
			MinLeafFraction:  0.01,
			MaxFeatures:      SqrtFeatures,
		},
		MLP: MLPParams{
			HiddenSizes:  []int{64},
			LearningRate: 0.001,
			Epochs:       200,
			BatchSize:    16,
		},
		Analog: AnalogParams{
			K:    8,
			Sims: 60,
			Eps:  1e-6,
		},
	}
}

// Train fits one model of the given kind on ds. seed drives every random
// choice the algorithm makes; the same seed and data give the same model.
func Train(kind Kind, params Params, ds *datasets.TrainingSet, seed int64) (Regressor, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, datasets.ErrEmptyTrainingSet
	}
	switch kind {
	case GradientBoosting:
		return trainBoosting(params.Boosting, ds.X(), ds.Y())
	case RandomForest:
		return trainForest(params.Forest, ds.X(), ds.Y(), seed)
	case Linear:
		return trainLinear(ds.X(), ds.Y())
	case MLP:
		return trainMLP(params.MLP, ds, seed)
	case Analog:
		return trainAnalog(params.Analog, ds.X(), ds.Y(), seed)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedModel, kind)
}

// validInput reports whether x can be fed to a model expecting dim features.
func validInput(x []float64, dim int) bool {
	if len(x) != dim {
		return false
	}
	for _, v := range x {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
