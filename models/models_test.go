package models

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"XGBoost", GradientBoosting},
		{"gbt", GradientBoosting},
		{"RandomForest", RandomForest},
		{"rf", RandomForest},
		{"OLS", Linear},
		{"linear", Linear},
		{"MLP", MLP},
		{"Analog", Analog},
		{"knn", Analog},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseKind("LSTM"); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}

	var k Kind
	if err := k.UnmarshalText([]byte("randomforest")); err != nil || k != RandomForest {
		t.Fatalf("UnmarshalText: %v %v", k, err)
	}
}

func TestTrainUnsupportedKind(t *testing.T) {
	x, y := linearData(10)
	_, err := Train(Kind(99), DefaultParams(), newTrainingSet(t, x, y), 1)
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}
}

func TestDefaultParamsProfiles(t *testing.T) {
	p := DefaultParams()
	b := p.Boosting
	if b.Rounds != 500 || b.LearningRate != 0.1 || b.MaxDepth != 3 || b.Lambda != 1 || b.Alpha != 0 {
		t.Fatalf("unexpected boosting profile %+v", b)
	}
	f := p.Forest
	if f.Trees != 100 || f.MaxDepth != 0 || f.MinSplitFraction != 0.01 || f.MinLeafFraction != 0.01 || f.MaxFeatures != SqrtFeatures {
		t.Fatalf("unexpected forest profile %+v", f)
	}
}

// stepData has y = 5 when x0 > 0.5 else -5, plus a noise feature.
func stepData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = []float64{rng.Float64(), rng.Float64()}
		if x[i][0] > 0.5 {
			y[i] = 5
		} else {
			y[i] = -5
		}
	}
	return x, y
}

func TestBoostingFitsStep(t *testing.T) {
	x, y := stepData(200, 1)
	m, err := Train(GradientBoosting, DefaultParams(), newTrainingSet(t, x, y), 0)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if e := mse(m, x, y); e > 0.01 {
		t.Fatalf("boosted trees should fit a step almost exactly, mse=%v", e)
	}
	if got := m.Predict([]float64{0.9, 0.1}); math.Abs(got-5) > 0.5 {
		t.Fatalf("expected ~5 above the step, got %v", got)
	}
	if !math.IsNaN(m.Predict([]float64{0.9})) {
		t.Fatalf("expected NaN for wrong input length")
	}
}

func TestBoostingZeroRoundsPredictsMean(t *testing.T) {
	x, y := stepData(50, 2)
	p := DefaultParams()
	p.Boosting.Rounds = 0
	m, err := Train(GradientBoosting, p, newTrainingSet(t, x, y), 0)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if got, want := m.Predict(x[0]), stat.Mean(y, nil); math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected base score %v, got %v", want, got)
	}
}

func TestBoostingRejectsBadParams(t *testing.T) {
	x, y := stepData(10, 3)
	p := DefaultParams()
	p.Boosting.LearningRate = 0
	if _, err := Train(GradientBoosting, p, newTrainingSet(t, x, y), 0); err == nil {
		t.Fatalf("expected error for zero learning rate")
	}
}

func TestForestFitsStepAndIsSeeded(t *testing.T) {
	x, y := stepData(200, 4)
	ds := newTrainingSet(t, x, y)

	a, err := Train(RandomForest, DefaultParams(), ds, 11)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if e := mse(a, x, y); e > 2 {
		t.Fatalf("forest should fit a step closely, mse=%v", e)
	}

	b, err := Train(RandomForest, DefaultParams(), ds, 11)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	probe := []float64{0.51, 0.3}
	if a.Predict(probe) != b.Predict(probe) {
		t.Fatalf("same seed must reproduce the same forest")
	}
}

func TestForestLimits(t *testing.T) {
	p := DefaultParams().Forest
	tests := []struct {
		n                 int
		wantSplit, wantLf int
	}{
		{50, 2, 1},
		{101, 4, 2},
		{250, 6, 3},
	}
	for _, tt := range tests {
		split, leaf := p.limits(tt.n)
		if split != tt.wantSplit || leaf != tt.wantLf {
			t.Errorf("limits(%d) = %d,%d want %d,%d", tt.n, split, leaf, tt.wantSplit, tt.wantLf)
		}
	}
	if got := SqrtFeatures.count(20); got != 4 {
		t.Errorf("sqrt of 20 features should be 4, got %d", got)
	}
	if got := SqrtFeatures.count(1); got != 1 {
		t.Errorf("at least one feature is always considered, got %d", got)
	}
}

func TestForestConstantLabels(t *testing.T) {
	x, _ := stepData(20, 5)
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 3
	}
	m, err := Train(RandomForest, DefaultParams(), newTrainingSet(t, x, y), 1)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if got := m.Predict(x[0]); got != 3 {
		t.Fatalf("constant labels should predict 3, got %v", got)
	}
}

func TestLinearRecoversCoefficients(t *testing.T) {
	x, y := linearData(60)
	m, err := Train(Linear, DefaultParams(), newTrainingSet(t, x, y), 0)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	lin := m.(*linear)
	if math.Abs(lin.intercept+1) > 1e-8 || math.Abs(lin.coef[0]-2) > 1e-8 || math.Abs(lin.coef[1]-0.5) > 1e-8 {
		t.Fatalf("unexpected fit intercept=%v coef=%v", lin.intercept, lin.coef)
	}
}

func TestLinearSingularFallsBackToSVD(t *testing.T) {
	// duplicated column makes X'X singular
	n := 20
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		v := float64(i)
		x[i] = []float64{v, v}
		y[i] = 3 * v
	}
	m, err := Train(Linear, DefaultParams(), newTrainingSet(t, x, y), 0)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if got := m.Predict([]float64{4, 4}); math.Abs(got-12) > 1e-6 {
		t.Fatalf("expected 12, got %v", got)
	}
}

// constant is a Regressor returning a fixed value.
type constant float64

func (c constant) Predict([]float64) float64 { return float64(c) }

func TestEnsemblePredict(t *testing.T) {
	nan := constant(math.NaN())
	tests := []struct {
		name    string
		members []Regressor
		want    float64
	}{
		{"mean", []Regressor{constant(1), constant(2), constant(6)}, 3},
		{"ignores null members", []Regressor{constant(1), nan, constant(3)}, 2},
		{"single member", []Regressor{constant(7.5)}, 7.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewEnsemble(Linear, tt.members...).Predict(nil); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}

	if got := NewEnsemble(Linear, nan, nan).Predict(nil); !math.IsNaN(got) {
		t.Fatalf("all-null ensemble should be NaN, got %v", got)
	}
}

func TestEnsembleOfOneEqualsMember(t *testing.T) {
	x, y := stepData(80, 6)
	ds := newTrainingSet(t, x, y)
	p := DefaultParams()
	p.Forest.Trees = 10

	e, err := TrainEnsemble(context.Background(), RandomForest, p, ds, 1, 21, 0)
	if err != nil {
		t.Fatalf("TrainEnsemble: %v", err)
	}
	single, err := Train(RandomForest, p, ds, 21)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	for i := range x {
		if e.Predict(x[i]) != single.Predict(x[i]) {
			t.Fatalf("K=1 ensemble differs from its member at row %d", i)
		}
	}
}

func TestTrainEnsembleDeterministicAcrossWorkers(t *testing.T) {
	x, y := stepData(60, 7)
	ds := newTrainingSet(t, x, y)
	p := DefaultParams()
	p.Forest.Trees = 5

	serial, err := TrainEnsemble(context.Background(), RandomForest, p, ds, 4, 100, 1)
	if err != nil {
		t.Fatalf("TrainEnsemble: %v", err)
	}
	parallel, err := TrainEnsemble(context.Background(), RandomForest, p, ds, 4, 100, 4)
	if err != nil {
		t.Fatalf("TrainEnsemble: %v", err)
	}
	if len(serial.Members) != 4 {
		t.Fatalf("expected 4 members, got %d", len(serial.Members))
	}
	for i := range x {
		if serial.Predict(x[i]) != parallel.Predict(x[i]) {
			t.Fatalf("scheduling changed the ensemble at row %d", i)
		}
	}
}

func TestTrainEnsembleErrors(t *testing.T) {
	x, y := stepData(10, 8)
	ds := newTrainingSet(t, x, y)
	if _, err := TrainEnsemble(context.Background(), RandomForest, DefaultParams(), ds, 0, 1, 0); err == nil {
		t.Fatalf("expected error for k=0")
	}
	if _, err := TrainEnsemble(context.Background(), Kind(0), DefaultParams(), ds, 2, 1, 0); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := TrainEnsemble(ctx, Linear, DefaultParams(), ds, 2, 1, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
