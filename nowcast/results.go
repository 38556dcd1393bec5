package nowcast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/nowcast/models"
)

// Results is the prediction table of a run: one column per horizon, one row
// per evaluation date, with the realised target alongside.
type Results struct {
	RunID  string
	Seed   int64
	Model  models.Kind
	Target string

	Horizons []int
	Dates    []time.Time
	Actuals  []float64
	// Predictions maps a horizon to its nowcasts, aligned with Dates. A
	// failed date holds NaN.
	Predictions map[int][]float64

	Failures []*DateError
}

func newResults(runID string, cfg Config, dates []time.Time, actuals []float64) *Results {
	r := &Results{
		RunID:       runID,
		Seed:        cfg.Seed,
		Model:       cfg.Model,
		Target:      cfg.Target,
		Horizons:    append([]int(nil), cfg.Horizons...),
		Dates:       dates,
		Actuals:     actuals,
		Predictions: make(map[int][]float64, len(cfg.Horizons)),
	}
	for _, h := range r.Horizons {
		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		r.Predictions[h] = col
	}
	return r
}

// Len returns the number of evaluation dates.
func (r *Results) Len() int { return len(r.Dates) }

// Prediction returns the nowcast for horizon h at date index i. ok is false
// when h was not evaluated or i is out of range.
func (r *Results) Prediction(h, i int) (v float64, ok bool) {
	col, found := r.Predictions[h]
	if !found || i < 0 || i >= len(col) {
		return math.NaN(), false
	}
	return col[i], true
}

// Column returns a copy of the nowcasts for horizon h, or nil if h was not
// evaluated.
func (r *Results) Column(h int) []float64 {
	col, ok := r.Predictions[h]
	if !ok {
		return nil
	}
	return append([]float64(nil), col...)
}

// Metric summarises the nowcast errors of one horizon over the dates where
// both the prediction and the actual are present.
type Metric struct {
	Horizon int
	N       int
	RMSE    float64
	MAE     float64
	// Bias is the mean of prediction minus actual.
	Bias float64
}

// Metrics returns one Metric per horizon, in the order of Horizons.
func (r *Results) Metrics() []Metric {
	out := make([]Metric, 0, len(r.Horizons))
	for _, h := range r.Horizons {
		var errs []float64
		for i, p := range r.Predictions[h] {
			if math.IsNaN(p) || math.IsNaN(r.Actuals[i]) {
				continue
			}
			errs = append(errs, p-r.Actuals[i])
		}
		m := Metric{Horizon: h, N: len(errs)}
		if m.N == 0 {
			m.RMSE, m.MAE, m.Bias = math.NaN(), math.NaN(), math.NaN()
		} else {
			n := float64(m.N)
			m.RMSE = floats.Norm(errs, 2) / math.Sqrt(n)
			m.MAE = floats.Norm(errs, 1) / n
			m.Bias = stat.Mean(errs, nil)
		}
		out = append(out, m)
	}
	return out
}
