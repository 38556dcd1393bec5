package models

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AnalogParams configures the nearest-neighbour analog regressor. A
// prediction finds the K training rows closest to the input in standardised
// feature space, then draws Sims of them with probability inversely
// proportional to their distance and averages the drawn labels.
type AnalogParams struct {
	K    int
	Sims int
	// Eps keeps the weight of an exact match finite.
	Eps float64
}

func (p AnalogParams) validate() error {
	switch {
	case p.K < 1:
		return fmt.Errorf("analog k must be >= 1, got %d", p.K)
	case p.Sims < 1:
		return fmt.Errorf("analog sims must be >= 1, got %d", p.Sims)
	case p.Eps <= 0:
		return fmt.Errorf("analog eps must be > 0, got %v", p.Eps)
	}
	return nil
}

type analog struct {
	params AnalogParams
	seed   int64

	x         [][]float64
	y         []float64
	mean, std []float64
}

// neighbor holds a training row candidate.
type neighbor struct {
	idx      int
	distance float64
}

func trainAnalog(p AnalogParams, x [][]float64, y []float64, seed int64) (*analog, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	dim := len(x[0])
	m := &analog{
		params: p,
		seed:   seed,
		y:      append([]float64(nil), y...),
		mean:   make([]float64, dim),
		std:    make([]float64, dim),
	}
	col := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		m.mean[j], m.std[j] = stat.PopMeanStdDev(col, nil)
		if m.std[j] == 0 || math.IsNaN(m.std[j]) {
			m.std[j] = 1
		}
	}
	m.x = make([][]float64, len(x))
	for i, row := range x {
		m.x[i] = m.scale(row)
	}
	return m, nil
}

func (m *analog) scale(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - m.mean[j]) / m.std[j]
	}
	return out
}

// Predict is deterministic for a given model: every call replays the draws
// from the model's seed.
func (m *analog) Predict(x []float64) float64 {
	if !validInput(x, len(m.mean)) {
		return math.NaN()
	}
	neighbors := m.nearest(m.scale(x))

	weights := make([]float64, len(neighbors))
	for i, nb := range neighbors {
		weights[i] = 1 / (nb.distance + m.params.Eps)
	}
	floats.CumSum(weights, weights)
	total := weights[len(weights)-1]

	rng := rand.New(rand.NewSource(m.seed))
	var sum float64
	for s := 0; s < m.params.Sims; s++ {
		target := rng.Float64() * total
		choice := sort.SearchFloat64s(weights, target)
		if choice >= len(neighbors) {
			choice = len(neighbors) - 1
		}
		sum += m.y[neighbors[choice].idx]
	}
	return sum / float64(m.params.Sims)
}

// nearest performs a linear scan and returns up to K rows sorted by
// increasing distance. Ties keep training order.
func (m *analog) nearest(x []float64) []neighbor {
	candidates := make([]neighbor, len(m.x))
	for i, row := range m.x {
		candidates[i] = neighbor{idx: i, distance: floats.Distance(x, row, 2)}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	return candidates[:min(m.params.K, len(candidates))]
}
