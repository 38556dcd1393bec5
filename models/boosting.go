package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minSplitLoss is the smallest loss reduction that justifies a split.
const minSplitLoss = 1e-6

// BoostingParams configures gradient-boosted regression trees fitted with a
// second-order (Newton) objective on squared error.
type BoostingParams struct {
	Rounds         int
	LearningRate   float64
	MaxDepth       int
	Lambda         float64 // L2 penalty on leaf weights
	Alpha          float64 // L1 penalty on leaf weights
	MinChildWeight float64
}

func (p BoostingParams) validate() error {
	switch {
	case p.Rounds < 0:
		return fmt.Errorf("boosting rounds must be >= 0, got %d", p.Rounds)
	case p.LearningRate <= 0:
		return fmt.Errorf("boosting learning rate must be > 0, got %v", p.LearningRate)
	case p.MaxDepth < 0:
		return fmt.Errorf("boosting max depth must be >= 0, got %d", p.MaxDepth)
	case p.Lambda < 0 || p.Alpha < 0:
		return fmt.Errorf("boosting penalties must be >= 0, got lambda=%v alpha=%v", p.Lambda, p.Alpha)
	}
	return nil
}

// boostedTrees is an additive model: base + sum of tree outputs. The
// learning rate is folded into the leaf values.
type boostedTrees struct {
	base  float64
	trees []*tree
	dim   int
}

func (m *boostedTrees) Predict(x []float64) float64 {
	if !validInput(x, m.dim) {
		return math.NaN()
	}
	out := m.base
	for _, t := range m.trees {
		out += t.predict(x)
	}
	return out
}

// softThreshold applies the L1 penalty to a gradient sum.
func softThreshold(g, alpha float64) float64 {
	switch {
	case g > alpha:
		return g - alpha
	case g < -alpha:
		return g + alpha
	}
	return 0
}

func trainBoosting(p BoostingParams, x [][]float64, y []float64) (*boostedTrees, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	n := len(y)
	m := &boostedTrees{
		base: stat.Mean(y, nil),
		dim:  len(x[0]),
	}

	score := func(g, h float64) float64 {
		t := softThreshold(g, p.Alpha)
		return t * t / (h + p.Lambda)
	}
	s := newSplitter(x, p.MinChildWeight, score)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range hess {
		hess[i] = 1
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	for round := 0; round < p.Rounds; round++ {
		floats.SubTo(grad, pred, y)

		t := &tree{}
		growBoosted(t, s, p, rows, grad, hess, 0)
		m.trees = append(m.trees, t)

		for i := range pred {
			pred[i] += t.predict(x[i])
		}
	}
	return m, nil
}

func growBoosted(t *tree, s *splitter, p BoostingParams, rows []int, g, h []float64, depth int) int {
	G, H := sums(rows, g, h)
	leaf := -softThreshold(G, p.Alpha) / (H + p.Lambda) * p.LearningRate

	if depth >= p.MaxDepth || len(rows) < 2 {
		return t.addLeaf(leaf)
	}

	s.enter(rows)
	best := split{gain: math.Inf(-1)}
	for f := 0; f < s.dim(); f++ {
		if cand := s.evalFeature(f, g, h, G, H); cand.ok && cand.gain > best.gain {
			best = cand
		}
	}
	s.leave(rows)

	if !best.ok || best.gain/2 < minSplitLoss {
		return t.addLeaf(leaf)
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{feature: best.feature, threshold: best.threshold})
	left, right := s.partition(rows, best)
	l := growBoosted(t, s, p, left, g, h, depth+1)
	r := growBoosted(t, s, p, right, g, h, depth+1)
	t.nodes[idx].left = l
	t.nodes[idx].right = r
	return idx
}
