package models

import (
	"fmt"
	"math"
	"math/rand"
)

// FeatureSubset controls how many features a forest considers per split.
type FeatureSubset int

const (
	SqrtFeatures FeatureSubset = iota
	Log2Features
	AllFeatures
)

func (f FeatureSubset) count(dim int) int {
	var k int
	switch f {
	case SqrtFeatures:
		k = int(math.Sqrt(float64(dim)))
	case Log2Features:
		k = int(math.Log2(float64(dim)))
	default:
		k = dim
	}
	return max(1, min(k, dim))
}

// ForestParams configures a random forest of least-squares CART trees grown
// on the full training set (no bootstrap resampling).
type ForestParams struct {
	Trees int
	// MaxDepth of 0 means unlimited.
	MaxDepth int
	// MinSplitFraction and MinLeafFraction are fractions of the training
	// rows, rounded up.
	MinSplitFraction float64
	MinLeafFraction  float64
	MaxFeatures      FeatureSubset
}

func (p ForestParams) validate() error {
	switch {
	case p.Trees < 1:
		return fmt.Errorf("forest needs at least one tree, got %d", p.Trees)
	case p.MaxDepth < 0:
		return fmt.Errorf("forest max depth must be >= 0, got %d", p.MaxDepth)
	case p.MinSplitFraction < 0 || p.MinSplitFraction > 1:
		return fmt.Errorf("min split fraction must be in [0,1], got %v", p.MinSplitFraction)
	case p.MinLeafFraction < 0 || p.MinLeafFraction > 1:
		return fmt.Errorf("min leaf fraction must be in [0,1], got %v", p.MinLeafFraction)
	}
	return nil
}

// limits turns the fractional limits into row counts for n training rows.
func (p ForestParams) limits(n int) (minSplit, minLeaf int) {
	minLeaf = max(1, int(math.Ceil(p.MinLeafFraction*float64(n))))
	minSplit = max(2, int(math.Ceil(p.MinSplitFraction*float64(n))), 2*minLeaf)
	return minSplit, minLeaf
}

type forest struct {
	trees []*tree
	dim   int
}

func (m *forest) Predict(x []float64) float64 {
	if !validInput(x, m.dim) {
		return math.NaN()
	}
	var sum float64
	for _, t := range m.trees {
		sum += t.predict(x)
	}
	return sum / float64(len(m.trees))
}

type forestBuilder struct {
	s        *splitter
	rng      *rand.Rand
	y        []float64
	ones     []float64
	maxDepth int
	minSplit int
	k        int
}

func trainForest(p ForestParams, x [][]float64, y []float64, seed int64) (*forest, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	n := len(y)
	minSplit, minLeaf := p.limits(n)

	// Least-squares gain up to a constant: GL²/HL + GR²/HR - G²/H with g=y, h=1.
	score := func(g, h float64) float64 { return g * g / h }

	b := &forestBuilder{
		s:        newSplitter(x, float64(minLeaf), score),
		rng:      rand.New(rand.NewSource(seed)),
		y:        y,
		ones:     make([]float64, n),
		maxDepth: p.MaxDepth,
		minSplit: minSplit,
	}
	for i := range b.ones {
		b.ones[i] = 1
	}
	b.k = p.MaxFeatures.count(b.s.dim())

	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	m := &forest{dim: b.s.dim()}
	for i := 0; i < p.Trees; i++ {
		t := &tree{}
		b.grow(t, rows, 0)
		m.trees = append(m.trees, t)
	}
	return m, nil
}

func (b *forestBuilder) grow(t *tree, rows []int, depth int) int {
	G, H := sums(rows, b.y, b.ones)
	mean := G / H

	if len(rows) < b.minSplit || (b.maxDepth > 0 && depth >= b.maxDepth) || pure(rows, b.y) {
		return t.addLeaf(mean)
	}

	// Visit features in random order and stop once k have been inspected and
	// a valid split exists; keep going past k when none of them could split.
	b.s.enter(rows)
	best := split{gain: math.Inf(-1)}
	for inspected, f := range b.rng.Perm(b.s.dim()) {
		if inspected >= b.k && best.ok {
			break
		}
		if cand := b.s.evalFeature(f, b.y, b.ones, G, H); cand.ok && cand.gain > best.gain {
			best = cand
		}
	}
	b.s.leave(rows)

	if !best.ok {
		return t.addLeaf(mean)
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{feature: best.feature, threshold: best.threshold})
	left, right := b.s.partition(rows, best)
	l := b.grow(t, left, depth+1)
	r := b.grow(t, right, depth+1)
	t.nodes[idx].left = l
	t.nodes[idx].right = r
	return idx
}

// pure reports whether all labels of rows are equal.
func pure(rows []int, y []float64) bool {
	for _, r := range rows[1:] {
		if y[r] != y[rows[0]] {
			return false
		}
	}
	return true
}
