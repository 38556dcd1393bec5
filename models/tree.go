package models

import (
	"math"
	"sort"
)

// node is one vertex of a binary regression tree. Leaves have feature -1.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

// tree is a regression tree stored as a flat node slice rooted at index 0.
type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.feature < 0 {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

func (t *tree) addLeaf(value float64) int {
	t.nodes = append(t.nodes, node{feature: -1, value: value})
	return len(t.nodes) - 1
}

// split is a candidate partition of a node's rows.
type split struct {
	feature   int
	threshold float64
	gain      float64
	ok        bool
}

// splitter searches exact greedy splits over presorted feature columns. Each
// row carries a first-order statistic g and a weight h; a partition is scored
// as score(GL,HL) + score(GR,HR) - score(G,H). For least-squares CART g is
// the label and h is 1; for second-order boosting they are the gradient and
// hessian.
type splitter struct {
	x      [][]float64
	sorted [][]int

	// minChild is the smallest total weight allowed on either side.
	minChild float64
	score    func(g, h float64) float64

	inNode []bool
	buf    []int
}

func newSplitter(x [][]float64, minChild float64, score func(g, h float64) float64) *splitter {
	n := len(x)
	dim := 0
	if n > 0 {
		dim = len(x[0])
	}
	sorted := make([][]int, dim)
	for f := 0; f < dim; f++ {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })
		sorted[f] = order
	}
	return &splitter{
		x:        x,
		sorted:   sorted,
		minChild: minChild,
		score:    score,
		inNode:   make([]bool, n),
		buf:      make([]int, 0, n),
	}
}

func (s *splitter) dim() int { return len(s.sorted) }

// enter marks rows as the current node.
func (s *splitter) enter(rows []int) {
	for _, r := range rows {
		s.inNode[r] = true
	}
}

// leave clears the marks set by enter.
func (s *splitter) leave(rows []int) {
	for _, r := range rows {
		s.inNode[r] = false
	}
}

// evalFeature returns the best split of the current node on feature f.
// G and H are the node totals.
func (s *splitter) evalFeature(f int, g, h []float64, G, H float64) split {
	s.buf = s.buf[:0]
	for _, r := range s.sorted[f] {
		if s.inNode[r] {
			s.buf = append(s.buf, r)
		}
	}
	best := split{feature: f, gain: math.Inf(-1)}
	parent := s.score(G, H)

	var gl, hl float64
	for k := 0; k < len(s.buf)-1; k++ {
		r := s.buf[k]
		gl += g[r]
		hl += h[r]
		v, next := s.x[r][f], s.x[s.buf[k+1]][f]
		if v == next {
			continue
		}
		hr := H - hl
		if hl < s.minChild || hr < s.minChild {
			continue
		}
		gain := s.score(gl, hl) + s.score(G-gl, hr) - parent
		if gain > best.gain {
			thr := v + (next-v)/2
			if thr >= next {
				thr = v
			}
			best = split{feature: f, threshold: thr, gain: gain, ok: true}
		}
	}
	return best
}

// partition splits rows by the chosen threshold, preserving order.
func (s *splitter) partition(rows []int, sp split) (left, right []int) {
	for _, r := range rows {
		if s.x[r][sp.feature] <= sp.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	return left, right
}

func sums(rows []int, g, h []float64) (G, H float64) {
	for _, r := range rows {
		G += g[r]
		H += h[r]
	}
	return G, H
}
