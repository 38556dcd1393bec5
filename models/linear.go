package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// linear is an ordinary least squares fit with an intercept.
type linear struct {
	intercept float64
	coef      []float64
}

func (m *linear) Predict(x []float64) float64 {
	if !validInput(x, len(m.coef)) {
		return math.NaN()
	}
	out := m.intercept
	for j, c := range m.coef {
		out += c * x[j]
	}
	return out
}

// trainLinear solves the normal equations, falling back to the SVD
// minimum-norm solution when X'X is singular (more features than rows, or
// collinear lags).
func trainLinear(x [][]float64, y []float64) (*linear, error) {
	n := len(x)
	p := len(x[0]) + 1

	X := mat.NewDense(n, p, nil)
	for i, row := range x {
		X.Set(i, 0, 1)
		for j, v := range row {
			X.Set(i, j+1, v)
		}
	}
	Y := mat.NewDense(n, 1, append([]float64(nil), y...))

	var B mat.Dense
	var xtx, xtxInv mat.Dense
	xtx.Mul(X.T(), X)
	if err := xtxInv.Inverse(&xtx); err == nil {
		var xty mat.Dense
		xty.Mul(X.T(), Y)
		B.Mul(&xtxInv, &xty)
	} else {
		var svd mat.SVD
		if ok := svd.Factorize(X, mat.SVDThin); !ok {
			return nil, fmt.Errorf("OLS failed: X'X singular and SVD factorization failed: %v", err)
		}
		rank := svd.Rank(1e-12)
		if rank == 0 {
			B = *mat.NewDense(p, 1, nil)
		} else {
			svd.SolveTo(&B, Y, rank)
		}
	}

	m := &linear{intercept: B.At(0, 0), coef: make([]float64, p-1)}
	for j := range m.coef {
		m.coef[j] = B.At(j+1, 0)
	}
	return m, nil
}
