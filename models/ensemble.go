package models

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/nowcast/datasets"
)

// Ensemble averages the predictions of independently trained members.
type Ensemble struct {
	Kind    Kind
	Members []Regressor
}

// NewEnsemble wraps already fitted members.
func NewEnsemble(kind Kind, members ...Regressor) *Ensemble {
	return &Ensemble{Kind: kind, Members: members}
}

// TrainEnsemble fits k members of kind on ds. Member i is trained with seed
// seed+i, so the result does not depend on how fits are scheduled. Fits run
// concurrently on up to workers goroutines (0 means GOMAXPROCS).
func TrainEnsemble(ctx context.Context, kind Kind, params Params, ds *datasets.TrainingSet, k int, seed int64, workers int) (*Ensemble, error) {
	if k < 1 {
		return nil, fmt.Errorf("ensemble size must be >= 1, got %d", k)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	members := make([]Regressor, k)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < k; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := Train(kind, params, ds, seed+int64(i))
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			members[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Ensemble{Kind: kind, Members: members}, nil
}

// Predict evaluates every member on x and returns the mean of the non-null
// outputs. If every member yields null the result is NaN.
func (e *Ensemble) Predict(x []float64) float64 {
	var (
		sum float64
		n   int
	)
	for _, m := range e.Members {
		v := m.Predict(x)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
