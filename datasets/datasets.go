// Package datasets holds the in-memory data structures the nowcasting engine
// works on.
//
// Layout and intended usage:
//
// Frame
//   - A date-keyed table with one row per period and one float64 column per
//     tracked series. Null cells are math.NaN().
//   - The date column is the join key for every operation. Dates are unique
//     and strictly increasing.
//
// Metadata
//   - One record per series: identifier, reporting frequency and publication
//     lag in months. Drives vintage simulation.
//
// TrainingSet
//   - A flattened, complete-case design matrix plus label vector, ready to be
//     handed to a model trainer. It implements Dataset so trainers can pull
//     minibatches from it, and can emit gomlx tensors.
package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// Dataset is implemented by anything a trainer can pull examples from.
// Inputs are float32 feature vectors and labels are length-1 float32 vectors
// holding the regression target.
type Dataset interface {
	Len() int
	Example(i int) (inputs []float32, labels []float32, err error)
	Batch(indices []int) (inputs [][]float32, labels [][]float32, err error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}
