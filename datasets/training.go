package datasets

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ErrEmptyTrainingSet is returned when no complete rows are left to train on.
var ErrEmptyTrainingSet = errors.New("training set has no rows")

var _ Dataset = (*TrainingSet)(nil)

// TrainingSet is a complete-case design matrix with one regression label per
// row. It implements Dataset so trainers can pull minibatches, and yields
// gomlx tensors for gomlx training loops.
type TrainingSet struct {
	// BatchSize for yielding batches
	BatchSize int

	// Features are the column names of X, in order.
	Features []string

	// Target is the label column name.
	Target string

	dates []time.Time
	x     [][]float64
	y     []float64

	// order maps dataset positions onto rows; Shuffle permutes it.
	order []int
	// cursor is the next position Yield reads from.
	cursor int

	rand *rand.Rand
}

// NewTrainingSet takes every column of f except target as features and target
// as the label. Any null cell is an error: callers drop incomplete rows first.
func NewTrainingSet(f *Frame, target string) (*TrainingSet, error) {
	if !f.HasColumn(target) {
		return nil, fmt.Errorf("%w: target %q", ErrUnknownColumn, target)
	}
	if f.Len() == 0 {
		return nil, ErrEmptyTrainingSet
	}

	y, _ := f.Column(target)
	x, features := f.Matrix(target)
	for i := range x {
		if math.IsNaN(y[i]) {
			return nil, fmt.Errorf("row %s: null label", f.Date(i).Format(DateLayout))
		}
		for j, v := range x[i] {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("row %s: null feature %q", f.Date(i).Format(DateLayout), features[j])
			}
		}
	}

	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	return &TrainingSet{
		BatchSize: 32,
		Features:  features,
		Target:    target,
		dates:     append([]time.Time(nil), f.Dates()...),
		x:         x,
		y:         y,
		order:     order,
		rand:      rand.New(rand.NewSource(1)),
	}, nil
}

// Len returns the number of rows.
func (d *TrainingSet) Len() int { return len(d.x) }

// Dim returns the number of features.
func (d *TrainingSet) Dim() int { return len(d.Features) }

// X returns the design matrix, rows in date order. It must not be modified.
func (d *TrainingSet) X() [][]float64 { return d.x }

// Y returns the labels, in date order. It must not be modified.
func (d *TrainingSet) Y() []float64 { return d.y }

// Dates returns the row dates.
func (d *TrainingSet) Dates() []time.Time { return d.dates }

// Example returns the row at dataset position idx as float32 vectors.
func (d *TrainingSet) Example(idx int) (inputs []float32, labels []float32, err error) {
	if idx < 0 || idx >= len(d.order) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.order))
	}
	row := d.order[idx]
	inputs = make([]float32, len(d.x[row]))
	for j, v := range d.x[row] {
		inputs[j] = float32(v)
	}
	return inputs, []float32{float32(d.y[row])}, nil
}

// Batch reads multiple examples by their dataset positions.
func (d *TrainingSet) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for i, idx := range indices {
		in, la, err := d.Example(idx)
		if err != nil {
			return nil, nil, err
		}
		inputs[i] = in
		labels[i] = la
	}
	return inputs, labels, nil
}

// Shuffle permutes the order in which Example, Batch and Yield visit rows.
func (d *TrainingSet) Shuffle(seed int64) {
	d.rand.Seed(seed)
	d.rand.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
}

// Tensors reads a batch of examples and returns them as gomlx tensors.
func (d *TrainingSet) Tensors(indices []int) (inputs *tensors.Tensor, labels *tensors.Tensor, err error) {
	inData, labData, err := d.Batch(indices)
	if err != nil {
		return nil, nil, err
	}

	batch, err := MakeBatchFlat(inData, labData)
	if err != nil {
		return nil, nil, err
	}

	return batch.ToGomlxTensors()
}

// Name returns the name of the dataset
func (d *TrainingSet) Name() string {
	return "TrainingSet"
}

// Yield returns the next batch for the gomlx Dataset interface, or io.EOF
// once every row has been yielded since the last Restart.
func (d *TrainingSet) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.cursor >= len(d.order) {
		return nil, nil, nil, io.EOF
	}
	size := d.BatchSize
	if size <= 0 {
		size = len(d.order)
	}
	end := min(d.cursor+size, len(d.order))
	indices := make([]int, 0, end-d.cursor)
	for i := d.cursor; i < end; i++ {
		indices = append(indices, i)
	}
	in, la, err := d.Tensors(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	d.cursor = end
	return d.Name(), []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}

// Restart resets Yield to the first batch.
func (d *TrainingSet) Restart() error {
	d.cursor = 0
	return nil
}

// BatchFlat stores a batch in flat contiguous buffers
type BatchFlat struct {
	Inputs    []float32
	Labels    []float32
	BatchSize int
	InputDim  int
	LabelDim  int
}

// MakeBatchFlat flattens a batch into contiguous buffers
func MakeBatchFlat(inputs, labels [][]float32) (*BatchFlat, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels batch sizes don't match: %d != %d", len(inputs), len(labels))
	}
	if len(inputs) == 0 {
		return &BatchFlat{}, nil
	}

	batchSize := len(inputs)
	inputDim := len(inputs[0])
	labelDim := len(labels[0])

	flatInputs := make([]float32, batchSize*inputDim)
	flatLabels := make([]float32, batchSize*labelDim)

	for i := range batchSize {
		if len(inputs[i]) != inputDim {
			return nil, fmt.Errorf("inconsistent input dimensions at example %d: expected %d, got %d",
				i, inputDim, len(inputs[i]))
		}
		if len(labels[i]) != labelDim {
			return nil, fmt.Errorf("inconsistent label dimensions at example %d: expected %d, got %d",
				i, labelDim, len(labels[i]))
		}
		copy(flatInputs[i*inputDim:], inputs[i])
		copy(flatLabels[i*labelDim:], labels[i])
	}

	return &BatchFlat{
		Inputs:    flatInputs,
		Labels:    flatLabels,
		BatchSize: batchSize,
		InputDim:  inputDim,
		LabelDim:  labelDim,
	}, nil
}

// ToGomlxTensors converts BatchFlat to gomlx tensors
func (b *BatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.BatchSize == 0 || b.InputDim == 0 || b.LabelDim == 0 {
		inT := tensors.FromAnyValue(make([][]float32, 0))
		labT := tensors.FromAnyValue(make([][]float32, 0))
		return inT, labT, nil
	}
	inputs := make([][]float32, b.BatchSize)
	labels := make([][]float32, b.BatchSize)
	for i := range b.BatchSize {
		inputs[i] = b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
		labels[i] = b.Labels[i*b.LabelDim : (i+1)*b.LabelDim]
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(labels), nil
}
