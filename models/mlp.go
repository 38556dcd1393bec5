package models

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/nowcast/datasets"
)

// MLPParams holds configurable hyperparameters for the MLP model and training.
type MLPParams struct {
	// HiddenSizes is the list of hidden layer sizes. Example: []int{64, 32}
	// If empty, a single hidden layer of size 64 will be used.
	HiddenSizes []int

	// LearningRate used by the SGD updates.
	LearningRate float64

	// Epochs to train for (default if 0 is 10).
	Epochs int

	// BatchSize for mini-batch updates (default if 0 is 8).
	BatchSize int
}

// batcher is the minimal interface the trainer requires from a dataset.
type batcher interface {
	Len() int
	// Batch returns inputs and labels for the provided indices. Labels are
	// length 1.
	Batch(indices []int) ([][]float32, [][]float32, error)
}

// mlp is a small ReLU network with a single linear output, trained with
// mini-batch SGD on mean squared error. Inputs and the label are
// standardised with statistics from the training set.
type mlp struct {
	params MLPParams

	// layerSizes includes input size, hidden sizes, then output size.
	layerSizes []int

	// weights[l] is a matrix of shape [out][in] for layer l -> l+1
	weights [][][]float32

	// biases[l] is a vector of length out for layer l -> l+1
	biases [][]float32

	xMean, xStd []float64
	yMean, yStd float64

	// rng used for weight initialization and shuffling
	rng *rand.Rand
}

// newMLP creates a network for inputDim features with small random weights.
func newMLP(p MLPParams, inputDim int, seed int64) (*mlp, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("mlp input dimension must be > 0, got %d", inputDim)
	}
	if len(p.HiddenSizes) == 0 {
		p.HiddenSizes = []int{64}
	}
	if p.LearningRate == 0 {
		p.LearningRate = 0.001
	}
	if p.Epochs == 0 {
		p.Epochs = 10
	}
	if p.BatchSize == 0 {
		p.BatchSize = 8
	}

	m := &mlp{
		params: p,
		rng:    rand.New(rand.NewSource(seed)),
	}

	const outputDim = 1
	sizes := make([]int, 0, 2+len(p.HiddenSizes))
	sizes = append(sizes, inputDim)
	sizes = append(sizes, p.HiddenSizes...)
	sizes = append(sizes, outputDim)
	m.layerSizes = sizes

	L := len(sizes) - 1
	m.weights = make([][][]float32, L)
	m.biases = make([][]float32, L)
	for l := 0; l < L; l++ {
		in := sizes[l]
		out := sizes[l+1]
		// Xavier/Glorot uniform initialization
		limit := float32(math.Sqrt(6.0 / float64(in+out)))
		mat := make([][]float32, out)
		for j := 0; j < out; j++ {
			row := make([]float32, in)
			for i := 0; i < in; i++ {
				row[i] = (m.rng.Float32()*2.0 - 1.0) * limit * 0.5
			}
			mat[j] = row
		}
		m.weights[l] = mat
		m.biases[l] = make([]float32, out)
	}
	return m, nil
}

func trainMLP(p MLPParams, ds *datasets.TrainingSet, seed int64) (*mlp, error) {
	m, err := newMLP(p, ds.Dim(), seed)
	if err != nil {
		return nil, err
	}
	m.fitScaling(ds.X(), ds.Y())
	if err := m.trainWithDataset(&scaledDataset{base: ds, m: m}); err != nil {
		return nil, err
	}
	return m, nil
}

// fitScaling records per-column mean and standard deviation. Constant
// columns get a unit scale.
func (m *mlp) fitScaling(x [][]float64, y []float64) {
	dim := m.layerSizes[0]
	m.xMean = make([]float64, dim)
	m.xStd = make([]float64, dim)
	col := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		m.xMean[j], m.xStd[j] = stat.PopMeanStdDev(col, nil)
		if m.xStd[j] == 0 || math.IsNaN(m.xStd[j]) {
			m.xStd[j] = 1
		}
	}
	m.yMean, m.yStd = stat.PopMeanStdDev(y, nil)
	if m.yStd == 0 || math.IsNaN(m.yStd) {
		m.yStd = 1
	}
}

func (m *mlp) scaleInput(x []float64) []float32 {
	out := make([]float32, len(x))
	for j, v := range x {
		out[j] = float32((v - m.xMean[j]) / m.xStd[j])
	}
	return out
}

// scaledDataset presents a training set with standardised inputs and label.
type scaledDataset struct {
	base *datasets.TrainingSet
	m    *mlp
}

func (s *scaledDataset) Len() int { return s.base.Len() }

func (s *scaledDataset) Batch(indices []int) ([][]float32, [][]float32, error) {
	x, y := s.base.X(), s.base.Y()
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(x) {
			return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(x))
		}
		inputs[i] = s.m.scaleInput(x[idx])
		labels[i] = []float32{float32((y[idx] - s.m.yMean) / s.m.yStd)}
	}
	return inputs, labels, nil
}

// Predict runs a forward pass on x and returns the prediction on the label's
// original scale.
func (m *mlp) Predict(x []float64) float64 {
	if !validInput(x, m.layerSizes[0]) {
		return math.NaN()
	}
	_, acts, err := m.forwardSingle(m.scaleInput(x))
	if err != nil {
		return math.NaN()
	}
	out := acts[len(acts)-1][0]
	return float64(out)*m.yStd + m.yMean
}

// activationReLU applies ReLU in-place over the slice.
func activationReLU(x []float32) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		}
	}
}

// activationReLUDeriv returns elementwise derivative of ReLU applied to preact.
func activationReLUDeriv(preact []float32) []float32 {
	d := make([]float32, len(preact))
	for i := range preact {
		if preact[i] > 0 {
			d[i] = 1.0
		}
	}
	return d
}

// forwardSingle performs a forward pass for a single input vector, returning:
// - preActs: pre-activation vectors per layer (len = L)
// - acts: activation vectors per layer (len = L+1, acts[0] = input)
func (m *mlp) forwardSingle(input []float32) (preActs [][]float32, acts [][]float32, err error) {
	if len(input) != m.layerSizes[0] {
		return nil, nil, errors.New("input has incorrect dimension")
	}
	L := len(m.weights)
	acts = make([][]float32, L+1)
	acts[0] = make([]float32, len(input))
	copy(acts[0], input)

	preActs = make([][]float32, L)
	for l := 0; l < L; l++ {
		inVec := acts[l]
		outDim := len(m.biases[l])
		pre := make([]float32, outDim)
		W := m.weights[l]
		b := m.biases[l]
		for j := 0; j < outDim; j++ {
			sum := float32(0.0)
			row := W[j]
			for i := range inVec {
				sum += row[i] * inVec[i]
			}
			pre[j] = sum + b[j]
		}
		preActs[l] = pre

		// ReLU for hidden, linear for last layer
		act := make([]float32, outDim)
		copy(act, pre)
		if l < L-1 {
			activationReLU(act)
		}
		acts[l+1] = act
	}
	return preActs, acts, nil
}

// trainWithDataset runs mini-batch SGD with ReLU activations and a
// mean-squared-error loss, averaging gradients over each minibatch.
func (m *mlp) trainWithDataset(ds batcher) error {
	if ds == nil {
		return errors.New("dataset is nil")
	}
	n := ds.Len()
	if n == 0 {
		return errors.New("dataset has no examples")
	}

	epochs := m.params.Epochs
	batchSize := m.params.BatchSize
	lr := float32(m.params.LearningRate)

	indices := make([]int, n)
	for i := 0; i < n; i++ {
		indices[i] = i
	}

	L := len(m.weights)
	for ep := 0; ep < epochs; ep++ {
		m.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		for bstart := 0; bstart < n; bstart += batchSize {
			bend := min(bstart+batchSize, n)
			inputs, labels, err := ds.Batch(indices[bstart:bend])
			if err != nil {
				return err
			}
			batchN := len(inputs)
			if batchN == 0 {
				continue
			}

			gradW := make([][][]float32, L)
			gradB := make([][]float32, L)
			for l := 0; l < L; l++ {
				outDim := len(m.biases[l])
				inDim := len(m.weights[l][0])
				gradW[l] = make([][]float32, outDim)
				for j := 0; j < outDim; j++ {
					gradW[l][j] = make([]float32, inDim)
				}
				gradB[l] = make([]float32, outDim)
			}

			for ex := 0; ex < batchN; ex++ {
				preacts, acts, err := m.forwardSingle(inputs[ex])
				if err != nil {
					return err
				}

				// dLoss/dOutput = 2*(pred - label)
				outAct := acts[len(acts)-1]
				delta := make([]float32, len(outAct))
				for j := range outAct {
					delta[j] = 2.0 * (outAct[j] - labels[ex][j])
				}

				for l := L - 1; l >= 0; l-- {
					inAct := acts[l]
					outDim := len(delta)
					for j := 0; j < outDim; j++ {
						gradB[l][j] += delta[j]
						for i := range inAct {
							gradW[l][j][i] += delta[j] * inAct[i]
						}
					}

					if l > 0 {
						prevLen := len(m.weights[l][0])
						newDelta := make([]float32, prevLen)
						for i := 0; i < prevLen; i++ {
							sum := float32(0.0)
							for j := 0; j < outDim; j++ {
								sum += m.weights[l][j][i] * delta[j]
							}
							newDelta[i] = sum
						}
						deriv := activationReLUDeriv(preacts[l-1])
						for i := 0; i < prevLen; i++ {
							newDelta[i] *= deriv[i]
						}
						delta = newDelta
					}
				}
			}

			bInv := float32(1.0 / float64(batchN))
			for l := 0; l < L; l++ {
				for j := range m.biases[l] {
					m.biases[l][j] -= lr * gradB[l][j] * bInv
					for i := range m.weights[l][j] {
						m.weights[l][j][i] -= lr * gradW[l][j][i] * bInv
					}
				}
			}
		}
	}
	return nil
}
