package features

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/nowcast/datasets"
)

// ErrColumnMismatch is returned when the frame being filled lacks a column
// the means were fitted on.
var ErrColumnMismatch = errors.New("column missing from target frame")

// Means holds per-column arithmetic means fitted on a reference frame.
type Means struct {
	Columns []string
	Values  []float64
}

// ColumnMeans computes the mean of every column of reference, ignoring nulls.
// A column with no non-null values has a NaN mean; filling with it leaves the
// gaps null.
func ColumnMeans(reference *datasets.Frame) Means {
	m := Means{
		Columns: append([]string(nil), reference.Columns()...),
		Values:  make([]float64, reference.Width()),
	}
	for j := range m.Columns {
		var observed []float64
		for _, v := range reference.Col(j) {
			if !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			m.Values[j] = math.NaN()
			continue
		}
		m.Values[j] = stat.Mean(observed, nil)
	}
	return m
}

// Mean returns the fitted mean of column, or NaN and false if it was not
// fitted.
func (m Means) Mean(column string) (float64, bool) {
	for j, c := range m.Columns {
		if strings.EqualFold(c, column) {
			return m.Values[j], true
		}
	}
	return math.NaN(), false
}

// Apply returns a copy of target with every null cell in a fitted column
// replaced by that column's mean. Columns of target that were not fitted are
// copied unchanged.
func (m Means) Apply(target *datasets.Frame) (*datasets.Frame, error) {
	out := target.Clone()
	for j, col := range m.Columns {
		k := out.ColumnIndex(col)
		if k < 0 {
			return nil, fmt.Errorf("%w: %q", ErrColumnMismatch, col)
		}
		values := out.Col(k)
		for i, v := range values {
			if math.IsNaN(v) {
				values[i] = m.Values[j]
			}
		}
	}
	return out, nil
}

// MeanFill fills the nulls of target with column means computed on
// reference. Pass the training frame as reference when filling test data so
// no information from the evaluation period leaks into the fill values.
func MeanFill(reference, target *datasets.Frame) (*datasets.Frame, error) {
	return ColumnMeans(reference).Apply(target)
}
