// Package features turns a date-keyed panel into a supervised-learning table.
//
// Flatten produces one row per period with a realised target, carrying the
// predictors' own-period values plus lagged copies of them. MeanFill fills
// gaps with column means fitted on a separate reference frame.
package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Noofbiz/nowcast/datasets"
)

// ErrColumnClash is returned when a join would produce two columns with the
// same name.
var ErrColumnClash = errors.New("column present on both sides of join")

// LagSuffix returns the column name of the i-th lagged copy of column.
func LagSuffix(column string, i int) string {
	return column + "_" + strconv.Itoa(i)
}

// Flatten builds one row per anchor (a row whose target is not null). Each
// row holds the target, the predictors' own values and, for i in 1..nLags,
// every predictor as observed i months earlier under the column name
// LagSuffix(name, i). Lags are looked up by exact date; a missing month gives
// nulls for that block. The target itself is never lagged.
func Flatten(panel *datasets.Frame, target string, nLags int) (*datasets.Frame, error) {
	if nLags < 0 {
		return nil, fmt.Errorf("n_lags must be >= 0, got %d", nLags)
	}
	targetIdx := panel.ColumnIndex(target)
	if targetIdx < 0 {
		return nil, fmt.Errorf("%w: target %q", datasets.ErrUnknownColumn, target)
	}

	targetCol := panel.Col(targetIdx)
	out := panel.FilterRows(func(i int, _ time.Time) bool {
		return !math.IsNaN(targetCol[i])
	})

	predictors := panel.Drop(target)
	for i := 1; i <= nLags; i++ {
		shifted, err := ShiftMonths(predictors, i)
		if err != nil {
			return nil, fmt.Errorf("lag %d: %w", i, err)
		}
		lag := i
		renamed, err := shifted.Rename(func(name string) string { return LagSuffix(name, lag) })
		if err != nil {
			return nil, fmt.Errorf("lag %d: %w", i, err)
		}
		out, err = LeftJoin(out, renamed)
		if err != nil {
			return nil, fmt.Errorf("lag %d: %w", i, err)
		}
	}
	return out, nil
}

// ShiftMonths returns a copy of f with every date moved n calendar months.
func ShiftMonths(f *datasets.Frame, n int) (*datasets.Frame, error) {
	dates := make([]time.Time, f.Len())
	for i, d := range f.Dates() {
		dates[i] = datasets.AddMonths(d, n)
	}
	return f.WithDates(dates)
}

// LeftJoin appends the columns of right to left, matching rows by exact date.
// The result has exactly left's rows in left's order; rows of left with no
// matching date in right get nulls in right's columns. A column name present
// on both sides is ErrColumnClash.
func LeftJoin(left, right *datasets.Frame) (*datasets.Frame, error) {
	for _, col := range right.Columns() {
		if left.HasColumn(col) {
			return nil, fmt.Errorf("%w: %q", ErrColumnClash, col)
		}
	}

	cols := append(append([]string(nil), left.Columns()...), right.Columns()...)
	out, err := datasets.NewFrame(left.Dates(), cols)
	if err != nil {
		return nil, err
	}
	for j := range left.Columns() {
		copy(out.Col(j), left.Col(j))
	}

	offset := left.Width()
	for i, d := range left.Dates() {
		r := right.RowIndex(d)
		if r < 0 {
			continue
		}
		for j := range right.Columns() {
			out.Set(i, offset+j, right.At(r, j))
		}
	}
	return out, nil
}
