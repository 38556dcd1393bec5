package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Noofbiz/nowcast/datasets"
)

func frame(t *testing.T, cols []string, values ...[]float64) *datasets.Frame {
	t.Helper()
	f, err := datasets.FrameFromColumns(monthly(len(values[0])), cols, values)
	if err != nil {
		t.Fatalf("FrameFromColumns: %v", err)
	}
	return f
}

func TestMeanFill_UsesReferenceMeans(t *testing.T) {
	nan := math.NaN()
	reference := frame(t, []string{"a", "b"}, []float64{1, 2, 3}, []float64{10, nan, 20})
	target := frame(t, []string{"a", "b"}, []float64{nan, 100, nan}, []float64{nan, 5, nan})

	filled, err := MeanFill(reference, target)
	if err != nil {
		t.Fatalf("MeanFill: %v", err)
	}
	// a's mean is 2 over the reference, not 100 from the target
	if filled.At(0, 0) != 2 || filled.At(1, 0) != 100 || filled.At(2, 0) != 2 {
		t.Fatalf("unexpected a column %v", filled.Col(0))
	}
	if filled.At(0, 1) != 15 || filled.At(1, 1) != 5 {
		t.Fatalf("unexpected b column %v", filled.Col(1))
	}
	if !target.IsNull(0, 0) {
		t.Fatalf("MeanFill must not modify its target argument")
	}
	for i := range target.Dates() {
		if !filled.Date(i).Equal(target.Date(i)) {
			t.Fatalf("date key changed at row %d", i)
		}
	}
}

func TestMeanFill_EmptyReferenceColumnPropagatesNull(t *testing.T) {
	nan := math.NaN()
	reference := frame(t, []string{"a", "b"}, []float64{1, 3}, []float64{nan, nan})
	target := frame(t, []string{"a", "b"}, []float64{nan, 1}, []float64{nan, 7})

	means := ColumnMeans(reference)
	if m, ok := means.Mean("B"); !ok || !math.IsNaN(m) {
		t.Fatalf("expected NaN mean for all-null column, got %v (fitted=%v)", m, ok)
	}

	filled, err := means.Apply(target)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !filled.IsNull(0, 1) || filled.At(1, 1) != 7 {
		t.Fatalf("all-null reference column should leave gaps null: %v", filled.Col(1))
	}
	if filled.At(0, 0) != 2 {
		t.Fatalf("a should still be filled: %v", filled.Col(0))
	}
}

func TestMeanFill_Idempotent(t *testing.T) {
	nan := math.NaN()
	r := frame(t, []string{"a", "b"}, []float64{1, nan, 5, nan}, []float64{nan, 2, nan, 4})

	once, err := MeanFill(r, r)
	if err != nil {
		t.Fatalf("MeanFill: %v", err)
	}
	twice, err := MeanFill(r, once)
	if err != nil {
		t.Fatalf("MeanFill: %v", err)
	}
	for j := 0; j < once.Width(); j++ {
		for i := 0; i < once.Len(); i++ {
			if once.IsNull(i, j) {
				t.Fatalf("null left at (%d,%d) after one pass", i, j)
			}
			if once.At(i, j) != twice.At(i, j) {
				t.Fatalf("second pass changed (%d,%d)", i, j)
			}
		}
	}
}

func TestMeanFill_ColumnMismatch(t *testing.T) {
	reference := frame(t, []string{"a", "b"}, []float64{1}, []float64{2})
	target := frame(t, []string{"a"}, []float64{math.NaN()})
	if _, err := MeanFill(reference, target); !errors.Is(err, ErrColumnMismatch) {
		t.Fatalf("expected ErrColumnMismatch, got %v", err)
	}

	// extra target columns are left alone
	wide := frame(t, []string{"a", "b", "c"}, []float64{math.NaN()}, []float64{1}, []float64{math.NaN()})
	filled, err := MeanFill(reference, wide)
	if err != nil {
		t.Fatalf("MeanFill: %v", err)
	}
	if filled.At(0, 0) != 1 || !filled.IsNull(0, 2) {
		t.Fatalf("unexpected fill of wide frame: %v", filled.Row(0))
	}
}

func TestMeanFill_ThenFlatten(t *testing.T) {
	// Filling before flattening turns every month into an anchor; the
	// quarter-end restriction is applied by the caller afterwards.
	f := gdpPanel(t, 6)
	filled, err := MeanFill(f, f)
	if err != nil {
		t.Fatalf("MeanFill: %v", err)
	}
	flat, err := Flatten(filled, "gdp", 1)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if flat.Len() != 6 {
		t.Fatalf("expected every month anchored after filling, got %d", flat.Len())
	}
	q := flat.FilterRows(func(_ int, d time.Time) bool { return datasets.IsQuarterEnd(d) })
	if q.Len() != 2 {
		t.Fatalf("expected 2 quarter-end rows, got %d", q.Len())
	}
}
