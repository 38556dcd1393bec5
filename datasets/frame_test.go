package datasets

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewFrame_RejectsUnsortedDates(t *testing.T) {
	_, err := NewFrame([]time.Time{month(2020, 2), month(2020, 1)}, []string{"a"})
	if !errors.Is(err, ErrUnsortedDates) {
		t.Fatalf("expected ErrUnsortedDates, got %v", err)
	}
	_, err = NewFrame([]time.Time{month(2020, 1), month(2020, 1)}, []string{"a"})
	if !errors.Is(err, ErrUnsortedDates) {
		t.Fatalf("expected ErrUnsortedDates for duplicate date, got %v", err)
	}
}

func TestNewFrame_RejectsDuplicateColumns(t *testing.T) {
	_, err := NewFrame([]time.Time{month(2020, 1)}, []string{"GDP", "gdp"})
	if !errors.Is(err, ErrDuplicateColumn) {
		t.Fatalf("expected ErrDuplicateColumn, got %v", err)
	}
}

func TestFrame_StartsNull(t *testing.T) {
	f, err := NewFrame([]time.Time{month(2020, 1), month(2020, 2)}, []string{"a", "b"})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	for i := 0; i < f.Len(); i++ {
		for j := 0; j < f.Width(); j++ {
			if !f.IsNull(i, j) {
				t.Fatalf("cell (%d,%d) should start null", i, j)
			}
		}
	}
}

func TestFrame_WindowsAndLookup(t *testing.T) {
	dates := []time.Time{month(2020, 1), month(2020, 2), month(2020, 3), month(2020, 4)}
	f, err := FrameFromColumns(dates, []string{"A"}, [][]float64{{1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("FrameFromColumns: %v", err)
	}

	if got := f.Until(month(2020, 2)).Len(); got != 2 {
		t.Fatalf("Until: expected 2 rows, got %d", got)
	}
	if got := f.Until(month(2019, 12)).Len(); got != 0 {
		t.Fatalf("Until before start: expected 0 rows, got %d", got)
	}
	between := f.Between(month(2020, 2), month(2020, 3))
	if between.Len() != 2 || !between.Date(0).Equal(month(2020, 2)) {
		t.Fatalf("Between: unexpected rows %v", between.Dates())
	}
	if got := f.RowIndex(month(2020, 3)); got != 2 {
		t.Fatalf("RowIndex: expected 2, got %d", got)
	}
	if got := f.RowIndex(time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC)); got != -1 {
		t.Fatalf("RowIndex must match exactly, got %d", got)
	}
	if f.ColumnIndex("a") != 0 {
		t.Fatalf("column lookup should be case-insensitive")
	}
}

func TestFrame_CloneIsDeep(t *testing.T) {
	f, _ := FrameFromColumns([]time.Time{month(2020, 1)}, []string{"a"}, [][]float64{{1}})
	c := f.Clone()
	c.Set(0, 0, 99)
	if f.At(0, 0) != 1 {
		t.Fatalf("mutating a clone changed the original")
	}
}

func TestFrame_DropIncomplete(t *testing.T) {
	dates := []time.Time{month(2020, 1), month(2020, 2), month(2020, 3)}
	f, _ := FrameFromColumns(dates, []string{"a", "b"}, [][]float64{
		{1, math.NaN(), 3},
		{4, 5, math.NaN()},
	})
	out := f.DropIncomplete()
	if out.Len() != 1 || !out.Date(0).Equal(month(2020, 1)) {
		t.Fatalf("expected only the first row to survive, got %v", out.Dates())
	}
}

func TestFrame_DropAndRename(t *testing.T) {
	f, _ := FrameFromColumns([]time.Time{month(2020, 1)}, []string{"gdp", "ip"}, [][]float64{{1}, {2}})
	dropped := f.Drop("GDP", "absent")
	if dropped.Width() != 1 || dropped.Columns()[0] != "ip" {
		t.Fatalf("Drop: unexpected columns %v", dropped.Columns())
	}
	renamed, err := dropped.Rename(func(s string) string { return s + "_1" })
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Columns()[0] != "ip_1" || renamed.At(0, 0) != 2 {
		t.Fatalf("Rename: unexpected result %v", renamed.Columns())
	}
}

func TestFrame_AsMonthlyFillsGaps(t *testing.T) {
	dates := []time.Time{month(2020, 1), month(2020, 4)}
	f, _ := FrameFromColumns(dates, []string{"a"}, [][]float64{{1, 4}})
	m, err := f.AsMonthly()
	if err != nil {
		t.Fatalf("AsMonthly: %v", err)
	}
	if m.Len() != 4 {
		t.Fatalf("expected 4 monthly rows, got %d", m.Len())
	}
	if m.At(0, 0) != 1 || m.At(3, 0) != 4 || !m.IsNull(1, 0) || !m.IsNull(2, 0) {
		t.Fatalf("unexpected monthly values: %v", m.Col(0))
	}

	clash, _ := FrameFromColumns(
		[]time.Time{month(2020, 1), time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)},
		[]string{"a"}, [][]float64{{1, 2}})
	if _, err := clash.AsMonthly(); err == nil {
		t.Fatalf("expected error for two rows in the same month")
	}
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		in   time.Time
		n    int
		want time.Time
	}{
		{month(2020, 1), 1, month(2020, 2)},
		{month(2020, 11), 3, month(2021, 2)},
		{month(2020, 3), -3, month(2019, 12)},
		{time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC), 1, time.Date(2021, 2, 28, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := AddMonths(tt.in, tt.n); !got.Equal(tt.want) {
			t.Errorf("AddMonths(%s, %d) = %s, want %s", tt.in.Format(DateLayout), tt.n,
				got.Format(DateLayout), tt.want.Format(DateLayout))
		}
	}
}

func TestIsQuarterEnd(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		want := m == time.March || m == time.June || m == time.September || m == time.December
		if got := IsQuarterEnd(month(2020, m)); got != want {
			t.Errorf("IsQuarterEnd(%s) = %v, want %v", m, got, want)
		}
	}
}
