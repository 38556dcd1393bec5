package datasets

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnsortedDates is returned when frame dates are not strictly increasing.
	ErrUnsortedDates = errors.New("dates must be unique and strictly increasing")
	// ErrDuplicateColumn is returned when two columns share a name (case-insensitive).
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrUnknownColumn is returned when a named column is not in the frame.
	ErrUnknownColumn = errors.New("unknown column")
)

// Frame is a date-keyed table of float64 series. Values are stored
// column-major; a null cell is NaN.
type Frame struct {
	dates   []time.Time
	columns []string
	values  [][]float64 // values[col][row]

	// lower-cased column name -> column position
	colIndex map[string]int
}

// NewFrame allocates a frame with the given dates and columns. Every cell
// starts out null.
func NewFrame(dates []time.Time, columns []string) (*Frame, error) {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("%w: %s follows %s", ErrUnsortedDates,
				dates[i].Format(DateLayout), dates[i-1].Format(DateLayout))
		}
	}

	f := &Frame{
		dates:    append([]time.Time(nil), dates...),
		columns:  append([]string(nil), columns...),
		values:   make([][]float64, len(columns)),
		colIndex: make(map[string]int, len(columns)),
	}
	for j, name := range columns {
		key := normalizeName(name)
		if _, ok := f.colIndex[key]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		f.colIndex[key] = j
		col := make([]float64, len(dates))
		for i := range col {
			col[i] = math.NaN()
		}
		f.values[j] = col
	}
	return f, nil
}

// FrameFromColumns builds a frame from column-major data. The slices are
// copied.
func FrameFromColumns(dates []time.Time, columns []string, values [][]float64) (*Frame, error) {
	if len(values) != len(columns) {
		return nil, fmt.Errorf("got %d value columns for %d column names", len(values), len(columns))
	}
	f, err := NewFrame(dates, columns)
	if err != nil {
		return nil, err
	}
	for j, col := range values {
		if len(col) != len(dates) {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", columns[j], len(col), len(dates))
		}
		copy(f.values[j], col)
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.dates) }

// Width returns the number of value columns (the date key is not counted).
func (f *Frame) Width() int { return len(f.columns) }

// Dates returns the row keys. The slice must not be modified.
func (f *Frame) Dates() []time.Time { return f.dates }

// Date returns the key of row i.
func (f *Frame) Date(i int) time.Time { return f.dates[i] }

// Columns returns the value column names in order. The slice must not be
// modified.
func (f *Frame) Columns() []string { return f.columns }

// ColumnIndex returns the position of the named column (matched
// case-insensitively) or -1.
func (f *Frame) ColumnIndex(name string) int {
	if j, ok := f.colIndex[normalizeName(name)]; ok {
		return j
	}
	return -1
}

// HasColumn reports whether the frame carries the named column.
func (f *Frame) HasColumn(name string) bool { return f.ColumnIndex(name) >= 0 }

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	j := f.ColumnIndex(name)
	if j < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return append([]float64(nil), f.values[j]...), nil
}

// Col returns column j without copying. Writes through the returned slice
// modify the frame.
func (f *Frame) Col(j int) []float64 { return f.values[j] }

// At returns the cell at (row, col).
func (f *Frame) At(row, col int) float64 { return f.values[col][row] }

// Set writes the cell at (row, col).
func (f *Frame) Set(row, col int, v float64) { f.values[col][row] = v }

// IsNull reports whether the cell at (row, col) is null.
func (f *Frame) IsNull(row, col int) bool { return math.IsNaN(f.values[col][row]) }

// Row returns a copy of row i across all value columns.
func (f *Frame) Row(i int) []float64 {
	out := make([]float64, len(f.columns))
	for j := range f.columns {
		out[j] = f.values[j][i]
	}
	return out
}

// RowIndex returns the index of the row keyed exactly by t, or -1.
func (f *Frame) RowIndex(t time.Time) int {
	i := sort.Search(len(f.dates), func(i int) bool { return !f.dates[i].Before(t) })
	if i < len(f.dates) && f.dates[i].Equal(t) {
		return i
	}
	return -1
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	return f.sliceRows(0, len(f.dates))
}

// Until returns the rows dated on or before t.
func (f *Frame) Until(t time.Time) *Frame {
	end := sort.Search(len(f.dates), func(i int) bool { return f.dates[i].After(t) })
	return f.sliceRows(0, end)
}

// Between returns the rows dated within [from, to].
func (f *Frame) Between(from, to time.Time) *Frame {
	start := sort.Search(len(f.dates), func(i int) bool { return !f.dates[i].Before(from) })
	end := sort.Search(len(f.dates), func(i int) bool { return f.dates[i].After(to) })
	if end < start {
		end = start
	}
	return f.sliceRows(start, end)
}

func (f *Frame) sliceRows(start, end int) *Frame {
	out := &Frame{
		dates:    append([]time.Time(nil), f.dates[start:end]...),
		columns:  append([]string(nil), f.columns...),
		values:   make([][]float64, len(f.columns)),
		colIndex: make(map[string]int, len(f.colIndex)),
	}
	for k, v := range f.colIndex {
		out.colIndex[k] = v
	}
	for j, col := range f.values {
		out.values[j] = append([]float64(nil), col[start:end]...)
	}
	return out
}

// FilterRows returns the rows for which keep returns true.
func (f *Frame) FilterRows(keep func(i int, date time.Time) bool) *Frame {
	var rows []int
	for i, d := range f.dates {
		if keep(i, d) {
			rows = append(rows, i)
		}
	}
	return f.pickRows(rows)
}

// DropIncomplete returns the rows that have no null cell in any column.
func (f *Frame) DropIncomplete() *Frame {
	return f.FilterRows(func(i int, _ time.Time) bool {
		for j := range f.columns {
			if math.IsNaN(f.values[j][i]) {
				return false
			}
		}
		return true
	})
}

func (f *Frame) pickRows(rows []int) *Frame {
	out := &Frame{
		dates:    make([]time.Time, len(rows)),
		columns:  append([]string(nil), f.columns...),
		values:   make([][]float64, len(f.columns)),
		colIndex: make(map[string]int, len(f.colIndex)),
	}
	for k, v := range f.colIndex {
		out.colIndex[k] = v
	}
	for r, i := range rows {
		out.dates[r] = f.dates[i]
	}
	for j, col := range f.values {
		picked := make([]float64, len(rows))
		for r, i := range rows {
			picked[r] = col[i]
		}
		out.values[j] = picked
	}
	return out
}

// Drop returns a copy without the named columns. Names not present are
// ignored.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[int]bool, len(names))
	for _, n := range names {
		if j := f.ColumnIndex(n); j >= 0 {
			skip[j] = true
		}
	}
	var (
		cols []string
		vals [][]float64
	)
	for j, name := range f.columns {
		if skip[j] {
			continue
		}
		cols = append(cols, name)
		vals = append(vals, f.values[j])
	}
	// names were unique before dropping, so this cannot fail
	out, _ := FrameFromColumns(f.dates, cols, vals)
	return out
}

// Rename returns a copy whose column names are mapped through fn.
func (f *Frame) Rename(fn func(string) string) (*Frame, error) {
	cols := make([]string, len(f.columns))
	for j, name := range f.columns {
		cols[j] = fn(name)
	}
	return FrameFromColumns(f.dates, cols, f.values)
}

// WithDates returns a copy of the frame keyed by dates instead of its own.
// len(dates) must equal Len().
func (f *Frame) WithDates(dates []time.Time) (*Frame, error) {
	if len(dates) != len(f.dates) {
		return nil, fmt.Errorf("got %d dates for %d rows", len(dates), len(f.dates))
	}
	return FrameFromColumns(dates, f.columns, f.values)
}

// AsMonthly reindexes the frame onto a contiguous calendar of month starts,
// inserting all-null rows for missing months. Two rows falling in the same
// month is an error.
func (f *Frame) AsMonthly() (*Frame, error) {
	if len(f.dates) == 0 {
		return f.Clone(), nil
	}
	first := MonthStart(f.dates[0])
	last := MonthStart(f.dates[len(f.dates)-1])
	n := MonthsBetween(first, last) + 1

	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = AddMonths(first, i)
	}
	out, err := NewFrame(dates, f.columns)
	if err != nil {
		return nil, err
	}

	prev := -1
	for i, d := range f.dates {
		r := MonthsBetween(first, MonthStart(d))
		if r == prev {
			return nil, fmt.Errorf("%w: two rows in %s", ErrUnsortedDates, dates[r].Format("2006-01"))
		}
		prev = r
		for j := range f.columns {
			out.values[j][r] = f.values[j][i]
		}
	}
	return out, nil
}

// Matrix returns the frame as row-major data, leaving out the excluded
// columns, along with the names of the columns that were kept.
func (f *Frame) Matrix(exclude ...string) ([][]float64, []string) {
	kept := f.Drop(exclude...)
	rows := make([][]float64, kept.Len())
	for i := range rows {
		rows[i] = kept.Row(i)
	}
	return rows, kept.columns
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
