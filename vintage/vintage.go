// Package vintage reconstructs what a panel looked like on a given date.
//
// Each series is published with a lag of a whole number of months. A vintage
// as of date d at forecast horizon h is the panel truncated at d with, for
// every predictor column, the trailing rows that would not yet have been
// released nulled out. More negative horizons withhold more data.
package vintage

import (
	"math"
	"time"

	"github.com/Noofbiz/nowcast/datasets"
)

// Cutoff returns the first row index of column that is withheld in a vintage
// of a panel with rows rows. The raw index may be negative or past the end;
// callers clamp it.
func Cutoff(rows, pubLag, horizon int) int {
	return rows - pubLag + horizon - 1
}

// Simulate returns the vintage of panel as of asOf at the given horizon.
//
// The panel is truncated to rows dated on or before asOf. For every column
// other than target, rows from Cutoff onwards are set to null. A negative
// cutoff leaves the column unchanged, as does a cutoff at or past the last
// row. The target column is never nulled. The input panel is not modified.
func Simulate(meta *datasets.Metadata, panel *datasets.Frame, asOf time.Time, horizon int, target string) (*datasets.Frame, error) {
	out := panel.Until(asOf)
	n := out.Len()
	targetIdx := out.ColumnIndex(target)

	for j, col := range out.Columns() {
		if j == targetIdx {
			continue
		}
		info, err := meta.Lookup(col)
		if err != nil {
			return nil, err
		}
		start := Cutoff(n, info.MonthsLag, horizon)
		if start < 0 || start >= n {
			continue
		}
		values := out.Col(j)
		for i := start; i < n; i++ {
			values[i] = math.NaN()
		}
	}
	return out, nil
}
