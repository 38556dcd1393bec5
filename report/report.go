// Package report persists and visualises the prediction table of a run.
//
// The CSV layout has one row per evaluation date with the date, the realised
// target and one column per horizon. The legacy layout keeps only the horizon
// columns, as earlier tooling expects. Workbooks add a metrics sheet and
// charts plot every horizon against the realised target. SaveMetrics writes
// the same metrics as a Prometheus textfile.
package report

import (
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Noofbiz/nowcast/models"
)

// FileName returns the conventional output name for a model, e.g.
// predictions_XGBoost.csv for ext ".csv".
func FileName(kind models.Kind, ext string) string {
	return "predictions_" + kind.String() + ext
}

// Path joins dir with FileName.
func Path(dir string, kind models.Kind, ext string) string {
	return filepath.Join(dir, FileName(kind, ext))
}

// horizonHeader is the column name of a horizon.
func horizonHeader(h int) string {
	return strconv.Itoa(h)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
