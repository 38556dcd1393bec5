package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Noofbiz/nowcast/nowcast"
)

// WriteCSV writes res as date, actual and one column per horizon. Null
// predictions are empty cells.
func WriteCSV(w io.Writer, res *nowcast.Results) error {
	return writeCSV(w, res, false)
}

// WriteLegacyCSV writes only the horizon columns, without dates or actuals.
func WriteLegacyCSV(w io.Writer, res *nowcast.Results) error {
	return writeCSV(w, res, true)
}

func writeCSV(w io.Writer, res *nowcast.Results, legacy bool) error {
	cw := csv.NewWriter(w)

	var header []string
	if !legacy {
		header = append(header, "date", "actual")
	}
	for _, h := range res.Horizons {
		header = append(header, horizonHeader(h))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, d := range res.Dates {
		record := make([]string, 0, len(header))
		if !legacy {
			record = append(record, d.Format(time.DateOnly), formatFloat(res.Actuals[i]))
		}
		for _, h := range res.Horizons {
			v, _ := res.Prediction(h, i)
			record = append(record, formatFloat(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes res to path, creating the parent directory if needed.
func SaveCSV(path string, res *nowcast.Results, legacy bool) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeCSV(f, res, legacy); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
