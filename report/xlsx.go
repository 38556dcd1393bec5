package report

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Noofbiz/nowcast/nowcast"
)

const (
	PredictionsSheet = "predictions"
	MetricsSheet     = "metrics"
)

// cellValue maps a null to an empty cell.
func cellValue(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

// SaveXLSX writes a workbook with the prediction table on one sheet and the
// per-horizon error metrics on another.
func SaveXLSX(path string, res *nowcast.Results) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), PredictionsSheet); err != nil {
		return err
	}
	header := []any{"date", "actual"}
	for _, h := range res.Horizons {
		header = append(header, horizonHeader(h))
	}
	if err := f.SetSheetRow(PredictionsSheet, "A1", &header); err != nil {
		return err
	}
	for i, d := range res.Dates {
		row := []any{d.Format(time.DateOnly), cellValue(res.Actuals[i])}
		for _, h := range res.Horizons {
			v, _ := res.Prediction(h, i)
			row = append(row, cellValue(v))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(PredictionsSheet, cell, &row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(MetricsSheet); err != nil {
		return err
	}
	mh := []any{"horizon", "n", "rmse", "mae", "bias"}
	if err := f.SetSheetRow(MetricsSheet, "A1", &mh); err != nil {
		return err
	}
	for i, m := range res.Metrics() {
		row := []any{m.Horizon, m.N, cellValue(m.RMSE), cellValue(m.MAE), cellValue(m.Bias)}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(MetricsSheet, cell, &row); err != nil {
			return err
		}
	}
	run := len(res.Horizons) + 3
	for k, kv := range [][]any{{"run_id", res.RunID}, {"model", res.Model.String()}, {"seed", res.Seed}} {
		cell, err := excelize.CoordinatesToCellName(1, run+k)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(MetricsSheet, cell, &kv); err != nil {
			return err
		}
	}

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}
