package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/nowcast/nowcast"
)

// decimalYear maps a date onto a continuous x axis.
func decimalYear(t time.Time) float64 {
	return float64(t.Year()) + float64(t.Month()-1)/12
}

// series returns the non-null points of values aligned with dates.
func series(dates []time.Time, values []float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: decimalYear(dates[i]), Y: v})
	}
	return xys
}

// SavePlot writes a PNG with the realised target (black) and one line per
// horizon.
func SavePlot(path string, res *nowcast.Results) error {
	if res.Len() == 0 {
		return errors.New("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s nowcasts of %s", res.Model, res.Target)
	p.X.Label.Text = "date"
	p.Y.Label.Text = res.Target
	p.Add(plotter.NewGrid())

	actual := series(res.Dates, res.Actuals)
	all := append(plotter.XYs(nil), actual...)
	if len(actual) > 0 {
		line, points, err := plotter.NewLinePoints(actual)
		if err != nil {
			return err
		}
		line.Color = color.Black
		line.Width = vg.Points(1.6)
		points.GlyphStyle.Color = color.Black
		points.GlyphStyle.Radius = vg.Points(1.8)
		p.Add(line, points)
		p.Legend.Add("actual", line, points)
	}

	for k, h := range res.Horizons {
		xys := series(res.Dates, res.Column(h))
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(k)
		line.Dashes = plotutil.Dashes(k + 1)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("h=%d", h), line)
		all = append(all, xys...)
	}
	p.Legend.Top = true

	xmin, xmax, ymin, ymax := autoRange(all)
	p.X.Min = xmin
	p.X.Max = xmax
	p.Y.Min = ymin
	p.Y.Max = ymax

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin = math.Inf(1)
	xmax = math.Inf(-1)
	ymin = math.Inf(1)
	ymax = math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}
