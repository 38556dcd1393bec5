package report

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Noofbiz/nowcast/nowcast"
)

const namespace = "nowcast"

// SaveMetrics writes the per-horizon error metrics of a run in the
// Prometheus text format, ready for a node exporter textfile collector.
func SaveMetrics(path string, res *nowcast.Results, elapsed time.Duration) error {
	constLabels := prometheus.Labels{
		"model":  res.Model.String(),
		"target": res.Target,
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	perHorizon := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, []string{"horizon"})
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_info",
		Help:      "Identifies the run the metrics belong to.",
		ConstLabels: prometheus.Labels{
			"run_id": res.RunID,
			"model":  res.Model.String(),
			"target": res.Target,
			"seed":   strconv.FormatInt(res.Seed, 10),
		},
	})
	info.Set(1)

	dates := gauge("evaluation_dates", "Number of evaluation dates in the run.")
	dates.Set(float64(res.Len()))
	failed := gauge("failed_dates", "Evaluation dates recorded as null after an error.")
	failed.Set(float64(len(res.Failures)))
	duration := gauge("run_duration_seconds", "Wall time of the rolling evaluation.")
	duration.Set(elapsed.Seconds())

	rmse := perHorizon("rmse", "Root mean squared nowcast error.")
	mae := perHorizon("mae", "Mean absolute nowcast error.")
	bias := perHorizon("bias", "Mean of prediction minus actual.")
	observations := perHorizon("observations", "Non-null prediction and actual pairs.")
	for _, m := range res.Metrics() {
		h := horizonHeader(m.Horizon)
		rmse.WithLabelValues(h).Set(m.RMSE)
		mae.WithLabelValues(h).Set(m.MAE)
		bias.WithLabelValues(h).Set(m.Bias)
		observations.WithLabelValues(h).Set(float64(m.N))
	}

	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{info, dates, failed, duration, rmse, mae, bias, observations} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}
