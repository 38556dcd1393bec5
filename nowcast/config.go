package nowcast

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Noofbiz/nowcast/models"
)

// Config holds every parameter of an evaluation run. It is passed by value and
// never modified by the engine.
type Config struct {
	// Target is the column being nowcast.
	Target string
	// Horizons are the forecast horizons in months relative to the
	// evaluation date. Negative horizons withhold more data.
	Horizons []int
	// NLags is the number of lagged copies of each predictor.
	NLags int
	// EnsembleSize is the number of members trained per evaluation date.
	EnsembleSize int

	Model  models.Kind
	Params models.Params

	TrainStart time.Time
	TrainEnd   time.Time
	ValStart   time.Time
	ValEnd     time.Time

	// TrainingBuffer is the number of months between the last training row
	// and the evaluation date.
	TrainingBuffer int

	// Seed drives every random choice of the run. Zero picks a seed from the
	// clock; the chosen seed is logged and stored on the results.
	Seed int64

	// Workers is the number of evaluation dates processed concurrently.
	Workers int
	// FitWorkers bounds the concurrent member fits of one ensemble. Zero
	// means GOMAXPROCS.
	FitWorkers int

	// ContinueOnError records a failed date as null predictions and moves on
	// instead of aborting the run.
	ContinueOnError bool

	Logger zerolog.Logger
	// Tracer receives one span per run and one per evaluation date. A nil
	// Tracer disables tracing.
	Tracer trace.Tracer
}

func date(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// DefaultConfig returns the reference setup: boosted trees nowcasting gdpc1
// at horizons -2..2 with 4 lags and 10 members, trained from 1947 and
// evaluated from 2005-03 to 2010-03.
func DefaultConfig() Config {
	return Config{
		Target:         "gdpc1",
		Horizons:       []int{-2, -1, 0, 1, 2},
		NLags:          4,
		EnsembleSize:   10,
		Model:          models.GradientBoosting,
		Params:         models.DefaultParams(),
		TrainStart:     date(1947, time.January),
		TrainEnd:       date(2005, time.February),
		ValStart:       date(2005, time.March),
		ValEnd:         date(2010, time.March),
		TrainingBuffer: 3,
		Workers:        1,
		Logger:         zerolog.Nop(),
		Tracer:         noop.NewTracerProvider().Tracer(""),
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Target == "":
		return fmt.Errorf("target is required")
	case len(c.Horizons) == 0:
		return fmt.Errorf("at least one horizon is required")
	case c.NLags < 0:
		return fmt.Errorf("n_lags must be >= 0, got %d", c.NLags)
	case c.EnsembleSize < 1:
		return fmt.Errorf("ensemble size must be >= 1, got %d", c.EnsembleSize)
	case c.TrainingBuffer < 0:
		return fmt.Errorf("training buffer must be >= 0, got %d", c.TrainingBuffer)
	case c.Workers < 0 || c.FitWorkers < 0:
		return fmt.Errorf("worker counts must be >= 0")
	case c.TrainEnd.Before(c.TrainStart):
		return fmt.Errorf("end_train %s is before start_train %s", c.TrainEnd.Format(time.DateOnly), c.TrainStart.Format(time.DateOnly))
	case c.ValEnd.Before(c.ValStart):
		return fmt.Errorf("end_val %s is before start_val %s", c.ValEnd.Format(time.DateOnly), c.ValStart.Format(time.DateOnly))
	case !c.TrainEnd.Before(c.ValStart):
		return fmt.Errorf("training window must end before start_val %s", c.ValStart.Format(time.DateOnly))
	}
	seen := make(map[int]bool, len(c.Horizons))
	for _, h := range c.Horizons {
		if seen[h] {
			return fmt.Errorf("horizon %d listed twice", h)
		}
		seen[h] = true
	}
	if _, err := models.ParseKind(c.Model.String()); err != nil {
		return err
	}
	return nil
}
