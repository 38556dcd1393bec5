package nowcast

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Noofbiz/nowcast/datasets"
	"github.com/Noofbiz/nowcast/models"
)

// synthPanel builds a monthly panel from 1990-01 to 2004-12 where gdpc1 is
// only observed on quarter-end months and equals 2*x1 + 1 of the same month.
// x2 is noise.
func synthPanel(t *testing.T) (*datasets.Metadata, *datasets.Frame) {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	n := 15 * 12
	dates := make([]time.Time, n)
	gdp := make([]float64, n)
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	for i := range dates {
		dates[i] = datasets.AddMonths(date(1990, time.January), i)
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		gdp[i] = math.NaN()
		if datasets.IsQuarterEnd(dates[i]) {
			gdp[i] = 2*x1[i] + 1
		}
	}
	panel, err := datasets.FrameFromColumns(dates, []string{"gdpc1", "x1", "x2"}, [][]float64{gdp, x1, x2})
	require.NoError(t, err)

	meta, err := datasets.NewMetadata(
		datasets.SeriesInfo{Series: "gdpc1", Freq: datasets.Quarterly, MonthsLag: 1},
		datasets.SeriesInfo{Series: "x1", Freq: datasets.Monthly, MonthsLag: 1},
		datasets.SeriesInfo{Series: "x2", Freq: datasets.Monthly, MonthsLag: 2},
	)
	require.NoError(t, err)
	return meta, panel
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Model = models.Linear
	cfg.EnsembleSize = 2
	cfg.NLags = 2
	cfg.Horizons = []int{-2, 0, 2}
	cfg.TrainStart = date(1990, time.January)
	cfg.TrainEnd = date(2001, time.December)
	cfg.ValStart = date(2002, time.January)
	cfg.ValEnd = date(2003, time.December)
	cfg.Seed = 42
	return cfg
}

func TestEngine_EvaluationDates(t *testing.T) {
	meta, panel := synthPanel(t)
	e, err := NewEngine(testConfig(), meta, panel)
	require.NoError(t, err)

	dates := e.EvaluationDates()
	require.Len(t, dates, 8)
	assert.Equal(t, date(2002, time.March), dates[0])
	assert.Equal(t, date(2003, time.December), dates[7])
	for _, d := range dates {
		assert.True(t, datasets.IsQuarterEnd(d))
	}

	// the engine only sees the two windows
	assert.Equal(t, date(2003, time.December), e.Panel().Date(e.Panel().Len()-1))
}

func TestEngine_RunRecoversLinearTarget(t *testing.T) {
	meta, panel := synthPanel(t)
	e, err := NewEngine(testConfig(), meta, panel)
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, res.Len())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, int64(42), res.Seed)
	assert.Empty(t, res.Failures)

	x1, _ := panel.Column("x1")
	for i, d := range res.Dates {
		row := panel.RowIndex(d)
		assert.InDelta(t, 2*x1[row]+1, res.Actuals[i], 1e-12)
	}

	for _, h := range res.Horizons {
		col := res.Column(h)
		require.Len(t, col, 8)
		for i, v := range col {
			assert.Falsef(t, math.IsNaN(v) || math.IsInf(v, 0), "horizon %d date %d: %v", h, i, v)
		}
	}

	// at horizon 2 the month's own x1 is published, so OLS is exact
	for i := range res.Dates {
		p, ok := res.Prediction(2, i)
		require.True(t, ok)
		assert.InDelta(t, res.Actuals[i], p, 1e-6)
	}
	metrics := res.Metrics()
	require.Len(t, metrics, 3)
	assert.Equal(t, 2, metrics[2].Horizon)
	assert.Equal(t, 8, metrics[2].N)
	assert.Less(t, metrics[2].RMSE, 1e-6)
	// withholding x1 makes the -2 horizon strictly worse
	assert.Greater(t, metrics[0].RMSE, metrics[2].RMSE)

	_, ok := res.Prediction(7, 0)
	assert.False(t, ok)
}

func TestEngine_RunIsDeterministic(t *testing.T) {
	meta, panel := synthPanel(t)
	cfg := testConfig()
	cfg.Model = models.RandomForest
	cfg.Params.Forest.Trees = 5
	cfg.ValEnd = date(2002, time.December)

	cfg.Workers = 1
	serial, err := NewEngine(cfg, meta, panel)
	require.NoError(t, err)
	a, err := serial.Run(context.Background())
	require.NoError(t, err)

	cfg.Workers = 4
	parallel, err := NewEngine(cfg, meta, panel)
	require.NoError(t, err)
	b, err := parallel.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	for _, h := range cfg.Horizons {
		assert.Equal(t, a.Column(h), b.Column(h), "horizon %d", h)
	}
}

func TestEngine_FailsFastWithDateError(t *testing.T) {
	meta, panel := synthPanel(t)
	cfg := testConfig()
	cfg.NLags = 1
	cfg.TrainStart = date(2002, time.January)
	cfg.TrainEnd = date(2002, time.February)
	cfg.ValStart = date(2002, time.March)
	cfg.ValEnd = date(2003, time.March)

	e, err := NewEngine(cfg, meta, panel)
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.Error(t, err)
	var de *DateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, date(2002, time.March), de.Date)
	assert.Equal(t, StageTraining, de.Stage)
	assert.ErrorIs(t, err, datasets.ErrEmptyTrainingSet)
}

func TestEngine_RecordsSpans(t *testing.T) {
	meta, panel := synthPanel(t)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	cfg := testConfig()
	cfg.Tracer = tp.Tracer("test")

	e, err := NewEngine(cfg, meta, panel)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	var run sdktrace.ReadOnlySpan
	var dates []sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "nowcast.Run":
			run = s
		case "nowcast.evaluateDate":
			dates = append(dates, s)
		}
	}
	require.NotNil(t, run)
	require.Len(t, dates, 8)
	for _, s := range dates {
		assert.Equal(t, run.SpanContext().SpanID(), s.Parent().SpanID())
		assert.Len(t, s.Events(), len(cfg.Horizons))
	}
	assert.Equal(t, codes.Unset, run.Status().Code)
}

func TestEngine_FailedDateMarksSpan(t *testing.T) {
	meta, panel := synthPanel(t)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	cfg := testConfig()
	cfg.NLags = 1
	cfg.TrainStart = date(2002, time.January)
	cfg.TrainEnd = date(2002, time.February)
	cfg.ValStart = date(2002, time.March)
	cfg.ValEnd = date(2003, time.March)
	cfg.Tracer = tp.Tracer("test")

	e, err := NewEngine(cfg, meta, panel)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.Error(t, err)

	for _, s := range sr.Ended() {
		if s.Name() == "nowcast.Run" {
			assert.Equal(t, codes.Error, s.Status().Code)
			return
		}
	}
	t.Fatal("no run span recorded")
}

func TestEngine_ContinueOnError(t *testing.T) {
	meta, panel := synthPanel(t)
	cfg := testConfig()
	cfg.NLags = 1
	cfg.TrainStart = date(2002, time.January)
	cfg.TrainEnd = date(2002, time.February)
	cfg.ValStart = date(2002, time.March)
	cfg.ValEnd = date(2003, time.March)
	cfg.ContinueOnError = true

	e, err := NewEngine(cfg, meta, panel)
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, date(2002, time.March), res.Failures[0].Date)

	for _, h := range cfg.Horizons {
		col := res.Column(h)
		assert.True(t, math.IsNaN(col[0]), "failed date must stay null")
		assert.False(t, math.IsNaN(col[len(col)-1]), "later dates still evaluated")
	}
}

func TestEngine_NoEvaluationDates(t *testing.T) {
	meta, panel := synthPanel(t)
	cfg := testConfig()
	cfg.ValStart = date(2002, time.January)
	cfg.ValEnd = date(2002, time.February)

	e, err := NewEngine(cfg, meta, panel)
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoEvaluationDates)
}

func TestEngine_Cancelled(t *testing.T) {
	meta, panel := synthPanel(t)
	e, err := NewEngine(testConfig(), meta, panel)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngine_Validation(t *testing.T) {
	meta, panel := synthPanel(t)

	cfg := testConfig()
	cfg.Target = "gdp_missing"
	_, err := NewEngine(cfg, meta, panel)
	assert.ErrorIs(t, err, datasets.ErrUnknownColumn)

	cfg = testConfig()
	cfg.Horizons = []int{0, 0}
	_, err = NewEngine(cfg, meta, panel)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.ValStart = cfg.TrainEnd
	_, err = NewEngine(cfg, meta, panel)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Model = models.Kind(0)
	_, err = NewEngine(cfg, meta, panel)
	assert.ErrorIs(t, err, models.ErrUnsupportedModel)

	partial, err := datasets.NewMetadata(datasets.SeriesInfo{Series: "x1", Freq: datasets.Monthly, MonthsLag: 1})
	require.NoError(t, err)
	_, err = NewEngine(testConfig(), partial, panel)
	assert.ErrorIs(t, err, datasets.ErrMissingMetadata)
}

func TestStageAndDateErrorFormatting(t *testing.T) {
	err := &DateError{Date: date(2005, time.March), Horizon: -1, Stage: StagePredicting, Err: errors.New("boom")}
	assert.Equal(t, "date 2005-03-01 horizon -1 (predicting): boom", err.Error())

	err = &DateError{Date: date(2005, time.March), Stage: StageTraining, Err: errors.New("boom")}
	assert.Equal(t, "date 2005-03-01 (training): boom", err.Error())
	assert.Equal(t, "iterating-horizon", StageIteratingHorizon.String())
}
