// Package nowcast runs the rolling out-of-sample evaluation.
//
// For every quarter-end date d of the validation window the engine trains a
// fresh ensemble on the data available three months before d, then for each
// forecast horizon rebuilds the vintage of the panel as of d, flattens it and
// predicts the target at d. The result is a table of nowcasts indexed by
// horizon and evaluation date.
package nowcast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Noofbiz/nowcast/datasets"
	"github.com/Noofbiz/nowcast/features"
	"github.com/Noofbiz/nowcast/models"
	"github.com/Noofbiz/nowcast/vintage"
)

// Engine evaluates one model configuration over a panel.
type Engine struct {
	cfg   Config
	meta  *datasets.Metadata
	panel  *datasets.Frame
	log    zerolog.Logger
	tracer trace.Tracer
}

// NewEngine validates cfg, reindexes panel onto a monthly calendar and keeps
// only the rows inside the training and validation windows. Every panel
// column other than the target must have a metadata entry.
func NewEngine(cfg Config, meta *datasets.Metadata, panel *datasets.Frame) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !panel.HasColumn(cfg.Target) {
		return nil, fmt.Errorf("%w: target %q", datasets.ErrUnknownColumn, cfg.Target)
	}
	if err := meta.Covers(panel, cfg.Target); err != nil {
		return nil, err
	}

	monthly, err := panel.AsMonthly()
	if err != nil {
		return nil, err
	}
	windowed := monthly.FilterRows(func(_ int, d time.Time) bool {
		return inWindow(d, cfg.TrainStart, cfg.TrainEnd) || inWindow(d, cfg.ValStart, cfg.ValEnd)
	})

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Engine{
		cfg:    cfg,
		meta:   meta,
		panel:  windowed,
		log:    cfg.Logger.With().Str("component", "nowcast").Str("model", cfg.Model.String()).Logger(),
		tracer: tracer,
	}, nil
}

func inWindow(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

// Panel returns the windowed monthly panel the engine evaluates on.
func (e *Engine) Panel() *datasets.Frame { return e.panel }

// EvaluationDates returns, in order, the validation-window dates that fall on
// a quarter-end month and have a realised target.
func (e *Engine) EvaluationDates() []time.Time {
	target, _ := e.panel.Column(e.cfg.Target)
	var dates []time.Time
	for i, d := range e.panel.Dates() {
		if inWindow(d, e.cfg.ValStart, e.cfg.ValEnd) && datasets.IsQuarterEnd(d) && !math.IsNaN(target[i]) {
			dates = append(dates, d)
		}
	}
	return dates
}

// Run evaluates every date and returns the prediction table. Unless
// ContinueOnError is set, the first failure aborts the run with a *DateError.
func (e *Engine) Run(ctx context.Context) (res *Results, err error) {
	start := time.Now()
	cfg := e.cfg
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	ctx, span := e.tracer.Start(ctx, "nowcast.Run", trace.WithAttributes(
		attribute.String("model", cfg.Model.String()),
		attribute.String("target", cfg.Target),
		attribute.Int64("seed", cfg.Seed),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	dates := e.EvaluationDates()
	if len(dates) == 0 {
		return nil, &DateError{Date: cfg.ValStart, Stage: StageInitializing, Err: ErrNoEvaluationDates}
	}
	span.SetAttributes(attribute.Int("dates", len(dates)))
	target, _ := e.panel.Column(cfg.Target)
	actuals := make([]float64, len(dates))
	for i, d := range dates {
		actuals[i] = target[e.panel.RowIndex(d)]
	}

	res = newResults(uuid.NewString(), cfg, dates, actuals)
	span.SetAttributes(attribute.String("run_id", res.RunID))
	log := e.log.With().Str("run_id", res.RunID).Logger()
	log.Info().
		Int64("seed", cfg.Seed).
		Int("dates", len(dates)).
		Ints("horizons", cfg.Horizons).
		Str("first", dates[0].Format(time.DateOnly)).
		Str("last", dates[len(dates)-1].Format(time.DateOnly)).
		Msg("starting evaluation")

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Workers))
	for i, d := range dates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			preds, err := e.evaluateDate(gctx, cfg, i, d)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var de *DateError
				if !cfg.ContinueOnError || !errors.As(err, &de) || errors.Is(err, context.Canceled) {
					return err
				}
				log.Error().Err(err).Str("date", d.Format(time.DateOnly)).Str("stage", de.Stage.String()).Msg("date failed, continuing")
				res.Failures = append(res.Failures, de)
			}
			for h, v := range preds {
				res.Predictions[h][i] = v
			}
			done++
			log.Info().
				Str("date", d.Format(time.DateOnly)).
				Int("done", done).
				Int("total", len(dates)).
				Msg("evaluated date")
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Str("stage", StageFinalizing.String()).
		Int("failures", len(res.Failures)).
		Dur("elapsed", time.Since(start)).
		Msg("evaluation finished")
	return res, nil
}

// evaluateDate trains the ensemble for date index i and returns its nowcast
// for every horizon.
func (e *Engine) evaluateDate(ctx context.Context, cfg Config, i int, d time.Time) (map[int]float64, error) {
	ctx, span := e.tracer.Start(ctx, "nowcast.evaluateDate", trace.WithAttributes(
		attribute.String("date", d.Format(time.DateOnly)),
		attribute.Int("index", i),
	))
	defer span.End()
	fail := func(stage Stage, h int, err error) error {
		de := &DateError{Date: d, Horizon: h, Stage: stage, Err: err}
		span.RecordError(de)
		span.SetStatus(codes.Error, de.Error())
		return de
	}
	log := e.log.With().Str("date", d.Format(time.DateOnly)).Logger()
	log.Debug().Str("stage", StageIteratingDate.String()).Msg("evaluating date")

	train := e.panel.Until(datasets.AddMonths(d, -cfg.TrainingBuffer))
	means := features.ColumnMeans(train)
	ds, err := e.trainingSet(means, train)
	if err != nil {
		return nil, fail(StageTraining, 0, err)
	}
	log.Debug().Int("rows", ds.Len()).Int("features", ds.Dim()).Msg("training set ready")
	span.SetAttributes(attribute.Int("rows", ds.Len()), attribute.Int("features", ds.Dim()))

	// members of date i use seeds Seed+i*K .. Seed+i*K+K-1
	seed := cfg.Seed + int64(i)*int64(cfg.EnsembleSize)
	ens, err := models.TrainEnsemble(ctx, cfg.Model, cfg.Params, ds, cfg.EnsembleSize, seed, cfg.FitWorkers)
	if err != nil {
		return nil, fail(StageTraining, 0, err)
	}

	preds := make(map[int]float64, len(cfg.Horizons))
	for _, h := range cfg.Horizons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := vintage.Simulate(e.meta, e.panel, d, h, cfg.Target)
		if err != nil {
			return nil, fail(StageIteratingHorizon, h, err)
		}
		x, err := e.testRow(means, v, ds.Features, d)
		if err != nil {
			return nil, fail(StagePredicting, h, err)
		}
		preds[h] = ens.Predict(x)
		if math.IsNaN(preds[h]) {
			log.Warn().Int("horizon", h).Msg("ensemble returned null prediction")
		}
		log.Debug().Int("horizon", h).Float64("prediction", preds[h]).Msg("predicted")
		span.AddEvent("predicted", trace.WithAttributes(
			attribute.Int("horizon", h),
			attribute.Float64("prediction", preds[h]),
		))
	}
	return preds, nil
}

// trainingSet fills the training window with its own means, flattens it and
// keeps the complete quarter-end rows.
func (e *Engine) trainingSet(means features.Means, train *datasets.Frame) (*datasets.TrainingSet, error) {
	filled, err := means.Apply(train)
	if err != nil {
		return nil, err
	}
	flat, err := features.Flatten(filled, e.cfg.Target, e.cfg.NLags)
	if err != nil {
		return nil, err
	}
	flat = flat.FilterRows(func(_ int, d time.Time) bool {
		return datasets.IsQuarterEnd(d)
	}).DropIncomplete()
	return datasets.NewTrainingSet(flat, e.cfg.Target)
}

// testRow fills and flattens a vintage and returns the feature vector of
// date d, ordered like columns.
func (e *Engine) testRow(means features.Means, v *datasets.Frame, columns []string, d time.Time) ([]float64, error) {
	filled, err := means.Apply(v)
	if err != nil {
		return nil, err
	}
	flat, err := features.Flatten(filled, e.cfg.Target, e.cfg.NLags)
	if err != nil {
		return nil, err
	}
	r := flat.RowIndex(d)
	if r < 0 {
		return nil, fmt.Errorf("no flattened row for %s", d.Format(time.DateOnly))
	}
	x := make([]float64, len(columns))
	for j, name := range columns {
		k := flat.ColumnIndex(name)
		if k < 0 {
			return nil, fmt.Errorf("%w: feature %q", datasets.ErrUnknownColumn, name)
		}
		x[j] = flat.At(r, k)
	}
	return x, nil
}
