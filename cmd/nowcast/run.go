package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/nowcast/nowcast"
	"github.com/Noofbiz/nowcast/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the rolling evaluation and write the prediction table",
	Long: `Run the rolling evaluation and write predictions_<model>.csv to the output
directory. A workbook with per-horizon error metrics and a chart are written
next to it unless disabled. With --metrics the same metrics are also written
as a Prometheus textfile.`,
	RunE: runRun,
}

var (
	runModel           string
	runSeed            int64
	runWorkers         int
	runFitWorkers      int
	runEnsembleSize    int
	runOutDir          string
	runLegacy          bool
	runNoXLSX          bool
	runNoPlot          bool
	runMetrics         bool
	runTrace           string
	runContinueOnError bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runModel, "model", "", "model type (XGBoost|RandomForest|OLS|MLP|Analog)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "random seed (0 picks one from the clock)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 1, "evaluation dates processed concurrently")
	runCmd.Flags().IntVar(&runFitWorkers, "fit-workers", 0, "concurrent member fits per ensemble (0 = GOMAXPROCS)")
	runCmd.Flags().IntVar(&runEnsembleSize, "ensemble-size", 10, "members per ensemble")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "output directory")
	runCmd.Flags().BoolVar(&runLegacy, "legacy", false, "write the CSV with horizon columns only")
	runCmd.Flags().BoolVar(&runNoXLSX, "no-xlsx", false, "skip the Excel workbook")
	runCmd.Flags().BoolVar(&runNoPlot, "no-plot", false, "skip the PNG chart")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "write the run's trace spans as JSON to this file")
	runCmd.Flags().BoolVar(&runMetrics, "metrics", false, "write a Prometheus textfile with the error metrics")
	runCmd.Flags().BoolVar(&runContinueOnError, "continue-on-error", false, "record failed dates as null and keep going")
}

func runRun(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.ModelType = runModel
	}
	if flags.Changed("seed") {
		cfg.Seed = runSeed
	}
	if flags.Changed("workers") {
		cfg.Workers = runWorkers
	}
	if flags.Changed("fit-workers") {
		cfg.FitWorkers = runFitWorkers
	}
	if flags.Changed("ensemble-size") {
		cfg.EnsembleSize = runEnsembleSize
	}
	if flags.Changed("out") {
		cfg.Paths.OutputDir = runOutDir
	}
	if flags.Changed("legacy") {
		cfg.Output.Legacy = runLegacy
	}
	if runNoXLSX {
		cfg.Output.XLSX = false
	}
	if runNoPlot {
		cfg.Output.Plot = false
	}
	if flags.Changed("trace") {
		cfg.Logging.TraceFile = runTrace
	}
	if flags.Changed("metrics") {
		cfg.Output.Metrics = runMetrics
	}
	if flags.Changed("continue-on-error") {
		cfg.ContinueOnError = runContinueOnError
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	meta, panel, err := loadInputs(cfg, log)
	if err != nil {
		return err
	}
	ec, err := cfg.Engine(log)
	if err != nil {
		return err
	}
	if cfg.Logging.TraceFile != "" {
		tracer, shutdown, err := newTracer(cfg.Logging.TraceFile)
		if err != nil {
			return fmt.Errorf("trace file: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("failed to flush trace spans")
			}
		}()
		ec.Tracer = tracer
	}
	engine, err := nowcast.NewEngine(ec, meta, panel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	for _, m := range res.Metrics() {
		log.Info().
			Int("horizon", m.Horizon).
			Int("n", m.N).
			Float64("rmse", m.RMSE).
			Float64("mae", m.MAE).
			Float64("bias", m.Bias).
			Msg("horizon metrics")
	}

	csvPath := report.Path(cfg.Paths.OutputDir, res.Model, ".csv")
	if err := report.SaveCSV(csvPath, res, cfg.Output.Legacy); err != nil {
		return err
	}
	log.Info().Str("path", csvPath).Msg("wrote predictions")

	if cfg.Output.XLSX {
		path := report.Path(cfg.Paths.OutputDir, res.Model, ".xlsx")
		if err := report.SaveXLSX(path, res); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("wrote workbook")
	}
	if cfg.Output.Plot {
		path := report.Path(cfg.Paths.OutputDir, res.Model, ".png")
		if err := report.SavePlot(path, res); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("wrote chart")
	}

	if cfg.Output.Metrics {
		path := report.Path(cfg.Paths.OutputDir, res.Model, ".prom")
		if err := report.SaveMetrics(path, res, time.Since(start)); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("wrote metrics textfile")
	}

	log.Info().Msgf("finished in %.2f minutes", time.Since(start).Minutes())
	return nil
}
