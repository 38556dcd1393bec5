package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/nowcast/datasets"
	"github.com/Noofbiz/nowcast/features"
	"github.com/Noofbiz/nowcast/vintage"
)

var vintageCmd = &cobra.Command{
	Use:   "vintage",
	Short: "Print the simulated data vintage for a date and horizon as CSV",
	RunE:  runVintage,
}

var flattenCmd = &cobra.Command{
	Use:   "flatten",
	Short: "Print the flattened feature table as CSV",
	Long: `Print the flattened feature table as CSV. With --as-of the panel is first
reduced to the vintage for that date and --horizon. With --fill nulls are
replaced by column means of the panel rows up to --as-of minus the training
buffer, or of the whole panel when --as-of is not set.`,
	RunE: runFlatten,
}

var (
	inspectAsOf    string
	inspectHorizon int
	inspectNLags   int
	inspectFill    bool
	inspectOut     string
)

func init() {
	rootCmd.AddCommand(vintageCmd, flattenCmd)

	vintageCmd.Flags().StringVar(&inspectAsOf, "as-of", "", "vintage date, e.g. 2005-03-01 (required)")
	vintageCmd.Flags().IntVar(&inspectHorizon, "horizon", 0, "forecast horizon in months")
	vintageCmd.Flags().StringVar(&inspectOut, "out", "", "write to this file instead of stdout")
	vintageCmd.MarkFlagRequired("as-of")

	flattenCmd.Flags().StringVar(&inspectAsOf, "as-of", "", "flatten the vintage for this date")
	flattenCmd.Flags().IntVar(&inspectHorizon, "horizon", 0, "forecast horizon in months, used with --as-of")
	flattenCmd.Flags().IntVar(&inspectNLags, "n-lags", -1, "number of lags (default from config)")
	flattenCmd.Flags().BoolVar(&inspectFill, "fill", false, "mean-fill nulls before flattening")
	flattenCmd.Flags().StringVar(&inspectOut, "out", "", "write to this file instead of stdout")
}

// output returns the destination for a table and a func closing it.
func output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if inspectOut == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(inspectOut)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func runVintage(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	asOf, err := datasets.ParseDate(inspectAsOf)
	if err != nil {
		return err
	}
	meta, panel, err := loadInputs(cfg, log)
	if err != nil {
		return err
	}
	monthly, err := panel.AsMonthly()
	if err != nil {
		return err
	}
	v, err := vintage.Simulate(meta, monthly, asOf, inspectHorizon, cfg.Target)
	if err != nil {
		return err
	}

	w, closeFn, err := output(cmd)
	if err != nil {
		return err
	}
	if err := v.WriteCSV(w); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}

func runFlatten(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	nLags := cfg.NLags
	if inspectNLags >= 0 {
		nLags = inspectNLags
	}
	meta, panel, err := loadInputs(cfg, log)
	if err != nil {
		return err
	}
	table, err := panel.AsMonthly()
	if err != nil {
		return err
	}

	reference := table
	if inspectAsOf != "" {
		asOf, err := datasets.ParseDate(inspectAsOf)
		if err != nil {
			return err
		}
		reference = table.Until(datasets.AddMonths(asOf, -cfg.TrainingBuffer))
		if table, err = vintage.Simulate(meta, table, asOf, inspectHorizon, cfg.Target); err != nil {
			return err
		}
	}
	if inspectFill {
		if table, err = features.MeanFill(reference, table); err != nil {
			return err
		}
	}
	flat, err := features.Flatten(table, cfg.Target, nLags)
	if err != nil {
		return err
	}
	log.Info().
		Int("rows", flat.Len()).
		Int("columns", flat.Width()).
		Int("n_lags", nLags).
		Str("as_of", inspectAsOf).
		Msg("flattened panel")

	w, closeFn, err := output(cmd)
	if err != nil {
		return err
	}
	if err := flat.WriteCSV(w); err != nil {
		closeFn()
		return err
	}
	return closeFn()
}
