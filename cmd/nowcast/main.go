// Command nowcast runs rolling out-of-sample nowcast evaluations and exposes
// the intermediate tables (vintages, flattened features) for inspection.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Noofbiz/nowcast/config"
	"github.com/Noofbiz/nowcast/datasets"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "nowcast",
	Short: "Rolling GDP nowcast evaluation",
	Long: `Evaluates a nowcasting model over a validation window. For every quarter-end
date a fresh ensemble is trained on data available three months earlier and
asked to nowcast the target from simulated data vintages at each horizon.

Configuration is read from --config (YAML), then NOWCAST_* environment
variables, then command-line flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (trace|debug|info|warn|error|disabled)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	log, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

// resolveCSV accepts either a CSV path or a directory holding one.
func resolveCSV(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return datasets.FindCSVInAssets(path, "")
	}
	return path, nil
}

// loadInputs reads the metadata table and the panel named by cfg.
func loadInputs(cfg *config.Config, log zerolog.Logger) (*datasets.Metadata, *datasets.Frame, error) {
	metaPath, err := resolveCSV(cfg.Paths.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata: %w", err)
	}
	meta, err := datasets.LoadMetadata(metaPath)
	if err != nil {
		return nil, nil, err
	}

	panelPath, err := resolveCSV(cfg.Paths.Panel)
	if err != nil {
		return nil, nil, fmt.Errorf("panel: %w", err)
	}
	panel, err := datasets.LoadPanel(panelPath)
	if err != nil {
		return nil, nil, err
	}
	if err := meta.Covers(panel, cfg.Target); err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("metadata", metaPath).
		Int("series", meta.Len()).
		Str("panel", panelPath).
		Int("rows", panel.Len()).
		Int("columns", panel.Width()).
		Msg("loaded inputs")

	if info, err := meta.Lookup(cfg.Target); err == nil && info.MonthsLag != cfg.GDPLag {
		log.Warn().
			Int("gdp_lag", cfg.GDPLag).
			Int("metadata_lag", info.MonthsLag).
			Msg("gdp_lag disagrees with metadata, metadata wins")
	}
	return meta, panel, nil
}
