// Package config loads the run configuration of the nowcast command.
//
// Values come from Default, then an optional YAML file, then NOWCAST_*
// environment variables. The merged result is validated before use and
// converted into the immutable nowcast.Config the engine runs on.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"github.com/Noofbiz/nowcast/datasets"
	"github.com/Noofbiz/nowcast/models"
	"github.com/Noofbiz/nowcast/nowcast"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "NOWCAST"

// Config represents the complete command configuration.
type Config struct {
	ModelType  string `yaml:"model_type" envconfig:"MODEL_TYPE" validate:"required,modelkind"`
	Target     string `yaml:"target" envconfig:"TARGET" validate:"required"`
	LagsToTest []int  `yaml:"lags_to_test" envconfig:"LAGS_TO_TEST" validate:"required,min=1,unique"`
	// GDPLag documents the target's publication lag. The metadata table is
	// authoritative; a disagreement is logged.
	GDPLag int `yaml:"gdp_lag" envconfig:"GDP_LAG" validate:"gte=0"`

	StartTrain string `yaml:"start_train" envconfig:"START_TRAIN" validate:"required,date"`
	EndTrain   string `yaml:"end_train" envconfig:"END_TRAIN" validate:"required,date"`
	StartVal   string `yaml:"start_val" envconfig:"START_VAL" validate:"required,date"`
	EndVal     string `yaml:"end_val" envconfig:"END_VAL" validate:"required,date"`

	NLags          int   `yaml:"n_lags" envconfig:"N_LAGS" validate:"gte=0"`
	EnsembleSize   int   `yaml:"ensemble_size" envconfig:"ENSEMBLE_SIZE" validate:"gte=1"`
	TrainingBuffer int   `yaml:"training_buffer_months" envconfig:"TRAINING_BUFFER_MONTHS" validate:"gte=0"`
	Seed           int64 `yaml:"seed" envconfig:"SEED"`

	Workers         int  `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`
	FitWorkers      int  `yaml:"fit_workers" envconfig:"FIT_WORKERS" validate:"gte=0"`
	ContinueOnError bool `yaml:"continue_on_error" envconfig:"CONTINUE_ON_ERROR"`

	Boosting BoostingConfig `yaml:"boosting" envconfig:"BOOSTING"`
	Forest   ForestConfig   `yaml:"forest" envconfig:"FOREST"`
	MLP      MLPConfig      `yaml:"mlp" envconfig:"MLP"`
	Analog   AnalogConfig   `yaml:"analog" envconfig:"ANALOG"`

	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Output  OutputConfig  `yaml:"output" envconfig:"OUTPUT"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// BoostingConfig overrides the gradient-boosted trees profile.
type BoostingConfig struct {
	Rounds       int     `yaml:"rounds" envconfig:"ROUNDS" validate:"gte=0"`
	LearningRate float64 `yaml:"learning_rate" envconfig:"LEARNING_RATE" validate:"gt=0"`
	MaxDepth     int     `yaml:"max_depth" envconfig:"MAX_DEPTH" validate:"gte=0"`
	Lambda       float64 `yaml:"lambda" envconfig:"LAMBDA" validate:"gte=0"`
	Alpha        float64 `yaml:"alpha" envconfig:"ALPHA" validate:"gte=0"`
}

// ForestConfig overrides the random forest profile.
type ForestConfig struct {
	Trees            int     `yaml:"trees" envconfig:"TREES" validate:"gte=1"`
	MaxDepth         int     `yaml:"max_depth" envconfig:"MAX_DEPTH" validate:"gte=0"`
	MinSplitFraction float64 `yaml:"min_split_fraction" envconfig:"MIN_SPLIT_FRACTION" validate:"gte=0,lte=1"`
	MinLeafFraction  float64 `yaml:"min_leaf_fraction" envconfig:"MIN_LEAF_FRACTION" validate:"gte=0,lte=1"`
}

// MLPConfig overrides the multilayer perceptron profile.
type MLPConfig struct {
	HiddenSizes  []int   `yaml:"hidden_sizes" envconfig:"HIDDEN_SIZES" validate:"dive,gte=1"`
	LearningRate float64 `yaml:"learning_rate" envconfig:"LEARNING_RATE" validate:"gt=0"`
	Epochs       int     `yaml:"epochs" envconfig:"EPOCHS" validate:"gte=1"`
	BatchSize    int     `yaml:"batch_size" envconfig:"BATCH_SIZE" validate:"gte=1"`
}

// AnalogConfig overrides the nearest-neighbour analog profile.
type AnalogConfig struct {
	K    int `yaml:"k" envconfig:"K" validate:"gte=1"`
	Sims int `yaml:"sims" envconfig:"SIMS" validate:"gte=1"`
}

// PathsConfig contains the input and output locations.
type PathsConfig struct {
	Metadata  string `yaml:"metadata" envconfig:"METADATA" validate:"required"`
	Panel     string `yaml:"panel" envconfig:"PANEL" validate:"required"`
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
}

// OutputConfig selects the artefacts written after a run.
type OutputConfig struct {
	// Legacy writes the CSV without the date and actual columns.
	Legacy bool `yaml:"legacy" envconfig:"LEGACY"`
	XLSX   bool `yaml:"xlsx" envconfig:"XLSX"`
	Plot   bool `yaml:"plot" envconfig:"PLOT"`

	// Metrics writes a Prometheus textfile with the run's error metrics.
	Metrics bool `yaml:"metrics" envconfig:"METRICS"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=console json"`

	// TraceFile receives the run's spans as JSON when set.
	TraceFile string `yaml:"trace_file" envconfig:"TRACE_FILE"`
}

// Default returns the reference configuration.
func Default() *Config {
	p := models.DefaultParams()
	return &Config{
		ModelType:      models.GradientBoosting.String(),
		Target:         "gdpc1",
		LagsToTest:     []int{-2, -1, 0, 1, 2},
		GDPLag:         1,
		StartTrain:     "1947-01-01",
		EndTrain:       "2005-02-01",
		StartVal:       "2005-03-01",
		EndVal:         "2010-03-01",
		NLags:          4,
		EnsembleSize:   10,
		TrainingBuffer: 3,
		Workers:        1,
		Boosting: BoostingConfig{
			Rounds:       p.Boosting.Rounds,
			LearningRate: p.Boosting.LearningRate,
			MaxDepth:     p.Boosting.MaxDepth,
			Lambda:       p.Boosting.Lambda,
			Alpha:        p.Boosting.Alpha,
		},
		Forest: ForestConfig{
			Trees:            p.Forest.Trees,
			MaxDepth:         p.Forest.MaxDepth,
			MinSplitFraction: p.Forest.MinSplitFraction,
			MinLeafFraction:  p.Forest.MinLeafFraction,
		},
		MLP: MLPConfig{
			HiddenSizes:  p.MLP.HiddenSizes,
			LearningRate: p.MLP.LearningRate,
			Epochs:       p.MLP.Epochs,
			BatchSize:    p.MLP.BatchSize,
		},
		Analog: AnalogConfig{
			K:    p.Analog.K,
			Sims: p.Analog.Sims,
		},
		Paths: PathsConfig{
			Metadata:  "data/input/raw/meta_data.csv",
			Panel:     "data/input/cleaned/data_tf.csv",
			OutputDir: "data/output",
		},
		Output: OutputConfig{XLSX: true, Plot: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Environment variables take precedence over the file.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file at path onto cfg. Keys absent from
// the file keep their current value.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// newValidator returns a validator with the custom rules used by Config.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("modelkind", isModelKind)
	v.RegisterValidation("date", isDate)
	return v
}

func isModelKind(fl validator.FieldLevel) bool {
	_, err := models.ParseKind(fl.Field().String())
	return err == nil
}

func isDate(fl validator.FieldLevel) bool {
	_, err := datasets.ParseDate(fl.Field().String())
	return err == nil
}

// Validate checks field constraints. Date ordering is checked when the
// engine configuration is built.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, formatValidationError(fe))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "modelkind":
		return fmt.Sprintf("%s: unsupported model type %q", fe.Namespace(), fe.Value())
	case "date":
		return fmt.Sprintf("%s: invalid date %q", fe.Namespace(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Namespace(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
}

// Engine converts the configuration into the engine's run parameters.
func (c *Config) Engine(logger zerolog.Logger) (nowcast.Config, error) {
	kind, err := models.ParseKind(c.ModelType)
	if err != nil {
		return nowcast.Config{}, err
	}
	var dates [4]time.Time
	for i, s := range []string{c.StartTrain, c.EndTrain, c.StartVal, c.EndVal} {
		d, err := datasets.ParseDate(s)
		if err != nil {
			return nowcast.Config{}, err
		}
		dates[i] = d
	}

	params := models.DefaultParams()
	params.Boosting.Rounds = c.Boosting.Rounds
	params.Boosting.LearningRate = c.Boosting.LearningRate
	params.Boosting.MaxDepth = c.Boosting.MaxDepth
	params.Boosting.Lambda = c.Boosting.Lambda
	params.Boosting.Alpha = c.Boosting.Alpha
	params.Forest.Trees = c.Forest.Trees
	params.Forest.MaxDepth = c.Forest.MaxDepth
	params.Forest.MinSplitFraction = c.Forest.MinSplitFraction
	params.Forest.MinLeafFraction = c.Forest.MinLeafFraction
	params.MLP.HiddenSizes = append([]int(nil), c.MLP.HiddenSizes...)
	params.MLP.LearningRate = c.MLP.LearningRate
	params.MLP.Epochs = c.MLP.Epochs
	params.MLP.BatchSize = c.MLP.BatchSize
	params.Analog.K = c.Analog.K
	params.Analog.Sims = c.Analog.Sims

	cfg := nowcast.Config{
		Target:          c.Target,
		Horizons:        append([]int(nil), c.LagsToTest...),
		NLags:           c.NLags,
		EnsembleSize:    c.EnsembleSize,
		Model:           kind,
		Params:          params,
		TrainStart:      dates[0],
		TrainEnd:        dates[1],
		ValStart:        dates[2],
		ValEnd:          dates[3],
		TrainingBuffer:  c.TrainingBuffer,
		Seed:            c.Seed,
		Workers:         c.Workers,
		FitWorkers:      c.FitWorkers,
		ContinueOnError: c.ContinueOnError,
		Logger:          logger,
	}
	if err := cfg.Validate(); err != nil {
		return nowcast.Config{}, err
	}
	return cfg, nil
}

// Logger builds the zerolog logger described by the logging section.
func (c *Config) Logger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}
	if c.Logging.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
