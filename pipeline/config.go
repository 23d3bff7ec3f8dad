package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"enercast/dataset"
	"enercast/logger"
	"enercast/ml"
)

// FileConfig declares one input file and its column types. Columns
// not listed are read as float64.
type FileConfig struct {
	Path       string   `yaml:"path"`
	IntCols    []string `yaml:"int_columns"`
	TimeCols   []string `yaml:"time_columns"`
	StringCols []string `yaml:"string_columns"`
}

func (f FileConfig) readOptions(layout string, maxRows int) dataset.ReadOptions {
	return dataset.ReadOptions{
		IntCols:    f.IntCols,
		TimeCols:   f.TimeCols,
		StringCols: f.StringCols,
		TimeLayout: layout,
		MaxRows:    maxRows,
	}
}

// DataConfig names the six input files of a run.
type DataConfig struct {
	Train        FileConfig `yaml:"train"`
	Test         FileConfig `yaml:"test"`
	Metadata     FileConfig `yaml:"metadata"`
	WeatherTrain FileConfig `yaml:"weather_train"`
	WeatherTest  FileConfig `yaml:"weather_test"`
	Template     FileConfig `yaml:"submission_template"`
	TimeLayout   string     `yaml:"time_layout"`
	// MaxRows caps the event files and the submission template for
	// sampled development runs. Metadata and weather are always read
	// fully so joins stay intact. 0 reads everything.
	MaxRows int `yaml:"max_rows"`
}

// FeatureConfig drives the merge and derivation stages. Nothing in
// the stages hardcodes a column name.
type FeatureConfig struct {
	EntityKey    string `yaml:"entity_key"`
	SiteKey      string `yaml:"site_key"`
	TimeColumn   string `yaml:"time_column"`
	TargetColumn string `yaml:"target_column"`
	RowIDColumn  string `yaml:"row_id_column"`
	// DropColumns are removed before derivation.
	DropColumns []string `yaml:"drop_columns"`
	// Categorical names the feature columns the trainer treats as
	// categories, integer-coded ones included.
	Categorical []string `yaml:"categorical_columns"`
	// YearColumn is rebased to an offset from 1900.
	YearColumn string `yaml:"year_offset_column"`
	// LogColumns get a log1p transform.
	LogColumns []string `yaml:"log_columns"`
}

// SplitConfig controls the stratified train/validation partition.
type SplitConfig struct {
	Fraction float64 `yaml:"fraction"`
	Strata   int     `yaml:"strata"`
	Seed     int64   `yaml:"seed"`
	// Folds > 1 trains one model per fold on a reseeded partition
	// and averages their predictions.
	Folds int `yaml:"folds"`
}

// OutputConfig names run outputs and artifacts.
type OutputConfig struct {
	SubmissionFile string `yaml:"submission_file"`
	ArtifactDir    string `yaml:"artifact_dir"`
	// DatabaseFile enables the sqlite run store when set.
	DatabaseFile string `yaml:"database_file"`
}

// Config is the full pipeline configuration, loaded from YAML.
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Features FeatureConfig  `yaml:"features"`
	Split    SplitConfig    `yaml:"split"`
	Train    ml.TrainConfig `yaml:"train"`
	Output   OutputConfig   `yaml:"output"`
	Log      logger.Config  `yaml:"log"`
}

// LoadConfig reads, defaults and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with working values.
func (c *Config) ApplyDefaults() {
	if c.Data.TimeLayout == "" {
		c.Data.TimeLayout = dataset.DefaultTimeLayout
	}
	if c.Split.Fraction == 0 {
		c.Split.Fraction = 0.8
	}
	if c.Split.Strata == 0 {
		c.Split.Strata = 10
	}
	if c.Split.Folds == 0 {
		c.Split.Folds = 1
	}
	c.Train.ApplyDefaults()
}

// Validate fails fast on configuration errors, naming the field.
func (c *Config) Validate() error {
	files := []struct {
		name string
		path string
	}{
		{"data.train.path", c.Data.Train.Path},
		{"data.test.path", c.Data.Test.Path},
		{"data.metadata.path", c.Data.Metadata.Path},
		{"data.weather_train.path", c.Data.WeatherTrain.Path},
		{"data.weather_test.path", c.Data.WeatherTest.Path},
		{"data.submission_template.path", c.Data.Template.Path},
	}
	for _, f := range files {
		if f.path == "" {
			return fmt.Errorf("config: %s is required", f.name)
		}
	}
	fields := []struct {
		name  string
		value string
	}{
		{"features.entity_key", c.Features.EntityKey},
		{"features.site_key", c.Features.SiteKey},
		{"features.time_column", c.Features.TimeColumn},
		{"features.target_column", c.Features.TargetColumn},
		{"features.row_id_column", c.Features.RowIDColumn},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("config: %s is required", f.name)
		}
	}
	protected := []string{c.Features.EntityKey, c.Features.SiteKey, c.Features.TimeColumn, c.Features.TargetColumn}
	for _, name := range c.Features.DropColumns {
		for _, p := range protected {
			if name == p {
				return fmt.Errorf("config: features.drop_columns must not contain %s", name)
			}
		}
	}
	if c.Split.Fraction <= 0 || c.Split.Fraction >= 1 {
		return fmt.Errorf("config: split.fraction %v outside (0,1)", c.Split.Fraction)
	}
	if c.Split.Strata < 1 {
		return fmt.Errorf("config: split.strata must be at least 1, got %d", c.Split.Strata)
	}
	if c.Split.Folds < 1 {
		return fmt.Errorf("config: split.folds must be at least 1, got %d", c.Split.Folds)
	}
	if c.Output.SubmissionFile == "" {
		return fmt.Errorf("config: output.submission_file is required")
	}
	if err := c.Train.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
