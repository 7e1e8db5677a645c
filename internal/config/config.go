package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"resampler/internal/output"
	"resampler/internal/resample"
	"resampler/pkg/model"
)

// Config represents the application configuration
type Config struct {
	Input  InputConfig  `yaml:"input" json:"input"`
	Split  SplitConfig  `yaml:"split" json:"split"`
	Output OutputConfig `yaml:"output" json:"output"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// InputConfig holds where input files are read from
type InputConfig struct {
	Dir      string `yaml:"dir" json:"dir" validate:"required"`
	Pattern  string `yaml:"pattern" json:"pattern" validate:"required"`
	Timezone string `yaml:"timezone" json:"timezone"` // IANA name, "Local" or "UTC"
}

// SplitConfig holds the partitioning settings
type SplitConfig struct {
	Interval        string  `yaml:"interval" json:"interval" validate:"oneof=d w m day week month daily weekly monthly"`
	Ratio           string  `yaml:"ratio" json:"ratio" validate:"required"`    // train:valid:test
	MinValue        float64 `yaml:"min_value" json:"min_value" validate:"gte=0"` // 0 disables the filter
	AllowZeroSplits bool    `yaml:"allow_zero_splits" json:"allow_zero_splits"`
}

// OutputConfig holds where and how results are written
type OutputConfig struct {
	Dir                 string `yaml:"dir" json:"dir" validate:"required"` // relative to the input dir unless absolute
	Suffix              string `yaml:"suffix" json:"suffix"`
	Format              string `yaml:"format" json:"format" validate:"oneof=csv json parquet"`
	IncludeOriginalDate bool   `yaml:"include_original_date" json:"include_original_date"`
	Report              bool   `yaml:"report" json:"report"` // write .lastrun.json
}

// LogConfig holds logger settings
type LogConfig struct {
	Level    string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Encoding string `yaml:"encoding" json:"encoding" validate:"oneof=console json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Dir:      ".",
			Pattern:  "*.csv",
			Timezone: "Local",
		},
		Split: SplitConfig{
			Interval: "d",
			Ratio:    "7:2:1",
		},
		Output: OutputConfig{
			Dir:    "ResampledData",
			Suffix: "_resampled",
			Format: string(output.FormatCSV),
			Report: true,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Load loads configuration from a YAML file, a .env file and the environment.
// Missing files are not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings with RESAMPLE_* environment variables
func (c *Config) applyEnv() error {
	if v := os.Getenv("RESAMPLE_DIR"); v != "" {
		c.Input.Dir = v
	}
	if v := os.Getenv("RESAMPLE_TZ"); v != "" {
		c.Input.Timezone = v
	}
	if v := os.Getenv("RESAMPLE_INTERVAL"); v != "" {
		c.Split.Interval = v
	}
	if v := os.Getenv("RESAMPLE_RATIO"); v != "" {
		c.Split.Ratio = v
	}
	if v := os.Getenv("RESAMPLE_MIN_VALUE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RESAMPLE_MIN_VALUE: %w", err)
		}
		c.Split.MinValue = f
	}
	if v := os.Getenv("RESAMPLE_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("RESAMPLE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid. Interval and format names
// are normalized to lower case first.
func (c *Config) Validate() error {
	c.Split.Interval = strings.ToLower(strings.TrimSpace(c.Split.Interval))
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: %q fails %q", fe.Namespace(), fe.Value(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	ratio, err := model.ParseRatio(c.Split.Ratio)
	if err != nil {
		return err
	}
	if err := ratio.Validate(c.Split.AllowZeroSplits); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured time zone
func (c *Config) Location() (*time.Location, error) {
	switch c.Input.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Input.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Input.Timezone, err)
	}
	return loc, nil
}

// Options converts the configuration into the immutable resampling options
func (c *Config) Options() (resample.Options, error) {
	if err := c.Validate(); err != nil {
		return resample.Options{}, err
	}
	g, err := model.ParseGranularity(c.Split.Interval)
	if err != nil {
		return resample.Options{}, err
	}
	ratio, _ := model.ParseRatio(c.Split.Ratio)
	loc, _ := c.Location()

	return resample.Options{
		Granularity: g,
		Ratio:       ratio,
		MinValue:    c.Split.MinValue,
		Location:    loc,
	}, nil
}

// Format returns the parsed output format
func (c *Config) Format() output.Format {
	f, err := output.ParseFormat(c.Output.Format)
	if err != nil {
		return output.FormatCSV
	}
	return f
}
