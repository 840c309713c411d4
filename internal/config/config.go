// Package config loads run definitions: the base URL, how many pairs to
// synthesize, the parameters that fill each URL and how the pairs are
// compared and stored.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/source"
	"github.com/FranksOps/synapse/internal/storage/registry"
)

// EnvPrefix prefixes environment overrides, e.g. SYNAPSE_COMPARISON_THRESHOLD.
const EnvPrefix = "SYNAPSE"

// Execution modes.
const (
	ModeConstruct = "construct"
	ModeBatch     = "batch"
)

// Config is a run definition.
type Config struct {
	Name       string         `mapstructure:"name" validate:"required"`
	BaseURL    string         `mapstructure:"baseUrl" validate:"required,url"`
	Execution  Execution      `mapstructure:"execution"`
	Parameters []source.Param `mapstructure:"parameters"`
	Comparison Comparison     `mapstructure:"comparison"`
	Storage    Storage        `mapstructure:"storage"`
	Metrics    Metrics        `mapstructure:"metrics"`
}

// Execution controls how many pairs are produced and how many are compared
// at once.
type Execution struct {
	Mode       string `mapstructure:"mode" validate:"oneof=construct batch"`
	Concurrent int    `mapstructure:"concurrent" validate:"gte=1"`
	Iterations int    `mapstructure:"iterations" validate:"gte=1"`
}

// Comparison configures the second URL and the evaluator.
type Comparison struct {
	Enabled   bool          `mapstructure:"enabled"`
	Type      string        `mapstructure:"type" validate:"oneof=image text"`
	BaseURL2  string        `mapstructure:"baseUrl2" validate:"required_if=Enabled true"`
	Threshold float64       `mapstructure:"threshold" validate:"gte=0,lte=1"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
	IncludeAA bool          `mapstructure:"includeAA"`
}

// Storage selects the archive backend; see registry.Open.
type Storage struct {
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=none csv ndjson sqlite postgres"`
	DSN     string `mapstructure:"dsn"`
}

// Metrics exposes /metrics on Port when it is non-zero.
type Metrics struct {
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "")
	v.SetDefault("baseUrl", "")
	v.SetDefault("execution.mode", ModeConstruct)
	v.SetDefault("execution.concurrent", 1)
	v.SetDefault("execution.iterations", source.DefaultIterations)
	v.SetDefault("comparison.enabled", false)
	v.SetDefault("comparison.type", string(compare.KindImage))
	v.SetDefault("comparison.baseUrl2", "")
	v.SetDefault("comparison.threshold", compare.DefaultThreshold)
	v.SetDefault("comparison.timeout", compare.DefaultTimeout)
	v.SetDefault("comparison.includeAA", false)
	v.SetDefault("storage.backend", registry.None)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("metrics.port", 0)
}

// Load reads the YAML or JSON file at path, applies SYNAPSE_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints, including those of every parameter.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := source.ValidateParams(c.Parameters); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CompareConfig converts the comparison section for the comparator.
func (c *Config) CompareConfig() compare.Config {
	threshold := c.Comparison.Threshold
	return compare.Config{
		Kind:      compare.Kind(c.Comparison.Type),
		Timeout:   c.Comparison.Timeout,
		Threshold: &threshold,
		IncludeAA: c.Comparison.IncludeAA,
	}.WithDefaults()
}
