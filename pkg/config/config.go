// Package config provides configuration loading and validation for the
// rbconv CLI.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/rbconv/rbconv/pkg/dialect"
)

// Sentinel validation errors.
var (
	ErrInvalidES       = errors.New("invalid es level")
	ErrInvalidQuote    = errors.New("invalid quote style")
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrInvalidFormat   = errors.New("invalid log format")
	ErrInvalidMaxSize  = errors.New("invalid cache max size")
	ErrSchema          = errors.New("config file violates schema")
)

// Default configuration values.
const (
	defaultBackend     = "miniruby"
	defaultES          = "es2015"
	defaultQuote       = "double"
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
	defaultMaxSize     = "64MB"
	defaultMetricsAddr = "localhost:9464"
)

// defaultFilters is the default rewrite chain. Method mapping runs first
// so the name-based rewrites see the original Ruby names.
var defaultFilters = []string{"functions", "camelcase", "return"}

//go:embed rbconv-schema.json
var schemaBytes []byte

// Config holds all configuration for the rbconv CLI.
type Config struct {
	Convert ConvertConfig `mapstructure:"convert"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ConvertConfig holds conversion defaults applied when the corresponding
// flag is not given.
type ConvertConfig struct {
	Backend    string   `mapstructure:"backend"`
	Filters    []string `mapstructure:"filters"`
	ES         string   `mapstructure:"es"`
	Quote      string   `mapstructure:"quote"`
	Semicolons bool     `mapstructure:"semicolons"`
	SourceMap  bool     `mapstructure:"source_map"`
	Strict     bool     `mapstructure:"strict"`
}

// CacheConfig holds the conversion cache settings.
type CacheConfig struct {
	MaxSize string `mapstructure:"max_size"`
	Enabled bool   `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// MaxSizeBytes parses the cache size limit ("64MB", "1GiB").
func (c CacheConfig) MaxSizeBytes() (int64, error) {
	size, err := humanize.ParseBytes(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMaxSize, c.MaxSize)
	}

	return int64(size), nil
}

// Load loads configuration from the given file, or from .rbconv.yml in the
// working directory when path is empty, with RBCONV_ environment overrides.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if path != "" {
		viperCfg.SetConfigFile(path)
	} else {
		viperCfg.SetConfigName(".rbconv")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
	}

	viperCfg.SetEnvPrefix("RBCONV")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) && !errors.Is(readErr, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", readErr)
		}
	}

	if used := viperCfg.ConfigFileUsed(); used != "" && readErr == nil {
		schemaErr := validateSchema(used)
		if schemaErr != nil {
			return nil, schemaErr
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := validate(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Conversion defaults.
	viperCfg.SetDefault("convert.backend", defaultBackend)
	viperCfg.SetDefault("convert.filters", defaultFilters)
	viperCfg.SetDefault("convert.es", defaultES)
	viperCfg.SetDefault("convert.quote", defaultQuote)
	viperCfg.SetDefault("convert.semicolons", true)
	viperCfg.SetDefault("convert.source_map", false)
	viperCfg.SetDefault("convert.strict", false)

	// Cache defaults.
	viperCfg.SetDefault("cache.enabled", true)
	viperCfg.SetDefault("cache.max_size", defaultMaxSize)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", defaultLogLevel)
	viperCfg.SetDefault("logging.format", defaultLogFormat)

	// Metrics defaults.
	viperCfg.SetDefault("metrics.enabled", false)
	viperCfg.SetDefault("metrics.addr", defaultMetricsAddr)
}

// validateSchema checks the raw config file against the embedded JSON
// schema. Typos in section or key names fail here instead of being
// silently dropped by unmarshal.
func validateSchema(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var doc map[string]any

	yamlErr := yaml.Unmarshal(raw, &doc)
	if yamlErr != nil {
		return fmt.Errorf("parse config file: %w", yamlErr)
	}

	if doc == nil {
		return nil
	}

	docJSON, marshalErr := json.Marshal(doc)
	if marshalErr != nil {
		return fmt.Errorf("encode config for validation: %w", marshalErr)
	}

	result, validateErr := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(docJSON),
	)
	if validateErr != nil {
		return fmt.Errorf("validate config schema: %w", validateErr)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
}

// validate validates the merged configuration values.
func validate(config *Config) error {
	_, esErr := dialect.Parse(config.Convert.ES)
	if esErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidES, config.Convert.ES)
	}

	switch config.Convert.Quote {
	case "", "double", "single":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidQuote, config.Convert.Quote)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, config.Logging.Format)
	}

	if config.Cache.Enabled {
		_, sizeErr := config.Cache.MaxSizeBytes()
		if sizeErr != nil {
			return sizeErr
		}
	}

	return nil
}
