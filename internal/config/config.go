package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat    string `mapstructure:"log_format" yaml:"log_format"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`

	// Database defaults for `run --table` and `ping`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`

	// Loading
	NullMarkers []string `mapstructure:"null_markers" yaml:"null_markers"`
	MaxRows     int      `mapstructure:"max_rows" yaml:"max_rows"`

	// Outlier defaults
	ZThreshold    float64 `mapstructure:"z_threshold" yaml:"z_threshold"`
	IQRMultiplier float64 `mapstructure:"iqr_multiplier" yaml:"iqr_multiplier"`

	// Batch
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// Keys lists the settable configuration keys.
var Keys = []string{
	"log_level", "log_format", "output_format", "postgres_dsn", "null_markers", "max_rows",
	"z_threshold", "iqr_multiplier", "workers",
}

// Default returns the built-in settings used when no file or environment overrides them.
func Default() *Global {
	return &Global{
		LogLevel:      "warn",
		LogFormat:     "console",
		OutputFormat:  "md",
		ZThreshold:    3.0,
		IQRMultiplier: 1.5,
		Workers:       4,
	}
}

// Dir returns ~/.tabaudit.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tabaudit"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tabaudit/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("TABAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("null_markers", []string{})
	v.SetDefault("max_rows", 0)
	v.SetDefault("z_threshold", d.ZThreshold)
	v.SetDefault("iqr_multiplier", d.IQRMultiplier)
	v.SetDefault("workers", d.Workers)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values no command can run with.
func (c *Global) Validate() error {
	if c.ZThreshold < 0 {
		return fmt.Errorf("z_threshold must be >= 0 (got %v)", c.ZThreshold)
	}
	if c.IQRMultiplier < 0 {
		return fmt.Errorf("iqr_multiplier must be >= 0 (got %v)", c.IQRMultiplier)
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("max_rows must be >= 0 (got %d)", c.MaxRows)
	}
	switch strings.ToLower(c.OutputFormat) {
	case "md", "markdown", "json", "yaml", "yml":
	default:
		return fmt.Errorf("output_format must be md, json or yaml (got %q)", c.OutputFormat)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json (got %q)", c.LogFormat)
	}
	return nil
}
