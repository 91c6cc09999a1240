package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Stale model policies.
const (
	StaleWarn    = "warn"
	StaleRetrain = "retrain"
	StaleIgnore  = "ignore"
)

type Config struct {
	Seed int64 `yaml:"seed"`
	Data struct {
		Dir       string `yaml:"dir"`
		TrainFile string `yaml:"train_file"`
		TestFile  string `yaml:"test_file"`
		Encoding  string `yaml:"encoding"`
		HasHeader *bool  `yaml:"has_header"`
		Separator string `yaml:"separator"`
	} `yaml:"data"`
	Model struct {
		File        string `yaml:"file"`
		StalePolicy string `yaml:"stale_policy"`
	} `yaml:"model"`
	Predict struct {
		VendorID    string `yaml:"vendor_id"`
		RateCode    string `yaml:"rate_code"`
		PaymentType string `yaml:"payment_type"`
	} `yaml:"predict"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	History struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"history"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file. A missing file yields Default().
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Data.Dir == "" {
		c.Data.Dir = "Data"
	}
	if c.Data.TrainFile == "" {
		c.Data.TrainFile = "taxi-fare-train.csv"
	}
	if c.Data.TestFile == "" {
		c.Data.TestFile = "taxi-fare-test.csv"
	}
	if c.Data.Encoding == "" {
		c.Data.Encoding = "utf-8"
	}
	if c.Data.HasHeader == nil {
		header := true
		c.Data.HasHeader = &header
	}
	if c.Data.Separator == "" {
		c.Data.Separator = ","
	}
	if c.Model.File == "" {
		c.Model.File = "Model.zip"
	}
	if c.Model.StalePolicy == "" {
		c.Model.StalePolicy = StaleWarn
	}
	if c.Predict.VendorID == "" {
		c.Predict.VendorID = "VTS"
	}
	if c.Predict.RateCode == "" {
		c.Predict.RateCode = "1"
	}
	if c.Predict.PaymentType == "" {
		c.Predict.PaymentType = "CRD"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 28
	}
}

func (c *Config) Validate() error {
	switch c.Model.StalePolicy {
	case StaleWarn, StaleRetrain, StaleIgnore:
	default:
		return fmt.Errorf("unknown stale_policy %q", c.Model.StalePolicy)
	}
	if len([]rune(c.Data.Separator)) != 1 {
		return fmt.Errorf("separator must be a single character, got %q", c.Data.Separator)
	}
	return nil
}

func (c *Config) TrainPath() string { return filepath.Join(c.Data.Dir, c.Data.TrainFile) }

func (c *Config) TestPath() string { return filepath.Join(c.Data.Dir, c.Data.TestFile) }

func (c *Config) ModelPath() string { return filepath.Join(c.Data.Dir, c.Model.File) }

// SeparatorRune returns the configured field separator.
func (c *Config) SeparatorRune() rune {
	return []rune(c.Data.Separator)[0]
}
