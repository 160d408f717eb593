//-------------------------------------------------------------------------
//
// warehousectl - e-commerce warehouse builder
//
// Copyright (c) 2025 - 2026, Shopmetrics, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for warehousectl.
// Configuration is loaded from config files and CLI flags (no environment
// variables). CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for warehousectl.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Init holds configuration for the init subcommand.
	Init InitConfig `mapstructure:"init"`

	// Load holds configuration for the load subcommand.
	Load LoadConfig `mapstructure:"load"`

	// Report holds configuration for the report subcommand.
	Report ReportConfig `mapstructure:"report"`

	// Sample holds configuration for the sample subcommand.
	Sample SampleConfig `mapstructure:"sample"`
}

// InitConfig holds configuration for schema initialization.
type InitConfig struct {
	// DateRange optionally prepopulates the date dimension, format
	// "YYYY-MM-DD:YYYY-MM-DD" (inclusive).
	DateRange string `mapstructure:"date_range"`

	// DropExisting drops existing schema before initialization.
	DropExisting bool `mapstructure:"drop_existing"`
}

// LoadConfig holds configuration for the ETL load.
type LoadConfig struct {
	// File is the raw transaction CSV to load.
	File string `mapstructure:"file"`

	// RejectsFile is where the rejection report is written (empty = none).
	RejectsFile string `mapstructure:"rejects_file"`

	// MaxRejectRatio aborts the load when rejected/total exceeds it.
	MaxRejectRatio float64 `mapstructure:"max_reject_ratio"`

	// BatchSize is the number of fact rows per insert batch.
	BatchSize int `mapstructure:"batch_size"`

	// Refresh rebuilds the monthly aggregates after a successful load.
	Refresh bool `mapstructure:"refresh"`
}

// ReportConfig holds configuration for the report subcommand.
type ReportConfig struct {
	// Top is the row limit for top-N style reports.
	Top int `mapstructure:"top"`

	// SegmentLow and SegmentHigh are the lifetime-value thresholds that
	// split customers into low/mid/high segments.
	SegmentLow  float64 `mapstructure:"segment_low"`
	SegmentHigh float64 `mapstructure:"segment_high"`
}

// SampleConfig holds configuration for synthetic CSV generation.
type SampleConfig struct {
	// Rows is the number of line items to generate.
	Rows int `mapstructure:"rows"`

	// Out is the output file path ("-" = stdout).
	Out string `mapstructure:"out"`

	// Seed makes generation reproducible when non-zero.
	Seed uint64 `mapstructure:"seed"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Load: LoadConfig{
			MaxRejectRatio: 0.5,
			BatchSize:      1000,
		},
		Report: ReportConfig{
			Top:         10,
			SegmentLow:  1000,
			SegmentHigh: 5000,
		},
		Sample: SampleConfig{
			Rows: 10000,
			Out:  "-",
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./warehousectl.yaml
// 3. ~/.config/warehousectl/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("warehousectl")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "warehousectl"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// ValidateInit checks configuration required for the init command.
func (c *Config) ValidateInit() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Init.DateRange != "" {
		if _, _, err := ParseDateRange(c.Init.DateRange); err != nil {
			return err
		}
	}
	return nil
}

// ValidateLoad checks configuration required for the load command.
func (c *Config) ValidateLoad() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Load.File == "" {
		return fmt.Errorf("input file is required for load")
	}
	if c.Load.MaxRejectRatio <= 0 || c.Load.MaxRejectRatio > 1 {
		return fmt.Errorf("max_reject_ratio must be in (0, 1]")
	}
	if c.Load.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	return nil
}

// ValidateReport checks configuration required for the report command.
func (c *Config) ValidateReport() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Report.Top < 1 {
		return fmt.Errorf("top must be at least 1")
	}
	if c.Report.SegmentLow <= 0 || c.Report.SegmentHigh <= c.Report.SegmentLow {
		return fmt.Errorf("segment thresholds must satisfy 0 < low < high")
	}
	return nil
}

// ValidateSample checks configuration required for the sample command.
func (c *Config) ValidateSample() error {
	if c.Sample.Rows < 1 {
		return fmt.Errorf("rows must be at least 1")
	}
	if c.Sample.Out == "" {
		return fmt.Errorf("output path is required for sample")
	}
	return nil
}

// ParseDateRange parses an inclusive "start:end" date range.
func ParseDateRange(s string) (time.Time, time.Time, error) {
	var start, end time.Time

	startStr, endStr, ok := strings.Cut(s, ":")
	if !ok {
		return start, end, fmt.Errorf("invalid date range %q: want YYYY-MM-DD:YYYY-MM-DD", s)
	}

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return start, end, fmt.Errorf("invalid range start %q: %w", startStr, err)
	}
	end, err = time.Parse("2006-01-02", endStr)
	if err != nil {
		return start, end, fmt.Errorf("invalid range end %q: %w", endStr, err)
	}

	return start, end, nil
}
