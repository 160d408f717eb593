package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.Load.MaxRejectRatio != 0.5 {
		t.Errorf("expected default max reject ratio 0.5, got %v", cfg.Load.MaxRejectRatio)
	}
	if cfg.Load.BatchSize != 1000 {
		t.Errorf("expected default batch size 1000, got %d", cfg.Load.BatchSize)
	}
	if cfg.Report.Top != 10 {
		t.Errorf("expected default top 10, got %d", cfg.Report.Top)
	}
	if cfg.Sample.Out != "-" {
		t.Errorf("expected default sample output '-', got %q", cfg.Sample.Out)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing connection string")
	}

	cfg.Connection = "postgres://localhost/warehouse"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateInit(t *testing.T) {
	tests := []struct {
		name      string
		dateRange string
		wantErr   bool
	}{
		{"empty range", "", false},
		{"valid range", "2023-01-01:2023-12-31", false},
		{"missing separator", "2023-01-01", true},
		{"bad start", "jan 1:2023-12-31", true},
		{"bad end", "2023-01-01:tomorrow", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Connection = "postgres://localhost/warehouse"
			cfg.Init.DateRange = tt.dateRange

			err := cfg.ValidateInit()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateLoad(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing file", func(c *Config) { c.Load.File = "" }, true},
		{"zero reject ratio", func(c *Config) { c.Load.MaxRejectRatio = 0 }, true},
		{"ratio above one", func(c *Config) { c.Load.MaxRejectRatio = 1.5 }, true},
		{"zero batch size", func(c *Config) { c.Load.BatchSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Connection = "postgres://localhost/warehouse"
			cfg.Load.File = "transactions.csv"
			tt.mutate(cfg)

			err := cfg.ValidateLoad()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateReport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Connection = "postgres://localhost/warehouse"
	if err := cfg.ValidateReport(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Report.SegmentHigh = cfg.Report.SegmentLow
	if err := cfg.ValidateReport(); err == nil {
		t.Error("expected error for high <= low thresholds")
	}

	cfg = DefaultConfig()
	cfg.Connection = "postgres://localhost/warehouse"
	cfg.Report.Top = 0
	if err := cfg.ValidateReport(); err == nil {
		t.Error("expected error for zero top")
	}
}

func TestValidateSample(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateSample(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.Sample.Rows = 0
	if err := cfg.ValidateSample(); err == nil {
		t.Error("expected error for zero rows")
	}
}

func TestParseDateRange(t *testing.T) {
	start, end, err := ParseDateRange("2023-01-01:2024-06-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStart := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("expected start %v, got %v", wantStart, start)
	}
	if !end.Equal(wantEnd) {
		t.Errorf("expected end %v, got %v", wantEnd, end)
	}

	if _, _, err := ParseDateRange("2023-01-01"); err == nil {
		t.Error("expected error for range without separator")
	}
}
