package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EveryNFrame != 3 {
		t.Errorf("EveryNFrame = %d, want 3", cfg.EveryNFrame)
	}
	if cfg.ConfidenceThreshold != 0.75 {
		t.Errorf("ConfidenceThreshold = %v, want 0.75", cfg.ConfidenceThreshold)
	}
	wantClasses := map[int]string{0: "coyote", 1: "deer", 2: "raccoon", 3: "turkey"}
	if !reflect.DeepEqual(cfg.ClassNames, wantClasses) {
		t.Errorf("ClassNames = %v, want %v", cfg.ClassNames, wantClasses)
	}
	if cfg.OutputDir != "temp_predictions_file" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.DetectorTimeout != 30*time.Second {
		t.Errorf("DetectorTimeout = %v", cfg.DetectorTimeout)
	}
	if cfg.ArchiveCompression != CompressionDeflate {
		t.Errorf("ArchiveCompression = %q", cfg.ArchiveCompression)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("EVERY_N_FRAME", "5")
	t.Setenv("CLASS_NAMES", "0:elk,1:fox")
	t.Setenv("ARCHIVE_COMPRESSION", "zstd")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EveryNFrame != 5 {
		t.Errorf("EveryNFrame = %d, want 5", cfg.EveryNFrame)
	}
	if !reflect.DeepEqual(cfg.ClassNames, map[int]string{0: "elk", 1: "fox"}) {
		t.Errorf("ClassNames = %v", cfg.ClassNames)
	}
	if cfg.ArchiveCompression != CompressionZstd {
		t.Errorf("ArchiveCompression = %q", cfg.ArchiveCompression)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("BATCH_CONCURRENCY=9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BATCH_CONCURRENCY") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BatchConcurrency != 9 {
		t.Errorf("BatchConcurrency = %d, want 9", cfg.BatchConcurrency)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero interval", func(c *Config) { c.EveryNFrame = 0 }, "EVERY_N_FRAME"},
		{"bad compression", func(c *Config) { c.ArchiveCompression = "brotli" }, "ARCHIVE_COMPRESSION"},
		{"no concurrency", func(c *Config) { c.BatchConcurrency = 0 }, "BATCH_CONCURRENCY"},
		{"confidence too high", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "CONFIDENCE_THRESHOLD"},
		{"no classes", func(c *Config) { c.ClassNames = nil }, "CLASS_NAMES"},
		{"no output dir", func(c *Config) { c.OutputDir = "" }, "TEMP_PREDICTIONS_DIR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				OutputDir:           "out",
				EveryNFrame:         3,
				ConfidenceThreshold: 0.75,
				ClassNames:          map[int]string{0: "coyote"},
				BatchConcurrency:    2,
				ArchiveCompression:  CompressionDeflate,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
