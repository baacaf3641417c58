// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Archive compression methods.
const (
	CompressionDeflate = "deflate"
	CompressionZstd    = "zstd"
)

// Config holds every tunable of the service. It is built once at startup and
// passed explicitly to the components that need it.
type Config struct {
	OutputDir      string `env:"TEMP_PREDICTIONS_DIR" envDefault:"temp_predictions_file"`
	StaticDir      string `env:"STATIC_FILES_DIR"     envDefault:"static"`
	DownloadPrefix string `env:"DOWNLOAD_URL_PREFIX"  envDefault:"/download/"`

	EveryNFrame         int            `env:"EVERY_N_FRAME"        envDefault:"3"`
	ConfidenceThreshold float64        `env:"CONFIDENCE_THRESHOLD" envDefault:"0.75"`
	ClassNames          map[int]string `env:"CLASS_NAMES"          envDefault:"0:coyote,1:deer,2:raccoon,3:turkey"`

	DetectorURL     string        `env:"DETECTOR_URL"     envDefault:"http://localhost:5005"`
	DetectorTimeout time.Duration `env:"DETECTOR_TIMEOUT" envDefault:"30s"`
	FFmpegPath      string        `env:"FFMPEG_PATH"      envDefault:"ffmpeg"`
	FFprobePath     string        `env:"FFPROBE_PATH"     envDefault:"ffprobe"`

	BatchConcurrency   int    `env:"BATCH_CONCURRENCY"   envDefault:"4"`
	ArchiveCompression string `env:"ARCHIVE_COMPRESSION" envDefault:"deflate"`

	Port           int   `env:"PORT"             envDefault:"8000"`
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"2147483648"`

	MetricsNamespace string `env:"METRICS_NAMESPACE"           envDefault:"WildlifeTracker"`
	EMFMetrics       bool   `env:"EMF_METRICS"                 envDefault:"false"`
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName      string `env:"OTEL_SERVICE_NAME"           envDefault:"wildlife-tracker"`
}

// Load reads an optional .env file and then the process environment.
func Load(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	// A missing .env is normal outside local development.
	_ = godotenv.Load(dotenvFiles...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.OutputDir == "" {
		errs = append(errs, errors.New("TEMP_PREDICTIONS_DIR must not be empty"))
	}
	if c.EveryNFrame < 1 {
		errs = append(errs, fmt.Errorf("EVERY_N_FRAME must be at least 1, got %d", c.EveryNFrame))
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0, 1], got %v", c.ConfidenceThreshold))
	}
	if c.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency))
	}
	switch c.ArchiveCompression {
	case CompressionDeflate, CompressionZstd:
	default:
		errs = append(errs, fmt.Errorf("ARCHIVE_COMPRESSION must be %q or %q, got %q",
			CompressionDeflate, CompressionZstd, c.ArchiveCompression))
	}
	if len(c.ClassNames) == 0 {
		errs = append(errs, errors.New("CLASS_NAMES must map at least one class"))
	}
	return errors.Join(errs...)
}
