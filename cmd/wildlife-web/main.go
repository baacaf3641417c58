package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/wildlife-tracker/internal/archive"
	"github.com/fpang/wildlife-tracker/internal/config"
	"github.com/fpang/wildlife-tracker/internal/detection"
	"github.com/fpang/wildlife-tracker/internal/detection/httpdetector"
	"github.com/fpang/wildlife-tracker/internal/logging"
	"github.com/fpang/wildlife-tracker/internal/metrics"
	"github.com/fpang/wildlife-tracker/internal/pipeline"
	"github.com/fpang/wildlife-tracker/internal/processing"
	"github.com/fpang/wildlife-tracker/internal/tracing"
	"github.com/fpang/wildlife-tracker/internal/video"
)

// commitHash is set at build time with -ldflags "-X main.commitHash=...".
var commitHash string

// CLI flags
var (
	portFlag      int
	outputDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "wildlife-web",
	Short: "HTTP service that finds wildlife in uploaded trail camera videos",
	Long: `Wildlife Web accepts MP4 and AVI uploads, samples their frames through a
tracking detector and returns summaries of the animals it found. Batches of
videos are processed concurrently and can be downloaded as a single ZIP.

Settings are read from the environment (and an optional .env file).

Examples:
  wildlife-web
  wildlife-web --port 9000
  wildlife-web --output-dir /var/lib/wildlife`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (default from PORT)")
	rootCmd.Flags().StringVar(&outputDirFlag, "output-dir", "", "Directory for uploads and results (default from TEMP_PREDICTIONS_DIR)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if outputDirFlag != "" {
		cfg.OutputDir = outputDirFlag
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.OutputDir).Msg("Failed to create output directory")
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}
	metrics.Configure(cfg.EMFMetrics, cfg.ServiceName)

	ff := video.FFmpeg{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath}
	if err := ff.CheckAvailable(); err != nil {
		log.Fatal().Err(err).Msg("ffmpeg is required")
	}
	detector := httpdetector.New(cfg.DetectorURL, cfg.DetectorTimeout)

	srv := newServer(cfg, detector, ff)

	logging.NewStartupLogger("wildlife-web").
		CommitHash(commitHash).
		Dir("output", cfg.OutputDir).
		Dir("static", cfg.StaticDir).
		Service("detector", cfg.DetectorURL).
		Service("otlp", cfg.OTLPEndpoint).
		Feature("emfMetrics", cfg.EMFMetrics).
		Feature("tracing", cfg.OTLPEndpoint != "").
		Config("everyNFrame", fmt.Sprint(cfg.EveryNFrame)).
		Config("confidence", fmt.Sprint(cfg.ConfidenceThreshold)).
		Config("batchConcurrency", fmt.Sprint(cfg.BatchConcurrency)).
		Config("archiveCompression", cfg.ArchiveCompression).
		InitDuration(time.Since(start)).
		Log()

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(srv.routes()),
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
		if err := shutdownTracing(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Starting web server")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// newServer wires the processing stack behind the HTTP handlers.
func newServer(cfg *config.Config, d detection.Detector, opener video.Opener) *server {
	proc := processing.New(d, opener, processing.Options{
		Classes:          detection.ClassTable(cfg.ClassNames),
		Confidence:       cfg.ConfidenceThreshold,
		DefaultInterval:  cfg.EveryNFrame,
		URLPrefix:        cfg.DownloadPrefix,
		MetricsNamespace: cfg.MetricsNamespace,
	})
	s := &server{
		cfg:      cfg,
		pipeline: pipeline.New(proc, cfg.OutputDir, cfg.BatchConcurrency),
		archives: &archive.Builder{
			OutputDir:   cfg.OutputDir,
			Compression: archive.Compression(cfg.ArchiveCompression),
		},
	}
	if hc, ok := d.(detection.HealthChecker); ok {
		s.health = hc
	}
	return s
}

// --- Middleware ---

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if !strings.HasPrefix(r.URL.Path, "/metrics") && !strings.HasPrefix(r.URL.Path, "/healthz") {
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("API request")
		}
	})
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
