package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/wildlife-tracker/internal/cli"
	"github.com/fpang/wildlife-tracker/internal/config"
	"github.com/fpang/wildlife-tracker/internal/detection"
	"github.com/fpang/wildlife-tracker/internal/detection/httpdetector"
	"github.com/fpang/wildlife-tracker/internal/logging"
	"github.com/fpang/wildlife-tracker/internal/pipeline"
	"github.com/fpang/wildlife-tracker/internal/processing"
	"github.com/fpang/wildlife-tracker/internal/retention"
	"github.com/fpang/wildlife-tracker/internal/video"
)

// loadConfig initializes logging and applies the persistent flags.
func loadConfig() *config.Config {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if outputDirFlag != "" {
		cfg.OutputDir = outputDirFlag
	}
	return cfg
}

func runProcess(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	paths := args
	if pickFlag {
		picked, err := pickVideos()
		if err != nil {
			if errors.Is(err, zenity.ErrCanceled) {
				fmt.Println("No videos selected.")
				return
			}
			log.Fatal().Err(err).Msg("File picker failed")
		}
		paths = append(paths, picked...)
	}
	if err := cli.ValidateVideoFiles(paths); err != nil {
		log.Fatal().Err(err).Msg("Invalid input")
	}

	prefs := retention.ParseSet(prefsFlag)
	if prefsFlag == "" && isTerminal(os.Stdin) {
		prefs = cli.PromptForPreferences(os.Stdin, os.Stdout)
	}
	cli.PrintPreferences(os.Stdout, prefs)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.OutputDir).Msg("Failed to create output directory")
	}
	ff := video.FFmpeg{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath}
	if err := ff.CheckAvailable(); err != nil {
		log.Fatal().Err(err).Msg("ffmpeg is required")
	}
	proc := processing.New(httpdetector.New(cfg.DetectorURL, cfg.DetectorTimeout), ff, processing.Options{
		Classes:          detection.ClassTable(cfg.ClassNames),
		Confidence:       cfg.ConfidenceThreshold,
		DefaultInterval:  cfg.EveryNFrame,
		URLPrefix:        cfg.OutputDir + string(os.PathSeparator),
		MetricsNamespace: cfg.MetricsNamespace,
	})
	p := pipeline.New(proc, cfg.OutputDir, cfg.BatchConcurrency)

	ctx := context.Background()
	start := time.Now()
	if len(paths) == 1 {
		res, err := p.RunSingle(ctx, pipeline.FileUpload(paths[0]), prefs, everyNFrameFlag)
		if err != nil {
			log.Fatal().Err(err).Str("video", paths[0]).Msg("Video processing failed")
		}
		cli.PrintResult(os.Stdout, paths[0], res, time.Since(start))
		return
	}

	uploads := make([]pipeline.Upload, len(paths))
	for i, path := range paths {
		uploads[i] = pipeline.FileUpload(path)
	}
	outcome, err := p.RunBatch(ctx, uploads, prefs, everyNFrameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch failed")
	}
	printOutcome(outcome, time.Since(start))
	if outcome.Processed == 0 {
		os.Exit(1)
	}
}

func printOutcome(outcome *pipeline.BatchOutcome, elapsed time.Duration) {
	fmt.Printf("\nSession %s: %d processed, %d failed (%s)\n",
		outcome.SessionID, outcome.Processed, len(outcome.Errors), cli.FormatDurationShort(elapsed))
	for _, f := range outcome.Files {
		fmt.Printf("  %-16s %s\n", f.Type, f.Path)
	}
	for _, e := range outcome.Errors {
		fmt.Printf("  FAILED %s: %v\n", e.Filename, e.Err)
	}
	fmt.Printf("\nExport with: wildlife-cli export %s\n", outcome.SessionID)
}

func pickVideos() ([]string, error) {
	return zenity.SelectFileMultiple(
		zenity.Title("Select wildlife videos"),
		zenity.FileFilters{
			{
				Name:     "Videos",
				Patterns: []string{"*.mp4", "*.avi"},
			},
		},
	)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
