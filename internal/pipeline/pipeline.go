package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/wildlife-tracker/internal/artifact"
	"github.com/fpang/wildlife-tracker/internal/jobs"
	"github.com/fpang/wildlife-tracker/internal/metrics"
	"github.com/fpang/wildlife-tracker/internal/processing"
	"github.com/fpang/wildlife-tracker/internal/report"
	"github.com/fpang/wildlife-tracker/internal/retention"
	"github.com/fpang/wildlife-tracker/internal/session"
	"github.com/fpang/wildlife-tracker/internal/tracing"
)

// VideoProcessor processes one stored video.
type VideoProcessor interface {
	ProcessVideo(ctx context.Context, req processing.Request) (*processing.Result, error)
}

// Pipeline stores uploads under OutputDir and hands them to a VideoProcessor.
type Pipeline struct {
	processor   VideoProcessor
	outputDir   string
	concurrency int
	now         func() time.Time
}

// New creates a Pipeline running at most concurrency batch files at once.
func New(p VideoProcessor, outputDir string, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{processor: p, outputDir: outputDir, concurrency: concurrency, now: time.Now}
}

// OutputDir is the root directory for uploads, outputs and manifests.
func (p *Pipeline) OutputDir() string {
	return p.outputDir
}

// RunSingle stores u as "<OutputDir>/<id>_<filename>" and processes it as a
// single upload.
func (p *Pipeline) RunSingle(ctx context.Context, u Upload, prefs retention.Set, interval int) (*processing.Result, error) {
	if err := CheckFormat(u.Filename); err != nil {
		return nil, err
	}
	path, err := SaveUpload(p.outputDir, jobs.NewID(p.now()), u)
	if err != nil {
		log.Error().Err(err).Str("file", u.Filename).Msg("Failed to save upload")
		return nil, err
	}
	return p.processor.ProcessVideo(ctx, processing.Request{
		SourcePath:  path,
		Preferences: prefs,
		Interval:    interval,
	})
}

// FileError records why one batch file produced no artifacts.
type FileError struct {
	Filename string
	Err      error
}

func (e FileError) Error() string {
	return fmt.Sprintf("processing failed for %s: %v", e.Filename, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// MarshalJSON renders the error as {"filename": ..., "error": ...}.
func (e FileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Filename string `json:"filename"`
		Error    string `json:"error"`
	}{e.Filename, e.Err.Error()})
}

// BatchOutcome is the merged result of a batch session.
type BatchOutcome struct {
	SessionID string                `json:"session_id"`
	Processed int                   `json:"files_processed"`
	Files     []artifact.Descriptor `json:"files"`
	Errors    []FileError           `json:"errors"`
}

type batchSlot struct {
	files []artifact.Descriptor
	err   error
}

// RunBatch processes every upload concurrently in a new session. Failures of
// individual files are reported in BatchOutcome.Errors and never affect the
// other files. Once every file has finished, the cross-video summary is
// compiled and the session manifest is written exactly once. An error is
// returned only for invalid input or when the summary or manifest cannot be
// written; in the latter case the outcome still carries the session id.
func (p *Pipeline) RunBatch(ctx context.Context, uploads []Upload, prefs retention.Set, interval int) (*BatchOutcome, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}
	for _, u := range uploads {
		if err := CheckFormat(u.Filename); err != nil {
			return nil, err
		}
	}

	sessionID := jobs.NewID(p.now())
	ctx, span := tracing.Tracer().Start(ctx, "pipeline.RunBatch", trace.WithAttributes(
		attribute.String("session", sessionID),
		attribute.Int("files", len(uploads)),
	))
	defer span.End()
	start := time.Now()

	outcome := &BatchOutcome{SessionID: sessionID, Files: []artifact.Descriptor{}, Errors: []FileError{}}
	sessionDir := filepath.Join(p.outputDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return outcome, fmt.Errorf("create session directory: %w", err)
	}

	log.Info().
		Str("session", sessionID).
		Int("files", len(uploads)).
		Int("concurrency", p.concurrency).
		Msg("Starting batch")

	stored := uniqueNames(uploads)
	slots := make([]batchSlot, len(stored))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, u := range stored {
		g.Go(func() error {
			files, err := p.runBatchFile(ctx, sessionDir, sessionID, u, prefs, interval)
			slots[i] = batchSlot{files: files, err: err}
			return nil
		})
	}
	// Tasks always return nil; per-file failures are carried in slots.
	_ = g.Wait()

	seen := make(map[string]bool)
	for i, s := range slots {
		if s.err != nil {
			metrics.BatchFilesTotal.WithLabelValues("failed").Inc()
			outcome.Errors = append(outcome.Errors, FileError{Filename: uploads[i].Filename, Err: s.err})
			continue
		}
		metrics.BatchFilesTotal.WithLabelValues("ok").Inc()
		outcome.Processed++
		for _, f := range s.files {
			f.Path = p.relative(f.Path)
			if seen[f.Path] {
				continue
			}
			seen[f.Path] = true
			outcome.Files = append(outcome.Files, f)
		}
	}

	csvPath, excelPath, err := report.CompileOverallSummary(sessionDir)
	if err != nil {
		return outcome, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if csvPath != "" {
		outcome.Files = append(outcome.Files,
			artifact.Descriptor{Path: p.relative(csvPath), Type: artifact.SummaryCSV},
			artifact.Descriptor{Path: p.relative(excelPath), Type: artifact.SummaryExcel},
		)
	}

	if err := session.Save(p.outputDir, sessionID, prefs, outcome.Files); err != nil {
		return outcome, err
	}

	metrics.ProcessingDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("processed", outcome.Processed),
		attribute.Int("failed", len(outcome.Errors)),
	)
	log.Info().
		Str("session", sessionID).
		Int("processed", outcome.Processed).
		Int("failed", len(outcome.Errors)).
		Int("artifacts", len(outcome.Files)).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")
	return outcome, nil
}

func (p *Pipeline) runBatchFile(ctx context.Context, sessionDir, sessionID string, u Upload, prefs retention.Set, interval int) (files []artifact.Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			log.Error().Err(err).Str("session", sessionID).Str("file", u.Filename).Msg("Batch file failed")
		}
	}()

	path, err := SaveUpload(sessionDir, sessionID, u)
	if err != nil {
		return nil, err
	}
	res, err := p.processor.ProcessVideo(ctx, processing.Request{
		SourcePath:  path,
		Preferences: prefs,
		Batch:       true,
		Interval:    interval,
	})
	if err != nil {
		return nil, err
	}
	filtered, err := res.Filtered(prefs)
	if err != nil {
		return nil, err
	}
	return filtered.Files, nil
}

// relative expresses path relative to the output directory when possible.
func (p *Pipeline) relative(path string) string {
	rel, err := filepath.Rel(p.outputDir, path)
	if err != nil {
		return path
	}
	return rel
}
