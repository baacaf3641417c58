package processing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpang/wildlife-tracker/internal/detection"
	"github.com/fpang/wildlife-tracker/internal/jobs"
	"github.com/fpang/wildlife-tracker/internal/metrics"
	"github.com/fpang/wildlife-tracker/internal/retention"
	"github.com/fpang/wildlife-tracker/internal/tracing"
	"github.com/fpang/wildlife-tracker/internal/video"
)

// ErrInitialization marks failures before the first frame is read: the
// detector is unavailable, or the source or annotated output cannot be opened.
var ErrInitialization = errors.New("video processing initialization failed")

// Options configure a Processor.
type Options struct {
	Classes         detection.ClassTable
	Confidence      float64
	DefaultInterval int
	// URLPrefix is prepended to file names in single-upload results.
	URLPrefix        string
	MetricsNamespace string
}

// Request describes one video to process.
type Request struct {
	SourcePath  string
	Preferences retention.Set
	Batch       bool
	// Interval samples every Interval-th frame. Values below 1 use the default.
	Interval int
	// OutputDir receives the outputs. Empty means the source's directory.
	OutputDir string
}

// Processor runs videos through the detector. It holds no per-video state and
// is safe for concurrent use.
type Processor struct {
	detector detection.Detector
	opener   video.Opener
	opts     Options
	now      func() time.Time
}

// New creates a Processor.
func New(d detection.Detector, o video.Opener, opts Options) *Processor {
	if opts.DefaultInterval < 1 {
		opts.DefaultInterval = 1
	}
	if opts.MetricsNamespace == "" {
		opts.MetricsNamespace = "WildlifeTracker"
	}
	return &Processor{detector: d, opener: o, opts: opts, now: time.Now}
}

type frameStats struct {
	read    int
	failed  int
	records []detection.Record
}

// ProcessVideo reads every frame of the source once, in order, and applies
// the retention rules to what was found. Per-frame failures are logged and
// skipped. Only setup failures (ErrInitialization) and artifact handling
// failures are returned.
func (p *Processor) ProcessVideo(ctx context.Context, req Request) (*Result, error) {
	name := filepath.Base(req.SourcePath)
	interval := req.Interval
	if interval < 1 {
		interval = p.opts.DefaultInterval
	}

	ctx, span := tracing.Tracer().Start(ctx, "processing.ProcessVideo", trace.WithAttributes(
		attribute.String("video", name),
		attribute.Bool("batch", req.Batch),
		attribute.Int("interval", interval),
	))
	defer span.End()

	start := time.Now()
	metrics.ActiveVideos.Inc()
	defer metrics.ActiveVideos.Dec()

	log.Info().
		Str("video", name).
		Int("interval", interval).
		Bool("batch", req.Batch).
		Str("preferences", req.Preferences.String()).
		Msg("Starting video processing")

	result, stats, err := p.process(ctx, req, interval)
	elapsed := time.Since(start)
	metrics.ProcessingDuration.WithLabelValues("video").Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.VideosProcessedTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("video", name).Msg("Failed to process video")
		return nil, err
	}

	outcome := "no_animals"
	if result.AnimalsDetected() {
		outcome = "animals"
	}
	metrics.VideosProcessedTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.Int("frames", stats.read),
		attribute.Int("detections", len(stats.records)),
	)
	metrics.New(p.opts.MetricsNamespace).
		Dimension("Operation", "processVideo").
		Metric("ProcessingMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("FramesRead", float64(stats.read), metrics.UnitCount).
		Metric("FrameErrors", float64(stats.failed), metrics.UnitCount).
		Metric("Detections", float64(len(stats.records)), metrics.UnitCount).
		Property("video", name).
		Property("outcome", outcome).
		Flush()

	log.Info().
		Str("video", name).
		Int("frames", stats.read).
		Int("frame_errors", stats.failed).
		Int("detections", len(stats.records)).
		Str("status", string(result.Status)).
		Dur("duration", elapsed).
		Msg("Completed video processing")
	return result, nil
}

func (p *Processor) process(ctx context.Context, req Request, interval int) (*Result, frameStats, error) {
	var stats frameStats
	name := filepath.Base(req.SourcePath)

	if hc, ok := p.detector.(detection.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return nil, stats, fmt.Errorf("%w for %s: detector: %w", ErrInitialization, name, err)
		}
	}

	src, err := p.opener.OpenSource(ctx, req.SourcePath)
	if err != nil {
		return nil, stats, fmt.Errorf("%w for %s: open source: %w", ErrInitialization, name, err)
	}

	dir := req.OutputDir
	if dir == "" {
		dir = filepath.Dir(req.SourcePath)
	}
	uniqueID := jobs.NewID(p.now())
	out := OutputPaths(req.SourcePath, dir, uniqueID)

	var sink video.Sink
	if req.Preferences.Has(retention.GenerateAnnotatedVideo) {
		sink, err = p.opener.CreateSink(ctx, out.AnnotatedVideo, src.Info())
		if err != nil {
			src.Close()
			return nil, stats, fmt.Errorf("%w for %s: create annotated output: %w", ErrInitialization, name, err)
		}
	}

	adapter := detection.NewAdapter(p.detector, p.opts.Classes, p.opts.Confidence, interval)
	stats, readErr := p.readFrames(ctx, src, sink, adapter, uniqueID, name)

	if err := src.Close(); err != nil {
		log.Warn().Err(err).Str("video", name).Msg("Failed to close source")
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Str("video", name).Msg("Failed to finalize annotated video")
		}
	}
	if readErr != nil {
		// A cancelled run leaves the upload untouched and no partial outputs.
		if sink != nil {
			if err := os.Remove(out.AnnotatedVideo); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("video", name).Msg("Failed to remove partial annotated video")
			}
		}
		return nil, stats, fmt.Errorf("process %s: %w", name, readErr)
	}

	lines := detection.Lines(stats.records)
	result := newResult(len(lines) > 0)
	if req.Batch {
		files, err := retention.HandleBatch(out, req.Preferences, lines)
		if err != nil {
			return nil, stats, fmt.Errorf("process %s: %w", name, err)
		}
		result.Files = files
	} else {
		urls, err := retention.HandleSingle(out, req.Preferences, lines, p.opts.URLPrefix)
		if err != nil {
			return nil, stats, fmt.Errorf("process %s: %w", name, err)
		}
		result.URLs = urls
	}
	return result, stats, nil
}

// readFrames drains src strictly in order. Frame indices start at 1. A
// decoder error ends the stream with what was read so far; cancellation of
// ctx is returned as an error.
func (p *Processor) readFrames(ctx context.Context, src video.Source, sink video.Sink, adapter *detection.Adapter, streamID, name string) (frameStats, error) {
	var stats frameStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		frame, err := src.Next(ctx)
		if err == io.EOF {
			log.Debug().Str("video", name).Int("frames", stats.read).Msg("No more frames to read")
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			log.Warn().Err(err).Str("video", name).Int("frames", stats.read).Msg("Stopped reading frames")
			break
		}
		stats.read++
		metrics.FramesReadTotal.Inc()

		records, err := p.processFrame(ctx, adapter, sink, frame, stats.read, streamID)
		if err != nil {
			stats.failed++
			metrics.FrameErrorsTotal.Inc()
			log.Error().Err(err).Str("video", name).Int("frame", stats.read).Msg("Error processing frame")
			continue
		}
		for _, r := range records {
			metrics.DetectionsTotal.WithLabelValues(r.ClassName).Inc()
		}
		stats.records = append(stats.records, records...)
	}
	return stats, ctx.Err()
}

func (p *Processor) processFrame(ctx context.Context, adapter *detection.Adapter, sink video.Sink, frame image.Image, index int, streamID string) (records []detection.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("panic on frame %d: %v", index, r)
		}
	}()

	annotated, records := adapter.ProcessFrame(ctx, frame, index, streamID)
	if sink != nil {
		if err := sink.WriteFrame(annotated); err != nil {
			return nil, err
		}
	}
	return records, nil
}
