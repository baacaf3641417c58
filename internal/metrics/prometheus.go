package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VideosProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wildlife_videos_processed_total",
		Help: "Total number of videos processed, by outcome",
	}, []string{"outcome"})

	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wildlife_processing_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wildlife_frames_read_total",
		Help: "Total number of frames decoded across all videos",
	})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wildlife_frames_sampled_total",
		Help: "Total number of frames sent to the detector",
	})

	FrameErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wildlife_frame_errors_total",
		Help: "Total number of frames skipped because processing failed",
	})

	DetectorErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wildlife_detector_errors_total",
		Help: "Total number of failed detector calls",
	})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wildlife_detections_total",
		Help: "Total number of detection records, by animal",
	}, []string{"animal"})

	BatchFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wildlife_batch_files_total",
		Help: "Total number of batch files handled, by result",
	}, []string{"result"})

	ArchiveBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wildlife_archive_builds_total",
		Help: "Total number of session archives built, by result",
	}, []string{"result"})

	ActiveVideos = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wildlife_active_videos",
		Help: "Number of videos currently being processed",
	})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
