package detection

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/fpang/wildlife-tracker/internal/metrics"
	"github.com/fpang/wildlife-tracker/internal/video"
)

// DefaultConfidence is the minimum tracker confidence for a detection.
const DefaultConfidence = 0.75

// ShouldSample reports whether the frame at the 1-based index is sent to the
// tracker when every interval-th frame is sampled.
func ShouldSample(index, interval int) bool {
	if interval <= 0 {
		return false
	}
	return index%interval == 0
}

// Adapter samples frames and turns tracker output into records and annotated
// frames. A tracker failure never escapes ProcessFrame.
type Adapter struct {
	detector   Detector
	classes    ClassTable
	confidence float64
	interval   int
}

// NewAdapter returns an Adapter sampling every interval-th frame.
func NewAdapter(d Detector, classes ClassTable, confidence float64, interval int) *Adapter {
	if classes == nil {
		classes = DefaultClasses
	}
	if confidence <= 0 {
		confidence = DefaultConfidence
	}
	return &Adapter{detector: d, classes: classes, confidence: confidence, interval: interval}
}

// ProcessFrame returns the frame to write to the annotated output together
// with the records found on it. Unsampled frames come back unchanged.
func (a *Adapter) ProcessFrame(ctx context.Context, frame image.Image, index int, streamID string) (image.Image, []Record) {
	if !ShouldSample(index, a.interval) {
		return frame, nil
	}
	metrics.FramesSampledTotal.Inc()

	detections, err := a.track(ctx, frame, streamID)
	if err != nil {
		metrics.DetectorErrorsTotal.Inc()
		log.Error().Err(err).Int("frame", index).Str("stream", streamID).Msg("Failed to track frame")
		return frame, nil
	}
	if len(detections) == 0 {
		return frame, nil
	}

	records := make([]Record, len(detections))
	boxes := make([]video.Box, len(detections))
	for i, d := range detections {
		records[i] = Record{TrackID: d.TrackID, ClassName: a.classes.Name(d.ClassID), Box: d.Box}
		boxes[i] = video.Box{
			CX: d.Box[0], CY: d.Box[1], W: d.Box[2], H: d.Box[3],
			Label: fmt.Sprintf("%s #%d", records[i].ClassName, d.TrackID),
		}
	}
	return video.Annotate(frame, boxes), records
}

func (a *Adapter) track(ctx context.Context, frame image.Image, streamID string) (dets []Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return a.detector.Track(ctx, frame, TrackOptions{
		Confidence: a.confidence,
		Persist:    true,
		StreamID:   streamID,
	})
}
