// Package detection samples video frames, sends them to an object tracker and
// converts what comes back into detection records.
package detection

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strconv"
	"strings"
)

// UnknownClass names detections whose class id is not in the ClassTable.
const UnknownClass = "Unknown"

// Record is one tracked object seen on one sampled frame. Box holds the
// centre x, centre y, width and height in pixels.
type Record struct {
	TrackID   int64
	ClassName string
	Box       [4]float64
}

// String renders the record as a detailed-results line.
func (r Record) String() string {
	coords := make([]string, len(r.Box))
	for i, v := range r.Box {
		coords[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprintf("Track ID: %d, Animal: %s, Box: [%s]", r.TrackID, r.ClassName, strings.Join(coords, ", "))
}

// Lines renders records in order.
func Lines(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.String()
	}
	return out
}

// Detection is a raw tracker hit before class names are resolved.
type Detection struct {
	ClassID int
	TrackID int64
	Box     [4]float64
}

// TrackOptions are passed to the tracker with every sampled frame.
type TrackOptions struct {
	Confidence float64
	Persist    bool
	// StreamID keys tracker state so track ids stay stable within one video.
	StreamID string
}

// Detector runs detection and tracking on a single frame.
type Detector interface {
	Track(ctx context.Context, frame image.Image, opts TrackOptions) ([]Detection, error)
}

// HealthChecker is implemented by detectors that can report readiness before
// a video is processed.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ClassTable maps tracker class ids to animal names.
type ClassTable map[int]string

// DefaultClasses is the class table of the bundled wildlife model.
var DefaultClasses = ClassTable{0: "coyote", 1: "deer", 2: "raccoon", 3: "turkey"}

// Name returns the animal name for id, or UnknownClass.
func (c ClassTable) Name(id int) string {
	if name, ok := c[id]; ok {
		return name
	}
	return UnknownClass
}

// String lists the table as "id:name" pairs ordered by id.
func (c ClassTable) String() string {
	ids := make([]int, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	pairs := make([]string, len(ids))
	for i, id := range ids {
		pairs[i] = fmt.Sprintf("%d:%s", id, c[id])
	}
	return strings.Join(pairs, ",")
}
