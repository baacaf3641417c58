// Package processing runs one video through sampling, detection and the
// retention rules, producing a Result.
package processing

import (
	"maps"

	"github.com/fpang/wildlife-tracker/internal/artifact"
	"github.com/fpang/wildlife-tracker/internal/retention"
)

// Status is the overall outcome of processing one video.
type Status string

const (
	AnimalsDetected   Status = "Animals detected"
	NoAnimalsDetected Status = "No animals detected"
)

// Result messages.
const (
	MessageAnimals   = "The uploaded video contains identifiable wildlife species."
	MessageNoAnimals = "No animals detected in the uploaded video."
)

// Result is returned by ProcessVideo. URLs is set for single uploads and
// Files for batch members.
type Result struct {
	Status  Status                `json:"status"`
	Message string                `json:"message"`
	URLs    map[string]string     `json:"paths,omitempty"`
	Files   []artifact.Descriptor `json:"files,omitempty"`
}

func newResult(animals bool) *Result {
	if animals {
		return &Result{Status: AnimalsDetected, Message: MessageAnimals}
	}
	return &Result{Status: NoAnimalsDetected, Message: MessageNoAnimals}
}

// AnimalsDetected reports whether the video had any detections.
func (r *Result) AnimalsDetected() bool {
	return r.Status == AnimalsDetected
}

// Filtered returns a copy of r whose Files only holds the artifacts prefs
// keeps. r itself is not modified.
func (r *Result) Filtered(prefs retention.Set) (*Result, error) {
	files, err := retention.FilterArtifacts(r.Files, prefs)
	if err != nil {
		return nil, err
	}
	return &Result{
		Status:  r.Status,
		Message: r.Message,
		URLs:    maps.Clone(r.URLs),
		Files:   files,
	}, nil
}
