// Package artifact describes the files produced while processing a video and
// how they are referenced from a session manifest.
package artifact

import "fmt"

// Type identifies the role an artifact plays in a session.
type Type string

const (
	OriginalVideo   Type = "originalVideo"
	AnnotatedVideo  Type = "annotatedVideo"
	DetailedResults Type = "detailedResults"
	Summary         Type = "summary"
	SummaryCSV      Type = "summaryCSV"
	SummaryExcel    Type = "summaryExcel"
)

var knownTypes = map[Type]bool{
	OriginalVideo:   true,
	AnnotatedVideo:  true,
	DetailedResults: true,
	Summary:         true,
	SummaryCSV:      true,
	SummaryExcel:    true,
}

// Valid reports whether t is one of the known artifact types.
func (t Type) Valid() bool {
	return knownTypes[t]
}

// CrossVideo reports whether t is an aggregate spanning every video in a
// session rather than a per-video artifact.
func (t Type) CrossVideo() bool {
	return t == SummaryCSV || t == SummaryExcel
}

// UnmarshalText rejects types outside the known set.
func (t *Type) UnmarshalText(b []byte) error {
	v := Type(b)
	if !v.Valid() {
		return fmt.Errorf("unknown artifact type %q", string(b))
	}
	*t = v
	return nil
}

// Descriptor points at one produced file.
type Descriptor struct {
	Path            string `json:"path"`
	Type            Type   `json:"type"`
	AnimalsDetected *bool  `json:"animals_detected,omitempty"`
}

// Detected returns a pointer suitable for Descriptor.AnimalsDetected.
func Detected(v bool) *bool {
	return &v
}

// HasAnimals reports whether the descriptor is flagged as containing animals.
// A missing flag counts as no animals.
func (d Descriptor) HasAnimals() bool {
	return d.AnimalsDetected != nil && *d.AnimalsDetected
}
