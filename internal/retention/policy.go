package retention

import (
	"errors"
	"fmt"

	"github.com/fpang/wildlife-tracker/internal/artifact"
)

var (
	// ErrMissingType is returned when a descriptor carries no type.
	ErrMissingType = errors.New("artifact has no type")
	// ErrUnknownType is returned for a type outside the artifact enum.
	ErrUnknownType = errors.New("unknown artifact type")
)

// keepRules maps each per-video artifact type to the preference that keeps it.
// Cross-video summaries are not listed and are never kept by ShouldKeep.
var keepRules = map[artifact.Type]Preference{
	artifact.OriginalVideo:   KeepOriginal,
	artifact.AnnotatedVideo:  GenerateAnnotatedVideo,
	artifact.DetailedResults: KeepDetailedResults,
	artifact.Summary:         KeepSummary,
}

// ShouldKeep reports whether d survives under prefs.
func ShouldKeep(d artifact.Descriptor, prefs Set) (bool, error) {
	if d.Type == "" {
		return false, fmt.Errorf("%w: %s", ErrMissingType, d.Path)
	}
	if !d.Type.Valid() {
		return false, fmt.Errorf("%w %q: %s", ErrUnknownType, d.Type, d.Path)
	}
	pref, ok := keepRules[d.Type]
	if !ok {
		return false, nil
	}
	return prefs.Has(pref), nil
}

// FilterArtifacts returns a new slice holding the descriptors of files that
// ShouldKeep accepts, in their original order. The input is not modified.
func FilterArtifacts(files []artifact.Descriptor, prefs Set) ([]artifact.Descriptor, error) {
	kept := make([]artifact.Descriptor, 0, len(files))
	for _, f := range files {
		keep, err := ShouldKeep(f, prefs)
		if err != nil {
			return nil, err
		}
		if keep {
			kept = append(kept, f)
		}
	}
	return kept, nil
}
