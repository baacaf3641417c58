// Package report turns detection lines into per-video summaries and
// aggregates those summaries into a cross-video table.
package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// NoSpeciesLine is the summary emitted when there were no detection lines at all.
const NoSpeciesLine = "No identifiable wildlife species were detected in the video."

// DetectedMarker identifies a summary line that names a tracked animal.
const DetectedMarker = "Detected with Track ID"

type trackTally struct {
	id     string
	counts map[string]int
	order  []string
}

// CompileSummary reduces detection lines of the form
// "Track ID: <id>, Animal: <name>, ..." to one line per track naming the
// animal seen most often on that track. Ties go to the name seen first, and
// tracks are listed in the order they first appeared. Malformed lines are
// logged and skipped.
func CompileSummary(lines []string) string {
	if len(lines) == 0 {
		return NoSpeciesLine + "\n"
	}

	var tracks []*trackTally
	byID := make(map[string]*trackTally)
	for _, line := range lines {
		parts := strings.Split(line, ", ")
		if len(parts) < 2 {
			log.Error().Str("line", line).Msg("Insufficient data in line")
			continue
		}
		trackPart := strings.Split(parts[0], ": ")
		animalPart := strings.Split(parts[1], ": ")
		if len(trackPart) != 2 || len(animalPart) != 2 {
			log.Error().Str("line", line).Msg("Data format error in line")
			continue
		}
		id, name := trackPart[1], animalPart[1]

		t, ok := byID[id]
		if !ok {
			t = &trackTally{id: id, counts: make(map[string]int)}
			byID[id] = t
			tracks = append(tracks, t)
		}
		if t.counts[name] == 0 {
			t.order = append(t.order, name)
		}
		t.counts[name]++
	}

	var b strings.Builder
	for _, t := range tracks {
		fmt.Fprintf(&b, "%s: %s: %s\n", t.mode(), DetectedMarker, t.id)
	}
	return b.String()
}

func (t *trackTally) mode() string {
	best, bestCount := "", 0
	for _, name := range t.order {
		if c := t.counts[name]; c > bestCount {
			best, bestCount = name, c
		}
	}
	return best
}

// SaveSummary compiles lines and writes the result to path, replacing any
// existing file.
func SaveSummary(lines []string, path string) error {
	if err := os.WriteFile(path, []byte(CompileSummary(lines)), 0o644); err != nil {
		return fmt.Errorf("write summary %s: %w", path, err)
	}
	return nil
}
