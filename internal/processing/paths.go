package processing

import (
	"path/filepath"
	"strings"

	"github.com/fpang/wildlife-tracker/internal/retention"
)

// Output file suffixes.
const (
	AnnotatedSuffix = ".mp4"
	DetailedSuffix  = "_detailed.txt"
	SummarySuffix   = "_summary.txt"
)

// OutputPaths derives the output files of source inside dir. uniqueID keeps
// outputs of concurrent runs on the same source apart.
func OutputPaths(source, dir, uniqueID string) retention.Outputs {
	name := filepath.Base(source)
	base := strings.TrimSuffix(name, filepath.Ext(name)) + "_" + uniqueID
	return retention.Outputs{
		Source:          source,
		AnnotatedVideo:  filepath.Join(dir, base+AnnotatedSuffix),
		DetailedResults: filepath.Join(dir, base+DetailedSuffix),
		Summary:         filepath.Join(dir, base+SummarySuffix),
	}
}
