package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fpang/wildlife-tracker/internal/processing"
	"github.com/fpang/wildlife-tracker/internal/retention"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// PrintResult writes a human readable report of a single-video result.
func PrintResult(w io.Writer, name string, res *processing.Result, elapsed time.Duration) {
	fmt.Fprintf(w, "\n%s: %s (%s)\n", name, res.Status, FormatDurationShort(elapsed))
	fmt.Fprintf(w, "  %s\n", res.Message)

	keys := make([]string, 0, len(res.URLs))
	for k := range res.URLs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %s\n", k, res.URLs[k])
	}
}

// PrintPreferences writes the active preferences on one line.
func PrintPreferences(w io.Writer, prefs retention.Set) {
	tokens := prefs.Tokens()
	if len(tokens) == 0 {
		fmt.Fprintln(w, "Preferences: none")
		return
	}
	fmt.Fprintf(w, "Preferences: %s\n", strings.Join(tokens, ", "))
}
