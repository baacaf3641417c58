package cli

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/wildlife-tracker/internal/retention"
)

// DefaultPreferences is used when the user accepts the prompt default.
var DefaultPreferences = retention.NewSet(retention.KeepSummary)

// PromptForPreferences asks which artifacts to keep, one yes/no question per
// preference. An empty answer keeps the default for that preference.
func PromptForPreferences(in io.Reader, out io.Writer) retention.Set {
	reader := bufio.NewReader(in)
	prefs := retention.NewSet()
	for _, p := range retention.AllPreferences {
		def := DefaultPreferences.Has(p)
		hint := "y/N"
		if def {
			hint = "Y/n"
		}
		fmt.Fprintf(out, "%s? [%s]: ", p, hint)

		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			log.Warn().Err(err).Msg("Failed to read input, using default preferences")
			return maps.Clone(DefaultPreferences)
		}
		if yes(strings.TrimSpace(input), def) {
			prefs[p] = struct{}{}
		}
	}
	return prefs
}

func yes(answer string, def bool) bool {
	switch strings.ToLower(answer) {
	case "":
		return def
	case "y", "yes":
		return true
	default:
		return false
	}
}
