// Package retention decides which per-video artifacts survive processing,
// based on the preferences a user submitted with the upload.
package retention

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Preference is a single user-selectable retention option.
type Preference string

const (
	KeepOriginal           Preference = "keep_original"
	GenerateAnnotatedVideo Preference = "generate_annotated_video"
	KeepDetailedResults    Preference = "keep_detailed_results"
	KeepSummary            Preference = "keep_summary"
)

// AllPreferences lists every known preference in display order.
var AllPreferences = []Preference{
	KeepOriginal,
	GenerateAnnotatedVideo,
	KeepDetailedResults,
	KeepSummary,
}

// ParsePreference maps a wire token to a Preference.
func ParsePreference(token string) (Preference, bool) {
	p := Preference(strings.TrimSpace(token))
	for _, known := range AllPreferences {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Set is an unordered collection of preferences. The zero value is empty and
// ready to use for lookups.
type Set map[Preference]struct{}

// NewSet builds a Set from the given preferences.
func NewSet(prefs ...Preference) Set {
	s := make(Set, len(prefs))
	for _, p := range prefs {
		s[p] = struct{}{}
	}
	return s
}

// ParseSet parses a comma separated preference string such as
// "keep_summary, generate_annotated_video". Unknown tokens are logged and
// dropped.
func ParseSet(raw string) Set {
	s := make(Set)
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		p, ok := ParsePreference(tok)
		if !ok {
			log.Warn().Str("preference", tok).Msg("Ignoring unknown preference")
			continue
		}
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Preference) bool {
	_, ok := s[p]
	return ok
}

// Tokens returns the set's members as sorted strings.
func (s Set) Tokens() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

// String renders the set in the same comma separated form ParseSet accepts.
func (s Set) String() string {
	return strings.Join(s.Tokens(), ",")
}

// MarshalJSON encodes the set as a sorted JSON array of tokens.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Tokens())
}

// UnmarshalJSON decodes a JSON array of tokens. Unknown tokens are dropped.
func (s *Set) UnmarshalJSON(b []byte) error {
	var tokens []string
	if err := json.Unmarshal(b, &tokens); err != nil {
		return err
	}
	*s = ParseSet(strings.Join(tokens, ","))
	return nil
}
