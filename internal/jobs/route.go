package jobs

import (
	"strings"
)

// ParseRoute extracts the trailing id from a URL path like /zip/download/{id}.
// It reports false when the path has no id or more than one segment after
// prefix, or when the id fails ValidateID.
func ParseRoute(path, prefix string) (id string, ok bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	id = strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
	if ValidateID(id) != nil {
		return "", false
	}
	return id, true
}
