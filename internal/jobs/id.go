// Package jobs generates and validates the identifiers that name batch
// sessions and per-video outputs.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the time prefix of every generated id.
const TimestampLayout = "20060102150405"

// ErrInvalidID is returned by ValidateID.
var ErrInvalidID = errors.New("invalid id")

// NewID returns "<YYYYmmddHHMMSS>_<uuid>" for the given time. The same shape
// names batch sessions, single uploads and per-video outputs, so ids never
// contain more than one underscore.
func NewID(now time.Time) string {
	return now.Format(TimestampLayout) + "_" + uuid.NewString()
}

// ValidateID rejects ids that are empty or could escape the output directory
// when joined into a path.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
