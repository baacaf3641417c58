// Package session persists the manifest of a batch upload: the preferences it
// was submitted with and every artifact it produced.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/wildlife-tracker/internal/artifact"
	"github.com/fpang/wildlife-tracker/internal/jobs"
	"github.com/fpang/wildlife-tracker/internal/retention"
)

const manifestSuffix = "_manifest.json"

var (
	// ErrNotFound is returned by Load when no manifest exists for the session.
	ErrNotFound = errors.New("manifest not found")
	// ErrPermissionDenied is returned when the manifest cannot be written for lack of permission.
	ErrPermissionDenied = errors.New("permission denied writing manifest")
	// ErrManifestIO wraps any other read or write failure.
	ErrManifestIO = errors.New("manifest I/O failed")
	// ErrManifestParse is returned when a manifest exists but is not valid JSON.
	ErrManifestParse = errors.New("manifest is malformed")
)

// Manifest is the persisted record of one batch session.
type Manifest struct {
	SessionID   string                `json:"-"`
	Preferences retention.Set         `json:"preferences"`
	Files       []artifact.Descriptor `json:"files"`
}

// Path returns the manifest location for sessionID inside outputDir.
func Path(outputDir, sessionID string) string {
	return filepath.Join(outputDir, sessionID+manifestSuffix)
}

// Save writes the manifest for sessionID, replacing any previous one. The file
// is written to a temporary name and renamed into place so readers never see
// a partial manifest.
func Save(outputDir, sessionID string, prefs retention.Set, files []artifact.Descriptor) error {
	if err := jobs.ValidateID(sessionID); err != nil {
		return err
	}
	if prefs == nil {
		prefs = retention.NewSet()
	}
	if files == nil {
		files = []artifact.Descriptor{}
	}
	data, err := json.MarshalIndent(Manifest{Preferences: prefs, Files: files}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode session %s: %w", ErrManifestIO, sessionID, err)
	}

	path := Path(outputDir, sessionID)
	if err := writeAtomic(path, data); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			log.Error().Err(err).Str("session", sessionID).Msg("Permission denied while saving manifest")
			return fmt.Errorf("%w: session %s: %w", ErrPermissionDenied, sessionID, err)
		}
		log.Error().Err(err).Str("session", sessionID).Msg("Failed to save manifest")
		return fmt.Errorf("%w: session %s: %w", ErrManifestIO, sessionID, err)
	}

	log.Info().
		Str("session", sessionID).
		Int("files", len(files)).
		Str("path", path).
		Msg("Manifest saved")
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Load reads the manifest of sessionID.
func Load(outputDir, sessionID string) (*Manifest, error) {
	if err := jobs.ValidateID(sessionID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	data, err := os.ReadFile(Path(outputDir, sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("%w: session %s: %w", ErrManifestIO, sessionID, err)
	}

	m := &Manifest{SessionID: sessionID}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: session %s: %w", ErrManifestParse, sessionID, err)
	}
	if m.Preferences == nil {
		m.Preferences = retention.NewSet()
	}
	return m, nil
}
