// Package pipeline accepts uploaded videos and runs them through processing,
// either one at a time or as a concurrent batch session with a manifest.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fpang/wildlife-tracker/internal/video"
)

var (
	// ErrUnsupportedFormat is returned for uploads that are not .mp4 or .avi.
	ErrUnsupportedFormat = errors.New("invalid file type")
	// ErrNoFiles is returned for a batch without uploads.
	ErrNoFiles = errors.New("no files uploaded")
	// ErrSaveFailed wraps failures storing an upload on disk.
	ErrSaveFailed = errors.New("failed to save file")
)

// Upload is one file received from a client.
type Upload struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// FileUpload returns an Upload reading from a local file.
func FileUpload(path string) Upload {
	return Upload{
		Filename: filepath.Base(path),
		Open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// CheckFormat returns ErrUnsupportedFormat unless filename has a supported extension.
func CheckFormat(filename string) error {
	if !video.IsSupported(filename) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	return nil
}

// SaveUpload stores u as "<dir>/<prefix>_<filename>" and returns the path.
// Only the base name of the client supplied filename is used.
func SaveUpload(dir, prefix string, u Upload) (string, error) {
	name := storedName(u.Filename)
	if name == "" {
		return "", fmt.Errorf("%w: empty filename", ErrSaveFailed)
	}
	dst := filepath.Join(dir, prefix+"_"+name)

	src, err := u.Open()
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrSaveFailed, name, err)
	}
	defer src.Close()

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrSaveFailed, name, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("%w %s: %w", ErrSaveFailed, name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("%w %s: %w", ErrSaveFailed, name, err)
	}
	return dst, nil
}

// storedName is the base name an upload is stored under, with either slash
// treated as a separator. It is empty when nothing usable remains.
func storedName(filename string) string {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(filename, `\`, "/")))
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// uniqueNames gives every upload of one batch a distinct stored name so
// concurrent tasks never write the same path. Repeats become
// "<stem>-<n><ext>" with the smallest n not already taken.
func uniqueNames(uploads []Upload) []Upload {
	taken := make(map[string]bool, len(uploads))
	for _, u := range uploads {
		if name := storedName(u.Filename); name != "" {
			taken[name] = false
		}
	}
	out := make([]Upload, len(uploads))
	for i, u := range uploads {
		name := storedName(u.Filename)
		if name == "" {
			out[i] = u
			continue
		}
		if taken[name] {
			ext := filepath.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			for n := 2; ; n++ {
				candidate := stem + "-" + strconv.Itoa(n) + ext
				if _, exists := taken[candidate]; !exists {
					name = candidate
					break
				}
			}
		}
		taken[name] = true
		u.Filename = name
		out[i] = u
	}
	return out
}
