package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/wildlife-tracker/internal/pipeline"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", dirPath).Msg("Directory not found")
		}
		log.Fatal().Err(err).Str("path", dirPath).Msg("Failed to access directory")
	}
	if !info.IsDir() {
		log.Fatal().Str("path", dirPath).Msg("Path is not a directory")
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}

	return dirPath
}

// ValidateVideoFiles checks that every path is a readable regular file with a
// supported extension.
func ValidateVideoFiles(paths []string) error {
	if len(paths) == 0 {
		return pipeline.ErrNoFiles
	}
	for _, p := range paths {
		if err := pipeline.CheckFormat(p); err != nil {
			return err
		}
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("video %s: %w", p, err)
		}
		if info.IsDir() {
			return fmt.Errorf("video %s: is a directory", p)
		}
	}
	return nil
}
