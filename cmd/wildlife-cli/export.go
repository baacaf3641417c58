package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/wildlife-tracker/internal/archive"
	"github.com/fpang/wildlife-tracker/internal/jobs"
	"github.com/fpang/wildlife-tracker/internal/session"
)

func runExport(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	sessionID := args[0]
	if err := jobs.ValidateID(sessionID); err != nil {
		log.Fatal().Err(err).Msg("Invalid session id")
	}

	b := &archive.Builder{OutputDir: cfg.OutputDir, Compression: archive.Compression(cfg.ArchiveCompression)}
	rd, err := b.Build(context.Background(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		log.Fatal().Str("session", sessionID).Msg("Session not found")
	}
	if err != nil {
		log.Fatal().Err(err).Str("session", sessionID).Msg("Failed to build archive")
	}
	if rd.Len() == 0 {
		log.Fatal().Str("session", sessionID).Msg("No data available to export")
	}

	dst := outputFileFlag
	if dst == "" {
		dst = sessionID + "_output.zip"
	}
	if err := writeFile(dst, rd); err != nil {
		log.Fatal().Err(err).Str("path", dst).Msg("Failed to write archive")
	}
	fmt.Printf("Wrote %s (%d bytes)\n", dst, rd.Size())
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
