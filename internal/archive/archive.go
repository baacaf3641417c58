// Package archive rebuilds a downloadable ZIP of a batch session from its
// manifest, grouping per-video artifacts by whether animals were found.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpang/wildlife-tracker/internal/artifact"
	"github.com/fpang/wildlife-tracker/internal/metrics"
	"github.com/fpang/wildlife-tracker/internal/session"
	"github.com/fpang/wildlife-tracker/internal/tracing"
)

// Bucket folders inside the archive.
const (
	AnimalsBucket   = "animals_detected"
	NoAnimalsBucket = "no_animals_detected"
)

// Compression selects the ZIP method used for members.
type Compression string

const (
	Deflate Compression = "deflate"
	Zstd    Compression = "zstd"
)

// zipMethodZstd is the ZIP compression method id for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

// Builder assembles session archives from files under OutputDir.
type Builder struct {
	OutputDir   string
	Compression Compression
}

// ArchiveName moves the descriptive third token of an underscore-delimited
// file name to the front, so "ts_id_clip_ts2_id2_summary.txt" becomes
// "clip_ts_id_ts2_id2_summary.txt". Names with fewer than three tokens are
// returned unchanged.
func ArchiveName(base string) string {
	parts := strings.Split(base, "_")
	if len(parts) <= 2 {
		return base
	}
	rest := append(append([]string{}, parts[:2]...), parts[3:]...)
	return parts[2] + "_" + strings.Join(rest, "_")
}

// MemberName returns where d is stored inside the archive.
func MemberName(d artifact.Descriptor) string {
	base := filepath.Base(d.Path)
	if d.Type.CrossVideo() {
		return base
	}
	bucket := NoAnimalsBucket
	if d.HasAnimals() {
		bucket = AnimalsBucket
	}
	return bucket + "/" + ArchiveName(base)
}

// Build loads the manifest of sessionID and returns the archive fully
// buffered and positioned at its start. Files listed in the manifest but
// missing on disk are skipped. When no file could be added the returned
// reader is empty. Manifest errors from the session package are returned
// wrapped, so errors.Is(err, session.ErrNotFound) identifies unknown sessions.
func (b *Builder) Build(ctx context.Context, sessionID string) (*bytes.Reader, error) {
	ctx, span := tracing.Tracer().Start(ctx, "archive.Build", trace.WithAttributes(
		attribute.String("session", sessionID),
	))
	defer span.End()
	start := time.Now()

	rd, members, err := b.build(ctx, sessionID)
	metrics.ProcessingDuration.WithLabelValues("archive").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ArchiveBuildsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if members == 0 {
		metrics.ArchiveBuildsTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.ArchiveBuildsTotal.WithLabelValues("ok").Inc()
	}
	span.SetAttributes(attribute.Int("members", members), attribute.Int("bytes", rd.Len()))
	log.Info().
		Str("session", sessionID).
		Int("members", members).
		Int("bytes", rd.Len()).
		Dur("duration", time.Since(start)).
		Msg("Session archive built")
	return rd, nil
}

func (b *Builder) build(ctx context.Context, sessionID string) (*bytes.Reader, int, error) {
	m, err := session.Load(b.OutputDir, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("load manifest: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	method := b.register(zw)

	members := 0
	for _, d := range memberOrder(m.Files) {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return nil, 0, err
		}
		added, err := b.addFile(zw, method, d)
		if err != nil {
			zw.Close()
			return nil, 0, fmt.Errorf("archive %s: %w", d.Path, err)
		}
		if added {
			members++
		}
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("finalize archive: %w", err)
	}
	if members == 0 {
		return bytes.NewReader(nil), 0, nil
	}
	return bytes.NewReader(buf.Bytes()), members, nil
}

// memberOrder lists cross-video summaries first, then the animals bucket,
// then the no-animals bucket. Manifest order is kept within each group.
func memberOrder(files []artifact.Descriptor) []artifact.Descriptor {
	groups := make([][]artifact.Descriptor, 3)
	for _, d := range files {
		switch {
		case d.Type.CrossVideo():
			groups[0] = append(groups[0], d)
		case d.HasAnimals():
			groups[1] = append(groups[1], d)
		default:
			groups[2] = append(groups[2], d)
		}
	}
	return append(append(groups[0], groups[1]...), groups[2]...)
}

// register installs the configured compressor on zw and returns its method.
func (b *Builder) register(zw *zip.Writer) uint16 {
	if b.Compression == Zstd {
		zw.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		})
		return zipMethodZstd
	}
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	return zip.Deflate
}

func (b *Builder) addFile(zw *zip.Writer, method uint16, d artifact.Descriptor) (bool, error) {
	path := d.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.OutputDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", d.Path).Msg("Skipping missing artifact")
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	header := &zip.FileHeader{
		Name:     MemberName(d),
		Method:   method,
		Modified: info.ModTime(),
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(w, f); err != nil {
		return false, err
	}
	return true, nil
}
