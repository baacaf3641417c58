// Package video decodes videos into frames and encodes frames back into
// videos. The concrete implementation drives ffmpeg through pipes so a video
// is read exactly once, front to back.
package video

import (
	"context"
	"image"
	"path/filepath"
	"strings"
)

// SupportedExtensions are the upload formats the pipeline accepts.
var SupportedExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
}

// IsSupported reports whether the file name has a supported video extension.
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Info describes the video stream of a source.
type Info struct {
	Width  int
	Height int
	FPS    float64
}

// Source yields decoded frames in order. Next returns io.EOF after the last frame.
type Source interface {
	Info() Info
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Sink accepts frames in order and finalizes the encoded file on Close.
type Sink interface {
	WriteFrame(img image.Image) error
	Close() error
}

// Opener creates sources and sinks.
type Opener interface {
	OpenSource(ctx context.Context, path string) (Source, error)
	CreateSink(ctx context.Context, path string, info Info) (Sink, error)
}
