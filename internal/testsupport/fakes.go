// Package testsupport holds fakes shared by package tests.
package testsupport

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fpang/wildlife-tracker/internal/detection"
	"github.com/fpang/wildlife-tracker/internal/video"
)

// FrameSize is the edge length of fake frames.
const FrameSize = 16

// Frame returns a fake frame whose first pixel's red channel encodes index.
func Frame(index int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, FrameSize, FrameSize))
	img.SetRGBA(0, 0, color.RGBA{R: uint8(index), A: 255})
	return img
}

// FrameIndex recovers the index encoded by Frame.
func FrameIndex(img image.Image) int {
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return int(r >> 8)
}

// Detector is a scripted detection.Detector keyed by frame index. Safe for
// concurrent use.
type Detector struct {
	mu      sync.Mutex
	Results map[int][]detection.Detection
	Errors  map[int]error
	Panics  map[int]bool
	// Calls records the frame index and options of every Track call in order.
	Calls   []int
	Options []detection.TrackOptions
	Health  error
}

// Track implements detection.Detector.
func (d *Detector) Track(_ context.Context, frame image.Image, opts detection.TrackOptions) ([]detection.Detection, error) {
	idx := FrameIndex(frame)
	d.mu.Lock()
	d.Calls = append(d.Calls, idx)
	d.Options = append(d.Options, opts)
	d.mu.Unlock()

	if d.Panics[idx] {
		panic(fmt.Sprintf("scripted panic on frame %d", idx))
	}
	if err := d.Errors[idx]; err != nil {
		return nil, err
	}
	return d.Results[idx], nil
}

// HealthCheck implements detection.HealthChecker.
func (d *Detector) HealthCheck(context.Context) error {
	return d.Health
}

// CallCount returns the number of Track calls so far.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}

// Opener is a fake video.Opener. Sources yield Frames frames unless FramesFor
// overrides the count for a base file name. Sinks write a placeholder file.
type Opener struct {
	mu        sync.Mutex
	Frames    int
	FramesFor map[string]int
	OpenErr   map[string]error
	SinkErr   error
	// AfterFrame, when set, is called by sources after yielding each frame.
	AfterFrame func(index int)
	// FailAfter makes sources return ErrDecode once that many frames were read.
	FailAfter int
	// Written counts frames written per sink path.
	Written map[string]int
}

// OpenSource implements video.Opener.
func (o *Opener) OpenSource(_ context.Context, path string) (video.Source, error) {
	base := filepath.Base(path)
	if err := o.OpenErr[base]; err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	n := o.Frames
	if v, ok := o.FramesFor[base]; ok {
		n = v
	}
	return &Source{Total: n, FailAfter: o.FailAfter, AfterFrame: o.AfterFrame}, nil
}

// CreateSink implements video.Opener.
func (o *Opener) CreateSink(_ context.Context, path string, _ video.Info) (video.Sink, error) {
	if o.SinkErr != nil {
		return nil, o.SinkErr
	}
	if err := os.WriteFile(path, []byte("annotated"), 0o644); err != nil {
		return nil, err
	}
	return &sink{opener: o, path: path}, nil
}

// FramesWritten returns how many frames were written to the sink at path.
func (o *Opener) FramesWritten(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Written[path]
}

// ErrDecode is the decoder failure returned by sources with FailAfter set.
var ErrDecode = errors.New("corrupt packet")

// Source yields Total fake frames numbered from 1. Like the ffmpeg source it
// stops with ctx.Err() once the context is done.
type Source struct {
	Total      int
	FailAfter  int
	AfterFrame func(index int)
	next       int
	Closed     bool
}

func (s *Source) Info() video.Info {
	return video.Info{Width: FrameSize, Height: FrameSize, FPS: 30}
}

func (s *Source) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailAfter > 0 && s.next >= s.FailAfter {
		return nil, ErrDecode
	}
	if s.next >= s.Total {
		return nil, io.EOF
	}
	s.next++
	if s.AfterFrame != nil {
		defer s.AfterFrame(s.next)
	}
	return Frame(s.next), nil
}

func (s *Source) Close() error {
	s.Closed = true
	return nil
}

type sink struct {
	opener *Opener
	path   string
}

func (s *sink) WriteFrame(image.Image) error {
	s.opener.mu.Lock()
	defer s.opener.mu.Unlock()
	if s.opener.Written == nil {
		s.opener.Written = make(map[string]int)
	}
	s.opener.Written[s.path]++
	return nil
}

func (s *sink) Close() error { return nil }
