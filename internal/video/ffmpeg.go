package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// FFmpeg opens sources and sinks by piping raw RGBA frames through ffmpeg.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

// CheckAvailable verifies that both binaries can be found.
func (f FFmpeg) CheckAvailable() error {
	if _, err := exec.LookPath(f.ffmpeg()); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if _, err := exec.LookPath(f.ffprobe()); err != nil {
		return fmt.Errorf("ffprobe not found: %w", err)
	}
	return nil
}

func (f FFmpeg) ffmpeg() string {
	if f.FFmpegPath != "" {
		return f.FFmpegPath
	}
	return "ffmpeg"
}

func (f FFmpeg) ffprobe() string {
	if f.FFprobePath != "" {
		return f.FFprobePath
	}
	return "ffprobe"
}

// OpenSource probes path and starts a decoder streaming raw frames.
func (f FFmpeg) OpenSource(ctx context.Context, path string) (Source, error) {
	info, err := Probe(ctx, f.ffprobe(), path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, f.ffmpeg(),
		"-v", "error",
		"-i", path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("decoder pipe: %w", err)
	}
	src := &ffmpegSource{
		cmd:       cmd,
		info:      info,
		frameSize: info.Width * info.Height * 4,
	}
	cmd.Stderr = &src.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start decoder for %s: %w", filepath.Base(path), err)
	}
	src.r = bufio.NewReaderSize(stdout, src.frameSize)

	log.Debug().
		Str("video", filepath.Base(path)).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("Decoder started")
	return src, nil
}

type ffmpegSource struct {
	cmd       *exec.Cmd
	r         *bufio.Reader
	stderr    bytes.Buffer
	info      Info
	frameSize int
	done      bool
}

func (s *ffmpegSource) Info() Info { return s.info }

func (s *ffmpegSource) Next(ctx context.Context) (image.Image, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.frameSize)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		s.done = true
		if errors.Is(err, io.ErrUnexpectedEOF) {
			log.Warn().Msg("Discarding truncated final frame")
			return nil, io.EOF
		}
		return nil, err
	}
	return &image.RGBA{
		Pix:    buf,
		Stride: 4 * s.info.Width,
		Rect:   image.Rect(0, 0, s.info.Width, s.info.Height),
	}, nil
}

// Close stops the decoder. A decoder stopped early is killed rather than drained.
func (s *ffmpegSource) Close() error {
	if !s.done && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
		return nil
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("decoder failed: %w\nOutput: %s", err, s.stderr.String())
	}
	return nil
}

// CreateSink starts an MPEG-4 encoder writing to path.
func (f FFmpeg) CreateSink(ctx context.Context, path string, info Info) (Sink, error) {
	cmd := exec.CommandContext(ctx, f.ffmpeg(),
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", strconv.FormatFloat(info.FPS, 'f', 3, 64),
		"-i", "-",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "mpeg4",
		"-q:v", "5",
		"-pix_fmt", "yuv420p",
		"-y", path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder pipe: %w", err)
	}
	sink := &ffmpegSink{cmd: cmd, w: stdin, info: info, path: path}
	cmd.Stderr = &sink.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start encoder for %s: %w", filepath.Base(path), err)
	}
	return sink, nil
}

type ffmpegSink struct {
	cmd    *exec.Cmd
	w      io.WriteCloser
	stderr bytes.Buffer
	info   Info
	path   string
	frames int
}

func (s *ffmpegSink) WriteFrame(img image.Image) error {
	rgba, ok := img.(*image.RGBA)
	bounds := image.Rect(0, 0, s.info.Width, s.info.Height)
	if !ok || rgba.Rect != bounds || rgba.Stride != 4*s.info.Width {
		dst := image.NewRGBA(bounds)
		draw.Draw(dst, bounds, img, img.Bounds().Min, draw.Src)
		rgba = dst
	}
	if _, err := s.w.Write(rgba.Pix); err != nil {
		return fmt.Errorf("write frame %d: %w", s.frames+1, err)
	}
	s.frames++
	return nil
}

func (s *ffmpegSink) Close() error {
	if err := s.w.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close encoder input")
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder failed: %w\nOutput: %s", err, s.stderr.String())
	}
	log.Debug().
		Str("output", filepath.Base(s.path)).
		Int("frames", s.frames).
		Msg("Encoder finished")
	return nil
}
