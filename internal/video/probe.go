package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// defaultFPS is used when ffprobe cannot report a frame rate.
const defaultFPS = 30.0

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// Probe reads the first video stream's dimensions and frame rate with ffprobe.
func Probe(ctx context.Context, ffprobePath, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return Info{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return Info{}, fmt.Errorf("video stream has invalid dimensions %dx%d", s.Width, s.Height)
		}
		fps := parseFrameRate(s.AvgFrameRate)
		if fps <= 0 {
			fps = parseFrameRate(s.RFrameRate)
		}
		if fps <= 0 {
			fps = defaultFPS
		}
		log.Debug().
			Int("width", s.Width).
			Int("height", s.Height).
			Float64("fps", fps).
			Str("codec", s.CodecName).
			Msg("Video stream probed")
		return Info{Width: s.Width, Height: s.Height, FPS: fps}, nil
	}
	return Info{}, fmt.Errorf("no video stream found")
}

// parseFrameRate parses frame rate from ffprobe format (e.g., "30000/1001" -> 29.97)
func parseFrameRate(value string) float64 {
	num, den, ok := strings.Cut(value, "/")
	if ok {
		n, _ := strconv.ParseFloat(num, 64)
		d, _ := strconv.ParseFloat(den, 64)
		if d != 0 {
			return n / d
		}
		return 0
	}
	rate, _ := strconv.ParseFloat(value, 64)
	return rate
}
