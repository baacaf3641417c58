package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/wildlife-tracker/internal/pipeline"
	"github.com/fpang/wildlife-tracker/internal/processing"
	"github.com/fpang/wildlife-tracker/internal/retention"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{61 * time.Second, "1:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.d); got != tt.want {
			t.Errorf("FormatDurationShort(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPromptForPreferences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []retention.Preference
	}{
		{"all defaults", "\n\n\n\n", []retention.Preference{retention.KeepSummary}},
		{"explicit answers", "y\nn\nyes\nn\n", []retention.Preference{retention.KeepOriginal, retention.KeepDetailedResults}},
		{"eof uses defaults", "", []retention.Preference{retention.KeepSummary}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := PromptForPreferences(strings.NewReader(tt.input), &out)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got.Tokens(), tt.want)
			}
			for _, p := range tt.want {
				if !got.Has(p) {
					t.Errorf("missing %s in %v", p, got.Tokens())
				}
			}
		})
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	PrintResult(&buf, "trail.mp4", &processing.Result{
		Status:  processing.AnimalsDetected,
		Message: processing.MessageAnimals,
		URLs:    map[string]string{retention.SummaryURL: "/download/x_summary.txt"},
	}, 75*time.Second)

	out := buf.String()
	for _, want := range []string{"trail.mp4: Animals detected (1:15)", "summaryUrl", "/download/x_summary.txt"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateVideoFiles(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(clip, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateVideoFiles([]string{clip}); err != nil {
		t.Errorf("valid file: %v", err)
	}
	if err := ValidateVideoFiles(nil); !errors.Is(err, pipeline.ErrNoFiles) {
		t.Errorf("no files: %v", err)
	}
	if err := ValidateVideoFiles([]string{filepath.Join(dir, "clip.mov")}); !errors.Is(err, pipeline.ErrUnsupportedFormat) {
		t.Errorf("bad extension: %v", err)
	}
	if err := ValidateVideoFiles([]string{filepath.Join(dir, "missing.avi")}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
}
