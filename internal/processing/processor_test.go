package processing_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/fpang/wildlife-tracker/internal/artifact"
	"github.com/fpang/wildlife-tracker/internal/detection"
	"github.com/fpang/wildlife-tracker/internal/processing"
	"github.com/fpang/wildlife-tracker/internal/retention"
	"github.com/fpang/wildlife-tracker/internal/testsupport"
)

func newSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("raw video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newProcessor(det *testsupport.Detector, op *testsupport.Opener) *processing.Processor {
	return processing.New(det, op, processing.Options{
		Classes:         detection.DefaultClasses,
		Confidence:      detection.DefaultConfidence,
		DefaultInterval: 3,
		URLPrefix:       "/download/",
	})
}

func deer(track int64) detection.Detection {
	return detection.Detection{ClassID: 1, TrackID: track, Box: [4]float64{8, 8, 4, 4}}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestProcessVideo_SamplesEveryThirdFrame(t *testing.T) {
	det := &testsupport.Detector{}
	op := &testsupport.Opener{Frames: 10}
	src := newSource(t, "s_u_clip.mp4")

	_, err := newProcessor(det, op).ProcessVideo(context.Background(), processing.Request{
		SourcePath:  src,
		Preferences: retention.NewSet(retention.KeepOriginal),
		Interval:    3,
	})
	if err != nil {
		t.Fatalf("ProcessVideo() error = %v", err)
	}
	if want := []int{3, 6, 9}; !reflect.DeepEqual(det.Calls, want) {
		t.Errorf("detector calls = %v, want %v", det.Calls, want)
	}
}

func TestProcessVideo_DefaultInterval(t *testing.T) {
	det := &testsupport.Detector{}
	op := &testsupport.Opener{Frames: 7}
	src := newSource(t, "s_u_clip.mp4")

	if _, err := newProcessor(det, op).ProcessVideo(context.Background(), processing.Request{
		SourcePath: src, Preferences: retention.NewSet(), Interval: 0,
	}); err != nil {
		t.Fatal(err)
	}
	if want := []int{3, 6}; !reflect.DeepEqual(det.Calls, want) {
		t.Errorf("detector calls = %v, want %v", det.Calls, want)
	}
}

func TestProcessVideo_SingleWithDetections(t *testing.T) {
	det := &testsupport.Detector{Results: map[int][]detection.Detection{
		2: {deer(1)},
		4: {deer(1), {ClassID: 0, TrackID: 2, Box: [4]float64{1, 1, 2, 2}}},
	}}
	op := &testsupport.Opener{Frames: 5}
	src := newSource(t, "s_u_clip.mp4")

	res, err := newProcessor(det, op).ProcessVideo(context.Background(), processing.Request{
		SourcePath:  src,
		Preferences: retention.NewSet(retention.AllPreferences...),
		Interval:    2,
	})
	if err != nil {
		t.Fatalf("ProcessVideo() error = %v", err)
	}
	if res.Status != processing.AnimalsDetected || res.Message != processing.MessageAnimals {
		t.Errorf("unexpected status %q / %q", res.Status, res.Message)
	}
	for _, key := range []string{retention.VideoURL, retention.AnnotatedVideoURL, retention.DetailedResultsURL, retention.SummaryURL} {
		if !strings.HasPrefix(res.URLs[key], "/download/") {
			t.Errorf("url %s = %q", key, res.URLs[key])
		}
	}

	dir := filepath.Dir(src)
	detailed := readFile(t, filepath.Join(dir, strings.TrimPrefix(res.URLs[retention.DetailedResultsURL], "/download/")))
	wantDetailed := "Track ID: 1, Animal: deer, Box: [8, 8, 4, 4]\n" +
		"Track ID: 1, Animal: deer, Box: [8, 8, 4, 4]\n" +
		"Track ID: 2, Animal: coyote, Box: [1, 1, 2, 2]\n"
	if detailed != wantDetailed {
		t.Errorf("detailed results =\n%s\nwant\n%s", detailed, wantDetailed)
	}
	summary := readFile(t, filepath.Join(dir, strings.TrimPrefix(res.URLs[retention.SummaryURL], "/download/")))
	if summary != "deer: Detected with Track ID: 1\ncoyote: Detected with Track ID: 2\n" {
		t.Errorf("summary = %q", summary)
	}

	annotated := filepath.Join(dir, strings.TrimPrefix(res.URLs[retention.AnnotatedVideoURL], "/download/"))
	if got := op.FramesWritten(annotated); got != 5 {
		t.Errorf("annotated frames written = %d, want 5", got)
	}
	if !strings.HasPrefix(filepath.Base(annotated), "s_u_clip_") {
		t.Errorf("annotated name %q should start with the source base name", filepath.Base(annotated))
	}
}

func TestProcessVideo_SingleNoDetections(t *testing.T) {
	det := &testsupport.Detector{}
	op := &testsupport.Opener{Frames: 6}
	src := newSource(t, "s_u_empty.avi")

	res, err := newProcessor(det, op).ProcessVideo(context.Background(), processing.Request{
		SourcePath:  src,
		Preferences: retention.NewSet(retention.GenerateAnnotatedVideo),
		Interval:    1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != processing.NoAnimalsDetected || res.Message != processing.MessageNoAnimals {
		t.Errorf("unexpected status %q", res.Status)
	}
	if len(res.URLs) != 1 || res.URLs[retention.SummaryURL] == "" {
		t.Errorf("urls = %v, want only summaryUrl", res.URLs)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be deleted without keep_original")
	}

	entries, _ := os.ReadDir(filepath.Dir(src))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".mp4") {
			t.Errorf("annotated video %s should be removed", e.Name())
		}
	}
}

func TestProcessVideo_Batch(t *testing.T) {
	det := &testsupport.Detector{Results: map[int][]detection.Detection{1: {deer(4)}}}
	op := &testsupport.Opener{Frames: 2}
	src := newSource(t, "s_u_clip.mp4")
	outDir := t.TempDir()

	res, err := newProcessor(det, op).ProcessVideo(context.Background(), processing.Request{
		SourcePath:  src,
		Preferences: retention.NewSet(retention.KeepDetailedResults),
		Batch:       true,
		Interval:    1,
		OutputDir:   outDir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.URLs != nil {
		t.Errorf("batch results carry no urls, got %v", res.URLs)
	}
	if len(res.Files) != 2 {
		t.Fatalf("files = %+v, want summary and detailed results", res.Files)
	}
	if res.Files[0].Type != artifact.Summary || res.Files[1].Type != artifact.DetailedResults {
		t.Errorf("unexpected file types %+v", res.Files)
	}
	for _, f := range res.Files {
		if filepath.Dir(f.Path) != outDir {
			t.Errorf("%s not written to the requested output dir", f.Path)
		}
		if !f.HasAnimals() {
			t.Errorf("%s should be flagged as containing animals", f.Path)
		}
	}
}

func TestProcessVideo_FrameFailuresAreSkipped(t *testing.T) {
	det := &testsupport.Detector{
		Results: map[int][]detection.Detection{3: {deer(9)}},
		Errors:  map[int]error{1: errors.New("timeout")},
		Panics:  map[int]bool{2: true},
	}
	op := &testsupport.Opener{Frames: 3}
	src := newSource(t, "s_u_clip.mp4")

	res, err := newProcessor(det, op).ProcessVideo(context.Background(), processing.Request{
		SourcePath: src, Preferences: retention.NewSet(), Batch: true, Interval: 1,
	})
	if err != nil {
		t.Fatalf("frame failures must not abort the video: %v", err)
	}
	if !res.AnimalsDetected() {
		t.Error("detections on later frames should survive earlier failures")
	}
	if len(det.Calls) != 3 {
		t.Errorf("detector calls = %v, want all three frames", det.Calls)
	}
}

func TestProcessVideo_InitializationFailures(t *testing.T) {
	tests := []struct {
		name string
		det  *testsupport.Detector
		op   *testsupport.Opener
		pref retention.Set
	}{
		{
			name: "source cannot be opened",
			det:  &testsupport.Detector{},
			op:   &testsupport.Opener{OpenErr: map[string]error{"s_u_clip.mp4": errors.New("corrupt container")}},
			pref: retention.NewSet(),
		},
		{
			name: "detector unavailable",
			det:  &testsupport.Detector{Health: errors.New("connection refused")},
			op:   &testsupport.Opener{Frames: 1},
			pref: retention.NewSet(),
		},
		{
			name: "annotated output cannot be created",
			det:  &testsupport.Detector{},
			op:   &testsupport.Opener{Frames: 1, SinkErr: errors.New("disk full")},
			pref: retention.NewSet(retention.GenerateAnnotatedVideo),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newSource(t, "s_u_clip.mp4")
			_, err := newProcessor(tt.det, tt.op).ProcessVideo(context.Background(), processing.Request{
				SourcePath: src, Preferences: tt.pref, Interval: 1,
			})
			if !errors.Is(err, processing.ErrInitialization) {
				t.Errorf("error = %v, want ErrInitialization", err)
			}
			if err != nil && !strings.Contains(err.Error(), "s_u_clip.mp4") {
				t.Errorf("error %q should name the video", err)
			}
		})
	}
}

func TestProcessVideo_CancelledMidStream(t *testing.T) {
	tests := []struct {
		name  string
		prefs retention.Set
	}{
		{"single upload", retention.NewSet(retention.KeepSummary)},
		{"with annotated video", retention.NewSet(retention.KeepSummary, retention.GenerateAnnotatedVideo)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			det := &testsupport.Detector{Results: map[int][]detection.Detection{4: {deer(1)}}}
			op := &testsupport.Opener{Frames: 5, AfterFrame: func(index int) {
				if index == 2 {
					cancel()
				}
			}}
			src := newSource(t, "s_u_clip.mp4")

			res, err := newProcessor(det, op).ProcessVideo(ctx, processing.Request{
				SourcePath:  src,
				Preferences: tt.prefs,
				Interval:    1,
			})
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("ProcessVideo() = %+v, %v; want context.Canceled", res, err)
			}
			if _, err := os.Stat(src); err != nil {
				t.Errorf("upload removed after cancellation: %v", err)
			}
			entries, _ := os.ReadDir(filepath.Dir(src))
			if len(entries) != 1 {
				var names []string
				for _, e := range entries {
					names = append(names, e.Name())
				}
				t.Errorf("outputs left behind: %v", names)
			}
		})
	}
}

func TestProcessVideo_DecoderErrorEndsStream(t *testing.T) {
	det := &testsupport.Detector{Results: map[int][]detection.Detection{1: {deer(3)}, 4: {deer(4)}}}
	op := &testsupport.Opener{Frames: 5, FailAfter: 2}
	src := newSource(t, "s_u_clip.mp4")

	res, err := newProcessor(det, op).ProcessVideo(context.Background(), processing.Request{
		SourcePath:  src,
		Preferences: retention.NewSet(retention.KeepSummary),
		Interval:    1,
	})
	if err != nil {
		t.Fatalf("ProcessVideo() error = %v", err)
	}
	if !res.AnimalsDetected() {
		t.Errorf("status = %q, want detections read before the decoder failed", res.Status)
	}
	if want := []int{1, 2}; !reflect.DeepEqual(det.Calls, want) {
		t.Errorf("detector calls = %v, want %v", det.Calls, want)
	}
}

func TestResultFiltered(t *testing.T) {
	yes := artifact.Detected(true)
	res := &processing.Result{
		Status:  processing.AnimalsDetected,
		Message: processing.MessageAnimals,
		Files: []artifact.Descriptor{
			{Path: "a_summary.txt", Type: artifact.Summary, AnimalsDetected: yes},
			{Path: "a.mp4", Type: artifact.AnnotatedVideo, AnimalsDetected: yes},
		},
	}

	got, err := res.Filtered(retention.NewSet(retention.GenerateAnnotatedVideo))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Files) != 1 || got.Files[0].Path != "a.mp4" {
		t.Errorf("filtered files = %+v", got.Files)
	}
	if got.Status != res.Status || got.Message != res.Message {
		t.Error("status and message should pass through")
	}
	if len(res.Files) != 2 {
		t.Error("Filtered must not modify the original result")
	}
}

func TestOutputPaths(t *testing.T) {
	out := processing.OutputPaths("/in/s_u_clip.mp4", "/out", "t_v")
	want := retention.Outputs{
		Source:          "/in/s_u_clip.mp4",
		AnnotatedVideo:  filepath.Join("/out", "s_u_clip_t_v.mp4"),
		DetailedResults: filepath.Join("/out", "s_u_clip_t_v_detailed.txt"),
		Summary:         filepath.Join("/out", "s_u_clip_t_v_summary.txt"),
	}
	if out != want {
		t.Errorf("OutputPaths() = %+v, want %+v", out, want)
	}
}
