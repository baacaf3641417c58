package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/fpang/wildlife-tracker/internal/artifact"
	"github.com/fpang/wildlife-tracker/internal/retention"
	"github.com/fpang/wildlife-tracker/internal/session"
)

const testSession = "20260314092653_0f8c2e4a-9d1b-4c77-8a55-3e2f1b6d7c90"

func TestArchiveName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"s_u_clip_t_v_summary.txt", "clip_s_u_t_v_summary.txt"},
		{"a_b_c", "c_a_b"},
		{"a_b", "a_b"},
		{"plain.txt", "plain.txt"},
	}
	for _, tt := range tests {
		if got := ArchiveName(tt.in); got != tt.want {
			t.Errorf("ArchiveName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemberName(t *testing.T) {
	tests := []struct {
		d    artifact.Descriptor
		want string
	}{
		{artifact.Descriptor{Path: "x/s_u_a_t_v_summary.txt", Type: artifact.Summary, AnimalsDetected: artifact.Detected(true)}, "animals_detected/a_s_u_t_v_summary.txt"},
		{artifact.Descriptor{Path: "x/s_u_b_t_v_summary.txt", Type: artifact.Summary, AnimalsDetected: artifact.Detected(false)}, "no_animals_detected/b_s_u_t_v_summary.txt"},
		{artifact.Descriptor{Path: "x/s_u_c_t_v.mp4", Type: artifact.AnnotatedVideo}, "no_animals_detected/c_s_u_t_v.mp4"},
		{artifact.Descriptor{Path: "x/overall_summary.csv", Type: artifact.SummaryCSV}, "overall_summary.csv"},
		{artifact.Descriptor{Path: "x/overall_summary.xlsx", Type: artifact.SummaryExcel}, "overall_summary.xlsx"},
	}
	for _, tt := range tests {
		if got := MemberName(tt.d); got != tt.want {
			t.Errorf("MemberName(%s) = %q, want %q", tt.d.Path, got, tt.want)
		}
	}
}

// writeSession lays out a session with one file of each bucket plus the
// overall summaries, and one manifest entry whose file is missing.
func writeSession(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	sess := filepath.Join(dir, testSession)
	if err := os.Mkdir(sess, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"s_u_deer_t_v_summary.txt":  "deer: Detected with Track ID: 1\n",
		"s_u_deer_t_v_detailed.txt": "Track ID: 1, Animal: deer, Box: [1, 2, 3, 4]\n",
		"s_u_empty_t_v_summary.txt": "No animals detected.",
		"overall_summary.csv":       "Video Name,Animals Detected,Detected Animals,Animal Counts\n",
		"overall_summary.xlsx":      "xlsx bytes",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(sess, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	rel := func(name string) string { return filepath.Join(testSession, name) }
	yes, no := artifact.Detected(true), artifact.Detected(false)
	// Interleaved on purpose: the archive regroups members.
	manifest := []artifact.Descriptor{
		{Path: rel("s_u_empty_t_v_summary.txt"), Type: artifact.Summary, AnimalsDetected: no},
		{Path: rel("s_u_deer_t_v_summary.txt"), Type: artifact.Summary, AnimalsDetected: yes},
		{Path: rel("overall_summary.csv"), Type: artifact.SummaryCSV},
		{Path: rel("s_u_deer_t_v_detailed.txt"), Type: artifact.DetailedResults, AnimalsDetected: yes},
		{Path: rel("s_u_deer_t_v.mp4"), Type: artifact.AnnotatedVideo, AnimalsDetected: yes},
		{Path: rel("overall_summary.xlsx"), Type: artifact.SummaryExcel},
	}
	if err := session.Save(dir, testSession, retention.NewSet(retention.KeepSummary), manifest); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readMembers(t *testing.T, rd *bytes.Reader) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(rd, rd.Size())
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	zr.RegisterDecompressor(zipMethodZstd, func(r io.Reader) io.ReadCloser {
		dec, err := zstd.NewReader(r)
		if err != nil {
			t.Fatal(err)
		}
		return dec.IOReadCloser()
	})
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		out[f.Name] = string(b)
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestBuild(t *testing.T) {
	for _, c := range []Compression{Deflate, Zstd} {
		t.Run(string(c), func(t *testing.T) {
			dir := writeSession(t)
			b := &Builder{OutputDir: dir, Compression: c}

			rd, err := b.Build(context.Background(), testSession)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			members := readMembers(t, rd)

			want := []string{
				"animals_detected/deer_s_u_t_v_detailed.txt",
				"animals_detected/deer_s_u_t_v_summary.txt",
				"no_animals_detected/empty_s_u_t_v_summary.txt",
				"overall_summary.csv",
				"overall_summary.xlsx",
			}
			if got := keys(members); !equal(got, want) {
				t.Errorf("members = %v, want %v", got, want)
			}
			if members["no_animals_detected/empty_s_u_t_v_summary.txt"] != "No animals detected." {
				t.Error("member content mismatch")
			}
		})
	}
}

func TestBuild_MemberOrder(t *testing.T) {
	dir := writeSession(t)
	b := &Builder{OutputDir: dir, Compression: Deflate}

	rd, err := b.Build(context.Background(), testSession)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(rd, rd.Size())
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, f := range zr.File {
		got = append(got, f.Name)
	}
	want := []string{
		"overall_summary.csv",
		"overall_summary.xlsx",
		"animals_detected/deer_s_u_t_v_summary.txt",
		"animals_detected/deer_s_u_t_v_detailed.txt",
		"no_animals_detected/empty_s_u_t_v_summary.txt",
	}
	if !equal(got, want) {
		t.Errorf("member order = %v, want %v", got, want)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	dir := writeSession(t)
	b := &Builder{OutputDir: dir, Compression: Deflate}

	first, err := b.Build(context.Background(), testSession)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(context.Background(), testSession)
	if err != nil {
		t.Fatal(err)
	}
	m1, m2 := readMembers(t, first), readMembers(t, second)
	if !equal(keys(m1), keys(m2)) {
		t.Fatalf("member sets differ: %v vs %v", keys(m1), keys(m2))
	}
	for k := range m1 {
		if m1[k] != m2[k] {
			t.Errorf("member %s differs between builds", k)
		}
	}
}

func TestBuild_UnknownSession(t *testing.T) {
	b := &Builder{OutputDir: t.TempDir()}
	_, err := b.Build(context.Background(), testSession)
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("error = %v, want session.ErrNotFound", err)
	}
}

func TestBuild_AllFilesMissing(t *testing.T) {
	dir := t.TempDir()
	files := []artifact.Descriptor{{Path: "gone_summary.txt", Type: artifact.Summary, AnimalsDetected: artifact.Detected(true)}}
	if err := session.Save(dir, testSession, retention.NewSet(), files); err != nil {
		t.Fatal(err)
	}

	rd, err := (&Builder{OutputDir: dir}).Build(context.Background(), testSession)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if rd.Len() != 0 {
		t.Errorf("expected an empty archive, got %d bytes", rd.Len())
	}
}

func TestBuild_EmptyManifest(t *testing.T) {
	dir := t.TempDir()
	if err := session.Save(dir, testSession, retention.NewSet(), nil); err != nil {
		t.Fatal(err)
	}
	rd, err := (&Builder{OutputDir: dir}).Build(context.Background(), testSession)
	if err != nil {
		t.Fatal(err)
	}
	if rd.Len() != 0 {
		t.Errorf("expected zero bytes, got %d", rd.Len())
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
