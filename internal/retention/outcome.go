package retention

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/wildlife-tracker/internal/artifact"
	"github.com/fpang/wildlife-tracker/internal/report"
)

// NoAnimalsBody is written as the summary of a video without detections.
const NoAnimalsBody = "No animals detected."

// URL keys returned by HandleSingle.
const (
	VideoURL           = "videoUrl"
	AnnotatedVideoURL  = "annotatedVideoUrl"
	DetailedResultsURL = "detailedResultsUrl"
	SummaryURL         = "summaryUrl"
)

var (
	// ErrFileHandling wraps I/O failures while writing or removing artifacts.
	ErrFileHandling = errors.New("file handling failed")
	// ErrUnexpectedFileHandling wraps any other failure during artifact handling.
	ErrUnexpectedFileHandling = errors.New("unexpected file handling error")
)

// Outputs names every file a single video can produce.
type Outputs struct {
	Source          string
	AnnotatedVideo  string
	DetailedResults string
	Summary         string
}

// HandleSingle applies the single-upload retention rules and returns download
// URLs keyed by VideoURL, AnnotatedVideoURL, DetailedResultsURL and SummaryURL.
func HandleSingle(out Outputs, prefs Set, lines []string, urlPrefix string) (urls map[string]string, err error) {
	defer recoverFileHandling(out.Source, &err)

	urls = make(map[string]string)
	if len(lines) == 0 {
		if err := removeIfExists(out.AnnotatedVideo); err != nil {
			return nil, classify(out.Source, err)
		}
		if !prefs.Has(KeepOriginal) {
			if err := removeIfExists(out.Source); err != nil {
				return nil, classify(out.Source, err)
			}
		}
		if err := os.WriteFile(out.Summary, []byte(NoAnimalsBody), 0o644); err != nil {
			return nil, classify(out.Source, err)
		}
		urls[SummaryURL] = urlPrefix + filepath.Base(out.Summary)
		return urls, nil
	}

	if prefs.Has(KeepOriginal) {
		urls[VideoURL] = urlPrefix + filepath.Base(out.Source)
	}
	if prefs.Has(GenerateAnnotatedVideo) {
		urls[AnnotatedVideoURL] = urlPrefix + filepath.Base(out.AnnotatedVideo)
	}
	if prefs.Has(KeepDetailedResults) {
		if err := writeLines(out.DetailedResults, lines); err != nil {
			return nil, classify(out.Source, err)
		}
		urls[DetailedResultsURL] = urlPrefix + filepath.Base(out.DetailedResults)
	}
	if err := report.SaveSummary(lines, out.Summary); err != nil {
		return nil, classify(out.Source, err)
	}
	urls[SummaryURL] = urlPrefix + filepath.Base(out.Summary)
	return urls, nil
}

// HandleBatch applies the batch-member retention rules and returns the
// descriptors of the artifacts that were written. The original upload is never
// listed; it is only deleted or left in place.
func HandleBatch(out Outputs, prefs Set, lines []string) (files []artifact.Descriptor, err error) {
	defer recoverFileHandling(out.Source, &err)

	if len(lines) == 0 {
		if err := os.WriteFile(out.Summary, []byte(NoAnimalsBody), 0o644); err != nil {
			return nil, classify(out.Source, err)
		}
		files = append(files, artifact.Descriptor{
			Path: out.Summary, Type: artifact.Summary, AnimalsDetected: artifact.Detected(false),
		})
		if err := removeIfExists(out.AnnotatedVideo); err != nil {
			return nil, classify(out.Source, err)
		}
		if !prefs.Has(KeepOriginal) {
			if err := removeIfExists(out.Source); err != nil {
				return nil, classify(out.Source, err)
			}
		}
		return files, nil
	}

	if err := report.SaveSummary(lines, out.Summary); err != nil {
		return nil, classify(out.Source, err)
	}
	files = append(files, artifact.Descriptor{
		Path: out.Summary, Type: artifact.Summary, AnimalsDetected: artifact.Detected(true),
	})
	if prefs.Has(KeepDetailedResults) {
		if err := writeLines(out.DetailedResults, lines); err != nil {
			return nil, classify(out.Source, err)
		}
		files = append(files, artifact.Descriptor{
			Path: out.DetailedResults, Type: artifact.DetailedResults, AnimalsDetected: artifact.Detected(true),
		})
	}
	if prefs.Has(GenerateAnnotatedVideo) {
		files = append(files, artifact.Descriptor{
			Path: out.AnnotatedVideo, Type: artifact.AnnotatedVideo, AnimalsDetected: artifact.Detected(true),
		})
	}
	return files, nil
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func removeIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// classify sorts err into ErrFileHandling or ErrUnexpectedFileHandling and logs it.
func classify(source string, err error) error {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr) ||
		errors.Is(err, io.ErrShortWrite) || errors.Is(err, io.ErrUnexpectedEOF) {
		log.Error().Err(err).Str("source", filepath.Base(source)).Msg("I/O error while handling files")
		return fmt.Errorf("%w for %s: %w", ErrFileHandling, filepath.Base(source), err)
	}
	log.Error().Err(err).Str("source", filepath.Base(source)).Msg("Error while handling files")
	return fmt.Errorf("%w for %s: %w", ErrUnexpectedFileHandling, filepath.Base(source), err)
}

func recoverFileHandling(source string, err *error) {
	if r := recover(); r != nil {
		*err = classify(source, fmt.Errorf("panic: %v", r))
	}
}
