package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/wildlife-tracker/internal/archive"
	"github.com/fpang/wildlife-tracker/internal/config"
	"github.com/fpang/wildlife-tracker/internal/detection"
	"github.com/fpang/wildlife-tracker/internal/jobs"
	"github.com/fpang/wildlife-tracker/internal/metrics"
	"github.com/fpang/wildlife-tracker/internal/pipeline"
	"github.com/fpang/wildlife-tracker/internal/session"
)

const (
	zipRoutePrefix = "/zip/download/"
	// multipartMemory is how much of a multipart body is held in memory
	// before spilling to temporary files.
	multipartMemory = 32 << 20
	healthTimeout   = 5 * time.Second
)

type server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	archives *archive.Builder
	health   detection.HealthChecker
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/upload_and_track/", s.handleUploadAndTrack)
	mux.HandleFunc("/upload_and_track_multiple/", s.handleUploadMultiple)
	mux.HandleFunc(zipRoutePrefix, s.handleZipDownload)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.Handle(s.cfg.DownloadPrefix, http.StripPrefix(s.cfg.DownloadPrefix, noListing(http.FileServer(http.Dir(s.cfg.OutputDir)))))
	mux.Handle("/static/", http.StripPrefix("/static/", noListing(http.FileServer(http.Dir(s.cfg.StaticDir)))))
	mux.HandleFunc("/", s.handleIndex)

	return withSecurityHeaders(mux)
}

// noListing hides directory indexes, so session folders cannot be enumerated.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GET /
func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	index := filepath.Join(s.cfg.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		respondJSON(w, http.StatusOK, map[string]string{"service": "wildlife-web"})
		return
	}
	http.ServeFile(w, r, index)
}

// POST /upload_and_track/
func (s *server) handleUploadAndTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		httpError(w, http.StatusBadRequest, "file is required")
		return
	}
	interval, ok := formInterval(r, s.cfg.EveryNFrame)
	if !ok {
		httpError(w, http.StatusBadRequest, "every_n_frame must be a positive integer")
		return
	}
	prefs := formPreferences(r)

	res, err := s.pipeline.RunSingle(r.Context(), formUpload(files[0]), prefs, interval)
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		httpError(w, http.StatusBadRequest, "Invalid file type.")
		return
	case errors.Is(err, pipeline.ErrSaveFailed):
		httpError(w, http.StatusInternalServerError, "Failed to save file.")
		return
	case err != nil:
		log.Error().Err(err).Str("file", files[0].Filename).Msg("Video processing failed")
		httpError(w, http.StatusInternalServerError, fmt.Sprintf("Video processing failed: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// POST /upload_and_track_multiple/
func (s *server) handleUploadMultiple(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	interval, ok := formInterval(r, s.cfg.EveryNFrame)
	if !ok {
		httpError(w, http.StatusBadRequest, "every_n_frame must be a positive integer")
		return
	}
	headers := r.MultipartForm.File["files"]
	uploads := make([]pipeline.Upload, len(headers))
	for i, fh := range headers {
		uploads[i] = formUpload(fh)
	}

	outcome, err := s.pipeline.RunBatch(r.Context(), uploads, formPreferences(r), interval)
	switch {
	case errors.Is(err, pipeline.ErrNoFiles):
		httpError(w, http.StatusBadRequest, "No files provided")
		return
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		httpError(w, http.StatusBadRequest, "Invalid file type, only MP4 and AVI files are allowed")
		return
	case err != nil:
		log.Error().Err(err).Msg("Batch failed")
		body := map[string]string{"error": fmt.Sprintf("Internal server error: %v", err)}
		if outcome != nil {
			body["session_id"] = outcome.SessionID
		}
		respondJSON(w, http.StatusInternalServerError, body)
		return
	}

	status := http.StatusOK
	if outcome.Processed == 0 {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, outcome)
}

// GET /zip/download/{session_id}
func (s *server) handleZipDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID, ok := jobs.ParseRoute(r.URL.Path, zipRoutePrefix)
	if !ok {
		httpError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	rd, err := s.archives.Build(r.Context(), sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		httpError(w, http.StatusNotFound, "Manifest file not found. Invalid session ID or processing not completed.")
		return
	case errors.Is(err, session.ErrManifestIO), errors.Is(err, session.ErrManifestParse):
		log.Error().Err(err).Str("session", sessionID).Msg("Failed to read manifest")
		httpError(w, http.StatusInternalServerError, "Failed to read or write ZIP file.")
		return
	case err != nil:
		log.Error().Err(err).Str("session", sessionID).Msg("Failed to build archive")
		httpError(w, http.StatusInternalServerError, fmt.Sprintf("An unexpected error occurred while creating the ZIP file: %v", err))
		return
	}
	if rd.Len() == 0 {
		httpError(w, http.StatusNotFound, "No data available to download.")
		return
	}

	w.Header().Set("Content-Type", "application/x-zip-compressed")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_output.zip", sessionID))
	w.Header().Set("Content-Length", strconv.Itoa(rd.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rd); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("Archive download interrupted")
	}
}

// GET /healthz
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "detector": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
