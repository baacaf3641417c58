package main

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/fpang/wildlife-tracker/internal/pipeline"
	"github.com/fpang/wildlife-tracker/internal/retention"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// formUpload adapts a multipart file header to a pipeline upload.
func formUpload(fh *multipart.FileHeader) pipeline.Upload {
	return pipeline.Upload{
		Filename: fh.Filename,
		Open:     func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// formPreferences joins every "preference" value; each may itself be a
// comma-separated list.
func formPreferences(r *http.Request) retention.Set {
	return retention.ParseSet(strings.Join(r.MultipartForm.Value["preference"], ","))
}

// formInterval reads every_n_frame, falling back to def when it is absent.
func formInterval(r *http.Request, def int) (int, bool) {
	raw := strings.TrimSpace(r.FormValue("every_n_frame"))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
