// Package httpdetector talks to a detection and tracking model served over HTTP.
package httpdetector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/fpang/wildlife-tracker/internal/detection"
)

// DefaultURL is used when no service URL is configured.
const DefaultURL = "http://localhost:5005"

const jpegQuality = 90

// Client sends frames to the model service's /track endpoint.
type Client struct {
	serviceURL string
	client     *http.Client
}

type trackResponse struct {
	Detections []struct {
		ClassID int        `json:"class_id"`
		Box     [4]float64 `json:"box"`
		TrackID *int64     `json:"track_id"`
	} `json:"detections"`
}

// New creates a client for serviceURL with the given request timeout.
func New(serviceURL string, timeout time.Duration) *Client {
	if serviceURL == "" {
		serviceURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serviceURL: serviceURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// HealthCheck verifies the model service is running.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("detector service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Track uploads frame as a JPEG and returns the tracked detections. Detections
// the tracker has not yet assigned an id to are dropped.
func (c *Client) Track(ctx context.Context, frame image.Image, opts detection.TrackOptions) ([]detection.Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if err := jpeg.Encode(part, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	fields := map[string]string{
		"conf":      strconv.FormatFloat(opts.Confidence, 'f', -1, 64),
		"persist":   strconv.FormatBool(opts.Persist),
		"stream_id": opts.StreamID,
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/track", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("track request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("detector service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var tr trackResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]detection.Detection, 0, len(tr.Detections))
	for _, d := range tr.Detections {
		if d.TrackID == nil {
			continue
		}
		out = append(out, detection.Detection{ClassID: d.ClassID, TrackID: *d.TrackID, Box: d.Box})
	}
	return out, nil
}
