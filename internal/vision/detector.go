// Package vision wraps the tiger detection and re-identification model
// backends. Failures in either stage degrade to negative results with an
// embedded error string; they never abort the surrounding batch.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wildsight/tigerwatch/internal/monitor"
)

// DetectorConfig points at the object-detection model server.
type DetectorConfig struct {
	DetectURL string
	Timeout   time.Duration
}

// HTTPDetector implements monitor.Detector against a model-serving
// endpoint that accepts raw image bytes and returns bounding boxes.
type HTTPDetector struct {
	cfg        DetectorConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPDetector builds an HTTPDetector.
func NewHTTPDetector(cfg DetectorConfig, logger *zap.Logger) *HTTPDetector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPDetector{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Detect runs object detection on one image. Any failure yields a
// negative result with Error set.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte) monitor.DetectionResult {
	result, err := d.call(ctx, image)
	if err != nil {
		d.logger.Warn("detection failed", zap.Error(err))
		return monitor.DetectionResult{
			Detected:   false,
			Detections: []monitor.BoundingBox{},
			Error:      err.Error(),
		}
	}
	return result
}

func (d *HTTPDetector) call(ctx context.Context, image []byte) (monitor.DetectionResult, error) {
	if d.cfg.DetectURL == "" {
		return monitor.DetectionResult{}, fmt.Errorf("detection backend not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.DetectURL, bytes.NewReader(image))
	if err != nil {
		return monitor.DetectionResult{}, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return monitor.DetectionResult{}, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-side close

	if resp.StatusCode != http.StatusOK {
		return monitor.DetectionResult{}, fmt.Errorf("detect backend returned status %d", resp.StatusCode)
	}

	var payload struct {
		Detections []struct {
			BBox       [4]float64 `json:"bbox"`
			Confidence float64    `json:"confidence"`
		} `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return monitor.DetectionResult{}, fmt.Errorf("parse detect response: %w", err)
	}

	boxes := make([]monitor.BoundingBox, 0, len(payload.Detections))
	var best float64
	for _, det := range payload.Detections {
		boxes = append(boxes, monitor.BoundingBox{
			X:          det.BBox[0],
			Y:          det.BBox[1],
			Width:      det.BBox[2],
			Height:     det.BBox[3],
			Confidence: det.Confidence,
		})
		if det.Confidence > best {
			best = det.Confidence
		}
	}

	return monitor.DetectionResult{
		Detected:   len(boxes) > 0,
		Detections: boxes,
		Confidence: best,
	}, nil
}
