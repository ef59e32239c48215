package vision_test

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"winescan/internal/services"
	"winescan/internal/vision"
)

const samplePayload = `{
  "image_width": 3000,
  "image_height": 4000,
  "fragments": [
    {"text": "  CAYMUS  ", "bbox": {"x": 0.1, "y": 0.2, "width": 0.1, "height": 0.05}, "confidence": 0.98},
    {"text": "   ", "bbox": {"x": 0.5, "y": 0.5, "width": 0.1, "height": 0.1}, "confidence": 0.9},
    {"text": "EDGE", "bbox": {"x": 0.95, "y": -0.1, "width": 0.2, "height": 0.2}, "confidence": 1.4}
  ],
  "bottles": [
    {"bbox": {"x": 0.05, "y": 0.1, "width": 0.25, "height": 0.8}, "confidence": 0.9},
    {"bbox": {"x": 0.4, "y": 0.1, "width": 0, "height": 0.8}, "confidence": 0.9},
    {"bbox": {"x": 0.6, "y": 0.1, "width": 0.25, "height": 0.8}, "confidence": 0.8}
  ]
}`

func TestClientDetectDecodesAndSanitizes(t *testing.T) {
	var gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	client := vision.NewClient(vision.Config{BaseURL: server.URL, APIKey: "vision-key"})
	det, err := client.Detect(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if gotAuth != "Bearer vision-key" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if string(gotBody) != "jpeg-bytes" {
		t.Fatalf("unexpected request body %q", gotBody)
	}
	if det.ImageWidth != 3000 || det.ImageHeight != 4000 {
		t.Fatalf("unexpected dimensions %dx%d", det.ImageWidth, det.ImageHeight)
	}
	if len(det.Fragments) != 2 {
		t.Fatalf("expected blank fragment to be dropped, got %+v", det.Fragments)
	}
	if det.Fragments[0].Text != "CAYMUS" {
		t.Fatalf("expected trimmed text, got %q", det.Fragments[0].Text)
	}
	edge := det.Fragments[1]
	if edge.BBox.Y != 0 || edge.BBox.X+edge.BBox.Width > 1.0000001 || edge.Confidence != 1 {
		t.Fatalf("expected clamped edge fragment, got %+v", edge)
	}
	if len(det.Bottles) != 2 {
		t.Fatalf("expected degenerate bottle to be dropped, got %+v", det.Bottles)
	}
	if det.Bottles[0].Index != 0 || det.Bottles[1].Index != 1 {
		t.Fatalf("expected bottles renumbered, got %+v", det.Bottles)
	}
}

func TestClientDetectErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"fragments": []}`))
	}))
	defer malformed.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	cases := []struct {
		name   string
		client *vision.Client
		image  []byte
		marker error
	}{
		{"unconfigured", vision.NewClient(vision.Config{}), []byte("x"), services.ErrConfiguration},
		{"empty image", vision.NewClient(vision.Config{BaseURL: failing.URL}), nil, services.ErrValidation},
		{"http status", vision.NewClient(vision.Config{BaseURL: failing.URL}), []byte("x"), services.ErrExternalTool},
		{"malformed", vision.NewClient(vision.Config{BaseURL: malformed.URL}), []byte("x"), services.ErrExternalTool},
		{"timeout", vision.NewClient(vision.Config{BaseURL: slow.URL, Timeout: 50 * time.Millisecond}), []byte("x"), services.ErrTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.client.Detect(context.Background(), tc.image)
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
		})
	}
}

func TestFileDetectorReplaysDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detection.json")
	if err := os.WriteFile(path, []byte(samplePayload), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	det, err := vision.FileDetector{Path: path}.Detect(context.Background(), nil)
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if len(det.Bottles) != 2 || len(det.Fragments) != 2 {
		t.Fatalf("unexpected detection %+v", det)
	}

	_, err = vision.FileDetector{Path: filepath.Join(t.TempDir(), "missing.json")}.Detect(context.Background(), nil)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBBoxCenter(t *testing.T) {
	x, y := vision.BBox{X: 0.2, Y: 0.4, Width: 0.2, Height: 0.2}.Center()
	if math.Abs(x-0.3) > 1e-9 {
		t.Fatalf("unexpected center x %v", x)
	}
	if math.Abs(y-0.5) > 1e-9 {
		t.Fatalf("unexpected center y %v", y)
	}
}
