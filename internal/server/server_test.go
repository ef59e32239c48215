package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"winescan/internal/api"
	"winescan/internal/catalog"
	"winescan/internal/metrics"
	"winescan/internal/recognition"
	"winescan/internal/services"
	"winescan/internal/testsupport"
	"winescan/internal/vision"
)

type stubDetector struct {
	det vision.Detection
	err error
}

func (s stubDetector) Detect(ctx context.Context, image []byte) (vision.Detection, error) {
	if len(image) == 0 {
		return vision.Detection{}, errors.New("empty image")
	}
	return s.det, s.err
}

type harness struct {
	server *Server
	store  *catalog.Store
}

func newHarness(t *testing.T, det vision.Detector, opts ...testsupport.ConfigOption) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenCatalog(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv, err := New(Deps{
		Config:       cfg,
		Detector:     det,
		Orchestrator: recognition.FromConfig(cfg, store, nil, nil, m, nil),
		Catalog:      store,
		Registry:     reg,
		Metrics:      m,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return harness{server: srv, store: store}
}

func scanRequest(t *testing.T, target string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if image != nil {
		part, err := writer.CreateFormFile("image", "shelf.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(image); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(h harness, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeScan(t *testing.T, rec *httptest.ResponseRecorder) api.ScanResponse {
	t.Helper()
	var resp api.ScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 'w', 'i', 'n', 'e'}

func TestScanRecognizesShelf(t *testing.T) {
	h := newHarness(t, stubDetector{det: testsupport.Shelf("CAYMUS CABERNET SAUVIGNON 2019 750ML $45.99", "")})
	rec := serve(h, scanRequest(t, "/v1/scan", jpeg))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatal("expected a request id header")
	}
	resp := decodeScan(t, rec)
	if resp.ImageID == "" {
		t.Fatal("expected an image id")
	}
	if len(resp.Results) != 1 || resp.Results[0].WineName != "Caymus Cabernet Sauvignon" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
	if resp.Results[0].Rating == nil || *resp.Results[0].Rating != 4.5 {
		t.Fatalf("unexpected rating %+v", resp.Results[0])
	}
	if resp.Debug != nil {
		t.Fatal("debug must be omitted unless requested")
	}
}

func TestScanVisionFailureDegrades(t *testing.T) {
	h := newHarness(t, stubDetector{err: services.Wrap(services.ErrExternalTool, "vision", "detect", "status 502", nil)})
	rec := serve(h, scanRequest(t, "/v1/scan", jpeg))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeScan(t, rec)
	if len(resp.Results) != 0 || len(resp.FallbackList) != len(testsupport.SampleWines()) {
		t.Fatalf("expected top-rated fallback, got %+v", resp)
	}
	if resp.FallbackList[0].WineName != "Penfolds Grange" {
		t.Fatalf("fallback should start with the best rated wine, got %+v", resp.FallbackList[0])
	}
}

func TestScanCatalogFailureIsServiceUnavailable(t *testing.T) {
	h := newHarness(t, stubDetector{det: testsupport.Shelf("OPUS ONE")})
	if err := h.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	rec := serve(h, scanRequest(t, "/v1/scan", jpeg))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var body api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "catalog unavailable" || body.RequestID == "" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestScanRejectsBadUploads(t *testing.T) {
	h := newHarness(t, stubDetector{det: testsupport.Shelf("OPUS ONE")})
	if rec := serve(h, scanRequest(t, "/v1/scan", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing image: status = %d", rec.Code)
	}
	if rec := serve(h, scanRequest(t, "/v1/scan", []byte{})); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty image: status = %d", rec.Code)
	}
	big := bytes.Repeat([]byte{0x42}, 13<<20)
	if rec := serve(h, scanRequest(t, "/v1/scan", big)); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize image: status = %d", rec.Code)
	}
	if rec := serve(h, scanRequest(t, "/v1/scan?debug=maybe", jpeg)); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad debug flag: status = %d", rec.Code)
	}
}

func rawScanRequest(target string, image []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(image))
	req.Header.Set("Content-Type", "image/jpeg")
	return req
}

func TestScanAcceptsRawImageBody(t *testing.T) {
	h := newHarness(t, stubDetector{det: testsupport.Shelf("OPUS ONE")})
	rec := serve(h, rawScanRequest("/v1/scan", jpeg))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeScan(t, rec)
	if len(resp.Results) != 1 || resp.Results[0].WineName != "Opus One" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}

	if rec := serve(h, rawScanRequest("/v1/scan", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty raw body: status = %d", rec.Code)
	}
	big := bytes.Repeat([]byte{0x42}, 13<<20)
	if rec := serve(h, rawScanRequest("/v1/scan", big)); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize raw body: status = %d", rec.Code)
	}
	// Without a Content-Length the limit is enforced while reading.
	req := rawScanRequest("/v1/scan", big)
	req.ContentLength = -1
	if rec := serve(h, req); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize chunked body: status = %d", rec.Code)
	}
}

func TestScanDebugRequiresServerOptIn(t *testing.T) {
	det := stubDetector{det: testsupport.Shelf("OPUS ONE")}
	closed := newHarness(t, det)
	if rec := serve(closed, scanRequest(t, "/v1/scan?debug=true", jpeg)); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	open := newHarness(t, det, testsupport.WithDebugEnabled())
	rec := serve(open, scanRequest(t, "/v1/scan?debug=true", jpeg))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeScan(t, rec)
	if resp.Debug == nil || len(resp.Debug.Steps) != 1 {
		t.Fatalf("expected one debug step, got %+v", resp.Debug)
	}
	step := resp.Debug.Steps[0]
	if step.NormalizedText != "opus one" || step.Source != recognition.SourceCatalog {
		t.Fatalf("unexpected step %+v", step)
	}
}

func TestScanBearerAuth(t *testing.T) {
	h := newHarness(t, stubDetector{det: testsupport.Shelf("OPUS ONE")}, testsupport.WithAPIToken("s3cret"))

	if rec := serve(h, scanRequest(t, "/v1/scan", jpeg)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}
	req := scanRequest(t, "/v1/scan", jpeg)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := serve(h, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}
	req = scanRequest(t, "/v1/scan", jpeg)
	req.Header.Set("Authorization", "Bearer s3cret")
	if rec := serve(h, req); rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("healthz must not require auth: status = %d", rec.Code)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	h := newHarness(t, stubDetector{det: testsupport.Shelf("OPUS ONE")})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := serve(h, req)
	if got := rec.Header().Get(headerRequestID); got != "req-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestHealthzReportsCatalog(t *testing.T) {
	h := newHarness(t, stubDetector{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health api.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.CatalogWines != len(testsupport.SampleWines()) || health.LLMEnabled {
		t.Fatalf("unexpected health %+v", health)
	}

	_ = h.store.Close()
	if rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("closed catalog: status = %d", rec.Code)
	}
}

func TestMetricsEndpointExposesScanHistogram(t *testing.T) {
	h := newHarness(t, stubDetector{det: testsupport.Shelf("OPUS ONE")})
	if rec := serve(h, scanRequest(t, "/v1/scan", jpeg)); rec.Code != http.StatusOK {
		t.Fatalf("scan status = %d", rec.Code)
	}
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"winescan_http_scan_duration_seconds", "winescan_recognition_bottles_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

func TestServerStartAndStop(t *testing.T) {
	h := newHarness(t, stubDetector{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.server.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + h.server.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	h.server.Stop()
}
