package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"winescan/internal/services"
)

const defaultTimeout = 4 * time.Second

// maxResponseBytes bounds how much of a vision response is read.
const maxResponseBytes = 8 << 20

// Config captures the runtime settings required to reach the vision service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client posts image bytes to the vision service and decodes its detection.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a vision client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Detect sends one image and returns the sanitized detection.
func (c *Client) Detect(ctx context.Context, image []byte) (Detection, error) {
	if c.cfg.BaseURL == "" {
		return Detection{}, services.Wrap(services.ErrConfiguration, "vision", "detect", "vision.base_url is not configured", nil)
	}
	if len(image) == 0 {
		return Detection{}, services.Wrap(services.ErrValidation, "vision", "detect", "empty image", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(image))
	if err != nil {
		return Detection{}, services.Wrap(services.ErrConfiguration, "vision", "detect", "build request", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Detection{}, services.Wrap(services.ErrTimeout, "vision", "detect", fmt.Sprintf("no response within %s", c.cfg.Timeout), err)
		}
		return Detection{}, services.Wrap(services.ErrExternalTool, "vision", "detect", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Detection{}, services.Wrap(services.ErrExternalTool, "vision", "detect", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Detection{}, services.Wrap(services.ErrExternalTool, "vision", "detect",
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(body)), nil)
	}
	return DecodeDetection(body)
}

// DecodeDetection parses a vision payload. Payloads without a fragments or
// bottles array are rejected as malformed rather than read as an empty shelf.
func DecodeDetection(payload []byte) (Detection, error) {
	var raw struct {
		ImageWidth  int         `json:"image_width"`
		ImageHeight int         `json:"image_height"`
		Fragments   *[]Fragment `json:"fragments"`
		Bottles     *[]Bottle   `json:"bottles"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Detection{}, services.Wrap(services.ErrExternalTool, "vision", "decode", "malformed payload", err)
	}
	if raw.Fragments == nil || raw.Bottles == nil {
		return Detection{}, services.Wrap(services.ErrExternalTool, "vision", "decode", "payload missing fragments or bottles", nil)
	}
	det := Detection{
		ImageWidth:  raw.ImageWidth,
		ImageHeight: raw.ImageHeight,
		Fragments:   *raw.Fragments,
		Bottles:     *raw.Bottles,
	}
	return det.Sanitize(), nil
}

// FileDetector replays a saved detection instead of calling the service, for
// offline runs and fixtures.
type FileDetector struct {
	Path string
}

// Detect ignores the image and returns the detection stored at Path.
func (f FileDetector) Detect(ctx context.Context, _ []byte) (Detection, error) {
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Detection{}, services.Wrap(services.ErrNotFound, "vision", "load detection", f.Path, err)
	}
	return DecodeDetection(data)
}

func snippet(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	if text == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(text); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return text
}
