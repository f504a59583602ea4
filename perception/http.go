package perception

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/basar/internal/types"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 4 << 20
)

// HTTPConfig holds configuration for the HTTP client.
type HTTPConfig struct {
	URL       string        // Single endpoint, mode passed as ?mode=detect|ocr
	DetectURL string        // Optional, overrides URL for detection
	ReadURL   string        // Optional, overrides URL for OCR
	Timeout   time.Duration // Optional, defaults to 15s
	APIKey    string        // Optional bearer token
}

// HTTP talks to the remote detection/OCR service.
type HTTP struct {
	cfg  HTTPConfig
	http *http.Client
}

// NewHTTP creates a client for the remote perception service.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" && (cfg.DetectURL == "" || cfg.ReadURL == "") {
		return nil, errors.New("perception URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &HTTP{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (h *HTTP) Name() string { return "http" }

// Endpoint returns the URL a frame for mode is posted to.
func (h *HTTP) Endpoint(mode types.Mode) (string, error) {
	base := h.cfg.URL
	switch mode {
	case types.ModeDetecting:
		if h.cfg.DetectURL != "" {
			base = h.cfg.DetectURL
		}
	case types.ModeReading:
		if h.cfg.ReadURL != "" {
			base = h.cfg.ReadURL
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse perception URL: %w", err)
	}
	q := u.Query()
	q.Set("mode", mode.WireName())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Submit posts the frame as multipart field "file" and decodes the reply.
func (h *HTTP) Submit(ctx context.Context, mode types.Mode, image []byte) (types.Result, error) {
	endpoint, err := h.Endpoint(mode)
	if err != nil {
		return types.Result{}, err
	}

	body, contentType, err := encodeFrame(image)
	if err != nil {
		return types.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return types.Result{}, fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	start := time.Now()
	resp, err := h.http.Do(req)
	if err != nil {
		return types.Result{}, &NetworkError{Op: "send request", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return types.Result{}, &NetworkError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.Result{}, &ServiceError{
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}

	result, err := decodeResult(mode, data)
	if err != nil {
		return types.Result{}, &ServiceError{Status: resp.StatusCode, Err: err}
	}
	result.RequestID = requestID
	result.Latency = time.Since(start)
	return result, nil
}

// encodeFrame builds the multipart body with the frame as frame.jpg.
func encodeFrame(image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write frame data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
