// Package barcodeapi is the HTTP client for the remote barcode rendering
// service. It owns the wire framing; callers only see the three outcome
// categories: an artifact, a rate-limit signal, or a transport failure.
package barcodeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bargen/internal/validate"
)

// ErrRateLimited signals quota exhaustion on the remote service. Match it
// with errors.Is; the concrete *RateLimitError carries the retry window.
var ErrRateLimited = errors.New("barcodeapi: rate limited")

// RateLimitError is returned when the service answers with a distinguished
// quota-exhaustion status rather than a generic error.
type RateLimitError struct {
	RetryAfter time.Duration // zero when the service gave no window
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("barcodeapi: rate limited, retry after %s", e.RetryAfter)
	}
	return "barcodeapi: rate limited"
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Artifact is the normalized result of one generation call. URL is the
// retrievable artifact reference; Data holds the downloaded image bytes.
type Artifact struct {
	URL  string
	Data []byte
	MIME string
}

// Options configures the client.
type Options struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *zerolog.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the barcode rendering service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

type generateRequest struct {
	Symbology string          `json:"symbology"`
	Data      string          `json:"data"`
	Format    string          `json:"format"`
	Options   generateOptions `json:"options"`
}

type generateOptions struct {
	ShowText bool `json:"show_text"`
	Rotation int  `json:"rotation,omitempty"`
}

type generateResponse struct {
	ImageURL  string `json:"image_url"`
	RequestID string `json:"request_id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://barcodeapi.org"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Generate invokes the service once and returns a single artifact. There is
// no retry here; a failed or rate-limited call resolves to its error and the
// caller decides whether to resubmit.
func (c *Client) Generate(ctx context.Context, req validate.Request) (*Artifact, error) {
	payload := generateRequest{
		Symbology: string(req.Symbology),
		Data:      req.Data,
		Format:    string(req.Format),
		Options: generateOptions{
			ShowText: req.Options.ShowText,
			Rotation: req.Options.Rotation,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("barcodeapi: encode request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("barcodeapi: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("barcodeapi: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("barcodeapi: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: retryAfter(resp.Header)}
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, fmt.Errorf("barcodeapi: %s (%s)", detail.Message, detail.Code)
		}
		return nil, fmt.Errorf("barcodeapi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("barcodeapi: decode response: %w", err)
	}
	if strings.TrimSpace(decoded.ImageURL) == "" {
		return nil, errors.New("barcodeapi: empty image url")
	}

	data, mime, err := c.download(ctx, decoded.ImageURL)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("request_id", requestID).
		Str("remote_request_id", decoded.RequestID).
		Str("symbology", string(req.Symbology)).
		Str("url", decoded.ImageURL).
		Msg("barcodeapi: generated artifact")
	return &Artifact{URL: decoded.ImageURL, Data: data, MIME: mime}, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("barcodeapi: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("barcodeapi: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("barcodeapi: download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", &RateLimitError{RetryAfter: retryAfter(resp.Header)}
	}
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("barcodeapi: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("barcodeapi: read artifact: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return data, mime, nil
}

// retryAfter parses the Retry-After header, accepting both delta-seconds and
// HTTP-date forms.
func retryAfter(h http.Header) time.Duration {
	value := strings.TrimSpace(h.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
