package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aria/internal/media"
	"aria/internal/segmentation"
)

const (
	defaultExtractorURL = "http://127.0.0.1:8751"
	defaultCallTimeout  = 120 * time.Second

	extractorName = "extractor"
)

// ExtractorClient talks to the feature extraction sidecar.
type ExtractorClient struct {
	baseURL     string
	callTimeout time.Duration
	httpClient  *http.Client
}

// ExtractorOption customizes the extractor client.
type ExtractorOption func(*ExtractorClient)

// WithExtractorHTTPClient overrides the default HTTP client.
func WithExtractorHTTPClient(client *http.Client) ExtractorOption {
	return func(c *ExtractorClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithExtractorTimeout overrides the per-call deadline.
func WithExtractorTimeout(timeout time.Duration) ExtractorOption {
	return func(c *ExtractorClient) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// NewExtractorClient constructs a client for the extraction sidecar at
// baseURL (the default local port when empty).
func NewExtractorClient(baseURL string, opts ...ExtractorOption) *ExtractorClient {
	client := &ExtractorClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		callTimeout: defaultCallTimeout,
		httpClient:  &http.Client{},
	}
	if client.baseURL == "" {
		client.baseURL = defaultExtractorURL
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type extractRequest struct {
	Path          string  `json:"path"`
	OffsetSeconds float64 `json:"offset_seconds"`
	LengthSeconds float64 `json:"length_seconds,omitempty"`
}

type extractResponse struct {
	Features *media.FeatureSet `json:"features"`
	Error    string            `json:"error,omitempty"`
}

// ExtractSegment runs the extraction engine over one segment of the file at
// path. A zero-length segment means "analyze to end of file".
func (c *ExtractorClient) ExtractSegment(ctx context.Context, path string, seg segmentation.Segment) (media.FeatureSet, error) {
	var empty media.FeatureSet
	path = strings.TrimSpace(path)
	if path == "" {
		return empty, classify(extractorName, "extract", errors.New("path required"))
	}

	var resp extractResponse
	err := c.post(ctx, "/v1/extract", extractRequest{
		Path:          path,
		OffsetSeconds: seg.Offset,
		LengthSeconds: seg.Length,
	}, &resp)
	if err != nil {
		return empty, classify(extractorName, "extract", err)
	}
	if resp.Error != "" {
		return empty, classify(extractorName, "extract", fmt.Errorf("%w: %s", ErrBadResponse, resp.Error))
	}
	if resp.Features == nil {
		return empty, classify(extractorName, "extract", fmt.Errorf("%w: missing features", ErrBadResponse))
	}
	return *resp.Features, nil
}

type probeRequest struct {
	Path string `json:"path"`
}

type probeResponse struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error,omitempty"`
}

// ProbeDuration asks the sidecar for the decoded duration of the file at path.
func (c *ExtractorClient) ProbeDuration(ctx context.Context, path string) (float64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, classify(extractorName, "probe", errors.New("path required"))
	}

	var resp probeResponse
	if err := c.post(ctx, "/v1/probe", probeRequest{Path: path}, &resp); err != nil {
		return 0, classify(extractorName, "probe", err)
	}
	if resp.Error != "" {
		return 0, classify(extractorName, "probe", fmt.Errorf("%w: %s", ErrBadResponse, resp.Error))
	}
	if resp.DurationSeconds <= 0 {
		return 0, classify(extractorName, "probe", fmt.Errorf("%w: non-positive duration", ErrBadResponse))
	}
	return resp.DurationSeconds, nil
}

func (c *ExtractorClient) post(ctx context.Context, endpoint string, payload, out any) error {
	return postJSON(ctx, c.httpClient, c.callTimeout, c.baseURL, endpoint, payload, out)
}

// postJSON performs one JSON round trip with the per-call deadline applied.
func postJSON(ctx context.Context, client *http.Client, timeout time.Duration, base, endpoint string, payload, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	target, err := url.JoinPath(base, endpoint)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: http %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrBadResponse, err)
	}
	return nil
}
