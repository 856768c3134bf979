package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aria/internal/media"
)

const (
	defaultTaggerURL = "http://127.0.0.1:8752"

	taggerName = "tagger"
)

// TaggerClient talks to the tag prediction sidecar.
type TaggerClient struct {
	baseURL     string
	callTimeout time.Duration
	httpClient  *http.Client
}

// TaggerOption customizes the tagger client.
type TaggerOption func(*TaggerClient)

// WithTaggerHTTPClient overrides the default HTTP client.
func WithTaggerHTTPClient(client *http.Client) TaggerOption {
	return func(c *TaggerClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTaggerTimeout overrides the per-call deadline.
func WithTaggerTimeout(timeout time.Duration) TaggerOption {
	return func(c *TaggerClient) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// NewTaggerClient constructs a client for the tag prediction sidecar at
// baseURL (the default local port when empty).
func NewTaggerClient(baseURL string, opts ...TaggerOption) *TaggerClient {
	client := &TaggerClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		callTimeout: defaultCallTimeout,
		httpClient:  &http.Client{},
	}
	if client.baseURL == "" {
		client.baseURL = defaultTaggerURL
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type predictRequest struct {
	Path string `json:"path"`
}

type predictResponse struct {
	Tags  []media.TagScore `json:"tags"`
	Error string           `json:"error,omitempty"`
}

// PredictTags runs the tag model over the whole file at path and returns the
// raw tag/confidence list. Ranking and normalization are the caller's job.
func (c *TaggerClient) PredictTags(ctx context.Context, path string) ([]media.TagScore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, classify(taggerName, "predict", errors.New("path required"))
	}

	var resp predictResponse
	if err := postJSON(ctx, c.httpClient, c.callTimeout, c.baseURL, "/v1/tags", predictRequest{Path: path}, &resp); err != nil {
		return nil, classify(taggerName, "predict", err)
	}
	if resp.Error != "" {
		return nil, classify(taggerName, "predict", fmt.Errorf("%w: %s", ErrBadResponse, resp.Error))
	}
	if len(resp.Tags) == 0 {
		return nil, classify(taggerName, "predict", fmt.Errorf("%w: empty tag list", ErrBadResponse))
	}
	return resp.Tags, nil
}
