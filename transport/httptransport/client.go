package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	syncErrors "github.com/c0deZ3R0/go-merkle-sync/errors"
	"github.com/c0deZ3R0/go-merkle-sync/logging"
	"github.com/c0deZ3R0/go-merkle-sync/synckit"
)

// SyncPath is the route of the sync endpoint, relative to the base URL.
const SyncPath = "/sync"

// Client implements synckit.Transport by POSTing requests to <base>/sync.
type Client struct {
	baseURL string
	http    *http.Client
	options *ClientOptions
	logger  *logging.Logger
}

var _ synckit.Transport = (*Client)(nil)

// newHTTPClient builds an http.Client that leaves response decompression to
// the transport so both size limits can be enforced.
func newHTTPClient(opts *ClientOptions) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DisableCompression = true
	return &http.Client{Transport: tr, Timeout: opts.RequestTimeout}
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		options: DefaultClientOptions(),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := ValidateClientOptions(c.options); err != nil {
		return nil, fmt.Errorf("invalid client options: %w", err)
	}
	if c.options.GzipMinBytes == 0 {
		c.options.GzipMinBytes = 1024
	}
	if c.options.MaxResponseSize == 0 {
		c.options.MaxResponseSize = 10 * 1024 * 1024
	}
	if c.options.MaxDecompressedResponseSize == 0 {
		c.options.MaxDecompressedResponseSize = 20 * 1024 * 1024
	}
	if c.http == nil {
		c.http = newHTTPClient(c.options)
	}
	c.logger = c.logger.WithComponent("transport/http")
	return c, nil
}

// BaseURL returns the base URL for the client
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request sends req and decodes the peer's SyncResponse.
//
// Bodies larger than GzipMinBytes are gzipped when compression is enabled.
// Network failures, non-2xx statuses and undecodable bodies are returned as
// errors; a decoded response with an error status is not.
func (c *Client) Request(ctx context.Context, req synckit.SyncRequest) (synckit.SyncResponse, error) {
	url := c.baseURL + SyncPath

	payload, err := json.Marshal(req)
	if err != nil {
		return synckit.SyncResponse{}, syncErrors.NewWithComponent(syncErrors.OpTransport, "transport", fmt.Errorf("failed to marshal request: %w", err))
	}

	body := payload
	compressed := false
	if c.options.CompressionEnabled && len(payload) > c.options.GzipMinBytes {
		body, err = gzipBytes(payload)
		if err != nil {
			return synckit.SyncResponse{}, syncErrors.NewWithComponent(syncErrors.OpTransport, "transport", fmt.Errorf("failed to compress request: %w", err))
		}
		compressed = true
		c.logger.Debug("compressed sync request",
			slog.Int("original_size", len(payload)),
			slog.Int("compressed_size", len(body)))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return synckit.SyncResponse{}, syncErrors.NewWithComponent(syncErrors.OpTransport, "transport", fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if compressed {
		httpReq.Header.Set("Content-Encoding", "gzip")
	}
	if c.options.CompressionEnabled {
		httpReq.Header.Set("Accept-Encoding", "gzip")
	}

	c.logger.Debug("sending sync request",
		slog.String("url", url),
		slog.String("group_id", req.GroupID),
		slog.Int("message_count", len(req.Messages)))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("sync request failed", slog.String("url", url), slog.String("error", err.Error()))
		return synckit.SyncResponse{}, syncErrors.NewNetworkError(syncErrors.OpTransport, fmt.Errorf("network error: %w", err))
	}
	defer resp.Body.Close()

	reader, cleanup, err := safeResponseReader(resp, c.options)
	if err != nil {
		return synckit.SyncResponse{}, syncErrors.NewWithComponent(syncErrors.OpTransport, "transport", err)
	}
	defer cleanup()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readErrorDetail(reader)
		c.logger.Warn("sync request returned error status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("detail", detail),
			slog.String("url", url))
		statusErr := fmt.Errorf("server error (status %d): %s", resp.StatusCode, detail)
		if retryableStatus(resp.StatusCode) {
			e := syncErrors.NewRetryable(syncErrors.OpTransport, statusErr)
			e.Component = "transport"
			return synckit.SyncResponse{}, e
		}
		return synckit.SyncResponse{}, syncErrors.NewWithComponent(syncErrors.OpTransport, "transport", statusErr)
	}

	var out synckit.SyncResponse
	if err := json.NewDecoder(reader).Decode(&out); err != nil {
		if errors.Is(err, errResponseDecompressedTooLarge) {
			return synckit.SyncResponse{}, syncErrors.NewWithComponent(syncErrors.OpTransport, "transport", err)
		}
		return synckit.SyncResponse{}, syncErrors.NewWithComponent(syncErrors.OpTransport, "transport", fmt.Errorf("failed to decode response: %w", err))
	}

	c.logger.Debug("received sync response",
		slog.String("status", out.Status),
		slog.Bool("has_data", out.Data != nil))
	return out, nil
}

// retryableStatus reports whether a later attempt may succeed.
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// readErrorDetail extracts a reason from an error body, falling back to the
// raw text.
func readErrorDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Reason != "" {
			return body.Reason
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
