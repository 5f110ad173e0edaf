// Package imagestore stores meme images in an external object store and
// resolves their public URLs.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Uploader stores an object and returns its publicly reachable URL.
type Uploader interface {
	Upload(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

// Client stores objects over the bucket REST API with bearer auth.
type Client struct {
	baseURL    string
	publicURL  string
	bucket     string
	authToken  string
	httpClient *http.Client
}

var _ Uploader = (*Client)(nil)

// ClientConfig configures the object store client.
type ClientConfig struct {
	BaseURL   string
	PublicURL string
	Bucket    string
	AuthToken string
	Timeout   time.Duration
}

// NewClient creates an object store client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = cfg.BaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		publicURL:  strings.TrimRight(publicURL, "/"),
		bucket:     cfg.Bucket,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload PUTs the object and returns its public URL.
func (c *Client) Upload(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	url := fmt.Sprintf("%s/object/%s/%s", c.baseURL, c.bucket, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("object store returned status %d", resp.StatusCode)
	}

	return c.PublicURL(key), nil
}

// PublicURL returns the URL the stored object is served from.
func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.publicURL, c.bucket, key)
}
