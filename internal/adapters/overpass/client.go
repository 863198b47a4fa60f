package overpass

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jobrunner/osmclip/internal/domain"
)

// Client defaults.
const (
	DefaultEndpoint         = "https://overpass-api.de/api/interpreter"
	DefaultTimeout          = 90 * time.Second
	DefaultUserAgent        = "osmclip/dev"
	DefaultMaxResponseBytes = 256 << 20
)

// excerptLen bounds the response text carried by a TransportError.
const excerptLen = 200

// Config holds Overpass client configuration.
type Config struct {
	Endpoint         string
	Timeout          time.Duration // HTTP round trip, including body download
	UserAgent        string
	MaxResponseBytes int64
}

// Client executes Overpass QL queries. It implements output.FeatureSource.
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	maxBytes   int64
	logger     *slog.Logger
}

// NewClient creates a new Overpass client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxResponseBytes,
		logger:    logger,
	}
}

// Endpoint returns the interpreter URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch posts the query to the interpreter and normalizes the response.
// The call is never retried.
func (c *Client) Fetch(ctx context.Context, query domain.ExtractionQuery) (*domain.FeatureCollection, error) {
	start := time.Now()

	form := url.Values{}
	form.Set("data", query.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &domain.TransportError{Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Message: "calling overpass", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &domain.TransportError{Status: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.TransportError{Status: resp.StatusCode, Message: excerpt(body)}
	}

	if int64(len(body)) > c.maxBytes {
		return nil, &domain.TransportError{
			Message: fmt.Sprintf("response exceeds %d bytes", c.maxBytes),
		}
	}

	result, err := parseResponse(body)
	if err != nil {
		return nil, &domain.TransportError{Message: "decoding response", Err: err}
	}

	if isRuntimeError(result.Remark) {
		return nil, &domain.TransportError{Message: result.Remark}
	}

	fc, err := normalize(result.Elements)
	if err != nil {
		return nil, &domain.TransportError{Message: "normalizing response", Err: err}
	}

	c.logger.Debug("overpass query completed",
		"elements", len(result.Elements),
		"dropped", result.Dropped,
		"features", fc.Len(),
		"duration", time.Since(start),
	)

	return fc, nil
}

// excerpt flattens a response body into a short single-line message.
func excerpt(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > excerptLen {
		s = s[:excerptLen] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
