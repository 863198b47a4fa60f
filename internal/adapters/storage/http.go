package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jobrunner/osmclip/internal/ports/output"
)

// HTTPSink implements output.FileSink by PUTting files to a web server.
type HTTPSink struct {
	client   *http.Client
	baseURL  string
	username string
	password string
}

// HTTPConfig holds HTTP sink configuration.
type HTTPConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Username string
	Password string
}

// NewHTTPSink creates a new HTTP sink.
func NewHTTPSink(cfg HTTPConfig) *HTTPSink {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &HTTPSink{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
	}
}

// Save uploads the file with a PUT request and returns its URL.
func (s *HTTPSink) Save(ctx context.Context, file output.ExportFile) (string, error) {
	fileURL := s.baseURL + "/" + url.PathEscape(file.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fileURL, bytes.NewReader(file.Data))
	if err != nil {
		return "", err
	}
	req.ContentLength = int64(len(file.Data))
	if file.ContentType != "" {
		req.Header.Set("Content-Type", file.ContentType)
	}

	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", file.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload returned status %d for %s", resp.StatusCode, file.Name)
	}

	return fileURL, nil
}

// joinKey prefixes an object key.
func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
