package overpass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/osmclip/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second}, logger)
}

// twelveNodes returns a response with twelve tagged nodes.
func twelveNodes() string {
	elements := make([]string, 0, 12)
	for i := 1; i <= 12; i++ {
		elements = append(elements, fmt.Sprintf(
			`{"type":"node","id":%d,"lat":24.75,"lon":46.6%d,"tags":{"amenity":"cafe"}}`, i, i))
	}
	return `{"version":0.6,"generator":"Overpass API","elements":[` + strings.Join(elements, ",") + `]}`
}

func TestClientFetch(t *testing.T) {
	var gotQuery, gotContentType, gotUserAgent string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotQuery = r.PostForm.Get("data")
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(twelveNodes()))
	})

	query := NewQueryBuilder(0).Build(testRegion(t), domain.NewCategoryFilter("amenity"))

	fc, err := client.Fetch(context.Background(), query)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if fc.Len() != 12 {
		t.Errorf("Len() = %d, want 12", fc.Len())
	}
	if gotQuery != query.String() {
		t.Errorf("posted query = %q, want %q", gotQuery, query.String())
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotUserAgent != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUserAgent, DefaultUserAgent)
	}
}

func TestClientFetchEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":0.6,"elements":[]}`))
	})

	fc, err := client.Fetch(context.Background(), "[out:json];")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !fc.IsEmpty() {
		t.Errorf("Len() = %d, want 0", fc.Len())
	}
}

func TestClientFetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantText   string
	}{
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       "<html><body>\n  internal   error\n</body></html>",
			wantStatus: http.StatusInternalServerError,
			wantText:   "<html><body> internal error </body></html>",
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       "rate_limited",
			wantStatus: http.StatusTooManyRequests,
			wantText:   "rate_limited",
		},
		{
			name:     "not json",
			status:   http.StatusOK,
			body:     "<osm/>",
			wantText: "decoding response",
		},
		{
			name:     "runtime error",
			status:   http.StatusOK,
			body:     `{"elements":[],"remark":"runtime error: Query timed out in \"query\" at line 3 after 26 seconds."}`,
			wantText: "Query timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Fetch(context.Background(), "[out:json];")
			if err == nil {
				t.Fatal("Fetch() should fail")
			}
			if !errors.Is(err, domain.ErrTransport) {
				t.Errorf("error should wrap ErrTransport, got %v", err)
			}

			var te *domain.TransportError
			if !errors.As(err, &te) {
				t.Fatalf("error should be *TransportError, got %T", err)
			}
			if te.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", te.Status, tt.wantStatus)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantText)
			}
		})
	}
}

func TestClientFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twelveNodes()))
	}))
	defer srv.Close()

	client := NewClient(Config{Endpoint: srv.URL, MaxResponseBytes: 64}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := client.Fetch(context.Background(), "[out:json];")
	if !errors.Is(err, domain.ErrTransport) {
		t.Errorf("Fetch() error = %v, want ErrTransport", err)
	}
}

func TestClientFetchCancelled(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, "[out:json];")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
	if !errors.Is(err, domain.ErrTransport) {
		t.Errorf("Fetch() error = %v, want ErrTransport", err)
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("x", excerptLen+50)
	if got := excerpt([]byte(long)); len(got) != excerptLen+3 {
		t.Errorf("len(excerpt) = %d, want %d", len(got), excerptLen+3)
	}
	if got := excerpt(nil); got != "empty response" {
		t.Errorf("excerpt(nil) = %q", got)
	}
}
