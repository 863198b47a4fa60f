package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jobrunner/osmclip/internal/ports/output"
)

func TestHTTPSinkSave(t *testing.T) {
	var (
		gotMethod, gotPath, gotType, gotBody string
		gotUser, gotPass                     string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotUser, gotPass, _ = r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := NewHTTPSink(HTTPConfig{BaseURL: srv.URL + "/uploads/", Username: "u", Password: "p"})

	location, err := sink.Save(context.Background(), output.ExportFile{
		Name:        "my area.geojson",
		ContentType: "application/geo+json",
		Data:        []byte("{}"),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/uploads/my area.geojson" {
		t.Errorf("path = %q", gotPath)
	}
	if gotType != "application/geo+json" || gotBody != "{}" {
		t.Errorf("content-type = %q body = %q", gotType, gotBody)
	}
	if gotUser != "u" || gotPass != "p" {
		t.Errorf("basic auth = %q:%q", gotUser, gotPass)
	}
	if location != srv.URL+"/uploads/my%20area.geojson" {
		t.Errorf("location = %q", location)
	}
}

func TestHTTPSinkSaveErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPSink(HTTPConfig{BaseURL: srv.URL}).Save(context.Background(), output.ExportFile{Name: "x.geojson"})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("Save() error = %v, want status 403", err)
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"", "a.geojson", "a.geojson"},
		{"exports", "a.geojson", "exports/a.geojson"},
		{"/exports/", "a.geojson", "exports/a.geojson"},
	}
	for _, tt := range tests {
		if got := joinKey(tt.prefix, tt.name); got != tt.want {
			t.Errorf("joinKey(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}
