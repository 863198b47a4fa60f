package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/osmclip/internal/ports/output"
)

func TestNewLocalSink(t *testing.T) {
	sink := NewLocalSink("/tmp/test")

	if sink == nil {
		t.Fatal("NewLocalSink() returned nil")
	}

	if sink.basePath != "/tmp/test" {
		t.Errorf("basePath = %q, want %q", sink.basePath, "/tmp/test")
	}
}

func TestLocalSinkSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	sink := NewLocalSink(dir)

	location, err := sink.Save(context.Background(), output.ExportFile{
		Name:        "area.geojson",
		ContentType: "application/geo+json",
		Data:        []byte(`{"type":"FeatureCollection","features":[]}`),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if location != filepath.Join(dir, "area.geojson") {
		t.Errorf("location = %q", location)
	}

	data, err := os.ReadFile(location)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != `{"type":"FeatureCollection","features":[]}` {
		t.Errorf("content = %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the export", len(entries))
	}
}

func TestLocalSinkSaveOverwrites(t *testing.T) {
	sink := NewLocalSink(t.TempDir())
	ctx := context.Background()

	for _, content := range []string{"first", "second"} {
		if _, err := sink.Save(ctx, output.ExportFile{Name: "x.geojson", Data: []byte(content)}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	data, _ := os.ReadFile(sink.FullPath("x.geojson"))
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}
}

func TestLocalSinkSaveStaysInBaseDir(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalSink(dir)

	location, err := sink.Save(context.Background(), output.ExportFile{Name: "../escape.geojson", Data: []byte("x")})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Dir(location) != dir {
		t.Errorf("location = %q escapes %q", location, dir)
	}

	if _, err := sink.Save(context.Background(), output.ExportFile{Name: "..", Data: []byte("x")}); err == nil {
		t.Error("Save() should reject a bare parent reference")
	}
}

func TestLocalSinkSaveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLocalSink(t.TempDir()).Save(ctx, output.ExportFile{Name: "x", Data: nil}); err == nil {
		t.Error("Save() should fail on a cancelled context")
	}
}

func TestLocalSinkFullPath(t *testing.T) {
	sink := NewLocalSink("/data/exports")

	if got := sink.FullPath("a.gpkg"); got != "/data/exports/a.gpkg" {
		t.Errorf("FullPath() = %q", got)
	}
}
