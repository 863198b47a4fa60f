// Package storage provides the export file sinks.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jobrunner/osmclip/internal/ports/output"
)

// LocalSink implements output.FileSink for a local directory.
type LocalSink struct {
	basePath string
}

// NewLocalSink creates a new local file sink.
func NewLocalSink(basePath string) *LocalSink {
	return &LocalSink{basePath: basePath}
}

// Save writes the file into the base directory and returns its path. The file
// is written under a temporary name and renamed into place.
func (s *LocalSink) Save(ctx context.Context, file output.ExportFile) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := filepath.Base(file.Name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", file.Name)
	}

	if err := os.MkdirAll(s.basePath, 0750); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.basePath, "."+name+".*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(file.Data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	dest := s.FullPath(name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	if err := os.Chmod(dest, 0644); err != nil { //#nosec G302 -- exports are meant to be read
		return "", err
	}

	return dest, nil
}

// FullPath returns the full path for a file name.
func (s *LocalSink) FullPath(name string) string {
	return filepath.Join(s.basePath, name)
}
