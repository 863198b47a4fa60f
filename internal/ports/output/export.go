package output

import (
	"context"

	"github.com/jobrunner/osmclip/internal/domain"
)

// FeatureEncoder serializes a feature collection into a file format.
type FeatureEncoder interface {
	// Encode serializes the collection.
	Encode(ctx context.Context, fc *domain.FeatureCollection) ([]byte, error)

	// Format returns the format name (e.g. "geojson").
	Format() string

	// Extension returns the file extension including the leading dot.
	Extension() string

	// ContentType returns the MIME type of the encoded data.
	ContentType() string
}

// FileSink defines the secondary port handing export files to the host.
type FileSink interface {
	// Save stores data under the given file name and returns its location.
	Save(ctx context.Context, file ExportFile) (string, error)
}

// ExportFile is a file handed to a sink.
type ExportFile struct {
	Name        string // File name including extension
	ContentType string // MIME type
	Data        []byte // File content
}

// SinkType represents the type of export sink.
type SinkType string

const (
	SinkTypeS3    SinkType = "s3"
	SinkTypeAzure SinkType = "azure"
	SinkTypeHTTP  SinkType = "http"
	SinkTypeLocal SinkType = "local"
)
