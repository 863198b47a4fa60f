package application

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jobrunner/osmclip/internal/domain"
	"github.com/jobrunner/osmclip/internal/ports/output"
)

// DefaultFilenamePrefix prefixes generated export names.
const DefaultFilenamePrefix = "osm_extract"

// ExportOptions configures the exporter.
type ExportOptions struct {
	Format         string // Default encoder format
	FilenamePrefix string // Prefix of generated names
}

// Exporter serializes feature collections and hands them to a file sink.
type Exporter struct {
	encoders map[string]output.FeatureEncoder
	format   string
	prefix   string
	sink     output.FileSink
	metrics  output.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewExporter creates an exporter. The default format must be one of the encoders.
func NewExporter(
	sink output.FileSink,
	opts ExportOptions,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	encoders ...output.FeatureEncoder,
) (*Exporter, error) {
	e := &Exporter{
		encoders: make(map[string]output.FeatureEncoder, len(encoders)),
		format:   opts.Format,
		prefix:   opts.FilenamePrefix,
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
	for _, enc := range encoders {
		e.encoders[enc.Format()] = enc
	}
	if e.prefix == "" {
		e.prefix = DefaultFilenamePrefix
	}
	if e.format == "" && len(encoders) > 0 {
		e.format = encoders[0].Format()
	}
	if _, ok := e.encoders[e.format]; !ok {
		return nil, fmt.Errorf("%q: %w", e.format, domain.ErrUnknownFormat)
	}
	return e, nil
}

// Format returns the default export format.
func (e *Exporter) Format() string {
	return e.format
}

// Formats returns the registered format names.
func (e *Exporter) Formats() []string {
	formats := make([]string, 0, len(e.encoders))
	for f := range e.encoders {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// Export writes the collection in the default format.
func (e *Exporter) Export(ctx context.Context, fc *domain.FeatureCollection, name string) (*domain.ExportArtifact, error) {
	return e.ExportAs(ctx, fc, name, e.format)
}

// ExportAs writes the collection in the given format. An empty name is
// replaced by "<prefix>_<unix millis>".
func (e *Exporter) ExportAs(ctx context.Context, fc *domain.FeatureCollection, name, format string) (*domain.ExportArtifact, error) {
	data, enc, err := e.Encode(ctx, fc, format)
	if err != nil {
		if enc != nil {
			e.metrics.IncExports(enc.Format(), false)
		}
		return nil, err
	}

	filename := e.filename(name, enc.Extension())

	location, err := e.sink.Save(ctx, output.ExportFile{
		Name:        filename,
		ContentType: enc.ContentType(),
		Data:        data,
	})
	if err != nil {
		e.metrics.IncExports(enc.Format(), false)
		return nil, &domain.StorageError{Operation: "save", Key: filename, Err: err}
	}

	e.metrics.IncExports(enc.Format(), true)
	e.metrics.ObserveExportSize(enc.Format(), len(data))
	e.logger.Info("export saved",
		"file", filename,
		"location", location,
		"format", enc.Format(),
		"features", fc.Len(),
		"bytes", len(data),
	)

	return &domain.ExportArtifact{
		Filename:    filename,
		Location:    location,
		Format:      enc.Format(),
		ContentType: enc.ContentType(),
		Size:        len(data),
		Features:    fc.Len(),
	}, nil
}

// Encode serializes the collection without saving it. An empty format selects
// the default one.
func (e *Exporter) Encode(ctx context.Context, fc *domain.FeatureCollection, format string) ([]byte, output.FeatureEncoder, error) {
	if format == "" {
		format = e.format
	}
	enc, ok := e.encoders[format]
	if !ok {
		return nil, nil, fmt.Errorf("%q: %w", format, domain.ErrUnknownFormat)
	}
	if fc == nil {
		fc = domain.NewFeatureCollection(nil)
	}

	data, err := enc.Encode(ctx, fc)
	if err != nil {
		return nil, enc, fmt.Errorf("encoding %s: %w", enc.Format(), err)
	}
	return data, enc, nil
}

// DefaultName returns a generated export name.
func (e *Exporter) DefaultName() string {
	return fmt.Sprintf("%s_%d", e.prefix, e.now().UnixMilli())
}

// filename reduces name to a bare file name carrying ext.
func (e *Exporter) filename(name, ext string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name != "" {
		name = path.Base(name)
	}
	name = strings.TrimSuffix(name, ext)
	if name == "" || name == "." || name == ".." || name == "/" {
		name = e.DefaultName()
	}
	return name + ext
}
