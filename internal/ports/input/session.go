package input

import (
	"context"

	"github.com/jobrunner/osmclip/internal/domain"
)

// RegionInput defines the primary port fed by an external drawing tool.
type RegionInput interface {
	// StartDrawing discards the active region and enters drawing mode.
	StartDrawing()

	// FinishDrawing sets the active region from a completed shape.
	FinishDrawing(points []domain.Coordinate) error

	// EditActiveRegion replaces the active region's vertices.
	EditActiveRegion(points []domain.Coordinate) error

	// Clear removes the active region.
	Clear()
}

// ExtractionController defines the primary port driving extractions.
type ExtractionController interface {
	// RequestExtraction fetches features for the active region, or exports the
	// held result when one is ready.
	RequestExtraction(ctx context.Context) (domain.Outcome, error)

	// RequestExport exports the held result under the given name.
	RequestExport(ctx context.Context, name string) (*domain.ExportArtifact, error)
}
