// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"

	"github.com/jobrunner/osmclip/internal/domain"
)

// QueryBuilder defines the secondary port translating a region and category
// filter into a query for the remote spatial data service.
type QueryBuilder interface {
	// Build returns the query selecting every matching element inside the region.
	// It must be deterministic and free of I/O.
	Build(region domain.Region, filters domain.CategoryFilter) domain.ExtractionQuery
}

// FeatureSource defines the secondary port executing a query remotely.
type FeatureSource interface {
	// Fetch executes the query and returns the normalized features.
	// Remote failures are reported as *domain.TransportError.
	Fetch(ctx context.Context, query domain.ExtractionQuery) (*domain.FeatureCollection, error)
}
