package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncExtractions increments the extraction counter for an outcome
	// (success, empty, error, discarded, rejected).
	IncExtractions(outcome string)

	// ObserveExtractionDuration records the remote fetch duration.
	ObserveExtractionDuration(duration time.Duration)

	// ObserveFeatureCount records the number of features of a successful extraction.
	ObserveFeatureCount(count int)

	// IncRegionEvents increments the region event counter.
	IncRegionEvents(kind string)

	// SetActiveSessions sets the number of live sessions.
	SetActiveSessions(count int)

	// IncExports increments the export counter.
	IncExports(format string, success bool)

	// ObserveExportSize records the size of an exported file.
	ObserveExportSize(format string, bytes int)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncExtractions implements MetricsCollector.
func (n *NoOpMetrics) IncExtractions(_ string) {}

// ObserveExtractionDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveExtractionDuration(_ time.Duration) {}

// ObserveFeatureCount implements MetricsCollector.
func (n *NoOpMetrics) ObserveFeatureCount(_ int) {}

// IncRegionEvents implements MetricsCollector.
func (n *NoOpMetrics) IncRegionEvents(_ string) {}

// SetActiveSessions implements MetricsCollector.
func (n *NoOpMetrics) SetActiveSessions(_ int) {}

// IncExports implements MetricsCollector.
func (n *NoOpMetrics) IncExports(_ string, _ bool) {}

// ObserveExportSize implements MetricsCollector.
func (n *NoOpMetrics) ObserveExportSize(_ string, _ int) {}
