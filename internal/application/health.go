package application

import (
	"context"

	"github.com/jobrunner/osmclip/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	sessions   *SessionManager
	components map[string]string
}

// NewHealthService creates a new health service. Components are reported
// verbatim in the health details.
func NewHealthService(sessions *SessionManager, components map[string]string) *HealthService {
	return &HealthService{
		sessions:   sessions,
		components: components,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(ctx context.Context) bool {
	return true // Basic health check
}

// IsReady returns true while new sessions can be accepted.
func (s *HealthService) IsReady(ctx context.Context) bool {
	limit := s.sessions.MaxSessions()
	return limit == 0 || s.sessions.Count() < limit
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := make(map[string]string, len(s.components)+1)
	for k, v := range s.components {
		components[k] = v
	}
	if s.IsReady(ctx) {
		components["sessions"] = "ok"
	} else {
		components["sessions"] = "full"
	}

	return input.HealthDetails{
		Healthy:         s.IsHealthy(ctx),
		Ready:           s.IsReady(ctx),
		SessionsActive:  s.sessions.Count(),
		SessionsLoading: s.sessions.CountLoading(),
		Components:      components,
	}
}
