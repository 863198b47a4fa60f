package domain

import "fmt"

// SessionState is the lifecycle state of an extraction session.
type SessionState int

// Session states.
const (
	StateIdle SessionState = iota
	StateAwaitingRegion
	StateLoading
	StateReady
	StateFailed
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRegion:
		return "awaiting_region"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionState) MarshalText() ([]byte, error) {
	if s < StateIdle || s > StateFailed {
		return nil, fmt.Errorf("invalid session state %d", int(s))
	}
	return []byte(s.String()), nil
}

// Outcome summarizes what an extraction request did.
type Outcome struct {
	State    SessionState    // State after the request
	Features int             // Number of features held
	Empty    bool            // Extraction succeeded without features
	Export   *ExportArtifact // Set when the held result was exported instead of fetched
}

// Exported returns true if the request exported a cached result.
func (o Outcome) Exported() bool {
	return o.Export != nil
}
