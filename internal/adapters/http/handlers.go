package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jobrunner/osmclip/internal/adapters/geojson"
	"github.com/jobrunner/osmclip/internal/application"
	"github.com/jobrunner/osmclip/internal/domain"
)

// defaultFeatureFormat is served by the features endpoint when no format is requested.
const defaultFeatureFormat = "geojson"

// PointJSON is a vertex in request and response bodies.
type PointJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RegionRequest is the body of the region endpoints. Either points or a
// GeoJSON polygon may be given.
type RegionRequest struct {
	Points  []PointJSON     `json:"points"`
	GeoJSON json.RawMessage `json:"geojson,omitempty"`
}

// FiltersRequest is the body of the filters endpoint.
type FiltersRequest struct {
	Categories []string              `json:"categories"`
	Geometry   *domain.GeometryKinds `json:"geometry,omitempty"`
}

// ExportRequest is the body of the export endpoint.
type ExportRequest struct {
	Name   string `json:"name"`
	Format string `json:"format"`
}

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":           boolToStatus(details.Healthy),
		"ready":            details.Ready,
		"sessions_active":  details.SessionsActive,
		"sessions_loading": details.SessionsLoading,
		"components":       details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleCategories returns the category catalogue.
func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	categories := s.categories
	if categories == nil {
		categories = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// handleFormats returns the registered export formats.
func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"formats": s.exporter.Formats(),
		"default": s.exporter.Format(),
	})
}

// handleCreateSession creates a new idle session.
func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	session, err := s.sessions.Create()
	if err != nil {
		s.handleSessionError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/sessions/"+session.ID())
	s.writeJSON(w, http.StatusCreated, formatSession(session.Snapshot()))
}

// handleListSessions returns all live sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	snapshots := s.sessions.List()

	response := make([]map[string]interface{}, len(snapshots))
	for i := range snapshots {
		response[i] = formatSession(snapshots[i])
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": response,
		"count":    len(snapshots),
	})
}

// handleGetSession returns a session snapshot.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, formatSession(session.Snapshot()))
}

// handleDeleteSession closes a session and cancels its in-flight extraction.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(mux.Vars(r)["sessionId"]); err != nil {
		s.handleSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStartDrawing discards the active region and enters drawing mode.
func (s *Server) handleStartDrawing(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	session.StartDrawing()
	s.writeJSON(w, http.StatusOK, formatSession(session.Snapshot()))
}

// handleFinishDrawing sets the active region from a completed shape.
func (s *Server) handleFinishDrawing(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	points, err := s.parseRegion(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := session.FinishDrawing(points); err != nil {
		s.handleSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, formatSession(session.Snapshot()))
}

// handleEditRegion replaces the vertices of the active region.
func (s *Server) handleEditRegion(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	points, err := s.parseRegion(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := session.EditActiveRegion(points); err != nil {
		s.handleSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, formatSession(session.Snapshot()))
}

// handleClearRegion removes the active region.
func (s *Server) handleClearRegion(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	session.Clear()
	s.writeJSON(w, http.StatusOK, formatSession(session.Snapshot()))
}

// handleSetFilters replaces the category filter and geometry kinds used by
// the next extraction.
func (s *Server) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req FiltersRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	kinds := session.Snapshot().Kinds
	if req.Geometry != nil {
		kinds = *req.Geometry
	}
	if !kinds.Points && !kinds.Lines && !kinds.Polygons {
		s.writeError(w, http.StatusBadRequest, "at least one geometry kind must be enabled")
		return
	}

	session.SetFilters(domain.NewCategoryFilter(req.Categories...), kinds)
	s.writeJSON(w, http.StatusOK, formatSession(session.Snapshot()))
}

// handleExtract runs an extraction for the active region, or exports the
// held result when the session is ready.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	outcome, err := session.RequestExtraction(r.Context())
	if err != nil {
		s.handleSessionError(w, err)
		return
	}

	response := map[string]interface{}{
		"state":    outcome.State,
		"features": outcome.Features,
		"empty":    outcome.Empty,
		"session":  formatSession(session.Snapshot()),
	}
	if outcome.Exported() {
		response["export"] = formatArtifact(outcome.Export)
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleExport exports the held result through the configured sink.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req ExportRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	artifact, err := session.RequestExportAs(r.Context(), req.Name, req.Format)
	if err != nil {
		s.handleSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, formatArtifact(artifact))
}

// handleFeatures returns the held result encoded in the requested format.
// With download=1 the body is served as an attachment.
func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	result, err := session.Result()
	if err != nil {
		s.handleSessionError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = defaultFeatureFormat
	}

	data, enc, err := s.exporter.Encode(r.Context(), result, format)
	if err != nil {
		s.handleSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", enc.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		filename := s.exporter.DefaultName() + enc.Extension()
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleReap removes idle sessions immediately.
func (s *Server) handleReap(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.reaper.RunOnce())
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// session resolves the session named in the path and writes 404 if it is gone.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*application.Session, bool) {
	session, err := s.sessions.Get(mux.Vars(r)["sessionId"])
	if err != nil {
		s.handleSessionError(w, err)
		return nil, false
	}
	return session, true
}

// parseRegion reads region vertices from a JSON or GeoJSON body.
func (s *Server) parseRegion(w http.ResponseWriter, r *http.Request) ([]domain.Coordinate, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/geo+json" {
		data, err := io.ReadAll(s.limitBody(w, r))
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		return geojson.DecodeRegion(data)
	}

	var req RegionRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		return nil, err
	}
	if len(req.GeoJSON) > 0 {
		return geojson.DecodeRegion(req.GeoJSON)
	}

	points := make([]domain.Coordinate, len(req.Points))
	for i, p := range req.Points {
		points[i] = domain.NewCoordinate(p.Lat, p.Lon)
	}
	return points, nil
}

// decodeBody decodes a JSON body. An empty body leaves v untouched.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := json.NewDecoder(s.limitBody(w, r)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) io.Reader {
	if s.config.MaxBodyBytes > 0 {
		return http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	return r.Body
}

// formatSession formats a session snapshot for JSON output.
func formatSession(snap application.SessionSnapshot) map[string]interface{} {
	filters := snap.Filters
	if filters == nil {
		filters = []string{}
	}

	out := map[string]interface{}{
		"id":          snap.ID,
		"state":       snap.State,
		"drawing":     snap.Drawing,
		"region":      nil,
		"filters":     filters,
		"geometry":    snap.Kinds,
		"features":    snap.Features,
		"empty":       snap.Empty,
		"created_at":  snap.CreatedAt,
		"last_active": snap.LastActive,
	}
	if snap.Region != nil {
		points := make([]PointJSON, len(snap.Region.Points))
		for i, p := range snap.Region.Points {
			points[i] = PointJSON{Lat: p.Lat, Lon: p.Lon}
		}
		b := snap.Region.Bound()
		out["region"] = map[string]interface{}{
			"id":     snap.Region.ID,
			"points": points,
			"bbox":   []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
		}
	}
	if snap.Counts != nil {
		out["counts"] = snap.Counts
	}
	if snap.Error != "" {
		out["error"] = snap.Error
	}
	return out
}

// formatArtifact formats an export artifact for JSON output.
func formatArtifact(a *domain.ExportArtifact) map[string]interface{} {
	return map[string]interface{}{
		"filename":     a.Filename,
		"location":     a.Location,
		"format":       a.Format,
		"content_type": a.ContentType,
		"size":         a.Size,
		"features":     a.Features,
	}
}

// handleSessionError maps domain errors to HTTP status codes.
func (s *Server) handleSessionError(w http.ResponseWriter, err error) {
	var storageErr *domain.StorageError

	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrTooManySessions):
		w.Header().Set("Retry-After", "60")
		s.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrTransport):
		s.logger.Warn("extraction failed", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &storageErr):
		s.logger.Error("export failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Export failed")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
