package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// handleHealthz returns service health and activity counters.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.stats != nil {
		snapshot := s.stats.Snapshot()
		resp.Delivered = snapshot.Delivered
		resp.Rejected = snapshot.Rejected
		resp.Listeners = snapshot.Listeners
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleAuditRecent returns the newest delivery log records.
func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.writeError(w, http.StatusNotFound, "audit trail is disabled")
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	records, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read audit trail", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read audit trail")
		return
	}

	s.writeJSON(w, http.StatusOK, AuditRecentResponse{Records: records})
}

// handleOpenAPI serves the OpenAPI document for this server.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, buildOpenAPIDoc())
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
