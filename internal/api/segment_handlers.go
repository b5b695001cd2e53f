package api

import (
	"net/http"

	"github.com/ignite/commerce-marketing/internal/domain"
)

func (s *Server) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Criteria    map[string]any `json:"criteria"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	if input.Name == "" {
		writeError(w, domain.NewValidationError("name", "name is required"))
		return
	}

	seg := &domain.CustomerSegment{
		Name:        input.Name,
		Description: input.Description,
		Criteria:    input.Criteria,
	}
	if err := s.segments.Create(r.Context(), seg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"segmentId":     seg.ID.String(),
		"customerCount": seg.CachedMemberCount,
	})
}

// handleTestSegment is the dry-run path: compile and count, persist nothing.
func (s *Server) handleTestSegment(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Criteria map[string]any `json:"criteria"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	count, err := s.segments.TestCriteria(r.Context(), input.Criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customerCount": count})
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := s.segments.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}

func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "segmentID")
	if !ok {
		return
	}
	seg, err := s.segments.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

func (s *Server) handleRefreshSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "segmentID")
	if !ok {
		return
	}
	count, err := s.segments.RefreshMemberCount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"segmentId":     id.String(),
		"customerCount": count,
	})
}
