package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// resetResponse acknowledges a statistics reset.
type resetResponse struct {
	Reset bool `json:"reset"`
}

func (s *Server) handleGetSkillStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetSkillStats(chi.URLParam(r, "skillId"))
	if err != nil {
		s.writeServiceError(w, r, "get stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetAllStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.svc.GetAllStats()))
}

func (s *Server) handleResetSkillStats(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ResetSkillStats(chi.URLParam(r, "skillId")); err != nil {
		s.writeServiceError(w, r, "reset stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, resetResponse{Reset: true})
}

func (s *Server) handleResetAllStats(w http.ResponseWriter, r *http.Request) {
	s.svc.ResetAllStats()
	s.writeJSON(w, http.StatusOK, resetResponse{Reset: true})
}
