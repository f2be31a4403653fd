package api

import (
	"net/http"
)

type healthResponse struct {
	Status   string `json:"status"`
	InFlight int    `json:"inFlight"`
	Skills   int    `json:"skills"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		InFlight: s.svc.Executor().InFlight(),
		Skills:   len(s.svc.ListSkills()),
	})
}
