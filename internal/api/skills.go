package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

func (s *Server) handleRegisterSkill(w http.ResponseWriter, r *http.Request) {
	var skill model.Skill
	if err := decodeJSON(w, r, &skill, false); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	registered, err := s.svc.RegisterSkill(&skill)
	if err != nil {
		s.writeServiceError(w, r, "register skill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, registered)
}

func (s *Server) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	var skill model.Skill
	if err := decodeJSON(w, r, &skill, false); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := s.svc.UpdateSkill(chi.URLParam(r, "skillId"), &skill)
	if err != nil {
		s.writeServiceError(w, r, "update skill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUnregisterSkill(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.UnregisterSkill(chi.URLParam(r, "skillId")); err != nil {
		s.writeServiceError(w, r, "unregister skill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	skill, err := s.svc.GetSkill(chi.URLParam(r, "skillId"))
	if err != nil {
		s.writeServiceError(w, r, "get skill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, skill)
}

func (s *Server) handleGetSkillByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var (
		skill *model.Skill
		err   error
	)
	if version := r.URL.Query().Get("version"); version != "" {
		skill, err = s.svc.GetSkillByNameAndVersion(name, version)
	} else {
		skill, err = s.svc.GetSkillByName(name)
	}
	if err != nil {
		s.writeServiceError(w, r, "get skill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, skill)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.svc.ListSkills()))
}

func (s *Server) handleListActiveSkills(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.svc.ListActiveSkills()))
}

func (s *Server) handleSearchSkills(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, nonNil(s.svc.SearchSkills(r.URL.Query().Get("keyword"))))
}

func (s *Server) handleActivateSkill(w http.ResponseWriter, r *http.Request) {
	skill, err := s.svc.ActivateSkill(chi.URLParam(r, "skillId"))
	if err != nil {
		s.writeServiceError(w, r, "activate skill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, skill)
}

func (s *Server) handleDeactivateSkill(w http.ResponseWriter, r *http.Request) {
	skill, err := s.svc.DeactivateSkill(chi.URLParam(r, "skillId"))
	if err != nil {
		s.writeServiceError(w, r, "deactivate skill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, skill)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
