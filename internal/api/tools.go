package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
	"github.com/Feaskye/SkyeAI-sub001/internal/tool"
)

// registerToolResponse is returned by POST /tools. Skill is nil when the
// descriptor was disabled.
type registerToolResponse struct {
	Registered bool         `json:"registered"`
	Skill      *model.Skill `json:"skill,omitempty"`
}

// executeToolRequest is the JSON body for POST /tools/execute.
type executeToolRequest struct {
	ToolName   string         `json:"toolName"`
	Version    string         `json:"version"`
	Parameters map[string]any `json:"parameters"`
}

// batchRequest is the JSON body for POST /tools/execute/batch.
type batchRequest struct {
	Tasks []tool.BatchTask `json:"tasks"`
}

// loadToolsRequest is the JSON body for POST /tools/load-from-yaml.
type loadToolsRequest struct {
	Path string `json:"path"`
}

type loadToolsResponse struct {
	Loaded int `json:"loaded"`
}

func toolVersion(r *http.Request) string {
	if v := r.URL.Query().Get("version"); v != "" {
		return v
	}
	return model.DefaultVersion
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tools.GetAllTools())
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	skill, err := s.tools.GetToolVersion(chi.URLParam(r, "name"), toolVersion(r))
	if err != nil {
		s.writeServiceError(w, r, "get tool", err)
		return
	}
	s.writeJSON(w, http.StatusOK, skill)
}

func (s *Server) handleRegisterTool(w http.ResponseWriter, r *http.Request) {
	var d tool.Descriptor
	if err := decodeJSON(w, r, &d, false); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	skill, err := s.tools.RegisterTool(d)
	if err != nil {
		s.writeServiceError(w, r, "register tool", err)
		return
	}
	s.writeJSON(w, http.StatusOK, registerToolResponse{Registered: skill != nil, Skill: skill})
}

func (s *Server) handleUnregisterTool(w http.ResponseWriter, r *http.Request) {
	if err := s.tools.UnregisterToolVersion(chi.URLParam(r, "name"), toolVersion(r)); err != nil {
		s.writeServiceError(w, r, "unregister tool", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	var req executeToolRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ToolName == "" {
		s.writeError(w, http.StatusBadRequest, "toolName is required")
		return
	}
	if req.Version == "" {
		req.Version = model.DefaultVersion
	}

	rec, err := s.tools.ExecuteToolVersion(r.Context(), req.ToolName, req.Version, req.Parameters)
	if err != nil {
		s.writeServiceError(w, r, "execute tool", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(s.tools.ExecuteBatch(r.Context(), req.Tasks)))
}

func (s *Server) handleLoadTools(w http.ResponseWriter, r *http.Request) {
	var req loadToolsRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	n, err := s.tools.LoadToolsFromYAML(req.Path)
	if err != nil {
		s.writeServiceError(w, r, "load tools", err)
		return
	}
	s.writeJSON(w, http.StatusOK, loadToolsResponse{Loaded: n})
}
