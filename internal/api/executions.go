package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Feaskye/SkyeAI-sub001/internal/engine"
	"github.com/Feaskye/SkyeAI-sub001/internal/model"
	"github.com/Feaskye/SkyeAI-sub001/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// asyncResponse is returned by POST /skills/execute-async/{skillId}.
type asyncResponse struct {
	ExecutionID string `json:"executionId"`
}

// cancelResponse is returned by POST /skills/execution/{executionId}/cancel.
type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// listExecutionsResponse wraps the paginated history response.
type listExecutionsResponse struct {
	Executions []*model.SkillExecution `json:"executions"`
	Total      int                     `json:"total"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
}

// decodeParams reads the optional parameter object of an execute request.
func decodeParams(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var params map[string]any
	if err := decodeJSON(w, r, &params, true); err != nil {
		return nil, err
	}
	return params, nil
}

func (s *Server) handleExecuteSkill(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.svc.ExecuteSkill(r.Context(), chi.URLParam(r, "skillId"), params)
	if err != nil {
		s.writeServiceError(w, r, "execute skill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExecuteSkillByName(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.svc.ExecuteSkillByName(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("version"), params)
	if err != nil {
		s.writeServiceError(w, r, "execute skill", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExecuteSkillAsync(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.svc.ExecuteSkillAsync(r.Context(), chi.URLParam(r, "skillId"), params)
	if err != nil {
		s.writeServiceError(w, r, "submit execution", err)
		return
	}
	s.writeJSON(w, http.StatusOK, asyncResponse{ExecutionID: id})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetExecutionStatus(r.Context(), chi.URLParam(r, "executionId"))
	if err != nil {
		s.writeServiceError(w, r, "get execution", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	cancelled := s.svc.CancelExecution(chi.URLParam(r, "executionId"))
	s.writeJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	filter := store.ExecutionFilter{
		SkillName: r.URL.Query().Get("skill"),
		Status:    model.ExecutionStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Limit:     limit,
		Offset:    offset,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown status "+string(filter.Status))
		return
	}

	execs, total, err := s.svc.ListExecutions(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, "list executions", err)
		return
	}

	s.writeJSON(w, http.StatusOK, listExecutionsResponse{
		Executions: nonNil(execs),
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) handleExecutionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.ExecutionSummary(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "summarize executions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleStreamEvents streams status events of one execution as SSE. A
// finished execution yields its terminal status followed by a done event.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionId")

	rec, err := s.svc.GetExecutionStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, "get execution", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	if rec.Status.Terminal() {
		_ = writeEvent(w, eventFromRecord(rec))
		_ = writeSSEEvent(w, "done", "stream complete")
		flush()
		return
	}

	// Subscribe on a closed topic returns a closed channel, so an execution
	// finishing between the status check and this call ends the loop below.
	ch, unsub := s.svc.SubscribeExecution(id)
	defer unsub()

	if err := writeEvent(w, eventFromRecord(rec)); err != nil {
		return
	}
	flush()

	last := rec.Status
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// The topic may have closed before we subscribed; report the
				// terminal record we never saw as an event.
				if !last.Terminal() {
					if final, err := s.svc.GetExecutionStatus(r.Context(), id); err == nil && final.Status.Terminal() {
						_ = writeEvent(w, eventFromRecord(final))
					}
				}
				_ = writeSSEEvent(w, "done", "stream complete")
				flush()
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			last = ev.Status
			flush()
		case <-r.Context().Done():
			return
		}
	}
}

func eventFromRecord(rec *model.SkillExecution) engine.Event {
	ev := engine.Event{
		ExecutionID:  rec.ExecutionID,
		Status:       rec.Status,
		Time:         time.Now().UTC(),
		ErrorMessage: rec.ErrorMessage,
	}
	if rec.EndTime != nil {
		ev.Time = *rec.EndTime
	}
	return ev
}

func writeEvent(w http.ResponseWriter, ev engine.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return writeSSEData(w, string(data))
}

// writeSSEData writes a payload as an SSE data event. Multi-line strings are
// split so that each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
