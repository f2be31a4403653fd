package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

func TestSkillStats(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	skill := registerSkill(t, ts.URL, model.Skill{Name: "echo"})
	for range 2 {
		expectStatus(t, doJSON(t, http.MethodPost, ts.URL+"/skills/execute/"+skill.ID, nil), http.StatusOK)
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/skills/stats/"+skill.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	stats := decodeBody[model.SkillMetric](t, resp)
	if stats.TotalExecutions != 2 || stats.SuccessfulExecutions != 2 {
		t.Errorf("stats = %+v, want 2 successful executions", stats)
	}
	if stats.Invocations != 2 {
		t.Errorf("Invocations = %d, want 2", stats.Invocations)
	}
	if stats.SuccessRate != 1 {
		t.Errorf("SuccessRate = %v, want 1", stats.SuccessRate)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/skills/stats/all", nil)
	expectStatus(t, resp, http.StatusOK)
	if all := decodeBody[[]model.SkillMetric](t, resp); len(all) != 1 || all[0].SkillName != "echo" {
		t.Errorf("all stats = %+v", all)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/skills/stats/"+skill.ID+"/reset", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = doJSON(t, http.MethodGet, ts.URL+"/skills/stats/"+skill.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	if stats := decodeBody[model.SkillMetric](t, resp); stats.TotalExecutions != 0 || stats.Invocations != 0 {
		t.Errorf("after reset stats = %+v, want zeroed", stats)
	}
}

func TestResetAllStats(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	a := registerSkill(t, ts.URL, model.Skill{Name: "a"})
	b := registerSkill(t, ts.URL, model.Skill{Name: "b"})
	expectStatus(t, doJSON(t, http.MethodPost, ts.URL+"/skills/execute/"+a.ID, nil), http.StatusOK)
	expectStatus(t, doJSON(t, http.MethodPost, ts.URL+"/skills/execute/"+b.ID, nil), http.StatusOK)

	resp := doJSON(t, http.MethodPost, ts.URL+"/skills/stats/reset-all", nil)
	expectStatus(t, resp, http.StatusOK)
	if !decodeBody[resetResponse](t, resp).Reset {
		t.Error("reset = false")
	}

	for _, id := range []string{a.ID, b.ID} {
		resp = doJSON(t, http.MethodGet, ts.URL+"/skills/stats/"+id, nil)
		expectStatus(t, resp, http.StatusOK)
		if stats := decodeBody[model.SkillMetric](t, resp); stats.TotalExecutions != 0 {
			t.Errorf("%s TotalExecutions = %d, want 0", id, stats.TotalExecutions)
		}
	}
}

func TestSkillStatsUnknownSkill(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	expectStatus(t, doJSON(t, http.MethodGet, ts.URL+"/skills/stats/missing", nil), http.StatusNotFound)
	expectStatus(t, doJSON(t, http.MethodPost, ts.URL+"/skills/stats/missing/reset", nil), http.StatusNotFound)
}
