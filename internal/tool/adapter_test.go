package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
	"github.com/Feaskye/SkyeAI-sub001/internal/service"
	"github.com/Feaskye/SkyeAI-sub001/internal/tool"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestAdapter(t *testing.T, inv tool.Invoker, cfg tool.Config) (*tool.Adapter, *service.Service) {
	t.Helper()
	svc := service.New(service.Options{Logger: discardLogger()})
	t.Cleanup(func() { svc.Shutdown(time.Second) })
	return tool.NewAdapter(svc, inv, cfg, discardLogger()), svc
}

// countingInvoker echoes its parameters and counts calls.
type countingInvoker struct {
	calls atomic.Int32
}

func (c *countingInvoker) Invoke(_ context.Context, d tool.Descriptor, params map[string]any) (map[string]any, error) {
	c.calls.Add(1)
	return map[string]any{"tool": d.Name, "params": params}, nil
}

func enabled(b bool) *bool { return &b }

func TestDefaultDescriptors(t *testing.T) {
	ds := tool.DefaultDescriptors()
	if len(ds) != 12 {
		t.Fatalf("default catalogue has %d tools, want 12", len(ds))
	}
	byName := map[string]tool.Descriptor{}
	for _, d := range ds {
		if !d.IsEnabled() {
			t.Errorf("default tool %s is disabled", d.Name)
		}
		byName[d.Name] = d
	}
	if got := byName["browser"].Endpoint; got != "http://localhost:8081/api/browser" {
		t.Errorf("browser endpoint = %q", got)
	}
	if got := byName["calculator"].Type; got != "java" {
		t.Errorf("calculator type = %q", got)
	}
}

func TestParseDescriptorsRejectsMissingName(t *testing.T) {
	_, err := tool.ParseDescriptors([]byte("- description: nameless\n"))
	if !errors.Is(err, tool.ErrInvalidDescriptor) {
		t.Fatalf("err = %v, want ErrInvalidDescriptor", err)
	}
}

func TestRegisterToolTranslatesDescriptor(t *testing.T) {
	a, _ := newTestAdapter(t, &countingInvoker{}, tool.Config{})

	skill, err := a.RegisterTool(tool.Descriptor{
		Name:        "calc",
		Description: "adds numbers",
		Type:        "java",
		Endpoint:    "http://example.invalid/calc",
		Parameters:  map[string]any{"expr": map[string]any{"type": "string"}},
	})
	if err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}
	if skill.Version != model.DefaultVersion || skill.Status != model.SkillActive || skill.Type != "java" {
		t.Errorf("skill = %+v", skill)
	}

	var in map[string]any
	if err := json.Unmarshal([]byte(skill.InputSchema), &in); err != nil {
		t.Fatalf("input schema: %v", err)
	}
	props, _ := in["properties"].(map[string]any)
	if in["type"] != "object" || props["expr"] == nil {
		t.Errorf("InputSchema = %s", skill.InputSchema)
	}
	if !strings.Contains(skill.OutputSchema, `"status"`) {
		t.Errorf("OutputSchema = %s", skill.OutputSchema)
	}
	if skill.Configuration != `{"endpoint":"http://example.invalid/calc"}` {
		t.Errorf("Configuration = %s", skill.Configuration)
	}
}

func TestDisabledToolExcluded(t *testing.T) {
	a, svc := newTestAdapter(t, &countingInvoker{}, tool.Config{})

	path := filepath.Join(t.TempDir(), "tools.yaml")
	yaml := `
- name: alpha
  endpoint: http://localhost/alpha
- name: beta
  endpoint: http://localhost/beta
  enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := a.LoadToolsFromYAML(path)
	if err != nil {
		t.Fatalf("LoadToolsFromYAML: %v", err)
	}
	if n != 1 {
		t.Errorf("registered %d tools, want 1", n)
	}
	if _, err := a.GetTool("beta"); !errors.Is(err, tool.ErrNotFound) {
		t.Errorf("GetTool(beta) error = %v, want ErrNotFound", err)
	}
	if _, err := a.ExecuteTool(context.Background(), "beta", nil); !errors.Is(err, tool.ErrNotFound) {
		t.Errorf("ExecuteTool(beta) error = %v, want ErrNotFound", err)
	}
	if got := svc.SearchSkills("beta"); len(got) != 0 {
		t.Errorf("disabled tool reached the registry: %v", got)
	}
	if got := a.GetAllTools(); len(got) != 1 || got[0].Name != "alpha" {
		t.Errorf("GetAllTools = %v", got)
	}
}

func TestRegisterDisabledReturnsNil(t *testing.T) {
	a, _ := newTestAdapter(t, &countingInvoker{}, tool.Config{})
	skill, err := a.RegisterTool(tool.Descriptor{Name: "off", Enabled: enabled(false)})
	if skill != nil || err != nil {
		t.Errorf("RegisterTool(disabled) = %v, %v; want nil, nil", skill, err)
	}
}

func TestLoadToolsFromMissingFileLoadsDefaults(t *testing.T) {
	a, _ := newTestAdapter(t, &countingInvoker{}, tool.Config{})

	n, err := a.LoadToolsFromYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadToolsFromYAML: %v", err)
	}
	if n != 12 {
		t.Errorf("registered %d tools, want 12", n)
	}
	if _, err := a.GetTool("search"); err != nil {
		t.Errorf("GetTool(search): %v", err)
	}
}

func TestLoadToolsFromInvalidYAML(t *testing.T) {
	a, _ := newTestAdapter(t, &countingInvoker{}, tool.Config{})
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("name: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.LoadToolsFromYAML(path); !errors.Is(err, tool.ErrInvalidDescriptor) {
		t.Errorf("err = %v, want ErrInvalidDescriptor", err)
	}
}

func TestExecuteToolOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "output": params})
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, tool.NewHTTPInvoker(5*time.Second), tool.Config{})
	if _, err := a.RegisterTool(tool.Descriptor{Name: "remote", Endpoint: srv.URL}); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	rec, err := a.ExecuteTool(context.Background(), "remote", map[string]any{"q": "go"})
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if rec.Status != model.StatusSuccess {
		t.Fatalf("Status = %q (%s), want SUCCESS", rec.Status, rec.ErrorMessage)
	}
	if rec.OutputResult != `{"output":{"q":"go"},"status":"success"}` {
		t.Errorf("OutputResult = %s", rec.OutputResult)
	}
}

func TestExecuteToolHTTPErrorIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, tool.NewHTTPInvoker(5*time.Second), tool.Config{})
	_, _ = a.RegisterTool(tool.Descriptor{Name: "remote", Endpoint: srv.URL})

	rec, err := a.ExecuteTool(context.Background(), "remote", nil)
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if rec.Status != model.StatusFailed {
		t.Errorf("Status = %q, want FAILED", rec.Status)
	}
	if !strings.Contains(rec.ErrorMessage, "403") {
		t.Errorf("ErrorMessage = %q", rec.ErrorMessage)
	}
}

func TestHTTPInvokerWrapsNonObjectResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	out, err := tool.NewHTTPInvoker(time.Second).Invoke(context.Background(), tool.Descriptor{Name: "list", Endpoint: srv.URL}, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if list, ok := out["output"].([]any); !ok || len(list) != 3 {
		t.Errorf("out = %v", out)
	}
}

func TestHTTPInvokerNoEndpoint(t *testing.T) {
	_, err := tool.NewHTTPInvoker(time.Second).Invoke(context.Background(), tool.Descriptor{Name: "x"}, nil)
	if err == nil {
		t.Error("expected error for missing endpoint")
	}
}

func TestRateLimit(t *testing.T) {
	inv := &countingInvoker{}
	a, _ := newTestAdapter(t, inv, tool.Config{RatePerMinute: 2})
	_, _ = a.RegisterTool(tool.Descriptor{Name: "limited"})

	for i := range 2 {
		rec, err := a.ExecuteTool(context.Background(), "limited", map[string]any{"i": i})
		if err != nil || rec.Status != model.StatusSuccess {
			t.Fatalf("call %d: rec=%v err=%v", i, rec, err)
		}
	}
	rec, err := a.ExecuteTool(context.Background(), "limited", map[string]any{"i": 99})
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if rec.Status != model.StatusError || !strings.Contains(rec.ErrorMessage, "rate limit") {
		t.Errorf("third call = %q %q, want rate limited ERROR", rec.Status, rec.ErrorMessage)
	}
	if got := inv.calls.Load(); got != 2 {
		t.Errorf("invoker called %d times, want 2", got)
	}
}

func TestResultCache(t *testing.T) {
	inv := &countingInvoker{}
	a, _ := newTestAdapter(t, inv, tool.Config{})
	_, _ = a.RegisterTool(tool.Descriptor{Name: "cached"})
	ctx := context.Background()

	first, _ := a.ExecuteTool(ctx, "cached", map[string]any{"a": 1, "b": 2})
	second, _ := a.ExecuteTool(ctx, "cached", map[string]any{"b": 2, "a": 1})
	if got := inv.calls.Load(); got != 1 {
		t.Errorf("invoker called %d times, want 1 (cache hit)", got)
	}
	if first.ExecutionID != second.ExecutionID {
		t.Error("cached call returned a different record")
	}

	_, _ = a.ExecuteTool(ctx, "cached", map[string]any{"a": 2})
	if got := inv.calls.Load(); got != 2 {
		t.Errorf("invoker called %d times, want 2", got)
	}
}

func TestFailuresNotCached(t *testing.T) {
	var calls atomic.Int32
	inv := tool.InvokerFunc(func(context.Context, tool.Descriptor, map[string]any) (map[string]any, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})
	a, _ := newTestAdapter(t, inv, tool.Config{})
	_, _ = a.RegisterTool(tool.Descriptor{Name: "flaky"})

	for range 2 {
		rec, _ := a.ExecuteTool(context.Background(), "flaky", nil)
		if rec.Status != model.StatusFailed {
			t.Errorf("Status = %q, want FAILED", rec.Status)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("invoker called %d times, want 2", calls.Load())
	}
}

func TestExecuteBatchPreservesOrder(t *testing.T) {
	inv := tool.InvokerFunc(func(_ context.Context, d tool.Descriptor, params map[string]any) (map[string]any, error) {
		if d.Name == "slow" {
			time.Sleep(50 * time.Millisecond)
		}
		return map[string]any{"tool": d.Name, "n": params["n"]}, nil
	})
	a, _ := newTestAdapter(t, inv, tool.Config{})
	_, _ = a.RegisterTool(tool.Descriptor{Name: "slow"})
	_, _ = a.RegisterTool(tool.Descriptor{Name: "fast"})
	_, _ = a.RegisterTool(tool.Descriptor{Name: "fast", Version: "2.0"})

	tasks := []tool.BatchTask{
		{ToolName: "slow", Parameters: map[string]any{"n": 0}},
		{ToolName: "fast", Parameters: map[string]any{"n": 1}},
		{ToolName: "missing"},
		{ToolName: "fast", Version: "2.0", Parameters: map[string]any{"n": 3}},
	}
	results := a.ExecuteBatch(context.Background(), tasks)
	if len(results) != len(tasks) {
		t.Fatalf("got %d results, want %d", len(results), len(tasks))
	}

	for i, want := range []model.ExecutionStatus{model.StatusSuccess, model.StatusSuccess, model.StatusError, model.StatusSuccess} {
		if results[i].Status != want {
			t.Errorf("results[%d].Status = %q, want %q", i, results[i].Status, want)
		}
	}
	for _, i := range []int{0, 1, 3} {
		want := fmt.Sprintf(`"n":%d`, i)
		if !strings.Contains(results[i].OutputResult, want) {
			t.Errorf("results[%d].OutputResult = %s, want %s", i, results[i].OutputResult, want)
		}
	}
	if results[3].Skill.Version != "2.0" {
		t.Errorf("results[3] version = %q", results[3].Skill.Version)
	}
	if !strings.Contains(results[2].ErrorMessage, "not found") {
		t.Errorf("results[2].ErrorMessage = %q", results[2].ErrorMessage)
	}
}

func TestUnregisterTool(t *testing.T) {
	a, svc := newTestAdapter(t, &countingInvoker{}, tool.Config{})
	skill, _ := a.RegisterTool(tool.Descriptor{Name: "temp"})

	if err := a.UnregisterTool("temp"); err != nil {
		t.Fatalf("UnregisterTool: %v", err)
	}
	if err := a.UnregisterTool("temp"); !errors.Is(err, tool.ErrNotFound) {
		t.Errorf("second UnregisterTool error = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetSkill(skill.ID); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("skill still registered: %v", err)
	}
}
