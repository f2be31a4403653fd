// Package tool exposes external tools as skills. Each tool descriptor is
// translated into a skill definition whose body calls the tool through an
// Invoker. Tool executions are rate limited per tool and successful results
// are cached for a short time.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
	"github.com/Feaskye/SkyeAI-sub001/internal/service"
)

// Defaults applied to zero Config fields.
const (
	DefaultRatePerMinute = 60
	DefaultCacheTTL      = 5 * time.Minute
	DefaultCacheSize     = 1024
	DefaultBatchParallel = 8
)

// ErrNotFound is returned for unknown tools.
var ErrNotFound = errors.New("tool not found")

var outputSchema = mustJSON(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"status":  map[string]any{"type": "string"},
		"message": map[string]any{"type": "string"},
		"output":  map[string]any{"type": "object"},
	},
})

// Config tunes the adapter.
type Config struct {
	RatePerMinute int
	CacheTTL      time.Duration
	CacheSize     int
	BatchParallel int
}

// BatchTask is one entry of ExecuteBatch.
type BatchTask struct {
	ToolName   string         `json:"toolName"`
	Version    string         `json:"version,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type registration struct {
	skillID    string
	descriptor Descriptor
}

// Adapter registers tools with the skill service and executes them.
type Adapter struct {
	svc     *service.Service
	invoker Invoker
	logger  *slog.Logger
	cfg     Config

	mu       sync.RWMutex
	tools    map[string]registration  // "name:version" → registration
	limiters map[string]*rate.Limiter // tool name → limiter

	cache *expirable.LRU[string, *model.SkillExecution]
	now   func() time.Time
}

// NewAdapter creates an adapter backed by svc. Tool bodies call invoker.
func NewAdapter(svc *service.Service, invoker Invoker, cfg Config, logger *slog.Logger) *Adapter {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = DefaultRatePerMinute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.BatchParallel <= 0 {
		cfg.BatchParallel = DefaultBatchParallel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		svc:      svc,
		invoker:  invoker,
		logger:   logger,
		cfg:      cfg,
		tools:    make(map[string]registration),
		limiters: make(map[string]*rate.Limiter),
		cache:    expirable.NewLRU[string, *model.SkillExecution](cfg.CacheSize, nil, cfg.CacheTTL),
		now:      time.Now,
	}
}

// RegisterTool registers d as a skill and binds its invocation body. A
// disabled descriptor is skipped and yields a nil skill and nil error.
func (a *Adapter) RegisterTool(d Descriptor) (*model.Skill, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidSkill, err)
	}
	if !d.IsEnabled() {
		a.logger.Info("tool disabled, skipping registration", "tool", d.Name)
		return nil, nil
	}

	params := d.Parameters
	if params == nil {
		params = map[string]any{}
	}
	inputSchema, err := json.Marshal(map[string]any{"type": "object", "properties": params})
	if err != nil {
		return nil, fmt.Errorf("%w: parameters of tool %s: %v", service.ErrInvalidSkill, d.Name, err)
	}
	skill := &model.Skill{
		Name:          d.Name,
		Version:       d.VersionOrDefault(),
		Description:   d.Description,
		Type:          d.Type,
		Status:        model.SkillActive,
		InputSchema:   string(inputSchema),
		OutputSchema:  outputSchema,
		Configuration: mustJSON(map[string]any{"endpoint": d.Endpoint}),
	}

	stored, err := a.svc.RegisterSkill(skill)
	if err != nil {
		return nil, fmt.Errorf("register tool %s: %w", d.Name, err)
	}
	desc := d
	if err := a.svc.BindHandler(stored.ID, func(ctx context.Context, p map[string]any) (map[string]any, error) {
		return a.invoker.Invoke(ctx, desc, p)
	}); err != nil {
		return nil, fmt.Errorf("bind tool %s: %w", d.Name, err)
	}

	a.mu.Lock()
	a.tools[stored.Key()] = registration{skillID: stored.ID, descriptor: desc}
	a.mu.Unlock()
	a.cache.Purge()

	a.logger.Info("registered tool", "tool", d.Name, "version", stored.Version, "type", d.Type)
	return stored, nil
}

// UnregisterTool removes the default version of a tool.
func (a *Adapter) UnregisterTool(name string) error {
	return a.UnregisterToolVersion(name, model.DefaultVersion)
}

// UnregisterToolVersion removes one version of a tool.
func (a *Adapter) UnregisterToolVersion(name, version string) error {
	key := model.SkillKey(name, version)

	a.mu.Lock()
	reg, ok := a.tools[key]
	delete(a.tools, key)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	a.cache.Purge()

	if err := a.svc.UnregisterSkill(reg.skillID); err != nil && !errors.Is(err, service.ErrNotFound) {
		return err
	}
	a.logger.Info("unregistered tool", "tool", name, "version", version)
	return nil
}

// GetTool returns the skill behind the default version of a tool.
func (a *Adapter) GetTool(name string) (*model.Skill, error) {
	return a.GetToolVersion(name, model.DefaultVersion)
}

// GetToolVersion returns the skill behind one version of a tool.
func (a *Adapter) GetToolVersion(name, version string) (*model.Skill, error) {
	key := model.SkillKey(name, version)
	a.mu.RLock()
	reg, ok := a.tools[key]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	skill, err := a.svc.GetSkill(reg.skillID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return skill, nil
}

// GetAllTools returns the skills of every registered tool sorted by name
// and version.
func (a *Adapter) GetAllTools() []*model.Skill {
	a.mu.RLock()
	ids := make([]string, 0, len(a.tools))
	for _, reg := range a.tools {
		ids = append(ids, reg.skillID)
	}
	a.mu.RUnlock()

	out := make([]*model.Skill, 0, len(ids))
	for _, id := range ids {
		if skill, err := a.svc.GetSkill(id); err == nil {
			out = append(out, skill)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// ExecuteTool runs the default version of a tool.
func (a *Adapter) ExecuteTool(ctx context.Context, name string, params map[string]any) (*model.SkillExecution, error) {
	return a.ExecuteToolVersion(ctx, name, model.DefaultVersion, params)
}

// ExecuteToolVersion runs one version of a tool through the skill service.
// A request over the tool's rate limit yields an ERROR record without
// running the tool; an identical successful request within the cache TTL
// returns the cached record.
func (a *Adapter) ExecuteToolVersion(ctx context.Context, name, version string, params map[string]any) (*model.SkillExecution, error) {
	skill, err := a.GetToolVersion(name, version)
	if err != nil {
		return nil, err
	}

	if !a.limiter(name).Allow() {
		a.logger.Warn("tool rate limit exceeded", "tool", name)
		return a.rejected(skill, params, fmt.Sprintf("rate limit exceeded for tool %s", name)), nil
	}

	key, cacheable := cacheKey(skill, params)
	if cacheable {
		if rec, ok := a.cache.Get(key); ok {
			a.logger.Debug("using cached tool result", "tool", name)
			return rec.Clone(), nil
		}
	}

	rec, err := a.svc.ExecuteSkill(ctx, skill.ID, params)
	if err != nil {
		return nil, err
	}
	if cacheable && rec.Status == model.StatusSuccess {
		a.cache.Add(key, rec.Clone())
	}
	return rec, nil
}

// ExecuteBatch runs tasks in parallel and returns their records in task
// order. Failures, including unknown tools, are reported as ERROR records.
func (a *Adapter) ExecuteBatch(ctx context.Context, tasks []BatchTask) []*model.SkillExecution {
	results := make([]*model.SkillExecution, len(tasks))

	var g errgroup.Group
	g.SetLimit(a.cfg.BatchParallel)
	for i, task := range tasks {
		g.Go(func() error {
			version := task.Version
			if version == "" {
				version = model.DefaultVersion
			}
			rec, err := a.ExecuteToolVersion(ctx, task.ToolName, version, task.Parameters)
			if err != nil {
				a.logger.Error("batch task failed", "tool", task.ToolName, "error", err)
				skill := &model.Skill{Name: task.ToolName, Version: version}
				rec = a.rejected(skill, task.Parameters, fmt.Sprintf("execution failed: %v", err))
			}
			results[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// LoadToolsFromYAML registers every descriptor in the file at path and
// returns how many tools were registered. A missing file loads the built-in
// catalogue instead.
func (a *Adapter) LoadToolsFromYAML(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		a.logger.Info("tools file not found, loading default tools", "path", path)
		return a.LoadDefaultTools()
	}
	if err != nil {
		return 0, fmt.Errorf("read tools file: %w", err)
	}
	ds, err := ParseDescriptors(data)
	if err != nil {
		return 0, err
	}
	n, err := a.registerAll(ds)
	if err != nil {
		return n, err
	}
	a.logger.Info("loaded tools from file", "path", path, "registered", n)
	return n, nil
}

// LoadDefaultTools registers the built-in tool catalogue.
func (a *Adapter) LoadDefaultTools() (int, error) {
	return a.registerAll(DefaultDescriptors())
}

func (a *Adapter) registerAll(ds []Descriptor) (int, error) {
	n := 0
	for _, d := range ds {
		skill, err := a.RegisterTool(d)
		if err != nil {
			return n, err
		}
		if skill != nil {
			n++
		}
	}
	return n, nil
}

func (a *Adapter) limiter(name string) *rate.Limiter {
	a.mu.RLock()
	l, ok := a.limiters[name]
	a.mu.RUnlock()
	if ok {
		return l
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.limiters[name]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(a.cfg.RatePerMinute)), a.cfg.RatePerMinute)
	a.limiters[name] = l
	return l
}

// rejected builds a terminal ERROR record for a request that never reached
// the executor.
func (a *Adapter) rejected(skill *model.Skill, params map[string]any, msg string) *model.SkillExecution {
	now := a.now()
	rec := &model.SkillExecution{
		ExecutionID:  model.NewID(),
		Skill:        skill.Clone(),
		Status:       model.StatusError,
		ErrorMessage: msg,
		StartTime:    now,
	}
	if data, err := json.Marshal(params); err == nil {
		rec.InputParameters = string(data)
	}
	rec.Finish(now)
	return rec
}

// cacheKey identifies a request by tool key and canonical parameters.
// Unserializable parameters are not cached.
func cacheKey(skill *model.Skill, params map[string]any) (string, bool) {
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", false
	}
	return skill.Key() + "|" + string(data), true
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
