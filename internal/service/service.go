// Package service is the facade that ties the skill registry, the executor,
// the monitor and the execution history together. It owns the executor: the
// completion hook that feeds the monitor and the archive is installed here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/Feaskye/SkyeAI-sub001/internal/engine"
	"github.com/Feaskye/SkyeAI-sub001/internal/model"
	"github.com/Feaskye/SkyeAI-sub001/internal/monitor"
	"github.com/Feaskye/SkyeAI-sub001/internal/registry"
	"github.com/Feaskye/SkyeAI-sub001/internal/store"
)

var (
	// ErrNotFound is returned when a skill or execution does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when executing a skill that is not ACTIVE.
	ErrInvalidState = errors.New("skill is not active")
	// ErrInvalidSkill is returned when a skill definition is rejected.
	ErrInvalidSkill = registry.ErrInvalidSkill
)

// archiveTimeout bounds each history write from the completion hook.
const archiveTimeout = 5 * time.Second

// Options configures a Service.
type Options struct {
	Executor       engine.Config
	Logger         *slog.Logger
	Registerer     prometheus.Registerer // nil disables Prometheus export
	TracerProvider trace.TracerProvider  // nil uses the global provider
	History        store.Store           // nil disables archiving
}

// Service exposes skill management and execution.
type Service struct {
	registry *registry.Registry
	executor *engine.Executor
	monitor  *monitor.Monitor
	history  store.Store
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[string]engine.Body // skill id → body
}

// New builds the service and starts its executor.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		registry: registry.NewRegistry(),
		monitor:  monitor.New(logger, opts.Registerer),
		history:  opts.History,
		logger:   logger,
		handlers: make(map[string]engine.Body),
	}

	execOpts := []engine.Option{
		engine.WithSubmitHook(func(rec *model.SkillExecution) { s.monitor.RecordExecutionStart(rec.Skill) }),
		engine.WithCompletionHook(s.onComplete),
	}
	if opts.TracerProvider != nil {
		execOpts = append(execOpts, engine.WithTracerProvider(opts.TracerProvider))
	}
	s.executor = engine.NewExecutor(opts.Executor, logger, execOpts...)
	return s
}

func (s *Service) onComplete(rec *model.SkillExecution) {
	s.monitor.RecordExecutionComplete(rec)

	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.history.SaveExecution(ctx, rec); err != nil {
		s.logger.Error("failed to archive execution", "execution_id", rec.ExecutionID, "error", err)
	}
}

// Executor returns the underlying executor.
func (s *Service) Executor() *engine.Executor { return s.executor }

// Monitor returns the statistics monitor.
func (s *Service) Monitor() *monitor.Monitor { return s.monitor }

// RegisterSkill stores a skill definition. See registry.Registry.Register.
func (s *Service) RegisterSkill(skill *model.Skill) (*model.Skill, error) {
	stored, err := s.registry.Register(skill)
	if err != nil {
		return nil, err
	}
	s.logger.Info("skill registered", "skill_id", stored.ID, "skill", stored.Key())
	return stored, nil
}

// UnregisterSkill removes a skill and its bound handler.
func (s *Service) UnregisterSkill(id string) error {
	skill, err := s.GetSkill(id)
	if err != nil {
		return err
	}
	s.registry.Unregister(id)

	s.mu.Lock()
	delete(s.handlers, id)
	s.mu.Unlock()

	s.logger.Info("skill unregistered", "skill_id", id, "skill", skill.Key())
	return nil
}

// UpdateSkill replaces the definition stored under id. The id is kept; a
// changed name or version moves the skill to the new key.
func (s *Service) UpdateSkill(id string, skill *model.Skill) (*model.Skill, error) {
	existing, err := s.GetSkill(id)
	if err != nil {
		return nil, err
	}
	if skill == nil {
		return nil, fmt.Errorf("%w: nil skill", ErrInvalidSkill)
	}
	updated := skill.Clone()
	updated.ID = id
	updated.CreatedAt = existing.CreatedAt
	if updated.Status == "" {
		updated.Status = existing.Status
	}
	return s.RegisterSkill(updated)
}

// ActivateSkill marks a skill ACTIVE.
func (s *Service) ActivateSkill(id string) (*model.Skill, error) {
	return s.setStatus(id, model.SkillActive)
}

// DeactivateSkill marks a skill INACTIVE; later executions are rejected.
func (s *Service) DeactivateSkill(id string) (*model.Skill, error) {
	return s.setStatus(id, model.SkillInactive)
}

func (s *Service) setStatus(id, status string) (*model.Skill, error) {
	skill, err := s.registry.SetStatus(id, status)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("%w: skill %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("skill status changed", "skill_id", id, "status", status)
	return skill, nil
}

// GetSkill returns the skill with the given id.
func (s *Service) GetSkill(id string) (*model.Skill, error) {
	skill, err := s.registry.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: skill %s", ErrNotFound, id)
	}
	return skill, nil
}

// GetSkillByName returns a skill by name, preferring the default version.
func (s *Service) GetSkillByName(name string) (*model.Skill, error) {
	skill, err := s.registry.GetByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: skill %s", ErrNotFound, name)
	}
	return skill, nil
}

// GetSkillByNameAndVersion returns the skill registered under (name, version).
func (s *Service) GetSkillByNameAndVersion(name, version string) (*model.Skill, error) {
	skill, err := s.registry.GetByNameAndVersion(name, version)
	if err != nil {
		return nil, fmt.Errorf("%w: skill %s", ErrNotFound, model.SkillKey(name, version))
	}
	return skill, nil
}

// ListSkills returns every registered skill.
func (s *Service) ListSkills() []*model.Skill { return s.registry.List() }

// ListActiveSkills returns every ACTIVE skill.
func (s *Service) ListActiveSkills() []*model.Skill { return s.registry.ListActive() }

// SearchSkills matches keyword against skill names and descriptions.
func (s *Service) SearchSkills(keyword string) []*model.Skill { return s.registry.Search(keyword) }

// BindHandler sets the body run when the skill executes. Skills without a
// bound handler run DefaultBody.
func (s *Service) BindHandler(skillID string, body engine.Body) error {
	if _, err := s.GetSkill(skillID); err != nil {
		return err
	}
	s.mu.Lock()
	s.handlers[skillID] = body
	s.mu.Unlock()
	return nil
}

func (s *Service) bodyFor(skill *model.Skill) engine.Body {
	s.mu.RLock()
	body, ok := s.handlers[skill.ID]
	s.mu.RUnlock()
	if ok {
		return body
	}
	return DefaultBody(skill)
}

// DefaultBody is the placeholder run by skills with no bound handler. It
// acknowledges the invocation without doing any work.
func DefaultBody(skill *model.Skill) engine.Body {
	name, version := skill.Name, skill.Version
	return func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{
			"status":       "success",
			"message":      "Skill executed successfully",
			"output":       "Execution result",
			"skillName":    name,
			"skillVersion": version,
		}, nil
	}
}

func (s *Service) executable(id string) (*model.Skill, error) {
	skill, err := s.GetSkill(id)
	if err != nil {
		return nil, err
	}
	return s.checkActive(skill)
}

func (s *Service) checkActive(skill *model.Skill) (*model.Skill, error) {
	if !skill.Active() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, skill.Key(), skill.Status)
	}
	return skill, nil
}

// ExecuteSkill runs the skill and waits for its terminal record. Failures of
// the body are reported in the record; errors are returned only for unknown
// or inactive skills and rejected submissions.
func (s *Service) ExecuteSkill(ctx context.Context, skillID string, params map[string]any) (*model.SkillExecution, error) {
	skill, err := s.executable(skillID)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, skill, params)
}

// ExecuteSkillByName resolves (name, version) and runs the skill.
func (s *Service) ExecuteSkillByName(ctx context.Context, name, version string, params map[string]any) (*model.SkillExecution, error) {
	skill, err := s.GetSkillByNameAndVersion(name, version)
	if err != nil {
		return nil, err
	}
	if skill, err = s.checkActive(skill); err != nil {
		return nil, err
	}
	return s.execute(ctx, skill, params)
}

func (s *Service) execute(ctx context.Context, skill *model.Skill, params map[string]any) (*model.SkillExecution, error) {
	rec, err := s.executor.Execute(ctx, skill, params, s.bodyFor(skill))
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", skill.Key(), err)
	}
	return rec, nil
}

// ExecuteSkillAsync submits the skill and returns the execution id.
func (s *Service) ExecuteSkillAsync(ctx context.Context, skillID string, params map[string]any) (string, error) {
	skill, err := s.executable(skillID)
	if err != nil {
		return "", err
	}
	id, err := s.executor.ExecuteAsync(ctx, skill, params, s.bodyFor(skill))
	if err != nil {
		return "", fmt.Errorf("execute %s: %w", skill.Key(), err)
	}
	return id, nil
}

// GetExecutionStatus returns the executor's view of an execution, falling
// back to the history archive once it has been evicted from memory.
func (s *Service) GetExecutionStatus(ctx context.Context, executionID string) (*model.SkillExecution, error) {
	rec, err := s.executor.Status(executionID)
	if err == nil {
		return rec, nil
	}
	if s.history != nil {
		rec, herr := s.history.GetExecution(ctx, executionID)
		if herr == nil {
			return rec, nil
		}
		if !errors.Is(herr, store.ErrNotFound) {
			return nil, fmt.Errorf("get archived execution: %w", herr)
		}
	}
	return nil, fmt.Errorf("%w: execution %s", ErrNotFound, executionID)
}

// CancelExecution cancels an in-flight execution. It reports whether this
// call performed the cancellation.
func (s *Service) CancelExecution(executionID string) bool {
	ok := s.executor.Cancel(executionID)
	if ok {
		s.logger.Info("execution cancelled", "execution_id", executionID)
	}
	return ok
}

// SubscribeExecution streams status events for an execution.
func (s *Service) SubscribeExecution(executionID string) (<-chan engine.Event, func()) {
	return s.executor.Broker().Subscribe(executionID)
}

// ListExecutions pages through archived executions. Without a history store
// the result is empty.
func (s *Service) ListExecutions(ctx context.Context, f store.ExecutionFilter) ([]*model.SkillExecution, int, error) {
	if s.history == nil {
		return nil, 0, nil
	}
	return s.history.ListExecutions(ctx, f)
}

// ExecutionSummary aggregates the archive. Without a history store the
// summary is empty.
func (s *Service) ExecutionSummary(ctx context.Context) (*store.ExecutionSummary, error) {
	if s.history == nil {
		return &store.ExecutionSummary{CountByStatus: map[string]int{}, CountBySkill: map[string]int{}}, nil
	}
	return s.history.GetExecutionSummary(ctx)
}

// GetSkillStats returns statistics for one skill.
func (s *Service) GetSkillStats(skillID string) (*model.SkillMetric, error) {
	skill, err := s.GetSkill(skillID)
	if err != nil {
		return nil, err
	}
	return s.monitor.GetExecutionStats(skill), nil
}

// GetAllStats returns statistics for every skill with recorded activity.
func (s *Service) GetAllStats() []*model.SkillMetric {
	return s.monitor.GetAllExecutionStats()
}

// ResetSkillStats zeroes the statistics of one skill.
func (s *Service) ResetSkillStats(skillID string) error {
	skill, err := s.GetSkill(skillID)
	if err != nil {
		return err
	}
	s.monitor.ResetStats(skill)
	return nil
}

// ResetAllStats zeroes every skill's statistics.
func (s *Service) ResetAllStats() {
	s.monitor.ResetAllStats()
}

// Shutdown drains the executor. See engine.Executor.Shutdown.
func (s *Service) Shutdown(grace time.Duration) {
	s.executor.Shutdown(grace)
}
