package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

// Defaults applied to zero Config fields.
const (
	DefaultTimeout            = 30 * time.Second
	DefaultMaxConcurrent      = 10
	DefaultCoreWorkers        = 5
	DefaultRetainedExecutions = 10000
	DefaultRetention          = time.Hour
	DefaultShutdownGrace      = 60 * time.Second
)

const tracerName = "github.com/Feaskye/SkyeAI-sub001/internal/engine"

// ErrNotFound is returned by Status for unknown or expired execution ids.
var ErrNotFound = errors.New("execution not found")

// Body is the unit of work behind a skill. It receives a context that is
// cancelled on Cancel or forced shutdown and returns the output map. A
// returned error marks the execution FAILED.
type Body func(ctx context.Context, params map[string]any) (map[string]any, error)

// CompletionHook observes every execution exactly once, after its terminal
// status is decided and before waiters are released.
type CompletionHook func(rec *model.SkillExecution)

// SubmitHook observes every execution accepted by the executor, once, with
// its PENDING record. Rejected submissions are not reported.
type SubmitHook func(rec *model.SkillExecution)

// Config sizes the executor.
type Config struct {
	CoreWorkers        int
	MaxConcurrent      int
	QueueSize          int
	Timeout            time.Duration
	RetainedExecutions int
	Retention          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.CoreWorkers <= 0 {
		c.CoreWorkers = min(DefaultCoreWorkers, c.MaxConcurrent)
	}
	if c.RetainedExecutions <= 0 {
		c.RetainedExecutions = DefaultRetainedExecutions
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	return c
}

// Option configures optional executor collaborators.
type Option func(*Executor)

// WithCompletionHook registers hooks run for every finished execution.
func WithCompletionHook(hooks ...CompletionHook) Option {
	return func(e *Executor) { e.hooks = append(e.hooks, hooks...) }
}

// WithSubmitHook registers hooks run for every accepted submission.
func WithSubmitHook(hooks ...SubmitHook) Option {
	return func(e *Executor) { e.submitHooks = append(e.submitHooks, hooks...) }
}

// WithTracerProvider sets the provider used for body spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer(tracerName) }
}

// Executor runs skill bodies under bounded concurrency with caller-side
// deadlines and cancellation.
type Executor struct {
	cfg    Config
	pool   *Pool
	logger *slog.Logger
	tracer trace.Tracer
	broker *EventBroker
	hooks  []CompletionHook

	submitHooks []SubmitHook

	inflight sync.Map // execution id → *task
	running  sync.Map // execution id → *task, while its body runs
	finished *expirable.LRU[string, *model.SkillExecution]

	shutdownOnce sync.Once
	now          func() time.Time
}

// NewExecutor creates an executor and starts its core workers.
func NewExecutor(cfg Config, logger *slog.Logger, opts ...Option) *Executor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		broker:   NewEventBroker(cfg.RetainedExecutions, cfg.Retention),
		finished: expirable.NewLRU[string, *model.SkillExecution](cfg.RetainedExecutions, nil, cfg.Retention),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = NewPool(cfg.CoreWorkers, cfg.MaxConcurrent, cfg.QueueSize, logger)
	return e
}

// Broker returns the executor's event broker for SSE subscription.
func (e *Executor) Broker() *EventBroker {
	return e.broker
}

// Timeout returns the configured synchronous wait bound.
func (e *Executor) Timeout() time.Duration {
	return e.cfg.Timeout
}

// Execute submits the body and blocks until it finishes, the configured
// timeout elapses or ctx is done, whichever comes first. Execution failures
// are reported through the returned record's status; the error is non-nil
// only when the submission itself was rejected.
func (e *Executor) Execute(ctx context.Context, skill *model.Skill, params map[string]any, body Body) (*model.SkillExecution, error) {
	t, err := e.submit(ctx, skill, params, body)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(e.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-t.done:
	case <-timer.C:
		if e.finish(t, model.StatusTimeout, "", fmt.Sprintf("execution timed out after %s", e.cfg.Timeout)) {
			e.logger.Warn("execution timed out", "execution_id", t.id(), "skill", t.base.Skill.Key())
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.finish(t, model.StatusTimeout, "", "execution timed out: caller deadline exceeded")
		} else {
			e.finish(t, model.StatusError, "", fmt.Sprintf("execution interrupted: %v", ctx.Err()))
		}
	}

	// Another party may have won the terminal transition; its record is
	// published when done closes.
	<-t.done
	return t.record.Clone(), nil
}

// ExecuteAsync submits the body and returns the execution id immediately.
func (e *Executor) ExecuteAsync(ctx context.Context, skill *model.Skill, params map[string]any, body Body) (string, error) {
	t, err := e.submit(ctx, skill, params, body)
	if err != nil {
		return "", err
	}
	return t.id(), nil
}

// Status returns the current view of an execution: a synthetic RUNNING
// record while in flight, the terminal record once finished.
func (e *Executor) Status(id string) (*model.SkillExecution, error) {
	if v, ok := e.inflight.Load(id); ok {
		return v.(*task).snapshot(), nil
	}
	if rec, ok := e.finished.Get(id); ok {
		return rec.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Cancel marks an in-flight execution CANCELLED and cancels its body
// context. It returns true only for the call that performed the transition.
func (e *Executor) Cancel(id string) bool {
	v, ok := e.inflight.Load(id)
	if !ok {
		return false
	}
	return e.finish(v.(*task), model.StatusCancelled, "", "execution cancelled")
}

// InFlight returns the number of executions without a terminal status.
func (e *Executor) InFlight() int {
	n := 0
	e.inflight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Shutdown stops accepting work and waits up to grace for queued and running
// bodies. Executions still unfinished afterwards are marked CANCELLED, and
// every body still running, including ones already recorded as TIMEOUT, has
// its context cancelled. Shutdown is idempotent.
func (e *Executor) Shutdown(grace time.Duration) {
	e.shutdownOnce.Do(func() {
		e.pool.Close()
		if e.pool.Wait(grace) {
			e.logger.Info("executor drained")
			return
		}

		forced := 0
		e.inflight.Range(func(_, v any) bool {
			if e.finish(v.(*task), model.StatusCancelled, "", "executor shut down before completion") {
				forced++
			}
			return true
		})
		interrupted := 0
		e.running.Range(func(_, v any) bool {
			v.(*task).cancel()
			interrupted++
			return true
		})
		e.logger.Warn("executor shutdown grace exceeded", "grace", grace, "cancelled", forced, "interrupted", interrupted)
	})
}

func (e *Executor) submit(ctx context.Context, skill *model.Skill, params map[string]any, body Body) (*task, error) {
	if skill == nil {
		return nil, errors.New("nil skill")
	}
	if params == nil {
		params = map[string]any{}
	}

	base := &model.SkillExecution{
		ExecutionID: model.NewID(),
		Skill:       skill.Clone(),
		Status:      model.StatusPending,
		StartTime:   e.now(),
	}
	input, marshalErr := json.Marshal(params)
	if marshalErr == nil {
		base.InputParameters = string(input)
	}

	// The body outlives the caller for async submissions, so only values
	// (trace context) are inherited.
	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{
		base:   base,
		params: params,
		body:   body,
		ctx:    tctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	e.inflight.Store(t.id(), t)
	e.broker.Publish(Event{ExecutionID: t.id(), Status: model.StatusPending, Time: base.StartTime})

	if marshalErr != nil {
		cancel()
		e.accepted(base)
		e.finish(t, model.StatusError, "", fmt.Sprintf("failed to serialize input parameters: %v", marshalErr))
		return t, nil
	}

	if err := e.pool.Submit(func() { e.run(t) }); err != nil {
		cancel()
		e.inflight.Delete(t.id())
		e.broker.Close(t.id())
		return nil, err
	}
	e.accepted(base)
	return t, nil
}

func (e *Executor) accepted(base *model.SkillExecution) {
	for _, hook := range e.submitHooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("submit hook panicked", "execution_id", base.ExecutionID, "panic", r)
				}
			}()
			hook(base.Clone())
		}()
	}
}

// run executes the task body on a pool worker.
func (e *Executor) run(t *task) {
	defer t.cancel()

	if !t.start() {
		// Terminal status decided while queued.
		return
	}
	e.running.Store(t.id(), t)
	defer e.running.Delete(t.id())
	e.broker.Publish(Event{ExecutionID: t.id(), Status: model.StatusRunning, Time: e.now()})

	ctx, span := e.tracer.Start(t.ctx, "skill.execute", trace.WithAttributes(
		attribute.String("skill.name", t.base.Skill.Name),
		attribute.String("skill.version", t.base.Skill.Version),
		attribute.String("execution.id", t.id()),
	))
	defer span.End()

	out, err := e.invoke(ctx, t)

	var won bool
	var status model.ExecutionStatus
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status = model.StatusFailed
		won = e.finish(t, status, "", err.Error())
	default:
		if out == nil {
			out = map[string]any{}
		}
		data, mErr := json.Marshal(out)
		if mErr != nil {
			span.SetStatus(codes.Error, mErr.Error())
			status = model.StatusError
			won = e.finish(t, status, "", fmt.Sprintf("failed to serialize result: %v", mErr))
			break
		}
		status = model.StatusSuccess
		won = e.finish(t, status, string(data), "")
	}

	span.SetAttributes(attribute.String("execution.status", string(status)))
	if !won {
		e.logger.DebugContext(ctx, "late result discarded", "execution_id", t.id(), "status", status)
	}
}

// invoke calls the body, converting a panic into an error.
func (e *Executor) invoke(ctx context.Context, t *task) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "skill body panicked", "execution_id", t.id(), "panic", r)
			out, err = nil, fmt.Errorf("skill panicked: %v", r)
		}
	}()
	if t.body == nil {
		return nil, errors.New("no handler bound for skill")
	}
	return t.body(ctx, t.params)
}

// finish performs the terminal transition. Only the winning caller builds
// the record, runs hooks and releases waiters; it returns false otherwise.
func (e *Executor) finish(t *task, status model.ExecutionStatus, output, errMsg string) bool {
	if !t.claim(status) {
		return false
	}
	if status == model.StatusCancelled {
		t.cancel()
	}

	rec := t.base.Clone()
	rec.Status = status
	rec.OutputResult = output
	rec.ErrorMessage = errMsg
	rec.Finish(e.now())
	t.record = rec

	e.finished.Add(t.id(), rec)
	for _, hook := range e.hooks {
		e.runHook(hook, rec)
	}

	e.broker.Publish(Event{ExecutionID: t.id(), Status: status, Time: *rec.EndTime, ErrorMessage: errMsg})
	e.broker.Close(t.id())

	close(t.done)
	e.inflight.Delete(t.id())
	return true
}

func (e *Executor) runHook(hook CompletionHook, rec *model.SkillExecution) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("completion hook panicked", "execution_id", rec.ExecutionID, "panic", r)
		}
	}()
	hook(rec.Clone())
}
