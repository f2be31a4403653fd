// Package monitor aggregates per-skill execution statistics.
//
// Counters live in a sync.Map keyed by "name:version" and are updated with
// atomics, so snapshot reads never block recording goroutines.
package monitor

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

// Error categories derived from execution error messages.
const (
	ErrorTimeout          = "timeout"
	ErrorInvalidInput     = "invalid_input"
	ErrorNotFound         = "not_found"
	ErrorPermissionDenied = "permission_denied"
	ErrorConnection       = "connection_error"
	ErrorOther            = "other"
	ErrorUnknown          = "unknown"
)

type counters struct {
	name    string
	version string

	started   atomic.Int64
	total     atomic.Int64
	success   atomic.Int64
	failure   atomic.Int64
	timeout   atomic.Int64
	cancelled atomic.Int64
	last      atomic.Int64
	latency   atomic.Pointer[latency]

	errors sync.Map // category → *atomic.Int64
}

// latency is an immutable (count, sum) pair swapped as a unit so the mean
// never mixes samples from different updates.
type latency struct {
	n     int64
	sumMs int64
}

func (l *latency) mean() float64 {
	if l == nil || l.n == 0 {
		return 0
	}
	return float64(l.sumMs) / float64(l.n)
}

// addLatency folds ms into the running mean without locking.
func (c *counters) addLatency(ms int64) {
	c.last.Store(ms)
	for {
		old := c.latency.Load()
		next := &latency{n: 1, sumMs: ms}
		if old != nil {
			next.n += old.n
			next.sumMs += old.sumMs
		}
		if c.latency.CompareAndSwap(old, next) {
			return
		}
	}
}

func (c *counters) addError(category string) {
	v, _ := c.errors.LoadOrStore(category, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (c *counters) reset() {
	c.started.Store(0)
	c.total.Store(0)
	c.success.Store(0)
	c.failure.Store(0)
	c.timeout.Store(0)
	c.cancelled.Store(0)
	c.last.Store(0)
	c.latency.Store(nil)
	c.errors.Range(func(k, _ any) bool {
		c.errors.Delete(k)
		return true
	})
}

func (c *counters) snapshot() *model.SkillMetric {
	m := &model.SkillMetric{
		SkillName:              c.name,
		SkillVersion:           c.version,
		Invocations:            c.started.Load(),
		TotalExecutions:        c.total.Load(),
		SuccessfulExecutions:   c.success.Load(),
		FailedExecutions:       c.failure.Load(),
		TimedOutExecutions:     c.timeout.Load(),
		CancelledExecutions:    c.cancelled.Load(),
		AverageExecutionTimeMs: c.latency.Load().mean(),
		LastExecutionTimeMs:    c.last.Load(),
		Errors:                 map[string]int64{},
	}
	if m.TotalExecutions > 0 {
		m.SuccessRate = float64(m.SuccessfulExecutions) / float64(m.TotalExecutions)
	}
	c.errors.Range(func(k, v any) bool {
		m.Errors[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return m
}

// Monitor records execution starts and completions per skill.
type Monitor struct {
	stats   sync.Map // skill key → *counters
	logger  *slog.Logger
	metrics *promMetrics
}

// New creates a monitor. When reg is non-nil, execution counters are also
// exported as Prometheus metrics registered with it.
func New(logger *slog.Logger, reg prometheus.Registerer) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{logger: logger}
	if reg != nil {
		m.metrics = newPromMetrics(reg)
	}
	return m
}

func (m *Monitor) counters(name, version string) *counters {
	if version == "" {
		version = model.DefaultVersion
	}
	key := model.SkillKey(name, version)
	if v, ok := m.stats.Load(key); ok {
		return v.(*counters)
	}
	v, _ := m.stats.LoadOrStore(key, &counters{name: name, version: version})
	return v.(*counters)
}

// RecordExecutionStart counts an execution accepted for running.
func (m *Monitor) RecordExecutionStart(skill *model.Skill) {
	if skill == nil {
		return
	}
	m.counters(skill.Name, skill.Version).started.Add(1)
	if m.metrics != nil {
		m.metrics.started.WithLabelValues(skill.Name, skill.Version).Inc()
	}
	m.logger.Debug("skill execution started", "skill", skill.Key())
}

// RecordExecutionComplete folds a terminal execution into the statistics.
// Non-terminal records are ignored.
func (m *Monitor) RecordExecutionComplete(exec *model.SkillExecution) {
	if exec == nil || exec.Skill == nil || !exec.Status.Terminal() {
		return
	}
	c := m.counters(exec.Skill.Name, exec.Skill.Version)
	c.total.Add(1)

	switch exec.Status {
	case model.StatusSuccess:
		c.success.Add(1)
	case model.StatusCancelled:
		c.cancelled.Add(1)
	default:
		c.failure.Add(1)
		if exec.Status == model.StatusTimeout {
			c.timeout.Add(1)
		}
		c.addError(ErrorCategory(exec.ErrorMessage))
	}

	if exec.ExecutionTimeMs != nil {
		c.addLatency(*exec.ExecutionTimeMs)
	}

	if m.metrics != nil {
		m.metrics.observe(exec)
	}
	m.logger.Debug("skill execution completed", "skill", exec.Skill.Key(), "status", exec.Status)
}

// GetExecutionStats returns a snapshot for one skill. Skills with no
// recorded executions yield zeroed statistics.
func (m *Monitor) GetExecutionStats(skill *model.Skill) *model.SkillMetric {
	version := skill.Version
	if version == "" {
		version = model.DefaultVersion
	}
	if v, ok := m.stats.Load(model.SkillKey(skill.Name, version)); ok {
		return v.(*counters).snapshot()
	}
	return &model.SkillMetric{SkillName: skill.Name, SkillVersion: version, Errors: map[string]int64{}}
}

// GetAllExecutionStats returns snapshots for every skill with recorded
// activity, sorted by name and version.
func (m *Monitor) GetAllExecutionStats() []*model.SkillMetric {
	var out []*model.SkillMetric
	m.stats.Range(func(_, v any) bool {
		out = append(out, v.(*counters).snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].SkillName != out[j].SkillName {
			return out[i].SkillName < out[j].SkillName
		}
		return out[i].SkillVersion < out[j].SkillVersion
	})
	return out
}

// Started returns the number of recorded starts for a skill.
func (m *Monitor) Started(skill *model.Skill) int64 {
	if v, ok := m.stats.Load(skill.Key()); ok {
		return v.(*counters).started.Load()
	}
	return 0
}

// ResetStats zeroes the counters of one skill.
func (m *Monitor) ResetStats(skill *model.Skill) {
	if v, ok := m.stats.Load(skill.Key()); ok {
		v.(*counters).reset()
	}
	m.logger.Info("skill stats reset", "skill", skill.Key())
}

// ResetAllStats zeroes the counters of every skill.
func (m *Monitor) ResetAllStats() {
	m.stats.Range(func(_, v any) bool {
		v.(*counters).reset()
		return true
	})
	m.logger.Info("all skill stats reset")
}

// ErrorCategory classifies an error message.
func ErrorCategory(msg string) string {
	if msg == "" {
		return ErrorUnknown
	}
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrorTimeout
	case strings.Contains(msg, "invalid"):
		return ErrorInvalidInput
	case strings.Contains(msg, "not found"):
		return ErrorNotFound
	case strings.Contains(msg, "permission"):
		return ErrorPermissionDenied
	case strings.Contains(msg, "connection"):
		return ErrorConnection
	default:
		return ErrorOther
	}
}
