package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

type promMetrics struct {
	started  *prometheus.CounterVec
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	pm := &promMetrics{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillengine_skill_executions_started_total",
				Help: "Total number of skill executions submitted.",
			},
			[]string{"skill", "version"},
		),
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skillengine_skill_executions_total",
				Help: "Total number of finished skill executions by terminal status.",
			},
			[]string{"skill", "version", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skillengine_skill_execution_duration_seconds",
				Help:    "Skill execution duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"skill", "version"},
		),
	}
	reg.MustRegister(pm.started, pm.total, pm.duration)
	return pm
}

func (pm *promMetrics) observe(exec *model.SkillExecution) {
	name, version := exec.Skill.Name, exec.Skill.Version
	pm.total.WithLabelValues(name, version, string(exec.Status)).Inc()
	if exec.ExecutionTimeMs != nil {
		pm.duration.WithLabelValues(name, version).Observe(float64(*exec.ExecutionTimeMs) / 1000)
	}
}
