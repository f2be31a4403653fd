package store

import (
	"context"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

// ExecutionFilter narrows ListExecutions. Zero fields match everything.
type ExecutionFilter struct {
	SkillName string
	Status    model.ExecutionStatus
	Limit     int
	Offset    int
}

// ExecutionSummary holds aggregate statistics over archived executions.
type ExecutionSummary struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"countByStatus"`
	CountBySkill  map[string]int `json:"countBySkill"`
	AvgDurationMS float64        `json:"avgDurationMs"`
}

// Store archives terminal skill executions. It is an audit trail, not a
// recovery log: in-flight executions are never written.
type Store interface {
	SaveExecution(ctx context.Context, rec *model.SkillExecution) error
	GetExecution(ctx context.Context, id string) (*model.SkillExecution, error)
	ListExecutions(ctx context.Context, f ExecutionFilter) ([]*model.SkillExecution, int, error)
	GetExecutionSummary(ctx context.Context) (*ExecutionSummary, error)
	Close() error
}
