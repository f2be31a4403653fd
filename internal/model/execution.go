package model

import (
	"slices"
	"time"
)

// ExecutionStatus is the lifecycle state of a single skill invocation.
type ExecutionStatus string

// Execution status constants.
const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusSuccess   ExecutionStatus = "SUCCESS"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusTimeout   ExecutionStatus = "TIMEOUT"
	StatusError     ExecutionStatus = "ERROR"
	StatusCancelled ExecutionStatus = "CANCELLED"
)

// AllStatuses lists every execution status in lifecycle order.
var AllStatuses = []ExecutionStatus{
	StatusPending, StatusRunning, StatusSuccess, StatusFailed,
	StatusTimeout, StatusError, StatusCancelled,
}

// validTransitions maps each status to the set of statuses it may transition to.
// Terminal statuses have no entry.
var validTransitions = map[ExecutionStatus]map[ExecutionStatus]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusTimeout:   true,
		StatusError:     true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusSuccess:   true,
		StatusFailed:    true,
		StatusTimeout:   true,
		StatusError:     true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to ExecutionStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	return slices.Contains(AllStatuses, s)
}

// Terminal reports whether no further transition is possible from s.
func (s ExecutionStatus) Terminal() bool {
	_, ok := validTransitions[s]
	return !ok
}

// SkillExecution records one invocation of a skill and its outcome.
type SkillExecution struct {
	ExecutionID     string          `json:"executionId"`
	Skill           *Skill          `json:"skill,omitempty"`
	Status          ExecutionStatus `json:"status"`
	InputParameters string          `json:"inputParameters,omitempty"`
	OutputResult    string          `json:"outputResult,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         *time.Time      `json:"endTime,omitempty"`
	ExecutionTimeMs *int64          `json:"executionTimeMs,omitempty"`
}

// Finish stamps the end time and computes the elapsed milliseconds.
func (e *SkillExecution) Finish(end time.Time) {
	e.EndTime = &end
	ms := end.Sub(e.StartTime).Milliseconds()
	e.ExecutionTimeMs = &ms
}

// Clone returns a copy that shares no mutable pointers with e.
func (e *SkillExecution) Clone() *SkillExecution {
	c := *e
	if e.Skill != nil {
		c.Skill = e.Skill.Clone()
	}
	if e.EndTime != nil {
		end := *e.EndTime
		c.EndTime = &end
	}
	if e.ExecutionTimeMs != nil {
		ms := *e.ExecutionTimeMs
		c.ExecutionTimeMs = &ms
	}
	return &c
}
