package engine

import (
	"context"
	"sync/atomic"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

// Task state word values.
const (
	statePending uint32 = iota
	stateRunning
	stateFinished
)

// task is the in-flight bookkeeping for one execution.
type task struct {
	base   *model.SkillExecution // PENDING snapshot, never mutated after submit
	params map[string]any
	body   Body

	state  atomic.Uint32
	ctx    context.Context
	cancel context.CancelFunc

	// record is written once by the winner of the terminal transition,
	// before done is closed.
	record *model.SkillExecution
	done   chan struct{}
}

func (t *task) id() string { return t.base.ExecutionID }

// start moves the task from PENDING to RUNNING. It fails if a terminal
// status was already decided.
func (t *task) start() bool {
	return t.state.CompareAndSwap(statePending, stateRunning)
}

// claim attempts the transition to a terminal status. Exactly one claim
// succeeds per task.
func (t *task) claim(to model.ExecutionStatus) bool {
	for {
		cur := t.state.Load()
		from := model.StatusPending
		switch cur {
		case stateRunning:
			from = model.StatusRunning
		case stateFinished:
			return false
		}
		if !model.ValidTransition(from, to) {
			return false
		}
		if t.state.CompareAndSwap(cur, stateFinished) {
			return true
		}
	}
}

func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// snapshot returns the externally visible record: the terminal record once
// done, a synthetic RUNNING record otherwise.
func (t *task) snapshot() *model.SkillExecution {
	if t.finished() {
		return t.record.Clone()
	}
	rec := t.base.Clone()
	rec.Status = model.StatusRunning
	return rec
}
