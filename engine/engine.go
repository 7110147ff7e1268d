// Package engine defines the execution-engine boundary consumed by the
// fleet coordination layer. The engine owns all task-graph semantics and
// capability-plugin loading; the coordination layer only builds a task
// from an opaque definition and steps it until a terminal status.
package engine

import (
	"github.com/Juancams/behaviorfleets/types"
)

// Status is the tri-state result of stepping a task one cycle.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// MissionStatus maps a step result onto the wire status enum.
func (s Status) MissionStatus() types.MissionStatus {
	switch s {
	case StatusSuccess:
		return types.StatusSuccess
	case StatusFailure:
		return types.StatusFailure
	default:
		return types.StatusRunning
	}
}

// TaskHandle is one built task instance. A handle is owned by a single
// agent and is never shared; Tick advances the task one step.
type TaskHandle interface {
	// Tick advances the task one step and reports its status.
	Tick() Status

	// Halt releases the task instance. After Halt the handle must not
	// be ticked again.
	Halt()
}

// Engine builds task instances from opaque definitions. Build returns a
// *types.Error with code MALFORMED_TASK_DEFINITION or MISSING_CAPABILITY
// when the definition cannot be built; build failures are non-fatal to
// the caller.
type Engine interface {
	Build(def types.TaskDefinition) (TaskHandle, error)
}
