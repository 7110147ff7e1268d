package types

import (
	"encoding/json"
	"time"
)

// MessageKind discriminates the three message shapes that travel over the
// mission channels.
type MessageKind string

const (
	// KindCommand is either a task assignment (non-empty Task) or a
	// broadcast poll (empty Task, empty TargetID).
	KindCommand MessageKind = "command"
	// KindRequest is an agent's bid in answer to a poll. Its Status is
	// always StatusIdle, meaning "I am free".
	KindRequest MessageKind = "request"
	// KindStatus is a progress report from an executing agent.
	KindStatus MessageKind = "status"
)

// MissionStatus is the execution status reported for a mission.
type MissionStatus string

const (
	StatusIdle    MissionStatus = "idle"
	StatusRunning MissionStatus = "running"
	StatusSuccess MissionStatus = "success"
	StatusFailure MissionStatus = "failure"
)

// Terminal reports whether the status ends a task instance.
func (s MissionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// TaskDefinition is the opaque payload transferred in an assignment: a
// serialized task-graph description plus the capability plugins required
// to build it. The coordination layer never inspects Tree; only the
// execution engine parses it.
type TaskDefinition struct {
	Tree    string   `json:"tree"`
	Plugins []string `json:"plugins,omitempty"`
}

// Empty reports whether the definition carries no tree. A COMMAND with an
// empty definition is a poll, not an assignment.
func (d TaskDefinition) Empty() bool {
	return d.Tree == ""
}

// Clone returns a deep copy of the definition.
func (d TaskDefinition) Clone() TaskDefinition {
	out := TaskDefinition{Tree: d.Tree}
	if d.Plugins != nil {
		out.Plugins = make([]string, len(d.Plugins))
		copy(out.Plugins, d.Plugins)
	}
	return out
}

// MissionMessage is the single wire entity exchanged on all mission
// channels: polls, bids, assignments, and status reports.
type MissionMessage struct {
	Kind      MessageKind   `json:"kind"`
	SenderID  string        `json:"sender_id,omitempty"`
	TargetID  string        `json:"target_id,omitempty"`
	MissionID string        `json:"mission_id,omitempty"`
	Task      TaskDefinition `json:"task"`
	Status    MissionStatus `json:"status,omitempty"`
	Timestamp time.Time     `json:"timestamp,omitempty"`
}

// NewPoll creates a broadcast poll for the given mission type. An empty
// targetID leaves the poll open to any agent.
func NewPoll(senderID, targetID, missionID string) *MissionMessage {
	return &MissionMessage{
		Kind:      KindCommand,
		SenderID:  senderID,
		TargetID:  targetID,
		MissionID: missionID,
		Timestamp: time.Now(),
	}
}

// NewBid creates an agent's answer to a poll, declaring availability.
func NewBid(senderID, missionID string) *MissionMessage {
	return &MissionMessage{
		Kind:      KindRequest,
		SenderID:  senderID,
		MissionID: missionID,
		Status:    StatusIdle,
		Timestamp: time.Now(),
	}
}

// NewAssignment creates a direct task assignment addressed to one agent.
func NewAssignment(senderID, targetID, missionID string, task TaskDefinition) *MissionMessage {
	return &MissionMessage{
		Kind:      KindCommand,
		SenderID:  senderID,
		TargetID:  targetID,
		MissionID: missionID,
		Task:      task.Clone(),
		Timestamp: time.Now(),
	}
}

// NewStatus creates a status report from an executing agent.
func NewStatus(senderID, missionID string, status MissionStatus) *MissionMessage {
	return &MissionMessage{
		Kind:      KindStatus,
		SenderID:  senderID,
		MissionID: missionID,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// IsPoll reports whether the message is a broadcast poll: a COMMAND with
// no task payload.
func (m *MissionMessage) IsPoll() bool {
	return m.Kind == KindCommand && m.Task.Empty()
}

// IsAssignment reports whether the message is a task assignment: a
// COMMAND addressed to a specific agent carrying a task payload.
func (m *MissionMessage) IsAssignment() bool {
	return m.Kind == KindCommand && m.TargetID != "" && !m.Task.Empty()
}

// Clone returns a deep copy of the message. The bus delivers clones so
// that no two agents share a mutable payload.
func (m *MissionMessage) Clone() *MissionMessage {
	if m == nil {
		return nil
	}
	out := *m
	out.Task = m.Task.Clone()
	return &out
}

// Encode serializes the message to its JSON wire form.
func (m *MissionMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMissionMessage parses a message from its JSON wire form.
func DecodeMissionMessage(data []byte) (*MissionMessage, error) {
	var m MissionMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, NewError(ErrMalformedMessage, "failed to decode mission message").WithCause(err)
	}
	return &m, nil
}
