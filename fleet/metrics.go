package fleet

import "time"

// Metrics is the observation hook of the coordination layer. A nil
// Metrics disables collection. The internal Prometheus collector
// implements this interface.
type Metrics interface {
	RecordBid(agentID, missionID string)
	RecordAssignmentAccepted(agentID, missionID string)
	RecordAssignmentDropped(agentID, reason string)
	RecordBuildFailure(agentID, code string)
	RecordStatusPublished(agentID, status string)
	RecordTickDuration(agentID string, d time.Duration)
	RecordPollPublished(missionID string)
	RecordDelegation(missionID, outcome string)
}
