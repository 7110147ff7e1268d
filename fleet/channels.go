package fleet

// PollChannel is the broadcast channel shared by the whole fleet: polls
// (COMMAND) travel on it from proxies to agents, bids (REQUEST) travel
// back on the same channel.
const PollChannel = "mission/poll"

// AssignmentChannel returns the direct assignment channel of one agent.
func AssignmentChannel(agentID string) string {
	return "mission/" + agentID + "/command"
}

// StatusChannel returns the status report channel of one agent.
func StatusChannel(agentID string) string {
	return "mission/" + agentID + "/status"
}
