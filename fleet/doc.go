// Package fleet implements the discovery-assignment-mirroring protocol
// that coordinates task execution across a robot fleet.
//
// Two roles compose the protocol. The ExecutorAgent runs on every fleet
// member: it answers broadcast polls while free, accepts at most one
// direct assignment at a time, executes it through the engine
// collaborator, and reports status on its own channel. The
// DelegateProxy is embedded in a task graph on the delegating agent: it
// polls for a capable remote, commits to the first bidder, transfers
// the task definition, and mirrors the remote's reported status back to
// its caller.
//
// There is no central authority and no ordering guarantee on the bus;
// both roles tolerate duplicate and late messages, and ownership is
// unambiguous because a busy agent drops every new poll and assignment.
package fleet
