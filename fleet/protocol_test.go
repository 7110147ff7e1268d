package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juancams/behaviorfleets/engine"
	"github.com/Juancams/behaviorfleets/types"
)

// TestProtocol_DelegationRoundTrip walks the whole protocol with a hand
// on every message: a fleet of two agents serving different missions, a
// proxy delegating "m1", and a task that runs two cycles before
// succeeding. The proxy evaluates RUNNING three times (one discovery
// round-trip, two running reports) and then SUCCESS.
func TestProtocol_DelegationRoundTrip(t *testing.T) {
	tb := newTestbed(t)
	tb.watch(PollChannel)
	tb.watch(AssignmentChannel("robot-a"))
	tb.watch(AssignmentChannel("robot-b"))
	tb.watch(StatusChannel("robot-a"))

	engA := &fakeEngine{script: []engine.Status{engine.StatusRunning, engine.StatusRunning, engine.StatusSuccess}}
	agentA := newTestExecutor(t, tb, engA) // serves m1
	engB := &fakeEngine{}
	agentB := newTestExecutor(t, tb, engB, func(c *ExecutorConfig) {
		c.AgentID = "robot-b"
		c.MissionID = "m2"
	})

	proxy := newTestProxy(t, tb)

	// Discovery: the first evaluation polls; only the m1 agent answers.
	assert.Equal(t, types.StatusRunning, proxy.Evaluate())
	poll := tb.next(PollChannel)
	require.NotNil(t, poll)

	agentA.OnPoll(poll)
	agentB.OnPoll(poll)

	bid := tb.next(PollChannel)
	require.NotNil(t, bid)
	assert.Equal(t, "robot-a", bid.SenderID, "only the matching agent bids")
	assert.Nil(t, tb.next(PollChannel))

	// Commit and transfer.
	proxy.OnBid(bid)
	assert.Equal(t, "robot-a", proxy.RemoteID())

	cmd := tb.next(AssignmentChannel("robot-a"))
	require.NotNil(t, cmd)
	assert.Nil(t, tb.next(AssignmentChannel("robot-b")))

	agentA.OnAssignment(cmd)
	require.True(t, agentA.Busy())
	require.Len(t, engA.builtWith, 1)
	assert.Equal(t, proxy.config.Task, engA.builtWith[0], "definition arrives unmutated")

	// Execution mirrored tick by tick.
	want := []types.MissionStatus{types.StatusRunning, types.StatusRunning, types.StatusSuccess}
	for i, expected := range want {
		agentA.Tick()
		status := tb.next(StatusChannel("robot-a"))
		require.NotNil(t, status, "tick %d", i)
		proxy.OnRemoteStatus(status)

		if expected.Terminal() {
			assert.Equal(t, expected, proxy.Evaluate())
		} else {
			assert.Equal(t, types.StatusRunning, proxy.Evaluate())
		}
	}

	assert.False(t, agentA.Busy())
	assert.False(t, agentB.Busy())
	assert.Equal(t, 0, engB.totalBuilt)

	// The terminal result stays put until the embedding graph resets.
	assert.Equal(t, types.StatusSuccess, proxy.Evaluate())
}

// TestProtocol_LostPollRecovered exercises the loss-compensation path:
// the first poll never reaches the agent, the repeated one does.
func TestProtocol_LostPollRecovered(t *testing.T) {
	tb := newTestbed(t)
	tb.watch(PollChannel)

	agent := newTestExecutor(t, tb, &fakeEngine{script: []engine.Status{engine.StatusSuccess}})
	proxy := newTestProxy(t, tb)

	require.Equal(t, types.StatusRunning, proxy.Evaluate())
	require.NotNil(t, tb.next(PollChannel)) // dropped on the floor

	require.Equal(t, types.StatusRunning, proxy.Evaluate())
	poll := tb.next(PollChannel)
	require.NotNil(t, poll)

	agent.OnPoll(poll)
	bid := tb.next(PollChannel)
	require.NotNil(t, bid)

	proxy.OnBid(bid)
	assert.Equal(t, "robot-a", proxy.RemoteID())
}

// TestProtocol_DuplicateDelivery replays every message twice; the
// at-least-once bus makes duplicates routine and they must be harmless.
func TestProtocol_DuplicateDelivery(t *testing.T) {
	tb := newTestbed(t)
	tb.watch(PollChannel)
	tb.watch(AssignmentChannel("robot-a"))
	tb.watch(StatusChannel("robot-a"))

	eng := &fakeEngine{script: []engine.Status{engine.StatusSuccess}}
	agent := newTestExecutor(t, tb, eng)
	proxy := newTestProxy(t, tb)

	require.Equal(t, types.StatusRunning, proxy.Evaluate())
	poll := tb.next(PollChannel)

	agent.OnPoll(poll)
	bid := tb.next(PollChannel)

	proxy.OnBid(bid)
	proxy.OnBid(bid.Clone())

	cmd := tb.next(AssignmentChannel("robot-a"))
	require.NotNil(t, cmd)
	require.Nil(t, tb.next(AssignmentChannel("robot-a")))

	agent.OnAssignment(cmd)
	agent.OnAssignment(cmd.Clone())
	assert.Equal(t, 1, eng.totalBuilt, "duplicate assignment while busy is dropped")

	agent.Tick()
	status := tb.next(StatusChannel("robot-a"))
	require.Equal(t, types.StatusSuccess, status.Status)

	proxy.OnRemoteStatus(status)
	proxy.OnRemoteStatus(status.Clone())
	assert.Equal(t, types.StatusSuccess, proxy.Evaluate())
}
