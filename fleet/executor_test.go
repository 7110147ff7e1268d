package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Juancams/behaviorfleets/engine"
	"github.com/Juancams/behaviorfleets/types"
)

func newTestExecutor(t *testing.T, tb *testbed, eng engine.Engine, mutate ...func(*ExecutorConfig)) *ExecutorAgent {
	t.Helper()
	config := DefaultExecutorConfig()
	config.AgentID = "robot-a"
	config.MissionID = "m1"
	config.HeartbeatInterval = 0 // NewExecutorAgent applies the default
	for _, m := range mutate {
		m(&config)
	}
	return NewExecutorAgent(config, tb.bus, eng, zap.NewNop())
}

func assignment(task types.TaskDefinition) *types.MissionMessage {
	return types.NewAssignment("proxy-1", "robot-a", "m1", task)
}

func TestExecutor_BidsWhenFree(t *testing.T) {
	tb := newTestbed(t)
	tb.watch(PollChannel)

	agent := newTestExecutor(t, tb, &fakeEngine{})
	agent.OnPoll(types.NewPoll("proxy-1", "", "m1"))

	bid := tb.next(PollChannel)
	require.NotNil(t, bid)
	assert.Equal(t, types.KindRequest, bid.Kind)
	assert.Equal(t, "robot-a", bid.SenderID)
	assert.Equal(t, "m1", bid.MissionID)
	assert.Equal(t, types.StatusIdle, bid.Status)
}

func TestExecutor_NoBidForOtherMission(t *testing.T) {
	tb := newTestbed(t)
	tb.watch(PollChannel)

	agent := newTestExecutor(t, tb, &fakeEngine{})
	agent.OnPoll(types.NewPoll("proxy-1", "", "m2"))

	assert.Nil(t, tb.next(PollChannel))
}

func TestExecutor_NoBidWhenBusy(t *testing.T) {
	tb := newTestbed(t)
	tb.watch(PollChannel)
	tb.watch(StatusChannel("robot-a"))

	eng := &fakeEngine{script: []engine.Status{engine.StatusRunning, engine.StatusSuccess}}
	agent := newTestExecutor(t, tb, eng)

	agent.OnAssignment(assignment(types.TaskDefinition{Tree: "{}"}))
	require.True(t, agent.Busy())

	agent.OnPoll(types.NewPoll("proxy-1", "", "m1"))
	assert.Nil(t, tb.next(PollChannel), "busy agents never bid")
}

func TestExecutor_TargetedPoll(t *testing.T) {
	tb := newTestbed(t)
	tb.watch(PollChannel)

	agent := newTestExecutor(t, tb, &fakeEngine{})

	agent.OnPoll(types.NewPoll("proxy-1", "robot-b", "m1"))
	assert.Nil(t, tb.next(PollChannel), "poll targeted at another agent must be ignored")

	agent.OnPoll(types.NewPoll("proxy-1", "robot-a", "m1"))
	assert.NotNil(t, tb.next(PollChannel))
}

func TestExecutor_AssignmentLifecycle(t *testing.T) {
	tb := newTestbed(t)
	statusCh := StatusChannel("robot-a")
	tb.watch(statusCh)

	eng := &fakeEngine{script: []engine.Status{engine.StatusRunning, engine.StatusRunning, engine.StatusSuccess}}
	agent := newTestExecutor(t, tb, eng)

	agent.OnAssignment(assignment(types.TaskDefinition{Tree: "{}", Plugins: []string{"move_to"}}))
	require.True(t, agent.Busy())

	wantStatuses := []types.MissionStatus{types.StatusRunning, types.StatusRunning, types.StatusSuccess}
	for _, want := range wantStatuses {
		agent.Tick()
		msg := tb.next(statusCh)
		require.NotNil(t, msg)
		assert.Equal(t, types.KindStatus, msg.Kind)
		assert.Equal(t, want, msg.Status)
		assert.Equal(t, "m1", msg.MissionID)
	}

	assert.False(t, agent.Busy(), "terminal status returns the agent to AVAILABLE")
	assert.Equal(t, 0, eng.liveTasks)
}

func TestExecutor_DropsAssignmentWhileBusy(t *testing.T) {
	tb := newTestbed(t)
	statusCh := StatusChannel("robot-a")
	tb.watch(statusCh)

	eng := &fakeEngine{script: []engine.Status{engine.StatusRunning, engine.StatusSuccess}}
	agent := newTestExecutor(t, tb, eng)

	agent.OnAssignment(assignment(types.TaskDefinition{Tree: "{}"}))
	require.True(t, agent.Busy())
	require.Equal(t, 1, eng.totalBuilt)

	// Second assignment, even for a different mission, is dropped with
	// no status response and the current task is unaffected.
	other := types.NewAssignment("proxy-2", "robot-a", "m9", types.TaskDefinition{Tree: "{}"})
	agent.OnAssignment(other)

	assert.Equal(t, 1, eng.totalBuilt, "no second build while busy")
	assert.Nil(t, tb.next(statusCh), "dropped assignment must not produce a status")

	agent.Tick()
	assert.Equal(t, types.StatusRunning, tb.next(statusCh).Status)
	agent.Tick()
	assert.Equal(t, types.StatusSuccess, tb.next(statusCh).Status)
}

func TestExecutor_BuildFailurePublishesIdle(t *testing.T) {
	tb := newTestbed(t)
	tb.watch(PollChannel)
	statusCh := StatusChannel("robot-a")
	tb.watch(statusCh)

	eng := &fakeEngine{buildErr: types.NewError(types.ErrMissingCapability, "plugin not registered: dock")}
	agent := newTestExecutor(t, tb, eng)

	agent.OnAssignment(assignment(types.TaskDefinition{Tree: "{}", Plugins: []string{"dock"}}))

	msg := tb.next(statusCh)
	require.NotNil(t, msg)
	assert.Equal(t, types.StatusIdle, msg.Status, "build failure is reported as one STATUS(IDLE)")
	assert.False(t, agent.Busy(), "build failure keeps the agent AVAILABLE")

	// The agent still answers subsequent polls.
	agent.OnPoll(types.NewPoll("proxy-1", "", "m1"))
	assert.NotNil(t, tb.next(PollChannel))
}

func TestExecutor_BuildReceivesExactDefinition(t *testing.T) {
	tb := newTestbed(t)

	eng := &fakeEngine{script: []engine.Status{engine.StatusSuccess}}
	agent := newTestExecutor(t, tb, eng)

	task := types.TaskDefinition{
		Tree:    `{"type":"action","plugin":"move_to","params":{"x":3.5}}`,
		Plugins: []string{"move_to"},
	}
	agent.OnAssignment(assignment(task))

	require.Len(t, eng.builtWith, 1)
	assert.Equal(t, task, eng.builtWith[0], "task definition must not be mutated in transit")
}

func TestExecutor_ConfiguredPluginFallback(t *testing.T) {
	tb := newTestbed(t)

	eng := &fakeEngine{script: []engine.Status{engine.StatusSuccess}}
	agent := newTestExecutor(t, tb, eng, func(c *ExecutorConfig) {
		c.Plugins = []string{"move_to", "recharge"}
	})

	// Assignment without plugins falls back to the configured list.
	agent.OnAssignment(assignment(types.TaskDefinition{Tree: "{}"}))

	require.Len(t, eng.builtWith, 1)
	assert.Equal(t, []string{"move_to", "recharge"}, eng.builtWith[0].Plugins)
}

func TestExecutor_IdleHeartbeat(t *testing.T) {
	tb := newTestbed(t)
	statusCh := StatusChannel("robot-a")
	tb.watch(statusCh)

	agent := newTestExecutor(t, tb, &fakeEngine{})

	agent.Tick()
	msg := tb.next(statusCh)
	require.NotNil(t, msg)
	assert.Equal(t, types.StatusIdle, msg.Status)

	// The heartbeat is throttled: an immediate second tick stays quiet.
	agent.Tick()
	assert.Nil(t, tb.next(statusCh))
}

func TestExecutor_NotAcceptingReportsFailure(t *testing.T) {
	tb := newTestbed(t)
	statusCh := StatusChannel("robot-a")
	tb.watch(statusCh)

	agent := newTestExecutor(t, tb, &fakeEngine{}, func(c *ExecutorConfig) {
		c.Accepting = false
	})

	// FAILURE is published every cycle while the agent cannot serve.
	agent.Tick()
	assert.Equal(t, types.StatusFailure, tb.next(statusCh).Status)
	agent.Tick()
	assert.Equal(t, types.StatusFailure, tb.next(statusCh).Status)

	// A poll while free flips the agent back to accepting.
	agent.OnPoll(types.NewPoll("proxy-1", "", "m1"))
	assert.True(t, agent.Accepting())
}

func TestExecutor_BuildFailureStopsAccepting(t *testing.T) {
	tb := newTestbed(t)
	statusCh := StatusChannel("robot-a")
	tb.watch(statusCh)

	eng := &fakeEngine{buildErr: types.NewError(types.ErrMalformedTaskDefinition, "bad tree")}
	agent := newTestExecutor(t, tb, eng)

	agent.OnAssignment(assignment(types.TaskDefinition{Tree: "<"}))
	tb.drain(statusCh)

	// Until the next poll arrives the agent advertises it cannot serve.
	agent.Tick()
	assert.Equal(t, types.StatusFailure, tb.next(statusCh).Status)
}
