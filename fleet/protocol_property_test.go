package fleet

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/Juancams/behaviorfleets/engine"
	"github.com/Juancams/behaviorfleets/types"
)

// TestProperty_AtMostOneActiveTask drives an executor with arbitrary
// interleavings of polls, assignments, and ticks and checks that it
// never owns more than one non-terminal task instance, whatever the
// order and however often assignments repeat.
func TestProperty_AtMostOneActiveTask(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tb := newTestbed(t)
		tb.watch(StatusChannel("robot-a"))

		taskLen := rapid.IntRange(1, 4).Draw(rt, "taskLen")
		script := make([]engine.Status, 0, taskLen)
		for i := 0; i < taskLen-1; i++ {
			script = append(script, engine.StatusRunning)
		}
		if rapid.Bool().Draw(rt, "succeeds") {
			script = append(script, engine.StatusSuccess)
		} else {
			script = append(script, engine.StatusFailure)
		}

		eng := &fakeEngine{script: script}
		agent := newTestExecutor(t, tb, eng)

		numOps := rapid.IntRange(1, 40).Draw(rt, "numOps")
		for i := 0; i < numOps; i++ {
			op := rapid.SampledFrom([]string{"poll", "assign", "assign_other", "tick"}).
				Draw(rt, fmt.Sprintf("op_%d", i))

			switch op {
			case "poll":
				agent.OnPoll(types.NewPoll("proxy-1", "", "m1"))
			case "assign":
				agent.OnAssignment(assignment(types.TaskDefinition{Tree: "{}"}))
			case "assign_other":
				agent.OnAssignment(types.NewAssignment("proxy-2", "robot-a", "m7", types.TaskDefinition{Tree: "{}"}))
			case "tick":
				agent.Tick()
			}

			if eng.liveTasks > 1 {
				rt.Fatalf("agent owns %d live tasks after op %d (%s)", eng.liveTasks, i, op)
			}
			if !agent.Busy() && eng.liveTasks != 0 {
				rt.Fatalf("agent reports free but owns a live task after op %d (%s)", i, op)
			}
		}
	})
}

// TestProperty_NoStatusAfterTerminal checks that, for one task
// instance, the executor never publishes another status for it once the
// terminal status went out: everything after the terminal report is
// availability traffic (IDLE/FAILURE heartbeats), never RUNNING.
func TestProperty_NoStatusAfterTerminal(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tb := newTestbed(t)
		statusCh := StatusChannel("robot-a")
		tb.watch(statusCh)

		running := rapid.IntRange(0, 5).Draw(rt, "running")
		script := make([]engine.Status, 0, running+1)
		for i := 0; i < running; i++ {
			script = append(script, engine.StatusRunning)
		}
		script = append(script, engine.StatusSuccess)

		agent := newTestExecutor(t, tb, &fakeEngine{script: script})
		agent.OnAssignment(assignment(types.TaskDefinition{Tree: "{}"}))
		require.True(t, agent.Busy())

		extraTicks := rapid.IntRange(0, 5).Draw(rt, "extraTicks")
		for i := 0; i < running+1+extraTicks; i++ {
			agent.Tick()
		}

		sawTerminal := false
		for msg := tb.next(statusCh); msg != nil; msg = tb.next(statusCh) {
			if sawTerminal && msg.Status == types.StatusRunning {
				rt.Fatalf("RUNNING published after terminal status")
			}
			if msg.Status.Terminal() {
				sawTerminal = true
			}
		}
		if !sawTerminal {
			rt.Fatalf("task never reached a terminal status")
		}
	})
}

// TestProperty_FirstBidDeterminism feeds a proxy an arbitrary arrival
// order of bids, some of them for the wrong mission, and checks that it
// commits to exactly the first eligible one.
func TestProperty_FirstBidDeterminism(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tb := newTestbed(t)

		numBids := rapid.IntRange(1, 10).Draw(rt, "numBids")
		senders := make([]string, numBids)
		missions := make([]string, numBids)
		for i := range senders {
			senders[i] = rapid.StringMatching(`robot-[a-z]{1,4}`).Draw(rt, fmt.Sprintf("sender_%d", i))
			missions[i] = rapid.SampledFrom([]string{"m1", "m2"}).Draw(rt, fmt.Sprintf("mission_%d", i))
		}

		config := DefaultProxyConfig()
		config.ProxyID = "proxy-1"
		config.MissionID = "m1"
		config.Task = types.TaskDefinition{Tree: "{}"}
		proxy, err := NewDelegateProxy(config, tb.bus, zap.NewNop())
		require.NoError(rt, err)

		wantRemote := ""
		for i := 0; i < numBids; i++ {
			if wantRemote == "" && missions[i] == "m1" {
				wantRemote = senders[i]
			}
			proxy.OnBid(types.NewBid(senders[i], missions[i]))
		}

		if proxy.RemoteID() != wantRemote {
			rt.Fatalf("proxy committed to %q, want first eligible bidder %q", proxy.RemoteID(), wantRemote)
		}
	})
}
