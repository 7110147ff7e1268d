package fleet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Juancams/behaviorfleets/bus"
	"github.com/Juancams/behaviorfleets/bus/inproc"
	"github.com/Juancams/behaviorfleets/engine"
	"github.com/Juancams/behaviorfleets/types"
)

// fakeEngine is a scripted engine collaborator. Each build consumes the
// next scripted outcome; a built task replays its scripted tick results.
type fakeEngine struct {
	buildErr   error
	script     []engine.Status
	builtWith  []types.TaskDefinition
	liveTasks  int
	totalBuilt int
}

func (e *fakeEngine) Build(def types.TaskDefinition) (engine.TaskHandle, error) {
	e.builtWith = append(e.builtWith, def.Clone())
	if e.buildErr != nil {
		return nil, e.buildErr
	}
	e.liveTasks++
	e.totalBuilt++
	return &fakeTask{engine: e, script: append([]engine.Status(nil), e.script...)}, nil
}

type fakeTask struct {
	engine *fakeEngine
	script []engine.Status
	step   int
	done   bool
}

func (t *fakeTask) Tick() engine.Status {
	if t.step >= len(t.script) {
		return engine.StatusFailure
	}
	status := t.script[t.step]
	t.step++
	if status != engine.StatusRunning && !t.done {
		t.done = true
		t.engine.liveTasks--
	}
	return status
}

func (t *fakeTask) Halt() {
	if !t.done {
		t.done = true
		t.engine.liveTasks--
	}
}

// testbed shuttles messages between non-started agents deterministically:
// it holds a subscription per protocol channel and hands messages to
// handlers explicitly, so each test controls the exact interleaving.
type testbed struct {
	t    *testing.T
	bus  *inproc.Bus
	subs map[string]bus.Subscription
}

func newTestbed(t *testing.T) *testbed {
	t.Helper()
	tb := &testbed{
		t:    t,
		bus:  inproc.New(),
		subs: make(map[string]bus.Subscription),
	}
	t.Cleanup(func() { tb.bus.Close() })
	return tb
}

// watch opens a test-side subscription on a channel.
func (tb *testbed) watch(channel string) {
	tb.t.Helper()
	if _, ok := tb.subs[channel]; ok {
		return
	}
	sub, err := tb.bus.Subscribe(context.Background(), channel)
	require.NoError(tb.t, err)
	tb.subs[channel] = sub
}

// next pops the next message published on a channel, or nil if none.
func (tb *testbed) next(channel string) *types.MissionMessage {
	tb.t.Helper()
	sub, ok := tb.subs[channel]
	require.True(tb.t, ok, "channel %s not watched", channel)
	select {
	case msg := <-sub.C():
		return msg
	default:
		return nil
	}
}

// drain discards all pending messages on a channel.
func (tb *testbed) drain(channel string) {
	for tb.next(channel) != nil {
	}
}
