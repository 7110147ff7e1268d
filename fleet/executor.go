package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Juancams/behaviorfleets/bus"
	"github.com/Juancams/behaviorfleets/engine"
	"github.com/Juancams/behaviorfleets/types"
)

// ExecutorConfig holds configuration for an ExecutorAgent.
type ExecutorConfig struct {
	// AgentID is the agent's fleet-wide identity. A random one is
	// generated when empty.
	AgentID string `yaml:"agent_id" json:"agent_id" env:"AGENT_ID"`

	// MissionID is the mission type this agent serves. Polls for other
	// mission types are not answered.
	MissionID string `yaml:"mission_id" json:"mission_id" env:"MISSION_ID"`

	// Plugins is the locally configured capability list, used when an
	// assignment does not name its own plugins.
	Plugins []string `yaml:"plugins" json:"plugins" env:"PLUGINS"`

	// Accepting is the initial availability flag. A non-accepting agent
	// reports FAILURE while free, signalling it cannot serve.
	Accepting bool `yaml:"accepting" json:"accepting" env:"ACCEPTING"`

	// TickInterval is the control cycle period.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval" env:"TICK_INTERVAL"`

	// HeartbeatInterval is the minimum spacing between idle heartbeats.
	// The heartbeat is best-effort; throttling it keeps a fast tick from
	// flooding the status channel.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
}

// DefaultExecutorConfig returns an ExecutorConfig with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MissionID:         "generic",
		Accepting:         true,
		TickInterval:      50 * time.Millisecond,
		HeartbeatInterval: time.Second,
	}
}

// ExecutorAgent is the responder role of the delegation protocol. It
// listens for broadcast polls and direct assignments, executes at most
// one task at a time through the execution engine, and reports status on
// its own status channel.
//
// All handlers and the periodic tick are serialized: they are invoked
// from one event loop when the agent is started, and each takes the
// state lock, so AgentState is never mutated concurrently.
type ExecutorAgent struct {
	config  ExecutorConfig
	bus     bus.Bus
	engine  engine.Engine
	metrics Metrics
	logger  *zap.Logger

	heartbeat *rate.Limiter

	mu             sync.Mutex
	busy           bool
	accepting      bool
	task           engine.TaskHandle
	currentMission string

	runCtx  context.Context
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
	pollSub bus.Subscription
	cmdSub  bus.Subscription
}

// NewExecutorAgent creates an executor agent. The engine collaborator
// owns all task-graph semantics; the agent only builds and ticks.
func NewExecutorAgent(config ExecutorConfig, b bus.Bus, eng engine.Engine, logger *zap.Logger) *ExecutorAgent {
	if config.AgentID == "" {
		config.AgentID = "robot-" + uuid.NewString()[:8]
	}
	if config.MissionID == "" {
		config.MissionID = DefaultExecutorConfig().MissionID
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultExecutorConfig().TickInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultExecutorConfig().HeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExecutorAgent{
		config:    config,
		bus:       b,
		engine:    eng,
		logger:    logger.With(zap.String("component", "executor_agent"), zap.String("agent_id", config.AgentID)),
		heartbeat: rate.NewLimiter(rate.Every(config.HeartbeatInterval), 1),
		accepting: config.Accepting,
		runCtx:    context.Background(),
	}
}

// SetMetrics wires a metrics sink. Must be called before Start.
func (a *ExecutorAgent) SetMetrics(m Metrics) { a.metrics = m }

// ID returns the agent's fleet-wide identity.
func (a *ExecutorAgent) ID() string { return a.config.AgentID }

// Busy reports whether the agent currently owns a task instance.
func (a *ExecutorAgent) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Accepting reports the agent's availability flag.
func (a *ExecutorAgent) Accepting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accepting
}

// Start subscribes the agent to its channels and runs the control loop
// until Stop or context cancellation.
func (a *ExecutorAgent) Start(ctx context.Context) error {
	if a.running {
		return fmt.Errorf("executor agent already running")
	}

	pollSub, err := a.bus.Subscribe(ctx, PollChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to poll channel: %w", err)
	}
	cmdSub, err := a.bus.Subscribe(ctx, AssignmentChannel(a.config.AgentID))
	if err != nil {
		pollSub.Unsubscribe()
		return fmt.Errorf("failed to subscribe to assignment channel: %w", err)
	}

	a.runCtx = ctx
	a.pollSub = pollSub
	a.cmdSub = cmdSub
	a.done = make(chan struct{})
	a.running = true

	a.wg.Add(1)
	go a.loop(ctx)

	a.logger.Info("executor agent started",
		zap.String("mission_id", a.config.MissionID),
		zap.Duration("tick_interval", a.config.TickInterval),
	)
	return nil
}

// Stop terminates the control loop and releases the subscriptions.
func (a *ExecutorAgent) Stop() {
	if !a.running {
		return
	}
	close(a.done)
	a.pollSub.Unsubscribe()
	a.cmdSub.Unsubscribe()
	a.wg.Wait()
	a.running = false
	a.logger.Info("executor agent stopped")
}

// loop is the agent's single thread of control: one timer event plus the
// two subscription mailboxes, never two handlers at once.
func (a *ExecutorAgent) loop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.TickInterval)
	defer ticker.Stop()

	pollC := a.pollSub.C()
	cmdC := a.cmdSub.C()

	for {
		select {
		case <-a.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-pollC:
			if !ok {
				pollC = nil
				continue
			}
			a.OnPoll(msg)
		case msg, ok := <-cmdC:
			if !ok {
				cmdC = nil
				continue
			}
			a.OnAssignment(msg)
		case <-ticker.C:
			a.Tick()
		}
	}
}

// OnPoll answers a broadcast poll with an availability bid. Busy agents
// never bid; the mission type must match; a targeted poll addressed to
// another agent is ignored.
func (a *ExecutorAgent) OnPoll(msg *types.MissionMessage) {
	if msg == nil || !msg.IsPoll() {
		return
	}
	if msg.TargetID != "" && msg.TargetID != a.config.AgentID {
		a.logger.Debug("poll ignored: not for me", zap.String("target_id", msg.TargetID))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.busy {
		a.logger.Debug("poll ignored: busy", zap.String("mission_id", msg.MissionID))
		return
	}

	a.accepting = true

	if msg.MissionID != a.config.MissionID {
		a.logger.Debug("unable to execute mission", zap.String("mission_id", msg.MissionID))
		return
	}

	bid := types.NewBid(a.config.AgentID, a.config.MissionID)
	if err := a.bus.Publish(a.runCtx, PollChannel, bid); err != nil {
		a.logger.Warn("failed to publish bid", zap.Error(err))
		return
	}
	if a.metrics != nil {
		a.metrics.RecordBid(a.config.AgentID, a.config.MissionID)
	}
	a.logger.Info("bid published", zap.String("mission_id", a.config.MissionID))
}

// OnAssignment builds a task instance from a direct assignment. While
// busy, assignments are dropped silently; this is the enforcement point
// for "at most one active task per agent". A build failure publishes one
// STATUS(IDLE) and leaves the agent free.
func (a *ExecutorAgent) OnAssignment(msg *types.MissionMessage) {
	if msg == nil || msg.Kind != types.KindCommand || msg.Task.Empty() {
		return
	}
	if msg.TargetID != a.config.AgentID {
		a.logger.Debug("assignment ignored: not for me", zap.String("target_id", msg.TargetID))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.busy {
		// Stale assignment: the current task keeps running, no status
		// is sent back.
		a.logger.Info("assignment dropped: busy", zap.String("mission_id", msg.MissionID))
		if a.metrics != nil {
			a.metrics.RecordAssignmentDropped(a.config.AgentID, "busy")
		}
		return
	}

	def := msg.Task.Clone()
	if len(def.Plugins) == 0 && len(a.config.Plugins) > 0 {
		a.logger.Debug("plugins not in the assignment, using configured list")
		def.Plugins = append([]string(nil), a.config.Plugins...)
	}

	task, err := a.engine.Build(def)
	if err != nil {
		a.accepting = false
		a.logger.Error("failed to build task", zap.Error(err))
		if a.metrics != nil {
			a.metrics.RecordBuildFailure(a.config.AgentID, string(types.CodeOf(err)))
		}
		a.publishStatus(msg.MissionID, types.StatusIdle)
		return
	}

	a.task = task
	a.busy = true
	a.accepting = true
	a.currentMission = msg.MissionID
	if a.metrics != nil {
		a.metrics.RecordAssignmentAccepted(a.config.AgentID, msg.MissionID)
	}
	a.logger.Info("mission accepted", zap.String("mission_id", msg.MissionID))
}

// Tick runs one control cycle: advance the current task and report its
// status, or report availability while free.
func (a *ExecutorAgent) Tick() {
	start := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordTickDuration(a.config.AgentID, time.Since(start))
		}
	}()

	if a.busy {
		result := a.task.Tick()
		status := result.MissionStatus()
		a.publishStatus(a.currentMission, status)
		if status.Terminal() {
			a.logger.Info("mission finished", zap.String("mission_id", a.currentMission), zap.String("status", string(status)))
			a.task.Halt()
			a.task = nil
			a.busy = false
			a.currentMission = ""
		}
		return
	}

	if !a.accepting {
		// Signals "cannot serve" to anyone watching this agent.
		a.publishStatus(a.config.MissionID, types.StatusFailure)
		return
	}

	// Best-effort availability heartbeat, throttled.
	if a.heartbeat.Allow() {
		a.publishStatus(a.config.MissionID, types.StatusIdle)
	}
}

// publishStatus publishes one status report on the agent's own status
// channel. Callers hold the state lock.
func (a *ExecutorAgent) publishStatus(missionID string, status types.MissionStatus) {
	msg := types.NewStatus(a.config.AgentID, missionID, status)
	if err := a.bus.Publish(a.runCtx, StatusChannel(a.config.AgentID), msg); err != nil {
		a.logger.Warn("failed to publish status", zap.Error(err))
		return
	}
	if a.metrics != nil {
		a.metrics.RecordStatusPublished(a.config.AgentID, string(status))
	}
}
