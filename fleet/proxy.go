package fleet

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Juancams/behaviorfleets/bus"
	"github.com/Juancams/behaviorfleets/types"
)

// ProxyConfig holds configuration for a DelegateProxy.
type ProxyConfig struct {
	// ProxyID identifies the delegating side in protocol traffic. A
	// random one is generated when empty.
	ProxyID string `yaml:"proxy_id" json:"proxy_id" env:"PROXY_ID"`

	// MissionID is the mission type to delegate.
	MissionID string `yaml:"mission_id" json:"mission_id" env:"MISSION_ID"`

	// Task is the definition transferred to the chosen remote.
	Task types.TaskDefinition `yaml:"task" json:"task" env:"-"`

	// TemplateFile optionally names a file whose contents become the
	// task tree. It overrides Task.Tree.
	TemplateFile string `yaml:"template_file" json:"template_file" env:"TEMPLATE_FILE"`

	// RemoteTimeout bounds the silence tolerated from an identified
	// remote before the delegation is reported as FAILURE. Zero keeps
	// the original wait-forever behavior.
	RemoteTimeout time.Duration `yaml:"remote_timeout" json:"remote_timeout" env:"REMOTE_TIMEOUT"`
}

// DefaultProxyConfig returns a ProxyConfig with sensible defaults.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		MissionID: "generic",
	}
}

// DelegateProxy is the requester role of the delegation protocol. It is
// embedded in a larger task graph on the delegating agent: each
// Evaluate call either keeps polling for a capable remote or mirrors
// the identified remote's reported status as its own result.
//
// Handlers and Evaluate are serialized through the state lock, so
// ProxyState is never mutated concurrently even though Evaluate is
// called by the embedding engine while bids and statuses arrive on the
// proxy's event loop.
type DelegateProxy struct {
	config  ProxyConfig
	bus     bus.Bus
	metrics Metrics
	logger  *zap.Logger

	mu               sync.Mutex
	remoteIdentified bool
	remoteID         string
	lastStatus       *types.MissionStatus
	lastStatusAt     time.Time
	assignedAt       time.Time
	timedOut         bool
	statusSub        bus.Subscription

	runCtx  context.Context
	running bool
	done    chan struct{}
	resub   chan struct{}
	wg      sync.WaitGroup
	pollSub bus.Subscription
}

// NewDelegateProxy creates a delegate proxy. When the config names a
// template file, the task tree is loaded from it at construction.
func NewDelegateProxy(config ProxyConfig, b bus.Bus, logger *zap.Logger) (*DelegateProxy, error) {
	if config.ProxyID == "" {
		config.ProxyID = "proxy-" + uuid.NewString()[:8]
	}
	if config.MissionID == "" {
		config.MissionID = DefaultProxyConfig().MissionID
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.TemplateFile != "" {
		tree, err := os.ReadFile(config.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read task template %s: %w", config.TemplateFile, err)
		}
		config.Task.Tree = string(tree)
	}
	if config.Task.Empty() {
		return nil, fmt.Errorf("proxy has no task definition to delegate")
	}

	return &DelegateProxy{
		config: config,
		bus:    b,
		logger: logger.With(zap.String("component", "delegate_proxy"), zap.String("proxy_id", config.ProxyID)),
		runCtx: context.Background(),
		resub:  make(chan struct{}, 1),
	}, nil
}

// SetMetrics wires a metrics sink. Must be called before Start.
func (p *DelegateProxy) SetMetrics(m Metrics) { p.metrics = m }

// ID returns the proxy's identity.
func (p *DelegateProxy) ID() string { return p.config.ProxyID }

// RemoteID returns the identified remote agent, empty until a bid has
// been accepted.
func (p *DelegateProxy) RemoteID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteID
}

// Start subscribes the proxy to the poll channel and runs its event
// loop until Stop or context cancellation.
func (p *DelegateProxy) Start(ctx context.Context) error {
	if p.running {
		return fmt.Errorf("delegate proxy already running")
	}

	pollSub, err := p.bus.Subscribe(ctx, PollChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to poll channel: %w", err)
	}

	p.runCtx = ctx
	p.pollSub = pollSub
	p.done = make(chan struct{})
	p.running = true

	p.wg.Add(1)
	go p.loop(ctx)

	p.logger.Info("delegate proxy started", zap.String("mission_id", p.config.MissionID))
	return nil
}

// Stop terminates the event loop and releases the subscriptions.
func (p *DelegateProxy) Stop() {
	if !p.running {
		return
	}
	close(p.done)
	p.pollSub.Unsubscribe()
	p.mu.Lock()
	if p.statusSub != nil {
		p.statusSub.Unsubscribe()
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.running = false
	p.logger.Info("delegate proxy stopped")
}

// loop is the proxy's single thread of control. The status mailbox only
// exists once a remote has been identified; the resub signal re-arms the
// select when it appears or disappears.
func (p *DelegateProxy) loop(ctx context.Context) {
	defer p.wg.Done()

	pollC := p.pollSub.C()

	for {
		p.mu.Lock()
		var statusC <-chan *types.MissionMessage
		if p.statusSub != nil {
			statusC = p.statusSub.C()
		}
		p.mu.Unlock()

		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-p.resub:
		case msg, ok := <-pollC:
			if !ok {
				pollC = nil
				continue
			}
			p.OnBid(msg)
		case msg, ok := <-statusC:
			if !ok {
				// Mailbox closed underneath us (bus shutdown); drop the
				// subscription so the select does not spin on it.
				p.mu.Lock()
				if p.statusSub != nil && p.statusSub.C() == statusC {
					p.statusSub = nil
				}
				p.mu.Unlock()
				continue
			}
			p.OnRemoteStatus(msg)
		}
	}
}

// Evaluate advances the delegation one step, in the rhythm of the
// embedding task graph. Until a remote is identified it republishes the
// poll on every call: the repeat is the loss-compensation mechanism,
// there is no separate timeout or backoff. Once identified it mirrors
// the remote's last reported status.
func (p *DelegateProxy) Evaluate() types.MissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.remoteIdentified {
		poll := types.NewPoll(p.config.ProxyID, "", p.config.MissionID)
		if err := p.bus.Publish(p.runCtx, PollChannel, poll); err != nil {
			p.logger.Warn("failed to publish poll", zap.Error(err))
		} else if p.metrics != nil {
			p.metrics.RecordPollPublished(p.config.MissionID)
		}
		return types.StatusRunning
	}

	if p.lastStatus != nil && p.lastStatus.Terminal() {
		return *p.lastStatus
	}

	if p.timedOut {
		return types.StatusFailure
	}
	if p.config.RemoteTimeout > 0 {
		since := p.assignedAt
		if !p.lastStatusAt.IsZero() {
			since = p.lastStatusAt
		}
		if time.Since(since) > p.config.RemoteTimeout {
			p.timedOut = true
			p.logger.Warn("remote went silent",
				zap.String("remote_id", p.remoteID),
				zap.Duration("timeout", p.config.RemoteTimeout),
			)
			if p.metrics != nil {
				p.metrics.RecordDelegation(p.config.MissionID, "timeout")
			}
			return types.StatusFailure
		}
	}

	return types.StatusRunning
}

// OnBid commits to the first availability bid received and transfers
// the task to that remote. Every later bid is ignored: losing bidders
// are never told they lost, they simply receive no assignment.
func (p *DelegateProxy) OnBid(msg *types.MissionMessage) {
	if msg == nil || msg.Kind != types.KindRequest {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remoteIdentified {
		p.logger.Debug("bid ignored: remote already identified", zap.String("sender_id", msg.SenderID))
		return
	}
	if msg.SenderID == "" || msg.MissionID != p.config.MissionID {
		return
	}

	// Subscribe to the remote's status channel before transferring the
	// task, so the first report cannot be missed.
	statusSub, err := p.bus.Subscribe(p.runCtx, StatusChannel(msg.SenderID))
	if err != nil {
		p.logger.Error("failed to subscribe to remote status", zap.String("sender_id", msg.SenderID), zap.Error(err))
		return
	}

	p.remoteID = msg.SenderID
	p.remoteIdentified = true
	p.statusSub = statusSub
	p.assignedAt = time.Now()
	p.lastStatus = nil
	p.lastStatusAt = time.Time{}
	p.signalResub()

	assignment := types.NewAssignment(p.config.ProxyID, p.remoteID, p.config.MissionID, p.config.Task)
	if err := p.bus.Publish(p.runCtx, AssignmentChannel(p.remoteID), assignment); err != nil {
		p.logger.Error("failed to publish assignment", zap.Error(err))
		// Keep the remote committed; the embedding graph decides when
		// to reset and retry.
		return
	}

	p.logger.Info("remote identified, mission transferred",
		zap.String("remote_id", p.remoteID),
		zap.String("mission_id", p.config.MissionID),
	)
}

// OnRemoteStatus mirrors a status report from the assigned remote.
// Reports from anyone else, and reports arriving after a terminal
// status, are ignored.
func (p *DelegateProxy) OnRemoteStatus(msg *types.MissionMessage) {
	if msg == nil || msg.Kind != types.KindStatus {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.remoteIdentified || msg.SenderID != p.remoteID {
		return
	}
	if p.lastStatus != nil && p.lastStatus.Terminal() {
		return
	}

	status := msg.Status
	p.lastStatus = &status
	p.lastStatusAt = time.Now()

	if status.Terminal() {
		p.logger.Info("delegation finished",
			zap.String("remote_id", p.remoteID),
			zap.String("status", string(status)),
		)
		if p.metrics != nil {
			p.metrics.RecordDelegation(p.config.MissionID, string(status))
		}
	}
}

// Reset clears the proxy back to its undiscovered state. The embedding
// task graph calls it between activations; process restart is not
// assumed.
func (p *DelegateProxy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.statusSub != nil {
		p.statusSub.Unsubscribe()
		p.statusSub = nil
	}
	p.remoteIdentified = false
	p.remoteID = ""
	p.lastStatus = nil
	p.lastStatusAt = time.Time{}
	p.assignedAt = time.Time{}
	p.timedOut = false
	p.signalResub()

	p.logger.Debug("proxy reset")
}

// SetTask replaces the delegated task definition and restarts discovery.
// An in-flight delegation is abandoned; the current remote keeps running
// whatever it was last assigned.
func (p *DelegateProxy) SetTask(def types.TaskDefinition) error {
	if def.Empty() {
		return types.NewError(types.ErrMalformedTaskDefinition, "task definition is empty")
	}

	p.mu.Lock()
	p.config.Task = def.Clone()
	if p.statusSub != nil {
		p.statusSub.Unsubscribe()
		p.statusSub = nil
	}
	p.remoteIdentified = false
	p.remoteID = ""
	p.lastStatus = nil
	p.lastStatusAt = time.Time{}
	p.assignedAt = time.Time{}
	p.timedOut = false
	p.signalResub()
	p.mu.Unlock()

	p.logger.Info("task definition replaced, discovery restarted")
	return nil
}

func (p *DelegateProxy) signalResub() {
	select {
	case p.resub <- struct{}{}:
	default:
	}
}
