// Package quick provides one-line construction of fleet roles with
// minimal boilerplate. It delegates to fleet, btree and the in-process
// bus internally.
//
// The package lives under quick/ (not root) so the root package can
// re-export it without an import cycle.
//
// Usage:
//
//	import "github.com/Juancams/behaviorfleets/quick"
//
//	b := quick.NewBus()
//	agent, err := quick.NewExecutor(quick.WithBus(b), quick.WithMission("patrol"))
//	proxy, err := quick.NewDelegate(quick.WithBus(b), quick.WithMission("patrol"),
//	    quick.WithTask(def))
package quick

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Juancams/behaviorfleets/bus"
	"github.com/Juancams/behaviorfleets/bus/inproc"
	"github.com/Juancams/behaviorfleets/engine"
	"github.com/Juancams/behaviorfleets/engine/btree"
	"github.com/Juancams/behaviorfleets/fleet"
	"github.com/Juancams/behaviorfleets/types"
)

// Option configures the role being constructed.
type Option func(*options)

type options struct {
	id       string
	mission  string
	plugins  []string
	task     types.TaskDefinition
	template string
	bus      bus.Bus
	engine   engine.Engine
	logger   *zap.Logger
	actions  map[string]btree.ActionFactory
}

// WithID sets the agent or proxy identity. A random one is generated
// when unset.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithMission sets the mission type the role serves or delegates.
func WithMission(mission string) Option {
	return func(o *options) { o.mission = mission }
}

// WithPlugins sets the executor's configured capability list.
func WithPlugins(plugins ...string) Option {
	return func(o *options) { o.plugins = plugins }
}

// WithTask sets the task definition a delegate hands to its remote.
func WithTask(def types.TaskDefinition) Option {
	return func(o *options) { o.task = def }
}

// WithTemplate loads the delegated task tree from a file.
func WithTemplate(path string) Option {
	return func(o *options) { o.template = path }
}

// WithBus sets the message transport. Roles that should talk to each
// other must share one. Defaults to a fresh in-process bus.
func WithBus(b bus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithEngine sets a pre-built execution engine. Overrides WithAction.
func WithEngine(eng engine.Engine) Option {
	return func(o *options) { o.engine = eng }
}

// WithAction registers a custom action alongside the stock ones in the
// executor's default engine.
func WithAction(name string, factory btree.ActionFactory) Option {
	return func(o *options) {
		if o.actions == nil {
			o.actions = make(map[string]btree.ActionFactory)
		}
		o.actions[name] = factory
	}
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewBus creates an in-process bus for single-process fleets.
func NewBus() bus.Bus {
	return inproc.New()
}

// NewExecutor creates a started-ready executor agent. The caller still
// owns Start and Stop.
func NewExecutor(opts ...Option) (*fleet.ExecutorAgent, error) {
	o := resolve(opts)

	eng := o.engine
	if eng == nil {
		registry := btree.NewRegistry(o.logger)
		if err := btree.RegisterStockActions(registry); err != nil {
			return nil, fmt.Errorf("register stock actions: %w", err)
		}
		for name, factory := range o.actions {
			if err := registry.Register(name, factory); err != nil {
				return nil, fmt.Errorf("register action %s: %w", name, err)
			}
		}
		eng = btree.New(registry, o.logger)
	}

	cfg := fleet.DefaultExecutorConfig()
	cfg.AgentID = o.id
	cfg.Plugins = o.plugins
	if o.mission != "" {
		cfg.MissionID = o.mission
	}

	return fleet.NewExecutorAgent(cfg, o.bus, eng, o.logger), nil
}

// NewDelegate creates a delegate proxy. A task or template is required.
func NewDelegate(opts ...Option) (*fleet.DelegateProxy, error) {
	o := resolve(opts)

	cfg := fleet.DefaultProxyConfig()
	cfg.ProxyID = o.id
	cfg.Task = o.task
	cfg.TemplateFile = o.template
	if o.mission != "" {
		cfg.MissionID = o.mission
	}

	return fleet.NewDelegateProxy(cfg, o.bus, o.logger)
}

func resolve(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = inproc.New()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
