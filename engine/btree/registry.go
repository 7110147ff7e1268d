// Package btree provides a behavior-tree implementation of the execution
// engine boundary. Task definitions are JSON trees of control nodes
// (sequence, fallback, inverter) over action leaves; action leaves are
// resolved by name through a capability registry, which stands in for
// runtime plugin loading.
package btree

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Juancams/behaviorfleets/engine"
)

// Blackboard is the shared key/value state visible to every action in
// one task instance.
type Blackboard struct {
	values map[string]any
}

// NewBlackboard creates an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (b *Blackboard) Get(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Set stores a value under key.
func (b *Blackboard) Set(key string, value any) {
	b.values[key] = value
}

// Action is a behavior-tree leaf. Tick is called once per control cycle
// until it returns a terminal status.
type Action interface {
	Tick(bb *Blackboard) engine.Status
}

// ActionFactory builds an action instance from the parameters given in
// the tree definition. A factory is invoked once per task build.
type ActionFactory func(params map[string]any) (Action, error)

// Registry maps capability plugin names to action factories. It is the
// configuration surface for what an agent can execute: an empty registry
// rejects every definition that names a plugin.
type Registry struct {
	logger *zap.Logger

	mu        sync.RWMutex
	factories map[string]ActionFactory
}

// NewRegistry creates an empty capability registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:    logger.With(zap.String("component", "capability_registry")),
		factories: make(map[string]ActionFactory),
	}
}

// Register adds a factory under the given plugin name.
func (r *Registry) Register(name string, factory ActionFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("invalid plugin registration: %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("plugin already registered: %s", name)
	}
	r.factories[name] = factory
	r.logger.Debug("plugin registered", zap.String("plugin", name))
	return nil
}

// Resolve returns the factory for a plugin name.
func (r *Registry) Resolve(name string) (ActionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	return factory, ok
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
