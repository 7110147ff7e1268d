package btree

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Juancams/behaviorfleets/engine"
	"github.com/Juancams/behaviorfleets/types"
)

// Engine builds behavior-tree task instances against a capability
// registry.
type Engine struct {
	registry *Registry
	logger   *zap.Logger
}

// New creates a behavior-tree engine backed by the given registry.
func New(registry *Registry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		logger:   logger.With(zap.String("component", "btree_engine")),
	}
}

// Build parses the tree definition and constructs a task instance. The
// definition's plugin list restricts which registered plugins the tree
// may use; a plugin that is listed but not registered, or used but not
// listed, fails the build with MISSING_CAPABILITY.
func (e *Engine) Build(def types.TaskDefinition) (engine.TaskHandle, error) {
	if def.Empty() {
		return nil, types.NewError(types.ErrMalformedTaskDefinition, "empty task definition")
	}

	spec, err := parseTree(def.Tree)
	if err != nil {
		return nil, types.NewError(types.ErrMalformedTaskDefinition, "failed to parse task tree").WithCause(err)
	}

	allowed := make(map[string]bool, len(def.Plugins))
	for _, plugin := range def.Plugins {
		if _, ok := e.registry.Resolve(plugin); !ok {
			return nil, types.NewError(types.ErrMissingCapability,
				fmt.Sprintf("plugin not registered: %s", plugin))
		}
		allowed[plugin] = true
	}

	root, err := buildNode(spec, e.registry, allowed)
	if err != nil {
		var missing *missingPluginError
		if errors.As(err, &missing) {
			return nil, types.NewError(types.ErrMissingCapability,
				fmt.Sprintf("plugin not available: %s", missing.plugin)).WithCause(err)
		}
		return nil, types.NewError(types.ErrMalformedTaskDefinition, "invalid task tree").WithCause(err)
	}

	e.logger.Debug("task built", zap.Strings("plugins", def.Plugins))

	return &task{root: root, bb: NewBlackboard()}, nil
}

// task is one built tree instance.
type task struct {
	root   node
	bb     *Blackboard
	halted bool
}

// Tick advances the tree one step.
func (t *task) Tick() engine.Status {
	if t.halted {
		return engine.StatusFailure
	}
	return t.root.tick(t.bb)
}

// Halt releases the instance.
func (t *task) Halt() {
	t.halted = true
	t.root = nil
	t.bb = nil
}

var _ engine.Engine = (*Engine)(nil)
