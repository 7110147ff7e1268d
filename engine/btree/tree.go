package btree

import (
	"encoding/json"
	"fmt"

	"github.com/Juancams/behaviorfleets/engine"
)

// nodeSpec is the JSON shape of one tree node.
type nodeSpec struct {
	Type     string         `json:"type"`
	Plugin   string         `json:"plugin,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Child    *nodeSpec      `json:"child,omitempty"`
	Children []nodeSpec     `json:"children,omitempty"`
}

// node is a built tree node. Nodes keep per-instance state between
// ticks (memory semantics) and reset it when they return a terminal
// status, so a tree could be re-run from scratch.
type node interface {
	tick(bb *Blackboard) engine.Status
}

// actionNode wraps a resolved plugin action.
type actionNode struct {
	action Action
}

func (n *actionNode) tick(bb *Blackboard) engine.Status {
	return n.action.Tick(bb)
}

// sequenceNode ticks children in order; it fails as soon as one child
// fails and succeeds once all have succeeded. The running child index is
// remembered across ticks.
type sequenceNode struct {
	children []node
	current  int
}

func (n *sequenceNode) tick(bb *Blackboard) engine.Status {
	for n.current < len(n.children) {
		switch n.children[n.current].tick(bb) {
		case engine.StatusRunning:
			return engine.StatusRunning
		case engine.StatusFailure:
			n.current = 0
			return engine.StatusFailure
		case engine.StatusSuccess:
			n.current++
		}
	}
	n.current = 0
	return engine.StatusSuccess
}

// fallbackNode ticks children in order; it succeeds as soon as one child
// succeeds and fails once all have failed.
type fallbackNode struct {
	children []node
	current  int
}

func (n *fallbackNode) tick(bb *Blackboard) engine.Status {
	for n.current < len(n.children) {
		switch n.children[n.current].tick(bb) {
		case engine.StatusRunning:
			return engine.StatusRunning
		case engine.StatusSuccess:
			n.current = 0
			return engine.StatusSuccess
		case engine.StatusFailure:
			n.current++
		}
	}
	n.current = 0
	return engine.StatusFailure
}

// inverterNode swaps its child's terminal statuses.
type inverterNode struct {
	child node
}

func (n *inverterNode) tick(bb *Blackboard) engine.Status {
	switch n.child.tick(bb) {
	case engine.StatusSuccess:
		return engine.StatusFailure
	case engine.StatusFailure:
		return engine.StatusSuccess
	default:
		return engine.StatusRunning
	}
}

// parseTree decodes a serialized tree into its spec.
func parseTree(tree string) (*nodeSpec, error) {
	var spec nodeSpec
	if err := json.Unmarshal([]byte(tree), &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// buildNode recursively constructs the node for a spec, resolving action
// plugins against the registry restricted to the allowed set.
func buildNode(spec *nodeSpec, registry *Registry, allowed map[string]bool) (node, error) {
	switch spec.Type {
	case "action":
		if spec.Plugin == "" {
			return nil, fmt.Errorf("action node without plugin name")
		}
		if !allowed[spec.Plugin] {
			return nil, errMissingPlugin(spec.Plugin)
		}
		factory, ok := registry.Resolve(spec.Plugin)
		if !ok {
			return nil, errMissingPlugin(spec.Plugin)
		}
		action, err := factory(spec.Params)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", spec.Plugin, err)
		}
		return &actionNode{action: action}, nil

	case "sequence", "fallback":
		if len(spec.Children) == 0 {
			return nil, fmt.Errorf("%s node without children", spec.Type)
		}
		children := make([]node, 0, len(spec.Children))
		for i := range spec.Children {
			child, err := buildNode(&spec.Children[i], registry, allowed)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if spec.Type == "sequence" {
			return &sequenceNode{children: children}, nil
		}
		return &fallbackNode{children: children}, nil

	case "inverter":
		if spec.Child == nil {
			return nil, fmt.Errorf("inverter node without child")
		}
		child, err := buildNode(spec.Child, registry, allowed)
		if err != nil {
			return nil, err
		}
		return &inverterNode{child: child}, nil

	case "":
		return nil, fmt.Errorf("node without type")

	default:
		return nil, fmt.Errorf("unknown node type: %s", spec.Type)
	}
}

// errMissingPlugin marks a plugin resolution failure so Build can map it
// to the right error code.
type missingPluginError struct {
	plugin string
}

func (e *missingPluginError) Error() string {
	return fmt.Sprintf("plugin not available: %s", e.plugin)
}

func errMissingPlugin(plugin string) error {
	return &missingPluginError{plugin: plugin}
}
