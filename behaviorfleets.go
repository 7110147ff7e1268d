// Package behaviorfleets provides a top-level convenience entry point
// for building fleet roles with minimal boilerplate.
//
// Usage:
//
//	import "github.com/Juancams/behaviorfleets"
//
//	b := behaviorfleets.NewBus()
//	agent, err := behaviorfleets.NewExecutor(behaviorfleets.WithBus(b),
//	    behaviorfleets.WithMission("patrol"))
//	proxy, err := behaviorfleets.NewDelegate(behaviorfleets.WithBus(b),
//	    behaviorfleets.WithMission("patrol"), behaviorfleets.WithTask(def))
//
// This is a thin wrapper around [quick.NewExecutor] and
// [quick.NewDelegate]; both produce identical results. Use this package
// when you prefer the shorter import path.
package behaviorfleets

import (
	"github.com/Juancams/behaviorfleets/bus"
	"github.com/Juancams/behaviorfleets/fleet"
	"github.com/Juancams/behaviorfleets/quick"
)

// Option configures the role created by [NewExecutor] or [NewDelegate].
type Option = quick.Option

// NewExecutor creates an executor agent that bids for and runs missions.
func NewExecutor(opts ...Option) (*fleet.ExecutorAgent, error) {
	return quick.NewExecutor(opts...)
}

// NewDelegate creates a delegate proxy that hands a mission to the
// first capable agent.
func NewDelegate(opts ...Option) (*fleet.DelegateProxy, error) {
	return quick.NewDelegate(opts...)
}

// NewBus creates an in-process bus for single-process fleets.
func NewBus() bus.Bus {
	return quick.NewBus()
}

// Re-export options so callers never need to import quick/.

// WithID sets the agent or proxy identity.
var WithID = quick.WithID

// WithMission sets the mission type the role serves or delegates.
var WithMission = quick.WithMission

// WithPlugins sets the executor's configured capability list.
var WithPlugins = quick.WithPlugins

// WithTask sets the task definition a delegate hands to its remote.
var WithTask = quick.WithTask

// WithTemplate loads the delegated task tree from a file.
var WithTemplate = quick.WithTemplate

// WithBus sets the shared message transport.
var WithBus = quick.WithBus

// WithEngine sets a pre-built execution engine.
var WithEngine = quick.WithEngine

// WithAction registers a custom action in the default engine.
var WithAction = quick.WithAction

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger
