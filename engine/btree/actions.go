package btree

import (
	"fmt"

	"github.com/Juancams/behaviorfleets/engine"
)

// Stock actions. Real deployments register their own robot-specific
// actions; these cover demos and tests.

// succeedAction succeeds immediately.
type succeedAction struct{}

func (succeedAction) Tick(*Blackboard) engine.Status { return engine.StatusSuccess }

// failAction fails immediately.
type failAction struct{}

func (failAction) Tick(*Blackboard) engine.Status { return engine.StatusFailure }

// countdownAction runs for a configured number of ticks, then succeeds.
type countdownAction struct {
	remaining int
}

func (a *countdownAction) Tick(*Blackboard) engine.Status {
	if a.remaining > 0 {
		a.remaining--
		return engine.StatusRunning
	}
	return engine.StatusSuccess
}

// RegisterStockActions registers the stock plugins on a registry:
//
//	succeed    succeeds immediately
//	fail       fails immediately
//	countdown  runs for params["ticks"] cycles, then succeeds
func RegisterStockActions(r *Registry) error {
	if err := r.Register("succeed", func(map[string]any) (Action, error) {
		return succeedAction{}, nil
	}); err != nil {
		return err
	}
	if err := r.Register("fail", func(map[string]any) (Action, error) {
		return failAction{}, nil
	}); err != nil {
		return err
	}
	return r.Register("countdown", func(params map[string]any) (Action, error) {
		ticks := 1
		if v, ok := params["ticks"]; ok {
			f, ok := v.(float64)
			if !ok || f < 0 {
				return nil, fmt.Errorf("invalid ticks parameter: %v", v)
			}
			ticks = int(f)
		}
		return &countdownAction{remaining: ticks}, nil
	})
}
