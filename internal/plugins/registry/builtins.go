package registry

import (
	"context"
	"fmt"

	"github.com/kandev/taskscheduler/engine"
)

// RegisterBuiltins populates a fresh set of registries with small,
// dependency-free plugins covering the operation/condition/cleaning
// shapes the engine's own documentation exercises: a value echo, a
// constant producer, a dependency-reading arithmetic step, a
// deliberately failing operation, a condition that resolves
// immediately, a condition that only resolves on cancellation, and a
// cleaning strategy that always approves removal.
func RegisterBuiltins(ops *Operations, conds *Conditions, strategies *CleaningStrategies) {
	ops.Register("echo", func() engine.Operation { return echoOperation{} })
	ops.Register("const", func() engine.Operation { return constOperation{} })
	ops.Register("add_one", func() engine.Operation { return addOneOperation{} })
	ops.Register("fail", func() engine.Operation { return failOperation{} })

	conds.Register("always", func() engine.Condition { return alwaysCondition{} })
	conds.Register("never", func() engine.Condition { return neverCondition{} })

	strategies.Register("always", func() engine.CleaningStrategy { return alwaysCleaningStrategy{} })
}

// echoOperation returns params["v"] verbatim.
type echoOperation struct{}

func (echoOperation) Run(_ context.Context, params map[string]any, _ map[string]any) (any, error) {
	return params["v"], nil
}

// constOperation returns params["value"] verbatim, ignoring dependencies.
// Distinct from echo only in its parameter name, matching its common use
// as the producing half of a two-task dependency chain.
type constOperation struct{}

func (constOperation) Run(_ context.Context, params map[string]any, _ map[string]any) (any, error) {
	return params["value"], nil
}

// addOneOperation reads the numeric dependency named "n" and returns it
// incremented by one.
type addOneOperation struct{}

func (addOneOperation) Run(_ context.Context, _ map[string]any, deps map[string]any) (any, error) {
	n, ok := deps["n"].(float64)
	if !ok {
		return nil, fmt.Errorf("add_one: dependency %q is not a number", "n")
	}
	return n + 1, nil
}

// failOperation always fails with params["message"], or a default
// message when none is given.
type failOperation struct{}

func (failOperation) Run(_ context.Context, params map[string]any, _ map[string]any) (any, error) {
	msg, _ := params["message"].(string)
	if msg == "" {
		msg = "fail operation invoked"
	}
	return nil, fmt.Errorf("%s", msg)
}

// alwaysCondition is satisfied immediately.
type alwaysCondition struct{}

func (alwaysCondition) Wait(_ context.Context, _ map[string]any) error { return nil }

// neverCondition blocks until ctx is cancelled, never resolving on its
// own. Used to exercise the driver's cancellation race.
type neverCondition struct{}

func (neverCondition) Wait(ctx context.Context, _ map[string]any) error {
	<-ctx.Done()
	return ctx.Err()
}

// alwaysCleaningStrategy approves every finished, dependent-free task for
// removal.
type alwaysCleaningStrategy struct{}

func (alwaysCleaningStrategy) Evaluate(_ context.Context, _ engine.PublicView, _ map[string]any) (bool, error) {
	return true, nil
}
