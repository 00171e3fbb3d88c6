package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/taskscheduler/engine"
	"github.com/kandev/taskscheduler/internal/common/logger"
	eventbusmem "github.com/kandev/taskscheduler/internal/eventbus/memory"
	"github.com/kandev/taskscheduler/internal/plugins/registry"
	queuechan "github.com/kandev/taskscheduler/internal/queue/channel"
	storemem "github.com/kandev/taskscheduler/internal/store/memory"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	require.NoError(t, err)

	ops := registry.NewOperations()
	conds := registry.NewConditions()
	strategies := registry.NewCleaningStrategies()
	registry.RegisterBuiltins(ops, conds, strategies)

	eng := engine.New(storemem.New(), storemem.NewLock(), queuechan.New(), eventbusmem.New(), ops, conds, strategies, log, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = eng.Stop()
	})
	return eng
}

// A single task with no dependencies and an immediately-satisfied
// condition runs to completion and its result resolves.
func TestSingleTaskCompletes(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pending, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "echo", Parameters: map[string]any{"v": "hello"}},
		Condition: engine.Specification{Type: "always"},
	})
	require.NoError(t, err)

	res, err := eng.Resolve(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionCompleted, res.Kind)
	assert.Equal(t, "hello", res.Result)
}

// A task depending on another only runs once its dependency has
// completed, and reads its result through Dependencies.
func TestDependentTaskWaitsForDependency(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	a, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "const", Parameters: map[string]any{"value": float64(41)}},
		Condition: engine.Specification{Type: "always"},
	})
	require.NoError(t, err)

	b, err := eng.Add(ctx, engine.AddRequest{
		Operation:    engine.Specification{Type: "add_one"},
		Condition:    engine.Specification{Type: "always"},
		Dependencies: map[string]engine.TaskID{"n": a.ID},
	})
	require.NoError(t, err)

	res, err := eng.Resolve(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionCompleted, res.Kind)
	assert.Equal(t, float64(42), res.Result)
}

// An operation that returns an error moves the task to failed, and
// Resolve reports the failure message.
func TestFailingOperationResolvesAsFailed(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pending, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "fail", Parameters: map[string]any{"message": "boom"}},
		Condition: engine.Specification{Type: "always"},
	})
	require.NoError(t, err)

	res, err := eng.Resolve(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionFailed, res.Kind)
	assert.Contains(t, res.Error, "boom")
}

// A task whose dependency failed never runs; it fails with a message
// naming the dependency and its terminal status.
func TestDependencyFailurePropagates(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	a, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "fail", Parameters: map[string]any{"message": "boom"}},
		Condition: engine.Specification{Type: "always"},
	})
	require.NoError(t, err)

	b, err := eng.Add(ctx, engine.AddRequest{
		Operation:    engine.Specification{Type: "add_one"},
		Condition:    engine.Specification{Type: "always"},
		Dependencies: map[string]engine.TaskID{"n": a.ID},
	})
	require.NoError(t, err)

	res, err := eng.Resolve(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionFailed, res.Kind)
	assert.Contains(t, res.Error, a.ID.String())
	assert.Contains(t, res.Error, "failed")

	rec, ok, err := eng.Readers().GetFailed(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, rec.Started, "the dependent never ran")
}

// Cancelling a pending task whose condition never resolves unwinds
// the driver and Resolve reports cancellation.
func TestCancelPendingTask(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pending, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "echo", Parameters: map[string]any{"v": "unreachable"}},
		Condition: engine.Specification{Type: "never"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := eng.Cancel(ctx, pending.ID)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	res, err := eng.Resolve(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionCancelled, res.Kind)

	rec, ok, err := eng.Readers().GetCancelled(ctx, pending.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, rec.Started, "cancelled while pending: no started timestamp")
}

// A finished task with no dependents is eligible for removal by an
// on-demand clean using the always-approve strategy.
func TestCleanRemovesFinishedTask(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pending, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "echo", Parameters: map[string]any{"v": "x"}},
		Condition: engine.Specification{Type: "always"},
	})
	require.NoError(t, err)

	_, err = eng.Resolve(ctx, pending.ID)
	require.NoError(t, err)

	result, err := eng.Clean(ctx, engine.CleanRequest{Strategy: engine.Specification{Type: "always"}})
	require.NoError(t, err)
	_, removed := result.Removed[pending.ID]
	assert.True(t, removed)
}

// A finished task that still has a live (pending)
// dependent is never removed, even when the cleaning strategy approves
// everything.
func TestCleanSkipsTaskWithLiveDependent(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	a, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "const", Parameters: map[string]any{"value": float64(1)}},
		Condition: engine.Specification{Type: "always"},
	})
	require.NoError(t, err)
	_, err = eng.Resolve(ctx, a.ID)
	require.NoError(t, err)

	_, err = eng.Add(ctx, engine.AddRequest{
		Operation:    engine.Specification{Type: "add_one"},
		Condition:    engine.Specification{Type: "never"},
		Dependencies: map[string]engine.TaskID{"n": a.ID},
	})
	require.NoError(t, err)

	result, err := eng.Clean(ctx, engine.CleanRequest{Strategy: engine.Specification{Type: "always"}})
	require.NoError(t, err)
	_, removed := result.Removed[a.ID]
	assert.False(t, removed)
}

// Once the dependent finishes too, a single clean
// removes both ends of the chain via the fixed-point second pass.
func TestCleanRemovesWholeChainOnceFinished(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	a, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "const", Parameters: map[string]any{"value": float64(1)}},
		Condition: engine.Specification{Type: "always"},
	})
	require.NoError(t, err)

	b, err := eng.Add(ctx, engine.AddRequest{
		Operation:    engine.Specification{Type: "add_one"},
		Condition:    engine.Specification{Type: "always"},
		Dependencies: map[string]engine.TaskID{"n": a.ID},
	})
	require.NoError(t, err)

	_, err = eng.Resolve(ctx, b.ID)
	require.NoError(t, err)

	result, err := eng.Clean(ctx, engine.CleanRequest{Strategy: engine.Specification{Type: "always"}})
	require.NoError(t, err)
	_, removedA := result.Removed[a.ID]
	_, removedB := result.Removed[b.ID]
	assert.True(t, removedA)
	assert.True(t, removedB)

	idx, err := eng.Readers().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, idx.Completed)
}

// An unknown operation type is rejected at admission, before any
// state mutation.
func TestAddRejectsUnknownOperationType(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "nope"},
		Condition: engine.Specification{Type: "always"},
	})
	require.Error(t, err)
	assert.True(t, engine.Is(err, engine.KindInvalidOperation))

	idx, err := eng.Readers().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, idx.Pending)
	assert.Empty(t, idx.Failed)
}

func TestAddRejectsUnknownConditionType(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "echo"},
		Condition: engine.Specification{Type: "nope"},
	})
	require.Error(t, err)
	assert.True(t, engine.Is(err, engine.KindInvalidCondition))
}

func TestCleanRejectsUnknownStrategyType(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Clean(context.Background(), engine.CleanRequest{Strategy: engine.Specification{Type: "nope"}})
	require.Error(t, err)
	assert.True(t, engine.Is(err, engine.KindInvalidCleaningStrategy))
}

// The aggregate reader reports each id under exactly one status, and the
// per-status readers agree with it.
func TestReadersAgreeOnStatus(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pending, err := eng.Add(ctx, engine.AddRequest{
		Operation: engine.Specification{Type: "echo", Parameters: map[string]any{"v": "x"}},
		Condition: engine.Specification{Type: "always"},
	})
	require.NoError(t, err)

	_, err = eng.Resolve(ctx, pending.ID)
	require.NoError(t, err)

	gt, ok, err := eng.Readers().Get(ctx, pending.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, engine.StatusCompleted, gt.Status)
	assert.Equal(t, "echo", gt.Task.Operation.Type)

	_, ok, err = eng.Readers().GetCompleted(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = eng.Readers().GetPending(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	idx, err := eng.Readers().List(ctx)
	require.NoError(t, err)
	assert.Contains(t, idx.Completed, pending.ID)
}

func TestResolveUnknownTaskReturnsNone(t *testing.T) {
	eng := newTestEngine(t)

	res, err := eng.Resolve(context.Background(), engine.TaskID("00000000-0000-0000-0000-000000000000"))
	require.NoError(t, err)
	assert.Equal(t, engine.ResolutionNone, res.Kind)
}
