package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func populatedState() *State {
	scheduled := fixedTime("2026-08-01T10:00:00Z")
	started := fixedTime("2026-08-01T10:00:01.5Z")
	finished := fixedTime("2026-08-01T10:00:03Z")

	task := Task{
		Operation:    Specification{Type: "echo", Parameters: map[string]any{"v": float64(42), "s": "x"}},
		Condition:    Specification{Type: "always", Parameters: map[string]any{}},
		Dependencies: map[string]TaskID{"n": "dep-1"},
	}

	state := NewState()
	state.Tasks.Pending["pending-1"] = PendingRecord{Task: task, Scheduled: scheduled}
	state.Tasks.Running["running-1"] = RunningRecord{Task: task, Scheduled: scheduled, Started: started}
	state.Tasks.Cancelled["cancelled-1"] = CancelledRecord{Task: task, Scheduled: scheduled, Cancelled: finished}
	state.Tasks.Cancelled["cancelled-2"] = CancelledRecord{Task: task, Scheduled: scheduled, Started: &started, Cancelled: finished}
	state.Tasks.Failed["failed-1"] = FailedRecord{Task: task, Scheduled: scheduled, Started: &started, Failed: finished, Error: "Operation echo failed: boom."}
	state.Tasks.Failed["failed-2"] = FailedRecord{Task: task, Scheduled: scheduled, Failed: finished, Error: "Dependency dep-1 finished with status failed."}
	state.Tasks.Completed["dep-1"] = CompletedRecord{Task: task, Scheduled: scheduled, Started: started, Completed: finished, Result: map[string]any{"out": float64(1)}}

	for id := range state.Tasks.Pending {
		state.Statuses[id] = StatusPending
	}
	for id := range state.Tasks.Running {
		state.Statuses[id] = StatusRunning
	}
	for id := range state.Tasks.Cancelled {
		state.Statuses[id] = StatusCancelled
	}
	for id := range state.Tasks.Failed {
		state.Statuses[id] = StatusFailed
	}
	for id := range state.Tasks.Completed {
		state.Statuses[id] = StatusCompleted
	}

	state.Relationships.Dependencies["pending-1"] = newSet("dep-1")
	state.Relationships.Dependents["dep-1"] = newSet("pending-1")
	return state
}

func TestSerializeRoundTripsBytes(t *testing.T) {
	first, err := Serialize(populatedState())
	require.NoError(t, err)

	decoded, err := Deserialize(first)
	require.NoError(t, err)

	second, err := Serialize(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second), "Serialize(Deserialize(x)) must equal x")
}

func TestDeserializeRestoresStructure(t *testing.T) {
	original := populatedState()
	data, err := Serialize(original)
	require.NoError(t, err)

	decoded, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, original.Statuses, decoded.Statuses)
	assert.True(t, decoded.Relationships.Dependents["dep-1"].has("pending-1"))
	assert.True(t, decoded.Relationships.Dependencies["pending-1"].has("dep-1"))

	assert.Nil(t, decoded.Tasks.Cancelled["cancelled-1"].Started)
	require.NotNil(t, decoded.Tasks.Cancelled["cancelled-2"].Started)
	assert.Nil(t, decoded.Tasks.Failed["failed-2"].Started)
	assert.Equal(t, "Operation echo failed: boom.", decoded.Tasks.Failed["failed-1"].Error)
	assert.Equal(t, map[string]any{"out": float64(1)}, decoded.Tasks.Completed["dep-1"].Result)
}

func TestDeserializeEmptyObjectYieldsWellFormedState(t *testing.T) {
	decoded, err := Deserialize([]byte(`{}`))
	require.NoError(t, err)

	assert.NotNil(t, decoded.Tasks.Pending)
	assert.NotNil(t, decoded.Tasks.Running)
	assert.NotNil(t, decoded.Tasks.Cancelled)
	assert.NotNil(t, decoded.Tasks.Failed)
	assert.NotNil(t, decoded.Tasks.Completed)
	assert.NotNil(t, decoded.Statuses)
	assert.NotNil(t, decoded.Relationships.Dependencies)
	assert.NotNil(t, decoded.Relationships.Dependents)
}

func TestSetDecodeToleratesAnyOrdering(t *testing.T) {
	var s Set
	require.NoError(t, s.UnmarshalJSON([]byte(`["b","a","c","a"]`)))
	assert.Len(t, s, 3)
	assert.True(t, s.has("a"))
	assert.True(t, s.has("b"))
	assert.True(t, s.has("c"))

	out, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b","c"]`, string(out))
}
