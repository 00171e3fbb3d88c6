package engine

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MarshalJSON renders a Set as a JSON array, sorted for stable output.
// Decoding tolerates any ordering.
func (s Set) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return json.Marshal(ids)
}

// UnmarshalJSON populates a Set from a JSON array, deduplicating.
func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	out := make(Set, len(ids))
	for _, id := range ids {
		out[TaskID(id)] = struct{}{}
	}
	*s = out
	return nil
}

// Serialize renders State as the single opaque JSON value persisted to
// the store: fixed "tasks", "statuses" and "relationships" keys, UUIDs
// as canonical strings, timestamps as RFC 3339 UTC.
func Serialize(state *State) ([]byte, error) {
	return json.Marshal(state)
}

// Deserialize parses the JSON value produced by Serialize back into a
// State. Serialize(Deserialize(x)) == x for any valid persisted value.
func Deserialize(data []byte) (*State, error) {
	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	for id, status := range state.Statuses {
		if !status.valid() {
			return nil, fmt.Errorf("unknown status %q for task %s", status, id)
		}
	}
	if state.Tasks.Pending == nil {
		state.Tasks.Pending = make(map[TaskID]PendingRecord)
	}
	if state.Tasks.Running == nil {
		state.Tasks.Running = make(map[TaskID]RunningRecord)
	}
	if state.Tasks.Cancelled == nil {
		state.Tasks.Cancelled = make(map[TaskID]CancelledRecord)
	}
	if state.Tasks.Failed == nil {
		state.Tasks.Failed = make(map[TaskID]FailedRecord)
	}
	if state.Tasks.Completed == nil {
		state.Tasks.Completed = make(map[TaskID]CompletedRecord)
	}
	if state.Statuses == nil {
		state.Statuses = make(map[TaskID]Status)
	}
	if state.Relationships.Dependencies == nil {
		state.Relationships.Dependencies = make(map[TaskID]Set)
	}
	if state.Relationships.Dependents == nil {
		state.Relationships.Dependents = make(map[TaskID]Set)
	}
	return state, nil
}
