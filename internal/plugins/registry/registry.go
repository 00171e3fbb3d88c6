// Package registry provides RWMutex-guarded type registries
// implementing the engine's three factory seams
// (engine.OperationFactory, engine.ConditionFactory,
// engine.CleaningStrategyFactory). Entries are constructor funcs:
// stateful plugins return a fresh instance per Create call, while
// stateless ones (or those sharing one external client) may return a
// shared value.
package registry

import "github.com/kandev/taskscheduler/engine"

// Operations is a registry of named engine.Operation constructors.
type Operations struct {
	reg[engine.Operation]
}

// NewOperations returns an empty Operations registry.
func NewOperations() *Operations {
	return &Operations{reg: newReg[engine.Operation]()}
}

// Create implements engine.OperationFactory.
func (r *Operations) Create(opType string) (engine.Operation, bool) {
	return r.create(opType)
}

// Conditions is a registry of named engine.Condition constructors.
type Conditions struct {
	reg[engine.Condition]
}

// NewConditions returns an empty Conditions registry.
func NewConditions() *Conditions {
	return &Conditions{reg: newReg[engine.Condition]()}
}

// Create implements engine.ConditionFactory.
func (r *Conditions) Create(condType string) (engine.Condition, bool) {
	return r.create(condType)
}

// CleaningStrategies is a registry of named engine.CleaningStrategy
// constructors.
type CleaningStrategies struct {
	reg[engine.CleaningStrategy]
}

// NewCleaningStrategies returns an empty CleaningStrategies registry.
func NewCleaningStrategies() *CleaningStrategies {
	return &CleaningStrategies{reg: newReg[engine.CleaningStrategy]()}
}

// Create implements engine.CleaningStrategyFactory.
func (r *CleaningStrategies) Create(strategyType string) (engine.CleaningStrategy, bool) {
	return r.create(strategyType)
}
