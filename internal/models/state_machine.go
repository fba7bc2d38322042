// Package models provides the position and spread records, their lifecycle
// state machine and the derived-metrics calculator.
package models

import (
	"errors"
	"fmt"
)

// PositionState represents the lifecycle state of a record
type PositionState string

const (
	StateOpen   PositionState = "open"   // No close date
	StateClosed PositionState = "closed" // Close date recorded
)

// Transition conditions
const (
	ConditionManualClose        = "manual_close"
	ConditionExpired            = "expired"
	ConditionExpirationExtended = "expiration_extended"
)

// ErrInvalidTransition is returned for a lifecycle move not in ValidTransitions.
var ErrInvalidTransition = errors.New("invalid transition")

// StateTransition defines valid state transitions
type StateTransition struct {
	From        PositionState
	To          PositionState
	Condition   string
	Description string
}

// ValidTransitions lists every allowed lifecycle move.
var ValidTransitions = []StateTransition{
	{StateOpen, StateClosed, ConditionManualClose, "Trader closed the position"},
	{StateOpen, StateClosed, ConditionExpired, "Expired at the market-close cutoff"},
	{StateClosed, StateOpen, ConditionExpirationExtended, "Expiration moved past the cutoff after an automatic close"},
}

// StateMachine validates lifecycle transitions for a single record.
type StateMachine struct {
	transitionCount map[PositionState]int
	currentState    PositionState
	previousState   PositionState
}

// NewStateMachineFromState creates a state machine positioned at state.
func NewStateMachineFromState(state PositionState) *StateMachine {
	return &StateMachine{
		currentState:    state,
		previousState:   state,
		transitionCount: make(map[PositionState]int),
	}
}

// GetCurrentState returns the current state
func (sm *StateMachine) GetCurrentState() PositionState {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *StateMachine) GetPreviousState() PositionState {
	return sm.previousState
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine) IsValidTransition(to PositionState, condition string) error {
	for _, transition := range ValidTransitions {
		if transition.From == sm.currentState && transition.To == to && transition.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("%w from %s to %s with condition '%s'",
		ErrInvalidTransition, sm.currentState, to, condition)
}

// Transition moves to a new state
func (sm *StateMachine) Transition(to PositionState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionCount[to]++
	return nil
}

// GetTransitionCount returns how many times we've entered a state
func (sm *StateMachine) GetTransitionCount(state PositionState) int {
	return sm.transitionCount[state]
}
