// Package jobstate defines the WorkBot job lifecycle: the closed state
// dictionary, the work-kind enumeration, and the legal transition table
// that the store and pipeline engine enforce.
package jobstate

import (
	"errors"
	"fmt"
)

// Sentinel errors for state transition validation.
var (
	// ErrInvalidTransition indicates an illegal state move was requested.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownState indicates a state name outside the closed dictionary.
	ErrUnknownState = errors.New("unknown state")

	// ErrUnknownWorkKind indicates a work-kind identifier outside the closed enumeration.
	ErrUnknownWorkKind = errors.New("unknown work kind")
)

// State is the wire identity of a job lifecycle state. Stable across schema
// versions — a downgrade must preserve these names exactly.
type State string

// The closed dictionary of ten job states.
const (
	Pending   State = "PENDING"
	Staged    State = "STAGED"
	Started   State = "STARTED"
	Succeeded State = "SUCCEEDED"
	Archived  State = "ARCHIVED"
	Annotated State = "ANNOTATED"
	Unstaged  State = "UNSTAGED"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
	Cancelled State = "CANCELLED"
)

// Description is the human-readable description seeded alongside each State
// row at database initialisation.
var Description = map[State]string{
	Pending:   "Pending any action",
	Staged:    "The work data are staged",
	Started:   "Work started",
	Succeeded: "Work was done successfully",
	Archived:  "Work data have been archived",
	Annotated: "Work data have been annotated",
	Unstaged:  "The work data were unstaged",
	Completed: "All actions are complete",
	Failed:    "Work has failed",
	Cancelled: "Work was cancelled",
}

// All lists every member of the closed state dictionary, in seed order.
var All = []State{
	Pending, Staged, Started, Succeeded, Archived,
	Annotated, Unstaged, Completed, Failed, Cancelled,
}

// Valid reports whether s is a member of the closed state dictionary.
func (s State) Valid() bool {
	_, ok := Description[s]
	return ok
}

// terminal is the set of states from which no further transition is legal
// except the operator-only FAILED -> CANCELLED move.
var terminal = map[State]bool{
	Completed: true,
	Cancelled: true,
}

// Terminal reports whether s accepts no further transitions at all (i.e. is
// not FAILED, which uniquely permits one further move to CANCELLED).
func (s State) Terminal() bool {
	return terminal[s]
}

// transitions is the legal from -> {to...} table from spec section 4.1.
var transitions = map[State]map[State]bool{
	Pending:   {Staged: true, Cancelled: true},
	Staged:    {Started: true, Unstaged: true, Cancelled: true},
	Started:   {Succeeded: true, Failed: true, Cancelled: true},
	Succeeded: {Archived: true, Cancelled: true},
	Archived:  {Annotated: true, Cancelled: true},
	Annotated: {Unstaged: true, Cancelled: true},
	Unstaged:  {Completed: true, Cancelled: true},
	Failed:    {Cancelled: true},
}

// ValidateTransition checks from -> to against the legal transition table.
// CANCELLED and COMPLETED are terminal and accept no outgoing transition.
func ValidateTransition(from, to State) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownState, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownState, to)
	}

	allowed, ok := transitions[from]
	if !ok || !allowed[to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	return nil
}

// WorkKind is the closed enumeration of job-type identifiers (§4.2).
type WorkKind string

const (
	// ONTRunData stages, analyses, archives and annotates raw ONT run data.
	ONTRunData WorkKind = "ONTRunData"

	// ONTRunMetadataUpdate decorates an already-archived collection with
	// warehouse-sourced sample/study metadata.
	ONTRunMetadataUpdate WorkKind = "ONTRunMetadataUpdate"
)

// ValidWorkKind reports whether k is a member of the closed work-kind enumeration.
func ValidWorkKind(k WorkKind) bool {
	switch k {
	case ONTRunData, ONTRunMetadataUpdate:
		return true
	default:
		return false
	}
}

// EndStates returns the set of states that make (inputPath, kind) ineligible
// for re-enqueue, per §4.2.
func EndStates(k WorkKind) (map[State]bool, error) {
	switch k {
	case ONTRunData:
		return map[State]bool{Completed: true, Cancelled: true}, nil
	case ONTRunMetadataUpdate:
		return map[State]bool{Cancelled: true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkKind, k)
	}
}
