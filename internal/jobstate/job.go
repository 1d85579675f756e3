package jobstate

import "time"

// Job is a single unit of work tracked through the lifecycle: one input
// archive path, one work kind, exactly one current state at a time.
type Job struct {
	ID          int64
	InputPath   string
	WorkKind    WorkKind
	State       State
	CreatedAt   time.Time
	LastUpdated time.Time
}

// ONTMeta is the Oxford Nanopore run metadata attached to an ONT job
// (ONTRunData or ONTRunMetadataUpdate):
// the experiment name and instrument slot used to locate flowcell records in
// the warehouse and to tag the archived collection.
type ONTMeta struct {
	JobID          int64
	ExperimentName string
	InstrumentSlot int
}

// NewJob constructs a Job in its initial PENDING state. Timestamps are left
// zero-valued; the store sets them on insert.
func NewJob(inputPath string, kind WorkKind) *Job {
	return &Job{
		InputPath: inputPath,
		WorkKind:  kind,
		State:     Pending,
	}
}

// Transition validates a move of j to the given state against the legal
// transition table. On success j.State and j.LastUpdated are not
// mutated here — the store is the single writer of record; callers use this
// only to pre-validate a move before attempting to persist it.
func (j *Job) Transition(to State) error {
	return ValidateTransition(j.State, to)
}
