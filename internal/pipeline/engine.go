// Package pipeline implements the guarded step sequence that drives a Job
// through stage, analyse, archive, annotate, unstage and complete, each step
// conditional on the job already sitting in its expected precondition state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/wtsi-npg/workbot/internal/config"
	"github.com/wtsi-npg/workbot/internal/jobstate"
)

// ErrAnalysisFailed is returned by the engine, wrapping the worker's error,
// when a Worker's RunAnalysis fails and the job has been transitioned to
// FAILED rather than left stuck at STARTED.
var ErrAnalysisFailed = errors.New("analysis subprocess failed")

// StateStore is the subset of the job store the engine needs to advance a
// job's lifecycle. Defined here (domain owns the interface) so Engine does
// not depend on the concrete Postgres-backed implementation.
type StateStore interface {
	Transition(ctx context.Context, job *jobstate.Job, newState jobstate.State) error
}

// Worker implements the per-work-kind bodies the engine invokes at each
// step. StageInput reports ready=false (with a nil error) when its
// producer-completeness precondition is not yet met, so the engine can
// return without transitioning and let the next pass retry.
type Worker interface {
	StageInput(ctx context.Context, job *jobstate.Job) (ready bool, err error)
	RunAnalysis(ctx context.Context, job *jobstate.Job) error
	ArchiveOutput(ctx context.Context, job *jobstate.Job) error
	Annotate(ctx context.Context, job *jobstate.Job) error
	Unstage(ctx context.Context, job *jobstate.Job) error
}

// Engine drives one Job through its guarded step sequence.
type Engine struct {
	store  StateStore
	logger *slog.Logger
}

// Option configures optional Engine behaviour.
type Option func(*Engine)

// WithLogger overrides the default stdout JSON logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine builds an Engine over store.
func NewEngine(store StateStore, opts ...Option) *Engine {
	engine := &Engine{
		store: store,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Run advances job through every step whose precondition it currently
// satisfies, stopping at the first step not yet ready, the first error, or
// once the job reaches a terminal state. A single call may carry the job
// all the way from PENDING to COMPLETED when nothing blocks it, since the
// system processes one job's full pipeline to suspension before moving to
// the next.
func (e *Engine) Run(ctx context.Context, job *jobstate.Job, worker Worker) error {
	for {
		advanced, err := e.step(ctx, job, worker)
		if err != nil {
			return err
		}

		if !advanced {
			return nil
		}
	}
}

// step executes the single step matching job's current state, if any, and
// reports whether it advanced the job (so Run knows whether to continue the
// cascade).
func (e *Engine) step(ctx context.Context, job *jobstate.Job, worker Worker) (bool, error) {
	switch job.State {
	case jobstate.Pending:
		return e.stage(ctx, job, worker)
	case jobstate.Staged:
		return true, e.analyse(ctx, job, worker)
	case jobstate.Succeeded:
		return true, e.archive(ctx, job, worker)
	case jobstate.Archived:
		return true, e.annotate(ctx, job, worker)
	case jobstate.Annotated:
		return true, e.unstage(ctx, job, worker)
	case jobstate.Unstaged:
		return true, e.complete(ctx, job)
	default:
		return false, nil
	}
}

func (e *Engine) stage(ctx context.Context, job *jobstate.Job, worker Worker) (bool, error) {
	ready, err := worker.StageInput(ctx, job)
	if err != nil {
		return false, fmt.Errorf("stage job %d: %w", job.ID, err)
	}

	if !ready {
		e.logger.Debug("stage precondition not met, will retry", slog.Int64("job_id", job.ID))

		return false, nil
	}

	if err := e.store.Transition(ctx, job, jobstate.Staged); err != nil {
		return false, err
	}

	e.logger.Info("staged job", slog.Int64("job_id", job.ID))

	return true, nil
}

// analyse commits STARTED before running the body, so that a failing
// analysis can still be transitioned to FAILED afterwards.
func (e *Engine) analyse(ctx context.Context, job *jobstate.Job, worker Worker) error {
	if err := e.store.Transition(ctx, job, jobstate.Started); err != nil {
		return err
	}

	if err := worker.RunAnalysis(ctx, job); err != nil {
		e.logger.Error("analysis failed", slog.Int64("job_id", job.ID), slog.Any("error", err))

		if tErr := e.store.Transition(ctx, job, jobstate.Failed); tErr != nil {
			return fmt.Errorf("job %d failed analysis and failed to transition to FAILED: %w (original: %w)", job.ID, tErr, err)
		}

		return fmt.Errorf("%w: job %d: %w", ErrAnalysisFailed, job.ID, err)
	}

	if err := e.store.Transition(ctx, job, jobstate.Succeeded); err != nil {
		return err
	}

	e.logger.Info("analysis succeeded", slog.Int64("job_id", job.ID))

	return nil
}

func (e *Engine) archive(ctx context.Context, job *jobstate.Job, worker Worker) error {
	if err := worker.ArchiveOutput(ctx, job); err != nil {
		return fmt.Errorf("archive job %d: %w", job.ID, err)
	}

	if err := e.store.Transition(ctx, job, jobstate.Archived); err != nil {
		return err
	}

	e.logger.Info("archived job", slog.Int64("job_id", job.ID))

	return nil
}

func (e *Engine) annotate(ctx context.Context, job *jobstate.Job, worker Worker) error {
	if err := worker.Annotate(ctx, job); err != nil {
		return fmt.Errorf("annotate job %d: %w", job.ID, err)
	}

	if err := e.store.Transition(ctx, job, jobstate.Annotated); err != nil {
		return err
	}

	e.logger.Info("annotated job", slog.Int64("job_id", job.ID))

	return nil
}

func (e *Engine) unstage(ctx context.Context, job *jobstate.Job, worker Worker) error {
	if err := worker.Unstage(ctx, job); err != nil {
		return fmt.Errorf("unstage job %d: %w", job.ID, err)
	}

	if err := e.store.Transition(ctx, job, jobstate.Unstaged); err != nil {
		return err
	}

	e.logger.Info("unstaged job", slog.Int64("job_id", job.ID))

	return nil
}

func (e *Engine) complete(ctx context.Context, job *jobstate.Job) error {
	if err := e.store.Transition(ctx, job, jobstate.Completed); err != nil {
		return err
	}

	e.logger.Info("completed job", slog.Int64("job_id", job.ID))

	return nil
}

// Cancel moves job to CANCELLED from any non-terminal state. If job is
// currently STAGED or ANNOTATED, worker.Unstage is invoked first to free any
// local scratch directory.
func (e *Engine) Cancel(ctx context.Context, job *jobstate.Job, worker Worker) error {
	if job.State == jobstate.Staged || job.State == jobstate.Annotated {
		if err := worker.Unstage(ctx, job); err != nil {
			return fmt.Errorf("cancel job %d: unstage: %w", job.ID, err)
		}
	}

	if err := e.store.Transition(ctx, job, jobstate.Cancelled); err != nil {
		return err
	}

	e.logger.Info("cancelled job", slog.Int64("job_id", job.ID))

	return nil
}
