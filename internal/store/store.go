package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/lib/pq"

	"github.com/wtsi-npg/workbot/internal/config"
	"github.com/wtsi-npg/workbot/internal/jobstate"
)

// Sentinel errors for job store operations.
var (
	// ErrNoDatabaseConnection is returned when a nil connection is supplied.
	ErrNoDatabaseConnection = errors.New("no database connection")

	// ErrJobStoreFailed wraps unexpected failures from job store operations.
	ErrJobStoreFailed = errors.New("job store operation failed")

	// ErrJobAlreadyConcluded is returned by InsertJob when an existing job for
	// the same (inputPath, workKind) has already reached an end-state.
	ErrJobAlreadyConcluded = errors.New("job already concluded for this input and work kind")

	// ErrJobNotFound is returned when an operation references a job that does
	// not exist in the store.
	ErrJobNotFound = errors.New("job not found")
)

// JobStore implements the durable job lifecycle store described for WorkBot:
// insertion with the active-job invariant, filtered lookups, guarded state
// transitions and ONTMeta attachment.
type JobStore struct {
	conn   *Connection
	logger *slog.Logger
}

// JobStoreOption configures optional JobStore behaviour.
type JobStoreOption func(*JobStore)

// WithLogger overrides the default stdout JSON logger.
func WithLogger(logger *slog.Logger) JobStoreOption {
	return func(s *JobStore) {
		s.logger = logger
	}
}

// NewJobStore creates a PostgreSQL-backed job store. Returns ErrNoDatabaseConnection
// if conn is nil.
func NewJobStore(conn *Connection, opts ...JobStoreOption) (*JobStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	store := &JobStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// HealthCheck verifies the underlying database connection is reachable.
func (s *JobStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// InsertJob inserts a new job with state PENDING and returns it.
//
// Enforces the active-job invariant: before inserting, it scans existing rows
// for the same (inputPath, workKind). If any row is in the work kind's
// end-states set, the insertion fails with ErrJobAlreadyConcluded. If any row
// is in some other non-end state, the insertion is a no-op: it returns
// (nil, nil), which the caller should interpret as "already queued".
func (s *JobStore) InsertJob(
	ctx context.Context,
	inputPath string,
	workKind jobstate.WorkKind,
) (*jobstate.Job, error) {
	endStates, err := jobstate.EndStates(workKind)
	if err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrJobStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT state FROM job
		WHERE input_path = $1 AND work_kind = $2
		FOR UPDATE
	`, inputPath, string(workKind))
	if err != nil {
		return nil, fmt.Errorf("%w: scan existing jobs: %w", ErrJobStoreFailed, err)
	}

	var existingStates []jobstate.State

	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			_ = rows.Close()

			return nil, fmt.Errorf("%w: scan existing job state: %w", ErrJobStoreFailed, err)
		}

		existingStates = append(existingStates, jobstate.State(state))
	}

	if err := rows.Err(); err != nil {
		_ = rows.Close()

		return nil, fmt.Errorf("%w: iterate existing jobs: %w", ErrJobStoreFailed, err)
	}

	_ = rows.Close()

	for _, state := range existingStates {
		if endStates[state] {
			return nil, fmt.Errorf("%w: input_path=%s work_kind=%s", ErrJobAlreadyConcluded, inputPath, workKind)
		}
	}

	if len(existingStates) > 0 {
		// Already queued in a non-end state: a no-op, per the active-job invariant.
		return nil, nil
	}

	var (
		id          int64
		createdAt   sql.NullTime
		lastUpdated sql.NullTime
	)

	err = tx.QueryRowContext(ctx, `
		INSERT INTO job (input_path, work_kind, state)
		VALUES ($1, $2, $3)
		RETURNING id, created, last_updated
	`, inputPath, string(workKind), string(jobstate.Pending)).Scan(&id, &createdAt, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("%w: insert job: %w", ErrJobStoreFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit insert: %w", ErrJobStoreFailed, err)
	}

	job := &jobstate.Job{
		ID:          id,
		InputPath:   inputPath,
		WorkKind:    workKind,
		State:       jobstate.Pending,
		CreatedAt:   createdAt.Time,
		LastUpdated: lastUpdated.Time,
	}

	s.logger.Info("inserted job",
		slog.Int64("job_id", job.ID),
		slog.String("input_path", inputPath),
		slog.String("work_kind", string(workKind)),
	)

	return job, nil
}

// FindJobs returns jobs matching inputPath and workKind, optionally filtered
// further by includeStates (only these states) and excludeStates (none of
// these states). Either filter may be nil or empty to skip it.
func (s *JobStore) FindJobs(
	ctx context.Context,
	inputPath string,
	workKind jobstate.WorkKind,
	includeStates, excludeStates []jobstate.State,
) ([]*jobstate.Job, error) {
	query := `
		SELECT id, input_path, work_kind, state, created, last_updated
		FROM job
		WHERE input_path = $1 AND work_kind = $2
	`
	args := []any{inputPath, string(workKind)}

	if len(includeStates) > 0 {
		query += fmt.Sprintf(" AND state = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(statesToStrings(includeStates)))
	}

	if len(excludeStates) > 0 {
		query += fmt.Sprintf(" AND NOT (state = ANY($%d))", len(args)+1)
		args = append(args, pq.Array(statesToStrings(excludeStates)))
	}

	query += " ORDER BY id"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: find jobs: %w", ErrJobStoreFailed, err)
	}
	defer func() { _ = rows.Close() }()

	return scanJobs(rows)
}

// FindInProgress returns every job whose state is neither COMPLETED nor CANCELLED.
func (s *JobStore) FindInProgress(ctx context.Context) ([]*jobstate.Job, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, input_path, work_kind, state, created, last_updated
		FROM job
		WHERE state NOT IN ($1, $2)
		ORDER BY id
	`, string(jobstate.Completed), string(jobstate.Cancelled))
	if err != nil {
		return nil, fmt.Errorf("%w: find in-progress jobs: %w", ErrJobStoreFailed, err)
	}
	defer func() { _ = rows.Close() }()

	return scanJobs(rows)
}

// Transition atomically validates newState against job's current state and,
// if legal, commits the move along with a job_state_history entry. On
// success job.State and job.LastUpdated are updated in place.
func (s *JobStore) Transition(ctx context.Context, job *jobstate.Job, newState jobstate.State) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrJobStoreFailed)
	}

	if err := jobstate.ValidateTransition(job.State, newState); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrJobStoreFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	var lastUpdated sql.NullTime

	err = tx.QueryRowContext(ctx, `
		UPDATE job
		SET state = $1, last_updated = now()
		WHERE id = $2 AND state = $3
		RETURNING last_updated
	`, string(newState), job.ID, string(job.State)).Scan(&lastUpdated)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: job_id=%d", ErrJobNotFound, job.ID)
	}

	if err != nil {
		return fmt.Errorf("%w: update job state: %w", ErrJobStoreFailed, err)
	}

	var nextRank int

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(rank), 0) + 1 FROM job_state_history WHERE job_id = $1
	`, job.ID).Scan(&nextRank)
	if err != nil {
		return fmt.Errorf("%w: compute history rank: %w", ErrJobStoreFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO job_state_history (job_id, state, rank)
		VALUES ($1, $2, $3)
	`, job.ID, string(newState), nextRank)
	if err != nil {
		return fmt.Errorf("%w: insert history: %w", ErrJobStoreFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transition: %w", ErrJobStoreFailed, err)
	}

	s.logger.Info("transitioned job",
		slog.Int64("job_id", job.ID),
		slog.String("from", string(job.State)),
		slog.String("to", string(newState)),
	)

	job.State = newState
	job.LastUpdated = lastUpdated.Time

	return nil
}

// AttachMeta adds an ONTMeta row for job.
func (s *JobStore) AttachMeta(
	ctx context.Context,
	job *jobstate.Job,
	experimentName string,
	instrumentSlot int,
) (*jobstate.ONTMeta, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: job is nil", ErrJobStoreFailed)
	}

	var id int64

	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO ont_meta (job_id, experiment_name, instrument_slot)
		VALUES ($1, $2, $3)
		RETURNING id
	`, job.ID, experimentName, instrumentSlot).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("%w: attach meta: %w", ErrJobStoreFailed, err)
	}

	return &jobstate.ONTMeta{
		JobID:          job.ID,
		ExperimentName: experimentName,
		InstrumentSlot: instrumentSlot,
	}, nil
}

// FindMeta returns all ONTMeta rows attached to job.
func (s *JobStore) FindMeta(ctx context.Context, job *jobstate.Job) ([]*jobstate.ONTMeta, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: job is nil", ErrJobStoreFailed)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT job_id, experiment_name, instrument_slot
		FROM ont_meta
		WHERE job_id = $1
		ORDER BY id
	`, job.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: find meta: %w", ErrJobStoreFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var meta []*jobstate.ONTMeta

	for rows.Next() {
		m := &jobstate.ONTMeta{}
		if err := rows.Scan(&m.JobID, &m.ExperimentName, &m.InstrumentSlot); err != nil {
			return nil, fmt.Errorf("%w: scan meta: %w", ErrJobStoreFailed, err)
		}

		meta = append(meta, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate meta: %w", ErrJobStoreFailed, err)
	}

	return meta, nil
}

func scanJobs(rows *sql.Rows) ([]*jobstate.Job, error) {
	var jobs []*jobstate.Job

	for rows.Next() {
		var (
			job      jobstate.Job
			workKind string
			state    string
		)

		if err := rows.Scan(
			&job.ID, &job.InputPath, &workKind, &state, &job.CreatedAt, &job.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("%w: scan job: %w", ErrJobStoreFailed, err)
		}

		job.WorkKind = jobstate.WorkKind(workKind)
		job.State = jobstate.State(state)
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate jobs: %w", ErrJobStoreFailed, err)
	}

	return jobs, nil
}

func statesToStrings(states []jobstate.State) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}

	return out
}
