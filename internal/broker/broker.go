// Package broker implements discovery and enqueue: turning recent warehouse
// activity into PENDING jobs the pipeline engine can then drive.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wtsi-npg/workbot/internal/archive"
	"github.com/wtsi-npg/workbot/internal/config"
	"github.com/wtsi-npg/workbot/internal/jobstate"
	"github.com/wtsi-npg/workbot/internal/warehouse"
)

// WarehouseDiscoverer is the subset of the warehouse client the broker needs
// to discover recently-active experiment/slot tuples.
type WarehouseDiscoverer interface {
	RecentExperimentSlots(ctx context.Context, since time.Time) ([]warehouse.ExperimentSlot, error)
}

// ErrWarehouseQuery wraps a warehouse failure during a broker pass. The pass
// aborts immediately on this error; the warehouse is queried before any job
// is inserted, so the pass commits nothing.
var ErrWarehouseQuery = errors.New("warehouse query failed during discovery")

// JobStore is the subset of the job store the broker needs to enqueue work.
// Defined here so Broker does not depend on the concrete Postgres-backed
// implementation.
type JobStore interface {
	InsertJob(ctx context.Context, inputPath string, workKind jobstate.WorkKind) (*jobstate.Job, error)
	AttachMeta(ctx context.Context, job *jobstate.Job, experimentName string, instrumentSlot int) (*jobstate.ONTMeta, error)
}

// ArchiveQuerier is the subset of the archive client the broker needs to
// resolve an experiment/slot tuple to one or more archive collection paths.
type ArchiveQuerier interface {
	MetaQuery(ctx context.Context, avus []archive.AVU, scope archive.Scope, zone string) ([]string, error)
}

// Broker drives discovery: it asks the warehouse for recently-updated
// experiment/slot tuples, resolves each to an archive path via metadata
// query, and enqueues a job for every resolved path not already queued.
type Broker struct {
	warehouse WarehouseDiscoverer
	archive   ArchiveQuerier
	store     JobStore
	workKind  jobstate.WorkKind
	zone      string
	logger    *slog.Logger
}

// Option configures optional Broker behaviour.
type Option func(*Broker)

// WithLogger overrides the default stdout JSON logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithZone restricts archive metadata queries to a specific zone. The
// default, an empty zone, searches the archive's default zone.
func WithZone(zone string) Option {
	return func(b *Broker) {
		b.zone = zone
	}
}

// NewBroker builds a Broker. workKind is the kind of job it enqueues for
// each resolved archive path (ONTRunData in the core deployment).
func NewBroker(
	warehouseClient WarehouseDiscoverer,
	archiveClient ArchiveQuerier,
	store JobStore,
	workKind jobstate.WorkKind,
	opts ...Option,
) *Broker {
	b := &Broker{
		warehouse: warehouseClient,
		archive:   archiveClient,
		store:     store,
		workKind:  workKind,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// RequestWork runs one discovery pass since startDate and returns the number
// of jobs newly inserted. Running it twice over the same window inserts no
// duplicates: each insertion attempt is itself idempotent (see
// JobStore.InsertJob's active-job invariant).
func (b *Broker) RequestWork(ctx context.Context, startDate time.Time) (int, error) {
	slots, err := b.warehouse.RecentExperimentSlots(ctx, startDate)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWarehouseQuery, err)
	}

	inserted := 0

	for _, slot := range slots {
		paths, err := b.archive.MetaQuery(ctx, []archive.AVU{
			{Namespace: "ont", Attribute: "experiment_name", Value: slot.ExperimentName},
			{Namespace: "ont", Attribute: "instrument_slot", Value: fmt.Sprintf("%d", slot.InstrumentSlot)},
		}, archive.Collections, b.zone)
		if err != nil {
			return inserted, fmt.Errorf("meta query for %s/%d: %w", slot.ExperimentName, slot.InstrumentSlot, err)
		}

		if len(paths) == 0 {
			b.logger.Debug("run not yet in archive, skipping",
				slog.String("experiment_name", slot.ExperimentName),
				slog.Int("instrument_slot", slot.InstrumentSlot))

			continue
		}

		for _, path := range paths {
			job, err := b.store.InsertJob(ctx, path, b.workKind)
			if err != nil {
				return inserted, fmt.Errorf("insert job for %s: %w", path, err)
			}

			if job == nil {
				// Already queued in a non-end state: a no-op.
				continue
			}

			if _, err := b.store.AttachMeta(ctx, job, slot.ExperimentName, slot.InstrumentSlot); err != nil {
				return inserted, fmt.Errorf("attach meta for job %d: %w", job.ID, err)
			}

			inserted++

			b.logger.Info("enqueued job",
				slog.Int64("job_id", job.ID),
				slog.String("input_path", path),
				slog.String("experiment_name", slot.ExperimentName),
				slog.Int("instrument_slot", slot.InstrumentSlot))
		}
	}

	return inserted, nil
}
