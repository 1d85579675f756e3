package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wtsi-npg/workbot/internal/archive"
	"github.com/wtsi-npg/workbot/internal/broker"
	"github.com/wtsi-npg/workbot/internal/config"
	"github.com/wtsi-npg/workbot/internal/jobstate"
	"github.com/wtsi-npg/workbot/internal/pipeline"
	"github.com/wtsi-npg/workbot/internal/store"
	"github.com/wtsi-npg/workbot/internal/warehouse"
	"github.com/wtsi-npg/workbot/internal/worker"
)

// App wires together the job store, archive client, warehouse client and
// work-kind registry into the operations the CLI commands add (manual
// enqueue) and run (one broker pass followed by an engine pass over every
// in-progress job) invoke. The init command does not use an App; see
// initSchema.
type App struct {
	cfg       *Config
	jobs      *store.JobStore
	archive   archive.Client
	warehouse warehouse.Client
	registry  worker.Registry
	engine    *pipeline.Engine
	logger    *slog.Logger
}

// NewApp opens the job store and warehouse database connections, builds the
// archive client and loads the work-kind registry.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	storeConn, err := store.NewConnection(store.LoadConfig())
	if err != nil {
		return nil, fmt.Errorf("connect job store: %w", err)
	}

	jobs, err := store.NewJobStore(storeConn, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build job store: %w", err)
	}

	warehouseConn, err := warehouse.NewConnection(warehouse.LoadConfig())
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}

	warehouseClient, err := warehouse.NewPostgresClient(warehouseConn, warehouse.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build warehouse client: %w", err)
	}

	registry, err := worker.FindRegistry()
	if err != nil {
		return nil, fmt.Errorf("load work-kind registry: %w", err)
	}

	archiveClient := archive.NewBatonClient(cfg.BatonExecutable, archive.WithLogger(logger))

	return &App{
		cfg:       cfg,
		jobs:      jobs,
		archive:   archiveClient,
		warehouse: warehouseClient,
		registry:  registry,
		engine:    pipeline.NewEngine(jobs, pipeline.WithLogger(logger)),
		logger:    logger,
	}, nil
}

// buildWorker resolves kind's registry entry to a concrete pipeline.Worker.
func (a *App) buildWorker(kind jobstate.WorkKind) (pipeline.Worker, error) {
	entry, ok := a.registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no registry entry for %s", worker.ErrUnknownWorkerClass, kind)
	}

	switch entry.Class {
	case "ONTRunDataWorker":
		return worker.NewONTRunDataWorker(a.archive, a.jobs, a.cfg.ArchiveRoot, a.cfg.StagingRoot, entry.Command, a.logger), nil
	case "ONTRunMetadataWorker":
		return worker.NewONTRunMetadataWorker(a.archive, a.warehouse, a.jobs, a.logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", worker.ErrUnknownWorkerClass, entry.Class)
	}
}

// initSchema creates the job store schema and its state/work_kind
// dictionaries. It stands alone, rather than as an App method, so that
// running it never requires a reachable warehouse database, archive
// executable or work-kind registry file.
func initSchema(logger *slog.Logger) error {
	storeCfg := store.LoadConfig()
	if err := storeCfg.Validate(); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	databaseURL := config.GetEnvStr("WORKBOT_DATABASE_URL", "")

	if err := applyMigrations(databaseURL); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	logger.Info("initialised job store schema")

	return nil
}

// Add enqueues a single job for inputPath/kind and runs its engine pass
// immediately, mirroring what a broker-discovered job would undergo.
func (a *App) Add(ctx context.Context, inputPath string, kind jobstate.WorkKind) error {
	if !jobstate.ValidWorkKind(kind) {
		return fmt.Errorf("%w: %s", jobstate.ErrUnknownWorkKind, kind)
	}

	job, err := a.jobs.InsertJob(ctx, inputPath, kind)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	if job == nil {
		a.logger.Info("job already queued, nothing to add", slog.String("input_path", inputPath))

		return nil
	}

	return a.runJob(ctx, job)
}

// Run performs one broker discovery pass since startDate for workKind, then
// drives every in-progress job (including any just discovered) through its
// engine pass.
func (a *App) Run(ctx context.Context, startDate time.Time, workKind jobstate.WorkKind) error {
	b := broker.NewBroker(a.warehouse, a.archive, a.jobs, workKind, broker.WithZone(a.cfg.ArchiveZone), broker.WithLogger(a.logger))

	inserted, err := b.RequestWork(ctx, startDate)
	if err != nil {
		return fmt.Errorf("run: broker pass: %w", err)
	}

	a.logger.Info("broker pass complete", slog.Int("inserted", inserted))

	jobs, err := a.jobs.FindInProgress(ctx)
	if err != nil {
		return fmt.Errorf("run: find in-progress jobs: %w", err)
	}

	var errs []error

	for _, job := range jobs {
		if err := a.runJob(ctx, job); err != nil {
			a.logger.Error("job pipeline failed", slog.Int64("job_id", job.ID), slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *App) runJob(ctx context.Context, job *jobstate.Job) error {
	w, err := a.buildWorker(job.WorkKind)
	if err != nil {
		return fmt.Errorf("job %d: %w", job.ID, err)
	}

	return a.engine.Run(ctx, job, w)
}
