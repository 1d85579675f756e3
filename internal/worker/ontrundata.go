package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wtsi-npg/workbot/internal/archive"
	"github.com/wtsi-npg/workbot/internal/jobstate"
	"github.com/wtsi-npg/workbot/internal/pipeline"
)

var _ pipeline.Worker = (*ONTRunDataWorker)(nil)

// finalReportMarker is the producer's completion marker: an ONT run
// directory is considered complete once an entry matching this suffix
// appears among its immediate children.
const finalReportMarker = "final_report.txt.gz"

// MetaStore is the subset of the job store ONT workers need to read
// ONTMeta rows attached to a job.
type MetaStore interface {
	FindMeta(ctx context.Context, job *jobstate.Job) ([]*jobstate.ONTMeta, error)
}

// ONTRunDataWorker stages, analyses, archives and annotates raw Oxford
// Nanopore run data. Each job owns a unique subtree under archiveRoot and
// stagingRoot, keyed by job ID.
type ONTRunDataWorker struct {
	archive archive.Client
	meta    MetaStore
	logger  *slog.Logger

	archiveRoot string
	stagingRoot string
	command     string
}

// NewONTRunDataWorker builds an ONTRunDataWorker. command is the configured
// analysis executable path for this work kind, as named in the work-kind
// registry.
func NewONTRunDataWorker(
	client archive.Client,
	meta MetaStore,
	archiveRoot, stagingRoot, command string,
	logger *slog.Logger,
) *ONTRunDataWorker {
	return &ONTRunDataWorker{
		archive:     client,
		meta:        meta,
		logger:      logger,
		archiveRoot: archiveRoot,
		stagingRoot: stagingRoot,
		command:     command,
	}
}

func (w *ONTRunDataWorker) archivePath(job *jobstate.Job) string {
	return filepath.ToSlash(filepath.Join(w.archiveRoot, strconv.FormatInt(job.ID, 10)))
}

func (w *ONTRunDataWorker) stagingPath(job *jobstate.Job) string {
	return filepath.Join(w.stagingRoot, strconv.FormatInt(job.ID, 10))
}

func (w *ONTRunDataWorker) stagingInputPath(job *jobstate.Job) string {
	return filepath.Join(w.stagingPath(job), "input")
}

func (w *ONTRunDataWorker) stagingOutputPath(job *jobstate.Job) string {
	return filepath.Join(w.stagingPath(job), "output")
}

// StageInput verifies the input archive collection exists and is complete
// (an entry matching final_report.txt.gz at its immediate children level),
// then downloads it into {stagingRoot}/{jobId}/input.
func (w *ONTRunDataWorker) StageInput(ctx context.Context, job *jobstate.Job) (bool, error) {
	exists, err := w.archive.Exists(ctx, job.InputPath)
	if err != nil {
		return false, fmt.Errorf("stage input: %w", err)
	}

	if !exists {
		return false, nil
	}

	complete, err := w.isInputComplete(ctx, job.InputPath)
	if err != nil {
		return false, fmt.Errorf("stage input: %w", err)
	}

	if !complete {
		return false, nil
	}

	dst := w.stagingPath(job)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return false, fmt.Errorf("stage input: create %s: %w", dst, err)
	}

	if err := w.archive.Get(ctx, job.InputPath, dst, true); err != nil {
		return false, fmt.Errorf("stage input: download %s: %w", job.InputPath, err)
	}

	// The archive leaf directory name becomes a new directory within dst;
	// rename it to the generic "input" path the analyse step expects.
	leaf := filepath.Join(dst, filepath.Base(job.InputPath))
	input := w.stagingInputPath(job)

	if err := os.Rename(leaf, input); err != nil {
		return false, fmt.Errorf("stage input: move %s to %s: %w", leaf, input, err)
	}

	w.logger.Info("staged input", slog.Int64("job_id", job.ID), slog.String("path", job.InputPath))

	return true, nil
}

func (w *ONTRunDataWorker) isInputComplete(ctx context.Context, inputPath string) (bool, error) {
	entries, err := w.archive.List(ctx, inputPath)
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		if e.IsData && strings.HasSuffix(e.Name, finalReportMarker) {
			return true, nil
		}
	}

	return false, nil
}

// RunAnalysis resolves the configured command for this work kind, appends
// "-i {stagingInputDir} -o {stagingOutputDir} -v", creates the output
// directory and executes the subprocess with cwd set to it.
func (w *ONTRunDataWorker) RunAnalysis(ctx context.Context, job *jobstate.Job) error {
	outputDir := w.stagingOutputPath(job)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("run analysis: create %s: %w", outputDir, err)
	}

	args := []string{"-i", w.stagingInputPath(job), "-o", outputDir, "-v"}

	cmd := exec.CommandContext(ctx, w.command, args...)
	cmd.Dir = outputDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	w.logger.Info("running analysis", slog.Int64("job_id", job.ID), slog.String("command", w.command))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s for job %d failed: %w: %s", w.command, job.ID, err, stderr.String())
	}

	return nil
}

// ArchiveOutput ensures the archive destination collection exists, then
// recursively uploads the staging output directory into it.
func (w *ONTRunDataWorker) ArchiveOutput(ctx context.Context, job *jobstate.Job) error {
	dst := w.archivePath(job)

	if err := w.archive.MkdirAll(ctx, dst); err != nil {
		return fmt.Errorf("archive output: mkdir %s: %w", dst, err)
	}

	if err := w.archive.Put(ctx, w.stagingOutputPath(job), dst); err != nil {
		return fmt.Errorf("archive output: upload to %s: %w", dst, err)
	}

	w.logger.Info("archived output", slog.Int64("job_id", job.ID), slog.String("path", dst))

	return nil
}

// Annotate reads all ONTMeta rows for the job and attaches the
// experiment_name/instrument_slot pair (namespace "ont") to the archive
// collection for each.
func (w *ONTRunDataWorker) Annotate(ctx context.Context, job *jobstate.Job) error {
	rows, err := w.meta.FindMeta(ctx, job)
	if err != nil {
		return fmt.Errorf("annotate: find meta: %w", err)
	}

	dst := w.archivePath(job)

	for _, m := range rows {
		avus := []archive.AVU{
			{Namespace: "ont", Attribute: "experiment_name", Value: m.ExperimentName},
			{Namespace: "ont", Attribute: "instrument_slot", Value: strconv.Itoa(m.InstrumentSlot)},
		}

		if _, err := w.archive.MetaAdd(ctx, dst, avus); err != nil {
			return fmt.Errorf("annotate: meta add on %s: %w", dst, err)
		}
	}

	return nil
}

// Unstage recursively deletes the job's local scratch subtree.
func (w *ONTRunDataWorker) Unstage(_ context.Context, job *jobstate.Job) error {
	path := w.stagingPath(job)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("unstage: remove %s: %w", path, err)
	}

	return nil
}
