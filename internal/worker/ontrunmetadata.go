package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/wtsi-npg/workbot/internal/archive"
	"github.com/wtsi-npg/workbot/internal/jobstate"
	"github.com/wtsi-npg/workbot/internal/pipeline"
	"github.com/wtsi-npg/workbot/internal/warehouse"
)

var _ pipeline.Worker = (*ONTRunMetadataWorker)(nil)

// ErrExpectedSingleMeta indicates an ONTRunMetadataUpdate job had a
// different number of ONTMeta rows than the exactly-one this worker requires.
var ErrExpectedSingleMeta = errors.New("expected exactly one ONTMeta row")

// ONTRunMetadataWorker decorates an already-archived collection (and its
// per-barcode sub-collections) with warehouse-sourced sample/study
// metadata. It moves no data: every step but annotate is an empty
// transition.
type ONTRunMetadataWorker struct {
	archive   archive.Client
	warehouse warehouse.Client
	meta      MetaStore
	logger    *slog.Logger
}

// NewONTRunMetadataWorker builds an ONTRunMetadataWorker.
func NewONTRunMetadataWorker(
	client archive.Client,
	warehouseClient warehouse.Client,
	meta MetaStore,
	logger *slog.Logger,
) *ONTRunMetadataWorker {
	return &ONTRunMetadataWorker{
		archive:   client,
		warehouse: warehouseClient,
		meta:      meta,
		logger:    logger,
	}
}

// StageInput is an empty transition: this worker moves no data.
func (w *ONTRunMetadataWorker) StageInput(_ context.Context, _ *jobstate.Job) (bool, error) {
	return true, nil
}

// RunAnalysis is an empty transition: this worker moves no data.
func (w *ONTRunMetadataWorker) RunAnalysis(_ context.Context, _ *jobstate.Job) error {
	return nil
}

// ArchiveOutput is an empty transition: this worker moves no data.
func (w *ONTRunMetadataWorker) ArchiveOutput(_ context.Context, _ *jobstate.Job) error {
	return nil
}

// Unstage is an empty transition: this worker moves no data.
func (w *ONTRunMetadataWorker) Unstage(_ context.Context, _ *jobstate.Job) error {
	return nil
}

// Annotate looks up the job's single ONTMeta row, queries the warehouse for
// every flowcell matching (experimentName, instrumentSlot), and attaches
// experiment/slot tags to the top-level collection plus per-barcode
// sample/study tags to each barcode sub-collection (or, for a
// non-multiplexed run, directly to the top-level collection).
func (w *ONTRunMetadataWorker) Annotate(ctx context.Context, job *jobstate.Job) error {
	rows, err := w.meta.FindMeta(ctx, job)
	if err != nil {
		return fmt.Errorf("annotate: find meta: %w", err)
	}

	if len(rows) != 1 {
		return fmt.Errorf("%w: job %d has %d", ErrExpectedSingleMeta, job.ID, len(rows))
	}

	meta := rows[0]

	w.logger.Debug("searching warehouse for plex information",
		slog.String("experiment_name", meta.ExperimentName),
		slog.Int("instrument_slot", meta.InstrumentSlot))

	flowcells, err := w.warehouse.FlowcellsFor(ctx, meta.ExperimentName, meta.InstrumentSlot)
	if err != nil {
		return fmt.Errorf("annotate: flowcells for %s/%d: %w", meta.ExperimentName, meta.InstrumentSlot, err)
	}

	topLevel := []archive.AVU{
		{Namespace: "ont", Attribute: "experiment_name", Value: meta.ExperimentName},
		{Namespace: "ont", Attribute: "instrument_slot", Value: strconv.Itoa(meta.InstrumentSlot)},
	}

	if _, err := w.archive.MetaAdd(ctx, job.InputPath, topLevel); err != nil {
		return fmt.Errorf("annotate: meta add on %s: %w", job.InputPath, err)
	}

	for _, fc := range flowcells {
		target := job.InputPath
		tags := sampleStudyTags(fc)

		if fc.TagIdentifier != nil {
			target = fmt.Sprintf("%s/barcode%02d", job.InputPath, *fc.TagIdentifier)
			tags = append([]archive.AVU{{Attribute: "tag_index", Value: strconv.Itoa(*fc.TagIdentifier)}}, tags...)
		}

		if _, err := w.archive.MetaAdd(ctx, target, tags); err != nil {
			return fmt.Errorf("annotate: meta add on %s: %w", target, err)
		}
	}

	return nil
}

// sampleStudyTags builds the study and sample AVUs for one flowcell row,
// skipping any attribute whose warehouse value is empty, per the
// annotation contract.
func sampleStudyTags(fc warehouse.Flowcell) []archive.AVU {
	var tags []archive.AVU

	addIfPresent := func(attr, value string) {
		if value != "" {
			tags = append(tags, archive.AVU{Attribute: attr, Value: value})
		}
	}

	addIfPresent("study_id", fc.Study.LIMSStudyID)
	addIfPresent("study_name", fc.Study.Name)
	addIfPresent("study_accession_number", fc.Study.Accession)

	addIfPresent("sample_id", fc.Sample.ID)
	addIfPresent("sample_name", fc.Sample.Name)
	addIfPresent("sample_accession_number", fc.Sample.Accession)
	addIfPresent("sample_donor_id", fc.Sample.Donor)
	addIfPresent("sample_supplier_name", fc.Sample.Supplier)

	if fc.Sample.ConsentWithdrawn {
		tags = append(tags, archive.AVU{Attribute: "sample_consent_withdrawn", Value: "1"})
	}

	return tags
}
