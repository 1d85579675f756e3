package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtsi-npg/workbot/internal/archive"
	"github.com/wtsi-npg/workbot/internal/jobstate"
	"github.com/wtsi-npg/workbot/internal/pipeline"
)

// fakeStateStore applies transitions in-memory, validating them the same way
// the real store does.
type fakeStateStore struct{}

func (s *fakeStateStore) Transition(_ context.Context, job *jobstate.Job, newState jobstate.State) error {
	if err := jobstate.ValidateTransition(job.State, newState); err != nil {
		return err
	}

	job.State = newState

	return nil
}

// TestONTRunDataWorkerEndToEndTagsArchiveOutputCollection drives a job
// through the full pipeline (stage, analyse, archive, annotate, unstage,
// complete) against a fake archive and checks that the ont: tags land on the
// output collection the job's own ArchiveOutput step created, not on the
// source collection the broker discovered it from.
func TestONTRunDataWorkerEndToEndTagsArchiveOutputCollection(t *testing.T) {
	job := jobstate.NewJob("/archive/run42", jobstate.ONTRunData)
	job.ID = 9

	fa := newFakeArchive()
	fa.exists["/archive/run42"] = true
	fa.listing["/archive/run42"] = []archive.Entry{{Name: "final_report.txt.gz", IsData: true}}

	meta := &fakeMetaStore{rows: map[int64][]*jobstate.ONTMeta{
		9: {{JobID: 9, ExperimentName: "exp001", InstrumentSlot: 2}},
	}}

	archiveRoot := t.TempDir()
	stagingRoot := t.TempDir()
	w := NewONTRunDataWorker(fa, meta, archiveRoot, stagingRoot, "/bin/true", discardLogger())

	// Get() in the fake does not itself create files, so pre-create the
	// directory it is expected to leave behind (named after the archive
	// path's leaf) to exercise the staging rename step.
	require.NoError(t, os.MkdirAll(filepath.Join(stagingRoot, "9", "run42"), 0o755))

	engine := pipeline.NewEngine(&fakeStateStore{}, pipeline.WithLogger(discardLogger()))

	err := engine.Run(context.Background(), job, w)
	require.NoError(t, err)
	assert.Equal(t, jobstate.Completed, job.State)

	outputCollection := w.archivePath(job)

	assert.Equal(t, []archive.AVU{
		{Namespace: "ont", Attribute: "experiment_name", Value: "exp001"},
		{Namespace: "ont", Attribute: "instrument_slot", Value: "2"},
	}, fa.meta[outputCollection])

	assert.Empty(t, fa.meta["/archive/run42"], "source collection must not be re-tagged")
	assert.Contains(t, fa.putCalls, w.stagingOutputPath(job)+"->"+outputCollection)
}
