package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wtsi-npg/workbot/internal/archive"
	"github.com/wtsi-npg/workbot/internal/jobstate"
	"github.com/wtsi-npg/workbot/internal/warehouse"
)

// fakeArchive is an in-memory archive.Client stand-in for worker tests.
type fakeArchive struct {
	exists    map[string]bool
	listing   map[string][]archive.Entry
	meta      map[string][]archive.AVU
	putCalls  []string
	getCalls  []string
	mkdirs    []string
	existsErr error
	listErr   error
	getErr    error
	putErr    error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		exists:  make(map[string]bool),
		listing: make(map[string][]archive.Entry),
		meta:    make(map[string][]archive.AVU),
	}
}

func (f *fakeArchive) Exists(_ context.Context, path string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}

	return f.exists[path], nil
}

func (f *fakeArchive) List(_ context.Context, path string) ([]archive.Entry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	return f.listing[path], nil
}

func (f *fakeArchive) MkdirAll(_ context.Context, path string) error {
	f.mkdirs = append(f.mkdirs, path)

	return nil
}

func (f *fakeArchive) Get(_ context.Context, srcPath, destDir string, _ bool) error {
	if f.getErr != nil {
		return f.getErr
	}

	f.getCalls = append(f.getCalls, srcPath+"->"+destDir)

	return nil
}

func (f *fakeArchive) Put(_ context.Context, srcDir, destPath string) error {
	if f.putErr != nil {
		return f.putErr
	}

	f.putCalls = append(f.putCalls, srcDir+"->"+destPath)

	return nil
}

func (f *fakeArchive) MetaAdd(_ context.Context, path string, avus []archive.AVU) (int, error) {
	f.meta[path] = append(f.meta[path], avus...)

	return len(avus), nil
}

func (f *fakeArchive) MetaRemove(_ context.Context, _ string, avus []archive.AVU) (int, error) {
	return len(avus), nil
}

func (f *fakeArchive) MetaSupersede(_ context.Context, _ string, avus []archive.AVU, _ ...archive.SupersedeOption) (int, int, error) {
	return 0, len(avus), nil
}

func (f *fakeArchive) MetaQuery(_ context.Context, _ []archive.AVU, _ archive.Scope, _ string) ([]string, error) {
	return nil, nil
}

var _ archive.Client = (*fakeArchive)(nil)

// fakeMetaStore is an in-memory MetaStore stand-in for worker tests.
type fakeMetaStore struct {
	rows map[int64][]*jobstate.ONTMeta
	err  error
}

func (f *fakeMetaStore) FindMeta(_ context.Context, job *jobstate.Job) ([]*jobstate.ONTMeta, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.rows[job.ID], nil
}

// fakeWarehouse is an in-memory warehouse.Client stand-in for worker tests.
type fakeWarehouse struct {
	flowcells map[string][]warehouse.Flowcell
	err       error
}

func (f *fakeWarehouse) RecentExperimentSlots(_ context.Context, _ time.Time) ([]warehouse.ExperimentSlot, error) {
	return nil, errors.New("not used in these tests")
}

func (f *fakeWarehouse) FlowcellsFor(_ context.Context, experimentName string, instrumentSlot int) ([]warehouse.Flowcell, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.flowcells[flowcellKey(experimentName, instrumentSlot)], nil
}

func flowcellKey(experimentName string, instrumentSlot int) string {
	return fmt.Sprintf("%s/%d", experimentName, instrumentSlot)
}

var _ warehouse.Client = (*fakeWarehouse)(nil)
