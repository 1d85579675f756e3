package warehouse

import (
	"context"
	"errors"
	"time"
)

// ErrWarehouse wraps unexpected failures surfaced by a Client.
var ErrWarehouse = errors.New("warehouse query failed")

// Client is the read-only contract the broker and ONTRunMetadataWorker use
// to pull experiment/slot discovery tuples and per-flowcell sample/study
// rows from the Laboratory Information Management warehouse mirror.
type Client interface {
	// RecentExperimentSlots returns every distinct (experimentName,
	// instrumentSlot) pair with a flowcell row updated at or after since,
	// ordered by (name, slot).
	RecentExperimentSlots(ctx context.Context, since time.Time) ([]ExperimentSlot, error)

	// FlowcellsFor returns every flowcell row for the given experiment and
	// instrument slot, one row per barcode when multiplexed, joined with its
	// Sample and Study.
	FlowcellsFor(ctx context.Context, experimentName string, instrumentSlot int) ([]Flowcell, error)
}
