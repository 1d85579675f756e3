// Package warehouse defines the read-only WarehouseClient contract and a
// Postgres-backed implementation reading a mirror of the Laboratory
// Information Management warehouse.
package warehouse

import "time"

// ExperimentSlot identifies one sequencing run: an experiment name and the
// instrument slot (flowcell position) it ran in.
type ExperimentSlot struct {
	ExperimentName string
	InstrumentSlot int
}

// Sample is a donor/specimen record as mirrored from the warehouse.
type Sample struct {
	ID               string
	LIMSSampleID     string
	Name             string
	Accession        string
	Donor            string
	Supplier         string
	ConsentWithdrawn bool
}

// Study is a sequencing study record as mirrored from the warehouse.
type Study struct {
	ID          string
	LIMSStudyID string
	Name        string
	Accession   string
}

// Flowcell is one oseq_flowcell row: a single-sample run, or one row per
// barcode when the run is multiplexed (TagIdentifier non-nil in that case).
type Flowcell struct {
	ExperimentName string
	InstrumentSlot int
	TagIdentifier  *int
	TagSequence    *string
	LastUpdated    time.Time
	Sample         Sample
	Study          Study
}
