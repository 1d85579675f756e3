package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/wtsi-npg/workbot/internal/config"
)

// Compile-time interface assertion: PostgresClient implements Client.
var _ Client = (*PostgresClient)(nil)

// PostgresClient is a Client backed by a read-only warehouse mirror.
type PostgresClient struct {
	conn   *Connection
	logger *slog.Logger
}

// ClientOption configures optional PostgresClient behaviour.
type ClientOption func(*PostgresClient)

// WithLogger overrides the default stdout JSON logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *PostgresClient) {
		c.logger = logger
	}
}

// ErrNoWarehouseConnection is returned by NewPostgresClient when given a nil
// connection.
var ErrNoWarehouseConnection = fmt.Errorf("%w: no connection provided", ErrWarehouse)

// NewPostgresClient builds a Client over an open warehouse connection.
func NewPostgresClient(conn *Connection, opts ...ClientOption) (*PostgresClient, error) {
	if conn == nil {
		return nil, ErrNoWarehouseConnection
	}

	client := &PostgresClient{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

const recentExperimentSlotsQuery = `
SELECT DISTINCT experiment_name, instrument_slot
FROM oseq_flowcell
WHERE last_updated >= $1
ORDER BY experiment_name ASC, instrument_slot ASC
`

// RecentExperimentSlots returns every distinct (experimentName,
// instrumentSlot) pair updated at or after since, grounded on
// find_recent_experiment_pos in the original warehouse schema module.
func (c *PostgresClient) RecentExperimentSlots(ctx context.Context, since time.Time) ([]ExperimentSlot, error) {
	rows, err := c.conn.QueryContext(ctx, recentExperimentSlotsQuery, since)
	if err != nil {
		return nil, fmt.Errorf("%w: recent experiment slots: %w", ErrWarehouse, err)
	}
	defer rows.Close()

	var slots []ExperimentSlot

	for rows.Next() {
		var s ExperimentSlot
		if err := rows.Scan(&s.ExperimentName, &s.InstrumentSlot); err != nil {
			return nil, fmt.Errorf("%w: scan experiment slot: %w", ErrWarehouse, err)
		}

		slots = append(slots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWarehouse, err)
	}

	c.logger.Debug("queried recent experiment slots", slog.Int("count", len(slots)), slog.Time("since", since))

	return slots, nil
}

const flowcellsForQuery = `
SELECT
	f.experiment_name, f.instrument_slot, f.tag_identifier, f.tag_sequence, f.last_updated,
	s.id_sample_lims, s.sanger_sample_id, s.name, s.accession_number, s.donor_id, s.supplier_name, s.consent_withdrawn,
	t.id_study_lims, t.name, t.accession_number
FROM oseq_flowcell f
JOIN sample s ON s.id_sample_tmp = f.id_sample_tmp
JOIN study t ON t.id_study_tmp = f.id_study_tmp
WHERE f.experiment_name = $1 AND f.instrument_slot = $2
ORDER BY f.tag_identifier ASC NULLS FIRST
`

// FlowcellsFor returns every flowcell row for the given experiment and
// instrument slot, joined with its Sample and Study, grounded on the
// OseqFlowcell/Sample/Study relationship in the original warehouse schema
// module.
func (c *PostgresClient) FlowcellsFor(ctx context.Context, experimentName string, instrumentSlot int) ([]Flowcell, error) {
	rows, err := c.conn.QueryContext(ctx, flowcellsForQuery, experimentName, instrumentSlot)
	if err != nil {
		return nil, fmt.Errorf("%w: flowcells for %s/%d: %w", ErrWarehouse, experimentName, instrumentSlot, err)
	}
	defer rows.Close()

	var flowcells []Flowcell

	for rows.Next() {
		var (
			f               Flowcell
			tagIdentifier   sql.NullInt64
			tagSequence     sql.NullString
			sampleAccession sql.NullString
			sampleDonor     sql.NullString
			sampleSupplier  sql.NullString
			studyAccession  sql.NullString
		)

		if err := rows.Scan(
			&f.ExperimentName, &f.InstrumentSlot, &tagIdentifier, &tagSequence, &f.LastUpdated,
			&f.Sample.LIMSSampleID, &f.Sample.ID, &f.Sample.Name, &sampleAccession, &sampleDonor, &sampleSupplier, &f.Sample.ConsentWithdrawn,
			&f.Study.LIMSStudyID, &f.Study.Name, &studyAccession,
		); err != nil {
			return nil, fmt.Errorf("%w: scan flowcell: %w", ErrWarehouse, err)
		}

		if tagIdentifier.Valid {
			tag := int(tagIdentifier.Int64)
			f.TagIdentifier = &tag
		}

		if tagSequence.Valid {
			f.TagSequence = &tagSequence.String
		}

		f.Sample.Accession = sampleAccession.String
		f.Sample.Donor = sampleDonor.String
		f.Sample.Supplier = sampleSupplier.String
		f.Study.Accession = studyAccession.String

		flowcells = append(flowcells, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWarehouse, err)
	}

	return flowcells, nil
}
