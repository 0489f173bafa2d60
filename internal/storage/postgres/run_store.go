package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, source_path, backend, started_at, core_hash,
	rows_in, rows_out, duplicates_removed, gaps_inserted,
	cadence_expected, cadence_deviation, runtime_ms, rows_per_second,
	cache_hit, downcast_applied, met_stretch_target
`

// Insert adds a new run record. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.IngestionRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO ingestion_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	m := r.Metrics
	_, err := s.pool.Exec(ctx, query,
		r.RunID,
		m.SourcePath,
		m.Backend,
		r.StartedAt,
		r.CoreHash,
		m.RowsIn,
		m.RowsOut,
		m.DuplicatesRemoved,
		m.GapsInserted,
		m.CadenceExpected,
		m.CadenceDeviation,
		m.Runtime.Milliseconds(),
		m.RowsPerSecond,
		m.CacheHit,
		m.DowncastApplied,
		m.MetStretchTarget,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.IngestionRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM ingestion_runs
		WHERE run_id = $1
	`

	row := s.pool.QueryRow(ctx, query, runID)
	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// ListBySource retrieves all runs for a source path, oldest first.
func (s *RunStore) ListBySource(ctx context.Context, sourcePath string) ([]*domain.IngestionRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM ingestion_runs
		WHERE source_path = $1
		ORDER BY started_at ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("list runs by source: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// scanRun scans a single row into an IngestionRun.
func scanRun(row pgx.Row) (*domain.IngestionRun, error) {
	var r domain.IngestionRun
	var runtimeMs int64

	err := row.Scan(
		&r.RunID,
		&r.Metrics.SourcePath,
		&r.Metrics.Backend,
		&r.StartedAt,
		&r.CoreHash,
		&r.Metrics.RowsIn,
		&r.Metrics.RowsOut,
		&r.Metrics.DuplicatesRemoved,
		&r.Metrics.GapsInserted,
		&r.Metrics.CadenceExpected,
		&r.Metrics.CadenceDeviation,
		&runtimeMs,
		&r.Metrics.RowsPerSecond,
		&r.Metrics.CacheHit,
		&r.Metrics.DowncastApplied,
		&r.Metrics.MetStretchTarget,
	)
	if err != nil {
		return nil, err
	}

	r.Metrics.Runtime = time.Duration(runtimeMs) * time.Millisecond
	return &r, nil
}

// scanRuns scans multiple rows into a slice of IngestionRun.
func scanRuns(rows pgx.Rows) ([]*domain.IngestionRun, error) {
	var runs []*domain.IngestionRun

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}
