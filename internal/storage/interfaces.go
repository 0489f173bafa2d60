package storage

import (
	"context"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// CandleStore provides access to persisted candle tables.
type CandleStore interface {
	// InsertTable persists every row of a finalized table under a symbol.
	// Returns ErrDuplicateKey if any (symbol, timestamp) pair already exists.
	InsertTable(ctx context.Context, symbol string, table *domain.CoreTable) error

	// GetBySymbol retrieves the full series for a symbol, ordered by
	// timestamp ASC. Returns ErrNotFound if the symbol has no rows.
	GetBySymbol(ctx context.Context, symbol string) (*domain.CoreTable, error)

	// GetByTimeRange retrieves the rows of a symbol within [start, end]
	// (inclusive), ordered by timestamp ASC. An empty range is not an error.
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) (*domain.CoreTable, error)
}

// RunStore provides access to the ingestion run catalog.
type RunStore interface {
	// Insert adds a new run record. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.IngestionRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.IngestionRun, error)

	// ListBySource retrieves all runs for a source path, oldest first.
	ListBySource(ctx context.Context, sourcePath string) ([]*domain.IngestionRun, error)
}
