package clickhouse

import (
	"context"
	"fmt"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertTable persists every row of a finalized table under a symbol.
// MergeTree does not enforce uniqueness at insert time, so the span of the
// incoming table is checked against stored rows before the batch is sent.
func (s *CandleStore) InsertTable(ctx context.Context, symbol string, table *domain.CoreTable) error {
	if symbol == "" || table == nil {
		return storage.ErrInvalidInput
	}
	n := table.Len()
	if n == 0 {
		return nil
	}

	taken, err := s.rowsInSpan(ctx, symbol, table.TimestampMs[0], table.TimestampMs[n-1])
	if err != nil {
		return fmt.Errorf("check span: %w", err)
	}
	if taken {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			symbol, timestamp_ms, open, high, low, close, volume, is_gap
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for i := 0; i < n; i++ {
		err = batch.Append(
			symbol, table.TimestampMs[i],
			table.Open[i], table.High[i], table.Low[i], table.Close[i],
			table.Volume[i], table.IsGap[i],
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySymbol retrieves the full series for a symbol, ordered by timestamp ASC.
func (s *CandleStore) GetBySymbol(ctx context.Context, symbol string) (*domain.CoreTable, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume, is_gap
		FROM candles
		WHERE symbol = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query by symbol: %w", err)
	}
	defer rows.Close()

	table, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, storage.ErrNotFound
	}
	return table, nil
}

// GetByTimeRange retrieves the rows of a symbol within [start, end] (inclusive).
// An empty range yields an empty table, not an error.
func (s *CandleStore) GetByTimeRange(ctx context.Context, symbol string, start, end int64) (*domain.CoreTable, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume, is_gap
		FROM candles
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// rowsInSpan reports whether the symbol already has rows inside [start, end].
func (s *CandleStore) rowsInSpan(ctx context.Context, symbol string, start, end int64) (bool, error) {
	query := `
		SELECT count(*) FROM candles
		WHERE symbol = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, symbol, start, end).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanCandles scans query rows into a fresh core table.
func scanCandles(rows chRows) (*domain.CoreTable, error) {
	table := domain.NewCoreTable(0)

	for rows.Next() {
		var c domain.Candle

		err := rows.Scan(
			&c.TimestampMs, &c.Open, &c.High, &c.Low, &c.Close,
			&c.Volume, &c.IsGap,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		table.Append(c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return table, nil
}
