package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
	"github.com/Gitchegumi/quantpipe-sub002/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Candle // symbol -> timestamp_ms -> candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]map[int64]domain.Candle),
	}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertTable persists every row of a finalized table under a symbol.
// The whole table fails on the first colliding (symbol, timestamp) pair.
func (s *CandleStore) InsertTable(_ context.Context, symbol string, table *domain.CoreTable) error {
	if symbol == "" || table == nil {
		return storage.ErrInvalidInput
	}
	if table.Len() == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.data[symbol]

	// First pass: timestamps within a finalized table are already unique,
	// so only collisions with stored rows can occur.
	for i := 0; i < table.Len(); i++ {
		if _, exists := series[table.TimestampMs[i]]; exists {
			return storage.ErrDuplicateKey
		}
	}

	// Second pass: insert all.
	if series == nil {
		series = make(map[int64]domain.Candle, table.Len())
		s.data[symbol] = series
	}
	for i := 0; i < table.Len(); i++ {
		c := table.Row(i)
		series[c.TimestampMs] = c
	}

	return nil
}

// GetBySymbol retrieves the full series for a symbol, ordered by timestamp ASC.
func (s *CandleStore) GetBySymbol(_ context.Context, symbol string) (*domain.CoreTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.data[symbol]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return collect(series, func(domain.Candle) bool { return true }), nil
}

// GetByTimeRange retrieves the rows of a symbol within [start, end] (inclusive).
// An unknown symbol or an empty range yields an empty table.
func (s *CandleStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) (*domain.CoreTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collect(s.data[symbol], func(c domain.Candle) bool {
		return c.TimestampMs >= start && c.TimestampMs <= end
	}), nil
}

// collect copies all candles matching the filter into a fresh table, in
// timestamp order. Callers must hold at least a read lock.
func collect(series map[int64]domain.Candle, keep func(domain.Candle) bool) *domain.CoreTable {
	rows := make([]domain.Candle, 0, len(series))
	for _, c := range series {
		if keep(c) {
			rows = append(rows, c)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TimestampMs < rows[j].TimestampMs
	})

	table := domain.NewCoreTable(len(rows))
	for _, c := range rows {
		table.Append(c)
	}
	return table
}
