package domain

import "fmt"

// ErrColumnExists is returned when adding a column whose name is taken.
var ErrColumnExists = fmt.Errorf("column already exists")

// EnrichedTable is a candle table extended with indicator output columns.
// It owns a private copy of the core table, so enrichment can never write
// through to the caller's data.
type EnrichedTable struct {
	core   *CoreTable
	extras map[string][]float64
	order  []string // extra column names in the order they were added
}

// NewEnrichedTable wraps a deep copy of core.
func NewEnrichedTable(core *CoreTable) *EnrichedTable {
	return &EnrichedTable{
		core:   core.Clone(),
		extras: make(map[string][]float64),
	}
}

// Core returns the working core copy. Callers must treat it as read-only;
// its hash is re-verified after enrichment.
func (e *EnrichedTable) Core() *CoreTable {
	return e.core
}

// Len returns the number of rows.
func (e *EnrichedTable) Len() int {
	return e.core.Len()
}

// HasColumn reports whether name resolves to a core or extra column.
func (e *EnrichedTable) HasColumn(name string) bool {
	for _, c := range CoreColumns() {
		if c == name {
			return true
		}
	}
	_, ok := e.extras[name]
	return ok
}

// Floats returns the float64 values of a core price/volume column or an
// added indicator column.
func (e *EnrichedTable) Floats(name string) ([]float64, error) {
	if vals, ok := e.extras[name]; ok {
		return vals, nil
	}
	return e.core.Floats(name)
}

// AddColumn appends an indicator output column. The column must not collide
// with a core column or a previously added column, and must match the table
// length.
func (e *EnrichedTable) AddColumn(name string, values []float64) error {
	if e.HasColumn(name) {
		return fmt.Errorf("%w: %s", ErrColumnExists, name)
	}
	if len(values) != e.core.Len() {
		return fmt.Errorf("column %s has %d values, table has %d rows",
			name, len(values), e.core.Len())
	}
	e.extras[name] = values
	e.order = append(e.order, name)
	return nil
}

// ExtraColumns returns the names of added columns in insertion order.
func (e *EnrichedTable) ExtraColumns() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Columns returns all column names, core first, extras in insertion order.
func (e *EnrichedTable) Columns() []string {
	return append(CoreColumns(), e.ExtraColumns()...)
}
