package ingestion

import "github.com/Gitchegumi/quantpipe-sub002/internal/domain"

// Records is a restartable cursor over a finalized candle table. It yields
// exactly the rows of the columnar form, in the same order, one candle at a
// time. Records is not safe for concurrent use.
type Records struct {
	table *domain.CoreTable
	idx   int
}

// NewRecords creates a cursor positioned before the first row.
func NewRecords(table *domain.CoreTable) *Records {
	return &Records{table: table}
}

// Next returns the next candle and advances the cursor. The second return is
// false once the sequence is exhausted.
func (r *Records) Next() (domain.Candle, bool) {
	if r.idx >= r.table.Len() {
		return domain.Candle{}, false
	}
	c := r.table.Row(r.idx)
	r.idx++
	return c, true
}

// Reset rewinds the cursor to the first row. A fresh pass yields the same
// records again; no source re-read happens.
func (r *Records) Reset() {
	r.idx = 0
}

// Len returns the total number of records in the sequence.
func (r *Records) Len() int {
	return r.table.Len()
}
