// Package verification proves that enrichment left the core candle columns
// untouched by comparing canonical digests captured before and after.
package verification

import (
	"fmt"

	"github.com/Gitchegumi/quantpipe-sub002/internal/corehash"
	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// ImmutabilityError reports a core-column digest mismatch after enrichment.
// It signals a programming defect (an indicator wrote into a core column),
// never a data-quality issue, and is fatal under every failure policy.
type ImmutabilityError struct {
	Before string // digest captured before enrichment
	After  string // digest recomputed after enrichment
}

func (e *ImmutabilityError) Error() string {
	return fmt.Sprintf("core columns mutated during enrichment: hash %s became %s", e.Before, e.After)
}

// Capture returns the digest of the table's core columns. Callers hold it
// across enrichment and hand it back to VerifyCore.
func Capture(t *domain.CoreTable) string {
	return corehash.Sum(t)
}

// VerifyCore recomputes the core digest of the table and compares it with
// the digest captured earlier. Any mismatch is an ImmutabilityError.
func VerifyCore(before string, t *domain.CoreTable) error {
	after := corehash.Sum(t)
	if after != before {
		return &ImmutabilityError{Before: before, After: after}
	}
	return nil
}
