// Package indicator defines named derived-column computations over candle
// tables: the Spec descriptor, an explicit registry instance, dependency
// resolution over a requested set, and the built-in indicator catalogue.
package indicator

import (
	"errors"
	"fmt"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// Spec validation errors.
var (
	// ErrInvalidSpec is returned when a spec violates a structural invariant.
	ErrInvalidSpec = errors.New("invalid indicator spec")

	// ErrDuplicateName is returned when registering a name that already exists.
	ErrDuplicateName = errors.New("indicator name already registered")

	// ErrNotFound is returned when a lookup names no registered indicator.
	ErrNotFound = errors.New("indicator not found")
)

// Params holds named numeric parameters for one indicator computation.
type Params map[string]float64

// Value returns the parameter or the fallback when absent.
func (p Params) Value(key string, fallback float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return fallback
}

// Int returns the parameter truncated to int, or the fallback when absent.
func (p Params) Int(key string, fallback int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return fallback
}

// Merge overlays override values on a copy of p. Neither input is modified.
func (p Params) Merge(override Params) Params {
	merged := make(Params, len(p)+len(override))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Compute derives the declared output columns from the working table. The
// returned map must hold exactly the produced column names, each with one
// value per table row. Implementations must treat the table as read-only.
type Compute func(t *domain.EnrichedTable, p Params) (map[string][]float64, error)

// Spec describes one indicator: what it needs, what it adds, and how.
// Requires may name core columns or columns produced by other indicators.
type Spec struct {
	Name     string
	Requires []string
	Produces []string
	Version  string
	Defaults Params
	Compute  Compute
}

// validate checks structural invariants at registration time.
func (s Spec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if len(s.Requires) == 0 {
		return fmt.Errorf("%w: %s declares no required columns", ErrInvalidSpec, s.Name)
	}
	if len(s.Produces) == 0 {
		return fmt.Errorf("%w: %s declares no produced columns", ErrInvalidSpec, s.Name)
	}
	if s.Compute == nil {
		return fmt.Errorf("%w: %s has no compute function", ErrInvalidSpec, s.Name)
	}
	return nil
}
