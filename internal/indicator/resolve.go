package indicator

import (
	"fmt"
	"sort"
	"strings"
)

// UnknownIndicatorError reports a requested name with no registered spec.
// Known carries the full registry listing so the caller can see what would
// have been accepted.
type UnknownIndicatorError struct {
	Name  string
	Known []string // sorted registry listing
}

func (e *UnknownIndicatorError) Error() string {
	return fmt.Sprintf("unknown indicator %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// CycleError reports requested indicators whose dependencies form a cycle.
type CycleError struct {
	Unresolved []string // sorted member names
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among indicators [%s]", strings.Join(e.Unresolved, ", "))
}

// Resolve orders the requested indicators so every producer runs before its
// consumers, using Kahn's algorithm over the requested subset only. A
// dependency on a core column is not a graph edge; only a requested spec
// producing a column another requested spec requires creates one. Ties are
// broken by request order. Returns UnknownIndicatorError for an unregistered
// name and CycleError when a subset cannot be scheduled.
func Resolve(reg *Registry, names []string) ([]Spec, error) {
	ordered, unknown, unresolved := Plan(reg, names)
	if len(unknown) > 0 {
		return nil, &UnknownIndicatorError{Name: unknown[0], Known: sortedNames(reg)}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return nil, &CycleError{Unresolved: unresolved}
	}
	return ordered, nil
}

// Plan partitions a request into an executable dependency order, names
// missing from the registry, and names left unresolved by a cycle. It never
// fails: lenient enrichment runs the ordered part and records the rest.
// Unknown names keep request order; unresolved names are unordered.
func Plan(reg *Registry, names []string) (ordered []Spec, unknown, unresolved []string) {
	specs := make(map[string]Spec, len(names))
	var requested []string
	for _, name := range names {
		spec, err := reg.Get(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		specs[name] = spec
		requested = append(requested, name)
	}

	// producers maps a column name to the requested specs that declare it.
	producers := make(map[string][]string)
	for _, name := range requested {
		for _, col := range specs[name].Produces {
			producers[col] = append(producers[col], name)
		}
	}

	// Edge producer → consumer for every requirement another requested
	// spec satisfies.
	dependents := make(map[string][]string)
	indegree := make(map[string]int, len(requested))
	for _, name := range requested {
		indegree[name] += 0
		for _, col := range specs[name].Requires {
			for _, producer := range producers[col] {
				if producer == name {
					continue
				}
				dependents[producer] = append(dependents[producer], name)
				indegree[name]++
			}
		}
	}

	var queue []string
	for _, name := range requested {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	scheduled := make(map[string]bool, len(requested))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, specs[current])
		scheduled[current] = true

		released := make(map[string]bool)
		for _, consumer := range dependents[current] {
			indegree[consumer]--
			if indegree[consumer] == 0 {
				released[consumer] = true
			}
		}
		// Enqueue newly released nodes in request order.
		for _, name := range requested {
			if released[name] {
				queue = append(queue, name)
			}
		}
	}

	for _, name := range requested {
		if !scheduled[name] {
			unresolved = append(unresolved, name)
		}
	}
	return ordered, unknown, unresolved
}

// sortedNames returns the registry listing in lexical order.
func sortedNames(reg *Registry) []string {
	names := reg.List()
	sort.Strings(names)
	return names
}
