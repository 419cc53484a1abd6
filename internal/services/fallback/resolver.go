package fallback

import (
	"slices"
	"sort"
	"strings"

	"github.com/Egham-7/adaptive-tiers/internal/models"
)

// Resolver answers fallback lookups over a validated, acyclic graph.
type Resolver struct {
	graph models.FallbackGraph
}

const (
	white = iota
	grey
	black
)

// NewResolver validates graph and returns a read-only resolver. Cycles,
// self-loops, empty model ids and repeated chain entries are configuration
// errors.
func NewResolver(graph models.FallbackGraph) (*Resolver, error) {
	snapshot := make(models.FallbackGraph, len(graph))
	for model, chain := range graph {
		if model == "" {
			return nil, models.NewConfigurationError("fallback graph has an empty model id")
		}
		seen := make(map[string]struct{}, len(chain))
		for _, next := range chain {
			if next == "" {
				return nil, models.NewConfigurationError("fallback chain for %q has an empty model id", model)
			}
			if next == model {
				return nil, models.NewConfigurationError("fallback chain for %q references itself", model)
			}
			if _, dup := seen[next]; dup {
				return nil, models.NewConfigurationError("fallback chain for %q lists %q twice", model, next)
			}
			seen[next] = struct{}{}
		}
		snapshot[model] = slices.Clone(chain)
	}

	if cycle := findCycle(snapshot); cycle != nil {
		return nil, models.NewConfigurationError("fallback graph has a cycle: %s", strings.Join(cycle, " -> "))
	}

	return &Resolver{graph: snapshot}, nil
}

// findCycle runs a three-colour DFS and returns the first cycle found as a
// path that starts and ends at the same model.
func findCycle(graph models.FallbackGraph) []string {
	color := make(map[string]int, len(graph))
	var stack []string

	var visit func(model string) []string
	visit = func(model string) []string {
		color[model] = grey
		stack = append(stack, model)

		for _, next := range graph[model] {
			switch color[next] {
			case grey:
				start := slices.Index(stack, next)
				return append(slices.Clone(stack[start:]), next)
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[model] = black
		return nil
	}

	// Sorted roots keep the reported cycle stable across runs.
	roots := make([]string, 0, len(graph))
	for model := range graph {
		roots = append(roots, model)
	}
	sort.Strings(roots)

	for _, model := range roots {
		if color[model] == white {
			if cycle := visit(model); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// FallbacksFor returns the ordered substitutes for model. Unknown models have
// none.
func (r *Resolver) FallbacksFor(model string) []string {
	chain := r.graph[model]
	if len(chain) == 0 {
		return []string{}
	}
	return slices.Clone(chain)
}

// Candidates returns model followed by its fallbacks.
func (r *Resolver) Candidates(model string) []string {
	chain := r.graph[model]
	candidates := make([]string, 0, len(chain)+1)
	candidates = append(candidates, model)
	for _, next := range chain {
		if !slices.Contains(candidates, next) {
			candidates = append(candidates, next)
		}
	}
	return candidates
}

// Models returns every model that appears in the graph, sorted.
func (r *Resolver) Models() []string {
	seen := make(map[string]struct{}, len(r.graph))
	for model, chain := range r.graph {
		seen[model] = struct{}{}
		for _, next := range chain {
			seen[next] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for model := range seen {
		out = append(out, model)
	}
	sort.Strings(out)
	return out
}
