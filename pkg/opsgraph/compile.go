package opsgraph

import (
	"fmt"
	"log/slog"
)

// Compile validates the graph and creates an executable CompiledGraph.
// On failure it returns a *DefinitionError collecting every violation.
//
// Validation checks (in order):
//  1. No duplicate node IDs or conflicting edges were declared
//  2. Entry point is set and references an existing node
//  3. All edge sources reference existing nodes
//  4. All edge targets (unconditional, conditional candidates, failure,
//     retry-exhausted) reference existing nodes or END
//  5. A path from the entry point to END exists
//
// Compilation performs no I/O. Unreachable nodes are logged as warnings but
// do not fail compilation.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// 1. Defects recorded while building (duplicates, edge conflicts).
	errs := append([]error(nil), g.buildErrs...)

	// 2. Entry point.
	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	// 3 & 4. Edge references.
	for from, to := range g.edges {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source %q does not exist", ErrNodeNotFound, from))
		}
		if to != END {
			if _, exists := g.nodes[to]; !exists {
				errs = append(errs, fmt.Errorf("%w: edge target %q does not exist", ErrNodeNotFound, to))
			}
		}
	}

	for from, edge := range g.conditional {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source %q does not exist", ErrNodeNotFound, from))
		}
		if len(edge.targets) == 0 {
			errs = append(errs, fmt.Errorf("%w: conditional edge from %q declares no targets", ErrNodeNotFound, from))
		}
		for _, t := range edge.targets {
			if t != END {
				if _, exists := g.nodes[t]; !exists {
					errs = append(errs, fmt.Errorf("%w: conditional target %q from %q does not exist", ErrNodeNotFound, t, from))
				}
			}
		}
		if edge.maxAttempts > 0 {
			if edge.exhausted == "" || edge.exhausted == from {
				errs = append(errs, fmt.Errorf("%w: retry edge from %q needs an exhausted target other than itself", ErrNodeNotFound, from))
			}
		}
	}

	for from, to := range g.failure {
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: failure edge source %q does not exist", ErrNodeNotFound, from))
		}
		if to != END {
			if _, exists := g.nodes[to]; !exists {
				errs = append(errs, fmt.Errorf("%w: failure edge target %q does not exist", ErrNodeNotFound, to))
			}
		}
	}

	// 5. Path to END, only meaningful once the structure is sound.
	if len(errs) == 0 {
		if !g.hasPathToEnd() {
			errs = append(errs, ErrNoPathToEnd)
		}
		g.warnUnreachableNodes()
	}

	if len(errs) > 0 {
		return nil, &DefinitionError{Violations: errs}
	}

	return g.buildCompiledGraph(), nil
}

// hasPathToEnd checks that END is reachable from the entry point.
// Conditional edges contribute their declared candidate set, so the
// analysis is exact rather than assuming a router can go anywhere.
func (g *Graph) hasPathToEnd() bool {
	canReachEnd := map[string]bool{END: true}

	changed := true
	for changed {
		changed = false

		for from, to := range g.edges {
			if !canReachEnd[from] && canReachEnd[to] {
				canReachEnd[from] = true
				changed = true
			}
		}

		for from, edge := range g.conditional {
			if canReachEnd[from] {
				continue
			}
			for _, t := range edge.targets {
				if canReachEnd[t] {
					canReachEnd[from] = true
					changed = true
					break
				}
			}
		}

		// Failure edges are transitions too: a node whose failure branch
		// reaches END can reach END.
		for from, to := range g.failure {
			if !canReachEnd[from] && canReachEnd[to] {
				canReachEnd[from] = true
				changed = true
			}
		}
	}

	return canReachEnd[g.entryPoint]
}

// warnUnreachableNodes logs nodes not reachable from the entry point.
func (g *Graph) warnUnreachableNodes() {
	reachable := g.findReachableNodes()
	for nodeID := range g.nodes {
		if !reachable[nodeID] {
			slog.Warn("node is unreachable from entry", "node_id", nodeID)
		}
	}
}

// findReachableNodes returns the set of nodes reachable from the entry
// point via any edge kind, using the declared candidate sets for
// conditional edges.
func (g *Graph) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)
	if g.entryPoint == "" {
		return reachable
	}

	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	visit := func(target string, queue []string) []string {
		if target != END && !reachable[target] {
			reachable[target] = true
			queue = append(queue, target)
		}
		return queue
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if to, ok := g.edges[current]; ok {
			queue = visit(to, queue)
		}
		if edge, ok := g.conditional[current]; ok {
			for _, t := range edge.targets {
				queue = visit(t, queue)
			}
		}
		if to, ok := g.failure[current]; ok {
			queue = visit(to, queue)
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder
// state. All maps are copied so later builder mutation cannot leak in.
func (g *Graph) buildCompiledGraph() *CompiledGraph {
	nodes := make(map[string]NodeFunc, len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}

	edges := make(map[string]string, len(g.edges))
	for from, to := range g.edges {
		edges[from] = to
	}

	conditional := make(map[string]*conditionalEdge, len(g.conditional))
	for from, edge := range g.conditional {
		targets := make([]string, len(edge.targets))
		copy(targets, edge.targets)
		conditional[from] = newConditionalEdge(edge.router, targets, edge.maxAttempts, edge.exhausted)
	}

	failure := make(map[string]string, len(g.failure))
	for from, to := range g.failure {
		failure[from] = to
	}

	return &CompiledGraph{
		nodes:       nodes,
		edges:       edges,
		conditional: conditional,
		failure:     failure,
		entryPoint:  g.entryPoint,
	}
}
