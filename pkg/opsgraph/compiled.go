package opsgraph

// CompiledGraph is an immutable, executable graph created by Compile().
//
// CompiledGraph is safe for concurrent use: any number of Run() calls may
// execute at once, each with its own state and retry counters. The graph
// structure cannot be modified after compilation.
//
// The introspection methods (NodeIDs, Candidates, etc.) support debugging
// and topology-only tests without running any handler.
type CompiledGraph struct {
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]*conditionalEdge
	failure     map[string]string
	entryPoint  string
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in the graph.
// The order is not guaranteed.
func (cg *CompiledGraph) NodeIDs() []string {
	ids := make([]string, 0, len(cg.nodes))
	for id := range cg.nodes {
		ids = append(ids, id)
	}
	return ids
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successor returns the unconditional edge target for the given node,
// or "" if the node has none (END is returned as opsgraph.END).
func (cg *CompiledGraph) Successor(id string) string {
	return cg.edges[id]
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph) IsConditional(id string) bool {
	_, exists := cg.conditional[id]
	return exists
}

// Candidates returns the declared candidate targets of the node's
// conditional edge, in declaration order. Returns nil for nodes without a
// conditional edge.
func (cg *CompiledGraph) Candidates(id string) []string {
	edge, exists := cg.conditional[id]
	if !exists {
		return nil
	}
	out := make([]string, len(edge.targets))
	copy(out, edge.targets)
	return out
}

// RetryAttempts returns the attempt cap of the node's retry edge, or 0 if
// the node has no bounded self-retry.
func (cg *CompiledGraph) RetryAttempts(id string) int {
	edge, exists := cg.conditional[id]
	if !exists {
		return 0
	}
	return edge.maxAttempts
}

// FailureTarget returns the node's declared failure branch target and
// whether one exists.
func (cg *CompiledGraph) FailureTarget(id string) (string, bool) {
	to, exists := cg.failure[id]
	return to, exists
}

// getNode returns the node function for the given ID.
// Used internally by the executor.
func (cg *CompiledGraph) getNode(id string) (NodeFunc, bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}

// getConditional returns the conditional edge for the given node.
// Used internally by the executor.
func (cg *CompiledGraph) getConditional(id string) (*conditionalEdge, bool) {
	edge, exists := cg.conditional[id]
	return edge, exists
}
