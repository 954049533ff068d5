package opsgraph

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultRetryAttempts is the attempt cap applied to a retry edge declared
// with maxAttempts <= 0.
const DefaultRetryAttempts = 3

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create one, then chain AddNode, AddEdge, and SetEntry
// calls to define the workflow.
//
// Graph is NOT thread-safe during building. Construct it from a single
// goroutine, then call Compile() to create an immutable CompiledGraph that
// can be shared by any number of concurrent runs.
//
// Example:
//
//	graph := opsgraph.NewGraph().
//	    AddNode("fetch", fetchNode).
//	    AddNode("process", processNode).
//	    AddEdge("fetch", "process").
//	    AddEdge("process", opsgraph.END).
//	    SetEntry("fetch")
//
//	compiled, err := graph.Compile()
type Graph struct {
	mu          sync.RWMutex
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]*conditionalEdge
	failure     map[string]string
	entryPoint  string

	// Structural defects detected while building; reported by Compile so an
	// invalid declaration can never become runnable.
	buildErrs []error
}

// conditionalEdge is a router plus its declared candidate targets.
// maxAttempts > 0 marks a bounded self-retry edge: once the source node has
// executed maxAttempts times in one run, the engine routes to exhausted no
// matter what the router returns.
type conditionalEdge struct {
	router      RouterFunc
	targets     []string
	targetSet   map[string]bool
	maxAttempts int
	exhausted   string
}

// NewGraph creates a new graph builder.
func NewGraph() *Graph {
	return &Graph{
		nodes:       make(map[string]NodeFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]*conditionalEdge),
		failure:     make(map[string]string),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if id is empty, is the reserved word "END"/"__end__"
// (case-insensitive), contains whitespace, or fn is nil. A duplicate id is
// recorded as a definition violation and reported by Compile.
func (g *Graph) AddNode(id string, fn NodeFunc) *Graph {
	if id == "" {
		panic("opsgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("opsgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("opsgraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("opsgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: %s", ErrDuplicateNode, id))
		return g
	}

	g.nodes[id] = fn
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or opsgraph.END.
// Returns the graph for method chaining.
//
// Target validation happens at Compile() time, so edges may be added in any
// order. A node may declare one outgoing edge; a second declaration is a
// definition violation.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasOutgoing(from) {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: %s already has an outgoing edge", ErrConflictingEdge, from))
		return g
	}

	g.edges[from] = to
	return g
}

// AddConditionalEdge adds a conditional edge whose router selects the next
// node at runtime. The candidate targets the router may return are declared
// up front and validated at Compile() time; a router result outside the
// declared set is a runtime RouterError.
//
// Declare END among the targets if the router may terminate the run.
// Returns the graph for method chaining.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc, targets ...string) *Graph {
	if router == nil {
		panic("opsgraph: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasOutgoing(from) {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: %s already has an outgoing edge", ErrConflictingEdge, from))
		return g
	}

	g.conditional[from] = newConditionalEdge(router, targets, 0, "")
	return g
}

// AddRetryEdge adds a conditional edge that may route back to its own
// source node, capped at maxAttempts executions per run. The source node is
// an implicit candidate target; additional targets the router may choose
// are declared like with AddConditionalEdge.
//
// Once the node has executed maxAttempts times in one run, the engine
// forces a transition to exhausted regardless of the router's choice, so a
// router that always answers "retry" can never loop forever. The cap is
// per-edge configuration; maxAttempts <= 0 means DefaultRetryAttempts.
func (g *Graph) AddRetryEdge(from string, maxAttempts int, router RouterFunc, exhausted string, targets ...string) *Graph {
	if router == nil {
		panic("opsgraph: router function cannot be nil")
	}

	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryAttempts
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasOutgoing(from) {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: %s already has an outgoing edge", ErrConflictingEdge, from))
		return g
	}

	all := make([]string, 0, len(targets)+2)
	all = append(all, from)
	all = append(all, targets...)
	if exhausted != "" {
		all = append(all, exhausted)
	}

	g.conditional[from] = newConditionalEdge(router, all, maxAttempts, exhausted)
	return g
}

// AddFailureEdge declares where execution routes when the source node's
// handler returns an error. The engine sets the "error" state key and
// continues at the target instead of propagating a NodeError.
// Returns the graph for method chaining.
func (g *Graph) AddFailureEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.failure[from]; exists {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: %s already has a failure edge", ErrConflictingEdge, from))
		return g
	}

	g.failure[from] = to
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile(); validation happens there.
// Returns the graph for method chaining.
func (g *Graph) SetEntry(id string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}

// hasOutgoing reports whether the node already declared an outgoing edge.
// Callers must hold g.mu.
func (g *Graph) hasOutgoing(from string) bool {
	if _, ok := g.edges[from]; ok {
		return true
	}
	_, ok := g.conditional[from]
	return ok
}

// newConditionalEdge builds the edge, deduplicating declared targets while
// preserving declaration order.
func newConditionalEdge(router RouterFunc, targets []string, maxAttempts int, exhausted string) *conditionalEdge {
	set := make(map[string]bool, len(targets))
	ordered := make([]string, 0, len(targets))
	for _, t := range targets {
		if set[t] {
			continue
		}
		set[t] = true
		ordered = append(ordered, t)
	}

	return &conditionalEdge{
		router:      router,
		targets:     ordered,
		targetSet:   set,
		maxAttempts: maxAttempts,
		exhausted:   exhausted,
	}
}
