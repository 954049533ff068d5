// Package registry holds compiled workflows indexed by name so a
// dispatcher can route incoming requests to the right graph.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
)

// Workflow is a named, compiled graph with routing metadata.
type Workflow struct {
	// Name is the registry key (e.g., "remediation").
	Name string

	// Description explains what the workflow handles. Dispatchers may
	// surface it to an LLM when classifying requests.
	Description string

	// Graph is the compiled workflow.
	Graph *opsgraph.CompiledGraph
}

// Registry is a thread-safe collection of workflows.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Workflow
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Workflow)}
}

// Register adds or replaces a workflow. It returns an error if the
// workflow has no name or no compiled graph.
func (r *Registry) Register(wf Workflow) error {
	if wf.Name == "" {
		return fmt.Errorf("register workflow: name is required")
	}
	if wf.Graph == nil {
		return fmt.Errorf("register workflow %q: graph is required", wf.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[wf.Name] = wf
	return nil
}

// Get returns the workflow for a name and whether it exists.
func (r *Registry) Get(name string) (Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.entries[name]
	return wf, ok
}

// MustGet returns the workflow for a name, panicking if not found.
// Intended for startup wiring where a missing workflow is a bug.
func (r *Registry) MustGet(name string) Workflow {
	wf, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("registry: workflow %q not found", name))
	}
	return wf
}

// Has returns true if a workflow with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered workflows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range iterates over a snapshot of the registry in name order.
// If fn returns false, iteration stops.
func (r *Registry) Range(fn func(Workflow) bool) {
	r.mu.RLock()
	snapshot := make([]Workflow, 0, len(r.entries))
	for _, wf := range r.entries {
		snapshot = append(snapshot, wf)
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Name < snapshot[j].Name
	})
	for _, wf := range snapshot {
		if !fn(wf) {
			return
		}
	}
}
