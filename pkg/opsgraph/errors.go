package opsgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrDuplicateNode indicates two nodes were registered under the same ID.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConflictingEdge indicates a node declared more than one outgoing edge.
	ErrConflictingEdge = errors.New("conflicting edge declaration")

	// ErrNoPathToEnd indicates no path exists from the entry point to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")
)

// Sentinel errors for execution.
var (
	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrStepLimit indicates the execution loop exceeded the step ceiling.
	ErrStepLimit = errors.New("exceeded step limit")

	// ErrEmptyRoute indicates a router function returned an empty string.
	ErrEmptyRoute = errors.New("router returned empty string")

	// ErrUndeclaredRoute indicates a router function returned a name outside
	// its edge's declared candidate set.
	ErrUndeclaredRoute = errors.New("router returned undeclared target")
)

// DefinitionError reports every structural defect found during Compile.
// An invalid graph never becomes runnable: Compile performs no I/O and
// collects all violations rather than stopping at the first.
type DefinitionError struct {
	// Violations holds one error per structural defect, each wrapping a
	// build/compile sentinel for errors.Is checks.
	Violations []error
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("invalid graph definition: %s", strings.Join(msgs, "; "))
}

// Unwrap returns the individual violations for errors.Is/As support.
func (e *DefinitionError) Unwrap() []error {
	return e.Violations
}

// NodeError wraps a handler's error together with the failing node's name.
// It is returned from Run only when the node has no declared failure edge.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute", "routing").
	Op string
	// Err is the underlying error from the handler.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// RouterError reports a conditional edge whose router returned a name
// outside the declared candidate set.
type RouterError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Returned is the value the router returned.
	Returned string
	// Err is ErrEmptyRoute or ErrUndeclaredRoute.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// StepLimitError provides context when the step ceiling is exceeded.
// The ceiling guards against misconfigured cycles; it is configuration
// (WithMaxSteps), not an engine invariant.
type StepLimitError struct {
	// Max is the configured step ceiling.
	Max int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
	// State is the state at termination.
	State State
}

// Error implements the error interface.
func (e *StepLimitError) Error() string {
	return fmt.Sprintf("exceeded step limit (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrStepLimit for errors.Is support.
func (e *StepLimitError) Unwrap() error {
	return ErrStepLimit
}

// PanicError captures panic information from node execution.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError captures the state when a run was cancelled.
// Already-merged state is preserved for inspection; the engine performs no
// compensation for side effects committed by earlier nodes.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// State is the accumulated state at cancellation.
	State State
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if cancellation occurred during node execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}
