package opsgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_NoEntryPoint(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddEdge("a", END)

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestCompile_EntryPointNotFound(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddEdge("a", END).
		SetEntry("ghost")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCompile_EdgeTargetNotFound(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddEdge("a", "ghost").
		SetEntry("a")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCompile_EdgeSourceNotFound(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddEdge("a", END).
		AddEdge("ghost", "a").
		SetEntry("a")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

// TestCompile_UndeclaredConditionalTarget tests that a conditional edge
// candidate naming a node that was never added fails compilation.
func TestCompile_UndeclaredConditionalTarget(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("b", passthrough).
		AddConditionalEdge("a", routeOn("route"), "b", "ghost").
		AddEdge("b", END).
		SetEntry("a")

	_, err := graph.Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestCompile_ConditionalEdgeWithoutTargets(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddConditionalEdge("a", routeOn("route")).
		SetEntry("a")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCompile_FailureEdgeTargetNotFound(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddEdge("a", END).
		AddFailureEdge("a", "ghost").
		SetEntry("a")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCompile_RetryEdgeNeedsExhaustedTarget(t *testing.T) {
	// Self as exhausted target can never break the loop.
	graph := NewGraph().
		AddNode("retry", passthrough).
		AddRetryEdge("retry", 3, routeOn("route"), "retry", END).
		SetEntry("retry")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCompile_NoPathToEnd(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("b", passthrough).
		AddEdge("a", "b").
		AddEdge("b", "a").
		SetEntry("a")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrNoPathToEnd)
}

// TestCompile_PathToEndViaConditionalCandidates tests that reachability
// analysis uses the declared candidate sets.
func TestCompile_PathToEndViaConditionalCandidates(t *testing.T) {
	graph := NewGraph().
		AddNode("loop", passthrough).
		AddNode("exit", passthrough).
		AddConditionalEdge("loop", routeOn("route"), "loop", "exit").
		AddEdge("exit", END).
		SetEntry("loop")

	_, err := graph.Compile()
	assert.NoError(t, err)
}

// TestCompile_PathToEndViaFailureEdge tests that a failure branch counts
// as a path to END.
func TestCompile_PathToEndViaFailureEdge(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("b", passthrough).
		AddNode("fallback", passthrough).
		AddEdge("a", "b").
		AddEdge("b", "a").
		AddFailureEdge("b", "fallback").
		AddEdge("fallback", END).
		SetEntry("a")

	_, err := graph.Compile()
	assert.NoError(t, err)
}

func TestCompile_ValidGraph(t *testing.T) {
	graph := NewGraph().
		AddNode("fetch", passthrough).
		AddNode("process", passthrough).
		AddEdge("fetch", "process").
		AddEdge("process", END).
		SetEntry("fetch")

	compiled, err := graph.Compile()
	require.NoError(t, err)
	require.NotNil(t, compiled)
	assert.Equal(t, "fetch", compiled.EntryPoint())
}

// TestCompile_UnreachableNodeWarnsButCompiles tests that dead nodes do not
// fail compilation.
func TestCompile_UnreachableNodeWarnsButCompiles(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("orphan", passthrough).
		AddEdge("a", END).
		AddEdge("orphan", END).
		SetEntry("a")

	compiled, err := graph.Compile()
	require.NoError(t, err)
	assert.True(t, compiled.HasNode("orphan"))
}

func TestCompile_Idempotent(t *testing.T) {
	graph := NewGraph().
		AddNode("a", increment).
		AddEdge("a", END).
		SetEntry("a")

	first, err := graph.Compile()
	require.NoError(t, err)
	second, err := graph.Compile()
	require.NoError(t, err)

	// Independent compiled graphs from the same builder.
	assert.NotSame(t, first, second)

	r1, err := first.Run(testCtx(), State{})
	require.NoError(t, err)
	r2, err := second.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, r1.Int("count"), r2.Int("count"))
}
