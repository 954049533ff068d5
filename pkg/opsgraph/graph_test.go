package opsgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddNode_PanicsOnEmptyID tests builder API misuse.
func TestAddNode_PanicsOnEmptyID(t *testing.T) {
	assert.Panics(t, func() {
		NewGraph().AddNode("", passthrough)
	})
}

func TestAddNode_PanicsOnReservedID(t *testing.T) {
	for _, id := range []string{"END", "end", "End", "__end__", "__END__"} {
		t.Run(id, func(t *testing.T) {
			assert.Panics(t, func() {
				NewGraph().AddNode(id, passthrough)
			})
		})
	}
}

func TestAddNode_PanicsOnWhitespace(t *testing.T) {
	for _, id := range []string{"has space", "has\ttab", "has\nnewline"} {
		assert.Panics(t, func() {
			NewGraph().AddNode(id, passthrough)
		})
	}
}

func TestAddNode_PanicsOnNilFunc(t *testing.T) {
	assert.Panics(t, func() {
		NewGraph().AddNode("valid", nil)
	})
}

// TestAddNode_DuplicateReportedAtCompile tests that a duplicate node ID is
// collected and surfaced by Compile rather than panicking mid-build.
func TestAddNode_DuplicateReportedAtCompile(t *testing.T) {
	graph := NewGraph().
		AddNode("worker", passthrough).
		AddNode("worker", increment).
		AddEdge("worker", END).
		SetEntry("worker")

	_, err := graph.Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateNode)

	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Len(t, defErr.Violations, 1)
}

// TestAddEdge_SecondEdgeFromSameNode tests the single-outgoing-edge rule.
func TestAddEdge_SecondEdgeFromSameNode(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("b", passthrough).
		AddNode("c", passthrough).
		AddEdge("a", "b").
		AddEdge("a", "c"). // conflict
		AddEdge("b", END).
		AddEdge("c", END).
		SetEntry("a")

	_, err := graph.Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflictingEdge)
}

func TestAddConditionalEdge_ConflictsWithPlainEdge(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("b", passthrough).
		AddEdge("a", "b").
		AddConditionalEdge("a", routeOn("route"), "b", END).
		AddEdge("b", END).
		SetEntry("a")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrConflictingEdge)
}

func TestAddConditionalEdge_PanicsOnNilRouter(t *testing.T) {
	assert.Panics(t, func() {
		NewGraph().AddNode("a", passthrough).AddConditionalEdge("a", nil, END)
	})
}

func TestAddRetryEdge_PanicsOnNilRouter(t *testing.T) {
	assert.Panics(t, func() {
		NewGraph().AddNode("a", passthrough).AddRetryEdge("a", 3, nil, END)
	})
}

func TestAddFailureEdge_DuplicateReported(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("fallback", passthrough).
		AddEdge("a", END).
		AddEdge("fallback", END).
		AddFailureEdge("a", "fallback").
		AddFailureEdge("a", "fallback").
		SetEntry("a")

	_, err := graph.Compile()
	assert.ErrorIs(t, err, ErrConflictingEdge)
}

// TestGraph_MethodChaining tests that all builder methods chain.
func TestGraph_MethodChaining(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("b", passthrough).
		AddNode("fallback", passthrough).
		AddConditionalEdge("a", routeOn("route"), "b", END).
		AddEdge("b", END).
		AddEdge("fallback", END).
		AddFailureEdge("a", "fallback").
		SetEntry("a")

	compiled, err := graph.Compile()
	require.NoError(t, err)
	assert.NotNil(t, compiled)
}

func TestCompiledGraph_Introspection(t *testing.T) {
	graph := NewGraph().
		AddNode("start", passthrough).
		AddNode("retry", passthrough).
		AddNode("escalate", passthrough).
		AddNode("done", passthrough).
		AddConditionalEdge("start", routeOn("route"), "retry", "done").
		AddRetryEdge("retry", 5, routeOn("route"), "escalate", "done").
		AddEdge("escalate", END).
		AddEdge("done", END).
		SetEntry("start")

	compiled, err := graph.Compile()
	require.NoError(t, err)

	assert.Equal(t, "start", compiled.EntryPoint())
	assert.ElementsMatch(t, []string{"start", "retry", "escalate", "done"}, compiled.NodeIDs())
	assert.True(t, compiled.HasNode("retry"))
	assert.False(t, compiled.HasNode("missing"))

	assert.True(t, compiled.IsConditional("start"))
	assert.False(t, compiled.IsConditional("escalate"))
	assert.Equal(t, END, compiled.Successor("escalate"))

	assert.Equal(t, []string{"retry", "done"}, compiled.Candidates("start"))
	// Retry edges include self and exhausted target as candidates.
	assert.Equal(t, []string{"retry", "done", "escalate"}, compiled.Candidates("retry"))
	assert.Equal(t, 5, compiled.RetryAttempts("retry"))
	assert.Equal(t, 0, compiled.RetryAttempts("start"))

	_, hasFailure := compiled.FailureTarget("start")
	assert.False(t, hasFailure)
}

func TestAddRetryEdge_DefaultAttempts(t *testing.T) {
	graph := NewGraph().
		AddNode("retry", passthrough).
		AddNode("escalate", passthrough).
		AddRetryEdge("retry", 0, routeOn("route"), "escalate", END).
		AddEdge("escalate", END).
		SetEntry("retry")

	compiled, err := graph.Compile()
	require.NoError(t, err)
	assert.Equal(t, DefaultRetryAttempts, compiled.RetryAttempts("retry"))
}

func TestConditionalEdge_DeduplicatesTargets(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("b", passthrough).
		AddConditionalEdge("a", routeOn("route"), "b", "b", END, END).
		AddEdge("b", END).
		SetEntry("a")

	compiled, err := graph.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", END}, compiled.Candidates("a"))
}

// TestGraph_BuilderMutationAfterCompile tests that a compiled graph is
// isolated from later builder changes.
func TestGraph_BuilderMutationAfterCompile(t *testing.T) {
	graph := NewGraph().
		AddNode("a", increment).
		AddEdge("a", END).
		SetEntry("a")

	compiled, err := graph.Compile()
	require.NoError(t, err)

	graph.AddNode("late", passthrough)

	assert.False(t, compiled.HasNode("late"))

	result, err := compiled.Run(testCtx(), State{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Int("count"))
}

func TestCompile_CollectsMultipleViolations(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddNode("a", passthrough). // duplicate
		AddEdge("a", "ghost")      // missing target
	// entry never set

	_, err := graph.Compile()
	require.Error(t, err)

	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.GreaterOrEqual(t, len(defErr.Violations), 3)
	assert.ErrorIs(t, err, ErrDuplicateNode)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.ErrorIs(t, err, ErrNoEntryPoint)
	assert.True(t, errors.As(err, &defErr))
}
