package opsgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionError_Message(t *testing.T) {
	err := &DefinitionError{Violations: []error{
		ErrNoEntryPoint,
		errors.New("duplicate node ID: worker"),
	}}

	msg := err.Error()
	assert.Contains(t, msg, "invalid graph definition")
	assert.Contains(t, msg, "entry point not set")
	assert.Contains(t, msg, "worker")
}

func TestDefinitionError_UnwrapsAllViolations(t *testing.T) {
	err := error(&DefinitionError{Violations: []error{
		ErrNoEntryPoint,
		ErrNoPathToEnd,
	}})

	assert.ErrorIs(t, err, ErrNoEntryPoint)
	assert.ErrorIs(t, err, ErrNoPathToEnd)
	assert.NotErrorIs(t, err, ErrDuplicateNode)
}

func TestNodeError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := error(&NodeError{NodeID: "fetch", Op: "execute", Err: inner})

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "fetch")
	assert.Contains(t, err.Error(), "execute")
}

func TestRouterError_Unwrap(t *testing.T) {
	err := error(&RouterError{FromNode: "classify", Returned: "bogus", Err: ErrUndeclaredRoute})

	assert.ErrorIs(t, err, ErrUndeclaredRoute)
	assert.Contains(t, err.Error(), "classify")
	assert.Contains(t, err.Error(), `"bogus"`)
}

func TestStepLimitError_Unwrap(t *testing.T) {
	err := error(&StepLimitError{Max: 20, LastNodeID: "loop", State: State{"a": 1}})

	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Contains(t, err.Error(), "20")
	assert.Contains(t, err.Error(), "loop")
}

func TestPanicError_Message(t *testing.T) {
	err := &PanicError{NodeID: "bad", Value: 42, Stack: "stack trace"}
	assert.Contains(t, err.Error(), "bad")
	assert.Contains(t, err.Error(), "42")
}

func TestCancellationError_Messages(t *testing.T) {
	before := &CancellationError{NodeID: "next"}
	assert.Contains(t, before.Error(), "before node next")

	during := &CancellationError{NodeID: "current", WasExecuting: true}
	assert.Contains(t, during.Error(), "during node current")
}

func TestLastNodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"node error", &NodeError{NodeID: "n1"}, "n1"},
		{"panic error", &PanicError{NodeID: "n2"}, "n2"},
		{"step limit", &StepLimitError{LastNodeID: "n3"}, "n3"},
		{"cancellation", &CancellationError{NodeID: "n4"}, "n4"},
		{"router error", &RouterError{FromNode: "n5"}, "n5"},
		{"plain error", errors.New("plain"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lastNodeOf(tt.err))
		})
	}
}

func TestHandlerMessage_StripsEngineWrapping(t *testing.T) {
	inner := errors.New("disk full")
	wrapped := &NodeError{NodeID: "write", Op: "execute", Err: inner}

	assert.Equal(t, "disk full", handlerMessage(wrapped))
	assert.Equal(t, "plain", handlerMessage(errors.New("plain")))
}

func TestCompileError_IsInspectableWithoutStringMatching(t *testing.T) {
	graph := NewGraph().
		AddNode("a", passthrough).
		AddEdge("a", "ghost").
		SetEntry("a")

	_, err := graph.Compile()
	require.Error(t, err)

	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	for _, v := range defErr.Violations {
		assert.True(t, errors.Is(v, ErrNodeNotFound))
	}
}
