package agents

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/event"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
)

const plannerResponse = `[
  {"task_id": "gen", "agent": "codegen", "description": "Generate the service",
   "input_params": {"api_type": "rest"}, "dependencies": [], "priority": 1},
  {"task_id": "scan", "agent": "policy", "description": "Scan the output",
   "input_params": {}, "dependencies": ["gen"], "priority": 2}
]`

func TestPlanner_PlansWithModel(t *testing.T) {
	ctx, store, bus := testCtx(llm.NewMockClient(plannerResponse))

	var dispatched []event.Event
	bus.Subscribe([]string{event.TypeTaskCreated}, func(_ context.Context, evt event.Event) error {
		dispatched = append(dispatched, evt)
		return nil
	})

	graph, err := NewPlanner().Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{
		KeyRequest: "Build a payment service",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Int(KeyTaskCount))
	assert.False(t, result.Bool(KeyFallbackUsed))
	assert.True(t, strings.HasPrefix(result.String(KeyWorkflowID), "wf-"))
	assert.Equal(t, 2, result.Int(KeyDispatched))

	// One metadata row plus one row per task.
	items, err := store.List(ctx, "workflows")
	require.NoError(t, err)
	assert.Len(t, items, 3)

	workflowID := result.String(KeyWorkflowID)
	meta, err := store.Get(ctx, "workflows", workflowID+"#META")
	require.NoError(t, err)
	var metaRow map[string]any
	require.NoError(t, json.Unmarshal(meta, &metaRow))
	assert.Equal(t, "planned", metaRow["status"])
	assert.Equal(t, float64(2), metaRow["task_count"])

	require.Len(t, dispatched, 2)
	assert.Equal(t, "planner", dispatched[0].Source)
	assert.Equal(t, workflowID, dispatched[0].Data["workflow_id"])
	assert.Equal(t, "codegen", dispatched[0].Data["agent"])
}

func TestPlanner_FallbackOnUnusableResponse(t *testing.T) {
	ctx, _, _ := testCtx(llm.NewMockClient("I cannot produce a plan for that."))

	graph, err := NewPlanner().Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{KeyRequest: "Do something odd"})
	require.NoError(t, err)

	assert.True(t, result.Bool(KeyFallbackUsed))
	assert.Equal(t, 1, result.Int(KeyTaskCount))

	task := asTask(result.Slice(KeyTasks)[0])
	assert.Equal(t, "codegen", task.Agent)
	assert.Equal(t, "Do something odd", task.Description)
}

func TestPlanner_FallbackOnModelError(t *testing.T) {
	client := llm.NewMockClient("").WithError(errRemote)
	ctx, _, _ := testCtx(client)

	graph, err := NewPlanner().Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{KeyRequest: "Build a thing"})
	require.NoError(t, err)

	// The failure edge routes into the static plan and records the error.
	assert.True(t, result.Bool(KeyFallbackUsed))
	assert.True(t, result.Has(opsgraph.ErrorKey))
	assert.NotEmpty(t, result.String(KeyWorkflowID))
	assert.Equal(t, 1, result.Int(KeyTaskCount))
}

func TestPlanner_FallbackMicroservicePlan(t *testing.T) {
	ctx, _, _ := testCtx(nil)

	graph, err := NewPlanner().Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{
		KeyRequest:     "Create a microservice with a REST API",
		KeyEnvironment: "staging",
	})
	require.NoError(t, err)

	require.Equal(t, 3, result.Int(KeyTaskCount))
	tasks := result.Slice(KeyTasks)

	first := asTask(tasks[0])
	second := asTask(tasks[1])
	third := asTask(tasks[2])

	assert.Equal(t, "codegen", first.Agent)
	assert.Equal(t, "policy", second.Agent)
	assert.Equal(t, "deployment", third.Agent)

	// The plan forms a chain: scan depends on generate, deploy on scan.
	assert.Equal(t, []string{first.TaskID}, second.Dependencies)
	assert.Equal(t, []string{second.TaskID}, third.Dependencies)
	assert.Contains(t, third.Description, "staging")
}

func TestTasksFromItems_DefaultsAndSkips(t *testing.T) {
	items := []any{
		map[string]any{"description": "no id or agent", "priority": float64(2)},
		"not a map",
		map[string]any{"task_id": "x", "agent": "policy", "priority": 2.5},
	}

	tasks := tasksFromItems(items)
	require.Len(t, tasks, 2)

	first := asTask(tasks[0])
	assert.True(t, strings.HasPrefix(first.TaskID, "t-"))
	assert.Equal(t, "codegen", first.Agent)
	assert.Equal(t, 2, first.Priority)

	// Fractional priorities fall back to the default.
	second := asTask(tasks[1])
	assert.Equal(t, 3, second.Priority)
}
