package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/event"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/repair"
)

// Task is a single unit of work produced by the planner.
type Task struct {
	TaskID       string         `json:"task_id"`
	Agent        string         `json:"agent"`
	Description  string         `json:"description"`
	InputParams  map[string]any `json:"input_params"`
	Dependencies []string       `json:"dependencies"`
	Priority     int            `json:"priority"`
}

// Planner decomposes a free-form request into an ordered set of tasks for
// the other agents, persists the plan, and dispatches each task onto the
// event bus.
type Planner struct{}

// NewPlanner creates a planner agent.
func NewPlanner() *Planner {
	return &Planner{}
}

const plannerSystem = `You are a DevOps workflow planner. Decompose the request into tasks
for these agents:
- codegen: generate application code, scaffolding, infrastructure code
- policy: scan code or configuration for governance violations
- deployment: deploy services to an environment
- observability: set up monitoring, logging, alerting

Return ONLY a JSON array of task objects. Each task must have:
  "task_id": short unique id
  "agent": one of the agent names above
  "description": what the task does
  "input_params": object of parameters for the agent
  "dependencies": array of task_ids that must complete first
  "priority": 1 (highest) to 5 (lowest)

No markdown fences, no commentary.`

// Graph compiles the planning workflow:
//
//	plan_tasks -> (fallback_plan) -> store_workflow -> dispatch_tasks -> END
//
// fallback_plan runs when the model produced no usable task list or the
// call itself failed.
func (p *Planner) Graph() (*opsgraph.CompiledGraph, error) {
	g := opsgraph.NewGraph().
		AddNode("plan_tasks", p.planTasks).
		AddNode("fallback_plan", p.fallbackPlan).
		AddNode("store_workflow", p.storeWorkflow).
		AddNode("dispatch_tasks", p.dispatchTasks).
		AddConditionalEdge("plan_tasks", p.routeAfterPlan, "fallback_plan", "store_workflow").
		AddFailureEdge("plan_tasks", "fallback_plan").
		AddEdge("fallback_plan", "store_workflow").
		AddEdge("store_workflow", "dispatch_tasks").
		AddEdge("dispatch_tasks", opsgraph.END).
		SetEntry("plan_tasks")

	return g.Compile()
}

func (p *Planner) planTasks(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	client := ctx.LLM()
	if client == nil {
		// No model configured; the router sends us to the static plan.
		return opsgraph.Update{KeyWorkflowID: NewWorkflowID()}, nil
	}

	request := state.String(KeyRequest)
	resp, err := client.Complete(ctx, llm.UserMessage(plannerSystem, request))
	if err != nil {
		return nil, fmt.Errorf("plan tasks: %w", err)
	}

	items, ok := repair.Array(resp.Content)
	if !ok || len(items) == 0 {
		ctx.Logger().Warn("planner response unusable, falling back", "raw_len", len(resp.Content))
		return opsgraph.Update{KeyWorkflowID: NewWorkflowID()}, nil
	}

	tasks := tasksFromItems(items)
	ctx.Logger().Info("planned tasks", "count", len(tasks))

	return opsgraph.Update{
		KeyWorkflowID: NewWorkflowID(),
		KeyTasks:      tasks,
		KeyTaskCount:  len(tasks),
	}, nil
}

func (p *Planner) routeAfterPlan(ctx opsgraph.Context, state opsgraph.State) string {
	if len(state.Slice(KeyTasks)) == 0 {
		return "fallback_plan"
	}
	return "store_workflow"
}

// fallbackPlan produces a static decomposition when planning with the model
// failed. A microservice API request gets the standard three-stage plan;
// anything else becomes a single codegen task.
func (p *Planner) fallbackPlan(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	request := strings.ToLower(state.String(KeyRequest))
	env := state.String(KeyEnvironment)
	if env == "" {
		env = "dev"
	}

	var tasks []any
	if strings.Contains(request, "microservice") && strings.Contains(request, "api") {
		generate := NewTaskID()
		scan := NewTaskID()
		tasks = []any{
			Task{
				TaskID:       generate,
				Agent:        "codegen",
				Description:  "Generate REST API microservice scaffold",
				InputParams:  map[string]any{"api_type": "rest"},
				Dependencies: []string{},
				Priority:     1,
			},
			Task{
				TaskID:       scan,
				Agent:        "policy",
				Description:  "Scan generated code for policy violations",
				InputParams:  map[string]any{"content_type": "code"},
				Dependencies: []string{generate},
				Priority:     2,
			},
			Task{
				TaskID:       NewTaskID(),
				Agent:        "deployment",
				Description:  "Deploy service to " + env,
				InputParams:  map[string]any{"environment": env},
				Dependencies: []string{scan},
				Priority:     3,
			},
		}
	} else {
		tasks = []any{
			Task{
				TaskID:       NewTaskID(),
				Agent:        "codegen",
				Description:  state.String(KeyRequest),
				InputParams:  map[string]any{},
				Dependencies: []string{},
				Priority:     1,
			},
		}
	}

	update := opsgraph.Update{
		KeyTasks:        tasks,
		KeyTaskCount:    len(tasks),
		KeyFallbackUsed: true,
	}
	if state.String(KeyWorkflowID) == "" {
		update[KeyWorkflowID] = NewWorkflowID()
	}
	return update, nil
}

// storeWorkflow persists the plan: one metadata row for the workflow plus
// one row per task, all under the workflows table.
func (p *Planner) storeWorkflow(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	store := ctx.Store()
	if store == nil {
		ctx.Logger().Warn("no store configured, plan not persisted")
		return opsgraph.Update{}, nil
	}

	workflowID := state.String(KeyWorkflowID)
	tasks := state.Slice(KeyTasks)

	meta, err := json.Marshal(map[string]any{
		"workflow_id":  workflowID,
		"request":      state.String(KeyRequest),
		"environment":  state.String(KeyEnvironment),
		"requested_by": state.String(KeyRequestedBy),
		"task_count":   len(tasks),
		"status":       "planned",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal workflow metadata: %w", err)
	}
	if err := store.Put(ctx, "workflows", workflowID+"#META", meta); err != nil {
		return nil, fmt.Errorf("store workflow metadata: %w", err)
	}

	for _, item := range tasks {
		task := asTask(item)
		row, err := json.Marshal(task)
		if err != nil {
			return nil, fmt.Errorf("marshal task %s: %w", task.TaskID, err)
		}
		if err := store.Put(ctx, "workflows", workflowID+"#"+task.TaskID, row); err != nil {
			return nil, fmt.Errorf("store task %s: %w", task.TaskID, err)
		}
	}

	ctx.Logger().Info("stored workflow", "workflow_id", workflowID, "tasks", len(tasks))
	return opsgraph.Update{}, nil
}

// dispatchTasks publishes one task.created event per planned task.
func (p *Planner) dispatchTasks(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	bus := ctx.Events()
	if bus == nil {
		return opsgraph.Update{KeyDispatched: 0}, nil
	}

	workflowID := state.String(KeyWorkflowID)
	dispatched := 0
	for _, item := range state.Slice(KeyTasks) {
		task := asTask(item)
		evt := event.New(event.TypeTaskCreated, "planner", map[string]any{
			"workflow_id": workflowID,
			"task_id":     task.TaskID,
			"agent":       task.Agent,
			"description": task.Description,
			"params":      task.InputParams,
			"priority":    task.Priority,
		}).WithRunID(ctx.RunID())

		if err := bus.Publish(ctx, evt); err != nil {
			return nil, fmt.Errorf("dispatch task %s: %w", task.TaskID, err)
		}
		dispatched++
	}

	return opsgraph.Update{KeyDispatched: dispatched}, nil
}

// tasksFromItems converts a repaired JSON array into tasks, assigning ids
// and defaulting the agent where the model omitted them.
func tasksFromItems(items []any) []any {
	tasks := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		task := Task{
			TaskID:       str(m["task_id"]),
			Agent:        str(m["agent"]),
			Description:  str(m["description"]),
			Dependencies: strSlice(m["dependencies"]),
			Priority:     intVal(m["priority"], 3),
		}
		if params, ok := m["input_params"].(map[string]any); ok {
			task.InputParams = params
		} else {
			task.InputParams = map[string]any{}
		}
		if task.TaskID == "" {
			task.TaskID = NewTaskID()
		}
		if task.Agent == "" {
			task.Agent = "codegen"
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// asTask normalizes a state slice element back to a Task. Elements are Task
// values in-process but decay to maps after a JSON round trip.
func asTask(item any) Task {
	switch v := item.(type) {
	case Task:
		return v
	case map[string]any:
		task := Task{
			TaskID:       str(v["task_id"]),
			Agent:        str(v["agent"]),
			Description:  str(v["description"]),
			Dependencies: strSlice(v["dependencies"]),
			Priority:     intVal(v["priority"], 3),
		}
		if params, ok := v["input_params"].(map[string]any); ok {
			task.InputParams = params
		}
		return task
	default:
		return Task{}
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intVal(v any, defaultVal int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	}
	return defaultVal
}
