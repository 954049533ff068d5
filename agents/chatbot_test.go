package agents

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/registry"
)

// chatRegistry registers a trivial workflow under the given intent so
// dispatch can be observed without running a real agent.
func chatRegistry(t *testing.T, intent string, executed *bool) *registry.Registry {
	t.Helper()

	graph, err := opsgraph.NewGraph().
		AddNode("work", func(ctx opsgraph.Context, s opsgraph.State) (opsgraph.Update, error) {
			*executed = true
			return opsgraph.Update{"handled": s.String("request")}, nil
		}).
		AddEdge("work", opsgraph.END).
		SetEntry("work").
		Compile()
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, reg.Register(registry.Workflow{
		Name:        intent,
		Description: "test workflow",
		Graph:       graph,
	}))
	return reg
}

func TestChatbot_GeneralConversation(t *testing.T) {
	response := `{"intent": "general", "action_needed": false,
		"response": "DevOps automation covers CI, CD, and infrastructure."}`
	ctx, store, _ := testCtx(llm.NewMockClient(response))

	graph, err := NewChatbot(nil).Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{
		KeySessionID: "sess-abc",
		KeyMessage:   "What is DevOps automation?",
	})
	require.NoError(t, err)

	assert.Equal(t, "general", result.String(KeyIntent))
	assert.Contains(t, result.String(KeyResponse), "CI, CD, and infrastructure")
	assert.Nil(t, result.Map(KeyActionResult))

	// The turn is persisted as a user/assistant pair.
	raw, err := store.Get(ctx, sessionsTable, "sess-abc")
	require.NoError(t, err)
	var history []llm.Message
	require.NoError(t, json.Unmarshal(raw, &history))
	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "What is DevOps automation?", history[0].Content)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)
}

func TestChatbot_SessionHistoryFlowsIntoPrompt(t *testing.T) {
	client := llm.NewMockClient(`{"intent": "general", "action_needed": false, "response": "ok"}`)
	ctx, store, _ := testCtx(client)

	prior := []llm.Message{
		{Role: llm.RoleUser, Content: "earlier question"},
		{Role: llm.RoleAssistant, Content: "earlier answer"},
	}
	raw, err := json.Marshal(prior)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, sessionsTable, "sess-1", raw))

	graph, err := NewChatbot(nil).Graph()
	require.NoError(t, err)

	_, err = graph.Run(ctx, opsgraph.State{
		KeySessionID: "sess-1",
		KeyMessage:   "follow-up",
	})
	require.NoError(t, err)

	call := client.LastCall()
	require.NotNil(t, call)
	prompt := call.Messages[0].Content
	assert.Contains(t, prompt, "earlier question")
	assert.Contains(t, prompt, "earlier answer")
	assert.Contains(t, prompt, "follow-up")

	// The stored transcript now holds both turns.
	raw, err = store.Get(ctx, sessionsTable, "sess-1")
	require.NoError(t, err)
	var history []llm.Message
	require.NoError(t, json.Unmarshal(raw, &history))
	assert.Len(t, history, 4)
}

func TestChatbot_DispatchesAction(t *testing.T) {
	response := `{"intent": "workflow", "action_needed": true,
		"parameters": {"request": "build a service"},
		"response": "On it."}`
	ctx, _, _ := testCtx(llm.NewMockClient(response))

	executed := false
	reg := chatRegistry(t, "workflow", &executed)

	graph, err := NewChatbot(reg).Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{
		KeySessionID: "sess-2",
		KeyMessage:   "Please build a service",
	})
	require.NoError(t, err)

	assert.True(t, executed)
	actionResult := result.Map(KeyActionResult)
	require.NotNil(t, actionResult)
	assert.Equal(t, true, actionResult["success"])

	inner, ok := actionResult["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "build a service", inner["handled"])
	assert.Contains(t, result.String(KeyResponse), "workflow workflow completed successfully")
}

func TestChatbot_UnregisteredIntentSkipsAction(t *testing.T) {
	response := `{"intent": "jenkins", "action_needed": true,
		"parameters": {}, "response": "Checking Jenkins."}`
	ctx, _, _ := testCtx(llm.NewMockClient(response))

	executed := false
	reg := chatRegistry(t, "workflow", &executed)

	graph, err := NewChatbot(reg).Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{KeyMessage: "list jenkins jobs"})
	require.NoError(t, err)

	assert.False(t, executed)
	assert.Nil(t, result.Map(KeyActionResult))
	assert.Equal(t, "Checking Jenkins.", result.String(KeyResponse))
}

func TestChatbot_ModelErrorGetsApology(t *testing.T) {
	client := llm.NewMockClient("").WithError(errRemote)
	ctx, _, _ := testCtx(client)

	graph, err := NewChatbot(nil).Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{KeyMessage: "hello"})
	require.NoError(t, err)

	assert.True(t, result.Has(opsgraph.ErrorKey))
	assert.Contains(t, result.String(KeyResponse), "ran into a problem")
}

func TestChatbot_ProseResponseUsedVerbatim(t *testing.T) {
	ctx, _, _ := testCtx(llm.NewMockClient("Sure, happy to help with that."))

	graph, err := NewChatbot(nil).Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{KeyMessage: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "general", result.String(KeyIntent))
	assert.Equal(t, "Sure, happy to help with that.", result.String(KeyResponse))
}

func TestChatbot_NilClientStillReplies(t *testing.T) {
	ctx, _, _ := testCtx(nil)

	graph, err := NewChatbot(nil).Graph()
	require.NoError(t, err)

	result, err := graph.Run(ctx, opsgraph.State{KeyMessage: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.String(KeyResponse))
}
