package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/kv"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/registry"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/repair"
)

// historyWindow bounds how many prior messages are replayed to the model.
const historyWindow = 5

// sessionsTable is the record store table holding chat transcripts.
const sessionsTable = "sessions"

// Chatbot is the conversational front end. It classifies each message into
// an intent, dispatches actionable intents to the matching workflow from
// the registry, and composes a reply. Transcripts persist per session in
// the record store.
type Chatbot struct {
	registry *registry.Registry
}

// NewChatbot creates a chatbot dispatching to the given workflow registry.
// A nil registry disables action execution; every message then gets a
// conversational reply only.
func NewChatbot(reg *registry.Registry) *Chatbot {
	return &Chatbot{registry: reg}
}

const chatbotSystem = `You are an assistant for a DevOps automation platform. You can plan
workflows, generate microservice code, migrate Jenkins pipelines to
GitHub Actions, remediate failed CI pipelines, and scan content against
governance policies.

Analyze the user's message and respond with JSON:
{
  "intent": "workflow|codegen|migration|remediation|policy|help|general",
  "action_needed": true or false,
  "parameters": { },
  "response": "your conversational reply"
}

Set action_needed true only when the user asks for something an agent can
execute, and extract the parameters that agent needs:
- workflow: {"request": "...", "environment": "dev|staging|prod"}
- codegen: {"service_name": "...", "language": "...", "database": "...", "api_type": "..."}
- migration: {"jenkinsfile": "...", "project_name": "..."}
- remediation: {"pipeline_id": 123}
- policy: {"content": "...", "content_type": "code|workflow|repository"}

Be friendly and concise. Ask for missing information instead of guessing.`

// Graph compiles the chat workflow:
//
//	analyze_intent -> [execute_action] -> compose_response -> END
//
// execute_action is skipped when no action is needed or the intent has no
// registered workflow.
func (c *Chatbot) Graph() (*opsgraph.CompiledGraph, error) {
	g := opsgraph.NewGraph().
		AddNode("analyze_intent", c.analyzeIntent).
		AddNode("execute_action", c.executeAction).
		AddNode("compose_response", c.composeResponse).
		AddConditionalEdge("analyze_intent", c.routeAfterIntent, "execute_action", "compose_response").
		AddFailureEdge("analyze_intent", "compose_response").
		AddEdge("execute_action", "compose_response").
		AddEdge("compose_response", opsgraph.END).
		SetEntry("analyze_intent")

	return g.Compile()
}

func (c *Chatbot) analyzeIntent(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	client := ctx.LLM()
	if client == nil {
		return opsgraph.Update{
			KeyIntent:       "general",
			KeyActionNeeded: false,
			KeyResponse:     "No language model is configured, so I can only echo: " + state.String(KeyMessage),
		}, nil
	}

	history, err := c.loadSession(ctx, state.String(KeySessionID))
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, msg := range history[start:] {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}

	prompt := fmt.Sprintf("Conversation history:\n%s\nNew user message: %s",
		sb.String(), state.String(KeyMessage))
	resp, err := client.Complete(ctx, llm.UserMessage(chatbotSystem, prompt))
	if err != nil {
		return nil, fmt.Errorf("analyze intent: %w", err)
	}

	record, ok := repair.New(repair.WithFields("intent", "action_needed", "response")).Record(resp.Content)
	if !ok && len(record) == 0 {
		// Model answered conversationally instead of with JSON; use the
		// raw text as the reply.
		return opsgraph.Update{
			KeyIntent:       "general",
			KeyActionNeeded: false,
			KeyResponse:     strings.TrimSpace(resp.Content),
		}, nil
	}

	intent := str(record["intent"])
	if intent == "" {
		intent = "general"
	}
	actionNeeded, _ := record["action_needed"].(bool)

	update := opsgraph.Update{
		KeyIntent:       intent,
		KeyActionNeeded: actionNeeded,
		KeyResponse:     str(record["response"]),
	}
	if params, ok := record["parameters"].(map[string]any); ok {
		update[KeyParameters] = params
	}
	return update, nil
}

func (c *Chatbot) routeAfterIntent(ctx opsgraph.Context, state opsgraph.State) string {
	if !state.Bool(KeyActionNeeded) || c.registry == nil {
		return "compose_response"
	}
	if !c.registry.Has(state.String(KeyIntent)) {
		return "compose_response"
	}
	return "execute_action"
}

// executeAction runs the registered workflow for the classified intent as
// a nested graph run, seeded with the extracted parameters.
func (c *Chatbot) executeAction(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	intent := state.String(KeyIntent)
	wf, ok := c.registry.Get(intent)
	if !ok {
		return nil, fmt.Errorf("no workflow registered for intent %q", intent)
	}

	initial := opsgraph.State{}
	for k, v := range state.Map(KeyParameters) {
		initial[k] = v
	}

	result, err := wf.Graph.Run(ctx, initial)
	if err != nil {
		ctx.Logger().Error("action failed", "intent", intent, "error", err)
		return opsgraph.Update{
			KeyActionResult: map[string]any{"success": false, "error": err.Error()},
		}, nil
	}

	ctx.Logger().Info("action completed", "intent", intent)
	return opsgraph.Update{
		KeyActionResult: map[string]any{"success": true, "result": map[string]any(result)},
	}, nil
}

func (c *Chatbot) composeResponse(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	response := state.String(KeyResponse)
	if response == "" {
		if state.Has(opsgraph.ErrorKey) {
			response = "I ran into a problem processing that request. Could you try rephrasing?"
		} else {
			response = "Done."
		}
	}

	if result := state.Map(KeyActionResult); result != nil {
		if ok, _ := result["success"].(bool); ok {
			response += "\n\nThe " + state.String(KeyIntent) + " workflow completed successfully."
		} else {
			response += fmt.Sprintf("\n\nThe %s workflow failed: %v",
				state.String(KeyIntent), result["error"])
		}
	}

	update := opsgraph.Update{KeyResponse: response}
	if err := c.appendSession(ctx, state.String(KeySessionID), state.String(KeyMessage), response); err != nil {
		// The reply is still useful when persistence fails.
		ctx.Logger().Warn("session not persisted", "error", err)
	}
	return update, nil
}

func (c *Chatbot) loadSession(ctx opsgraph.Context, sessionID string) ([]llm.Message, error) {
	store := ctx.Store()
	if store == nil || sessionID == "" {
		return nil, nil
	}

	raw, err := store.Get(ctx, sessionsTable, sessionID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var history []llm.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return history, nil
}

func (c *Chatbot) appendSession(ctx opsgraph.Context, sessionID, message, response string) error {
	store := ctx.Store()
	if store == nil || sessionID == "" {
		return nil
	}

	history, err := c.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history,
		llm.Message{Role: llm.RoleUser, Content: message},
		llm.Message{Role: llm.RoleAssistant, Content: response},
	)

	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	return store.Put(ctx, sessionsTable, sessionID, raw)
}
