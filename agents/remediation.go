package agents

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/event"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/repair"
)

const (
	playbooksTable = "playbooks"
	actionsTable   = "remediation_actions"

	// playbookRetries caps how many times the fix is attempted before the
	// failure escalates to a human.
	playbookRetries = 3
)

// Playbook describes how to remediate a class of pipeline failure.
type Playbook struct {
	PlaybookID     string   `json:"playbook_id"`
	Category       string   `json:"category"`
	FailurePattern string   `json:"failure_pattern"`
	AutoFixEnabled bool     `json:"auto_fix_enabled"`
	Steps          []string `json:"steps"`
}

// Remediation diagnoses failed CI pipelines and applies low-risk fixes
// automatically. High-risk failures and exhausted fix attempts escalate to
// manual intervention.
type Remediation struct {
	pipelines Pipelines
}

// NewRemediation creates a remediation agent. pipelines may be nil, in
// which case log fetching and pipeline retries are skipped and the run
// escalates.
func NewRemediation(pipelines Pipelines) *Remediation {
	return &Remediation{pipelines: pipelines}
}

const remediationSystem = `You are a DevOps expert analyzing a failed CI/CD pipeline.
From the error logs, identify the root cause and return ONLY a JSON object:
{
  "root_cause": "brief description",
  "category": "dependency|environment|test|resource|infrastructure",
  "risk_level": "low|medium|high",
  "remediation_strategy": "specific_action_name",
  "failure_pattern": "text pattern that identifies this error",
  "confidence": 0.95,
  "explanation": "detailed explanation"
}
risk_level low means safe to auto-fix; high requires manual intervention.`

// Graph compiles the remediation workflow:
//
//	fetch_logs -> analyze_failure -> find_playbook
//	  -> execute_playbook (self-retry, capped) | store_and_notify -> END
//
// execute_playbook retries itself until the fix lands or the attempt cap
// forces the run to store_and_notify.
func (r *Remediation) Graph() (*opsgraph.CompiledGraph, error) {
	g := opsgraph.NewGraph().
		AddNode("fetch_logs", r.fetchLogs).
		AddNode("analyze_failure", r.analyzeFailure).
		AddNode("find_playbook", r.findPlaybook).
		AddNode("execute_playbook", r.executePlaybook).
		AddNode("store_and_notify", r.storeAndNotify).
		AddEdge("fetch_logs", "analyze_failure").
		AddEdge("analyze_failure", "find_playbook").
		AddConditionalEdge("find_playbook", r.routeAfterPlaybook, "execute_playbook", "store_and_notify").
		AddRetryEdge("execute_playbook", playbookRetries, r.routeAfterExecute, "store_and_notify").
		AddEdge("store_and_notify", opsgraph.END).
		SetEntry("fetch_logs")

	return g.Compile()
}

func (r *Remediation) fetchLogs(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	if r.pipelines == nil {
		return opsgraph.Update{KeyLogs: ""}, nil
	}

	pipelineID := state.Int(KeyPipelineID)
	logs, err := r.pipelines.FailedJobLogs(ctx, pipelineID)
	if err != nil {
		// Analysis degrades gracefully without logs; the run still ends
		// with a stored action record.
		ctx.Logger().Warn("could not fetch pipeline logs", "pipeline_id", pipelineID, "error", err)
		return opsgraph.Update{KeyLogs: ""}, nil
	}
	return opsgraph.Update{KeyLogs: logs}, nil
}

func (r *Remediation) analyzeFailure(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	logs := state.String(KeyLogs)
	client := ctx.LLM()
	if client == nil {
		return opsgraph.Update{KeyAnalysis: fallbackAnalysis(logs)}, nil
	}

	if len(logs) > 4000 {
		logs = logs[:4000]
	}
	prompt := fmt.Sprintf("Pipeline ID: %d\n\nError logs:\n%s",
		state.Int(KeyPipelineID), logs)

	resp, err := client.Complete(ctx, llm.UserMessage(remediationSystem, prompt))
	if err != nil {
		ctx.Logger().Warn("model analysis failed, using rule-based fallback", "error", err)
		return opsgraph.Update{KeyAnalysis: fallbackAnalysis(state.String(KeyLogs))}, nil
	}

	analysis, ok := repair.New(repair.WithFields(
		"root_cause", "category", "risk_level", "remediation_strategy",
		"failure_pattern", "confidence",
	)).Record(resp.Content)
	if !ok && len(analysis) == 0 {
		return opsgraph.Update{KeyAnalysis: fallbackAnalysis(state.String(KeyLogs))}, nil
	}

	return opsgraph.Update{KeyAnalysis: analysis}, nil
}

// fallbackAnalysis classifies common failures by pattern when the model is
// unavailable. Unrecognized logs are marked high risk so nothing is fixed
// blindly.
func fallbackAnalysis(logs string) map[string]any {
	switch {
	case strings.Contains(logs, "ModuleNotFoundError"), strings.Contains(logs, "No module named"):
		module := "unknown"
		if m := regexp.MustCompile(`No module named '([^']+)'`).FindStringSubmatch(logs); m != nil {
			module = m[1]
		}
		return map[string]any{
			"root_cause":           "Missing Python dependency: " + module,
			"category":             "dependency",
			"risk_level":           "low",
			"remediation_strategy": "add_dependency",
			"failure_pattern":      fmt.Sprintf("No module named '%s'", module),
			"confidence":           0.9,
		}
	case strings.Contains(logs, "npm ERR!") && strings.Contains(logs, "404"):
		return map[string]any{
			"root_cause":           "Missing npm package",
			"category":             "dependency",
			"risk_level":           "low",
			"remediation_strategy": "npm_install",
			"failure_pattern":      "npm ERR! 404",
			"confidence":           0.85,
		}
	case strings.Contains(logs, "OutOfMemoryError"), strings.Contains(logs, "exit code 137"):
		return map[string]any{
			"root_cause":           "Out of memory",
			"category":             "resource",
			"risk_level":           "low",
			"remediation_strategy": "increase_memory",
			"failure_pattern":      "OutOfMemoryError",
			"confidence":           0.9,
		}
	default:
		return map[string]any{
			"root_cause":           "Unknown failure",
			"category":             "infrastructure",
			"risk_level":           "high",
			"remediation_strategy": "manual_review",
			"failure_pattern":      "",
			"confidence":           0.3,
		}
	}
}

// findPlaybook looks up a stored playbook whose category matches the
// analysis and whose failure pattern matches the diagnosed one, falling
// back to the built-in playbooks.
func (r *Remediation) findPlaybook(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	analysis := state.Map(KeyAnalysis)
	category := str(analysis["category"])
	pattern := str(analysis["failure_pattern"])

	if store := ctx.Store(); store != nil {
		items, err := store.List(ctx, playbooksTable)
		if err != nil {
			return nil, fmt.Errorf("list playbooks: %w", err)
		}
		for _, item := range items {
			var pb Playbook
			if err := json.Unmarshal(item.Value, &pb); err != nil {
				ctx.Logger().Warn("skipping malformed playbook", "key", item.Key, "error", err)
				continue
			}
			if pb.Category != category || pb.FailurePattern == "" {
				continue
			}
			re, err := regexp.Compile("(?i)" + pb.FailurePattern)
			if err != nil {
				continue
			}
			if re.MatchString(pattern) {
				return opsgraph.Update{KeyPlaybook: pb}, nil
			}
		}
	}

	if pb, ok := builtinPlaybook(category, pattern); ok {
		return opsgraph.Update{KeyPlaybook: pb}, nil
	}
	return opsgraph.Update{}, nil
}

func builtinPlaybook(category, pattern string) (Playbook, bool) {
	if category == "dependency" && strings.Contains(pattern, "No module named") {
		return Playbook{
			PlaybookID:     "builtin-python-dependency",
			Category:       "dependency",
			FailurePattern: "No module named",
			AutoFixEnabled: true,
			Steps:          []string{"extract_module", "add_to_requirements", "commit_push", "retry_pipeline"},
		}, true
	}
	return Playbook{}, false
}

func (r *Remediation) routeAfterPlaybook(ctx opsgraph.Context, state opsgraph.State) string {
	pb, ok := statePlaybook(state)
	risk := str(state.Map(KeyAnalysis)["risk_level"])
	if ok && pb.AutoFixEnabled && risk == "low" {
		return "execute_playbook"
	}
	return "store_and_notify"
}

// executePlaybook applies the playbook steps. The retry_pipeline step
// re-runs the failed pipeline; a transient failure there leaves the
// outcome at retrying so the retry edge runs this node again.
func (r *Remediation) executePlaybook(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	pb, _ := statePlaybook(state)
	ctx.Logger().Info("executing playbook",
		"playbook_id", pb.PlaybookID, "attempt", ctx.Attempt())

	for _, step := range pb.Steps {
		if step != "retry_pipeline" {
			continue
		}
		if r.pipelines == nil {
			return opsgraph.Update{KeyOutcome: OutcomeRetrying}, nil
		}
		if err := r.pipelines.Retry(ctx, state.Int(KeyPipelineID)); err != nil {
			ctx.Logger().Warn("pipeline retry failed", "attempt", ctx.Attempt(), "error", err)
			return opsgraph.Update{KeyOutcome: OutcomeRetrying}, nil
		}
	}

	return opsgraph.Update{KeyOutcome: OutcomeFixed}, nil
}

func (r *Remediation) routeAfterExecute(ctx opsgraph.Context, state opsgraph.State) string {
	if state.String(KeyOutcome) == OutcomeFixed {
		return "store_and_notify"
	}
	return "execute_playbook"
}

// storeAndNotify records the remediation action and publishes the result
// on the event bus.
func (r *Remediation) storeAndNotify(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	outcome := state.String(KeyOutcome)
	if outcome != OutcomeFixed {
		outcome = OutcomeEscalated
	}

	record := map[string]any{
		"pipeline_id": state.Int(KeyPipelineID),
		"outcome":     outcome,
		"analysis":    state.Map(KeyAnalysis),
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	}
	if pb, ok := statePlaybook(state); ok {
		record["playbook_id"] = pb.PlaybookID
	}

	if store := ctx.Store(); store != nil {
		raw, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal action record: %w", err)
		}
		if err := store.Put(ctx, actionsTable, ctx.RunID(), raw); err != nil {
			return nil, fmt.Errorf("store action record: %w", err)
		}
	}

	if bus := ctx.Events(); bus != nil {
		eventType := event.TypeRunCompleted
		if outcome == OutcomeEscalated {
			eventType = event.TypeRunFailed
		}
		evt := event.New(eventType, "remediation", record).WithRunID(ctx.RunID())
		if err := bus.Publish(ctx, evt); err != nil {
			ctx.Logger().Warn("notify failed", "error", err)
		}
	}

	return opsgraph.Update{KeyOutcome: outcome}, nil
}

func statePlaybook(state opsgraph.State) (Playbook, bool) {
	switch v := state[KeyPlaybook].(type) {
	case Playbook:
		return v, true
	case map[string]any:
		return Playbook{
			PlaybookID:     str(v["playbook_id"]),
			Category:       str(v["category"]),
			FailurePattern: str(v["failure_pattern"]),
			AutoFixEnabled: v["auto_fix_enabled"] == true,
			Steps:          strSlice(v["steps"]),
		}, true
	default:
		return Playbook{}, false
	}
}
