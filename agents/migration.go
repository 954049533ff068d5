package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/repair"
)

// Migration converts Jenkins pipelines into GitHub Actions workflows.
// Parsing and generation each try the model first and fall back to the
// deterministic regex parser and template builder on failure.
type Migration struct{}

// NewMigration creates a migration agent.
func NewMigration() *Migration {
	return &Migration{}
}

const migrationParseSystem = `You are a Jenkins pipeline expert. Analyze the Jenkinsfile and
extract its structure. Return ONLY a JSON object:
{
  "type": "declarative or scripted",
  "agent": "ubuntu-latest, windows-latest, or macos-latest",
  "stages": [{"name": "...", "steps": ["commands in this stage"]}],
  "environment": {"VAR": "value"},
  "git_url": "repository URL if present",
  "git_branch": "branch name if present",
  "triggers": [{"type": "cron or pollSCM", "value": "cron expression"}]
}
Extract ALL stages, steps, and configuration. No markdown fences.`

const migrationGenerateSystem = `You are a GitHub Actions expert. Convert the Jenkins pipeline
data into a GitHub Actions workflow YAML. Use the correct hosted runner,
set up required tools, include checkout, convert stages to jobs, carry
environment variables and triggers, and upload artifacts where sensible.
Only emit commands that run on the target runner: no Windows commands on
ubuntu or macos runners, no Unix commands on windows runners.
Return ONLY the workflow YAML starting with 'name:'. No fences.`

// Graph compiles the migration workflow:
//
//	parse_llm -> (parse_regex) -> generate_llm -> (generate_template)
//	          -> cleanup_platform -> build_report -> END
//
// The parenthesized nodes are fallbacks reached when the model call fails
// or its output cannot be repaired into the expected shape.
func (m *Migration) Graph() (*opsgraph.CompiledGraph, error) {
	g := opsgraph.NewGraph().
		AddNode("parse_llm", m.parseLLM).
		AddNode("parse_regex", m.parseRegex).
		AddNode("generate_llm", m.generateLLM).
		AddNode("generate_template", m.generateTemplate).
		AddNode("cleanup_platform", m.cleanupPlatform).
		AddNode("build_report", m.buildReport).
		AddConditionalEdge("parse_llm", m.routeAfterParse, "parse_regex", "generate_llm").
		AddFailureEdge("parse_llm", "parse_regex").
		AddEdge("parse_regex", "generate_llm").
		AddConditionalEdge("generate_llm", m.routeAfterGenerate, "generate_template", "cleanup_platform").
		AddFailureEdge("generate_llm", "generate_template").
		AddEdge("generate_template", "cleanup_platform").
		AddEdge("cleanup_platform", "build_report").
		AddEdge("build_report", opsgraph.END).
		SetEntry("parse_llm")

	return g.Compile()
}

func (m *Migration) parseLLM(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	client := ctx.LLM()
	if client == nil {
		return opsgraph.Update{}, nil
	}

	src := state.String(KeyJenkinsfile)
	resp, err := client.Complete(ctx, llm.UserMessage(migrationParseSystem, src))
	if err != nil {
		return nil, fmt.Errorf("parse jenkinsfile: %w", err)
	}

	record, ok := repair.Record(resp.Content)
	if !ok {
		ctx.Logger().Warn("unusable parse response, falling back to regex parser")
		return opsgraph.Update{}, nil
	}

	pipeline := pipelineFromMap(record)
	if len(pipeline.Stages) == 0 {
		return opsgraph.Update{}, nil
	}

	ctx.Logger().Info("model parsed pipeline", "stages", len(pipeline.Stages))
	return opsgraph.Update{KeyPipeline: pipeline, KeyParser: "llm"}, nil
}

func (m *Migration) routeAfterParse(ctx opsgraph.Context, state opsgraph.State) string {
	if _, ok := state[KeyPipeline]; !ok {
		return "parse_regex"
	}
	return "generate_llm"
}

func (m *Migration) parseRegex(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	pipeline := ParseJenkinsfile(state.String(KeyJenkinsfile))
	ctx.Logger().Info("regex parsed pipeline", "type", pipeline.Type, "stages", len(pipeline.Stages))
	return opsgraph.Update{KeyPipeline: pipeline, KeyParser: "regex"}, nil
}

func (m *Migration) generateLLM(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	client := ctx.LLM()
	if client == nil {
		return opsgraph.Update{}, nil
	}

	pipeline := statePipeline(state)
	data, err := json.MarshalIndent(pipeline, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal pipeline: %w", err)
	}

	prompt := fmt.Sprintf("Project name: %s\n\nPipeline data:\n%s",
		state.String(KeyProjectName), data)
	resp, err := client.Complete(ctx, llm.UserMessage(migrationGenerateSystem, prompt))
	if err != nil {
		return nil, fmt.Errorf("generate workflow: %w", err)
	}

	text := stripYAMLFences(resp.Content)
	var probe map[string]any
	if yaml.Unmarshal([]byte(text), &probe) != nil || probe["jobs"] == nil {
		ctx.Logger().Warn("generated workflow is not valid YAML, falling back to template")
		return opsgraph.Update{}, nil
	}

	return opsgraph.Update{KeyWorkflowYAML: text, KeyGenerator: "llm"}, nil
}

func (m *Migration) routeAfterGenerate(ctx opsgraph.Context, state opsgraph.State) string {
	if state.String(KeyWorkflowYAML) == "" {
		return "generate_template"
	}
	return "cleanup_platform"
}

func (m *Migration) generateTemplate(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	wf := BuildWorkflow(statePipeline(state), state.String(KeyProjectName))
	out, err := yaml.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}
	return opsgraph.Update{KeyWorkflowYAML: string(out), KeyGenerator: "template"}, nil
}

func (m *Migration) cleanupPlatform(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	runner := statePipeline(state).Agent
	cleaned, removed := CleanPlatformCommands(state.String(KeyWorkflowYAML), runner)

	update := opsgraph.Update{KeyCleanedYAML: cleaned}
	if removed > 0 {
		ctx.Logger().Info("removed platform-mismatched steps", "count", removed, "runner", runner)
		update[KeyWarnings] = []any{
			fmt.Sprintf("removed %d steps incompatible with %s", removed, runner),
		}
	}
	return update, nil
}

func (m *Migration) buildReport(ctx opsgraph.Context, state opsgraph.State) (opsgraph.Update, error) {
	pipeline := statePipeline(state)
	report := map[string]any{
		"project":       state.String(KeyProjectName),
		"pipeline_type": pipeline.Type,
		"runner":        pipeline.Agent,
		"stage_count":   len(pipeline.Stages),
		"parser":        state.String(KeyParser),
		"generator":     state.String(KeyGenerator),
		"warnings":      state.Slice(KeyWarnings),
	}
	return opsgraph.Update{KeyReport: report}, nil
}

// statePipeline reads the parsed pipeline back out of state, tolerating
// the map shape it takes after a JSON round trip.
func statePipeline(state opsgraph.State) JenkinsPipeline {
	switch v := state[KeyPipeline].(type) {
	case JenkinsPipeline:
		return v
	case map[string]any:
		return pipelineFromMap(v)
	default:
		return JenkinsPipeline{Agent: "ubuntu-latest"}
	}
}

func stripYAMLFences(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```yaml"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
