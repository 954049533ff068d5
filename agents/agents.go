// Package agents provides ready-made workflow graphs for DevOps automation:
// planning, pipeline migration, code generation, policy scanning, failure
// remediation, and a conversational front end that dispatches to the others.
//
// Each agent is a struct holding its external collaborators (source control,
// CI pipelines) and exposes a Graph method returning a compiled opsgraph
// graph. LLM access, record storage, and event publishing come from the
// execution context, so agents stay testable against mocks.
package agents

import (
	"context"
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/registry"
)

// SourceControl abstracts the repository operations agents perform.
// GitHubClient is the production implementation.
type SourceControl interface {
	// CreateRepo creates a repository and returns its web URL. Creating a
	// repository that already exists returns the existing URL, not an error.
	CreateRepo(ctx context.Context, name, description string, private bool) (string, error)

	// CreateBranch creates branch from the head of the from branch.
	CreateBranch(ctx context.Context, repo, branch, from string) error

	// PushFile creates or updates a single file on the given branch.
	PushFile(ctx context.Context, repo, branch, path, message string, content []byte) error
}

// Pipelines abstracts the CI pipeline operations the remediation agent
// performs. GitLabPipelines is the production implementation.
type Pipelines interface {
	// FailedJobLogs returns the concatenated trace logs of the failed jobs
	// in a pipeline.
	FailedJobLogs(ctx context.Context, pipelineID int) (string, error)

	// Retry re-runs a pipeline.
	Retry(ctx context.Context, pipelineID int) error
}

const idAlphabet = "0123456789abcdef"

// newID returns a prefixed random identifier, e.g. "wf-3f41c09ab2de".
func newID(prefix string, length int) string {
	id, err := nanoid.Generate(idAlphabet, length)
	if err != nil {
		// nanoid only fails on a broken entropy source.
		panic(fmt.Sprintf("agents: generate id: %v", err))
	}
	return prefix + "-" + id
}

// NewWorkflowID returns an identifier for a planned workflow.
func NewWorkflowID() string { return newID("wf", 12) }

// NewTaskID returns an identifier for a single planned task.
func NewTaskID() string { return newID("t", 8) }

// NewSessionID returns an identifier for a chat session.
func NewSessionID() string { return newID("sess", 12) }

// BuildRegistry compiles the dispatchable agents and registers them under
// the intent names the chatbot routes on.
func BuildRegistry(scm SourceControl, pipelines Pipelines) (*registry.Registry, error) {
	reg := registry.New()

	entries := []struct {
		name, description string
		graph             func() (*opsgraph.CompiledGraph, error)
	}{
		{"workflow", "Plan and decompose a request into dispatchable tasks", NewPlanner().Graph},
		{"migration", "Convert a Jenkins pipeline to a GitHub Actions workflow", NewMigration().Graph},
		{"codegen", "Scaffold a microservice and push it to source control", NewCodeGen(scm).Graph},
		{"remediation", "Diagnose and fix a failed CI pipeline", NewRemediation(pipelines).Graph},
		{"policy", "Scan content against governance policies", NewPolicy().Graph},
	}

	for _, e := range entries {
		graph, err := e.graph()
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", e.name, err)
		}
		if err := reg.Register(registry.Workflow{
			Name:        e.name,
			Description: e.description,
			Graph:       graph,
		}); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
