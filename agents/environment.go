package agents

import (
	"context"
	"fmt"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/config"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/event"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/kv"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/registry"
)

// Environment bundles the collaborators agents run against, assembled
// from configuration. Sections consumed:
//
//	engine:  step_limit, retry_attempts, model, artifacts_dir, database_path
//	github:  token, owner
//	gitlab:  token, base_url, project
type Environment struct {
	Store     kv.Store
	Bus       *event.LocalBus
	Client    llm.Client
	Artifacts *ArtifactStore
	Registry  *registry.Registry

	settings config.EngineSettings
}

// NewEnvironment builds an environment from configuration. Remote
// collaborators are only constructed when their section carries a token;
// agents degrade to their deterministic paths without them.
func NewEnvironment(cfg config.Config) (*Environment, error) {
	settings := cfg.Engine()

	store, err := kv.NewSQLiteStore(settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	var client llm.Client
	if settings.Model != "" {
		client = llm.NewClaudeCLI(llm.WithModel(settings.Model))
	}

	var scm SourceControl
	if gh := cfg.Sub("github"); gh.String("token", "") != "" {
		scm, err = NewGitHubClient(gh.String("token", ""), gh.String("owner", ""))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("github client: %w", err)
		}
	}

	var pipelines Pipelines
	if gl := cfg.Sub("gitlab"); gl.String("token", "") != "" {
		pipelines, err = NewGitLabPipelines(
			gl.String("token", ""),
			gl.String("base_url", ""),
			gl.String("project", ""),
		)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("gitlab client: %w", err)
		}
	}

	reg, err := BuildRegistry(scm, pipelines)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Environment{
		Store:     store,
		Bus:       event.NewLocalBus(),
		Client:    client,
		Artifacts: NewArtifactStore(settings.ArtifactsDir),
		Registry:  reg,
		settings:  settings,
	}, nil
}

// Context returns an execution context carrying the environment's
// collaborators.
func (e *Environment) Context(ctx context.Context) opsgraph.Context {
	return opsgraph.NewContext(ctx,
		opsgraph.WithLLM(e.Client),
		opsgraph.WithStore(e.Store),
		opsgraph.WithEvents(e.Bus),
	)
}

// RunOptions returns the run options the configuration calls for.
func (e *Environment) RunOptions() []opsgraph.RunOption {
	return []opsgraph.RunOption{opsgraph.WithMaxSteps(e.settings.StepLimit)}
}

// Close releases the environment's resources.
func (e *Environment) Close() error {
	return e.Store.Close()
}
