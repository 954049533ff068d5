package config

import "os"

// EngineSettings holds the engine section of a workflow config file.
type EngineSettings struct {
	// StepLimit caps the number of node executions per run.
	StepLimit int
	// RetryAttempts is the default self-retry budget for retry edges.
	RetryAttempts int
	// Model is the LLM model passed to completion calls.
	Model string
	// ArtifactsDir is where generated files are written.
	ArtifactsDir string
	// DatabasePath is the SQLite file backing the kv store.
	DatabasePath string
}

// Engine extracts the "engine" section with defaults applied.
func (c Config) Engine() EngineSettings {
	sec := c.Sub("engine")
	return EngineSettings{
		StepLimit:     sec.Int("step_limit", 20),
		RetryAttempts: sec.Int("retry_attempts", 3),
		Model:         sec.String("model", ""),
		ArtifactsDir:  sec.String("artifacts_dir", "artifacts"),
		DatabasePath:  sec.String("database_path", "opsgraph.db"),
	}
}

// GitHubSettings holds GitHub connection details.
type GitHubSettings struct {
	Token string
	Owner string
	Repo  string
}

// GitHub extracts the "github" section. The token falls back to the
// GITHUB_TOKEN environment variable when not set in the file.
func (c Config) GitHub() GitHubSettings {
	sec := c.Sub("github")
	token := sec.String("token", "")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	return GitHubSettings{
		Token: token,
		Owner: sec.String("owner", ""),
		Repo:  sec.String("repo", ""),
	}
}

// GitLabSettings holds GitLab connection details.
type GitLabSettings struct {
	Token   string
	BaseURL string
	Project string
}

// GitLab extracts the "gitlab" section. The token falls back to the
// GITLAB_TOKEN environment variable when not set in the file.
func (c Config) GitLab() GitLabSettings {
	sec := c.Sub("gitlab")
	token := sec.String("token", "")
	if token == "" {
		token = os.Getenv("GITLAB_TOKEN")
	}
	return GitLabSettings{
		Token:   token,
		BaseURL: sec.String("base_url", ""),
		Project: sec.String("project", ""),
	}
}
