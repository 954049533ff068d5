package agents

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xanzy/go-gitlab"
)

// GitLabPipelines implements Pipelines against a GitLab project.
type GitLabPipelines struct {
	client  *gitlab.Client
	project string // numeric ID or "namespace/project"
}

// NewGitLabPipelines creates a GitLab client. token is a personal access
// token, baseURL the instance URL (empty for gitlab.com), and project a
// numeric ID or "namespace/project" path.
func NewGitLabPipelines(token, baseURL, project string) (*GitLabPipelines, error) {
	if token == "" {
		return nil, fmt.Errorf("GitLab token is required")
	}
	if project == "" {
		return nil, fmt.Errorf("project is required")
	}

	var (
		client *gitlab.Client
		err    error
	)
	if baseURL != "" {
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	} else {
		client, err = gitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &GitLabPipelines{client: client, project: project}, nil
}

// FailedJobLogs returns the trace logs of every failed job in the
// pipeline, each prefixed with a job header.
func (g *GitLabPipelines) FailedJobLogs(ctx context.Context, pipelineID int) (string, error) {
	jobs, _, err := g.client.Jobs.ListPipelineJobs(g.project, pipelineID,
		&gitlab.ListJobsOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("list pipeline %d jobs: %w", pipelineID, err)
	}

	var sb strings.Builder
	for _, job := range jobs {
		if job.Status != "failed" {
			continue
		}
		trace, _, err := g.client.Jobs.GetTraceFile(g.project, job.ID, gitlab.WithContext(ctx))
		if err != nil {
			// A job without a readable trace still leaves the others usable.
			continue
		}
		raw, err := io.ReadAll(trace)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "=== Job: %s ===\n%s\n", job.Name, raw)
	}

	return sb.String(), nil
}

// Retry re-runs the pipeline.
func (g *GitLabPipelines) Retry(ctx context.Context, pipelineID int) error {
	_, _, err := g.client.Pipelines.RetryPipelineBuild(g.project, pipelineID, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("retry pipeline %d: %w", pipelineID, err)
	}
	return nil
}

var _ Pipelines = (*GitLabPipelines)(nil)
