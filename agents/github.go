package agents

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubClient implements SourceControl for GitHub repositories owned by a
// single user or organization.
type GitHubClient struct {
	client *github.Client
	owner  string
}

// NewGitHubClient creates a GitHub client. token is a personal access
// token or GitHub App token; owner is the account repositories are created
// under.
func NewGitHubClient(token, owner string) (*GitHubClient, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHubClient{
		client: github.NewClient(tc),
		owner:  owner,
	}, nil
}

// CreateRepo creates a private or public repository under the configured
// owner and returns its web URL. An already-existing repository is not an
// error; its URL is returned instead.
func (g *GitHubClient) CreateRepo(ctx context.Context, name, description string, private bool) (string, error) {
	repo := &github.Repository{
		Name:        github.String(name),
		Description: github.String(description),
		Private:     github.Bool(private),
		AutoInit:    github.Bool(true),
	}

	created, resp, err := g.client.Repositories.Create(ctx, "", repo)
	if err == nil {
		return created.GetHTMLURL(), nil
	}

	if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(err.Error(), "already exists") {
		existing, _, getErr := g.client.Repositories.Get(ctx, g.owner, name)
		if getErr != nil {
			return "", fmt.Errorf("repository %s exists but lookup failed: %w", name, getErr)
		}
		return existing.GetHTMLURL(), nil
	}

	return "", fmt.Errorf("create repository %s: %w", name, err)
}

// CreateBranch creates branch from the head commit of from.
func (g *GitHubClient) CreateBranch(ctx context.Context, repo, branch, from string) error {
	base, _, err := g.client.Git.GetRef(ctx, g.owner, repo, "refs/heads/"+from)
	if err != nil {
		return fmt.Errorf("get ref %s: %w", from, err)
	}

	_, _, err = g.client.Git.CreateRef(ctx, g.owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: base.Object.SHA},
	})
	if err != nil {
		if strings.Contains(err.Error(), "Reference already exists") {
			return nil
		}
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	return nil
}

// PushFile creates the file on the branch, or updates it in place when it
// already exists.
func (g *GitHubClient) PushFile(ctx context.Context, repo, branch, path, message string, content []byte) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}

	_, resp, err := g.client.Repositories.CreateFile(ctx, g.owner, repo, path, opts)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusUnprocessableEntity {
		return fmt.Errorf("create file %s: %w", path, err)
	}

	// 422 means the file exists; an update needs its current blob SHA.
	existing, _, _, getErr := g.client.Repositories.GetContents(ctx, g.owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	if getErr != nil {
		return fmt.Errorf("get existing file %s: %w", path, getErr)
	}
	opts.SHA = existing.SHA

	if _, _, err := g.client.Repositories.UpdateFile(ctx, g.owner, repo, path, opts); err != nil {
		return fmt.Errorf("update file %s: %w", path, err)
	}
	return nil
}

// EnsureGitflow creates the standard gitflow branches off the default
// branch. Branches that already exist are left alone.
func (g *GitHubClient) EnsureGitflow(ctx context.Context, repo string) error {
	for _, branch := range []string{"develop", "release/1.0.0", "hotfix/initial"} {
		if err := g.CreateBranch(ctx, repo, branch, "main"); err != nil {
			return err
		}
	}
	return nil
}

var _ SourceControl = (*GitHubClient)(nil)
