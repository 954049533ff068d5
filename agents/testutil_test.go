package agents

import (
	"context"
	"errors"
	"sync"

	"github.com/randalmurphal/opsgraph/pkg/opsgraph"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/event"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/kv"
	"github.com/randalmurphal/opsgraph/pkg/opsgraph/llm"
)

// testCtx builds an execution context backed by an in-memory store, a
// local bus, and the given model client.
func testCtx(client llm.Client) (opsgraph.Context, *kv.MemoryStore, *event.LocalBus) {
	store := kv.NewMemoryStore()
	bus := event.NewLocalBus()
	ctx := opsgraph.NewContext(context.Background(),
		opsgraph.WithLLM(client),
		opsgraph.WithStore(store),
		opsgraph.WithEvents(bus),
	)
	return ctx, store, bus
}

// fakeSCM records source control calls without talking to any remote.
type fakeSCM struct {
	mu       sync.Mutex
	repos    []string
	branches []string
	pushed   map[string]string // path -> content
	repoErr  error
	pushErr  error
}

func newFakeSCM() *fakeSCM {
	return &fakeSCM{pushed: map[string]string{}}
}

func (f *fakeSCM) CreateRepo(ctx context.Context, name, description string, private bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repoErr != nil {
		return "", f.repoErr
	}
	f.repos = append(f.repos, name)
	return "https://github.com/test/" + name, nil
}

func (f *fakeSCM) CreateBranch(ctx context.Context, repo, branch, from string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches = append(f.branches, repo+":"+branch)
	return nil
}

func (f *fakeSCM) PushFile(ctx context.Context, repo, branch, path, message string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed[path] = string(content)
	return nil
}

// fakePipelines serves canned logs and scripted retry results.
type fakePipelines struct {
	mu        sync.Mutex
	logs      string
	logsErr   error
	retryErrs []error // consumed one per Retry call; nil past the end
	retries   int
}

func (f *fakePipelines) FailedJobLogs(ctx context.Context, pipelineID int) (string, error) {
	if f.logsErr != nil {
		return "", f.logsErr
	}
	return f.logs, nil
}

func (f *fakePipelines) Retry(ctx context.Context, pipelineID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.retries < len(f.retryErrs) {
		err = f.retryErrs[f.retries]
	}
	f.retries++
	return err
}

var errRemote = errors.New("remote unavailable")
