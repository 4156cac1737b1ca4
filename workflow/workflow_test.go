package workflow

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchgate/switchgate/featureswitch"
	"github.com/switchgate/switchgate/gitlocal"
	"github.com/switchgate/switchgate/scm"
)

func boolPtr(b bool) *bool { return &b }

// newBackend returns an in-memory repository with a master branch holding
// one unrelated file, plus a Runner bound to it.
func newBackend(t *testing.T) (*gitlocal.Repo, *Runner) {
	t.Helper()
	r, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)
	repo := gitlocal.New(r, nil)

	_, err = repo.Push(context.Background(), "", scm.Push{
		RefUpdates: []scm.RefUpdate{{Name: "refs/heads/master", OldObjectID: scm.ZeroObjectID}},
		Commits: []scm.Commit{{
			Message: "init",
			Changes: []scm.Change{{Path: "README.md", Kind: scm.ChangeAdd, Content: []byte("readme")}},
		}},
	})
	require.NoError(t, err)
	return repo, NewRunner(repo, nil)
}

func readFile(t *testing.T, repo *gitlocal.Repo, branch, path string) []byte {
	t.Helper()
	ref, err := repo.ResolveBranch(context.Background(), "", branch)
	require.NoError(t, err)
	content, err := repo.ContentFetchers()[0].Fetch(context.Background(), "", ref.ObjectID, path)
	require.NoError(t, err)
	return content
}

func TestCreateFeatureSwitch_DefaultBranchAndCanonicalFile(t *testing.T) {
	repo, runner := newBackend(t)

	res, err := runner.CreateFeatureSwitch(context.Background(), CreateSwitchRequest{
		RepositoryID: "R",
		FeatureName:  "MyFeature",
		Description:  "desc",
		SourceBranch: "master",
	})
	require.NoError(t, err)
	assert.Equal(t, "feature/myfeature", res.BranchName)
	assert.Equal(t, "Features/Configuration/Features/MyFeature.json", res.FilePath)
	assert.NotEmpty(t, res.CommitID)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, StepDone, res.Steps[0].Status)
	assert.Equal(t, StepDone, res.Steps[1].Status)

	content := readFile(t, repo, "feature/myfeature", res.FilePath)
	doc, err := featureswitch.Decode(content)
	require.NoError(t, err)
	assert.Equal(t, "MyFeature", doc.ID)
	assert.Equal(t, "desc", doc.Description)
	assert.Equal(t, featureswitch.CanonicalStages(), doc.Stages())
}

func TestCreateFeatureSwitch_SourceBranchMissing(t *testing.T) {
	_, runner := newBackend(t)

	res, err := runner.CreateFeatureSwitch(context.Background(), CreateSwitchRequest{
		RepositoryID: "R",
		FeatureName:  "F",
		SourceBranch: "does-not-exist",
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindNotFound, scm.KindOf(err))
	require.Len(t, res.Steps, 2)
	assert.Equal(t, StepFailed, res.Steps[0].Status)
	assert.Equal(t, StepSkipped, res.Steps[1].Status)
}

func TestCreateFeatureSwitch_BranchAlreadyExists(t *testing.T) {
	_, runner := newBackend(t)

	_, err := runner.CreateBranch(context.Background(), CreateBranchRequest{
		RepositoryID: "R", BranchName: "feature/f", SourceBranch: "master",
	})
	require.NoError(t, err)

	_, err = runner.CreateFeatureSwitch(context.Background(), CreateSwitchRequest{
		RepositoryID: "R",
		FeatureName:  "F",
		SourceBranch: "master",
		BranchName:   "feature/f",
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindConflict, scm.KindOf(err))
	assert.Contains(t, err.Error(), "already exists")
}

// failingPushClient delegates everything but rejects pushes, simulating a
// file commit failure after branch creation succeeded.
type failingPushClient struct {
	scm.Client
}

func (c *failingPushClient) Push(context.Context, string, scm.Push) (scm.PushResult, error) {
	return scm.PushResult{}, scm.E(scm.KindRemoteUnavailable, "test", "push rejected")
}

func TestCreateFeatureSwitch_PartialFailure(t *testing.T) {
	repo, _ := newBackend(t)
	runner := NewRunner(&failingPushClient{Client: repo}, nil)

	res, err := runner.CreateFeatureSwitch(context.Background(), CreateSwitchRequest{
		RepositoryID: "R",
		FeatureName:  "F",
		SourceBranch: "master",
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindPartialFailure, scm.KindOf(err))

	require.Len(t, res.Steps, 2)
	assert.Equal(t, StepDone, res.Steps[0].Status)
	assert.Equal(t, StepFailed, res.Steps[1].Status)
	assert.NotEmpty(t, res.BranchCommitID)

	// the branch exists without its config file
	_, err = repo.ResolveBranch(context.Background(), "", "feature/f")
	assert.NoError(t, err)
}

func createSwitch(t *testing.T, runner *Runner) CreateSwitchResult {
	t.Helper()
	res, err := runner.CreateFeatureSwitch(context.Background(), CreateSwitchRequest{
		RepositoryID: "R",
		FeatureName:  "MyFeature",
		Description:  "desc",
		SourceBranch: "master",
	})
	require.NoError(t, err)
	return res
}

func TestUpdateFeatureSwitch_SimpleToggle(t *testing.T) {
	repo, runner := newBackend(t)
	created := createSwitch(t, runner)

	res, err := runner.UpdateFeatureSwitch(context.Background(), UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   created.BranchName,
		FeatureName:  "MyFeature",
		Stage:        "prod",
		Enabled:      boolPtr(false),
	})
	require.NoError(t, err)
	require.NotNil(t, res.StageConfig.Enabled)
	assert.False(t, *res.StageConfig.Enabled)

	content := readFile(t, repo, created.BranchName, created.FilePath)
	doc, err := featureswitch.Decode(content)
	require.NoError(t, err)
	cfg, err := doc.StageConfigAt("prod")
	require.NoError(t, err)
	require.NotNil(t, cfg.Enabled)
	assert.False(t, *cfg.Enabled)
	assert.Empty(t, cfg.Requires)
}

func TestUpdateFeatureSwitch_MembershipOrdering(t *testing.T) {
	repo, runner := newBackend(t)
	created := createSwitch(t, runner)

	_, err := runner.UpdateFeatureSwitch(context.Background(), UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   created.BranchName,
		FeatureName:  "MyFeature",
		Stage:        "prod",
		Enabled:      boolPtr(true),
		RolloutName:  "daily",
		TenantIDs:    []string{"t1", "t2"},
	})
	require.NoError(t, err)

	content := readFile(t, repo, created.BranchName, created.FilePath)
	doc, err := featureswitch.Decode(content)
	require.NoError(t, err)
	cfg, err := doc.StageConfigAt("prod")
	require.NoError(t, err)
	require.Len(t, cfg.Requires, 2)
	assert.Equal(t, featureswitch.PivotRolloutName, cfg.Requires[0].Parameters.Pivot)
	assert.Equal(t, featureswitch.PivotTenantObjectID, cfg.Requires[1].Parameters.Pivot)
	assert.Equal(t, []string{"t1", "t2"}, cfg.Requires[1].Parameters.Values)
}

func TestUpdateFeatureSwitch_IsIdempotentOnContent(t *testing.T) {
	repo, runner := newBackend(t)
	created := createSwitch(t, runner)

	req := UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   created.BranchName,
		FeatureName:  "MyFeature",
		Stage:        "test",
		Enabled:      boolPtr(true),
	}
	first, err := runner.UpdateFeatureSwitch(context.Background(), req)
	require.NoError(t, err)
	firstContent := readFile(t, repo, created.BranchName, created.FilePath)

	second, err := runner.UpdateFeatureSwitch(context.Background(), req)
	require.NoError(t, err)
	secondContent := readFile(t, repo, created.BranchName, created.FilePath)

	assert.Equal(t, string(firstContent), string(secondContent))
	assert.Equal(t, first.StageConfig, second.StageConfig)
}

func TestUpdateFeatureSwitch_UnknownStage(t *testing.T) {
	repo, _ := newBackend(t)
	runner := NewRunner(repo, nil)

	// a hand-written document carrying only a subset of stages
	ref, err := repo.ResolveBranch(context.Background(), "", "master")
	require.NoError(t, err)
	_, err = repo.Push(context.Background(), "", scm.Push{
		RefUpdates: []scm.RefUpdate{{Name: "refs/heads/master", OldObjectID: ref.ObjectID}},
		Commits: []scm.Commit{{
			Message: "partial doc",
			Changes: []scm.Change{{
				Path: featureswitch.ConfigPath("F"),
				Kind: scm.ChangeAdd,
				Content: []byte(`{"Id":"F","Description":"d","Environments":{"onebox":{},"test":{},"prod":{}}}`),
			}},
		}},
	})
	require.NoError(t, err)

	_, err = runner.UpdateFeatureSwitch(context.Background(), UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   "master",
		FeatureName:  "F",
		Stage:        "canary",
		Enabled:      boolPtr(true),
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindNotFound, scm.KindOf(err))
	assert.Contains(t, err.Error(), "onebox, test, prod")
}

func TestUpdateFeatureSwitch_BranchNotFound(t *testing.T) {
	_, runner := newBackend(t)

	_, err := runner.UpdateFeatureSwitch(context.Background(), UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   "missing",
		FeatureName:  "F",
		Stage:        "prod",
		Enabled:      boolPtr(true),
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindNotFound, scm.KindOf(err))
	assert.Contains(t, err.Error(), `branch "missing" not found`)
}

func TestUpdateFeatureSwitch_EmptyRequirementRejected(t *testing.T) {
	_, runner := newBackend(t)
	created := createSwitch(t, runner)

	_, err := runner.UpdateFeatureSwitch(context.Background(), UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   created.BranchName,
		FeatureName:  "MyFeature",
		Stage:        "prod",
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindInvalidRequest, scm.KindOf(err))
}

// staleResolveClient reports a pinned old tip from ResolveBranch while
// delegating everything else, simulating a concurrent writer advancing the
// branch between read and push.
type staleResolveClient struct {
	scm.Client
	staleTip scm.Ref
}

func (c *staleResolveClient) ResolveBranch(context.Context, string, string) (scm.Ref, error) {
	return c.staleTip, nil
}

func TestUpdateFeatureSwitch_ConcurrentWriterConflict(t *testing.T) {
	repo, runner := newBackend(t)
	created := createSwitch(t, runner)

	oldTip, err := repo.ResolveBranch(context.Background(), "", created.BranchName)
	require.NoError(t, err)

	// another writer advances the branch
	_, err = runner.UpdateFeatureSwitch(context.Background(), UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   created.BranchName,
		FeatureName:  "MyFeature",
		Stage:        "test",
		Enabled:      boolPtr(true),
	})
	require.NoError(t, err)

	stale := NewRunner(&staleResolveClient{Client: repo, staleTip: oldTip}, nil)
	_, err = stale.UpdateFeatureSwitch(context.Background(), UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   created.BranchName,
		FeatureName:  "MyFeature",
		Stage:        "prod",
		Enabled:      boolPtr(false),
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindConflict, scm.KindOf(err))
}

// flakyPrimaryClient fails the primary content fetcher so the fallback
// path has to serve the read.
type flakyPrimaryClient struct {
	scm.Client
}

type failingFetcher struct{}

func (failingFetcher) Name() string { return "flaky-primary" }

func (failingFetcher) Fetch(context.Context, string, string, string) ([]byte, error) {
	return nil, scm.E(scm.KindRemoteUnavailable, "test", "primary endpoint down")
}

func (c *flakyPrimaryClient) ContentFetchers() []scm.ContentFetcher {
	return append([]scm.ContentFetcher{failingFetcher{}}, c.Client.ContentFetchers()...)
}

func TestUpdateFeatureSwitch_FallbackFetch(t *testing.T) {
	repo, runner := newBackend(t)
	created := createSwitch(t, runner)

	flaky := NewRunner(&flakyPrimaryClient{Client: repo}, nil)
	res, err := flaky.UpdateFeatureSwitch(context.Background(), UpdateSwitchRequest{
		RepositoryID: "R",
		BranchName:   created.BranchName,
		FeatureName:  "MyFeature",
		Stage:        "prod",
		Enabled:      boolPtr(true),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.CommitID)
}

func TestShouldFallback(t *testing.T) {
	assert.True(t, shouldFallback(scm.E(scm.KindNotFound, "x", "missing")))
	assert.True(t, shouldFallback(scm.E(scm.KindRemoteUnavailable, "x", "down")))
	assert.False(t, shouldFallback(scm.E(scm.KindMalformedDocument, "x", "bad")))
	assert.False(t, shouldFallback(context.Canceled))
}
