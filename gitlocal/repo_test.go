package gitlocal

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchgate/switchgate/scm"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)
	return New(r, nil)
}

// seedBranch creates a branch with one file through the push primitive
// itself, so the whole test runs on the same code paths production uses.
func seedBranch(t *testing.T, r *Repo, branch, path, content string) string {
	t.Helper()
	res, err := r.Push(context.Background(), "", scm.Push{
		RefUpdates: []scm.RefUpdate{{Name: scm.BranchRef(branch), OldObjectID: scm.ZeroObjectID}},
		Commits: []scm.Commit{{
			Message: "seed",
			Changes: []scm.Change{{Path: path, Kind: scm.ChangeAdd, Content: []byte(content)}},
		}},
	})
	require.NoError(t, err)
	return res.CommitID
}

func TestPush_CreateAndResolveBranch(t *testing.T) {
	r := newTestRepo(t)
	tip := seedBranch(t, r, "master", "readme.md", "hello")

	ref, err := r.ResolveBranch(context.Background(), "", "master")
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/master", ref.Name)
	assert.Equal(t, tip, ref.ObjectID)
}

func TestResolveBranch_NotFound(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.ResolveBranch(context.Background(), "", "nope")
	require.Error(t, err)
	assert.Equal(t, scm.KindNotFound, scm.KindOf(err))
}

func TestPush_EditAdvancesTip(t *testing.T) {
	r := newTestRepo(t)
	tip := seedBranch(t, r, "master", "Features/Configuration/Features/F.json", `{"Id":"F"}`)

	res, err := r.Push(context.Background(), "", scm.Push{
		RefUpdates: []scm.RefUpdate{{Name: "refs/heads/master", OldObjectID: tip}},
		Commits: []scm.Commit{{
			Message: "update",
			Changes: []scm.Change{{
				Path: "Features/Configuration/Features/F.json",
				Kind: scm.ChangeEdit, Content: []byte(`{"Id":"F2"}`),
			}},
		}},
	})
	require.NoError(t, err)
	assert.NotEqual(t, tip, res.CommitID)

	content, err := r.ContentFetchers()[0].Fetch(context.Background(), "", res.CommitID, "Features/Configuration/Features/F.json")
	require.NoError(t, err)
	assert.Equal(t, `{"Id":"F2"}`, string(content))
}

func TestPush_StaleTipIsConflict(t *testing.T) {
	r := newTestRepo(t)
	tip := seedBranch(t, r, "master", "f.json", "one")

	edit := func(content string) (scm.PushResult, error) {
		return r.Push(context.Background(), "", scm.Push{
			RefUpdates: []scm.RefUpdate{{Name: "refs/heads/master", OldObjectID: tip}},
			Commits: []scm.Commit{{
				Message: "edit",
				Changes: []scm.Change{{Path: "f.json", Kind: scm.ChangeEdit, Content: []byte(content)}},
			}},
		})
	}

	_, err := edit("two")
	require.NoError(t, err)

	// second writer still holds the old tip
	_, err = edit("three")
	require.Error(t, err)
	assert.Equal(t, scm.KindConflict, scm.KindOf(err))
}

func TestPush_AddOnExistingPathRejected(t *testing.T) {
	r := newTestRepo(t)
	tip := seedBranch(t, r, "master", "f.json", "one")

	_, err := r.Push(context.Background(), "", scm.Push{
		RefUpdates: []scm.RefUpdate{{Name: "refs/heads/master", OldObjectID: tip}},
		Commits: []scm.Commit{{
			Message: "dup",
			Changes: []scm.Change{{Path: "f.json", Kind: scm.ChangeAdd, Content: []byte("two")}},
		}},
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindInvalidRequest, scm.KindOf(err))
}

func TestPush_EditMissingPathRejected(t *testing.T) {
	r := newTestRepo(t)
	tip := seedBranch(t, r, "master", "f.json", "one")

	_, err := r.Push(context.Background(), "", scm.Push{
		RefUpdates: []scm.RefUpdate{{Name: "refs/heads/master", OldObjectID: tip}},
		Commits: []scm.Commit{{
			Message: "ghost",
			Changes: []scm.Change{{Path: "missing.json", Kind: scm.ChangeEdit, Content: []byte("x")}},
		}},
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindNotFound, scm.KindOf(err))
}

func TestUpdateRef_CreateFromExistingCommit(t *testing.T) {
	r := newTestRepo(t)
	tip := seedBranch(t, r, "master", "f.json", "one")

	ref, err := r.UpdateRef(context.Background(), "", scm.RefUpdate{
		Name:        "refs/heads/feature/x",
		OldObjectID: scm.ZeroObjectID,
		NewObjectID: tip,
	})
	require.NoError(t, err)
	assert.Equal(t, tip, ref.ObjectID)

	// creating the same branch again conflicts
	_, err = r.UpdateRef(context.Background(), "", scm.RefUpdate{
		Name:        "refs/heads/feature/x",
		OldObjectID: scm.ZeroObjectID,
		NewObjectID: tip,
	})
	require.Error(t, err)
	assert.Equal(t, scm.KindConflict, scm.KindOf(err))
}

func TestContentFetchers_BothPathsAgree(t *testing.T) {
	r := newTestRepo(t)
	tip := seedBranch(t, r, "master", "dir/sub/file.json", `{"k":1}`)

	fetchers := r.ContentFetchers()
	require.Len(t, fetchers, 2)

	primary, err := fetchers[0].Fetch(context.Background(), "", tip, "dir/sub/file.json")
	require.NoError(t, err)
	fallback, err := fetchers[1].Fetch(context.Background(), "", tip, "dir/sub/file.json")
	require.NoError(t, err)
	assert.Equal(t, string(primary), string(fallback))
}

func TestListBranches(t *testing.T) {
	r := newTestRepo(t)
	tip := seedBranch(t, r, "master", "f.json", "one")
	_, err := r.UpdateRef(context.Background(), "", scm.RefUpdate{
		Name: "refs/heads/develop", OldObjectID: scm.ZeroObjectID, NewObjectID: tip,
	})
	require.NoError(t, err)

	refs, err := r.ListBranches(context.Background(), "")
	require.NoError(t, err)
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	assert.ElementsMatch(t, []string{"refs/heads/master", "refs/heads/develop"}, names)
}
