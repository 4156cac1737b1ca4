package gitlocal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/switchgate/switchgate/scm"
)

// treeFetcher reads file content by walking the commit's tree. Primary path.
type treeFetcher struct {
	r *Repo
}

func (f *treeFetcher) Name() string { return "tree-walk" }

func (f *treeFetcher) Fetch(_ context.Context, _, commitID, path string) ([]byte, error) {
	tree, err := f.r.treeAt(commitID)
	if err != nil {
		return nil, err
	}
	file, err := tree.File(strings.TrimPrefix(path, "/"))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, scm.E(scm.KindNotFound, "gitlocal.treeFetcher",
				fmt.Sprintf("file %q not found at %s", path, commitID), "path", path)
		}
		return nil, scm.E(scm.KindRemoteUnavailable, "gitlocal.treeFetcher", "read file").Wrap(err)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, scm.E(scm.KindRemoteUnavailable, "gitlocal.treeFetcher", "read contents").Wrap(err)
	}
	return []byte(content), nil
}

// rawBlobFetcher resolves the tree entry and reads the blob object
// directly. Fallback path.
type rawBlobFetcher struct {
	r *Repo
}

func (f *rawBlobFetcher) Name() string { return "raw-blob" }

func (f *rawBlobFetcher) Fetch(_ context.Context, _, commitID, path string) ([]byte, error) {
	tree, err := f.r.treeAt(commitID)
	if err != nil {
		return nil, err
	}
	entry, err := tree.FindEntry(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, scm.E(scm.KindNotFound, "gitlocal.rawBlobFetcher",
			fmt.Sprintf("no tree entry for %q at %s", path, commitID), "path", path)
	}
	blob, err := object.GetBlob(f.r.repo.Storer, entry.Hash)
	if err != nil {
		return nil, scm.E(scm.KindNotFound, "gitlocal.rawBlobFetcher",
			fmt.Sprintf("blob %s not found", entry.Hash), "path", path).Wrap(err)
	}
	rd, err := blob.Reader()
	if err != nil {
		return nil, scm.E(scm.KindRemoteUnavailable, "gitlocal.rawBlobFetcher", "open blob").Wrap(err)
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

func (r *Repo) treeAt(commitID string) (*object.Tree, error) {
	commit, err := object.GetCommit(r.repo.Storer, plumbing.NewHash(commitID))
	if err != nil {
		return nil, scm.E(scm.KindNotFound, "gitlocal",
			fmt.Sprintf("commit %s not found", commitID), "commit", commitID).Wrap(err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, scm.E(scm.KindRemoteUnavailable, "gitlocal", "load tree").Wrap(err)
	}
	return tree, nil
}
