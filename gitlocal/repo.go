// Package gitlocal implements the source-control contract against a local
// git repository via go-git plumbing. It exists so the tool surface can run
// against an on-disk repository with the exact same optimistic-concurrency
// semantics the hosted backend provides: ref updates are applied with a
// compare-and-swap on the expected old object id.
package gitlocal

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"go.uber.org/zap"

	"github.com/switchgate/switchgate/scm"
)

// Repo adapts one local repository. The repositoryID arguments of the
// scm.Client contract are accepted and ignored; a Repo is already bound.
type Repo struct {
	repo        *git.Repository
	log         *zap.Logger
	authorName  string
	authorEmail string
}

var _ scm.Client = (*Repo)(nil)

// Open binds to an existing repository on disk.
func Open(path string, log *zap.Logger) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, scm.E(scm.KindNotFound, "gitlocal.Open",
			fmt.Sprintf("open repository at %q", path)).Wrap(err)
	}
	return New(r, log), nil
}

// New wraps an already-opened repository.
func New(r *git.Repository, log *zap.Logger) *Repo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repo{
		repo:        r,
		log:         log,
		authorName:  "switchgate",
		authorEmail: "switchgate@localhost",
	}
}

// ResolveBranch resolves a branch name to its tip.
func (r *Repo) ResolveBranch(_ context.Context, _, branch string) (scm.Ref, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return scm.Ref{}, scm.E(scm.KindNotFound, "gitlocal.ResolveBranch",
				fmt.Sprintf("branch %q not found", branch), "branch", branch)
		}
		return scm.Ref{}, scm.E(scm.KindRemoteUnavailable, "gitlocal.ResolveBranch", "read reference").Wrap(err)
	}
	return scm.Ref{Name: ref.Name().String(), ObjectID: ref.Hash().String()}, nil
}

// ListBranches lists all branch heads.
func (r *Repo) ListBranches(_ context.Context, _ string) ([]scm.Ref, error) {
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, scm.E(scm.KindRemoteUnavailable, "gitlocal.ListBranches", "iterate branches").Wrap(err)
	}
	defer iter.Close()

	var refs []scm.Ref
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		refs = append(refs, scm.Ref{Name: ref.Name().String(), ObjectID: ref.Hash().String()})
		return nil
	})
	if err != nil {
		return nil, scm.E(scm.KindRemoteUnavailable, "gitlocal.ListBranches", "iterate branches").Wrap(err)
	}
	return refs, nil
}

// UpdateRef applies a bare ref update. A zero old object id means "create":
// the ref must not exist yet. Otherwise the stored tip must still match the
// old object id or the update is rejected.
func (r *Repo) UpdateRef(_ context.Context, _ string, update scm.RefUpdate) (scm.Ref, error) {
	name := plumbing.ReferenceName(update.Name)
	newHash := plumbing.NewHash(update.NewObjectID)

	if _, err := object.GetCommit(r.repo.Storer, newHash); err != nil {
		return scm.Ref{}, scm.E(scm.KindNotFound, "gitlocal.UpdateRef",
			fmt.Sprintf("commit %s not found", update.NewObjectID), "ref", update.Name).Wrap(err)
	}

	if update.OldObjectID == scm.ZeroObjectID || update.OldObjectID == "" {
		if _, err := r.repo.Reference(name, false); err == nil {
			return scm.Ref{}, scm.E(scm.KindConflict, "gitlocal.UpdateRef",
				fmt.Sprintf("ref %q already exists", update.Name), "ref", update.Name)
		}
		if err := r.repo.Storer.SetReference(plumbing.NewHashReference(name, newHash)); err != nil {
			return scm.Ref{}, scm.E(scm.KindRemoteUnavailable, "gitlocal.UpdateRef", "set reference").Wrap(err)
		}
		return scm.Ref{Name: update.Name, ObjectID: update.NewObjectID}, nil
	}

	old := plumbing.NewHashReference(name, plumbing.NewHash(update.OldObjectID))
	err := r.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(name, newHash), old)
	switch {
	case errors.Is(err, storage.ErrReferenceHasChanged):
		return scm.Ref{}, scm.E(scm.KindConflict, "gitlocal.UpdateRef",
			"ref moved since it was read", "ref", update.Name).Wrap(err)
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return scm.Ref{}, scm.E(scm.KindNotFound, "gitlocal.UpdateRef",
			fmt.Sprintf("ref %q not found", update.Name), "ref", update.Name).Wrap(err)
	case err != nil:
		return scm.Ref{}, scm.E(scm.KindRemoteUnavailable, "gitlocal.UpdateRef", "set reference").Wrap(err)
	}
	return scm.Ref{Name: update.Name, ObjectID: update.NewObjectID}, nil
}

// Push builds the blob, tree, and commit objects for each commit in the
// push and advances the single named ref with a compare-and-swap against
// the expected old tip. Either the ref advances to the last commit built or
// nothing is written to the ref space.
func (r *Repo) Push(ctx context.Context, _ string, p scm.Push) (scm.PushResult, error) {
	if len(p.RefUpdates) != 1 {
		return scm.PushResult{}, scm.E(scm.KindInvalidRequest, "gitlocal.Push",
			fmt.Sprintf("exactly one ref update required, got %d", len(p.RefUpdates)))
	}
	if len(p.Commits) == 0 {
		return scm.PushResult{}, scm.E(scm.KindInvalidRequest, "gitlocal.Push", "push has no commits")
	}
	update := p.RefUpdates[0]
	name := plumbing.ReferenceName(update.Name)

	var parents []plumbing.Hash
	var baseTree *object.Tree
	creating := update.OldObjectID == scm.ZeroObjectID || update.OldObjectID == ""
	if !creating {
		oldHash := plumbing.NewHash(update.OldObjectID)
		parent, err := object.GetCommit(r.repo.Storer, oldHash)
		if err != nil {
			return scm.PushResult{}, scm.E(scm.KindNotFound, "gitlocal.Push",
				fmt.Sprintf("old tip %s not found", update.OldObjectID), "ref", update.Name).Wrap(err)
		}
		baseTree, err = parent.Tree()
		if err != nil {
			return scm.PushResult{}, scm.E(scm.KindRemoteUnavailable, "gitlocal.Push", "load base tree").Wrap(err)
		}
		parents = []plumbing.Hash{oldHash}
	}

	var tip plumbing.Hash
	for _, cm := range p.Commits {
		treeHash, err := r.applyChanges(baseTree, cm.Changes)
		if err != nil {
			return scm.PushResult{}, err
		}
		tip, err = r.writeCommit(treeHash, parents, cm.Message)
		if err != nil {
			return scm.PushResult{}, err
		}
		parents = []plumbing.Hash{tip}
		baseTree, err = object.GetTree(r.repo.Storer, treeHash)
		if err != nil {
			return scm.PushResult{}, scm.E(scm.KindRemoteUnavailable, "gitlocal.Push", "reload tree").Wrap(err)
		}
	}

	newRef := plumbing.NewHashReference(name, tip)
	if creating {
		if _, err := r.repo.Reference(name, false); err == nil {
			return scm.PushResult{}, scm.E(scm.KindConflict, "gitlocal.Push",
				fmt.Sprintf("ref %q already exists", update.Name), "ref", update.Name)
		}
		if err := r.repo.Storer.SetReference(newRef); err != nil {
			return scm.PushResult{}, scm.E(scm.KindRemoteUnavailable, "gitlocal.Push", "set reference").Wrap(err)
		}
	} else {
		old := plumbing.NewHashReference(name, plumbing.NewHash(update.OldObjectID))
		err := r.repo.Storer.CheckAndSetReference(newRef, old)
		switch {
		case errors.Is(err, storage.ErrReferenceHasChanged):
			return scm.PushResult{}, scm.E(scm.KindConflict, "gitlocal.Push",
				"branch tip moved since it was read", "ref", update.Name).Wrap(err)
		case err != nil:
			return scm.PushResult{}, scm.E(scm.KindRemoteUnavailable, "gitlocal.Push", "set reference").Wrap(err)
		}
	}

	r.log.Debug("push applied", zap.String("ref", update.Name), zap.String("tip", tip.String()))
	return scm.PushResult{CommitID: tip.String()}, nil
}

// ContentFetchers returns the tree-walk lookup as the primary path and a
// direct blob read as the fallback.
func (r *Repo) ContentFetchers() []scm.ContentFetcher {
	return []scm.ContentFetcher{
		&treeFetcher{r: r},
		&rawBlobFetcher{r: r},
	}
}
