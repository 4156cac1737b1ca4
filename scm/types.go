// Package scm defines the neutral contract between the workflows and a
// hosted source-control backend. Any backend that can resolve a branch to a
// commit id, fetch file content at a commit, and apply an atomic push with
// per-ref old-object-id preconditions can serve as an implementation.
package scm

import "context"

// ZeroObjectID is the sentinel object id signalling "ref does not exist".
// A ref update carrying it as the old object id is a creation; the backend
// must reject it if the ref already exists.
const ZeroObjectID = "0000000000000000000000000000000000000000"

// BranchRefPrefix is the full-ref prefix for branch heads.
const BranchRefPrefix = "refs/heads/"

// BranchRef returns the full ref name for a branch.
func BranchRef(branch string) string {
	return BranchRefPrefix + branch
}

// Ref is a named pointer to a commit.
type Ref struct {
	Name     string `json:"name"`
	ObjectID string `json:"objectId"`
}

// Branch returns the short branch name, stripping the refs/heads/ prefix.
func (r Ref) Branch() string {
	if len(r.Name) > len(BranchRefPrefix) && r.Name[:len(BranchRefPrefix)] == BranchRefPrefix {
		return r.Name[len(BranchRefPrefix):]
	}
	return r.Name
}

// ChangeKind distinguishes adding a new file from editing an existing one.
type ChangeKind string

const (
	ChangeAdd  ChangeKind = "add"
	ChangeEdit ChangeKind = "edit"
)

// Change is a single-file modification inside a commit.
type Change struct {
	Path    string
	Kind    ChangeKind
	Content []byte
}

// Commit is the request-side commit record of a push: a message plus the
// file changes it carries. The backend computes the resulting commit id.
type Commit struct {
	Message string
	Changes []Change
}

// RefUpdate names a ref together with the commit id the caller last observed
// at its tip. The backend applies the update only if the tip still matches.
// An empty NewObjectID on a push means the backend derives it from the
// push's commits.
type RefUpdate struct {
	Name        string
	OldObjectID string
	NewObjectID string
}

// Push is an atomic write: every ref update precondition must hold at apply
// time or the whole push is rejected with no partial application.
type Push struct {
	RefUpdates []RefUpdate
	Commits    []Commit
}

// PushResult reports the server-computed commit id the ref advanced to.
type PushResult struct {
	CommitID string `json:"commitId"`
}

// ContentFetcher is one retrieval strategy for file content at a commit.
// Backends expose an ordered list; callers try them in sequence.
type ContentFetcher interface {
	// Name identifies the strategy in logs and error detail.
	Name() string
	Fetch(ctx context.Context, repositoryID, commitID, path string) ([]byte, error)
}

// Client is the set of primitives the workflows require.
type Client interface {
	// ResolveBranch resolves a branch name to its current tip.
	ResolveBranch(ctx context.Context, repositoryID, branch string) (Ref, error)

	// ListBranches lists all branch heads in the repository.
	ListBranches(ctx context.Context, repositoryID string) ([]Ref, error)

	// UpdateRef applies a bare ref update (no commits). Creation uses
	// OldObjectID == ZeroObjectID.
	UpdateRef(ctx context.Context, repositoryID string, update RefUpdate) (Ref, error)

	// Push applies an atomic push.
	Push(ctx context.Context, repositoryID string, push Push) (PushResult, error)

	// ContentFetchers returns retrieval strategies, primary first.
	ContentFetchers() []ContentFetcher
}
