package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/switchgate/switchgate/featureswitch"
	"github.com/switchgate/switchgate/scm"
)

// CreateBranchRequest names the branch to create and where it forks from.
type CreateBranchRequest struct {
	RepositoryID string
	BranchName   string
	SourceBranch string
}

// CreateBranch resolves the source branch and creates the new branch at the
// same commit. The ref update carries the zero object id as its expected
// old tip, so the backend rejects it if the branch already exists.
func (r *Runner) CreateBranch(ctx context.Context, req CreateBranchRequest) (scm.Ref, error) {
	if !featureswitch.IsValidBranchName(req.BranchName) {
		return scm.Ref{}, scm.E(scm.KindInvalidRequest, "workflow.CreateBranch",
			fmt.Sprintf("invalid branch name %q", req.BranchName), "branch", req.BranchName)
	}
	if !featureswitch.IsValidBranchName(req.SourceBranch) {
		return scm.Ref{}, scm.E(scm.KindInvalidRequest, "workflow.CreateBranch",
			fmt.Sprintf("invalid source branch name %q", req.SourceBranch), "sourceBranch", req.SourceBranch)
	}

	source, err := r.client.ResolveBranch(ctx, req.RepositoryID, req.SourceBranch)
	if err != nil {
		if scm.IsKind(err, scm.KindNotFound) {
			return scm.Ref{}, scm.E(scm.KindNotFound, "workflow.CreateBranch",
				fmt.Sprintf("source branch %q not found", req.SourceBranch),
				"repository", req.RepositoryID, "sourceBranch", req.SourceBranch).Wrap(err)
		}
		return scm.Ref{}, err
	}

	created, err := r.client.UpdateRef(ctx, req.RepositoryID, scm.RefUpdate{
		Name:        scm.BranchRef(req.BranchName),
		OldObjectID: scm.ZeroObjectID,
		NewObjectID: source.ObjectID,
	})
	if err != nil {
		if scm.IsKind(err, scm.KindConflict) {
			return scm.Ref{}, scm.E(scm.KindConflict, "workflow.CreateBranch",
				fmt.Sprintf("branch %q already exists", req.BranchName),
				"repository", req.RepositoryID, "branch", req.BranchName).Wrap(err)
		}
		return scm.Ref{}, err
	}

	r.log.Info("branch created",
		zap.String("repository", req.RepositoryID),
		zap.String("branch", req.BranchName),
		zap.String("source", req.SourceBranch),
		zap.String("tip", created.ObjectID))
	return created, nil
}
