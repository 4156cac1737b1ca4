package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/switchgate/switchgate/scm"
)

// CommitFileRequest stages one file change on a branch whose tip the caller
// has already observed. KnownTipID is the optimistic-concurrency token: the
// push is rejected if the branch has advanced past it.
type CommitFileRequest struct {
	RepositoryID string
	BranchName   string
	Path         string
	Content      []byte
	Kind         scm.ChangeKind
	Message      string
	KnownTipID   string
}

// CommitFile wraps the change in a single commit and pushes it, advancing
// the branch from the known tip to a backend-computed new tip. The push
// either fully succeeds or is fully rejected; a stale tip surfaces as a
// conflict for the caller to resolve by re-reading state.
func (r *Runner) CommitFile(ctx context.Context, req CommitFileRequest) (scm.PushResult, error) {
	if req.KnownTipID == "" {
		return scm.PushResult{}, scm.E(scm.KindInvalidRequest, "workflow.CommitFile",
			"known tip commit id is required", "branch", req.BranchName)
	}
	if req.Path == "" {
		return scm.PushResult{}, scm.E(scm.KindInvalidRequest, "workflow.CommitFile",
			"file path is required", "branch", req.BranchName)
	}

	res, err := r.client.Push(ctx, req.RepositoryID, scm.Push{
		RefUpdates: []scm.RefUpdate{{
			Name:        scm.BranchRef(req.BranchName),
			OldObjectID: req.KnownTipID,
		}},
		Commits: []scm.Commit{{
			Message: req.Message,
			Changes: []scm.Change{{Path: req.Path, Kind: req.Kind, Content: req.Content}},
		}},
	})
	if err != nil {
		if scm.IsKind(err, scm.KindConflict) {
			return scm.PushResult{}, scm.E(scm.KindConflict, "workflow.CommitFile",
				fmt.Sprintf("branch %q advanced past %s since it was read", req.BranchName, req.KnownTipID),
				"repository", req.RepositoryID, "branch", req.BranchName, "path", req.Path).Wrap(err)
		}
		return scm.PushResult{}, err
	}

	r.log.Info("file committed",
		zap.String("repository", req.RepositoryID),
		zap.String("branch", req.BranchName),
		zap.String("path", req.Path),
		zap.String("kind", string(req.Kind)),
		zap.String("commit", res.CommitID))
	return res, nil
}
