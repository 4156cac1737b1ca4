package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/switchgate/switchgate/featureswitch"
	"github.com/switchgate/switchgate/scm"
)

// Step names reported in CreateSwitchResult.
const (
	StepCreateBranch = "create-branch"
	StepCommitConfig = "commit-config"
)

// StepStatus tags a saga step's outcome.
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult records one step of the create saga so a caller can see
// exactly how far the operation got.
type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// CreateSwitchRequest describes a new feature switch. BranchName is
// optional; when empty the branch is derived from the feature name.
type CreateSwitchRequest struct {
	RepositoryID string
	FeatureName  string
	Description  string
	SourceBranch string
	BranchName   string
}

// CreateSwitchResult reports the created branch, the config file path, the
// final commit id, and the per-step outcomes.
type CreateSwitchResult struct {
	BranchName     string       `json:"branchName"`
	FilePath       string       `json:"filePath"`
	BranchCommitID string       `json:"branchCommitId,omitempty"`
	CommitID       string       `json:"commitId,omitempty"`
	Steps          []StepResult `json:"steps"`
}

// CreateFeatureSwitch creates a branch off the source branch and commits a
// canonical feature-switch file onto it. The two remote calls form one
// logical operation with partial-failure awareness: if the branch lands but
// the file commit fails, the result says so, and the caller can retry just
// the file commit with create_file (an Add on a path that already exists is
// rejected, so a duplicate retry cannot silently clobber anything).
func (r *Runner) CreateFeatureSwitch(ctx context.Context, req CreateSwitchRequest) (CreateSwitchResult, error) {
	if req.FeatureName == "" {
		return CreateSwitchResult{}, scm.E(scm.KindInvalidRequest, "workflow.CreateFeatureSwitch",
			"feature name is required")
	}

	branch := req.BranchName
	if branch == "" {
		branch = featureswitch.DefaultBranchName(req.FeatureName)
	}
	result := CreateSwitchResult{
		BranchName: branch,
		FilePath:   featureswitch.ConfigPath(req.FeatureName),
	}

	branchRef, err := r.CreateBranch(ctx, CreateBranchRequest{
		RepositoryID: req.RepositoryID,
		BranchName:   branch,
		SourceBranch: req.SourceBranch,
	})
	if err != nil {
		result.Steps = []StepResult{
			{Name: StepCreateBranch, Status: StepFailed, Detail: err.Error()},
			{Name: StepCommitConfig, Status: StepSkipped},
		}
		return result, err
	}
	result.BranchCommitID = branchRef.ObjectID
	result.Steps = []StepResult{{Name: StepCreateBranch, Status: StepDone}}

	doc := featureswitch.NewDocument(req.FeatureName, req.Description)
	content, err := featureswitch.Encode(doc)
	if err != nil {
		result.Steps = append(result.Steps, StepResult{Name: StepCommitConfig, Status: StepFailed, Detail: err.Error()})
		return result, r.partialFailure(req, branch, err)
	}

	pushRes, err := r.CommitFile(ctx, CommitFileRequest{
		RepositoryID: req.RepositoryID,
		BranchName:   branch,
		Path:         result.FilePath,
		Content:      content,
		Kind:         scm.ChangeAdd,
		Message:      fmt.Sprintf("Add feature switch %s", req.FeatureName),
		KnownTipID:   branchRef.ObjectID,
	})
	if err != nil {
		result.Steps = append(result.Steps, StepResult{Name: StepCommitConfig, Status: StepFailed, Detail: err.Error()})
		return result, r.partialFailure(req, branch, err)
	}

	result.CommitID = pushRes.CommitID
	result.Steps = append(result.Steps, StepResult{Name: StepCommitConfig, Status: StepDone})
	r.log.Info("feature switch created",
		zap.String("repository", req.RepositoryID),
		zap.String("feature", req.FeatureName),
		zap.String("branch", branch),
		zap.String("commit", pushRes.CommitID))
	return result, nil
}

func (r *Runner) partialFailure(req CreateSwitchRequest, branch string, cause error) error {
	r.log.Warn("feature switch creation left a branch without its config file",
		zap.String("repository", req.RepositoryID),
		zap.String("branch", branch),
		zap.Error(cause))
	return scm.E(scm.KindPartialFailure, "workflow.CreateFeatureSwitch",
		fmt.Sprintf("branch %q was created but the config file commit failed; retry the file commit with create_file", branch),
		"repository", req.RepositoryID, "branch", branch,
		"path", featureswitch.ConfigPath(req.FeatureName)).Wrap(cause)
}
