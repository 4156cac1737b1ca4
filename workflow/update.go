package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/switchgate/switchgate/featureswitch"
	"github.com/switchgate/switchgate/scm"
)

// UpdateSwitchRequest is a stage update for an existing feature switch.
// TenantIDs/RolloutName select the membership form; Enabled alone is the
// plain toggle (and, on a membership update, selects MemberOf versus
// NotMemberOf).
type UpdateSwitchRequest struct {
	RepositoryID string
	BranchName   string
	FeatureName  string
	Stage        string
	Enabled      *bool
	TenantIDs    []string
	RolloutName  string
	Message      string
}

// UpdateSwitchResult reports the commit the branch advanced to and the
// stage config as written.
type UpdateSwitchResult struct {
	CommitID    string                    `json:"commitId"`
	Stage       string                    `json:"stage"`
	StageConfig featureswitch.StageConfig `json:"stageConfig"`
	FilePath    string                    `json:"filePath"`
}

// UpdateFeatureSwitch runs the read-modify-write cycle: resolve the branch
// tip, fetch the config file at that tip, decode, validate the stage,
// compile and apply the new stage config, re-encode, and push conditioned
// on the tip observed at read time. A concurrent writer advancing the
// branch between read and push surfaces as a conflict; the caller restarts
// the whole cycle if it still wants the update.
func (r *Runner) UpdateFeatureSwitch(ctx context.Context, req UpdateSwitchRequest) (UpdateSwitchResult, error) {
	path := featureswitch.ConfigPath(req.FeatureName)

	tip, err := r.client.ResolveBranch(ctx, req.RepositoryID, req.BranchName)
	if err != nil {
		if scm.IsKind(err, scm.KindNotFound) {
			return UpdateSwitchResult{}, scm.E(scm.KindNotFound, "workflow.UpdateFeatureSwitch",
				fmt.Sprintf("branch %q not found", req.BranchName),
				"repository", req.RepositoryID, "branch", req.BranchName).Wrap(err)
		}
		return UpdateSwitchResult{}, err
	}

	content, err := r.fetchContent(ctx, req.RepositoryID, tip.ObjectID, path)
	if err != nil {
		return UpdateSwitchResult{}, err
	}

	doc, err := featureswitch.Decode(content)
	if err != nil {
		return UpdateSwitchResult{}, err
	}

	if !doc.HasStage(req.Stage) {
		return UpdateSwitchResult{}, scm.E(scm.KindNotFound, "workflow.UpdateFeatureSwitch",
			fmt.Sprintf("unknown stage %q, available: %s", req.Stage, strings.Join(doc.Stages(), ", ")),
			"feature", req.FeatureName, "stage", req.Stage)
	}

	cfg, err := featureswitch.Compile(featureswitch.UpdateRequest{
		Enabled:     req.Enabled,
		TenantIDs:   req.TenantIDs,
		RolloutName: req.RolloutName,
	})
	if err != nil {
		return UpdateSwitchResult{}, err
	}
	if err := doc.SetStage(req.Stage, cfg); err != nil {
		return UpdateSwitchResult{}, err
	}

	encoded, err := featureswitch.Encode(doc)
	if err != nil {
		return UpdateSwitchResult{}, scm.E(scm.KindMalformedDocument, "workflow.UpdateFeatureSwitch",
			"re-encode document").Wrap(err)
	}

	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Update feature switch %s (%s)", req.FeatureName, req.Stage)
	}

	pushRes, err := r.CommitFile(ctx, CommitFileRequest{
		RepositoryID: req.RepositoryID,
		BranchName:   req.BranchName,
		Path:         path,
		Content:      encoded,
		Kind:         scm.ChangeEdit,
		Message:      message,
		KnownTipID:   tip.ObjectID,
	})
	if err != nil {
		return UpdateSwitchResult{}, err
	}

	r.log.Info("feature switch updated",
		zap.String("repository", req.RepositoryID),
		zap.String("feature", req.FeatureName),
		zap.String("stage", req.Stage),
		zap.String("commit", pushRes.CommitID))
	return UpdateSwitchResult{
		CommitID:    pushRes.CommitID,
		Stage:       req.Stage,
		StageConfig: cfg,
		FilePath:    path,
	}, nil
}

// fetchContent tries each retrieval strategy in order. A strategy-specific
// miss or outage falls through to the next one; anything else fails fast.
func (r *Runner) fetchContent(ctx context.Context, repositoryID, commitID, path string) ([]byte, error) {
	fetchers := r.client.ContentFetchers()
	var lastErr error
	for _, f := range fetchers {
		content, err := f.Fetch(ctx, repositoryID, commitID, path)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !shouldFallback(err) {
			return nil, err
		}
		r.log.Warn("content fetch failed, trying next strategy",
			zap.String("strategy", f.Name()),
			zap.String("path", path),
			zap.Error(err))
	}
	return nil, scm.E(scm.KindNotFound, "workflow.UpdateFeatureSwitch",
		fmt.Sprintf("file %q not found at %s", path, commitID),
		"repository", repositoryID, "path", path).Wrap(lastErr)
}

// shouldFallback is the explicit trigger predicate for the fallback fetch:
// a missing item or an unavailable endpoint may be specific to one
// retrieval API, so the next strategy gets a chance. Cancellation and data
// errors are terminal.
func shouldFallback(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch scm.KindOf(err) {
	case scm.KindNotFound, scm.KindRemoteUnavailable:
		return true
	default:
		return false
	}
}
