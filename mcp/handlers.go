package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/switchgate/switchgate/scm"
	"github.com/switchgate/switchgate/workflow"
)

// errorPayload is the structured error returned to the invoking agent:
// a taxonomy kind, a human-readable message, and the identifying
// parameters, so every failure is interpretable without parsing prose.
type errorPayload struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Params  map[string]string `json:"params,omitempty"`
}

func toolError(err error) *gomcp.CallToolResult {
	p := errorPayload{Kind: "error", Message: err.Error()}
	var se *scm.Error
	if errors.As(err, &se) {
		p.Kind = string(se.Kind)
		p.Params = se.Params
	}
	data, merr := json.MarshalIndent(p, "", "  ")
	if merr != nil {
		return gomcp.NewToolResultError(err.Error())
	}
	return gomcp.NewToolResultError(string(data))
}

// toolPartialFailure renders an error payload that also carries the saga's
// step breakdown so the caller can see which step to retry.
func toolPartialFailure(err error, res workflow.CreateSwitchResult) *gomcp.CallToolResult {
	p := struct {
		errorPayload
		Result workflow.CreateSwitchResult `json:"result"`
	}{Result: res}
	p.Kind = string(scm.KindPartialFailure)
	p.Message = err.Error()
	var se *scm.Error
	if errors.As(err, &se) {
		p.Params = se.Params
	}
	data, merr := json.MarshalIndent(p, "", "  ")
	if merr != nil {
		return gomcp.NewToolResultError(err.Error())
	}
	return gomcp.NewToolResultError(string(data))
}

func toolJSON(v any) *gomcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return gomcp.NewToolResultError("render result: " + err.Error())
	}
	return gomcp.NewToolResultText(string(data))
}

func missingParamErr(param, example string) *gomcp.CallToolResult {
	msg := "missing required parameter: " + param
	if example != "" {
		msg += ". Example: " + example
	}
	return gomcp.NewToolResultError(msg)
}

// parseOptionalBool distinguishes "not provided" from false.
func parseOptionalBool(req gomcp.CallToolRequest, key string) *bool {
	if args := req.GetArguments(); args != nil {
		if v, ok := args[key].(bool); ok {
			return &v
		}
	}
	return nil
}

func parseOptionalInt(req gomcp.CallToolRequest, key string, fallback int) int {
	if args := req.GetArguments(); args != nil {
		if v, ok := args[key].(float64); ok {
			return int(v)
		}
	}
	return fallback
}

// parseStringList accepts a comma-separated string or a JSON array of
// strings, since clients send both.
func parseStringList(req gomcp.CallToolRequest, key string) []string {
	args := req.GetArguments()
	if args == nil {
		return nil
	}
	var out []string
	switch v := args[key].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func handleCreateFeatureSwitch(runner *workflow.Runner, log *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		repositoryID := req.GetString("repositoryId", "")
		featureName := req.GetString("featureName", "")
		sourceBranch := req.GetString("sourceBranch", "")
		if repositoryID == "" {
			return missingParamErr("repositoryId", `create_feature_switch(repositoryId="MyRepo", featureName="MyFeature", sourceBranch="master")`), nil
		}
		if featureName == "" {
			return missingParamErr("featureName", ""), nil
		}
		if sourceBranch == "" {
			return missingParamErr("sourceBranch", ""), nil
		}

		res, err := runner.CreateFeatureSwitch(ctx, workflow.CreateSwitchRequest{
			RepositoryID: repositoryID,
			FeatureName:  featureName,
			Description:  req.GetString("description", ""),
			SourceBranch: sourceBranch,
			BranchName:   req.GetString("branchName", ""),
		})
		if err != nil {
			log.Warn("create_feature_switch failed", zap.String("feature", featureName), zap.Error(err))
			// partial failures carry the step breakdown the caller needs
			// to finish the job, so ship the result alongside the error
			if scm.IsKind(err, scm.KindPartialFailure) {
				return toolPartialFailure(err, res), nil
			}
			return toolError(err), nil
		}
		return toolJSON(res), nil
	}
}

func handleUpdateFeatureSwitch(runner *workflow.Runner, log *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		repositoryID := req.GetString("repositoryId", "")
		branchName := req.GetString("branchName", "")
		featureName := req.GetString("featureName", "")
		stage := req.GetString("stage", "")
		if repositoryID == "" || branchName == "" || featureName == "" || stage == "" {
			return missingParamErr("repositoryId, branchName, featureName, stage",
				`update_feature_switch(repositoryId="MyRepo", branchName="feature/x", featureName="X", stage="prod", enabled=true)`), nil
		}

		res, err := runner.UpdateFeatureSwitch(ctx, workflow.UpdateSwitchRequest{
			RepositoryID: repositoryID,
			BranchName:   branchName,
			FeatureName:  featureName,
			Stage:        stage,
			Enabled:      parseOptionalBool(req, "enabled"),
			TenantIDs:    parseStringList(req, "tenantIds"),
			RolloutName:  req.GetString("rolloutName", ""),
			Message:      req.GetString("commitMessage", ""),
		})
		if err != nil {
			log.Warn("update_feature_switch failed",
				zap.String("feature", featureName),
				zap.String("stage", stage),
				zap.Error(err))
			return toolError(err), nil
		}
		return toolJSON(res), nil
	}
}

func handleCreateBranch(runner *workflow.Runner, log *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		repositoryID := req.GetString("repositoryId", "")
		branchName := req.GetString("branchName", "")
		sourceBranch := req.GetString("sourceBranch", "")
		if repositoryID == "" || branchName == "" || sourceBranch == "" {
			return missingParamErr("repositoryId, branchName, sourceBranch",
				`create_branch(repositoryId="MyRepo", branchName="feature/x", sourceBranch="master")`), nil
		}

		ref, err := runner.CreateBranch(ctx, workflow.CreateBranchRequest{
			RepositoryID: repositoryID,
			BranchName:   branchName,
			SourceBranch: sourceBranch,
		})
		if err != nil {
			log.Warn("create_branch failed", zap.String("branch", branchName), zap.Error(err))
			return toolError(err), nil
		}
		return toolJSON(ref), nil
	}
}

func handleCreateFile(runner *workflow.Runner, client scm.Client, log *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		repositoryID := req.GetString("repositoryId", "")
		filePath := req.GetString("filePath", "")
		branchName := req.GetString("branchName", "")
		if repositoryID == "" || filePath == "" || branchName == "" {
			return missingParamErr("repositoryId, filePath, branchName",
				`create_file(repositoryId="MyRepo", filePath="docs/a.md", fileContent="...", branchName="feature/x")`), nil
		}
		args := req.GetArguments()
		content, ok := args["fileContent"].(string)
		if !ok {
			return missingParamErr("fileContent", ""), nil
		}

		tip, err := client.ResolveBranch(ctx, repositoryID, branchName)
		if err != nil {
			log.Warn("create_file failed to resolve branch", zap.String("branch", branchName), zap.Error(err))
			return toolError(err), nil
		}
		message := req.GetString("commitMessage", "")
		if message == "" {
			message = "Add " + filePath
		}
		res, err := runner.CommitFile(ctx, workflow.CommitFileRequest{
			RepositoryID: repositoryID,
			BranchName:   branchName,
			Path:         filePath,
			Content:      []byte(content),
			Kind:         scm.ChangeAdd,
			Message:      message,
			KnownTipID:   tip.ObjectID,
		})
		if err != nil {
			log.Warn("create_file failed", zap.String("path", filePath), zap.Error(err))
			return toolError(err), nil
		}
		return toolJSON(res), nil
	}
}

func handleListBranches(client scm.Client, log *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		repositoryID := req.GetString("repositoryId", "")
		if repositoryID == "" {
			return missingParamErr("repositoryId", `list_branches(repositoryId="MyRepo")`), nil
		}
		refs, err := client.ListBranches(ctx, repositoryID)
		if err != nil {
			log.Warn("list_branches failed", zap.Error(err))
			return toolError(err), nil
		}
		type branch struct {
			Name     string `json:"name"`
			ObjectID string `json:"objectId"`
		}
		out := make([]branch, 0, len(refs))
		for _, r := range refs {
			out = append(out, branch{Name: r.Branch(), ObjectID: r.ObjectID})
		}
		return toolJSON(out), nil
	}
}

func handleListRepositories(dir DirectoryClient, log *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		repos, err := dir.ListRepositories(ctx)
		if err != nil {
			log.Warn("list_repositories failed", zap.Error(err))
			return toolError(err), nil
		}
		return toolJSON(repos), nil
	}
}

func handleListPullRequests(dir DirectoryClient, log *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		repositoryID := req.GetString("repositoryId", "")
		if repositoryID == "" {
			return missingParamErr("repositoryId", `list_pull_requests(repositoryId="MyRepo")`), nil
		}
		prs, err := dir.ListPullRequests(ctx, repositoryID, req.GetString("status", ""))
		if err != nil {
			log.Warn("list_pull_requests failed", zap.Error(err))
			return toolError(err), nil
		}
		return toolJSON(prs), nil
	}
}

func handleListPullRequestComments(dir DirectoryClient, log *zap.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		repositoryID := req.GetString("repositoryId", "")
		if repositoryID == "" {
			return missingParamErr("repositoryId", `list_pull_request_comments(repositoryId="MyRepo", pullRequestId=42)`), nil
		}
		prID := parseOptionalInt(req, "pullRequestId", 0)
		if prID == 0 {
			return missingParamErr("pullRequestId", ""), nil
		}
		threads, err := dir.ListPullRequestThreads(ctx, repositoryID, prID)
		if err != nil {
			log.Warn("list_pull_request_comments failed", zap.Error(err))
			return toolError(err), nil
		}
		return toolJSON(threads), nil
	}
}
