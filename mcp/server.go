// Package mcp exposes the source-control workflows as model-context
// protocol tools over stdio.
package mcp

import (
	"context"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/switchgate/switchgate/azdevops"
	"github.com/switchgate/switchgate/scm"
	"github.com/switchgate/switchgate/workflow"
)

const serverInstructions = "You are connected to switchgate, a source-control tool server for " +
	"feature-switch management. Feature switches live as JSON files under " +
	"Features/Configuration/Features/ in the target repository, one file per switch, " +
	"mapping deployment stages to activation rules. " +
	"Use create_feature_switch to start a new switch on its own branch, and " +
	"update_feature_switch to toggle a stage or gate it on tenant/rollout membership. " +
	"Updates are optimistic: if the branch advances while an update is in flight the tool " +
	"reports a conflict — re-invoke it to retry on fresh state, never assume it was applied. " +
	"create_branch and create_file are the lower-level building blocks; use create_file to " +
	"finish a partially-failed create_feature_switch (the result's steps say how far it got)."

// DirectoryClient serves the thin read-only listing tools. Only the hosted
// backend provides one; with a local backend those tools are not registered.
type DirectoryClient interface {
	ListRepositories(ctx context.Context) ([]azdevops.Repository, error)
	ListPullRequests(ctx context.Context, repositoryID, status string) ([]azdevops.PullRequest, error)
	ListPullRequestThreads(ctx context.Context, repositoryID string, pullRequestID int) ([]azdevops.CommentThread, error)
}

// Server wires the workflows and listing client into an MCP server.
type Server struct {
	server *mcpserver.MCPServer
	runner *workflow.Runner
	client scm.Client
	dir    DirectoryClient
	log    *zap.Logger
}

// NewServer builds the tool server. dir may be nil (local backend).
func NewServer(client scm.Client, dir DirectoryClient, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := mcpserver.NewMCPServer(
		"switchgate",
		"0.1.0",
		mcpserver.WithInstructions(serverInstructions),
	)
	srv := &Server{
		server: s,
		runner: workflow.NewRunner(client, log),
		client: client,
		dir:    dir,
		log:    log,
	}
	srv.registerWriteTools()
	if dir != nil {
		srv.registerListTools()
	}
	log.Info("server created", zap.Bool("listing_tools", dir != nil))
	return srv
}

func (s *Server) registerWriteTools() {
	createSwitch := gomcp.NewTool("create_feature_switch",
		gomcp.WithDescription(
			"Create a new feature switch: a branch off the source branch plus a canonical "+
				"config file with every deployment stage present and empty. "+
				"Returns the branch, file path, commit id, and per-step outcomes.",
		),
		gomcp.WithString("repositoryId",
			gomcp.Required(),
			gomcp.Description("Repository id or name."),
		),
		gomcp.WithString("featureName",
			gomcp.Required(),
			gomcp.Description("Feature switch name. Also the file name and the Id field of the config."),
		),
		gomcp.WithString("description",
			gomcp.Description("Human-readable description stored in the config file."),
		),
		gomcp.WithString("sourceBranch",
			gomcp.Required(),
			gomcp.Description("Branch to fork from (e.g. master)."),
		),
		gomcp.WithString("branchName",
			gomcp.Description("Branch to create. Defaults to feature/<slug-of-feature-name>."),
		),
	)
	s.server.AddTool(createSwitch, handleCreateFeatureSwitch(s.runner, s.log))

	updateSwitch := gomcp.NewTool("update_feature_switch",
		gomcp.WithDescription(
			"Update one stage of an existing feature switch on a branch. "+
				"With tenantIds and/or rolloutName this writes membership requirements "+
				"(enabled selects MemberOf vs NotMemberOf, default MemberOf); otherwise "+
				"enabled is a plain on/off toggle. The stage's prior config is replaced wholesale. "+
				"Reports a conflict if the branch advanced concurrently — re-invoke to retry.",
		),
		gomcp.WithString("repositoryId",
			gomcp.Required(),
			gomcp.Description("Repository id or name."),
		),
		gomcp.WithString("branchName",
			gomcp.Required(),
			gomcp.Description("Branch holding the feature switch file."),
		),
		gomcp.WithString("featureName",
			gomcp.Required(),
			gomcp.Description("Feature switch name (selects the config file)."),
		),
		gomcp.WithString("stage",
			gomcp.Required(),
			gomcp.Description("Deployment stage to update (must already exist in the config)."),
		),
		gomcp.WithString("tenantIds",
			gomcp.Description("Comma-separated tenant object ids for a membership update."),
		),
		gomcp.WithString("rolloutName",
			gomcp.Description("Rollout name for a membership update."),
		),
		gomcp.WithBoolean("enabled",
			gomcp.Description("Toggle value, or MemberOf (true) vs NotMemberOf (false) on membership updates."),
		),
		gomcp.WithString("commitMessage",
			gomcp.Description("Commit message. Defaults to a generated one."),
		),
	)
	s.server.AddTool(updateSwitch, handleUpdateFeatureSwitch(s.runner, s.log))

	createBranch := gomcp.NewTool("create_branch",
		gomcp.WithDescription("Create a branch pointing at the source branch's current tip."),
		gomcp.WithString("repositoryId",
			gomcp.Required(),
			gomcp.Description("Repository id or name."),
		),
		gomcp.WithString("branchName",
			gomcp.Required(),
			gomcp.Description("Branch to create."),
		),
		gomcp.WithString("sourceBranch",
			gomcp.Required(),
			gomcp.Description("Branch to fork from."),
		),
	)
	s.server.AddTool(createBranch, handleCreateBranch(s.runner, s.log))

	createFile := gomcp.NewTool("create_file",
		gomcp.WithDescription(
			"Commit a new file to a branch. Fails if the path already exists, "+
				"so retrying a partially-failed create_feature_switch is safe.",
		),
		gomcp.WithString("repositoryId",
			gomcp.Required(),
			gomcp.Description("Repository id or name."),
		),
		gomcp.WithString("filePath",
			gomcp.Required(),
			gomcp.Description("Repository-relative path of the new file."),
		),
		gomcp.WithString("fileContent",
			gomcp.Required(),
			gomcp.Description("File content."),
		),
		gomcp.WithString("branchName",
			gomcp.Required(),
			gomcp.Description("Branch to commit to."),
		),
		gomcp.WithString("commitMessage",
			gomcp.Description("Commit message. Defaults to a generated one."),
		),
	)
	s.server.AddTool(createFile, handleCreateFile(s.runner, s.client, s.log))

	listBranches := gomcp.NewTool("list_branches",
		gomcp.WithDescription("List the repository's branches with their tip commit ids."),
		gomcp.WithReadOnlyHintAnnotation(true),
		gomcp.WithString("repositoryId",
			gomcp.Required(),
			gomcp.Description("Repository id or name."),
		),
	)
	s.server.AddTool(listBranches, handleListBranches(s.client, s.log))
}

func (s *Server) registerListTools() {
	listRepos := gomcp.NewTool("list_repositories",
		gomcp.WithDescription("List the project's repositories."),
		gomcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(listRepos, handleListRepositories(s.dir, s.log))

	listPRs := gomcp.NewTool("list_pull_requests",
		gomcp.WithDescription("List pull requests in a repository."),
		gomcp.WithReadOnlyHintAnnotation(true),
		gomcp.WithString("repositoryId",
			gomcp.Required(),
			gomcp.Description("Repository id or name."),
		),
		gomcp.WithString("status",
			gomcp.Description("Filter: active (default), completed, abandoned, or all."),
		),
	)
	s.server.AddTool(listPRs, handleListPullRequests(s.dir, s.log))

	listComments := gomcp.NewTool("list_pull_request_comments",
		gomcp.WithDescription("List the comment threads of a pull request."),
		gomcp.WithReadOnlyHintAnnotation(true),
		gomcp.WithString("repositoryId",
			gomcp.Required(),
			gomcp.Description("Repository id or name."),
		),
		gomcp.WithNumber("pullRequestId",
			gomcp.Required(),
			gomcp.Description("Pull request id."),
		),
	)
	s.server.AddTool(listComments, handleListPullRequestComments(s.dir, s.log))
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve() error {
	return mcpserver.ServeStdio(s.server)
}
