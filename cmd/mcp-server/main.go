// Command mcp-server runs the switchgate tool server on stdio.
//
// Stdout carries the MCP protocol, so all logging goes to a file; stderr is
// reserved for fatal startup errors (it is captured by the MCP client).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/switchgate/switchgate/azdevops"
	"github.com/switchgate/switchgate/config"
	"github.com/switchgate/switchgate/gitlocal"
	switchmcp "github.com/switchgate/switchgate/mcp"
	"github.com/switchgate/switchgate/scm"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "switchgate-mcp",
		Short:        "MCP server for feature-switch management in hosted git repositories",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.switchgate/switchgate.yaml)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "switchgate-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newFileLogger(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var (
		client scm.Client
		dir    switchmcp.DirectoryClient
	)
	switch cfg.Backend {
	case config.BackendAzureDevOps:
		azc := azdevops.NewClient(cfg.OrganizationURL, cfg.Project, cfg.Token, log)
		client = azc
		dir = azc
	case config.BackendLocal:
		repo, err := gitlocal.Open(cfg.LocalRepoPath, log)
		if err != nil {
			return err
		}
		client = repo
	}

	log.Info("starting",
		zap.String("backend", cfg.Backend),
		zap.String("project", cfg.Project))

	srv := switchmcp.NewServer(client, dir, log)
	if err := srv.Serve(); err != nil {
		log.Error("server exited", zap.Error(err))
		return err
	}
	log.Info("shutdown cleanly")
	return nil
}

func newFileLogger(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}
	return zc.Build()
}
