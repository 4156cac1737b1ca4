// Package config loads the server configuration from a yaml file and
// SWITCHGATE_* environment variables, env taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Backend selects which source-control implementation serves the tools.
const (
	BackendAzureDevOps = "azdevops"
	BackendLocal       = "local"
)

// Config is the fully resolved server configuration.
type Config struct {
	// Backend is "azdevops" (hosted) or "local" (on-disk repository).
	Backend string

	// OrganizationURL, Project, and Token configure the hosted backend.
	// Token is a personal access token with code read/write scope.
	OrganizationURL string
	Project         string
	Token           string

	// LocalRepoPath is the repository root for the local backend.
	LocalRepoPath string

	// LogFile receives structured logs. Stdout carries the MCP protocol,
	// so logs can never go there.
	LogFile string
}

// Load reads configuration. path may be empty, in which case only the
// default file locations and environment are consulted.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SWITCHGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", BackendAzureDevOps)
	v.SetDefault("organization_url", "")
	v.SetDefault("project", "")
	v.SetDefault("token", "")
	v.SetDefault("local_repo_path", "")
	v.SetDefault("log_file", defaultLogFile())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	} else {
		v.SetConfigName("switchgate")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".switchgate"))
		}
		v.AddConfigPath(".")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Backend:         v.GetString("backend"),
		OrganizationURL: v.GetString("organization_url"),
		Project:         v.GetString("project"),
		Token:           v.GetString("token"),
		LocalRepoPath:   v.GetString("local_repo_path"),
		LogFile:         v.GetString("log_file"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendAzureDevOps:
		if c.OrganizationURL == "" {
			return errors.New("organization_url is required for the azdevops backend")
		}
		if c.Project == "" {
			return errors.New("project is required for the azdevops backend")
		}
		if c.Token == "" {
			return errors.New("token is required for the azdevops backend")
		}
	case BackendLocal:
		if c.LocalRepoPath == "" {
			return errors.New("local_repo_path is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendAzureDevOps, BackendLocal)
	}
	return nil
}

func defaultLogFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "switchgate-mcp.log"
	}
	return filepath.Join(home, ".switchgate", "mcp-server.log")
}
