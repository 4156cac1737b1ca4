package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"backend: azdevops\n"+
			"organization_url: https://dev.azure.com/acme\n"+
			"project: analytics\n"+
			"token: pat123\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendAzureDevOps, cfg.Backend)
	assert.Equal(t, "https://dev.azure.com/acme", cfg.OrganizationURL)
	assert.Equal(t, "analytics", cfg.Project)
	assert.Equal(t, "pat123", cfg.Token)
	assert.NotEmpty(t, cfg.LogFile)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"backend: azdevops\n"+
			"organization_url: https://dev.azure.com/acme\n"+
			"project: analytics\n"+
			"token: from-file\n"), 0600))
	t.Setenv("SWITCHGATE_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Token)
}

func TestLoad_LocalBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"backend: local\n"+
			"local_repo_path: /srv/repos/config\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, "/srv/repos/config", cfg.LocalRepoPath)
}

func TestLoad_MissingTokenRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"backend: azdevops\n"+
			"organization_url: https://dev.azure.com/acme\n"+
			"project: analytics\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestLoad_UnknownBackendRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: svn\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}
