package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravo68web/gitreceive/internal/repository"
)

func bareFixture(t *testing.T) *repository.Repository {
	t.Helper()
	r := repository.NewResolver(t.TempDir())
	repo, err := r.Resolve("demo")
	require.NoError(t, err)
	return repo
}

func TestInstallWritesExecutableHook(t *testing.T) {
	repo := bareFixture(t)
	installer := NewInstaller("/usr/local/bin/gitreceive")

	require.NoError(t, installer.Install(repo))

	hookPath := filepath.Join(repo.HooksDir(), Name)
	info, err := os.Stat(hookPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	content, err := os.ReadFile(hookPath)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\nexec \"/usr/local/bin/gitreceive\" hook\n", string(content))
}

func TestInstallOverwritesStaleHook(t *testing.T) {
	repo := bareFixture(t)

	require.NoError(t, NewInstaller("/old/path/gitreceive").Install(repo))
	require.NoError(t, NewInstaller("/new/path/gitreceive").Install(repo))

	content, err := os.ReadFile(filepath.Join(repo.HooksDir(), Name))
	require.NoError(t, err)
	assert.Contains(t, string(content), "/new/path/gitreceive")
	assert.NotContains(t, string(content), "/old/path/gitreceive")
}

func TestInstallIsIdempotent(t *testing.T) {
	repo := bareFixture(t)
	installer := NewInstaller("/usr/local/bin/gitreceive")

	require.NoError(t, installer.Install(repo))
	first, err := os.ReadFile(filepath.Join(repo.HooksDir(), Name))
	require.NoError(t, err)

	require.NoError(t, installer.Install(repo))
	second, err := os.ReadFile(filepath.Join(repo.HooksDir(), Name))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
