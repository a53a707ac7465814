package provision

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravo68web/gitreceive/internal/config"
	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
)

const (
	ed25519Key         = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAILu/AdLxcOraINtDfWFXjEFjdY9N+FyFwrOJT6T6ai8t alice@example.com"
	ed25519Fingerprint = "3c:79:6a:2d:18:26:c8:91:91:dd:9d:d9:6e:05:47:47"

	rsaKey         = "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQCjl8LAtI2pn1u8B3xPfHG0AqrrNi5asJhr1UK0mkPgwWQi/zv04uC5EFTSRNiDmG5AeYP3T4Dn5i72jNDze+M9eDcHX2QP0lc2MoAbTqVR68ZTake2c+f8uwkaTBqiXvPgfzE+RJcyRWHtBBOcr88Yd+4NnQkSIUqqoc2koy5W7rdpfPz+7PNosNsJZOGIf6X0h8NuFg8xfPCxeQ6T3TzR9orHnhvSbaHtFzC/lmgpSXPcqV3PxkmAhe3j3fIfppoTvfiO7Bw3qCfPptheN8Rl6wFXkTohH1wtNFqKXnqncAf/FYeap2gIDDQti4hcjgY05jUHfkDx6b+IHeT46yuv"
	rsaFingerprint = "51:1e:83:e0:7a:d2:d4:fc:21:a1:e8:a2:67:71:a3:e9"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Account: config.AccountConfig{User: "git", Home: t.TempDir()},
	}
}

func TestInitCreatesAccountSkeleton(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, "/usr/local/bin/gitreceive")

	require.NoError(t, p.Init(context.Background()))

	sshInfo, err := os.Stat(filepath.Join(cfg.HomeDir(), ".ssh"))
	require.NoError(t, err)
	assert.True(t, sshInfo.IsDir())
	assert.Equal(t, os.FileMode(0o700), sshInfo.Mode().Perm())

	keysInfo, err := os.Stat(cfg.AuthorizedKeysPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), keysInfo.Mode().Perm())

	receiverInfo, err := os.Stat(cfg.ReceiverPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), receiverInfo.Mode().Perm())

	content, err := os.ReadFile(cfg.ReceiverPath())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "#!/bin/bash"))
}

func TestInitIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, "/usr/local/bin/gitreceive")

	require.NoError(t, p.Init(context.Background()))
	require.NoError(t, p.Init(context.Background()))
}

func TestInitKeepsExistingReceiver(t *testing.T) {
	cfg := testConfig(t)
	custom := "#!/bin/sh\necho deployed\n"
	require.NoError(t, os.WriteFile(cfg.ReceiverPath(), []byte(custom), 0o755))

	p := New(cfg, "/usr/local/bin/gitreceive")
	require.NoError(t, p.Init(context.Background()))

	content, err := os.ReadFile(cfg.ReceiverPath())
	require.NoError(t, err)
	assert.Equal(t, custom, string(content))
}

func TestInitKeepsExistingAuthorizedKeys(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.AuthorizedKeysPath()), 0o700))
	existing := "command=\"true\" " + ed25519Key + "\n"
	require.NoError(t, os.WriteFile(cfg.AuthorizedKeysPath(), []byte(existing), 0o600))

	p := New(cfg, "/usr/local/bin/gitreceive")
	require.NoError(t, p.Init(context.Background()))

	content, err := os.ReadFile(cfg.AuthorizedKeysPath())
	require.NoError(t, err)
	assert.Equal(t, existing, string(content))
}

func TestUploadKeysAuthorizesAndPrintsFingerprint(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, "/usr/local/bin/gitreceive")
	require.NoError(t, p.Init(context.Background()))

	var out bytes.Buffer
	err := p.UploadKeys(context.Background(), strings.NewReader(ed25519Key+"\n"), "", &out)
	require.NoError(t, err)
	assert.Equal(t, ed25519Fingerprint+"\n", out.String())

	content, err := os.ReadFile(cfg.AuthorizedKeysPath())
	require.NoError(t, err)
	line := strings.TrimSpace(string(content))
	assert.Contains(t, line, `command="GITUSER=git /usr/local/bin/gitreceive run alice@example.com `+ed25519Fingerprint+`"`)
	assert.Contains(t, line, "no-pty")
	assert.True(t, strings.HasSuffix(line, "alice@example.com"))
}

func TestUploadKeysMultipleWithBlanksAndComments(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, "/usr/local/bin/gitreceive")
	require.NoError(t, p.Init(context.Background()))

	input := strings.Join([]string{
		"# deploy keys",
		"",
		ed25519Key,
		"   ",
		rsaKey + " bob",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, p.UploadKeys(context.Background(), strings.NewReader(input), "", &out))
	assert.Equal(t, ed25519Fingerprint+"\n"+rsaFingerprint+"\n", out.String())

	content, err := os.ReadFile(cfg.AuthorizedKeysPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Len(t, lines, 2)
}

func TestUploadKeysUsernameOverride(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, "/usr/local/bin/gitreceive")
	require.NoError(t, p.Init(context.Background()))

	var out bytes.Buffer
	require.NoError(t, p.UploadKeys(context.Background(), strings.NewReader(ed25519Key), "deployer", &out))

	content, err := os.ReadFile(cfg.AuthorizedKeysPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), " run deployer ")
}

func TestUploadKeysNoUsername(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, "/usr/local/bin/gitreceive")
	require.NoError(t, p.Init(context.Background()))

	var out bytes.Buffer
	err := p.UploadKeys(context.Background(), strings.NewReader(rsaKey), "", &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoUsername)
	assert.Empty(t, out.String())
}

func TestUploadKeysMalformedKey(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, "/usr/local/bin/gitreceive")
	require.NoError(t, p.Init(context.Background()))

	var out bytes.Buffer
	err := p.UploadKeys(context.Background(), strings.NewReader("not a public key"), "", &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedKey)
}

func TestUploadKeysEmptyInput(t *testing.T) {
	cfg := testConfig(t)
	p := New(cfg, "/usr/local/bin/gitreceive")
	require.NoError(t, p.Init(context.Background()))

	var out bytes.Buffer
	err := p.UploadKeys(context.Background(), strings.NewReader("\n# nothing here\n"), "", &out)
	require.Error(t, err)
	assert.True(t, apperrors.IsUsage(err))
}
