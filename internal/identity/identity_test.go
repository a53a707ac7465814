package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
)

const (
	// Reference keys with fingerprints precomputed via
	// `base64 -d | md5sum` over the key body.
	ed25519Key         = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAILu/AdLxcOraINtDfWFXjEFjdY9N+FyFwrOJT6T6ai8t alice@example.com"
	ed25519Fingerprint = "3c:79:6a:2d:18:26:c8:91:91:dd:9d:d9:6e:05:47:47"

	rsaKey         = "ssh-rsa AAAAB3NzaC1yc2EAAAADAQABAAABAQCjl8LAtI2pn1u8B3xPfHG0AqrrNi5asJhr1UK0mkPgwWQi/zv04uC5EFTSRNiDmG5AeYP3T4Dn5i72jNDze+M9eDcHX2QP0lc2MoAbTqVR68ZTake2c+f8uwkaTBqiXvPgfzE+RJcyRWHtBBOcr88Yd+4NnQkSIUqqoc2koy5W7rdpfPz+7PNosNsJZOGIf6X0h8NuFg8xfPCxeQ6T3TzR9orHnhvSbaHtFzC/lmgpSXPcqV3PxkmAhe3j3fIfppoTvfiO7Bw3qCfPptheN8Rl6wFXkTohH1wtNFqKXnqncAf/FYeap2gIDDQti4hcjgY05jUHfkDx6b+IHeT46yuv"
	rsaFingerprint = "51:1e:83:e0:7a:d2:d4:fc:21:a1:e8:a2:67:71:a3:e9"
)

func TestParse(t *testing.T) {
	key, err := Parse([]byte(ed25519Key))
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519", key.Key.Type())
	assert.Equal(t, "alice@example.com", key.Comment)
}

func TestParseNoComment(t *testing.T) {
	key, err := Parse([]byte(rsaKey))
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa", key.Key.Type())
	assert.Empty(t, key.Comment)
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"",
		"ssh-ed25519",
		"ssh-ed25519 not!base64###",
		"garbage",
	}
	for _, line := range cases {
		_, err := Parse([]byte(line))
		assert.ErrorIs(t, err, apperrors.ErrMalformedKey, "line %q", line)
	}
}

func TestFingerprintKnownAnswer(t *testing.T) {
	key, err := Parse([]byte(ed25519Key))
	require.NoError(t, err)
	assert.Equal(t, ed25519Fingerprint, key.Fingerprint())

	rsa, err := Parse([]byte(rsaKey))
	require.NoError(t, err)
	assert.Equal(t, rsaFingerprint, rsa.Fingerprint())
}

func TestFingerprintDeterministic(t *testing.T) {
	key, err := Parse([]byte(ed25519Key))
	require.NoError(t, err)
	assert.Equal(t, key.Fingerprint(), key.Fingerprint())

	again, err := Parse([]byte(ed25519Key))
	require.NoError(t, err)
	assert.Equal(t, key.Fingerprint(), again.Fingerprint())
}

func TestMarshalRoundTrip(t *testing.T) {
	key, err := Parse([]byte(rsaKey))
	require.NoError(t, err)
	assert.Equal(t, rsaKey, key.Marshal())
}

func TestResolveUsername(t *testing.T) {
	key, err := Parse([]byte(ed25519Key))
	require.NoError(t, err)

	name, err := ResolveUsername(key, "")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", name)

	name, err = ResolveUsername(key, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}

func TestResolveUsernameMissing(t *testing.T) {
	key, err := Parse([]byte(rsaKey))
	require.NoError(t, err)

	_, err = ResolveUsername(key, "")
	assert.ErrorIs(t, err, apperrors.ErrNoUsername)
}

func TestResolveUsernameUnsafe(t *testing.T) {
	key, err := Parse([]byte(ed25519Key))
	require.NoError(t, err)

	for _, name := range []string{"a b", "a'b", `a"b`, "a;b", "a$b", "a\tb"} {
		_, err := ResolveUsername(key, name)
		assert.ErrorIs(t, err, apperrors.ErrInvalidUsername, "username %q", name)
	}
}

func TestNewIdentity(t *testing.T) {
	key, err := Parse([]byte(ed25519Key))
	require.NoError(t, err)

	id, err := New(key, "")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Username)
	assert.Equal(t, ed25519Fingerprint, id.Fingerprint)
}
