// Package identity maps SSH public keys to the identity that a push is
// attributed to: a username plus the key's fingerprint.
package identity

import (
	"strings"

	"golang.org/x/crypto/ssh"

	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
)

// PublicKey represents one parsed public key line. Immutable once read.
type PublicKey struct {
	// Key is the parsed key material
	Key ssh.PublicKey

	// Comment is the trailing comment token of the key line, if any
	Comment string
}

// Identity binds a username to a key fingerprint
type Identity struct {
	Username    string
	Fingerprint string
}

// Parse parses a single public key line (algorithm, base64 body,
// optional comment) as found in an OpenSSH authorized_keys or .pub file.
func Parse(line []byte) (*PublicKey, error) {
	key, comment, _, _, err := ssh.ParseAuthorizedKey(line)
	if err != nil {
		return nil, apperrors.Usage("cannot parse public key", apperrors.ErrMalformedKey)
	}
	return &PublicKey{
		Key:     key,
		Comment: strings.TrimSpace(comment),
	}, nil
}

// Fingerprint returns the legacy MD5 fingerprint of the key as
// lowercase colon-separated hex pairs. This matches the output of
// `ssh-keygen -l -E md5` (minus the MD5: prefix) so operators can
// cross-reference keys visually.
func (k *PublicKey) Fingerprint() string {
	return ssh.FingerprintLegacyMD5(k.Key)
}

// Marshal returns the key in single-line authorized_keys format
// without a trailing newline or comment.
func (k *PublicKey) Marshal() string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(k.Key)))
}

// ResolveUsername returns the username for the key: the explicit
// override when non-empty, otherwise the key's comment. Usernames end
// up inside a shell command line and in receiver arguments, so unsafe
// input is rejected rather than sanitized.
func ResolveUsername(key *PublicKey, override string) (string, error) {
	name := override
	if name == "" {
		name = key.Comment
	}
	if name == "" {
		return "", apperrors.Usage("no username given and key has no comment", apperrors.ErrNoUsername)
	}
	if err := validateUsername(name); err != nil {
		return "", err
	}
	return name, nil
}

// New derives the full identity for a key
func New(key *PublicKey, override string) (Identity, error) {
	username, err := ResolveUsername(key, override)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		Username:    username,
		Fingerprint: key.Fingerprint(),
	}, nil
}

// validateUsername rejects characters that are unsafe in a shell or
// URL context
func validateUsername(name string) error {
	if strings.ContainsAny(name, " \t\r\n'\"`\\$;&|") {
		return apperrors.Usage("username contains unsafe characters", apperrors.ErrInvalidUsername)
	}
	return nil
}
