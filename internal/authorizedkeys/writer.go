// Package authorizedkeys maintains the shared account's
// authorized_keys file. Every entry binds one public key to a forced
// command that re-enters gitreceive, so the account can never be used
// for anything but pushing.
package authorizedkeys

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/bravo68web/gitreceive/internal/identity"
	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
	"github.com/bravo68web/gitreceive/pkg/logger"
)

// DefaultRestrictions are the key options applied to every entry. The
// account exists only to run the forced command, so everything else
// the SSH session could offer is switched off.
var DefaultRestrictions = []string{
	"no-agent-forwarding",
	"no-pty",
	"no-user-rc",
	"no-X11-forwarding",
	"no-port-forwarding",
}

// Entry represents one authorized_keys line as structured data. It is
// serialized exactly once, in String, so usernames and paths never get
// concatenated into an option string by hand.
type Entry struct {
	// ForcedCommand is the command sshd substitutes for whatever the
	// client asked to run
	ForcedCommand string

	// Restrictions are additional key options appended after the
	// command option
	Restrictions []string

	// Key is the public key being authorized
	Key *identity.PublicKey

	// Username is written as the key comment for operator reference
	Username string
}

// String serializes the entry in authorized_keys format:
// command="...",<restrictions> <algorithm> <body> <username>
func (e *Entry) String() string {
	options := make([]string, 0, len(e.Restrictions)+1)
	options = append(options, fmt.Sprintf("command=%q", e.ForcedCommand))
	options = append(options, e.Restrictions...)
	return fmt.Sprintf("%s %s %s", strings.Join(options, ","), e.Key.Marshal(), e.Username)
}

// ForcedCommand builds the command line that sshd runs when the key
// authenticates: it re-enters this program in run mode with the
// identity as arguments and the account pinned via GITUSER.
func ForcedCommand(executable, account string, id identity.Identity) string {
	return fmt.Sprintf("GITUSER=%s %s run %s %s", account, executable, id.Username, id.Fingerprint)
}

// Writer appends and updates entries in one authorized_keys file
type Writer struct {
	path string
	log  *logger.Logger
}

// NewWriter creates a Writer for the given authorized_keys path
func NewWriter(path string) *Writer {
	return &Writer{
		path: path,
		log:  logger.Get().WithFields(logger.Component("authorized-keys")),
	}
}

// Path returns the authorized_keys path the writer operates on
func (w *Writer) Path() string {
	return w.path
}

// Authorize adds an entry for the identity's key, replacing any
// existing entry for the same key body. The read-modify-write runs
// under an exclusive file lock so concurrent provisioning calls cannot
// duplicate or corrupt entries.
func (w *Writer) Authorize(id identity.Identity, key *identity.PublicKey, forcedCommand string) error {
	if strings.ContainsAny(forcedCommand, "\"\n") {
		return apperrors.Usage("forced command contains unsafe characters", apperrors.ErrBadCommand)
	}

	entry := &Entry{
		ForcedCommand: forcedCommand,
		Restrictions:  DefaultRestrictions,
		Key:           key,
		Username:      id.Username,
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return apperrors.IOError("creating "+dir, err)
	}

	lock := flock.New(w.path + ".lock")
	if err := lock.Lock(); err != nil {
		return apperrors.IOError("locking "+w.path, err)
	}
	defer lock.Unlock()

	lines, err := w.readEntries()
	if err != nil {
		return err
	}

	// Dedup on the base64 blob alone: options and comments may differ
	// between an old entry and the one replacing it.
	keyBlob := keyBlobOf(key)
	kept := make([]string, 0, len(lines)+1)
	replaced := false
	for _, line := range lines {
		if containsKey(line, keyBlob) {
			replaced = true
			continue
		}
		kept = append(kept, line)
	}
	kept = append(kept, entry.String())

	if err := w.writeEntries(kept); err != nil {
		return err
	}

	w.log.Info("authorized key",
		logger.Username(id.Username),
		logger.Fingerprint(id.Fingerprint),
		logger.Bool("replaced", replaced),
	)
	return nil
}

// readEntries returns the current non-empty lines of the file
func (w *Writer) readEntries() ([]string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.IOError("reading "+w.path, err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// writeEntries replaces the file contents atomically with owner-only
// permissions
func (w *Writer) writeEntries(lines []string) error {
	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".authorized_keys-*")
	if err != nil {
		return apperrors.IOError("creating temp file", err)
	}
	defer os.Remove(tmp.Name())

	content := strings.Join(lines, "\n") + "\n"
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return apperrors.IOError("writing "+w.path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return apperrors.IOError("setting permissions on "+w.path, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.IOError("closing "+w.path, err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return apperrors.IOError("replacing "+w.path, err)
	}
	return nil
}

// keyBlobOf returns the base64 body token of the key
func keyBlobOf(key *identity.PublicKey) string {
	fields := strings.Fields(key.Marshal())
	return fields[len(fields)-1]
}

// containsKey reports whether the line authorizes the exact key blob
func containsKey(line, keyBlob string) bool {
	for _, field := range strings.Fields(line) {
		if field == keyBlob {
			return true
		}
	}
	return false
}
