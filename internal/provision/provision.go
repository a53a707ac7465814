// Package provision sets up the shared account and turns public keys
// into authorized_keys entries bound to the forced command.
package provision

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bravo68web/gitreceive/internal/authorizedkeys"
	"github.com/bravo68web/gitreceive/internal/config"
	"github.com/bravo68web/gitreceive/internal/identity"
	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
	"github.com/bravo68web/gitreceive/pkg/logger"
)

// receiverSkeleton is the sample receiver installed by init. It is a
// starting point for operators; init never overwrites an existing one.
const receiverSkeleton = `#!/bin/bash
#URL=http://requestb.in/rlh4znrl
#echo "----> Posting to $URL ..."
#curl \
#  -X 'POST' \
#  -F "repository=$1" \
#  -F "revision=$2" \
#  -F "username=$3" \
#  -F "fingerprint=$4" \
#  -F contents=@- \
#  --silent $URL
`

// Provisioner performs the out-of-band setup steps: account skeleton
// and key authorization.
type Provisioner struct {
	cfg        *config.Config
	executable string
	log        *logger.Logger
}

// New creates a Provisioner. The executable path is embedded into
// forced commands, so it must be absolute.
func New(cfg *config.Config, executable string) *Provisioner {
	return &Provisioner{
		cfg:        cfg,
		executable: executable,
		log:        logger.Get().WithFields(logger.Component("provision")),
	}
}

// Init provisions the shared account: the system account itself
// (best-effort, requires root), the .ssh directory and authorization
// file with owner-only permissions, and the receiver skeleton.
func (p *Provisioner) Init(ctx context.Context) error {
	home := p.cfg.HomeDir()

	p.ensureAccount(ctx, home)

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		return apperrors.IOError("creating "+sshDir, err)
	}

	keysPath := p.cfg.AuthorizedKeysPath()
	f, err := os.OpenFile(keysPath, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return apperrors.IOError("creating "+keysPath, err)
	}
	f.Close()

	receiverPath := p.cfg.ReceiverPath()
	if _, err := os.Stat(receiverPath); os.IsNotExist(err) {
		if err := os.WriteFile(receiverPath, []byte(receiverSkeleton), 0o755); err != nil {
			return apperrors.IOError("writing "+receiverPath, err)
		}
		p.log.Info("wrote receiver skeleton", logger.String("path", receiverPath))
	}

	p.chownToAccount(home, sshDir, keysPath, receiverPath)

	p.log.Info("provisioned account",
		logger.Account(p.cfg.Account.User),
		logger.String("home", home),
	)
	return nil
}

// UploadKeys reads public key lines from input, authorizes each one
// and prints its fingerprint. Blank lines and # comments are skipped.
func (p *Provisioner) UploadKeys(ctx context.Context, input io.Reader, username string, out io.Writer) error {
	writer := authorizedkeys.NewWriter(p.cfg.AuthorizedKeysPath())

	authorized := 0
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, err := identity.Parse([]byte(line))
		if err != nil {
			return err
		}
		id, err := identity.New(key, username)
		if err != nil {
			return err
		}

		forced := authorizedkeys.ForcedCommand(p.executable, p.cfg.Account.User, id)
		if err := writer.Authorize(id, key, forced); err != nil {
			return err
		}

		fmt.Fprintln(out, id.Fingerprint)
		authorized++
	}
	if err := scanner.Err(); err != nil {
		return apperrors.IOError("reading key input", err)
	}
	if authorized == 0 {
		return apperrors.Usage("no public key supplied", apperrors.ErrMalformedKey)
	}

	return nil
}

// ensureAccount creates the system account when missing. Account
// creation is an external concern: failures are reported, not fatal,
// since the account may be managed by other means.
func (p *Provisioner) ensureAccount(ctx context.Context, home string) {
	name := p.cfg.Account.User
	if _, err := user.Lookup(name); err == nil {
		return
	}
	if os.Geteuid() != 0 {
		p.log.Warn("not root, skipping account creation", logger.Account(name))
		return
	}

	cmd := exec.CommandContext(ctx, "useradd", "-d", home, name)
	if output, err := cmd.CombinedOutput(); err != nil {
		p.log.Warn("useradd failed",
			logger.Account(name),
			logger.String("output", strings.TrimSpace(string(output))),
			logger.Error(err),
		)
	}
}

// chownToAccount hands the provisioned files to the shared account.
// Only possible as root; silently skipped otherwise.
func (p *Provisioner) chownToAccount(paths ...string) {
	if os.Geteuid() != 0 {
		return
	}
	u, err := user.Lookup(p.cfg.Account.User)
	if err != nil {
		p.log.Warn("cannot look up account for chown", logger.Error(err))
		return
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return
	}
	for _, path := range paths {
		if err := os.Chown(path, uid, gid); err != nil {
			p.log.Warn("chown failed", logger.String("path", path), logger.Error(err))
		}
	}
}
