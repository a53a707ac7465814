// Package hook installs the pre-receive hook into bare repositories
// and implements the bridge that runs as that hook during a push.
package hook

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bravo68web/gitreceive/internal/repository"
	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
	"github.com/bravo68web/gitreceive/pkg/logger"
)

// Name is the git hook this program installs itself as
const Name = "pre-receive"

// Installer writes the pre-receive launcher into a repository's hook
// directory. Install runs on every push and always overwrites, so an
// upgraded binary never leaves stale hooks behind.
type Installer struct {
	executable string
	log        *logger.Logger
}

// NewInstaller creates an Installer that points hooks at the given
// gitreceive executable path
func NewInstaller(executable string) *Installer {
	return &Installer{
		executable: executable,
		log:        logger.Get().WithFields(logger.Component("hook-installer")),
	}
}

// Script returns the hook file content
func (i *Installer) Script() string {
	return fmt.Sprintf("#!/bin/sh\nexec %q hook\n", i.executable)
}

// Install writes the hook as a whole-file replace. Concurrent installs
// write byte-identical content, so last-writer-wins is safe.
func (i *Installer) Install(repo *repository.Repository) error {
	hooksDir := repo.HooksDir()
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return apperrors.IOError("creating "+hooksDir, err)
	}

	tmp, err := os.CreateTemp(hooksDir, "."+Name+"-*")
	if err != nil {
		return apperrors.IOError("creating hook temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(i.Script()); err != nil {
		tmp.Close()
		return apperrors.IOError("writing hook", err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return apperrors.IOError("marking hook executable", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.IOError("closing hook", err)
	}

	hookPath := filepath.Join(hooksDir, Name)
	if err := os.Rename(tmp.Name(), hookPath); err != nil {
		return apperrors.IOError("installing hook", err)
	}

	i.log.Debug("installed hook",
		logger.Repository(repo.Name),
		logger.String("path", hookPath),
	)
	return nil
}
