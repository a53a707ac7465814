// Package dispatch implements the forced-command entry point: it
// parses the command the git client originally asked sshd to run,
// prepares the target repository, and hands the session off to the
// real git server program.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/bravo68web/gitreceive/internal/hook"
	"github.com/bravo68web/gitreceive/internal/identity"
	"github.com/bravo68web/gitreceive/internal/repository"
	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
	"github.com/bravo68web/gitreceive/pkg/logger"
)

// Verbs this dispatcher is willing to hand off to
const (
	VerbReceivePack = "git-receive-pack"
	VerbUploadPack  = "git-upload-pack"
)

// Environment variable names threading the push context from the
// dispatcher to the hook process
const (
	EnvUser        = "RECEIVE_USER"
	EnvFingerprint = "RECEIVE_FINGERPRINT"
	EnvRepo        = "RECEIVE_REPO"
	EnvSession     = "RECEIVE_SESSION"
	EnvOriginal    = "SSH_ORIGINAL_COMMAND"
)

// Command is the parsed client request
type Command struct {
	Verb     string
	RepoName string
}

// ParseCommand parses the original SSH command line, typically
// `git-receive-pack 'name'`. Unknown verbs and malformed or missing
// repository arguments fail with BadCommand.
func ParseCommand(raw string) (*Command, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperrors.Usage("arbitrary ssh prohibited", apperrors.ErrBadCommand)
	}

	verb, rest, _ := strings.Cut(raw, " ")
	if verb != VerbReceivePack && verb != VerbUploadPack {
		return nil, apperrors.Usage("unrecognized command "+verb, apperrors.ErrBadCommand)
	}

	name, err := unquoteArg(strings.TrimSpace(rest))
	if err != nil {
		return nil, err
	}

	return &Command{Verb: verb, RepoName: name}, nil
}

// unquoteArg strips the shell quoting git applies to the repository
// argument, rejecting unbalanced quotes
func unquoteArg(arg string) (string, error) {
	if arg == "" {
		return "", apperrors.Usage("missing repository argument", apperrors.ErrBadCommand)
	}

	for _, quote := range []byte{'\'', '"'} {
		if arg[0] != quote {
			continue
		}
		if len(arg) < 2 || arg[len(arg)-1] != quote {
			return "", apperrors.Usage("unbalanced quoting in repository argument", apperrors.ErrBadCommand)
		}
		inner := arg[1 : len(arg)-1]
		if inner == "" || strings.ContainsRune(inner, rune(quote)) {
			return "", apperrors.Usage("malformed repository argument", apperrors.ErrBadCommand)
		}
		return inner, nil
	}

	if strings.ContainsAny(arg, "'\" ") {
		return "", apperrors.Usage("malformed repository argument", apperrors.ErrBadCommand)
	}
	return arg, nil
}

// Dispatcher prepares the repository and hands the SSH session off to
// the git server program with the three standard streams wired through
// unchanged, so the wire protocol passes through transparently.
type Dispatcher struct {
	Resolver  *repository.Resolver
	Installer *hook.Installer

	// Account is the shared account name, re-exported as GITUSER for
	// the hook process
	Account string

	// Env is the base environment for the git server process
	Env []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Log *logger.Logger
}

// Run dispatches one SSH session. It returns the exit code to
// terminate with: the git server's own exit code on a completed
// handoff, or an error for parse/path/install failures, which leave no
// partial repository or hook state behind.
func (d *Dispatcher) Run(ctx context.Context, id identity.Identity, rawCmd string) (int, error) {
	session := uuid.NewString()
	log := d.logger().WithFields(
		logger.Session(session),
		logger.Username(id.Username),
		logger.Fingerprint(id.Fingerprint),
	)

	cmd, err := ParseCommand(rawCmd)
	if err != nil {
		log.Warn("rejected ssh command", logger.String("command", rawCmd), logger.Error(err))
		return 0, err
	}

	var repo *repository.Repository
	switch cmd.Verb {
	case VerbReceivePack:
		// The only place repositories are created and hooks installed
		repo, err = d.Resolver.Resolve(cmd.RepoName)
		if err == nil {
			err = d.Installer.Install(repo)
		}
	default:
		repo, err = d.Resolver.Locate(cmd.RepoName)
	}
	if err != nil {
		log.Warn("repository resolution failed", logger.Repository(cmd.RepoName), logger.Error(err))
		return 0, err
	}

	// Debug only: session stderr reaches the client as remote noise
	log.Debug("handing off to git server",
		logger.Operation(cmd.Verb),
		logger.Repository(repo.Name),
	)

	proc := exec.CommandContext(ctx, cmd.Verb, repo.Path)
	proc.Stdin = d.Stdin
	proc.Stdout = d.Stdout
	proc.Stderr = d.Stderr
	proc.Env = append(append([]string{}, d.Env...),
		fmt.Sprintf("%s=%s", EnvUser, id.Username),
		fmt.Sprintf("%s=%s", EnvFingerprint, id.Fingerprint),
		fmt.Sprintf("%s=%s", EnvRepo, repo.Name),
		fmt.Sprintf("%s=%s", EnvSession, session),
		fmt.Sprintf("GITUSER=%s", d.Account),
	)

	if err := proc.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Propagate the git server's exit code unchanged
			return exitErr.ExitCode(), nil
		}
		return 0, apperrors.Fatal("handoff to "+cmd.Verb+" failed", err)
	}

	return 0, nil
}

func (d *Dispatcher) logger() *logger.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logger.Get().WithFields(logger.Component("dispatcher"))
}
