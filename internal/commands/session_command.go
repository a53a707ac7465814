package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/gitreceive/internal/dispatch"
	"github.com/bravo68web/gitreceive/internal/hook"
	"github.com/bravo68web/gitreceive/internal/identity"
	"github.com/bravo68web/gitreceive/internal/repository"
	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
)

// RunCommand is the forced-command entry point. sshd invokes it with
// the username and fingerprint baked into the authorized_keys entry,
// and the client's real request arrives in SSH_ORIGINAL_COMMAND.
func (r *CommandRegistry) RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Hidden:    true,
		Usage:     "Handle one SSH session (invoked by the forced command)",
		ArgsUsage: "<username> <fingerprint>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return apperrors.Usage("run requires username and fingerprint arguments", apperrors.ErrBadCommand)
			}
			id := identity.Identity{
				Username:    cmd.Args().Get(0),
				Fingerprint: cmd.Args().Get(1),
			}

			executable, err := os.Executable()
			if err != nil {
				return err
			}

			d := &dispatch.Dispatcher{
				Resolver:  repository.NewResolver(r.cfg.HomeDir()),
				Installer: hook.NewInstaller(executable),
				Account:   r.cfg.Account.User,
				Env:       os.Environ(),
				Stdin:     os.Stdin,
				Stdout:    os.Stdout,
				Stderr:    os.Stderr,
			}

			code, err := d.Run(ctx, id, os.Getenv(dispatch.EnvOriginal))
			if err != nil {
				return err
			}
			if code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}
}

// HookCommand is the pre-receive entry point. git runs it inside the
// bare repository with ref updates on stdin; the identity comes from
// the environment the dispatcher set up.
func (r *CommandRegistry) HookCommand() *cli.Command {
	return &cli.Command{
		Name:   "hook",
		Hidden: true,
		Usage:  "Deliver pushed revisions to the receiver (invoked by git)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repoName := os.Getenv(dispatch.EnvRepo)
			if repoName == "" {
				return apperrors.Usage("not invoked by the dispatcher", apperrors.ErrBadCommand)
			}

			// git runs pre-receive with the bare repository as the
			// working directory.
			repoPath, err := os.Getwd()
			if err != nil {
				repoPath = filepath.Join(r.cfg.HomeDir(), repoName)
			}

			b := &hook.Bridge{
				RepoName: repoName,
				RepoPath: repoPath,
				Identity: identity.Identity{
					Username:    os.Getenv(dispatch.EnvUser),
					Fingerprint: os.Getenv(dispatch.EnvFingerprint),
				},
				ReceiverPath: r.cfg.ReceiverPath(),
				OnlyRef:      r.cfg.Hook.OnlyRef,
				Strict:       r.cfg.Receiver.Strict,
				Output:       os.Stdout,
			}
			return b.Run(ctx, os.Stdin)
		},
	}
}
