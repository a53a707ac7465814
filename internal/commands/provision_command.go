package commands

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/gitreceive/internal/provision"
)

// InitCommand provisions the shared account: system user (best
// effort), ~/.ssh with authorized_keys, and the receiver skeleton.
func (r *CommandRegistry) InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Provision the shared account and receiver skeleton",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Shared account name (overrides configuration)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if user := cmd.String("user"); user != "" {
				r.cfg.Account.User = user
				if err := r.cfg.Validate(); err != nil {
					return err
				}
			}

			executable, err := os.Executable()
			if err != nil {
				return err
			}
			return provision.New(r.cfg, executable).Init(ctx)
		},
	}
}

// UploadKeyCommand reads public keys from stdin and authorizes each
// one, printing its fingerprint. The optional argument overrides the
// username taken from the key comment.
func (r *CommandRegistry) UploadKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload-key",
		Usage:     "Authorize public keys read from stdin",
		ArgsUsage: "[username]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			executable, err := os.Executable()
			if err != nil {
				return err
			}
			username := cmd.Args().First()
			return provision.New(r.cfg, executable).UploadKeys(ctx, os.Stdin, username, os.Stdout)
		},
	}
}
