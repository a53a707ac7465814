// Package commands wires the CLI verbs to the underlying services.
//
// The same binary serves two audiences: operators run init and
// upload-key by hand, while sshd and git invoke the hidden run and
// hook verbs through the forced command and the pre-receive hook.
package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/gitreceive/internal/config"
	"github.com/bravo68web/gitreceive/pkg/logger"
)

// CommandRegistry holds the state shared by all commands once the
// Before hook has loaded configuration.
type CommandRegistry struct {
	cfg *config.Config
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{}
}

func (r *CommandRegistry) RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:    "gitreceive",
		Usage:   "Turn SSH pushes into tar streams for a receiver program",
		Suggest: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a gitreceive.yaml config file",
			},
		},
		Before: r.setup,
		Commands: []*cli.Command{
			r.InitCommand(),
			r.UploadKeyCommand(),
			r.RunCommand(),
			r.HookCommand(),
		},
	}
}

// setup loads configuration and initializes the global logger before
// any command action runs. Log output goes to stderr: stdout belongs
// to the git wire protocol for the run and hook verbs.
func (r *CommandRegistry) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	r.cfg = cfg

	if err := logger.Init(&logger.Config{
		Level:    cfg.Logging.Level,
		Output:   logger.OutputType(cfg.Logging.Output),
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.FilePath,
	}); err != nil {
		return ctx, err
	}

	return ctx, nil
}
