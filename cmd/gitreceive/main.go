package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bravo68web/gitreceive/internal/commands"
	apperrors "github.com/bravo68web/gitreceive/pkg/errors"
	"github.com/bravo68web/gitreceive/pkg/logger"
)

func main() {
	cmd := commands.NewCommandRegistry().RegisterCLI()

	err := cmd.Run(context.Background(), os.Args)
	logger.Close()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "gitreceive: %v\n", err)
	os.Exit(int(apperrors.CodeOf(err)))
}
